package degreeday

import (
	"math"
	"time"

	"github.com/i474232898/degreeday-logger/internal/common"
	"github.com/i474232898/degreeday-logger/internal/weather"
)

const (
	// MaxHorizonHours caps a table at one year of hours past the start.
	MaxHorizonHours = 24 * 365

	// FallbackDelta is added to the base temperature to fill hours the
	// source did not deliver.
	FallbackDelta = 10.0
)

// DataPoint is one hour of a logger's window.
//
// MeasuredTemp is set for elapsed hours, EstimatedTemp for the current and
// future hours. Both are set only on the current hour, where the logged and
// forecast series meet.
type DataPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	RuntimeHours  int       `json:"runtimeHours"`
	MeasuredTemp  *float64  `json:"measuredTemp"`
	EstimatedTemp *float64  `json:"estimatedTemp"`

	// Filled marks a temperature taken from FallbackTemperature because the
	// source had no value for the hour. A later real sample replaces it.
	Filled bool `json:"filled,omitempty"`
}

// IsTransition reports whether the point carries both temperatures.
func (d DataPoint) IsTransition() bool {
	return d.MeasuredTemp != nil && d.EstimatedTemp != nil
}

// FallbackTemperature is the value used for missing hours.
func FallbackTemperature(baseTemperature float64) float64 {
	return math.Max(baseTemperature+FallbackDelta, 0)
}

// Classify decides whether the hour t is measured, estimated or both at now.
//
// On now's calendar date the split is at the current whole hour, which is
// both measured and estimated. On other dates the split is at now itself.
func Classify(t, now time.Time) (measured, estimated bool) {
	if common.SameDate(now, t) {
		currentHour := common.FloorToHour(now)
		return t.Before(currentHour) || t.Equal(currentHour), !t.Before(currentHour)
	}
	return t.Before(now), !t.Before(now)
}

// BuildTable creates the hourly table for a logger from floor(start) up to
// the last available sample. It returns nil when start is unset.
func BuildTable(samples []weather.TemperatureSample, start, now time.Time, baseTemperature float64) []DataPoint {
	if start.IsZero() {
		return nil
	}
	return extend(nil, weather.MergeSamples(samples), start, now, baseTemperature)
}

// PatchTable applies a fresh sample set to an existing table and returns a
// new table; the input is not modified.
//
// Elapsed hours gain a measured value if they had none (or only a filled
// one) and drop their estimate. Existing measured values are never
// overwritten. Future hours take the newest forecast value. Hours past the
// end of the table are appended.
func PatchTable(table []DataPoint, samples []weather.TemperatureSample, start, now time.Time, baseTemperature float64) []DataPoint {
	if start.IsZero() {
		return nil
	}
	merged := weather.MergeSamples(samples)
	out := make([]DataPoint, len(table))

	for i, dp := range table {
		dp.RuntimeHours = RuntimeHours(dp.Timestamp, start)
		temp, ok := weather.SampleAt(merged, dp.Timestamp)
		measured, estimated := Classify(dp.Timestamp, now)

		if measured {
			switch {
			case dp.MeasuredTemp == nil && ok:
				dp.MeasuredTemp = float64Ptr(temp)
				dp.Filled = false
			case dp.MeasuredTemp == nil && dp.EstimatedTemp != nil:
				// No observation arrived for the hour: keep the last
				// forecast value as a filled measurement.
				dp.MeasuredTemp = float64Ptr(*dp.EstimatedTemp)
				dp.Filled = true
			case dp.MeasuredTemp == nil:
				dp.MeasuredTemp = float64Ptr(FallbackTemperature(baseTemperature))
				dp.Filled = true
			case dp.Filled && ok:
				dp.MeasuredTemp = float64Ptr(temp)
				dp.Filled = false
			}
		}

		switch {
		case measured && estimated:
			dp.EstimatedTemp = float64Ptr(*dp.MeasuredTemp)
		case measured:
			dp.EstimatedTemp = nil
		case estimated && ok:
			dp.EstimatedTemp = float64Ptr(temp)
			dp.Filled = false
		}
		out[i] = dp
	}

	return extend(out, merged, start, now, baseTemperature)
}

// extend appends one point per hour after the table's last point (or from
// floor(start) for an empty table) through the last sample.
func extend(table []DataPoint, merged []weather.TemperatureSample, start, now time.Time, baseTemperature float64) []DataPoint {
	if len(merged) == 0 {
		return table
	}

	next := common.FloorToHour(start)
	if len(table) > 0 {
		next = table[len(table)-1].Timestamp.Add(time.Hour)
	}
	last := merged[len(merged)-1].Time
	limit := common.FloorToHour(start).Add(MaxHorizonHours * time.Hour)
	if last.After(limit) {
		last = limit
	}

	for h := next; !h.After(last); h = h.Add(time.Hour) {
		temp, ok := weather.SampleAt(merged, h)
		if !ok {
			temp = FallbackTemperature(baseTemperature)
		}

		dp := DataPoint{
			Timestamp:    h,
			RuntimeHours: RuntimeHours(h, start),
			Filled:       !ok,
		}
		measured, estimated := Classify(h, now)
		if measured {
			dp.MeasuredTemp = float64Ptr(temp)
		}
		if estimated {
			dp.EstimatedTemp = float64Ptr(temp)
		}
		table = append(table, dp)
	}
	return table
}

func float64Ptr(v float64) *float64 {
	return &v
}
