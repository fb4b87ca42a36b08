package degreeday

import "time"

// transitionWeight is applied to the hour claimed by both the measured and
// the estimated series so it is counted once in total.
const transitionWeight = 0.5

// SeriesPoint is the accumulated value at one hour of a table.
type SeriesPoint struct {
	Timestamp            time.Time `json:"timestamp"`
	RuntimeHours         int       `json:"runtimeHours"`
	MeasuredAccumulated  *float64  `json:"measuredAccumulated"`
	EstimatedAccumulated *float64  `json:"estimatedAccumulated"`
}

// Value returns the measured accumulation if present, else the estimated one.
func (p SeriesPoint) Value() (float64, bool) {
	if p.MeasuredAccumulated != nil {
		return *p.MeasuredAccumulated, true
	}
	if p.EstimatedAccumulated != nil {
		return *p.EstimatedAccumulated, true
	}
	return 0, false
}

// Series is the output of Accumulate.
type Series struct {
	Points []SeriesPoint `json:"points"`

	// Measured is the degree-days accumulated from measured hours, the
	// transition hour included at half weight.
	Measured float64 `json:"measured"`

	// Projected is Measured plus the contribution of every estimate-only hour.
	Projected float64 `json:"projected"`
}

// Accumulate computes the running measured and estimated sums of a table.
//
// The estimated series starts from the measured total so the forecast line
// continues where the logged line ends. An hour carrying both temperatures is
// counted once, at half weight, from the measured value.
func Accumulate(table []DataPoint, p Params) Series {
	points := make([]SeriesPoint, len(table))

	measured := 0.0
	for i, dp := range table {
		points[i] = SeriesPoint{
			Timestamp:    dp.Timestamp,
			RuntimeHours: RuntimeHours(dp.Timestamp, p.StartTime),
		}
		if dp.MeasuredTemp == nil {
			continue
		}
		if Contributes(dp.Timestamp, p.StartTime) {
			c := Contribution(dp.Timestamp, *dp.MeasuredTemp, p)
			if dp.EstimatedTemp != nil {
				c *= transitionWeight
			}
			measured += c
		}
		points[i].MeasuredAccumulated = float64Ptr(measured)
	}

	projected := measured
	for i, dp := range table {
		if dp.EstimatedTemp == nil {
			continue
		}
		if dp.MeasuredTemp == nil && Contributes(dp.Timestamp, p.StartTime) {
			projected += Contribution(dp.Timestamp, *dp.EstimatedTemp, p)
		}
		points[i].EstimatedAccumulated = float64Ptr(projected)
	}

	return Series{
		Points:    points,
		Measured:  measured,
		Projected: projected,
	}
}
