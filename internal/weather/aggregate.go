package weather

import (
	"sort"
	"time"

	"github.com/i474232898/degreeday-logger/internal/common"
)

// MergeSamples combines several sample sets into a single hour-aligned series
// ordered by time. When two sets carry the same hour, the later set wins, so
// callers pass historical data first and today/forecast data last.
func MergeSamples(sets ...[]TemperatureSample) []TemperatureSample {
	byHour := make(map[int64]TemperatureSample)
	for _, set := range sets {
		for _, s := range set {
			h := common.FloorToHour(s.Time)
			byHour[h.Unix()] = TemperatureSample{Time: h, TemperatureC: s.TemperatureC}
		}
	}

	if len(byHour) == 0 {
		return nil
	}

	merged := make([]TemperatureSample, 0, len(byHour))
	for _, s := range byHour {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	return merged
}

// SampleAt returns the temperature for the hour containing t, if present.
func SampleAt(samples []TemperatureSample, t time.Time) (float64, bool) {
	h := common.FloorToHour(t)
	i := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Time.Before(h)
	})
	if i < len(samples) && samples[i].Time.Equal(h) {
		return samples[i].TemperatureC, true
	}
	return 0, false
}
