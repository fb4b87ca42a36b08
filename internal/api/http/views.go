package httpapi

import (
	"time"

	"github.com/i474232898/degreeday-logger/internal/common"
	"github.com/i474232898/degreeday-logger/internal/degreeday"
	"github.com/i474232898/degreeday-logger/internal/dglogger"
)

// loggerView is the read model of a logger, without its hourly table.
type loggerView struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Latitude              float64    `json:"latitude"`
	Longitude             float64    `json:"longitude"`
	TargetDegreeDays      float64    `json:"targetDegreeDays"`
	DayOffset             float64    `json:"dayOffset"`
	NightOffset           float64    `json:"nightOffset"`
	BaseTemperature       float64    `json:"baseTemperature"`
	IsRunning             bool       `json:"isRunning"`
	StartTime             *time.Time `json:"startTime"`
	Runtime               string     `json:"runtime"`
	AccumulatedDegreeDays float64    `json:"accumulatedDegreeDays"`
	ProgressPercent       float64    `json:"progressPercent"`
	EstimatedFinishTime   *time.Time `json:"estimatedFinishTime"`
	FinishReached         bool       `json:"finishReached"`
	CurrentTemperature    *float64   `json:"currentTemperature,omitempty"`
	LastFetchedAt         *time.Time `json:"lastFetchedAt"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

func newLoggerView(l dglogger.Logger, now time.Time) loggerView {
	v := loggerView{
		ID:                    l.ID,
		Name:                  l.Name,
		Latitude:              l.Latitude,
		Longitude:             l.Longitude,
		TargetDegreeDays:      l.TargetDegreeDays,
		DayOffset:             l.DayOffset,
		NightOffset:           l.NightOffset,
		BaseTemperature:       l.BaseTemperature,
		IsRunning:             l.IsRunning,
		StartTime:             l.StartTime,
		Runtime:               dglogger.FormatRuntime(l.StartTime, now),
		AccumulatedDegreeDays: common.Round2(l.AccumulatedDegreeDays),
		EstimatedFinishTime:   l.EstimatedFinishTime,
		FinishReached:         l.FinishReached,
		LastFetchedAt:         l.LastFetchedAt,
		CreatedAt:             l.CreatedAt,
		UpdatedAt:             l.UpdatedAt,
	}
	if l.TargetDegreeDays > 0 {
		v.ProgressPercent = common.Round2(l.AccumulatedDegreeDays / l.TargetDegreeDays * 100)
	}
	return v
}

// chartPoint is one hour of the accumulated chart series.
type chartPoint struct {
	Timestamp            time.Time `json:"timestamp"`
	RuntimeHours         int       `json:"runtimeHours"`
	MeasuredTemp         *float64  `json:"measuredTemp"`
	EstimatedTemp        *float64  `json:"estimatedTemp"`
	Filled               bool      `json:"filled,omitempty"`
	MeasuredAccumulated  *float64  `json:"measuredAccumulated"`
	EstimatedAccumulated *float64  `json:"estimatedAccumulated"`
}

func newChart(table []degreeday.DataPoint, series degreeday.Series) []chartPoint {
	out := make([]chartPoint, 0, len(series.Points))
	for i, pt := range series.Points {
		cp := chartPoint{
			Timestamp:            pt.Timestamp,
			RuntimeHours:         pt.RuntimeHours,
			MeasuredAccumulated:  roundPtr(pt.MeasuredAccumulated),
			EstimatedAccumulated: roundPtr(pt.EstimatedAccumulated),
		}
		if i < len(table) {
			cp.MeasuredTemp = table[i].MeasuredTemp
			cp.EstimatedTemp = table[i].EstimatedTemp
			cp.Filled = table[i].Filled
		}
		out = append(out, cp)
	}
	return out
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := common.Round2(*v)
	return &r
}
