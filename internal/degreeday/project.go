package degreeday

import (
	"time"

	"github.com/i474232898/degreeday-logger/internal/common"
)

const (
	// NewLoggerWindow is kept past the finish for loggers started today.
	NewLoggerWindow = 12 * time.Hour
	// ExistingLoggerWindow is kept past the finish for older loggers.
	ExistingLoggerWindow = 4 * time.Hour

	thresholdEpsilon = 1e-9
)

// TrailingWindow returns how long the series continues past the finish.
// The two windows differ between loggers started today and earlier ones;
// both are kept until product settles on one.
func TrailingWindow(start, now time.Time) time.Duration {
	if !start.IsZero() && common.SameDate(now, start) {
		return NewLoggerWindow
	}
	return ExistingLoggerWindow
}

// Projection is the result of scanning a series against a target.
type Projection struct {
	// EstimatedFinishTime is the first hour whose accumulation reaches the
	// target; nil when the target lies beyond the series.
	EstimatedFinishTime *time.Time

	// Reached is true when the crossing hour is a measured one.
	Reached bool

	// Keep is the number of leading points inside finish + window.
	Keep int
}

// Project finds the first point at which the accumulation is at or above
// target and how many points fall inside the trailing window after it.
func Project(series Series, target float64, window time.Duration) Projection {
	proj := Projection{Keep: len(series.Points)}
	if target <= 0 {
		return proj
	}

	for i, pt := range series.Points {
		v, ok := pt.Value()
		if !ok || v < target-thresholdEpsilon {
			continue
		}

		finish := pt.Timestamp
		proj.EstimatedFinishTime = &finish
		proj.Reached = pt.MeasuredAccumulated != nil

		cutoff := finish.Add(window)
		keep := i + 1
		for keep < len(series.Points) && !series.Points[keep].Timestamp.After(cutoff) {
			keep++
		}
		proj.Keep = keep
		return proj
	}
	return proj
}

// Result bundles everything derived for a logger in one computation.
type Result struct {
	Table               []DataPoint
	Series              Series
	Accumulated         float64
	EstimatedFinishTime *time.Time
	Reached             bool
}

// Compute accumulates the table, projects the finish and drops the points
// past finish + trailing window from both table and series.
func Compute(table []DataPoint, p Params, now time.Time) Result {
	series := Accumulate(table, p)
	proj := Project(series, p.TargetDegreeDays, TrailingWindow(p.StartTime, now))

	kept := table[:proj.Keep]
	if proj.Keep < len(series.Points) {
		series.Points = series.Points[:proj.Keep]
		series.Measured, series.Projected = 0, 0
		for _, pt := range series.Points {
			if pt.MeasuredAccumulated != nil {
				series.Measured = *pt.MeasuredAccumulated
			}
			if pt.EstimatedAccumulated != nil {
				series.Projected = *pt.EstimatedAccumulated
			}
		}
		if series.Projected < series.Measured {
			series.Projected = series.Measured
		}
	}

	return Result{
		Table:               kept,
		Series:              series,
		Accumulated:         series.Measured,
		EstimatedFinishTime: proj.EstimatedFinishTime,
		Reached:             proj.Reached,
	}
}
