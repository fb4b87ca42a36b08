// Package degreeday turns hourly temperatures into accumulated degree-days
// (døgngrader) and projects when a target accumulation will be reached.
//
// A sample stamped T covers the hour that ends at T. It contributes
//
//	max(0, temp + offsetFor(T) - baseTemperature) / 24
//
// when T is after the logger's start time, and nothing otherwise.
package degreeday

import (
	"math"
	"time"
)

const (
	// DayStartHour and DayEndHour bound the half-open [10, 20) window in
	// which the day offset applies.
	DayStartHour = 10
	DayEndHour   = 20

	hoursPerDay = 24.0
)

// Params are the per-logger inputs of a computation.
type Params struct {
	BaseTemperature  float64
	DayOffset        float64
	NightOffset      float64
	TargetDegreeDays float64
	StartTime        time.Time
}

// OffsetFor returns dayOffset for hours 10-19 and nightOffset otherwise.
// The hour is read in ts's own location.
func OffsetFor(ts time.Time, dayOffset, nightOffset float64) float64 {
	h := ts.Hour()
	if h >= DayStartHour && h < DayEndHour {
		return dayOffset
	}
	return nightOffset
}

// Contribution is the degree-day value of one hour at temperature temp,
// ignoring the start-time rule.
func Contribution(ts time.Time, temp float64, p Params) float64 {
	adjusted := temp + OffsetFor(ts, p.DayOffset, p.NightOffset)
	return math.Max(0, adjusted-p.BaseTemperature) / hoursPerDay
}

// Contributes reports whether the hour ending at ts lies after start.
func Contributes(ts, start time.Time) bool {
	return !start.IsZero() && ts.After(start)
}

// RuntimeHours is the number of whole hours from start to ts, clamped to 0.
func RuntimeHours(ts, start time.Time) int {
	if start.IsZero() || ts.Before(start) {
		return 0
	}
	return int(ts.Sub(start) / time.Hour)
}
