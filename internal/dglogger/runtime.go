package dglogger

import (
	"fmt"
	"time"
)

// FormatRuntime renders the time since start as d:hh:mm. A nil or future
// start renders as 0:00:00.
func FormatRuntime(start *time.Time, now time.Time) string {
	if start == nil || now.Before(*start) {
		return "0:00:00"
	}
	total := int(now.Sub(*start) / time.Minute)
	days := total / (24 * 60)
	hours := (total / 60) % 24
	minutes := total % 60
	return fmt.Sprintf("%d:%02d:%02d", days, hours, minutes)
}
