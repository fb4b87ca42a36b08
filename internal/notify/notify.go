// Package notify publishes logger progress to external subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/degreeday-logger/internal/dglogger"
)

// payload is the JSON document sent for progress and finish events.
type payload struct {
	LoggerID              string  `json:"logger_id"`
	Name                  string  `json:"name"`
	AccumulatedDegreeDays float64 `json:"accumulated_degree_days"`
	TargetDegreeDays      float64 `json:"target_degree_days"`
	Percent               float64 `json:"percent"`
	EstimatedFinishTime   string  `json:"estimated_finish_time,omitempty"`
	Finished              bool    `json:"finished"`
	Timestamp             string  `json:"timestamp"`
}

// FormatPayload renders p as the wire JSON. Times are RFC 3339 in UTC.
func FormatPayload(p dglogger.Progress) ([]byte, error) {
	out := payload{
		LoggerID:              p.LoggerID,
		Name:                  p.Name,
		AccumulatedDegreeDays: p.AccumulatedDegreeDays,
		TargetDegreeDays:      p.TargetDegreeDays,
		Finished:              p.Finished,
		Timestamp:             p.Timestamp.UTC().Format(time.RFC3339),
	}
	if p.TargetDegreeDays > 0 {
		out.Percent = float64(int(p.AccumulatedDegreeDays/p.TargetDegreeDays*1000)) / 10
	}
	if p.EstimatedFinishTime != nil {
		out.EstimatedFinishTime = p.EstimatedFinishTime.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// ProgressTopic returns the retained progress topic for a logger.
func ProgressTopic(prefix, loggerID string) string {
	return fmt.Sprintf("%s/%s/progress", strings.TrimSuffix(prefix, "/"), loggerID)
}

// FinishedTopic returns the one-shot finish topic for a logger.
func FinishedTopic(prefix, loggerID string) string {
	return fmt.Sprintf("%s/%s/finished", strings.TrimSuffix(prefix, "/"), loggerID)
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishProgress(context.Context, dglogger.Progress) error { return nil }
func (Nop) PublishFinished(context.Context, dglogger.Progress) error { return nil }
func (Nop) Close() error                                             { return nil }

var _ dglogger.Notifier = Nop{}
