package dglogger

import (
	"context"
	"fmt"
	"time"

	"github.com/i474232898/degreeday-logger/internal/common"
	"github.com/i474232898/degreeday-logger/internal/degreeday"
	"github.com/i474232898/degreeday-logger/internal/weather"
)

// CycleReport summarises one RefreshAll run.
type CycleReport struct {
	Locations int
	Refreshed int
	Skipped   int
	Failed    int
}

// Refresh runs a refresh cycle for one logger. It returns false without
// fetching when the logger is not running, has no start time or is inside
// its cooldown window.
func (m *Manager) Refresh(ctx context.Context, id string) (Logger, bool, error) {
	m.mu.Lock()
	l, ok := m.loggers[id]
	if !ok {
		m.mu.Unlock()
		return Logger{}, false, ErrNotFound
	}
	now := m.clock()
	if !m.claimLocked(l, now) {
		out := l.Clone()
		m.mu.Unlock()
		return out, false, nil
	}
	snap := l.Clone()
	m.mu.Unlock()

	forecast, err := m.source.FetchForecastAndToday(ctx, snap.Location())
	if err == nil {
		err = m.refreshOne(ctx, snap, forecast, now)
	}
	if err != nil {
		m.releaseClaim(id, now)
		cur, _ := m.Get(id)
		return cur, false, err
	}
	cur, err := m.Get(id)
	return cur, err == nil, err
}

// RefreshAll refreshes every running logger outside its cooldown. Loggers
// sharing coordinates share one forecast fetch.
func (m *Manager) RefreshAll(ctx context.Context) CycleReport {
	m.mu.Lock()
	now := m.clock()
	groups := make(map[string][]Logger)
	var order []string
	report := CycleReport{}
	for _, l := range m.loggers {
		if !l.IsRunning || l.StartTime == nil {
			continue
		}
		if !m.claimLocked(l, now) {
			report.Skipped++
			continue
		}
		key := l.Location().Key()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], l.Clone())
	}
	m.mu.Unlock()

	report.Locations = len(order)
	for _, key := range order {
		snaps := groups[key]
		forecast, err := m.source.FetchForecastAndToday(ctx, snaps[0].Location())
		if err != nil {
			m.logger.Warn("forecast fetch failed, keeping last state", "location", key, "error", err)
			for _, s := range snaps {
				m.releaseClaim(s.ID, now)
			}
			report.Failed += len(snaps)
			continue
		}
		for _, s := range snaps {
			if err := m.refreshOne(ctx, s, forecast, now); err != nil {
				m.logger.Warn("refresh failed, keeping last state", "id", s.ID, "error", err)
				m.releaseClaim(s.ID, now)
				report.Failed++
				continue
			}
			report.Refreshed++
		}
	}

	if report.Locations > 0 || report.Failed > 0 {
		m.logger.Info("refresh cycle done",
			"locations", report.Locations,
			"refreshed", report.Refreshed,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	}
	return report
}

// claimLocked records a refresh start for l unless l is idle or cooling down.
func (m *Manager) claimLocked(l *Logger, now time.Time) bool {
	if !l.IsRunning || l.StartTime == nil {
		return false
	}
	if last, ok := m.lastRefresh[l.ID]; ok && now.Sub(last) < m.cfg.RefreshCooldown {
		return false
	}
	m.lastRefresh[l.ID] = now
	return true
}

// releaseClaim lets a failed cycle retry on the next tick.
func (m *Manager) releaseClaim(id string, claimed time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastRefresh[id]; ok && last.Equal(claimed) {
		delete(m.lastRefresh, id)
	}
}

// refreshOne fetches history for snap, derives the new table and commits it
// if the logger is still running from the same start time.
func (m *Manager) refreshOne(ctx context.Context, snap Logger, forecast []weather.TemperatureSample, now time.Time) error {
	samples, err := m.gatherSamples(ctx, snap, forecast, now)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("%w: no samples for %s", weather.ErrSourceUnavailable, snap.Location().Key())
	}

	start := *snap.StartTime
	var table []degreeday.DataPoint
	if len(snap.DataTable) == 0 {
		table = degreeday.BuildTable(samples, start, now, snap.BaseTemperature)
	} else {
		table = degreeday.PatchTable(snap.DataTable, samples, start, now, snap.BaseTemperature)
	}

	m.mu.Lock()
	cur, ok := m.loggers[snap.ID]
	if !ok || !cur.IsRunning || cur.StartTime == nil || !cur.StartTime.Equal(start) {
		m.mu.Unlock()
		m.logger.Debug("discarding stale refresh result", "id", snap.ID)
		return nil
	}
	// Parameter edits made while the fetch was in flight take effect in this
	// commit rather than on the next cycle: Update already recomputed with
	// them, and recomputing with the snapshot's parameters would undo that.
	cur.DataTable = table
	finished := applyResult(cur, degreeday.Compute(table, cur.Params(), now))
	fetched := now
	cur.LastFetchedAt = &fetched
	cur.UpdatedAt = now
	out := cur.Clone()
	m.mu.Unlock()

	m.persist(ctx, snap.ID)
	m.notifyProgress(ctx, out, now)
	if finished {
		m.notifyFinished(ctx, out, now)
	}
	return nil
}

// gatherSamples returns the merged historical and forecast samples a cycle
// needs. A new table is backfilled from the start date; an existing one only
// from the date of its last fetch or last point, whichever is earlier.
func (m *Manager) gatherSamples(ctx context.Context, snap Logger, forecast []weather.TemperatureSample, now time.Time) ([]weather.TemperatureSample, error) {
	today := common.StartOfDay(now)
	from := common.StartOfDay(snap.StartTime.In(m.tz))
	if n := len(snap.DataTable); n > 0 {
		from = today
		if snap.LastFetchedAt != nil {
			from = common.StartOfDay(snap.LastFetchedAt.In(m.tz))
		}
		if last := common.StartOfDay(snap.DataTable[n-1].Timestamp.In(m.tz)); last.Before(from) {
			from = last
		}
	}

	var history []weather.TemperatureSample
	if from.Before(today) {
		var err error
		history, err = m.source.FetchHistorical(ctx, snap.Location(), from, today.AddDate(0, 0, -1))
		if err != nil {
			return nil, fmt.Errorf("history %s..%s: %w", common.DateString(from), common.DateString(today), err)
		}
	}
	return weather.MergeSamples(history, forecast), nil
}
