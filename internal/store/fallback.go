package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/i474232898/degreeday-logger/internal/dglogger"
)

// Fallback writes through to a primary store and a local copy. Primary
// failures are logged and served from the local copy; callers only see an
// error when the local copy fails as well.
type Fallback struct {
	primary dglogger.Persistence
	local   *LocalStore
	logger  *slog.Logger
}

// NewFallback combines primary and local. primary may be nil.
func NewFallback(primary dglogger.Persistence, local *LocalStore, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		primary: primary,
		local:   local,
		logger:  logger.With("component", "store"),
	}
}

// LoadLoggers merges the primary and the local copy by ID, the newer
// UpdatedAt winning. Loggers that only the local copy has, or has in a newer
// version, were written while the primary was down and are pushed back to
// it. On primary failure the local copy is returned.
func (f *Fallback) LoadLoggers(ctx context.Context) ([]dglogger.Logger, error) {
	if f.primary == nil {
		return f.local.LoadLoggers(ctx)
	}

	remote, err := f.primary.LoadLoggers(ctx)
	if err != nil {
		f.logger.Warn("primary store unavailable, loading local cache", "error", err)
		return f.local.LoadLoggers(ctx)
	}
	cached, err := f.local.LoadLoggers(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]dglogger.Logger, len(remote)+len(cached))
	for _, l := range remote {
		merged[l.ID] = l
	}
	for _, l := range cached {
		if r, ok := merged[l.ID]; ok && !l.UpdatedAt.After(r.UpdatedAt) {
			continue
		}
		merged[l.ID] = l
		if err := f.primary.SaveLogger(ctx, l); err != nil {
			f.logger.Warn("resync to primary failed, kept locally", "id", l.ID, "error", err)
			continue
		}
		f.logger.Info("resynced logger to primary", "id", l.ID)
	}

	all := make([]dglogger.Logger, 0, len(merged))
	for _, l := range merged {
		all = append(all, l)
	}
	if err := f.local.Replace(all); err != nil {
		f.logger.Warn("mirror to local cache failed", "error", err)
	}
	return f.local.LoadLoggers(ctx)
}

// SaveLogger stores l locally and in the primary.
func (f *Fallback) SaveLogger(ctx context.Context, l dglogger.Logger) error {
	localErr := f.local.SaveLogger(ctx, l)
	if localErr != nil {
		f.logger.Warn("local save failed", "id", l.ID, "error", localErr)
	}
	if f.primary == nil {
		return localErr
	}
	if err := f.primary.SaveLogger(ctx, l); err != nil {
		f.logger.Warn("primary save failed, kept locally", "id", l.ID, "error", err)
		return localErr
	}
	return nil
}

// DeleteLogger removes id from both stores. A logger missing from one of
// them is not an error.
func (f *Fallback) DeleteLogger(ctx context.Context, id string) error {
	localErr := f.local.DeleteLogger(ctx, id)
	if errors.Is(localErr, ErrNotFound) {
		localErr = nil
	}
	if localErr != nil {
		f.logger.Warn("local delete failed", "id", id, "error", localErr)
	}
	if f.primary == nil {
		return localErr
	}
	if err := f.primary.DeleteLogger(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		f.logger.Warn("primary delete failed", "id", id, "error", err)
		return localErr
	}
	return nil
}
