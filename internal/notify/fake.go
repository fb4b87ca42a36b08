package notify

import (
	"context"
	"sync"

	"github.com/i474232898/degreeday-logger/internal/dglogger"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Progress contains every progress event.
	Progress []dglogger.Progress

	// Finished contains every finish event.
	Finished []dglogger.Progress

	// PublishError, if set, is returned by both publish methods.
	PublishError error
}

// NewFakePublisher creates a FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishProgress(_ context.Context, p dglogger.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Progress = append(f.Progress, p)
	return nil
}

func (f *FakePublisher) PublishFinished(_ context.Context, p dglogger.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Finished = append(f.Finished, p)
	return nil
}

var _ dglogger.Notifier = (*FakePublisher)(nil)
