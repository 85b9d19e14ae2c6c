package bus

import (
	"context"
	"time"

	"github.com/scriptroom/storyengine/internal/observability"
)

// SaveFunc persists whatever state a debounced save should capture.
type SaveFunc func() error

// DebouncedSaver coalesces repeated TriggerSave calls into a single SaveFunc
// invocation per interval, in the idiom of the teacher's
// ConfigWatcher's debounceTimer (reset-on-each-event, fire-after-quiet).
// Save failures are logged and left to the next debounce to retry; they
// never roll back in-memory state (spec §7 Recovery).
type DebouncedSaver struct {
	interval time.Duration
	trigger  chan struct{}
	saveFn   SaveFunc
	logger   observability.Logger
}

// NewDebouncedSaver creates a saver that waits interval after the last
// TriggerSave before calling saveFn.
func NewDebouncedSaver(interval time.Duration, saveFn SaveFunc, logger observability.Logger) *DebouncedSaver {
	return &DebouncedSaver{
		interval: interval,
		trigger:  make(chan struct{}, 1),
		saveFn:   saveFn,
		logger:   logger,
	}
}

// TriggerSave is fire-and-forget: handlers call it after every mutation
// without waiting for the actual save.
func (s *DebouncedSaver) TriggerSave() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run processes triggers until ctx is cancelled, saving once the trigger
// channel goes quiet for interval.
func (s *DebouncedSaver) Run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-s.trigger:
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(s.interval)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if err := s.saveFn(); err != nil {
				s.logger.Error("debounced save failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
