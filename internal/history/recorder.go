package history

import (
	"context"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
)

const (
	// recordTimeout bounds each write so a wedged disk cannot stall the
	// event fan-out.
	recordTimeout = 5 * time.Second

	// pruneInterval is how often the retention pass runs.
	pruneInterval = 6 * time.Hour
)

// Recorder persists the machine's outbound events. HandleEvent is
// subscribed to the event bus; Start launches the retention loop.
type Recorder struct {
	repo      Repository
	retention time.Duration
	logger    Logger
}

// NewRecorder creates a recorder over repo. Retention bounds how long
// door event rows are kept; zero or negative disables pruning.
func NewRecorder(repo Repository, retention time.Duration) *Recorder {
	return &Recorder{
		repo:      repo,
		retention: retention,
		logger:    noopLogger{},
	}
}

// SetLogger replaces the default no-op logger.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Start launches the retention loop. It returns immediately; the loop
// runs until ctx is cancelled. No-op when pruning is disabled.
func (r *Recorder) Start(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	go r.pruneLoop(ctx)
}

// HandleEvent maps one machine event onto the history tables. Errors are
// logged, never propagated; losing a history row must not disturb the
// control loop.
func (r *Recorder) HandleEvent(ev door.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	switch ev.Type {
	case door.EventStateChanged:
		err := r.repo.RecordEvent(ctx, EventRecord{
			EventType:  string(ev.Type),
			FromState:  string(ev.From),
			ToState:    string(ev.To),
			Trigger:    ev.Trigger,
			OccurredAt: ev.At,
		})
		if err != nil {
			r.logger.Error("recording state change failed", "error", err)
		}

	case door.EventCommandRejected:
		err := r.repo.RecordEvent(ctx, EventRecord{
			EventType:  string(ev.Type),
			CommandID:  ev.CommandID,
			Detail:     string(ev.Reason),
			OccurredAt: ev.At,
		})
		if err != nil {
			r.logger.Error("recording rejection failed", "error", err)
		}

	case door.EventFault:
		if _, err := r.repo.RecordFault(ctx, string(ev.Fault), ev.Detail, ev.At); err != nil {
			r.logger.Error("recording fault failed", "kind", ev.Fault, "error", err)
		}

	case door.EventFaultCleared:
		recovered, err := r.repo.MarkFaultsRecovered(ctx, ev.At)
		if err != nil {
			r.logger.Error("stamping fault recovery failed", "error", err)
			return
		}
		r.logger.Info("fault history recovered", "rows", recovered)
	}
}

func (r *Recorder) pruneLoop(ctx context.Context) {
	// One pass right away so a long-stopped installation trims on boot.
	r.prune(ctx)

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	deleted, err := r.repo.PruneEvents(ctx, r.retention)
	if err != nil {
		r.logger.Error("pruning door events failed", "error", err)
		return
	}
	if deleted > 0 {
		r.logger.Info("pruned door events", "rows", deleted, "retention", r.retention)
	}
}
