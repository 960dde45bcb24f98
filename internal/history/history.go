package history

import (
	"context"
	"time"
)

// EventRecord is one row of door activity: a state transition or a
// rejected command. Timestamps are UTC.
type EventRecord struct {
	// ID is the auto-incremented primary key for the row.
	ID int64 `json:"id"`

	// EventType discriminates the row (state_changed, command_rejected).
	EventType string `json:"event_type"`

	// FromState and ToState are populated for state transitions.
	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state,omitempty"`

	// Trigger names what caused the transition, e.g. "command:open" or
	// "sensor:closed_switch".
	Trigger string `json:"trigger,omitempty"`

	// Source identifies the submitting collaborator when known.
	Source string `json:"source,omitempty"`

	// CommandID ties the row back to a gateway command.
	CommandID string `json:"command_id,omitempty"`

	// Detail carries free-form context, e.g. a rejection reason.
	Detail string `json:"detail,omitempty"`

	// OccurredAt is when the event happened (UTC).
	OccurredAt time.Time `json:"occurred_at"`
}

// FaultRecord is one fault lifecycle row. RecoveredAt stays nil while the
// fault is active and is stamped when an acknowledge clears it.
type FaultRecord struct {
	ID          int64      `json:"id"`
	Kind        string     `json:"kind"`
	Detail      string     `json:"detail,omitempty"`
	DetectedAt  time.Time  `json:"detected_at"`
	RecoveredAt *time.Time `json:"recovered_at,omitempty"`
}

// Repository stores and retrieves door event and fault history.
//
// Implementations must be safe for concurrent use and store timestamps
// in UTC.
type Repository interface {
	// RecordEvent appends a door event row.
	//
	// Parameters:
	//   - ctx: Cancels or times out the write
	//   - rec: Event to persist; a zero OccurredAt is stamped with now
	//
	// Returns:
	//   - error: nil on success, or the underlying store error
	RecordEvent(ctx context.Context, rec EventRecord) error

	// RecentEvents returns door events ordered newest first.
	//
	// Parameters:
	//   - ctx: Cancels or times out the query
	//   - limit: Cap on rows returned; the store may clamp it
	RecentEvents(ctx context.Context, limit int) ([]EventRecord, error)

	// RecordFault opens a fault lifecycle row.
	//
	// Returns:
	//   - int64: ID of the inserted row
	//   - error: nil on success, or the underlying store error
	RecordFault(ctx context.Context, kind, detail string, detectedAt time.Time) (int64, error)

	// MarkFaultsRecovered stamps recovered_at on every open fault row.
	// An acknowledge clears the machine's whole fault history, so the
	// persisted records recover together.
	//
	// Returns:
	//   - int64: Number of rows stamped
	MarkFaultsRecovered(ctx context.Context, recoveredAt time.Time) (int64, error)

	// OpenFaults returns faults with no recovery stamp, oldest first.
	// Used at startup to surface anything left active by a crash.
	OpenFaults(ctx context.Context) ([]FaultRecord, error)

	// RecentFaults returns fault rows ordered newest first.
	RecentFaults(ctx context.Context, limit int) ([]FaultRecord, error)

	// PruneEvents deletes door event rows older than the given duration.
	// Fault rows are kept; they are few and carry the safety record.
	//
	// Returns:
	//   - int64: Rows removed
	PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Logger defines the logging interface used by the history package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
