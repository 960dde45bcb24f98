package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// SQLiteRepository implements Repository against the door_events and
// fault_history tables created by the embedded migrations.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open SQLite connection.
//
// Parameters:
//   - db: Open connection with migrations already applied
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordEvent appends a door event row.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, rec EventRecord) error {
	if rec.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	occurredAt := rec.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO door_events
		   (event_type, from_state, to_state, trigger, source, command_id, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EventType,
		nullable(rec.FromState),
		nullable(rec.ToState),
		nullable(rec.Trigger),
		nullable(rec.Source),
		nullable(rec.CommandID),
		nullable(rec.Detail),
		occurredAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting door event: %w", err)
	}
	return nil
}

// RecentEvents returns door events ordered newest first.
func (r *SQLiteRepository) RecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_type, from_state, to_state, trigger, source, command_id, detail, occurred_at
		 FROM door_events
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying door events: %w", err)
	}
	defer rows.Close()

	records := make([]EventRecord, 0, limit)
	for rows.Next() {
		var rec EventRecord
		var fromState, toState, trigger, source, commandID, detail sql.NullString
		var occurredAt string

		if err := rows.Scan(&rec.ID, &rec.EventType, &fromState, &toState,
			&trigger, &source, &commandID, &detail, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning door event: %w", err)
		}
		rec.FromState = fromState.String
		rec.ToState = toState.String
		rec.Trigger = trigger.String
		rec.Source = source.String
		rec.CommandID = commandID.String
		rec.Detail = detail.String

		ts, err := parseTimestamp(occurredAt)
		if err != nil {
			return nil, err
		}
		rec.OccurredAt = ts

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating door events: %w", err)
	}
	return records, nil
}

// RecordFault opens a fault lifecycle row.
func (r *SQLiteRepository) RecordFault(ctx context.Context, kind, detail string, detectedAt time.Time) (int64, error) {
	if kind == "" {
		return 0, fmt.Errorf("fault kind is required")
	}
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO fault_history (fault_kind, detail, detected_at) VALUES (?, ?, ?)",
		kind,
		nullable(detail),
		detectedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting fault: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading fault id: %w", err)
	}
	return id, nil
}

// MarkFaultsRecovered stamps recovered_at on every open fault row.
func (r *SQLiteRepository) MarkFaultsRecovered(ctx context.Context, recoveredAt time.Time) (int64, error) {
	if recoveredAt.IsZero() {
		recoveredAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE fault_history SET recovered_at = ? WHERE recovered_at IS NULL",
		recoveredAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("stamping fault recovery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return affected, nil
}

// OpenFaults returns faults with no recovery stamp, oldest first.
func (r *SQLiteRepository) OpenFaults(ctx context.Context) ([]FaultRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, fault_kind, detail, detected_at, recovered_at
		 FROM fault_history
		 WHERE recovered_at IS NULL
		 ORDER BY detected_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying open faults: %w", err)
	}
	defer rows.Close()
	return scanFaults(rows)
}

// RecentFaults returns fault rows ordered newest first.
func (r *SQLiteRepository) RecentFaults(ctx context.Context, limit int) ([]FaultRecord, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, fault_kind, detail, detected_at, recovered_at
		 FROM fault_history
		 ORDER BY detected_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying faults: %w", err)
	}
	defer rows.Close()
	return scanFaults(rows)
}

// PruneEvents deletes door event rows older than the given duration.
func (r *SQLiteRepository) PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM door_events WHERE occurred_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting door events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return affected, nil
}

func scanFaults(rows *sql.Rows) ([]FaultRecord, error) {
	var records []FaultRecord
	for rows.Next() {
		var rec FaultRecord
		var detail sql.NullString
		var detectedAt string
		var recoveredAt sql.NullString

		if err := rows.Scan(&rec.ID, &rec.Kind, &detail, &detectedAt, &recoveredAt); err != nil {
			return nil, fmt.Errorf("scanning fault: %w", err)
		}
		rec.Detail = detail.String

		ts, err := parseTimestamp(detectedAt)
		if err != nil {
			return nil, err
		}
		rec.DetectedAt = ts

		if recoveredAt.Valid {
			ts, err := parseTimestamp(recoveredAt.String)
			if err != nil {
				return nil, err
			}
			rec.RecoveredAt = &ts
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating faults: %w", err)
	}
	return records, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// nullable maps empty strings to NULL so optional columns stay clean.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return ts, nil
}
