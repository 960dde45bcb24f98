// Package history persists the door's event stream to SQLite.
//
// Two tables, created by the embedded migrations:
//
//	door_events    one row per state transition or rejected command
//	fault_history  one row per fault, recovered_at stamped on acknowledge
//
// The Recorder subscribes to the event bus and maps machine events onto
// the tables; the Repository interface hides the SQL so tests can fake
// it. Writes are bounded by a short timeout and failures are logged, not
// propagated: the door must keep moving when the disk does not.
//
// Door event rows are pruned on a retention schedule. Fault rows are
// never pruned; they are few and they are the safety record.
package history
