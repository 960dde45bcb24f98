package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// Controller is the slice of the state machine the gateway drives.
// Satisfied by *door.Machine.
type Controller interface {
	SubmitCommand(cmd door.Command) error
}

// Logger defines the logging interface used by the gateway package.
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

// Gateway is the single entry point for commands from every collaborator
// (MQTT, scheduler, local triggers). It stamps each command with a uuid
// and issue time, absorbs duplicates already in flight, and forwards to
// the machine's serialized queue in strict arrival order.
//
// A duplicate is the same action submitted while an earlier submission of
// that action has not yet completed; it returns nil without reaching the
// machine, making retry-happy callers idempotent.
type Gateway struct {
	ctrl   Controller
	logger Logger

	mu       sync.Mutex
	inflight map[door.Action]bool
}

// New creates a gateway in front of the given controller.
func New(ctrl Controller) *Gateway {
	return &Gateway{
		ctrl:     ctrl,
		logger:   noopLogger{},
		inflight: make(map[door.Action]bool),
	}
}

// SetLogger sets the logger for the gateway. Call before use.
func (g *Gateway) SetLogger(logger Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Submit validates, stamps and forwards one command. Rejections surface
// as *door.RejectedError; duplicates in flight return nil.
func (g *Gateway) Submit(action door.Action, source string) error {
	cmd := door.Command{
		ID:       uuid.NewString(),
		Action:   action,
		Source:   source,
		IssuedAt: time.Now().UTC(),
	}

	g.mu.Lock()
	if g.inflight[action] {
		g.mu.Unlock()
		g.logger.Debug("duplicate command absorbed", "action", action, "source", source)
		return nil
	}
	g.inflight[action] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.inflight, action)
		g.mu.Unlock()
	}()

	g.logger.Info("command submitted", "id", cmd.ID, "action", action, "source", source)
	return g.ctrl.SubmitCommand(cmd)
}
