package gateway

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
	"github.com/nerrad567/garage-door-core/internal/infrastructure/mqtt"
)

// ─── Fake broker ─────────────────────────────────────────────────────────────

type brokerMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeBroker struct {
	mu        sync.Mutex
	published []brokerMsg
	handlers  map[string]mqtt.MessageHandler
	subErr    error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, brokerMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (f *fakeBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.handlers[topic] = handler
	return nil
}

// inject delivers an inbound message as the broker would.
func (f *fakeBroker) inject(t *testing.T, topic string, payload string) error {
	t.Helper()
	f.mu.Lock()
	handler := f.handlers[topic]
	f.mu.Unlock()
	if handler == nil {
		t.Fatalf("no handler subscribed on %s", topic)
	}
	return handler(topic, []byte(payload))
}

func (f *fakeBroker) messages(topic string) []brokerMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []brokerMsg
	for _, m := range f.published {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func newTestAdapter(t *testing.T, ctrl Controller) (*MQTTAdapter, *fakeBroker) {
	t.Helper()
	broker := newFakeBroker()
	adapter := NewMQTTAdapter(broker, New(ctrl))
	if err := adapter.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return adapter, broker
}

// ─── Inbound commands ────────────────────────────────────────────────────────

func TestMQTTAdapter_SubscribesCommandTopic(t *testing.T) {
	_, broker := newTestAdapter(t, &fakeController{})

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if broker.handlers["garagedoor/door/command"] == nil {
		t.Error("command topic not subscribed")
	}
}

func TestMQTTAdapter_CommandReachesController(t *testing.T) {
	fake := &fakeController{}
	_, broker := newTestAdapter(t, fake)

	err := broker.inject(t, "garagedoor/door/command", `{"action": "open", "source": "app"}`)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	cmds := fake.commands()
	if len(cmds) != 1 {
		t.Fatalf("commands = %d, want 1", len(cmds))
	}
	if cmds[0].Action != door.ActionOpen {
		t.Errorf("Action = %v, want %v", cmds[0].Action, door.ActionOpen)
	}
	if cmds[0].Source != "mqtt:app" {
		t.Errorf("Source = %q, want %q", cmds[0].Source, "mqtt:app")
	}
}

func TestMQTTAdapter_DefaultsSource(t *testing.T) {
	fake := &fakeController{}
	_, broker := newTestAdapter(t, fake)

	if err := broker.inject(t, "garagedoor/door/command", `{"action": "stop"}`); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if cmds := fake.commands(); cmds[0].Source != "mqtt" {
		t.Errorf("Source = %q, want %q", cmds[0].Source, "mqtt")
	}
}

func TestMQTTAdapter_MalformedPayloadDropped(t *testing.T) {
	fake := &fakeController{}
	_, broker := newTestAdapter(t, fake)

	if err := broker.inject(t, "garagedoor/door/command", `{{not json`); err == nil {
		t.Error("handler error = nil, want decode failure")
	}
	if got := len(fake.commands()); got != 0 {
		t.Errorf("commands = %d, want 0", got)
	}
}

func TestMQTTAdapter_UnknownActionDropped(t *testing.T) {
	fake := &fakeController{}
	_, broker := newTestAdapter(t, fake)

	if err := broker.inject(t, "garagedoor/door/command", `{"action": "levitate"}`); err == nil {
		t.Error("handler error = nil, want unknown action failure")
	}
	if got := len(fake.commands()); got != 0 {
		t.Errorf("commands = %d, want 0", got)
	}
}

func TestMQTTAdapter_RejectionIsNotHandlerFailure(t *testing.T) {
	fake := &fakeController{err: &door.RejectedError{
		Action: door.ActionClose,
		Reason: door.RejectObstructionUnclear,
	}}
	_, broker := newTestAdapter(t, fake)

	err := broker.inject(t, "garagedoor/door/command", `{"action": "close"}`)
	if err != nil {
		t.Errorf("handler error = %v, want nil for a machine rejection", err)
	}
}

// ─── Outbound events ─────────────────────────────────────────────────────────

func TestMQTTAdapter_PublishesStateRetained(t *testing.T) {
	adapter, broker := newTestAdapter(t, &fakeController{})

	adapter.HandleEvent(door.Event{
		Type: door.EventStateChanged,
		From: door.StateOpening,
		To:   door.StateOpen,
		At:   time.Now().UTC(),
	})

	states := broker.messages("garagedoor/door/state")
	if len(states) != 1 {
		t.Fatalf("state publishes = %d, want 1", len(states))
	}
	if !states[0].retained {
		t.Error("state publish not retained")
	}
	if !strings.Contains(string(states[0].payload), `"state":"open"`) {
		t.Errorf("state payload = %s, want it to carry the open state", states[0].payload)
	}

	events := broker.messages("garagedoor/door/event")
	if len(events) != 1 {
		t.Fatalf("event publishes = %d, want 1", len(events))
	}
	if events[0].retained {
		t.Error("event publish retained, want fire-and-forget")
	}
}

func TestMQTTAdapter_PublishesFaults(t *testing.T) {
	adapter, broker := newTestAdapter(t, &fakeController{})

	adapter.HandleEvent(door.Event{
		Type:  door.EventFault,
		Fault: door.FaultTimeout,
		At:    time.Now().UTC(),
	})
	adapter.HandleEvent(door.Event{
		Type:  door.EventFaultCleared,
		Fault: door.FaultTimeout,
		At:    time.Now().UTC(),
	})

	faults := broker.messages("garagedoor/door/fault")
	if len(faults) != 2 {
		t.Fatalf("fault publishes = %d, want 2", len(faults))
	}
	if got := len(broker.messages("garagedoor/door/state")); got != 0 {
		t.Errorf("state publishes = %d, want 0 for fault events", got)
	}
}

func TestMQTTAdapter_PublishesRejectionsOnEventTopic(t *testing.T) {
	adapter, broker := newTestAdapter(t, &fakeController{})

	adapter.HandleEvent(door.Event{
		Type:      door.EventCommandRejected,
		Reason:    door.RejectDeviceFaulted,
		CommandID: "cmd-1",
		At:        time.Now().UTC(),
	})

	events := broker.messages("garagedoor/door/event")
	if len(events) != 1 {
		t.Fatalf("event publishes = %d, want 1", len(events))
	}
	if !strings.Contains(string(events[0].payload), `"reason":"device_faulted"`) {
		t.Errorf("payload = %s, want the rejection reason", events[0].payload)
	}
}
