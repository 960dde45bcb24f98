//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/garage-door-core/internal/infrastructure/config"
)

// Broker-backed tests. They expect the dev stack's Mosquitto listening
// on 127.0.0.1:1883 with anonymous access allowed:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/

const deliveryWait = 5 * time.Second

func brokerConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func connectBroker(t *testing.T, clientID string) *Client {
	t.Helper()

	client, err := Connect(brokerConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// ─── Session lifecycle ───

func TestIntegration_ConnectAndHealth(t *testing.T) {
	client := connectBroker(t, "garagedoor-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false right after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v, want nil", err)
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := brokerConfig("garagedoor-int-refused")
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_GracefulClose(t *testing.T) {
	client := connectBroker(t, "garagedoor-int-close")

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true once Close() returned")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() = %v, want ErrNotConnected", err)
	}
}

// ─── Message delivery ───

func TestIntegration_PublishSubscribeRoundTrip(t *testing.T) {
	pub := connectBroker(t, "garagedoor-int-rt-pub")
	sub := connectBroker(t, "garagedoor-int-rt-sub")

	const topic = "garagedoor/int/roundtrip"
	want := `{"action":"open","source":"remote"}`

	received := make(chan string, 1)
	err := sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		select {
		case received <- string(payload):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := pub.PublishString(topic, want, 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}

	select {
	case got := <-received:
		if got != want {
			t.Errorf("received %q, want %q", got, want)
		}
	case <-time.After(deliveryWait):
		t.Fatal("message never arrived")
	}
}

// Wildcard matching is what the zigbee ingestion path runs on, so it
// gets its own end-to-end check.
func TestIntegration_WildcardSubscription(t *testing.T) {
	pub := connectBroker(t, "garagedoor-int-wild-pub")
	sub := connectBroker(t, "garagedoor-int-wild-sub")

	received := make(chan string, 4)
	err := sub.Subscribe("garagedoor/int/+/contact", 1, func(topic string, _ []byte) error {
		received <- topic
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topics := []string{
		"garagedoor/int/sensor-top/contact",
		"garagedoor/int/sensor-bottom/contact",
	}
	for _, topic := range topics {
		if err := pub.PublishString(topic, `{"contact":false}`, 1, false); err != nil {
			t.Fatalf("PublishString(%s) error = %v", topic, err)
		}
	}

	got := make(map[string]bool)
	for range topics {
		select {
		case topic := <-received:
			got[topic] = true
		case <-time.After(deliveryWait):
			t.Fatalf("received %d topics, want %d", len(got), len(topics))
		}
	}
	for _, topic := range topics {
		if !got[topic] {
			t.Errorf("no delivery for %s", topic)
		}
	}
}

func TestIntegration_UnsubscribeStopsDelivery(t *testing.T) {
	client := connectBroker(t, "garagedoor-int-unsub")

	const topic = "garagedoor/int/unsubscribe"
	received := make(chan struct{}, 4)
	err := client.Subscribe(topic, 1, func(string, []byte) error {
		received <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.PublishString(topic, "first", 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}
	select {
	case <-received:
	case <-time.After(deliveryWait):
		t.Fatal("first message never arrived")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	if err := client.PublishString(topic, "second", 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}
	select {
	case <-received:
		t.Error("message delivered after Unsubscribe()")
	case <-time.After(500 * time.Millisecond):
	}
}

// ─── Handler isolation ───

// A handler returning an error must not stop later deliveries.
func TestIntegration_HandlerErrorKeepsDelivery(t *testing.T) {
	client := connectBroker(t, "garagedoor-int-handler-err")

	const topic = "garagedoor/int/handler-error"
	received := make(chan struct{}, 4)
	err := client.Subscribe(topic, 1, func(string, []byte) error {
		received <- struct{}{}
		return errors.New("bad frame")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, payload := range []string{"first", "second"} {
		if err := client.PublishString(topic, payload, 1, false); err != nil {
			t.Fatalf("PublishString(%s) error = %v", payload, err)
		}
	}

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(deliveryWait):
			t.Fatalf("delivery stopped after %d messages", i)
		}
	}
}

// A panicking handler must not kill paho's delivery goroutine.
func TestIntegration_HandlerPanicKeepsDelivery(t *testing.T) {
	client := connectBroker(t, "garagedoor-int-handler-panic")

	const topic = "garagedoor/int/handler-panic"
	received := make(chan struct{}, 4)
	err := client.Subscribe(topic, 1, func(string, []byte) error {
		received <- struct{}{}
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, payload := range []string{"first", "second"} {
		if err := client.PublishString(topic, payload, 1, false); err != nil {
			t.Fatalf("PublishString(%s) error = %v", payload, err)
		}
	}

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(deliveryWait):
			t.Fatalf("delivery stopped after %d messages", i)
		}
	}
}

// ─── Liveness announcements ───

// Watches another client's lifecycle through the retained status
// topic: online on connect, offline with a graceful reason on Close.
func TestIntegration_StatusLifecycle(t *testing.T) {
	const watchedID = "garagedoor-int-watched"

	observer := connectBroker(t, "garagedoor-int-observer")

	statuses := make(chan statusPayload, 4)
	err := observer.Subscribe(Topics{}.SystemStatus(), 1, func(_ string, payload []byte) error {
		var s statusPayload
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		if s.ClientID == watchedID {
			select {
			case statuses <- s:
			default:
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	watched := connectBroker(t, watchedID)

	select {
	case s := <-statuses:
		if s.Status != "online" {
			t.Errorf("first status = %q, want online", s.Status)
		}
	case <-time.After(deliveryWait):
		t.Fatal("online status never arrived")
	}

	if err := watched.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case s := <-statuses:
		if s.Status != "offline" || s.Reason != "graceful_shutdown" {
			t.Errorf("shutdown status = %+v, want offline with graceful_shutdown", s)
		}
	case <-time.After(deliveryWait):
		t.Fatal("offline status never arrived")
	}
}
