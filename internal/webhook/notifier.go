package webhook

import (
	"io"
	"net/http"
	"sync"
	"time"
)

// defaultTimeout bounds a delivery when the configured timeout is absent.
const defaultTimeout = 5 * time.Second

// Logger defines the logging interface used by the webhook package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Notifier delivers fire-and-forget HTTP GET notifications. Fire never
// blocks the caller and never reports an error back; a dead webhook
// endpoint costs a log line, not a sensor sample or a door command.
type Notifier struct {
	client *http.Client
	logger Logger
	wg     sync.WaitGroup
}

// New creates a notifier whose requests are bounded by timeout. Zero or
// negative falls back to 5s.
func New(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		client: &http.Client{Timeout: timeout},
		logger: noopLogger{},
	}
}

// SetLogger replaces the default no-op logger.
func (n *Notifier) SetLogger(logger Logger) {
	if logger != nil {
		n.logger = logger
	}
}

// Fire requests url in the background. Empty URLs are ignored.
func (n *Notifier) Fire(url string) {
	if url == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(url)
	}()
}

func (n *Notifier) deliver(url string) {
	resp, err := n.client.Get(url)
	if err != nil {
		n.logger.Warn("webhook request failed", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected", "url", url, "status", resp.StatusCode)
		return
	}
	n.logger.Debug("webhook delivered", "url", url, "status", resp.StatusCode)
}

// Close waits for in-flight deliveries. Callers must stop firing first;
// each pending request is already bounded by the client timeout.
func (n *Notifier) Close() error {
	n.wg.Wait()
	return nil
}
