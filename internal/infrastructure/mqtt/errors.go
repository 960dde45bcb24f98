package mqtt

import "errors"

// Errors reported by the broker client, matched with errors.Is.
// Operational failures arrive wrapped in one of these sentinels with
// the failing topic attached.
var (
	// ErrConnectionFailed wraps a failed initial broker connection.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected rejects operations while the session is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed wraps broker publish rejections and timeouts.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps subscribe rejections and timeouts.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps unsubscribe rejections and timeouts.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidTopic rejects empty topics before they reach the broker.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrInvalidQoS rejects QoS levels outside 0 to 2.
	ErrInvalidQoS = errors.New("mqtt: qos out of range")
)
