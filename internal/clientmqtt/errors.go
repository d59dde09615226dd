package clientmqtt

import "errors"

var (
	// ErrNotConnected is returned when using a connection that has been lost or closed.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the broker could not be reached.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed is returned when the broker rejects or never acknowledges a subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrPublishFailed is returned when a publish is not delivered to the broker.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrTimeout is returned when a token is not completed in time.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidQoS is returned for QoS levels other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
)
