package telemetry

import "errors"

var (
	// ErrConnect wraps a failed dial. The lifecycle manager retries it.
	ErrConnect = errors.New("telemetry: connect failed")

	// ErrSubscribe wraps a subscription failure after a successful dial.
	// The connection is dropped and redialed.
	ErrSubscribe = errors.New("telemetry: subscribe failed")

	// ErrPublishSkipped marks a tick that found the session not Connected.
	ErrPublishSkipped = errors.New("telemetry: publish skipped, session not connected")

	// ErrReading wraps a reading source failure.
	ErrReading = errors.New("telemetry: reading source failed")

	// ErrHandler wraps an inbound handler failure or panic.
	ErrHandler = errors.New("telemetry: message handler failed")

	// ErrFatalConfig is the only error that prevents a session from starting.
	ErrFatalConfig = errors.New("telemetry: invalid configuration")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("telemetry: session already started")

	// ErrSessionClosed is returned by Start after Stop.
	ErrSessionClosed = errors.New("telemetry: session stopped")
)
