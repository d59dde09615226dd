package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BrokerConfig identifies the broker and the inbound topic.
type BrokerConfig struct {
	Host      string
	Port      int
	KeepAlive time.Duration
	Topic     string // subscribed on every connect; also the publish topic unless Config.PublishTopic is set.
}

// Config is the immutable startup configuration of a Session.
type Config struct {
	Broker       BrokerConfig
	PublishTopic string
	QoS          byte
	Interval     time.Duration
}

// DefaultInterval is the publish interval of the reference sensor node.
const DefaultInterval = 5 * time.Second

func (c Config) publishTopic() string {
	if c.PublishTopic != "" {
		return c.PublishTopic
	}
	return c.Broker.Topic
}

func (c Config) validate() error {
	var errs []string

	if strings.TrimSpace(c.Broker.Host) == "" {
		errs = append(errs, "broker host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker port must be between 1 and 65535")
	}
	if c.Broker.KeepAlive < 0 {
		errs = append(errs, "keepalive must not be negative")
	}
	if err := validateFilter(c.Broker.Topic); err != nil {
		errs = append(errs, "subscribe topic: "+err.Error())
	}
	if c.PublishTopic != "" && strings.ContainsAny(c.PublishTopic, "+#") {
		errs = append(errs, "publish topic must not contain wildcards")
	}
	if c.PublishTopic == "" && strings.ContainsAny(c.Broker.Topic, "+#") {
		errs = append(errs, "publish topic is required when the subscribe topic has wildcards")
	}
	if c.QoS > 2 {
		errs = append(errs, "qos must be 0, 1, or 2")
	}
	if c.Interval <= 0 {
		errs = append(errs, "interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrFatalConfig, strings.Join(errs, "; "))
	}
	return nil
}

// State is the connection state of a Session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Reading is one sample taken on a publish tick.
type Reading struct {
	Value float64
	Time  time.Time
}

// ReadingSource samples the sensor. It is the injection point for real
// hardware; ConstantSource stands in until one exists.
type ReadingSource func() (float64, error)

// ConstantSource always reports v.
func ConstantSource(v float64) ReadingSource {
	return func() (float64, error) { return v, nil }
}

// Formatter renders a reading as the outbound payload text.
type Formatter func(Reading) string

// LabelFormatter renders "<label>: <value><unit>", e.g. "Temperature: 25.5°C".
func LabelFormatter(label, unit string) Formatter {
	return func(r Reading) string {
		return label + ": " + strconv.FormatFloat(r.Value, 'f', -1, 64) + unit
	}
}

// InboundMessage is a message received on the subscribed topic.
type InboundMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Text returns the payload decoded as text.
func (m InboundMessage) Text() string {
	return string(m.Payload)
}

// Handler consumes inbound messages. Errors and panics are logged and counted;
// they never stop the listener.
type Handler interface {
	HandleMessage(ctx context.Context, msg InboundMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg InboundMessage) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg InboundMessage) error {
	return f(ctx, msg)
}

// Conn is one established broker connection.
type Conn interface {
	Subscribe(ctx context.Context, topic string, qos byte, fn func(topic string, payload []byte)) error
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	Close()
}

// Dialer opens broker connections. onLost must be called at most once, when
// the returned connection drops without Close being called.
type Dialer interface {
	Dial(ctx context.Context, onLost func(error)) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, onLost func(error)) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, onLost func(error)) (Conn, error) {
	return f(ctx, onLost)
}
