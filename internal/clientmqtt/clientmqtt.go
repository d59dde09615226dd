package clientmqtt

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"mqtttelemetry/internal/logger"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultOpTimeout      = 5 * time.Second
	disconnectQuiesce     = 250 // milliseconds
	maxQoS                = 2
)

// Dialer opens broker connections. Every Dial builds a fresh paho client with
// automatic reconnection switched off: the caller owns the reconnect policy.
type Dialer struct {
	log       logger.Logger
	cfgClient MQTTConf
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewDialer constructor.
func NewDialer(log logger.Logger, cfgClient MQTTConf) *Dialer {
	if cfgClient.Schema == "" {
		cfgClient.Schema = "tcp"
	}
	if cfgClient.ConnectTimeout <= 0 {
		cfgClient.ConnectTimeout = defaultConnectTimeout
	}
	return &Dialer{
		log:       log,
		cfgClient: cfgClient,
		newClient: mqtt.NewClient,
	}
}

// BrokerURL returns the address the dialer connects to.
func (d *Dialer) BrokerURL() string {
	return fmt.Sprintf("%s://%s", d.cfgClient.Schema, net.JoinHostPort(d.cfgClient.Host, strconv.Itoa(d.cfgClient.Port)))
}

func (d *Dialer) options(onLost func(error)) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(d.BrokerURL()).
		SetClientID(d.cfgClient.ClientID).
		SetUsername(d.cfgClient.User).
		SetPassword(d.cfgClient.Password).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(d.cfgClient.KeepAlive).
		SetConnectTimeout(d.cfgClient.ConnectTimeout).
		SetOnConnectHandler(func(_ mqtt.Client) {
			d.log.With(logger.Fields{"module": "mqtt"}).Debugf("client connected to %s", d.BrokerURL())
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			d.log.With(logger.Fields{"module": "mqtt"}).Warnf("server connect lost: %v", err)
			if onLost != nil {
				onLost(err)
			}
		})
}

// Dial connects to the broker. onLost is called at most once, when an
// established connection drops without Close being called.
func (d *Dialer) Dial(ctx context.Context, onLost func(error)) (*Conn, error) {
	client := d.newClient(d.options(onLost))

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, d.BrokerURL(), err)
		}
	case <-ctx.Done():
		// Release the half-open client once paho gives up on it.
		go func() {
			<-token.Done()
			client.Disconnect(0)
		}()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	return &Conn{log: d.log, client: client}, nil
}

// Conn is one established broker connection.
type Conn struct {
	log       logger.Logger
	client    mqtt.Client
	closeOnce sync.Once
}

// IsConnected reports whether paho still considers the connection up.
func (c *Conn) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Subscribe registers fn for messages matching topic and waits for the broker
// to acknowledge it.
func (c *Conn) Subscribe(ctx context.Context, topic string, qos byte, fn func(topic string, payload []byte)) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		fn(msg.Topic(), msg.Payload())
	})
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrSubscribeFailed, topic, err)
	}
	c.log.With(logger.Fields{"module": "mqtt"}).Debugf("topic %s subscribed", topic)
	return nil
}

// Publish sends payload to topic and waits for paho to hand it to the broker.
func (c *Conn) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, false, payload)
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Close disconnects from the broker. It is safe to call more than once and
// after the connection has been lost.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		if c.client == nil {
			return
		}
		c.client.Disconnect(disconnectQuiesce)
		c.log.With(logger.Fields{"module": "mqtt"}).Debug("client disconnected")
	})
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// wait blocks until the token completes, ctx ends or the default timeout passes.
func wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(defaultOpTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

// RedirectLogs routes paho's internal loggers into log. Debug output is only
// enabled when log runs at debug level.
func RedirectLogs(log *logger.Log) {
	l := log.With(logger.Fields{"module": "paho"})
	mqtt.ERROR = l.AtLevel(logrus.ErrorLevel)
	mqtt.CRITICAL = l.AtLevel(logrus.ErrorLevel)
	mqtt.WARN = l.AtLevel(logrus.WarnLevel)
	if log.GetLevel() == logrus.DebugLevel.String() {
		mqtt.DEBUG = l.AtLevel(logrus.DebugLevel)
	}
}
