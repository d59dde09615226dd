package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Env overrides, applied after the file is decoded.
const (
	EnvServer   = "TELEMETRY_MQTT_SERVER"
	EnvPort     = "TELEMETRY_MQTT_PORT"
	EnvUser     = "TELEMETRY_MQTT_USER"
	EnvPassword = "TELEMETRY_MQTT_PASSWORD"
	EnvLogLevel = "TELEMETRY_LOG_LEVEL"
)

const clientIDPrefix = "mqtttelemetry-"

// Config is the root of the TOML configuration file.
type Config struct {
	Logger    LogConf       `toml:"logger"`
	MQTT      MQTTConf      `toml:"mqtt"`
	Telemetry TelemetryConf `toml:"telemetry"`
	Reconnect ReconnectConf `toml:"reconnect"`
}

// LogConf configures the logger.
type LogConf struct {
	Level  string `toml:"log-level"` // debug, info, warn, error.
	Format string `toml:"format"`    // text or json.
	Output string `toml:"output"`    // stdout or stderr.
}

// MQTTConf configures the broker connection.
type MQTTConf struct {
	ClientID       string   `toml:"clientID"`
	Host           string   `toml:"server"`
	Port           int      `toml:"port"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	Qos            byte     `toml:"qos"`
	KeepAlive      Duration `toml:"keepalive"`
	ConnectTimeout Duration `toml:"connect-timeout"`
}

// TelemetryConf configures what the node publishes and listens to.
type TelemetryConf struct {
	SubscribeTopic string   `toml:"subscribe-topic"`
	PublishTopic   string   `toml:"publish-topic"`
	Interval       Duration `toml:"interval"`
	Value          float64  `toml:"value"` // placeholder reading until a real sensor is wired.
	Label          string   `toml:"label"`
	Unit           string   `toml:"unit"`
}

// ReconnectConf shapes the backoff between connection attempts.
type ReconnectConf struct {
	InitialDelay Duration `toml:"initial-delay"`
	MaxDelay     Duration `toml:"max-delay"`
	Multiplier   float64  `toml:"multiplier"`
	Jitter       float64  `toml:"jitter"`
}

// Duration decodes TOML strings such as "5s" or "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Logger: LogConf{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		MQTT: MQTTConf{
			Host:           "broker.hivemq.com",
			Port:           1883,
			KeepAlive:      Duration{60 * time.Second},
			ConnectTimeout: Duration{10 * time.Second},
		},
		Telemetry: TelemetryConf{
			SubscribeTopic: "iot/sensor/data",
			PublishTopic:   "iot/sensor/data",
			Interval:       Duration{5 * time.Second},
			Value:          25.5,
			Label:          "Temperature",
			Unit:           "°C",
		},
		Reconnect: ReconnectConf{
			InitialDelay: Duration{time.Second},
			MaxDelay:     Duration{30 * time.Second},
			Multiplier:   2,
			Jitter:       0.2,
		},
	}
}

// NewConfig reads the TOML file at path over the defaults, applies env
// overrides and validates the result.
func NewConfig(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = NewClientID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewClientID returns a broker-unique client ID.
func NewClientID() string {
	return clientIDPrefix + uuid.NewString()[:8]
}

// ApplyEnv overrides file values with the TELEMETRY_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvServer); v != "" {
		c.MQTT.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q: %w", EnvPort, v, err)
		}
		c.MQTT.Port = port
	}
	if v := os.Getenv(EnvUser); v != "" {
		c.MQTT.User = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logger.Level = v
	}
	return nil
}

// Validate reports every configuration problem in a single error.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.MQTT.Host) == "" {
		errs = append(errs, "mqtt.server is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.Qos > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive.Duration <= 0 {
		errs = append(errs, "mqtt.keepalive must be positive")
	}
	if c.Telemetry.SubscribeTopic == "" {
		errs = append(errs, "telemetry.subscribe-topic is required")
	}
	if c.Telemetry.PublishTopic == "" {
		errs = append(errs, "telemetry.publish-topic is required")
	}
	if c.Telemetry.Interval.Duration <= 0 {
		errs = append(errs, "telemetry.interval must be positive")
	}
	if c.Reconnect.InitialDelay.Duration <= 0 {
		errs = append(errs, "reconnect.initial-delay must be positive")
	}
	if c.Reconnect.MaxDelay.Duration < c.Reconnect.InitialDelay.Duration {
		errs = append(errs, "reconnect.max-delay must not be less than initial-delay")
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, "reconnect.multiplier must be at least 1")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		errs = append(errs, "reconnect.jitter must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
