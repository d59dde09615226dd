package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mqtttelemetry/internal/clientmqtt"
	"mqtttelemetry/internal/config"
	"mqtttelemetry/internal/logger"
	"mqtttelemetry/internal/telemetry"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "configs/conf.toml", "Path to configuration file")
}

func main() {
	flag.Parse()
	cfg, err := config.NewConfig(configFile)
	if err != nil {
		fmt.Printf("configuration file read error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to create a logger: %v\n", err)
		os.Exit(1)
	}
	log.With(logger.Fields{"module": "logger"}).Debug("newLogger created ok")

	clientmqtt.RedirectLogs(log)
	dialer := clientmqtt.NewDialer(log, ConvertConfigClientMQTT(cfg.MQTT))
	log.With(logger.Fields{"module": "mqtt"}).Debugf("dialer for %s created ok", dialer.BrokerURL())

	session, err := telemetry.New(ConvertConfigTelemetry(*cfg), DialerAdapter(dialer),
		telemetry.WithLogger(log),
		telemetry.WithBackoff(ConvertConfigBackoff(cfg.Reconnect)),
		telemetry.WithReadingSource(telemetry.ConstantSource(cfg.Telemetry.Value)),
		telemetry.WithFormatter(telemetry.LabelFormatter(cfg.Telemetry.Label, cfg.Telemetry.Unit)),
	)
	if err != nil {
		log.With(logger.Fields{"module": "telemetry"}).Errorf("failed to create session: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if err = session.Start(ctx); err != nil {
		log.With(logger.Fields{"module": "telemetry"}).Errorf("failed to start session: %v", err)
		cancel()
		os.Exit(1)
	}

	<-ctx.Done()

	session.Stop()
	st := session.Stats()
	log.Infof("shutdown complete: published=%d skipped=%d failed=%d received=%d connects=%d",
		st.Published, st.Skipped, st.Failed, st.Received, st.Connects)
}

// ConvertConfigClientMQTT converts the [mqtt] section for the dialer.
func ConvertConfigClientMQTT(cfg config.MQTTConf) clientmqtt.MQTTConf {
	return clientmqtt.MQTTConf{
		ClientID:       cfg.ClientID,
		Schema:         "tcp",
		Host:           cfg.Host,
		Port:           cfg.Port,
		User:           cfg.User,
		Password:       cfg.Password,
		KeepAlive:      cfg.KeepAlive.Duration,
		ConnectTimeout: cfg.ConnectTimeout.Duration,
	}
}

// ConvertConfigTelemetry builds the session configuration.
func ConvertConfigTelemetry(cfg config.Config) telemetry.Config {
	return telemetry.Config{
		Broker: telemetry.BrokerConfig{
			Host:      cfg.MQTT.Host,
			Port:      cfg.MQTT.Port,
			KeepAlive: cfg.MQTT.KeepAlive.Duration,
			Topic:     cfg.Telemetry.SubscribeTopic,
		},
		PublishTopic: cfg.Telemetry.PublishTopic,
		QoS:          cfg.MQTT.Qos,
		Interval:     cfg.Telemetry.Interval.Duration,
	}
}

// ConvertConfigBackoff converts the [reconnect] section.
func ConvertConfigBackoff(cfg config.ReconnectConf) telemetry.Backoff {
	return telemetry.Backoff{
		Initial:    cfg.InitialDelay.Duration,
		Max:        cfg.MaxDelay.Duration,
		Multiplier: cfg.Multiplier,
		Jitter:     cfg.Jitter,
	}
}

// DialerAdapter exposes the paho dialer as a telemetry.Dialer.
func DialerAdapter(d *clientmqtt.Dialer) telemetry.Dialer {
	return telemetry.DialerFunc(func(ctx context.Context, onLost func(error)) (telemetry.Conn, error) {
		conn, err := d.Dial(ctx, onLost)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}
