package clientmqtt

import "time"

// MQTTConf describes how to reach the broker.
type MQTTConf struct {
	ClientID       string        // ClientID - unique client name on the broker.
	Schema         string        // Schema - connection type, "tcp" when empty.
	Host           string        // Host - MQTT server address.
	Port           int           // Port - MQTT server port.
	User           string        // User - login for the MQTT server.
	Password       string        // Password - password for the MQTT server.
	KeepAlive      time.Duration // KeepAlive - ping interval agreed with the broker.
	ConnectTimeout time.Duration // ConnectTimeout - upper bound for a single connect attempt.
}
