// Package telemetry runs a sensor node's session with an MQTT broker.
//
// A Session owns one logical broker connection and three goroutines that
// share it:
//
//   - the lifecycle manager dials, subscribes to the inbound topic and
//     redials with exponential backoff whenever the connection drops;
//   - the publisher samples a ReadingSource on a fixed interval and publishes
//     the formatted reading while the session is Connected;
//   - the listener hands every inbound message, in delivery order, to a Handler.
//
// Only the lifecycle manager changes the session state or swaps the
// connection. The publisher and listener read the state and use whatever
// connection is current.
//
// Retries are unbounded. The only error Start returns for a reachable
// broker is ErrFatalConfig, for an invalid or unresolvable configuration.
package telemetry
