// Package audit records security-relevant second-factor events such as
// lockouts and consumed backup codes.
//
// Events are encoded as JSON and handed to a Sink selected by driver name:
// the process log, NATS, NSQ or Kafka. Recording never blocks the caller and
// never fails a login; delivery errors are logged.
package audit
