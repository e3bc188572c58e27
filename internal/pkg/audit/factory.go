package audit

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	DriverLog   = "log"
	DriverNATS  = "nats"
	DriverNSQ   = "nsq"
	DriverKafka = "kafka"
)

// ErrUnknownDriver indicates an unsupported audit driver.
var ErrUnknownDriver = errors.New("audit: unknown driver")

// FactoryOptions groups config for supported sinks.
type FactoryOptions struct {
	Logger *slog.Logger
	NATS   NATSConfig
	NSQ    NSQConfig
	Kafka  KafkaConfig
}

// NewFromDriver constructs a Sink by driver name. An empty name selects the log sink.
func NewFromDriver(driver string, opts FactoryOptions) (Sink, error) {
	switch strings.TrimSpace(driver) {
	case "", DriverLog:
		return NewLog(opts.Logger), nil
	case DriverNATS:
		return NewNATS(opts.NATS)
	case DriverNSQ:
		return NewNSQ(opts.NSQ)
	case DriverKafka:
		return NewKafka(opts.Kafka)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
