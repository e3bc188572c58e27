package audit

import (
	"context"
	"errors"
	"fmt"

	nsq "github.com/nsqio/go-nsq"
)

// ErrNSQAddrRequired is returned when the nsqd address is missing.
var ErrNSQAddrRequired = errors.New("audit: nsq producer address is required")

// NSQConfig configures the NSQ sink.
type NSQConfig struct {
	ProducerAddr string
	Config       *nsq.Config
}

// NSQ publishes events to an nsqd topic named after the event topic.
type NSQ struct {
	producer *nsq.Producer
}

// NewNSQ creates a producer for the configured nsqd.
func NewNSQ(cfg NSQConfig) (*NSQ, error) {
	if cfg.ProducerAddr == "" {
		return nil, ErrNSQAddrRequired
	}

	ncfg := cfg.Config
	if ncfg == nil {
		ncfg = nsq.NewConfig()
	}

	p, err := nsq.NewProducer(cfg.ProducerAddr, ncfg)
	if err != nil {
		return nil, fmt.Errorf("audit: nsq new producer: %w", err)
	}
	p.SetLoggerLevel(nsq.LogLevelError)

	return &NSQ{producer: p}, nil
}

func (n *NSQ) Send(ctx context.Context, topic string, _, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.producer.Publish(topic, body); err != nil {
		return fmt.Errorf("audit: nsq publish: %w", err)
	}
	return nil
}

func (n *NSQ) Close() error {
	n.producer.Stop()
	return nil
}
