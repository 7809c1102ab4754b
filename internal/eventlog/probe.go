package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"example.com/activitylog/internal/domain"
)

// Probe checks that a broker is reachable and the topic exists.
type Probe struct {
	brokers []string
	topic   string
	dialer  *kafka.Dialer
}

// NewProbe constructs a Probe for topic.
func NewProbe(brokers []string, clientID, topic string) *Probe {
	return &Probe{brokers: brokers, topic: topic, dialer: newDialer(clientID)}
}

// Check dials the brokers in turn until one answers with the topic's
// partitions.
func (p *Probe) Check(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return &domain.TransportError{Op: "connect", Err: errors.New("no brokers configured")}
	}

	var lastErr error
	for _, broker := range p.brokers {
		conn, err := p.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		partitions, err := conn.ReadPartitions(p.topic)
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if len(partitions) == 0 {
			lastErr = fmt.Errorf("topic %s has no partitions", p.topic)
			continue
		}
		return nil
	}
	return &domain.TransportError{Op: "connect", Err: lastErr}
}

// Healthy reports whether Check succeeds.
func (p *Probe) Healthy(ctx context.Context) bool {
	return p.Check(ctx) == nil
}
