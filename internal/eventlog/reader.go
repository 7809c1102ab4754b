package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReaderConfig describes a consumer group member.
type ReaderConfig struct {
	Brokers     []string
	ClientID    string
	Topic       string
	GroupID     string
	StartOffset string
}

// ParseStartOffset maps earliest/latest onto kafka-go offsets. It only
// applies when the group has no committed offset yet.
func ParseStartOffset(raw string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "earliest":
		return kafka.FirstOffset, nil
	case "latest":
		return kafka.LastOffset, nil
	default:
		return 0, fmt.Errorf("unsupported start offset %q (want earliest or latest)", raw)
	}
}

// NewReader joins the consumer group. Commits are synchronous so the offset
// of a record is durable before the next one is fetched.
func NewReader(cfg ReaderConfig) (*kafka.Reader, error) {
	startOffset, err := ParseStartOffset(cfg.StartOffset)
	if err != nil {
		return nil, err
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
		StartOffset:    startOffset,
		Dialer:         newDialer(cfg.ClientID),
	}), nil
}

func newDialer(clientID string) *kafka.Dialer {
	return &kafka.Dialer{
		ClientID:  clientID,
		Timeout:   10 * time.Second,
		DualStack: true,
	}
}
