package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/activitylog/internal/domain"
	"example.com/activitylog/internal/events"
	"example.com/activitylog/internal/observability"
)

func TestPublisherKeysByUserAndSetsHeaders(t *testing.T) {
	writer := &stubWriter{}
	producedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	publisher := NewPublisher(writer,
		WithPublisherClock(func() time.Time { return producedAt }),
		WithPublisherLogger(observability.Discard()),
	)

	event, err := domain.NewActivityEvent("u1", domain.ActivityUserLogin, map[string]any{"ip": "10.0.0.1"}, producedAt.Add(-time.Second))
	require.NoError(t, err)

	before := counterValue(t, publishedCounter.WithLabelValues("USER_LOGIN"))
	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, writer.messages, 1)
	require.Equal(t, before+1, counterValue(t, publishedCounter.WithLabelValues("USER_LOGIN")))

	msg := writer.messages[0]
	require.Equal(t, "u1", string(msg.Key))
	require.Equal(t, "USER_LOGIN", header(msg, events.HeaderEventType))
	require.Equal(t, producedAt.Format(time.RFC3339Nano), header(msg, events.HeaderProducedAt))

	env, err := events.DecodeActivityEnvelope(msg.Value)
	require.NoError(t, err)
	require.Equal(t, event.EventID, env.EventID)
	require.Equal(t, "u1", env.UserID)
	require.Equal(t, "USER_LOGIN", env.ActivityType)
	require.Equal(t, "10.0.0.1", env.Metadata["ip"])
	require.True(t, event.OccurredAt.Equal(env.OccurredAt))
}

func TestPublisherWrapsTransportFailure(t *testing.T) {
	cause := errors.New("leader not available")
	publisher := NewPublisher(&stubWriter{err: cause}, WithPublisherLogger(observability.Discard()))

	event, err := domain.NewActivityEvent("u1", domain.ActivityPageView, nil, time.Now())
	require.NoError(t, err)

	err = publisher.Publish(context.Background(), event)
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "publish", transportErr.Op)
	require.ErrorIs(t, err, cause)
}

func TestParseAcks(t *testing.T) {
	acks, err := ParseAcks("")
	require.NoError(t, err)
	require.Equal(t, kafka.RequireAll, acks)

	acks, err = ParseAcks("Leader")
	require.NoError(t, err)
	require.Equal(t, kafka.RequireOne, acks)

	_, err = ParseAcks("none")
	require.Error(t, err)
}

func TestParseStartOffset(t *testing.T) {
	offset, err := ParseStartOffset("earliest")
	require.NoError(t, err)
	require.Equal(t, kafka.FirstOffset, offset)

	offset, err = ParseStartOffset("LATEST")
	require.NoError(t, err)
	require.Equal(t, kafka.LastOffset, offset)

	_, err = ParseStartOffset("yesterday")
	require.Error(t, err)
}

func TestNewWriterNeverDisablesAcks(t *testing.T) {
	writer := NewWriter(Config{Brokers: []string{"localhost:9092"}, Topic: "t", Acks: kafka.RequireNone})
	require.Equal(t, kafka.RequireAll, writer.RequiredAcks)
	require.IsType(t, &kafka.Hash{}, writer.Balancer)
}

func TestProbeWithoutBrokersFails(t *testing.T) {
	probe := NewProbe(nil, "test", "user-activity-events")
	err := probe.Check(context.Background())

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.False(t, probe.Healthy(context.Background()))
}

type stubWriter struct {
	messages []kafka.Message
	err      error
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *stubWriter) Close() error { return nil }

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
