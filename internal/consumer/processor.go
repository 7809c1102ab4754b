// Package consumer drains the activity topic and hands each record to a handler.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/activitylog/internal/domain"
	"example.com/activitylog/internal/events"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// DeadLetterWriter keeps records the handler rejected.
type DeadLetterWriter interface {
	Write(ctx context.Context, msg Message, reason string) error
}

// Message is the decoded representation of a record on the activity topic.
type Message struct {
	Topic      string
	Partition  int
	Offset     int64
	Key        []byte
	Timestamp  time.Time
	EventType  string
	ProducedAt time.Time
	// EventID is read from the payload when it parses; empty otherwise.
	EventID string
	Payload json.RawMessage
}

// State is a step of the processor lifecycle.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateSubscribed
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithConnectCheck runs check while connecting; a failure aborts Run.
func WithConnectCheck(check func(context.Context) error) Option {
	return func(p *Processor) {
		p.connect = check
	}
}

// WithDeadLetters stores every record the handler fails on.
func WithDeadLetters(writer DeadLetterWriter) Option {
	return func(p *Processor) {
		p.deadLetters = writer
	}
}

// Processor pulls messages from Kafka one at a time and dispatches them to a
// Handler. Offsets advance whether or not the handler succeeds.
type Processor struct {
	reader      Reader
	handler     Handler
	logger      *slog.Logger
	connect     func(context.Context) error
	deadLetters DeadLetterWriter
	state       atomic.Int32
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State reports where the processor is in its lifecycle.
func (p *Processor) State() State {
	return State(p.state.Load())
}

// Healthy reports whether the processor is subscribed to the log.
func (p *Processor) Healthy(context.Context) bool {
	s := p.State()
	return s == StateSubscribed || s == StateRunning
}

func (p *Processor) setState(s State) {
	p.state.Store(int32(s))
}

// Run processes messages until ctx is cancelled or the log fails.
//
// Cancellation lets the record in flight finish and commit before the reader
// is closed; Run then returns the context error. Fetch and commit failures
// are returned as *domain.TransportError.
func (p *Processor) Run(ctx context.Context) error {
	p.setState(StateConnecting)
	defer func() {
		p.setState(StateStopping)
		if closeErr := p.reader.Close(); closeErr != nil {
			p.logger.Warn("reader close failed", "error", closeErr)
		}
		p.setState(StateStopped)
	}()

	if p.connect != nil {
		if err := p.connect(ctx); err != nil {
			var transportErr *domain.TransportError
			if !errors.As(err, &transportErr) {
				err = &domain.TransportError{Op: "connect", Err: err}
			}
			return err
		}
	}
	p.setState(StateSubscribed)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			recordTransportError("fetch")
			p.logger.Error("fetch failed", "error", err)
			return &domain.TransportError{Op: "fetch", Err: err}
		}
		p.setState(StateRunning)

		// The record is finished and committed even if ctx is cancelled meanwhile.
		if err := p.process(context.WithoutCancel(ctx), msg); err != nil {
			return err
		}
	}
}

func (p *Processor) process(ctx context.Context, raw kafka.Message) error {
	msg := decodeMessage(raw)
	logger := p.logger.With(
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"event_id", msg.EventID,
	)

	if handleErr := p.handler.Handle(ctx, msg); handleErr != nil {
		kind := "store"
		if domain.IsValidation(handleErr) {
			kind = "validation"
			logger.Warn("record rejected", "error", handleErr)
		} else {
			logger.Error("record handling failed", "error", handleErr)
		}
		recordHandlerError(msg, kind)
		p.deadLetter(ctx, logger, msg, handleErr)
	} else {
		recordProcessed(msg)
	}

	if err := p.reader.CommitMessages(ctx, raw); err != nil {
		recordTransportError("commit")
		logger.Error("commit failed", "error", err)
		return &domain.TransportError{Op: "commit", Err: err}
	}
	return nil
}

func (p *Processor) deadLetter(ctx context.Context, logger *slog.Logger, msg Message, cause error) {
	if p.deadLetters == nil {
		return
	}
	if err := p.deadLetters.Write(ctx, msg, cause.Error()); err != nil {
		logger.Error("dead letter write failed", "error", err)
		return
	}
	recordDeadLetter(msg.Topic)
}

func decodeMessage(msg kafka.Message) Message {
	out := Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Timestamp: msg.Time,
		Payload:   json.RawMessage(msg.Value),
	}
	if eventType, ok := headerValue(msg, events.HeaderEventType); ok {
		out.EventType = string(eventType)
	}
	if producedAt, ok := headerValue(msg, events.HeaderProducedAt); ok {
		if ts, err := time.Parse(time.RFC3339Nano, string(producedAt)); err == nil {
			out.ProducedAt = ts
		}
	}

	var probe struct {
		EventID string `json:"eventId"`
	}
	if json.Unmarshal(msg.Value, &probe) == nil {
		out.EventID = probe.EventID
	}
	return out
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
