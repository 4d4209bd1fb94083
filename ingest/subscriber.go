// Package ingest feeds orders published on NATS into the task queue.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/orders"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

const (
	DefaultSubject    = "orders.submit"
	DefaultQueueGroup = "taskworker"
)

// Submitter accepts an order id for processing.
type Submitter interface {
	Submit(id string) (orders.Order, error)
}

// Message is the payload expected on the subject.
type Message struct {
	ID string `json:"id"`
}

// Reply is sent back when the publisher asked for one.
type Reply struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type (
	MarshalFn   func(v any) ([]byte, error)
	UnmarshalFn func(data []byte, v any) error
)

type options struct {
	logger      *slog.Logger
	subject     string
	queueGroup  string
	marshaler   MarshalFn
	unmarshaler UnmarshalFn
}

// Option is an option func for NewSubscriber.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithSubject overrides DefaultSubject.
func WithSubject(subject string) Option {
	return func(options *options) {
		options.subject = subject
	}
}

// WithQueueGroup overrides DefaultQueueGroup. Subscribers in the same group
// share the messages instead of each receiving a copy.
func WithQueueGroup(group string) Option {
	return func(options *options) {
		options.queueGroup = group
	}
}

// WithDataSerialization sets an alternative method to serialize messages.
func WithDataSerialization(marshaler MarshalFn, unmarshaler UnmarshalFn) Option {
	return func(options *options) {
		options.marshaler = marshaler
		options.unmarshaler = unmarshaler
	}
}

// Subscriber turns every message on its subject into a queued order.
type Subscriber struct {
	nc        *nats.Conn
	submitter Submitter
	options
}

// NewSubscriber creates a Subscriber on nc. The connection stays owned by the caller.
func NewSubscriber(nc *nats.Conn, submitter Submitter, opts ...Option) *Subscriber {
	options := options{
		logger:      log.NewNilLogger(),
		subject:     DefaultSubject,
		queueGroup:  DefaultQueueGroup,
		marshaler:   json.Marshal,
		unmarshaler: json.Unmarshal,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Subscriber{
		nc:        nc,
		submitter: submitter,
		options:   options,
	}
}

func (s *Subscriber) Name() string {
	return "nats order subscriber on " + s.subject
}

// Run subscribes and blocks until ctx is done. Messages already received are
// handled before Run returns.
func (s *Subscriber) Run(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.subject, s.queueGroup, s.handle)
	if err != nil {
		return stacktrace.Wrap(err)
	}
	if err := s.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return stacktrace.Wrap(err)
	}
	s.logger.Info("subscribed to orders", slog.String("subject", s.subject), slog.String("queue_group", s.queueGroup))

	<-ctx.Done()

	if err := sub.Drain(); err != nil && s.nc.IsConnected() {
		return stacktrace.Wrap(err)
	}
	return nil
}

func (s *Subscriber) handle(msg *nats.Msg) {
	var m Message
	if err := s.unmarshaler(msg.Data, &m); err != nil {
		s.logger.Warn("dropping malformed order message", slog.String("subject", msg.Subject), log.ErrAttr(err))
		s.respond(msg, Reply{Error: "malformed message"})
		return
	}

	order, err := s.submitter.Submit(m.ID)
	if err != nil {
		s.logger.Warn("dropping invalid order message", slog.String("subject", msg.Subject), log.ErrAttr(err))
		s.respond(msg, Reply{ID: m.ID, Error: err.Error()})
		return
	}

	s.respond(msg, Reply{ID: order.ID, Status: "queued"})
}

func (s *Subscriber) respond(msg *nats.Msg, reply Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := s.marshaler(reply)
	if err != nil {
		s.logger.Error("failed to encode reply", log.ErrAttr(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", slog.String("reply", msg.Reply), log.ErrAttr(err))
	}
}
