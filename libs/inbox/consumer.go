package inbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/libs/kafkax"
)

// Handler runs in the same transaction that records the event in the inbox,
// so a failed handler leaves the event unclaimed. The consumer retries a
// failed message until it succeeds; wrap the error with backoff.Permanent
// to log and skip it instead.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

// MessageReader is the part of *kafka.Reader the consumer needs. Offsets
// are committed explicitly, only after a message was handled.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader    MessageReader
	pool      db.Querier
	logger    *slog.Logger
	inbox     *Repository
	handler   Handler
	retryBase time.Duration
	retryMax  time.Duration
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topics  []string
}

func NewConsumer(logger *slog.Logger, pool db.Querier, inboxRepo *Repository, cfg ConsumerConfig, handler Handler) *Consumer {
	return NewConsumerWithReader(kafkax.NewReader(cfg.Brokers, cfg.GroupID, cfg.Topics...), logger, pool, inboxRepo, handler)
}

func NewConsumerWithReader(reader MessageReader, logger *slog.Logger, pool db.Querier, inboxRepo *Repository, handler Handler) *Consumer {
	return &Consumer{
		reader:    reader,
		pool:      pool,
		logger:    logger,
		inbox:     inboxRepo,
		handler:   handler,
		retryBase: time.Second,
		retryMax:  time.Minute,
	}
}

// Run fetches, handles and commits one message at a time. A message whose
// handler fails is retried with backoff and its offset stays uncommitted,
// so a restart redelivers it.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if !c.handleWithRetry(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

// handleWithRetry returns false when ctx ends before msg was handled.
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxInterval = c.retryMax
	for {
		err := c.Handle(ctx, msg)
		if err == nil {
			return true
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			c.logger.Error("event skipped", "err", err, "topic", msg.Topic, "offset", msg.Offset)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		wait := b.NextBackOff()
		c.logger.Warn("event will be retried", "topic", msg.Topic, "offset", msg.Offset, "retry_in", wait)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

var errDuplicate = errors.New("duplicate event")

// Handle claims the message in the inbox and runs the handler. Duplicates
// are skipped.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	err := db.InTx(ctxSpan, c.pool, func(tx pgx.Tx) error {
		ok, err := c.inbox.Record(ctxSpan, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !ok {
			return errDuplicate
		}
		return c.handler(ctxSpan, tx, msg)
	})
	switch {
	case errors.Is(err, errDuplicate):
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	case err != nil:
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		return err
	}
	return nil
}
