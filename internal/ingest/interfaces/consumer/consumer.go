// Package consumer reads events off Kafka and drives the ingestion
// pipeline. Invalid payloads go straight to the dead letter queue;
// transient failures retry in place before giving up to the DLQ.
package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/stdin/venezuelawatch-sub000/internal/ingest/application"
	"github.com/stdin/venezuelawatch-sub000/pkg/logger"
	"github.com/stdin/venezuelawatch-sub000/pkg/mq"
	"github.com/stdin/venezuelawatch-sub000/pkg/utils"
)

const (
	processAttempts  = 3
	processRetryBase = 200 * time.Millisecond
)

// EventConsumer is the Kafka ingestion loop.
type EventConsumer struct {
	consumer *mq.KafkaConsumer
	dlq      *mq.DeadLetterQueue
	pipeline *application.Pipeline
}

// NewEventConsumer creates an EventConsumer.
func NewEventConsumer(consumer *mq.KafkaConsumer, dlq *mq.DeadLetterQueue, pipeline *application.Pipeline) *EventConsumer {
	return &EventConsumer{consumer: consumer, dlq: dlq, pipeline: pipeline}
}

// Start consumes until ctx is cancelled.
func (c *EventConsumer) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *EventConsumer) run(ctx context.Context) {
	logger.Info(ctx, "Event consumer started")
	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Event consumer stopped")
				return
			}
			logger.Error(ctx, "Failed to read event message", "error", err)
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *EventConsumer) handle(ctx context.Context, msg *mq.Message) {
	var payload application.EventPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		logger.Error(ctx, "Undecodable event message",
			"offset", msg.Offset,
			"error", err,
		)
		c.deadLetter(ctx, msg, "undecodable payload", err)
		return
	}

	var invalidErr error
	err := utils.Retry(processAttempts, processRetryBase, func() error {
		processErr := c.pipeline.Process(ctx, &payload)
		if errors.Is(processErr, application.ErrInvalidPayload) {
			// Permanently invalid, retrying cannot help.
			invalidErr = processErr
			return nil
		}
		return processErr
	})
	if invalidErr != nil {
		logger.Warn(ctx, "Invalid event payload",
			"event_id", payload.EventID,
			"error", invalidErr,
		)
		c.deadLetter(ctx, msg, "invalid payload", invalidErr)
		return
	}
	if err != nil {
		logger.Error(ctx, "Event processing failed after retries",
			"event_id", payload.EventID,
			"error", err,
		)
		c.deadLetter(ctx, msg, "processing failed", err)
	}
}

func (c *EventConsumer) deadLetter(ctx context.Context, msg *mq.Message, reason string, cause error) {
	if err := c.dlq.Send(ctx, msg, reason, cause); err != nil {
		logger.Error(ctx, "Failed to dead-letter event message",
			"offset", msg.Offset,
			"reason", reason,
			"error", err,
		)
	}
}
