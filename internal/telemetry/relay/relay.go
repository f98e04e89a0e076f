// Package relay forwards telemetry events from a Kafka topic to Loki.
package relay

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader is the subset of *kafka.Reader the relay consumes from.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Pusher receives each message value.
type Pusher interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

const pushTimeout = 10 * time.Second

// NewReader builds the consumer-group reader used by the worker.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
}

// Run copies messages from r to p until ctx is cancelled. Read and push failures are logged
// and skipped; a failed push is not retried. Read errors back off for one second.
func Run(ctx context.Context, r Reader, p Pusher, logger *zap.Logger) {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("relay: stopped")
				return
			}
			logger.Warn("relay: kafka read error", zap.Error(err))
			select {
			case <-ctx.Done():
				logger.Info("relay: stopped")
				return
			case <-time.After(time.Second):
			}
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		if err := p.PushEventJSON(pushCtx, msg.Value); err != nil {
			logger.Warn("relay: loki push failed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
		cancel()
	}
}
