package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer はKafkaトピックを購読してHandlerへ渡す。
type Consumer struct {
	reader  *kafka.Reader
	handler *Handler
	logger  *zap.Logger
}

// NewConsumer は新しいConsumerを生成する。
func NewConsumer(brokers []string, topic, groupID string, handler *Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		handler: handler,
		logger:  logger,
	}
}

// Run はctxがキャンセルされるまでメッセージを読み続ける。
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.logger.Error("kafka read failed", zap.Error(err))
			continue
		}

		c.handler.HandleMessage(ctx, string(m.Key), m.Value)
	}
}

// Close はリーダーを閉じる。
func (c *Consumer) Close() error {
	return c.reader.Close()
}
