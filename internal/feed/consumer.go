package feed

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"orderbookdb/internal/config"
	"orderbookdb/internal/util/backoff"
)

// reader 交易流读取端，由 *kafka.Reader 实现
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer Kafka 交易流消费者
// 消息处理成功（或确认无法解析）后才提交位点。
type Consumer struct {
	r       reader
	handler *Handler
	bo      *backoff.Backoff
	logger  *zap.Logger
}

// NewConsumer 按配置创建消费者
func NewConsumer(cfg config.FeedConfig, handler *Handler, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	bo := backoff.New(
		time.Duration(cfg.BackoffBaseMs)*time.Millisecond,
		time.Duration(cfg.BackoffMaxMs)*time.Millisecond,
		0.2,
	)
	return newConsumer(r, handler, bo, logger)
}

func newConsumer(r reader, handler *Handler, bo *backoff.Backoff, logger *zap.Logger) *Consumer {
	return &Consumer{r: r, handler: handler, bo: bo, logger: logger.Named("consumer")}
}

// Run 消费直到 ctx 取消
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("开始消费交易流")
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("读取交易流失败", zap.Int("attempt", c.bo.Attempt()+1), zap.Error(err))
			if c.bo.Wait(ctx) != nil {
				return nil
			}
			continue
		}
		c.bo.Reset()

		if c.handle(ctx, msg) != nil {
			return nil
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// 后续位点的提交会覆盖本条
			c.logger.Warn("提交位点失败", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle 处理一条消息，存储错误原地重试
// 格式错误记录后跳过。只在 ctx 取消时返回错误。
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	for {
		err := c.handler.Handle(msg.Value)
		if err == nil {
			c.bo.Reset()
			return nil
		}
		if errors.Is(err, ErrBadMessage) {
			c.logger.Warn("跳过无法解析的消息",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return nil
		}

		c.logger.Error("处理交易流消息失败，稍后重试",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", c.bo.Attempt()+1),
			zap.Error(err),
		)
		if err := c.bo.Wait(ctx); err != nil {
			return err
		}
	}
}

// Close 关闭读取端
func (c *Consumer) Close() error {
	return c.r.Close()
}
