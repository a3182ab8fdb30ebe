package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/pkg/logger"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 以 JSON 消息投递 Envelope，消息头 action 便于按动作路由与排查。
type RabbitMQQueue struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	durable bool
}

// NewRabbitMQQueue 建立连接、设置 QoS 并声明队列，任一步失败都会释放已打开的资源。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	if cfg.Queue == "" {
		cfg.Queue = "ankrmcp.tasks"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	q := &RabbitMQQueue{conn: conn, queue: cfg.Queue, durable: cfg.Durable}
	fail := func(err error, msg string) (*RabbitMQQueue, error) {
		_ = q.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, msg)
	}
	if q.ch, err = conn.Channel(); err != nil {
		return fail(err, "创建 RabbitMQ channel 失败")
	}
	if cfg.Prefetch > 0 {
		if err := q.ch.Qos(cfg.Prefetch, 0, false); err != nil {
			return fail(err, "设置 RabbitMQ QOS 失败")
		}
	}
	if _, err := q.ch.QueueDeclare(cfg.Queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		return fail(err, "声明 RabbitMQ 队列失败")
	}
	return q, nil
}

func (q *RabbitMQQueue) publishing(env Envelope) (amqp.Publishing, error) {
	body, err := env.encode()
	if err != nil {
		return amqp.Publishing{}, err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    env.TaskID,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{"attempt": int32(env.Attempt)},
		Body:         body,
	}
	if env.Action != "" {
		msg.Headers["action"] = env.Action
	}
	if q.durable {
		msg.DeliveryMode = amqp.Persistent
	}
	return msg, nil
}

// Publish 发布到默认交换机，持久化队列使用持久化消息。
func (q *RabbitMQQueue) Publish(ctx context.Context, env Envelope) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	msg, err := q.publishing(env)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "编码任务消息失败")
	}
	if err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, msg); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "RabbitMQ 发布任务失败")
	}
	return nil
}

// Consume 手动确认：成功 ack，handler 出错时重新入队，无法解析的消息直接丢弃。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	deliveries, err := q.ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	for range max(workerCount, 1) {
		group.Go(func() error {
			for {
				var d amqp.Delivery
				select {
				case <-ctx.Done():
					return ctx.Err()
				case delivery, ok := <-deliveries:
					if !ok {
						return errors.New("RabbitMQ 投递通道已关闭")
					}
					d = delivery
				}
				env, err := decodeEnvelope(d.Body)
				if err != nil {
					logger.L().Warn("丢弃无法解析的任务消息",
						slog.String("queue", q.queue),
						slog.String("message_id", d.MessageId),
						slog.Any("error", err))
					_ = d.Nack(false, false)
					continue
				}
				if err := handler(ctx, env); err != nil {
					_ = d.Nack(false, true)
					continue
				}
				_ = d.Ack(false)
			}
		})
	}
	return group.Wait()
}

// Close 依次关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ Queue = (*RabbitMQQueue)(nil)
