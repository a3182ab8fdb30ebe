package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列的连接参数，Address 可以是逗号分隔的集群节点。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 把 JSON 编码的 Envelope 存放在 Redis list 中，LPUSH 入队、BRPOP 出队。
type RedisQueue struct {
	client redis.UniversalClient
	queue  string
	wait   time.Duration
}

// NewRedisQueue 连接 Redis 并确认可用。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    strings.Split(cfg.Address, ","),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败")
	}
	return NewRedisQueueWithClient(client, cfg.Queue, cfg.BlockWait), nil
}

// NewRedisQueueWithClient 复用已有客户端；队列名默认 ankrmcp:tasks。
func NewRedisQueueWithClient(client redis.UniversalClient, queue string, wait time.Duration) *RedisQueue {
	if queue == "" {
		queue = "ankrmcp:tasks"
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{client: client, queue: queue, wait: wait}
}

// Publish 编码并推入队列头部。
func (q *RedisQueue) Publish(ctx context.Context, env Envelope) error {
	body, err := env.encode()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "编码任务消息失败")
	}
	if err := q.client.LPush(ctx, q.queue, body).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 发布任务失败")
	}
	return nil
}

// Consume 阻塞读取队列尾部。无法解析的消息被丢弃并记录，handler 出错的消息推回队尾。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	group, ctx := errgroup.WithContext(ctx)
	for range max(workerCount, 1) {
		group.Go(func() error {
			for ctx.Err() == nil {
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				switch {
				case errors.Is(err, redis.Nil):
					continue
				case errors.Is(err, context.Canceled), errors.Is(err, redis.ErrClosed):
					return err
				case err != nil:
					return fmt.Errorf("Redis 取任务失败: %w", err)
				case len(values) != 2:
					continue
				}
				env, err := decodeEnvelope([]byte(values[1]))
				if err != nil {
					logger.L().Warn("丢弃无法解析的任务消息", slog.String("queue", q.queue), slog.Any("error", err))
					continue
				}
				if err := handler(ctx, env); err != nil {
					_ = q.client.RPush(context.WithoutCancel(ctx), q.queue, values[1]).Err()
				}
			}
			return ctx.Err()
		})
	}
	return group.Wait()
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)
