package task

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	xerrors "OpenMCP-Ankr/internal/errors"
)

// MemoryQueue 是进程内的有界队列，用于单机部署与测试。处理失败的消息不会重投，
// 重试完全由 Processor 决定。
type MemoryQueue struct {
	ch        chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue 创建容量为 size 的队列，size 非正时取 64。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan Envelope, size), done: make(chan struct{})}
}

func (q *MemoryQueue) closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Publish 投递消息，队列已满时阻塞直到 ctx 结束。
func (q *MemoryQueue) Publish(ctx context.Context, env Envelope) error {
	if env.TaskID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "task_id 不能为空")
	}
	if q.closed() {
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	}
	select {
	case q.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	}
}

// Consume 运行 workerCount 个协程，直到 ctx 取消或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	group, ctx := errgroup.WithContext(ctx)
	for range max(workerCount, 1) {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-q.done:
					return nil
				case env := <-q.ch:
					_ = handler(ctx, env)
				}
			}
		})
	}
	return group.Wait()
}

// Close 停止所有消费协程，可重复调用。
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
