package task

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	xerrors "OpenMCP-Ankr/internal/errors"
)

// Envelope 是在队列中流转的任务消息，携带动作名与重试节奏。
type Envelope struct {
	TaskID  string `json:"task_id"`
	Action  string `json:"action,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	// NotBefore 为毫秒时间戳，早于该时间不执行。
	NotBefore int64 `json:"not_before,omitempty"`
}

// Delay 返回距离可执行时间的剩余等待。
func (e Envelope) Delay(now time.Time) time.Duration {
	if e.NotBefore <= 0 {
		return 0
	}
	wait := time.UnixMilli(e.NotBefore).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func (e Envelope) encode() ([]byte, error) {
	return json.Marshal(e)
}

// decodeEnvelope 解析队列消息；旧版本投递的纯任务 ID 同样被接受。
func decodeEnvelope(body []byte) (Envelope, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return Envelope{}, xerrors.New(xerrors.CodeQueueFailure, "队列消息为空")
	}
	if !strings.HasPrefix(raw, "{") {
		return Envelope{TaskID: raw}, nil
	}
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeQueueFailure, err, "解析队列消息失败")
	}
	if env.TaskID == "" {
		return Envelope{}, xerrors.New(xerrors.CodeQueueFailure, "队列消息缺少 task_id")
	}
	return env, nil
}

// Handler 处理一条队列消息，返回错误时由队列负责重新投递。
type Handler func(ctx context.Context, env Envelope) error

// Producer 投递任务消息。
type Producer interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Consumer 以固定数量的工作协程消费任务消息。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时是 Producer 与 Consumer。
type Queue interface {
	Producer
	Consumer
}

// Backoff 根据已尝试次数计算下一次重试前的等待。
type Backoff func(attempt int) time.Duration

// ExponentialBackoff 从 base 开始逐次翻倍，不超过 limit；base 非正时不等待。
func ExponentialBackoff(base, limit time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if base <= 0 {
			return 0
		}
		if attempt < 1 {
			attempt = 1
		}
		wait := base
		for i := 1; i < attempt; i++ {
			wait *= 2
			if limit > 0 && wait >= limit {
				return limit
			}
		}
		if limit > 0 && wait > limit {
			return limit
		}
		return wait
	}
}
