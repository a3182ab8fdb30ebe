package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"OpenMCP-Ankr/internal/action"
	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/pkg/logger"
)

const defaultMaxRetries = 3

// Service 是 API 与 CLI 使用的任务入口：提交、查询与统计。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造任务服务，maxRetries 非正时取 3。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	return &Service{store: store, producer: producer, maxRetries: positiveOr(maxRetries, defaultMaxRetries)}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (s *Service) ready(needProducer bool) error {
	if s.store == nil || (needProducer && s.producer == nil) {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}
	return nil
}

// Submit 校验动作名后落库并入队。带 ID 的重复提交直接返回已有任务，不会再次入队。
func (s *Service) Submit(ctx context.Context, req Request) (*Task, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, xerrors.New(CodeTaskValidation, "消息内容不能为空")
	}
	descriptor, ok := action.Lookup(req.Action)
	if !ok {
		return nil, xerrors.New(CodeTaskValidation, "未知的动作: "+req.Action)
	}
	if err := s.ready(true); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	} else if existing, found, err := s.lookup(ctx, id); err != nil || found {
		return existing, err
	}

	task := &Task{
		ID:         id,
		Action:     descriptor.Name,
		Input:      req.Input,
		RoomID:     req.RoomID,
		UserID:     req.UserID,
		Metadata:   cloneMetadata(req.Metadata),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, task); err != nil {
		// 并发提交同一 ID 时以先落库者为准。
		if xerrors.Is(err, CodeTaskConflict) {
			if existing, found, getErr := s.lookup(ctx, id); getErr != nil || found {
				return existing, getErr
			}
		}
		return nil, err
	}

	if err := s.producer.Publish(ctx, Envelope{TaskID: id, Action: task.Action}); err != nil {
		failure := xerrors.Wrap(CodeTaskPublish, err, "发布任务到队列失败")
		logger.L().Error("任务入队失败", slog.String("task_id", id), slog.Any("error", err))
		if markErr := s.store.MarkFailed(ctx, id, CodeTaskPublish, failure.Error(), true); markErr != nil {
			logger.L().Warn("标记入队失败的任务出错", slog.String("task_id", id), slog.Any("error", markErr))
		}
		return nil, failure
	}
	logger.Audit().Info("任务入队成功",
		slog.String("task_id", id),
		slog.String("action", task.Action),
		slog.String("room_id", task.RoomID),
		slog.Int("max_retries", task.MaxRetries),
	)
	return task, nil
}

// lookup 区分"不存在"与真正的存储错误。
func (s *Service) lookup(ctx context.Context, id string) (*Task, bool, error) {
	task, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		return task, true, nil
	case stdErrors.Is(err, ErrTaskNotFound):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Get 返回单个任务。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if err := s.ready(false); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// List 按过滤条件列出任务，最近更新的在前。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if err := s.ready(false); err != nil {
		return nil, err
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 按与 List 相同的过滤条件汇总任务数量。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if err := s.ready(false); err != nil {
		return TaskStats{}, err
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 关闭存储与生产者，两者的错误都会返回。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}

// WaitUntilCompleted 轮询直到任务进入终态或 ctx 结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil || task.Status.Terminal() {
			return task, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
