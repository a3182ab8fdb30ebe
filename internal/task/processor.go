package task

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"OpenMCP-Ankr/internal/agent"
	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/observability/alerting"
	"OpenMCP-Ankr/internal/observability/metrics"
	"OpenMCP-Ankr/pkg/logger"
)

// Executor 是处理器对 Agent 的依赖，*agent.Agent 满足该接口。
type Executor interface {
	Invoke(ctx context.Context, name string, msg agent.Message) (*agent.Result, error)
}

// 告警事件的 stage 取值。
const (
	stageClaim        = "claim"
	stageRetry        = "retry"
	stageTerminal     = "terminal"
	stageNonRetryable = "non_retryable"
	stageDegraded     = "degraded"
	stageCompensate   = "compensate"
)

// Processor 从队列取出任务交给 Agent 执行，并负责重试、降级与告警。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
	backoff     Backoff
}

type ProcessorOption func(*Processor)

// WithProcessorLogger 指定调试日志输出，默认使用全局 logger。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// WithWorkerCount 设置并发消费的协程数，非正数忽略。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 为不可重试的失败配置降级结果。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) { p.recovery = handler }
}

func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerter = dispatcher }
}

// WithRetryBackoff 设置重投前的等待策略，nil 表示立即重投。
func WithRetryBackoff(backoff Backoff) ProcessorOption {
	return func(p *Processor) { p.backoff = backoff }
}

// NewProcessor 构造 Processor，默认单协程，重试间隔从 500ms 翻倍至 30s。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		backoff:     ExponentialBackoff(500*time.Millisecond, 30*time.Second),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 阻塞消费队列直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return logger.L()
}

// waitUntilDue 阻塞到消息的 NotBefore，ctx 结束时返回其错误。
func waitUntilDue(ctx context.Context, env Envelope) error {
	delay := env.Delay(time.Now())
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// requeue 按退避策略重新投递，Attempt 取任务已执行的次数。
func (p *Processor) requeue(ctx context.Context, task *Task) error {
	env := Envelope{TaskID: task.ID, Action: task.Action, Attempt: task.Attempts}
	if p.backoff != nil {
		if delay := p.backoff(task.Attempts); delay > 0 {
			env.NotBefore = time.Now().Add(delay).UnixMilli()
		}
	}
	if err := p.producer.Publish(ctx, env); err != nil {
		return xerrors.Wrap(CodeTaskPublish, err, fmt.Sprintf("任务 %s 重投失败", task.ID))
	}
	return nil
}

// retryLater 在结果无法落库时把任务退回 pending 并重投，不计入重试指标。
func (p *Processor) retryLater(ctx context.Context, task *Task, code xerrors.Code, cause error) error {
	if err := p.store.MarkFailed(ctx, task.ID, code, cause.Error(), false); err != nil {
		logger.L().Error("回写失败状态出错", slog.String("task_id", task.ID), slog.Any("error", err))
		return err
	}
	return p.requeue(ctx, task)
}

func (p *Processor) handle(ctx context.Context, env Envelope) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	if err := waitUntilDue(ctx, env); err != nil {
		return err
	}

	task, err := p.store.Claim(ctx, env.TaskID)
	switch {
	case stdErrors.Is(err, ErrTaskNotFound), stdErrors.Is(err, ErrTaskCompleted), stdErrors.Is(err, ErrTaskExhausted):
		p.log().Debug("跳过任务", "task_id", env.TaskID, "action", env.Action, "reason", err.Error())
		return nil
	case err != nil:
		logger.L().Error("领取任务失败", slog.String("task_id", env.TaskID), slog.Any("error", err))
		p.emitAlert(ctx, &Task{ID: env.TaskID, Action: env.Action}, CodeTaskProcessing, err, stageClaim)
		return err
	}

	result, execErr := p.executor.Invoke(ctx, task.Action, agent.Message{
		ID:     task.ID,
		UserID: task.UserID,
		RoomID: task.RoomID,
		Text:   task.Input,
	})
	if execErr != nil {
		return p.fail(ctx, task, result, execErr)
	}

	if err := p.store.MarkSucceeded(ctx, task.ID, toExecutionResult(result)); err != nil {
		logger.L().Error("标记任务成功状态失败", slog.String("task_id", task.ID), slog.Any("error", err))
		if retryErr := p.retryLater(ctx, task, CodeTaskProcessing, err); retryErr != nil {
			return retryErr
		}
		logger.Audit().Warn("任务标记成功失败后重试", "task_id", task.ID, "action", task.Action, "error", err.Error())
		return nil
	}
	logger.Audit().Info("任务执行成功", "task_id", task.ID, "action", task.Action, "attempts", task.Attempts)
	return nil
}

// fail 处理一次失败的调用：不可重试时先尝试降级，否则记录失败并按需重投。
func (p *Processor) fail(ctx context.Context, task *Task, delivered *agent.Result, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := isRetryable(execErr)
	terminal := !retryable || task.Attempts >= task.MaxRetries

	if !retryable {
		if handled, err := p.degrade(ctx, task, code, delivered, execErr); handled {
			return err
		}
	}

	// 回调中的失败文本比内部错误更适合展示给调用方。
	lastError := execErr.Error()
	if delivered != nil && delivered.Text != "" {
		lastError = delivered.Text
	}
	if err := p.store.MarkFailed(ctx, task.ID, code, lastError, terminal); err != nil {
		logger.L().Error("标记任务失败状态出错", slog.String("task_id", task.ID), slog.Any("error", err))
		return err
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", task.ID),
		slog.String("action", task.Action),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	if xerrors.ShouldAlert(execErr) || (retryable && terminal) {
		p.emitAlert(ctx, task, code, execErr, failureStage(retryable, terminal))
	}
	if terminal {
		return nil
	}
	if err := p.requeue(ctx, task); err != nil {
		return err
	}
	metrics.ObserveTaskRetry(task.Action)
	p.log().Debug("任务已重新排队", "task_id", task.ID, "attempts", task.Attempts)
	return nil
}

func failureStage(retryable, terminal bool) string {
	switch {
	case !retryable:
		return stageNonRetryable
	case terminal:
		return stageTerminal
	default:
		return stageRetry
	}
}

// degrade 调用 RecoveryHandler；handled 为 false 时按普通失败继续处理。
func (p *Processor) degrade(ctx context.Context, task *Task, code xerrors.Code, delivered *agent.Result, execErr error) (handled bool, err error) {
	if p.recovery == nil {
		return false, nil
	}
	fallback, recErr := p.recovery.Recover(ctx, task, execErr)
	if recErr != nil {
		wrapped := xerrors.Wrap(CodeTaskCompensate, recErr, "任务补偿失败")
		logger.L().Error("执行补偿逻辑失败", slog.String("task_id", task.ID), slog.Any("error", wrapped))
		p.emitAlert(ctx, task, CodeTaskCompensate, wrapped, stageCompensate)
		return false, nil
	}
	if fallback == nil {
		return false, nil
	}
	if fallback.Text == "" && delivered != nil {
		fallback.Text = delivered.Text
	}
	if err := p.store.MarkSucceeded(ctx, task.ID, *fallback); err != nil {
		logger.L().Error("记录降级结果失败", slog.String("task_id", task.ID), slog.Any("error", err))
		return true, p.retryLater(ctx, task, code, err)
	}
	logger.Audit().Warn("任务降级完成", "task_id", task.ID, "action", task.Action, "text", fallback.Text)
	p.emitAlert(ctx, task, code, execErr, stageDegraded)
	return true, nil
}

// isRetryable 在统一错误码的基础上，把上游限流与 5xx 视为可重试。
func isRetryable(err error) bool {
	if xe, ok := xerrors.From(err); ok && xe.Code() == xerrors.CodeAPI {
		status := xe.StatusCode()
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}
	return xerrors.RetryableError(err)
}

func toExecutionResult(result *agent.Result) ExecutionResult {
	if result == nil {
		return ExecutionResult{}
	}
	record := ExecutionResult{Text: result.Text, Request: cloneMetadata(result.Payload.Request)}
	if result.Payload.Response != nil {
		if encoded, err := json.Marshal(result.Payload.Response); err == nil {
			record.Response = encoded
		}
	}
	return record
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:       code,
		Message:    attrs.Message,
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		Action:     task.Action,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   map[string]string{"stage": stage},
		OccurredAt: time.Now(),
	}
	if cause != nil {
		event.Message = cause.Error()
	}
	if xe, ok := xerrors.From(cause); ok {
		if status := xe.StatusCode(); status > 0 {
			event.Metadata[xerrors.MetadataStatusCode] = strconv.Itoa(status)
		}
		if method := xe.Method(); method != "" {
			event.Metadata[xerrors.MetadataMethod] = method
		}
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败", slog.String("task_id", task.ID), slog.String("stage", stage), slog.Any("error", err))
	}
}
