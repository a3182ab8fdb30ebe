package task

import "context"

// RecoveryHandler 定义了在动作调用不可重试地失败时的降级策略。
type RecoveryHandler interface {
	// Recover 返回的结果会作为降级输出写入任务；返回 nil 则按失败流程处理。
	Recover(ctx context.Context, task *Task, cause error) (*ExecutionResult, error)
}

// RecoveryFunc 允许用普通函数实现 RecoveryHandler。
type RecoveryFunc func(ctx context.Context, task *Task, cause error) (*ExecutionResult, error)

// Recover 实现 RecoveryHandler。
func (f RecoveryFunc) Recover(ctx context.Context, task *Task, cause error) (*ExecutionResult, error) {
	return f(ctx, task, cause)
}
