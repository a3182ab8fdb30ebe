package metrics

import (
	"context"

	"OpenMCP-Ankr/internal/agent"
)

// ActionObserver 把处理管道的阶段与结果计入全局指标，实现 agent.Observer。
type ActionObserver struct{}

// StageReached 计数阶段转换。
func (ActionObserver) StageReached(action string, stage agent.Stage) {
	with(func(r *registry) { r.stages.add(1, action, string(stage)) })
}

// InvocationFinished 计数调用结果并记录耗时。
func (ActionObserver) InvocationFinished(_ context.Context, inv agent.Invocation) {
	with(func(r *registry) {
		r.invocations.add(1, inv.Action, inv.Outcome)
		r.latency.observe(inv.Duration.Seconds(), inv.Action)
	})
}

// InvocationCount 返回某个动作在指定结果下的累计次数。
func InvocationCount(action, outcome string) uint64 {
	var n uint64
	with(func(r *registry) { n = r.invocations.get(action, outcome) })
	return n
}

// ObserveTaskRetry 记录一次异步任务因上游可重试错误而重新排队。
func ObserveTaskRetry(action string) {
	with(func(r *registry) { r.taskRetries.add(1, action) })
}

// TaskRetryCount 返回某个动作的累计重试次数。
func TaskRetryCount(action string) uint64 {
	var n uint64
	with(func(r *registry) { n = r.taskRetries.get(action) })
	return n
}

var _ agent.Observer = ActionObserver{}
