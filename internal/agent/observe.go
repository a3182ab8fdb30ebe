package agent

import (
	"context"
	"time"
)

// Stage 标识处理管道中的一个阶段。
type Stage string

const (
	StageStart           Stage = "start"
	StageConfigLoaded    Stage = "config_loaded"
	StageStateComposed   Stage = "state_composed"
	StagePromptComposed  Stage = "prompt_composed"
	StageParamsExtracted Stage = "params_extracted"
	StageValidated       Stage = "validated"
	StageAPIInvoked      Stage = "api_invoked"
	StageFormatted       Stage = "formatted"
	StageDelivered       Stage = "delivered"
	StageFailed          Stage = "failed"
)

// 调用结果的取值。
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// Invocation 汇总一次动作调用，用于指标与历史记录。
type Invocation struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Method    string         `json:"method"`
	RoomID    string         `json:"room_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Input     string         `json:"input"`
	Request   map[string]any `json:"request,omitempty"`
	Text      string         `json:"text"`
	Outcome   string         `json:"outcome"`
	LastStage Stage          `json:"last_stage"`
	ErrorCode string         `json:"error_code,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
	CreatedAt int64          `json:"created_at"`
}

// Observer 接收管道阶段与调用结束事件。
type Observer interface {
	StageReached(action string, stage Stage)
	InvocationFinished(ctx context.Context, inv Invocation)
}
