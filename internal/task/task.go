package task

import (
	"encoding/json"
	"net/http"

	xerrors "OpenMCP-Ankr/internal/errors"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal 表示任务不会再被执行。
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ExecutionResult 保存一次动作调用交付给回调的内容。
type ExecutionResult struct {
	Text     string          `json:"text"`
	Request  map[string]any  `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Task 描述了排队执行的动作调用：动作名加一条聊天消息。
type Task struct {
	ID         string           `json:"id"`
	Action     string           `json:"action"`
	Input      string           `json:"input"`
	RoomID     string           `json:"room_id,omitempty"`
	UserID     string           `json:"user_id,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	Status     Status           `json:"status"`
	Attempts   int              `json:"attempts"`
	MaxRetries int              `json:"max_retries"`
	LastError  string           `json:"last_error,omitempty"`
	ErrorCode  string           `json:"error_code,omitempty"`
	Result     *ExecutionResult `json:"result,omitempty"`
	CreatedAt  int64            `json:"created_at"`
	UpdatedAt  int64            `json:"updated_at"`
}

// Request 是提交异步动作调用的参数。
type Request struct {
	ID       string         `json:"id,omitempty"`
	Action   string         `json:"action"`
	Input    string         `json:"input"`
	RoomID   string         `json:"room_id,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrTaskConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrTaskConflict = xerrors.New(CodeTaskConflict, "task conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrTaskCompleted 表示任务已经成功完成。
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "task already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrTaskExhausted 表示任务的重试次数已经耗尽。
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, "task retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
	CodeTaskCompensate xerrors.Code = "TASK_COMPENSATION_FAILED"
)

func init() {
	for code, attr := range map[xerrors.Code]xerrors.Attributes{
		CodeTaskNotFound:   {Message: "task not found", Severity: xerrors.SeverityInfo, HTTPStatus: http.StatusNotFound},
		CodeTaskConflict:   {Message: "task conflict", Severity: xerrors.SeverityWarning, HTTPStatus: http.StatusConflict},
		CodeTaskCompleted:  {Message: "task already completed", Severity: xerrors.SeverityInfo, HTTPStatus: http.StatusConflict},
		CodeTaskExhausted:  {Message: "task retries exhausted", Severity: xerrors.SeverityCritical, Alert: true, HTTPStatus: http.StatusConflict},
		CodeTaskValidation: {Message: "task validation failed", Severity: xerrors.SeverityInfo, HTTPStatus: http.StatusBadRequest},
		CodeTaskPublish:    {Message: "failed to publish task", Severity: xerrors.SeverityCritical, Retryable: true, Alert: true, HTTPStatus: http.StatusServiceUnavailable},
		CodeTaskProcessing: {Message: "task execution failed", Severity: xerrors.SeverityWarning, Retryable: true, Alert: true},
		CodeTaskCompensate: {Message: "task compensation failed", Severity: xerrors.SeverityCritical, Alert: true},
	} {
		xerrors.Register(code, attr)
	}
}

func cloneResult(result *ExecutionResult) *ExecutionResult {
	if result == nil {
		return nil
	}
	clone := *result
	clone.Request = cloneMetadata(result.Request)
	if result.Response != nil {
		clone.Response = append(json.RawMessage(nil), result.Response...)
	}
	return &clone
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
