package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"OpenMCP-Ankr/internal/action"
	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/llm"
	"OpenMCP-Ankr/internal/storage/mysql"
)

// HandlerFunc 是宿主调用动作的统一签名。
type HandlerFunc func(ctx context.Context, rt Runtime, msg Message, state State, opts Options, callback Callback) (bool, error)

// Action 是向宿主注册的动作清单项。
type Action struct {
	Name        string
	Similes     []string
	Description string
	Examples    []string
	Validate    func(ctx context.Context, rt Runtime, msg Message) bool
	Handler     HandlerFunc
}

// Agent 持有全部动作处理器，是系统的业务核心。
type Agent struct {
	runtime  Runtime
	handlers []*Handler
	history  mysql.InvocationRepository
	logger   *slog.Logger
}

// WithHistory 配置调用历史仓库，每次调用结束后写入一条记录。
func WithHistory(repo mysql.InvocationRepository) Option {
	return func(s *settings) {
		s.history = repo
	}
}

// New 创建一个 Agent，并为每个动作构建处理器。
func New(rt Runtime, extractor llm.Extractor, opts ...Option) *Agent {
	// 解析公共配置。
	s := newSettings(opts)

	ag := &Agent{
		runtime: rt,
		history: s.history,
		logger:  s.logger,
	}
	// 历史记录作为观察者挂到每个处理器上。
	if s.history != nil {
		s.observers = append(s.observers, &historyRecorder{repo: s.history, settings: &s})
	}

	for _, d := range action.All() {
		ag.handlers = append(ag.handlers, newHandler(d, extractor, s))
	}
	return ag
}

// Runtime 返回 Agent 使用的宿主运行时。
func (a *Agent) Runtime() Runtime {
	return a.runtime
}

// Handler 按动作名或别名查找处理器。
func (a *Agent) Handler(name string) (*Handler, bool) {
	for _, h := range a.handlers {
		if h.descriptor.Matches(name) {
			return h, true
		}
	}
	return nil, false
}

// Actions 返回动作清单，顺序与 action.All 一致。
func (a *Agent) Actions() []Action {
	actions := make([]Action, 0, len(a.handlers))
	for _, h := range a.handlers {
		d := h.descriptor
		actions = append(actions, Action{
			Name:        d.Name,
			Similes:     append([]string(nil), d.Similes...),
			Description: d.Description,
			Examples:    append([]string(nil), d.Examples...),
			Validate:    func(context.Context, Runtime, Message) bool { return true },
			Handler:     h.Handle,
		})
	}
	return actions
}

// Invoke 以宿主运行时执行一次动作，并返回回调收到的结果。
func (a *Agent) Invoke(ctx context.Context, name string, msg Message) (*Result, error) {
	// 验证必要的组件是否已配置。
	if a.runtime == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置宿主运行时")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}

	h, ok := a.Handler(name)
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "未找到动作: "+name)
	}

	// 回调最多触发一次，这里只保留最后收到的结果。
	var result Result
	delivered := false
	_, err := h.Handle(ctx, a.runtime, msg, nil, nil, func(r Result) {
		result = r
		delivered = true
	})
	if !delivered {
		return nil, err
	}
	return &result, err
}

// ListHistory 获取最近的调用记录。
func (a *Agent) ListHistory(ctx context.Context, limit int) ([]Invocation, error) {
	if a.history == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置调用历史仓库")
	}

	// 查询最近的调用记录。
	records, err := a.history.ListLatest(ctx, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询调用记录失败")
	}

	// 转换为 Invocation 列表。
	results := make([]Invocation, 0, len(records))
	for _, record := range records {
		inv, err := fromRecord(record)
		if err != nil {
			// 请求参数损坏时仍返回该记录，只丢弃请求字段。
			a.logger.Warn("解析调用记录请求参数失败", "id", record.ID, "error", err)
		}
		results = append(results, inv)
	}
	return results, nil
}

// historyRecorder 把调用结果写入历史仓库，写入失败只记日志。
type historyRecorder struct {
	repo     mysql.InvocationRepository
	settings *settings
}

func (h *historyRecorder) StageReached(string, Stage) {}

func (h *historyRecorder) InvocationFinished(ctx context.Context, inv Invocation) {
	record := toRecord(inv)
	if err := h.repo.Save(context.WithoutCancel(ctx), record); err != nil {
		h.settings.logger.Warn("保存调用记录失败", "id", inv.ID, "error", err)
	}
}

func toRecord(inv Invocation) mysql.InvocationRecord {
	request := ""
	if len(inv.Request) > 0 {
		if encoded, err := json.Marshal(inv.Request); err == nil {
			request = string(encoded)
		}
	}
	return mysql.InvocationRecord{
		ID:         inv.ID,
		Action:     inv.Action,
		Method:     inv.Method,
		RoomID:     inv.RoomID,
		UserID:     inv.UserID,
		Input:      inv.Input,
		Request:    request,
		Text:       inv.Text,
		Outcome:    inv.Outcome,
		LastStage:  string(inv.LastStage),
		ErrorCode:  inv.ErrorCode,
		Error:      inv.Error,
		DurationMs: inv.Duration.Milliseconds(),
		CreatedAt:  inv.CreatedAt,
	}
}

func fromRecord(record mysql.InvocationRecord) (Invocation, error) {
	var (
		request map[string]any
		err     error
	)
	if record.Request != "" {
		if err = json.Unmarshal([]byte(record.Request), &request); err != nil {
			request = nil
		}
	}
	return Invocation{
		ID:        record.ID,
		Action:    record.Action,
		Method:    record.Method,
		RoomID:    record.RoomID,
		UserID:    record.UserID,
		Input:     record.Input,
		Request:   request,
		Text:      record.Text,
		Outcome:   record.Outcome,
		LastStage: Stage(record.LastStage),
		ErrorCode: record.ErrorCode,
		Error:     record.Error,
		Duration:  time.Duration(record.DurationMs) * time.Millisecond,
		CreatedAt: record.CreatedAt,
	}, err
}
