package agent

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"OpenMCP-Ankr/internal/action"
	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/llm"
	"OpenMCP-Ankr/internal/schema"
	"OpenMCP-Ankr/internal/storage/mysql"
	"OpenMCP-Ankr/internal/web3/ankr"
	"OpenMCP-Ankr/pkg/logger"
)

// Payload 是回调中携带的结构化结果。
type Payload struct {
	Success  bool           `json:"success"`
	Request  map[string]any `json:"request,omitempty"`
	Response any            `json:"response,omitempty"`
	Error    error          `json:"-"`
}

// MarshalJSON 把错误展开为错误码与信息。
func (p Payload) MarshalJSON() ([]byte, error) {
	type alias Payload
	out := struct {
		alias
		Error *errorBody `json:"error,omitempty"`
	}{alias: alias(p)}
	if p.Error != nil {
		body := &errorBody{Code: string(xerrors.CodeOf(p.Error)), Message: p.Error.Error()}
		if xe, ok := xerrors.From(p.Error); ok {
			body.Message = xe.Message()
			body.Status = xe.StatusCode()
		}
		out.Error = body
	}
	return json.Marshal(out)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// Result 是交给回调的一次动作输出。
type Result struct {
	Text    string  `json:"text"`
	Payload Payload `json:"payload"`
}

// Callback 接收动作输出，每次调用最多触发一次。
type Callback func(Result)

// Options 是宿主透传的调用参数，目前未被使用。
type Options map[string]any

// APIFactory 根据 API Key 创建 Ankr 客户端。
type APIFactory func(apiKey string) (action.API, error)

type settings struct {
	defaultAPIKey  string
	baseURL        string
	apiTimeout     time.Duration
	httpClient     *http.Client
	newAPI         APIFactory
	extractTimeout time.Duration
	callTimeout    time.Duration
	modelClass     llm.ModelClass
	logger         *slog.Logger
	observers      []Observer
	history        mysql.InvocationRepository
}

// Option 定义 Handler 与 Agent 共用的可选配置。
type Option func(*settings)

// WithDefaultAPIKey 设置运行时与环境变量都缺失时使用的 API Key。
func WithDefaultAPIKey(key string) Option {
	return func(s *settings) {
		s.defaultAPIKey = key
	}
}

// WithAnkrBaseURL 覆盖 Ankr 多链入口，主要用于测试。
func WithAnkrBaseURL(baseURL string) Option {
	return func(s *settings) {
		s.baseURL = baseURL
	}
}

// WithAnkrTimeout 设置 Ankr HTTP 客户端的超时时间。
func WithAnkrTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.apiTimeout = timeout
	}
}

// WithHTTPClient 指定访问 Ankr 使用的 HTTP 客户端，插件宿主用它注入受限出口的客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// WithAPIFactory 替换 Ankr 客户端的构造方式。
func WithAPIFactory(factory APIFactory) Option {
	return func(s *settings) {
		s.newAPI = factory
	}
}

// WithExtractTimeout 设置参数提取的超时时间，0 表示不限制。
func WithExtractTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		if timeout <= 0 {
			s.extractTimeout = 0
			return
		}
		s.extractTimeout = timeout
	}
}

// WithCallTimeout 设置 Ankr 调用的超时时间，0 表示不限制。
func WithCallTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		if timeout <= 0 {
			s.callTimeout = 0
			return
		}
		s.callTimeout = timeout
	}
}

// WithModelClass 设置参数提取使用的模型档位。
func WithModelClass(class llm.ModelClass) Option {
	return func(s *settings) {
		s.modelClass = class
	}
}

// WithLogger 替换默认日志器。
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithObserver 注册阶段与结果观察者。
func WithObserver(observer Observer) Option {
	return func(s *settings) {
		if observer != nil {
			s.observers = append(s.observers, observer)
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{modelClass: llm.ModelSmall}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("agent")
	}
	if s.newAPI == nil {
		cfg := ankr.Config{BaseURL: s.baseURL, Timeout: s.apiTimeout, HTTPClient: s.httpClient}
		s.newAPI = func(apiKey string) (action.API, error) {
			c := cfg
			c.APIKey = apiKey
			return ankr.NewClient(c)
		}
	}
	return s
}

// Handler 把一个动作描述绑定到通用处理管道上。
type Handler struct {
	descriptor action.Descriptor
	extractor  llm.Extractor
	settings   settings
}

// NewHandler 为动作创建处理器。
func NewHandler(descriptor action.Descriptor, extractor llm.Extractor, opts ...Option) *Handler {
	return newHandler(descriptor, extractor, newSettings(opts))
}

func newHandler(descriptor action.Descriptor, extractor llm.Extractor, s settings) *Handler {
	s.logger = s.logger.With("action", descriptor.Name)
	return &Handler{descriptor: descriptor, extractor: extractor, settings: s}
}

// Descriptor 返回处理器绑定的动作描述。
func (h *Handler) Descriptor() action.Descriptor {
	return h.descriptor
}

// run 记录单次调用在管道中的进度。
type run struct {
	h        *Handler
	started  time.Time
	stage    Stage
	msg      Message
	request  map[string]any
	callback Callback
	called   bool
}

func (r *run) advance(stage Stage) {
	r.stage = stage
	r.h.settings.logger.Debug("pipeline stage", "stage", string(stage))
	for _, o := range r.h.settings.observers {
		o.StageReached(r.h.descriptor.Name, stage)
	}
}

func (r *run) deliver(result Result) {
	if r.called || r.callback == nil {
		r.called = true
		return
	}
	r.called = true
	r.callback(result)
}

// Handle 执行完整管道：加载凭据、组装状态与提示词、提取参数、校验、调用 Ankr、渲染并回调。
// 任何失败都会先以 "Error in <method>: <message>" 回调一次，再原样返回。
func (h *Handler) Handle(ctx context.Context, rt Runtime, msg Message, state State, _ Options, callback Callback) (bool, error) {
	method := h.descriptor.Method
	r := &run{h: h, started: time.Now(), msg: msg, callback: callback}
	r.advance(StageStart)
	h.settings.logger.Info(fmt.Sprintf("[%s] executing", method))

	text, reply, err := h.execute(ctx, r, rt, state)
	if err != nil {
		xe := classify(method, err)
		r.advance(StageFailed)
		h.settings.logger.Error(fmt.Sprintf("[%s] failed", method), "code", string(xe.Code()), "error", xe.Error())
		r.deliver(Result{
			Text:    fmt.Sprintf("Error in %s: %s", method, xe.Message()),
			Payload: Payload{Success: false, Request: r.request, Error: xe},
		})
		h.finish(ctx, r, "", xe)
		return false, xe
	}

	r.advance(StageDelivered)
	r.deliver(Result{
		Text:    text,
		Payload: Payload{Success: true, Request: r.request, Response: reply},
	})
	h.finish(ctx, r, text, nil)
	return true, nil
}

func (h *Handler) execute(ctx context.Context, r *run, rt Runtime, state State) (string, any, error) {
	method := h.descriptor.Method

	// 加载凭据，缺失时不进入后续任何阶段。
	apiKey, err := ResolveAPIKey(rt, h.settings.defaultAPIKey)
	if err != nil {
		return "", nil, err
	}
	api, err := h.settings.newAPI(apiKey)
	if err != nil {
		return "", nil, err
	}
	r.advance(StageConfigLoaded)

	// 组装或刷新会话状态。
	if rt == nil {
		return "", nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置宿主运行时")
	}
	if state == nil {
		state, err = rt.ComposeState(ctx, r.msg)
	} else {
		state, err = rt.UpdateRecentMessageState(ctx, state)
	}
	if err != nil {
		return "", nil, err
	}
	r.advance(StageStateComposed)

	// 渲染提示词。
	prompt := schema.Compose(schema.Template(h.descriptor.Schema), state)
	h.settings.logger.Debug(fmt.Sprintf("[%s] composed context", method), "prompt", prompt)
	r.advance(StagePromptComposed)

	// 调用大模型提取参数。
	if h.extractor == nil {
		return "", nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置参数提取器")
	}
	extractCtx := ctx
	if h.settings.extractTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, h.settings.extractTimeout)
		defer cancel()
	}
	raw, err := h.extractor.Extract(extractCtx, llm.ExtractRequest{
		Prompt:     prompt,
		Schema:     h.descriptor.Schema,
		ModelClass: h.settings.modelClass,
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return "", nil, xerrors.Wrap(xerrors.CodeTimeout, err, "parameter extraction timed out")
		}
		// 抽取器自身的错误码不对调用方暴露，统一按执行失败处理。
		return "", nil, executionFailure(method, err)
	}
	h.settings.logger.Info(fmt.Sprintf("[%s] extracted parameters", method), "params", raw)
	r.advance(StageParamsExtracted)

	// 结构校验之后做跨字段校验。
	values, err := h.descriptor.ValidateRequest(raw)
	if err != nil {
		return "", nil, err
	}
	r.request = values.Map()
	r.advance(StageValidated)

	// 发起一次 Ankr 调用。
	callCtx := ctx
	if h.settings.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.settings.callTimeout)
		defer cancel()
	}
	reply, err := h.descriptor.Call(callCtx, api, values)
	if err != nil {
		return "", nil, fetchFailure(method, err)
	}
	h.settings.logger.Debug(fmt.Sprintf("[%s] raw response", method), "response", reply)
	r.advance(StageAPIInvoked)

	text, err := h.descriptor.Format(values, reply)
	if err != nil {
		return "", nil, fetchFailure(method, err)
	}
	r.advance(StageFormatted)
	return text, reply, nil
}

func (h *Handler) finish(ctx context.Context, r *run, text string, failure *xerrors.Error) {
	inv := Invocation{
		ID:        uuid.NewString(),
		Action:    h.descriptor.Name,
		Method:    h.descriptor.Method,
		RoomID:    r.msg.RoomID,
		UserID:    r.msg.UserID,
		Input:     r.msg.Text,
		Request:   r.request,
		Text:      text,
		Outcome:   OutcomeDelivered,
		LastStage: r.stage,
		Duration:  time.Since(r.started),
		CreatedAt: r.started.Unix(),
	}
	if failure != nil {
		inv.Outcome = OutcomeFailed
		inv.ErrorCode = string(failure.Code())
		inv.Error = failure.Message()
		inv.Text = fmt.Sprintf("Error in %s: %s", h.descriptor.Method, failure.Message())
	}

	logger.Audit().Info("action invocation",
		"id", inv.ID,
		"action", inv.Action,
		"room_id", inv.RoomID,
		"outcome", inv.Outcome,
		"error_code", inv.ErrorCode,
		"duration_ms", inv.Duration.Milliseconds(),
	)
	for _, o := range h.settings.observers {
		o.InvocationFinished(ctx, inv)
	}
}

// fetchFailure 把调用或渲染阶段的错误统一为 API_ERROR，并保留上游状态码。
func fetchFailure(method string, err error) *xerrors.Error {
	opts := []xerrors.Option{xerrors.WithMetadata("method", method)}
	if xe, ok := xerrors.From(err); ok && xe.StatusCode() > 0 {
		opts = append(opts, xerrors.WithStatusCode(xe.StatusCode()))
	}
	var rpcErr *ankr.RPCError
	if stdErrors.As(err, &rpcErr) {
		opts = append(opts, xerrors.WithMetadata("rpc_code", fmt.Sprint(rpcErr.Code)))
	}
	return xerrors.Wrap(xerrors.CodeAPI, err, fmt.Sprintf("Failed to fetch %s data", method), opts...)
}

// classify 保留三类管道错误，其余错误包装为 API_ERROR。
func classify(method string, err error) *xerrors.Error {
	if xe, ok := xerrors.From(err); ok {
		switch xe.Code() {
		case xerrors.CodeConfiguration, xerrors.CodeValidation, xerrors.CodeAPI:
			return xe
		}
	}
	return executionFailure(method, err)
}

func executionFailure(method string, err error) *xerrors.Error {
	detail := err.Error()
	if xe, ok := xerrors.From(err); ok {
		detail = xe.Message()
	}
	return xerrors.Wrap(xerrors.CodeAPI, err, fmt.Sprintf("Failed to execute %s action: %s", method, detail))
}
