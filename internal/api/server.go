package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenMCP-Ankr/internal/agent"
	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/observability/metrics"
	"OpenMCP-Ankr/internal/task"
	"OpenMCP-Ankr/internal/web3/chains"
)

// Invoker 是 API 依赖的动作执行能力，*agent.Agent 满足该接口。
type Invoker interface {
	Invoke(ctx context.Context, name string, msg agent.Message) (*agent.Result, error)
	Actions() []agent.Action
	ListHistory(ctx context.Context, limit int) ([]agent.Invocation, error)
}

// Server 负责暴露 REST 接口，供外部同步或异步调用动作。
type Server struct {
	addr          string
	agent         Invoker
	tasks         *task.Service
	tokens        []string
	shutdownGrace time.Duration
}

// Option 调整 Server 的可选参数。
type Option func(*Server)

// WithTaskService 启用异步任务接口。
func WithTaskService(svc *task.Service) Option {
	return func(s *Server) {
		s.tasks = svc
	}
}

// WithAuthTokens 配置静态 Bearer Token；为空时不做认证。
func WithAuthTokens(tokens ...string) Option {
	return func(s *Server) {
		for _, token := range tokens {
			if token = strings.TrimSpace(token); token != "" {
				s.tokens = append(s.tokens, token)
			}
		}
	}
}

// WithShutdownGrace 设置优雅关闭的等待时长。
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownGrace = d
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, ag Invoker, opts ...Option) *Server {
	s := &Server{addr: addr, agent: ag, shutdownGrace: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes 返回带认证与指标的路由，测试可直接使用。
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /api/v1/actions", s.handleListActions)
	s.route(mux, "POST /api/v1/actions/{name}", s.handleInvokeAction)
	s.route(mux, "GET /api/v1/chains", s.handleListChains)
	s.route(mux, "POST /api/v1/tasks", s.handleCreateTask)
	s.route(mux, "GET /api/v1/tasks", s.handleListTasks)
	s.route(mux, "GET /api/v1/tasks/{id}", s.handleTaskDetail)
	s.route(mux, "GET /api/v1/invocations", s.handleListInvocations)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return s.authenticate(mux)
}

func (s *Server) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, handler))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	// 配置 HTTP 服务器。
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type actionView struct {
	Name        string   `json:"name"`
	Similes     []string `json:"similes"`
	Description string   `json:"description"`
	Examples    []string `json:"examples,omitempty"`
}

func (s *Server) handleListActions(w http.ResponseWriter, _ *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "agent is not initialised")
		return
	}
	actions := s.agent.Actions()
	views := make([]actionView, 0, len(actions))
	for _, a := range actions {
		views = append(views, actionView{
			Name:        a.Name,
			Similes:     a.Similes,
			Description: a.Description,
			Examples:    a.Examples,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// invokeRequest 是同步调用动作的请求体。
type invokeRequest struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// handleInvokeAction 同步执行一次动作，返回回调交付的文本与负载。
func (s *Server) handleInvokeAction(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "agent is not initialised")
		return
	}
	var req invokeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), err.Error())
		return
	}

	result, err := s.agent.Invoke(r.Context(), r.PathValue("name"), agent.Message{
		ID:     req.ID,
		UserID: req.UserID,
		RoomID: req.RoomID,
		Text:   req.Text,
	})
	if result != nil {
		// 管道失败也会交付 "Error in ..." 文本，随状态码一并返回。
		writeJSON(w, xerrors.HTTPStatusOf(err), result)
		return
	}
	writeFailure(w, err)
}

func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	switch strings.ToLower(r.URL.Query().Get("network")) {
	case "":
		writeJSON(w, http.StatusOK, chains.All())
	case string(chains.Mainnet):
		writeJSON(w, http.StatusOK, chains.Mainnets())
	case string(chains.Testnet):
		writeJSON(w, http.StatusOK, chains.Testnets())
	default:
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "network must be mainnet or testnet")
	}
}

// handleCreateTask 处理创建异步任务的请求。
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "task service is disabled")
		return
	}
	var req task.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), err.Error())
		return
	}
	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

type taskListResponse struct {
	Tasks []*task.Task     `json:"tasks"`
	Stats task.TaskStats   `json:"stats"`
	Page  map[string]int64 `json:"page"`
}

// handleListTasks 按查询参数过滤任务列表。
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "task service is disabled")
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), err.Error())
		return
	}
	tasks, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	applied := task.BuildListOptions(opts...)
	writeJSON(w, http.StatusOK, taskListResponse{
		Tasks: tasks,
		Stats: stats,
		Page:  map[string]int64{"limit": int64(applied.Limit), "offset": int64(applied.Offset)},
	})
}

func parseListOptions(r *http.Request) ([]task.ListOption, error) {
	query := r.URL.Query()
	var opts []task.ListOption

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New("limit must be an integer")
		}
		opts = append(opts, task.WithLimit(limit))
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New("offset must be an integer")
		}
		opts = append(opts, task.WithOffset(offset))
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.ToLower(strings.TrimSpace(part)))
			if !task.IsValidStatus(status) {
				return nil, errors.New("unknown status: " + part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := query.Get("action"); raw != "" {
		opts = append(opts, task.WithAction(raw))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, task.WithQuery(raw))
	}
	if raw := query.Get("room"); raw != "" {
		opts = append(opts, task.WithRoom(raw))
	}
	if raw := query.Get("user"); raw != "" {
		opts = append(opts, task.WithUser(raw))
	}
	if raw := query.Get("error_code"); raw != "" {
		opts = append(opts, task.WithErrorCode(raw))
	}
	if raw := query.Get("has_result"); raw != "" {
		has, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("has_result must be a boolean")
		}
		opts = append(opts, task.WithResultPresence(has))
	}
	if raw := query.Get("since"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("since must be a unix timestamp")
		}
		opts = append(opts, task.WithUpdatedSince(time.Unix(ts, 0)))
	}
	if raw := query.Get("until"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("until must be a unix timestamp")
		}
		opts = append(opts, task.WithUpdatedUntil(time.Unix(ts, 0)))
	}
	if strings.EqualFold(query.Get("order"), "asc") {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts, nil
}

// handleTaskDetail 返回单个任务的状态与结果。
func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "task service is disabled")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "task id is required")
		return
	}
	found, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "agent is not initialised")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	invocations, err := s.agent.ListHistory(r.Context(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if invocations == nil {
		invocations = []agent.Invocation{}
	}
	writeJSON(w, http.StatusOK, invocations)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	actions := 0
	if s.agent != nil {
		actions = len(s.agent.Actions())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"actions": actions,
		"chains":  len(chains.All()),
		"tasks":   s.tasks != nil,
	})
}

// withContext 在服务关闭后拒绝新请求。
func withContext(ctx context.Context, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		next.ServeHTTP(w, r)
	})
}
