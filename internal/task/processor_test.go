package task

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"OpenMCP-Ankr/internal/agent"
	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/observability/alerting"
)

type fakeAgent struct {
	processed atomic.Int32
	latency   time.Duration
	invoke    func(attempt int32, name string, msg agent.Message) (*agent.Result, error)
}

func (f *fakeAgent) Invoke(ctx context.Context, name string, msg agent.Message) (*agent.Result, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	attempt := f.processed.Add(1)
	if f.invoke != nil {
		return f.invoke(attempt, name, msg)
	}
	return &agent.Result{
		Text:    "Token price for " + msg.Text,
		Payload: agent.Payload{Success: true, Request: map[string]any{"blockchain": "eth"}, Response: map[string]string{"usdPrice": "1"}},
	}, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDispatcher) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Metadata["stage"])
	}
	return out
}

// startProcessor 启动处理器并返回停止函数，停止后所有工作协程均已退出。
func startProcessor(t *testing.T, processor *Processor) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func waitForStatus(t *testing.T, service *Service, id string, want Status) *Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := service.WaitUntilCompleted(ctx, id, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for %s: %v", id, err)
	}
	if task.Status != want {
		t.Fatalf("task %s status = %s, want %s (last error %q)", id, task.Status, want, task.LastError)
	}
	return task
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeAgent{latency: 5 * time.Millisecond}

	service := NewService(store, queue, 3)
	stop := startProcessor(t, NewProcessor(executor, store, queue, queue, WithWorkerCount(8)))
	defer stop()

	ctx := context.Background()
	total := 200
	for i := 0; i < total; i++ {
		input := fmt.Sprintf("price of token %d", i)
		if _, err := service.Submit(ctx, Request{Action: "GET_TOKEN_PRICE_ANKR", Input: input}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for int(executor.processed.Load()) < total {
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(20 * time.Millisecond):
		}
	}
	stats, err := service.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != total {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestProcessorStoresResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 3)
	stop := startProcessor(t, NewProcessor(&fakeAgent{}, store, queue, queue))
	defer stop()

	submitted, err := service.Submit(context.Background(), Request{ID: "task-1", Action: "check_price", Input: "ETH", RoomID: "room-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Action != "GET_TOKEN_PRICE_ANKR" {
		t.Fatalf("expected canonical action name, got %s", submitted.Action)
	}

	task := waitForStatus(t, service, "task-1", StatusSucceeded)
	if task.Result == nil || task.Result.Text != "Token price for ETH" {
		t.Fatalf("unexpected result: %+v", task.Result)
	}
	if string(task.Result.Response) != `{"usdPrice":"1"}` || task.Result.Request["blockchain"] != "eth" {
		t.Fatalf("unexpected payload: %+v", task.Result)
	}

	again, err := service.Submit(context.Background(), Request{ID: "task-1", Action: "GET_TOKEN_PRICE_ANKR", Input: "ETH"})
	if err != nil || again.Status != StatusSucceeded {
		t.Fatalf("duplicate submit should return existing task: %+v, %v", again, err)
	}
}

func TestProcessorRetriesUpstreamUnavailable(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	executor := &fakeAgent{invoke: func(attempt int32, _ string, _ agent.Message) (*agent.Result, error) {
		if attempt == 1 {
			err := xerrors.New(xerrors.CodeAPI, "Failed to fetch GetCurrencies data", xerrors.WithStatusCode(http.StatusServiceUnavailable))
			return &agent.Result{Text: "Error in GetCurrencies: Failed to fetch GetCurrencies data"}, err
		}
		return &agent.Result{Text: "Currencies on eth"}, nil
	}}
	service := NewService(store, queue, 3)
	stop := startProcessor(t, NewProcessor(executor, store, queue, queue))
	defer stop()

	if _, err := service.Submit(context.Background(), Request{ID: "retry", Action: "GET_CURRENCIES_ANKR", Input: "currencies on eth"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	task := waitForStatus(t, service, "retry", StatusSucceeded)
	if task.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", task.Attempts)
	}
}

func TestProcessorValidationFailureIsTerminal(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	alerts := &recordingDispatcher{}
	executor := &fakeAgent{invoke: func(int32, string, agent.Message) (*agent.Result, error) {
		err := xerrors.New(xerrors.CodeValidation, "Invalid blockchain: solana")
		return &agent.Result{Text: "Error in GetTokenHolders: Invalid blockchain: solana"}, err
	}}
	service := NewService(store, queue, 3)
	stop := startProcessor(t, NewProcessor(executor, store, queue, queue, WithAlertDispatcher(alerts)))
	defer stop()

	if _, err := service.Submit(context.Background(), Request{ID: "bad", Action: "GET_TOKEN_HOLDERS_ANKR", Input: "holders on solana"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	task := waitForStatus(t, service, "bad", StatusFailed)
	if task.Attempts != 1 || task.ErrorCode != string(xerrors.CodeValidation) {
		t.Fatalf("unexpected failed task: %+v", task)
	}
	if task.LastError != "Error in GetTokenHolders: Invalid blockchain: solana" {
		t.Fatalf("unexpected last error: %q", task.LastError)
	}
	// 校验错误不触发告警。
	if got := alerts.stages(); len(got) != 0 {
		t.Fatalf("unexpected alerts: %v", got)
	}
}

func TestProcessorRecoveryFallback(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	alerts := &recordingDispatcher{}
	executor := &fakeAgent{invoke: func(int32, string, agent.Message) (*agent.Result, error) {
		err := xerrors.New(xerrors.CodeAPI, "Failed to fetch GetBlockchainStats data", xerrors.WithStatusCode(http.StatusBadRequest))
		return &agent.Result{Text: "Error in GetBlockchainStats: Failed to fetch GetBlockchainStats data"}, err
	}}
	recovery := RecoveryFunc(func(_ context.Context, task *Task, cause error) (*ExecutionResult, error) {
		return &ExecutionResult{}, nil
	})
	service := NewService(store, queue, 3)
	stop := startProcessor(t, NewProcessor(executor, store, queue, queue, WithRecoveryHandler(recovery), WithAlertDispatcher(alerts)))
	defer stop()

	if _, err := service.Submit(context.Background(), Request{ID: "degraded", Action: "GET_BLOCKCHAIN_STATS_ANKR", Input: "stats for eth"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	task := waitForStatus(t, service, "degraded", StatusSucceeded)
	if task.Result == nil || task.Result.Text != "Error in GetBlockchainStats: Failed to fetch GetBlockchainStats data" {
		t.Fatalf("unexpected fallback result: %+v", task.Result)
	}
	if got := alerts.stages(); len(got) != 1 || got[0] != "degraded" {
		t.Fatalf("unexpected alerts: %v", got)
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(1), 0)
	ctx := context.Background()

	if _, err := service.Submit(ctx, Request{Action: "GET_TOKEN_PRICE_ANKR", Input: "  "}); !xerrors.Is(err, CodeTaskValidation) {
		t.Fatalf("expected validation error for empty input, got %v", err)
	}
	if _, err := service.Submit(ctx, Request{Action: "GET_WEATHER", Input: "sunny?"}); !xerrors.Is(err, CodeTaskValidation) {
		t.Fatalf("expected validation error for unknown action, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{xerrors.New(xerrors.CodeAPI, "x", xerrors.WithStatusCode(http.StatusTooManyRequests)), true},
		{xerrors.New(xerrors.CodeAPI, "x", xerrors.WithStatusCode(http.StatusBadGateway)), true},
		{xerrors.New(xerrors.CodeAPI, "x", xerrors.WithStatusCode(http.StatusNotFound)), false},
		{xerrors.New(xerrors.CodeAPI, "x"), false},
		{xerrors.New(xerrors.CodeConfiguration, "x"), false},
		{xerrors.New(xerrors.CodeStorageFailure, "x"), true},
		{errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := isRetryable(tc.err); got != tc.want {
			t.Fatalf("isRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
