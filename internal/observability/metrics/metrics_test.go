package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OpenMCP-Ankr/internal/agent"
)

func TestHandlerRendersHTTPAndActionSeries(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	ObserveHTTPRequest("/api/v1/actions/{name}", http.MethodPost, http.StatusOK, 30*time.Millisecond)
	ObserveHTTPRequest("/api/v1/actions/{name}", http.MethodPost, http.StatusBadGateway, 2*time.Second)

	observer := ActionObserver{}
	observer.StageReached("GET_TOKEN_PRICE_ANKR", agent.StageStart)
	observer.StageReached("GET_TOKEN_PRICE_ANKR", agent.StageDelivered)
	observer.InvocationFinished(context.Background(), agent.Invocation{
		Action:   "GET_TOKEN_PRICE_ANKR",
		Outcome:  agent.OutcomeDelivered,
		Duration: 200 * time.Millisecond,
	})
	observer.InvocationFinished(context.Background(), agent.Invocation{
		Action:   "GET_TOKEN_PRICE_ANKR",
		Outcome:  agent.OutcomeFailed,
		Duration: 20 * time.Second,
	})

	if got := InvocationCount("GET_TOKEN_PRICE_ANKR", agent.OutcomeDelivered); got != 1 {
		t.Fatalf("expected 1 delivered invocation, got %d", got)
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`ankrmcp_http_requests_total{handler="/api/v1/actions/{name}",method="POST",code="200"} 1`,
		`ankrmcp_http_request_errors_total{handler="/api/v1/actions/{name}",method="POST"} 1`,
		`ankrmcp_action_invocations_total{action="GET_TOKEN_PRICE_ANKR",outcome="delivered"} 1`,
		`ankrmcp_action_invocations_total{action="GET_TOKEN_PRICE_ANKR",outcome="failed"} 1`,
		`ankrmcp_action_stage_transitions_total{action="GET_TOKEN_PRICE_ANKR",stage="start"} 1`,
		`ankrmcp_action_duration_seconds_bucket{action="GET_TOKEN_PRICE_ANKR",le="0.25"} 1`,
		`ankrmcp_action_duration_seconds_bucket{action="GET_TOKEN_PRICE_ANKR",le="10"} 1`,
		`ankrmcp_action_duration_seconds_bucket{action="GET_TOKEN_PRICE_ANKR",le="+Inf"} 2`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}

func TestEscapeLabels(t *testing.T) {
	if got := escape("a\"b\\c\nd"); got != `a\"b\\cd` {
		t.Fatalf("unexpected escape: %q", got)
	}
}

func TestTaskRetriesRenderPerAction(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	ObserveTaskRetry("GET_CURRENCIES_ANKR")
	ObserveTaskRetry("GET_CURRENCIES_ANKR")
	ObserveTaskRetry("GET_NFT_HOLDERS_ANKR")

	if got := TaskRetryCount("GET_CURRENCIES_ANKR"); got != 2 {
		t.Fatalf("expected 2 retries, got %d", got)
	}
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	text := rec.Body.String()
	for _, want := range []string{
		"# TYPE ankrmcp_task_retries_total counter",
		`ankrmcp_task_retries_total{action="GET_CURRENCIES_ANKR"} 2`,
		`ankrmcp_task_retries_total{action="GET_NFT_HOLDERS_ANKR"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}

func TestLabelPairsKeepsDeclaredOrder(t *testing.T) {
	got := labelPairs([]string{"handler", "method", "code"}, "/healthz"+labelSep+"GET"+labelSep+"200")
	if got != `handler="/healthz",method="GET",code="200"` {
		t.Fatalf("unexpected label pairs: %s", got)
	}
}
