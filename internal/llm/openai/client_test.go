package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/llm"
	"OpenMCP-Ankr/internal/schema"
)

var testSchema = schema.Schema{Fields: []schema.Field{
	{Name: "blockchain", Kind: schema.KindChain, Required: true, Description: "The blockchain"},
}}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "  "}); !xerrors.Is(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error when api key is missing, got %v", err)
	}
}

func TestExtractSuccess(t *testing.T) {
	var captured struct {
		Authorization string
		Body          map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"content": "```json\n{\"blockchain\":\"eth\"}\n```",
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		APIKey:  "test",
		BaseURL: srv.URL,
		Models:  map[llm.ModelClass]string{llm.ModelSmall: "gpt-small"},
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	out, err := client.Extract(context.Background(), llm.ExtractRequest{
		Prompt:     "price of eth",
		Schema:     testSchema,
		ModelClass: llm.ModelSmall,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["blockchain"] != "eth" {
		t.Fatalf("unexpected output: %v", out)
	}

	if !strings.HasPrefix(captured.Authorization, "Bearer ") {
		t.Fatalf("authorization header missing: %q", captured.Authorization)
	}
	if captured.Body["model"] != "gpt-small" {
		t.Fatalf("model class override ignored: %v", captured.Body["model"])
	}
	format, ok := captured.Body["response_format"].(map[string]any)
	if !ok || format["type"] != "json_schema" {
		t.Fatalf("response_format missing: %v", captured.Body["response_format"])
	}
	spec, _ := format["json_schema"].(map[string]any)
	if spec["name"] != "extracted_parameters" || spec["schema"] == nil {
		t.Fatalf("json_schema block incomplete: %v", spec)
	}
	if messages, _ := captured.Body["messages"].([]any); len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", captured.Body["messages"])
	}
}

func TestExtractHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	_, err = client.Extract(context.Background(), llm.ExtractRequest{Prompt: "test", Schema: testSchema})
	xe, ok := xerrors.From(err)
	if !ok || xe.Code() != xerrors.CodeAPI || xe.StatusCode() != http.StatusBadRequest {
		t.Fatalf("expected api error carrying status 400, got %v", err)
	}
	if !strings.Contains(xe.Message(), "boom") {
		t.Fatalf("error body should be reported: %q", xe.Message())
	}
}

func TestExtractRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","refusal":"cannot help"}}]}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	client.httpClient = srv.Client()

	_, err := client.Extract(context.Background(), llm.ExtractRequest{Prompt: "x", Schema: testSchema})
	if err == nil || !strings.Contains(err.Error(), "cannot help") {
		t.Fatalf("expected refusal error, got %v", err)
	}
}

func TestExtractRejectsNonObjectReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"I am not sure"}}]}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Config{APIKey: "test", BaseURL: srv.URL + "/"})
	client.httpClient = srv.Client()

	if _, err := client.Extract(context.Background(), llm.ExtractRequest{Prompt: "x", Schema: testSchema}); !xerrors.Is(err, xerrors.CodeAPI) {
		t.Fatalf("expected api error for prose reply, got %v", err)
	}
	if client.endpoint != srv.URL+"/chat/completions" {
		t.Fatalf("trailing slash should be trimmed: %s", client.endpoint)
	}
}
