package pythonbridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/llm"
	"OpenMCP-Ankr/internal/schema"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extract.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExtractReadsStdout(t *testing.T) {
	script := writeScript(t, "cat > /dev/null\necho '{\"blockchain\":\"bsc\",\"walletAddress\":\"0xabc\"}'\n")
	client, err := NewClient("sh", script, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := client.Extract(context.Background(), llm.ExtractRequest{Prompt: "balance", Schema: schema.Schema{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["blockchain"] != "bsc" || out["walletAddress"] != "0xabc" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestExtractScriptFailure(t *testing.T) {
	script := writeScript(t, "echo 'model unavailable' >&2\nexit 3\n")
	client, _ := NewClient("sh", script, "")

	_, err := client.Extract(context.Background(), llm.ExtractRequest{Prompt: "x"})
	xe, ok := xerrors.From(err)
	if !ok || xe.Code() != xerrors.CodeAPI {
		t.Fatalf("expected API_ERROR when script exits non-zero, got %v", err)
	}
	if xe.Metadata()["exit_code"] != "3" || !strings.Contains(xe.Message(), "model unavailable") {
		t.Fatalf("failure should carry exit code and stderr: %q %v", xe.Message(), xe.Metadata())
	}
}

func TestResolveScriptPath(t *testing.T) {
	if got := ResolveScriptPath("/srv", "bridge.py"); got != "/srv/bridge.py" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := ResolveScriptPath("/srv", "/opt/bridge.py"); got != "/opt/bridge.py" {
		t.Fatalf("absolute path should be kept, got %q", got)
	}
	if _, err := NewClient("", "", ""); !xerrors.Is(err, xerrors.CodeConfiguration) {
		t.Fatalf("missing script should be a configuration error, got %v", err)
	}
}

func TestExtractSendsFieldsAndModelClass(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "request.json")
	script := writeScript(t, "cat > "+dump+"\necho \"{\\\"class\\\":\\\"$ANKRMCP_MODEL_CLASS\\\"}\"\n")
	client, _ := NewClient("sh", script, "")

	out, err := client.Extract(context.Background(), llm.ExtractRequest{
		Prompt:     "holders of 0xabc on eth",
		ModelClass: llm.ModelClass("small"),
		Schema: schema.Schema{Fields: []schema.Field{
			{Name: "blockchain", Kind: schema.KindString, Required: true},
			{Name: "contractAddress", Kind: schema.KindString, Required: true},
		}},
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out["class"] != "small" {
		t.Fatalf("model class should reach the script environment: %v", out)
	}
	raw, err := os.ReadFile(dump)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	var sent struct {
		Prompt string   `json:"prompt"`
		Fields []string `json:"fields"`
	}
	if err := json.Unmarshal(raw, &sent); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if sent.Prompt != "holders of 0xabc on eth" || strings.Join(sent.Fields, ",") != "blockchain,contractAddress" {
		t.Fatalf("unexpected request: %+v", sent)
	}
}

func TestExtractReportsRefusal(t *testing.T) {
	script := writeScript(t, "cat > /dev/null\necho '{\"error\":\"no wallet address in message\"}'\n")
	client, _ := NewClient("sh", script, "")
	_, err := client.Extract(context.Background(), llm.ExtractRequest{Prompt: "balance"})
	if !xerrors.Is(err, xerrors.CodeAPI) || !strings.Contains(err.Error(), "no wallet address in message") {
		t.Fatalf("expected refusal error, got %v", err)
	}
}
