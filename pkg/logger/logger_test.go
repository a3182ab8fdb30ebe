package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditWriterDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	w, err := newAuditWriter(AuditConfig{Enabled: true, Path: path, Compress: true})
	if err != nil {
		t.Fatalf("new audit writer: %v", err)
	}
	defer w.Close()

	if w.MaxSize != defaultAuditMaxSizeMB || w.MaxBackups != defaultAuditMaxBackups || w.MaxAge != defaultAuditMaxAgeDays || !w.Compress {
		t.Fatalf("unexpected rotation settings: %+v", w)
	}
	if _, err := w.Write([]byte(`{"msg":"action invocation"}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	if !strings.Contains(string(data), "action invocation") {
		t.Fatalf("unexpected audit file: %s", data)
	}
}

func TestAuditWriterRequiresPath(t *testing.T) {
	if _, err := newAuditWriter(AuditConfig{Enabled: true}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for input, want := range cases {
		if got := parseLevel(input).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestBuildHandlerWritesTextToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "daemon.log")
	handler, opened, err := buildHandler("text", []string{path}, nil)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	defer closeAll(opened)
	slog.New(handler).With(slog.String("component", "plugin-ankr")).Info("started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "component=plugin-ankr") || !strings.Contains(string(data), "msg=started") {
		t.Fatalf("unexpected log output: %s", data)
	}
}

func TestRedactSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: redactAttr}))
	log.Info("resolved credential",
		"ankr_api_key", "abc123",
		"authorization", "Bearer s3cret",
		"endpoint", "https://rpc.ankr.com/multichain/abc123",
		"action", "GET_TOKEN_PRICE_ANKR",
	)

	out := buf.String()
	if strings.Contains(out, "abc123") || strings.Contains(out, "s3cret") {
		t.Fatalf("secret leaked: %s", out)
	}
	for _, want := range []string{"ankr_api_key=***", "endpoint=https://rpc.ankr.com/multichain/***", "action=GET_TOKEN_PRICE_ANKR"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestRedactEndpoint(t *testing.T) {
	cases := map[string]string{
		`Post "https://rpc.ankr.com/multichain/k3y": EOF`: `Post "https://rpc.ankr.com/multichain/***": EOF`,
		"https://rpc.ankr.com/multichain/":                "https://rpc.ankr.com/multichain/",
		"https://rpc.ankr.com/multichain/***":             "https://rpc.ankr.com/multichain/***",
		"no endpoint here":                                "no endpoint here",
	}
	for in, want := range cases {
		if got := RedactEndpoint(in); got != want {
			t.Fatalf("RedactEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
