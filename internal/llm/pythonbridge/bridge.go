// Package pythonbridge runs parameter extraction through an external script.
// The script receives one JSON request on stdin and prints the extracted
// object on stdout; printing {"error": "..."} reports a refusal.
package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/llm"
)

const maxStderr = 512

// request 是写入脚本标准输入的内容。
type request struct {
	Prompt     string         `json:"prompt"`
	Schema     map[string]any `json:"schema"`
	Fields     []string       `json:"fields"`
	ModelClass string         `json:"model_class"`
}

// Client 以子进程方式调用抽取脚本，每次 Extract 启动一个进程。
type Client struct {
	python string
	script string
	dir    string
}

// NewClient 创建客户端；python 为空时使用 python3。
func NewClient(python, script, dir string) (*Client, error) {
	if strings.TrimSpace(script) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "python bridge script path is required")
	}
	if python == "" {
		python = "python3"
	}
	return &Client{python: python, script: script, dir: dir}, nil
}

// Extract 运行脚本并解析其输出。
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (map[string]any, error) {
	body, err := json.Marshal(request{
		Prompt:     req.Prompt,
		Schema:     req.Schema.JSONSchema(),
		Fields:     fieldNames(req),
		ModelClass: string(req.ModelClass),
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode bridge request")
	}

	cmd := exec.CommandContext(ctx, c.python, c.script)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(), "ANKRMCP_MODEL_CLASS="+string(req.ModelClass))
	cmd.Stdin = bytes.NewReader(body)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "python bridge interrupted")
		}
		opts := []xerrors.Option{xerrors.WithMetadata("stderr", tail(stderr.String()))}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			opts = append(opts, xerrors.WithMetadata("exit_code", strconv.Itoa(exitErr.ExitCode())))
		}
		return nil, xerrors.Wrap(xerrors.CodeAPI, err, "python bridge failed: "+tail(stderr.String()), opts...)
	}

	out, err := llm.ParseObject(stdout.String())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAPI, err, "python bridge printed no JSON object")
	}
	if msg, ok := out["error"].(string); ok && len(out) == 1 {
		return nil, xerrors.New(xerrors.CodeAPI, "python bridge refused: "+msg)
	}
	return out, nil
}

func fieldNames(req llm.ExtractRequest) []string {
	names := make([]string, 0, len(req.Schema.Fields))
	for _, f := range req.Schema.Fields {
		names = append(names, f.Name)
	}
	return names
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[len(s)-maxStderr:]
	}
	return s
}

// ResolveScriptPath 把相对脚本路径解析到 baseDir 下。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" || baseDir == "" || filepath.IsAbs(script) {
		return script
	}
	return filepath.Join(baseDir, script)
}
