// Package openai extracts action parameters through the OpenAI Chat
// Completions API using strict JSON-schema structured output.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
	maxErrorBody     = 2048

	systemPrompt = "You extract parameters for blockchain data queries. " +
		"Reply with a single JSON object that follows the provided schema and omit any value you cannot determine."
)

// Config 描述 OpenAI 兼容接口的地址、凭证与模型。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Models 按模型档位覆盖 Model，未配置的档位回落到 Model。
	Models  map[llm.ModelClass]string
	Timeout time.Duration
}

// Client 实现 llm.Extractor。
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	models     map[llm.ModelClass]string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient 校验配置并补齐默认地址、模型与超时。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未提供 OpenAI API Key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	models := make(map[llm.ModelClass]string, len(cfg.Models))
	for class, name := range cfg.Models {
		if name = strings.TrimSpace(name); name != "" {
			models[class] = name
		}
	}
	return &Client{
		apiKey:     apiKey,
		endpoint:   baseURL + "/chat/completions",
		model:      model,
		models:     models,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) modelFor(class llm.ModelClass) string {
	if name, ok := c.models[class]; ok {
		return name
	}
	return c.model
}

// Extract 发送一次补全请求，返回模型给出的参数对象。
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (map[string]any, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.modelFor(req.ModelClass),
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchemaFormat{Name: "extracted_parameters", Schema: req.Schema.JSONSchema()},
		},
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化 OpenAI 请求失败")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "构建 OpenAI 请求失败")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "OpenAI 请求被取消")
		}
		return nil, xerrors.Wrap(xerrors.CodeAPI, err, "请求 OpenAI 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, xerrors.New(xerrors.CodeAPI,
			"OpenAI 返回错误状态 "+resp.Status+": "+strings.TrimSpace(string(detail)),
			xerrors.WithStatusCode(resp.StatusCode))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAPI, err, "解析 OpenAI 响应失败")
	}
	if len(decoded.Choices) == 0 {
		return nil, xerrors.New(xerrors.CodeAPI, "OpenAI 响应中没有 choices")
	}
	msg := decoded.Choices[0].Message
	if refusal := strings.TrimSpace(msg.Refusal); refusal != "" {
		return nil, xerrors.New(xerrors.CodeAPI, "OpenAI 拒绝了请求: "+refusal)
	}

	// 结构化输出失效时模型可能回到 markdown 代码块，ParseObject 两种都能处理。
	out, err := llm.ParseObject(msg.Content)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAPI, err, "OpenAI 回复不是 JSON 对象")
	}
	return out, nil
}
