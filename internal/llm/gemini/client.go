package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"OpenMCP-Ankr/internal/llm"
	"OpenMCP-Ankr/internal/schema"
	"OpenMCP-Ankr/internal/web3/chains"
)

const defaultModelName = "gemini-2.0-flash"

// Config 描述调用 Gemini API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Models  map[llm.ModelClass]string
}

// Client 通过 Gemini 的结构化输出抽取参数。
type Client struct {
	client *genai.Client
	model  string
	models map[llm.ModelClass]string
}

// NewClient 创建 Gemini 客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Gemini API Key")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	return &Client{client: client, model: model, models: cfg.Models}, nil
}

// Extract 调用 GenerateContent，并要求以 JSON 返回。
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (map[string]any, error) {
	model := c.model
	if name := strings.TrimSpace(c.models[req.ModelClass]); name != "" {
		model = name
	}

	result, err := c.client.Models.GenerateContent(ctx,
		model,
		genai.Text(req.Prompt),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0),
			ResponseMIMEType: "application/json",
			ResponseSchema:   ConvertSchema(req.Schema),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("请求 Gemini 失败: %w", err)
	}

	return llm.ParseObject(result.Text())
}

// ConvertSchema 把请求结构转换为 Gemini 的 Schema。
// 链列表字段统一声明为数组，单条链的回复同样能通过校验。
func ConvertSchema(s schema.Schema) *genai.Schema {
	out := &genai.Schema{
		Type:        genai.TypeObject,
		Description: s.Description,
		Properties:  make(map[string]*genai.Schema, len(s.Fields)),
		Required:    s.Required(),
	}
	order := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out.Properties[f.Name] = convertField(f)
		order = append(order, f.Name)
	}
	out.PropertyOrdering = order
	return out
}

func convertField(f schema.Field) *genai.Schema {
	switch f.Kind {
	case schema.KindNumber:
		return &genai.Schema{Type: genai.TypeNumber, Description: f.Description}
	case schema.KindBoolean:
		return &genai.Schema{Type: genai.TypeBoolean, Description: f.Description}
	case schema.KindChain:
		return &genai.Schema{Type: genai.TypeString, Format: "enum", Enum: chains.IDs(), Description: f.Description}
	case schema.KindChainList:
		return &genai.Schema{
			Type:        genai.TypeArray,
			Description: f.Description,
			Items:       &genai.Schema{Type: genai.TypeString, Format: "enum", Enum: chains.IDs()},
		}
	default:
		return &genai.Schema{Type: genai.TypeString, Description: f.Description}
	}
}
