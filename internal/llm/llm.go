package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"OpenMCP-Ankr/internal/schema"
)

// ModelClass 对应宿主运行时的模型档位。
type ModelClass string

const (
	ModelSmall  ModelClass = "small"
	ModelMedium ModelClass = "medium"
	ModelLarge  ModelClass = "large"
)

// ExtractRequest 描述一次结构化参数抽取。
type ExtractRequest struct {
	Prompt     string
	Schema     schema.Schema
	ModelClass ModelClass
}

// Extractor 定义了从自然语言中抽取结构化参数的统一接口。
// 实现不做重试，失败直接返回给调用方。
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (map[string]any, error)
}

// ExtractorFunc 允许用普通函数实现 Extractor。
type ExtractorFunc func(ctx context.Context, req ExtractRequest) (map[string]any, error)

// Extract 实现 Extractor。
func (f ExtractorFunc) Extract(ctx context.Context, req ExtractRequest) (map[string]any, error) {
	return f(ctx, req)
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ParseObject 从模型回复中解析 JSON 对象，兼容 markdown 代码块和前后多余文字。
// 数字保留为 json.Number，避免大整数精度丢失。
func ParseObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("模型回复为空")
	}

	candidates := make([]string, 0, 3)
	if m := fencedBlock.FindStringSubmatch(text); len(m) == 2 {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, text)
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	var lastErr error
	for _, candidate := range candidates {
		decoder := json.NewDecoder(bytes.NewReader([]byte(candidate)))
		decoder.UseNumber()
		var out map[string]any
		if err := decoder.Decode(&out); err != nil {
			lastErr = err
			continue
		}
		if out == nil {
			out = map[string]any{}
		}
		return out, nil
	}
	return nil, fmt.Errorf("模型回复中没有可解析的 JSON 对象: %w", lastErr)
}
