package schema

import (
	"OpenMCP-Ankr/internal/web3/chains"
)

// Kind 表示字段的取值类型。
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	// KindChain 只接受注册表中的单条链。
	KindChain
	// KindChainList 接受单条链或链数组。
	KindChainList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindChain:
		return "chain"
	case KindChainList:
		return "chain_list"
	default:
		return "unknown"
	}
}

// Field 描述请求中的一个参数。
type Field struct {
	Name        string
	Kind        Kind
	Required    bool
	Description string
	// Default 在字段缺省时写入，非空即视为可选。
	Default any
	// Prefix 要求字符串以此开头。
	Prefix string
	// PrefixOrEmpty 为 true 时允许空串绕过 Prefix 检查。
	PrefixOrEmpty bool
	// Message 覆盖 Prefix 校验失败时的提示。
	Message string
}

// Schema 是一个动作的请求结构。
type Schema struct {
	Description string
	Fields      []Field
}

// Field 按名称查找字段。
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasChain 判断是否存在链类型字段，提示词据此附加链列表。
func (s Schema) HasChain() bool {
	for _, f := range s.Fields {
		if f.Kind == KindChain || f.Kind == KindChainList {
			return true
		}
	}
	return false
}

// Required 返回必填字段名。
func (s Schema) Required() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Required && f.Default == nil {
			out = append(out, f.Name)
		}
	}
	return out
}

// JSONSchema 导出供结构化输出使用的 JSON Schema。
func (s Schema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		properties[f.Name] = f.jsonSchema()
	}
	out := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if required := s.Required(); len(required) > 0 {
		out["required"] = required
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	return out
}

func (f Field) jsonSchema() map[string]any {
	var out map[string]any
	switch f.Kind {
	case KindNumber:
		out = map[string]any{"type": "number"}
	case KindBoolean:
		out = map[string]any{"type": "boolean"}
	case KindChain:
		out = chainEnum()
	case KindChainList:
		out = map[string]any{
			"anyOf": []any{
				chainEnum(),
				map[string]any{"type": "array", "items": chainEnum()},
			},
		}
	default:
		out = map[string]any{"type": "string"}
	}
	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.Default != nil {
		out["default"] = f.Default
	}
	return out
}

func chainEnum() map[string]any {
	return map[string]any{"type": "string", "enum": chains.IDs()}
}
