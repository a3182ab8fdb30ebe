package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/web3/chains"
)

// Values 是通过结构校验后的请求参数，只包含 Schema 声明的字段。
type Values map[string]any

// Has 判断字段是否存在。
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// String 返回字符串字段，缺失时为空串。
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Bool 返回布尔字段。
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// Float 返回数值字段。
func (v Values) Float(name string) float64 {
	f, _ := v[name].(float64)
	return f
}

// Int64 返回截断后的整数值。
func (v Values) Int64(name string) int64 {
	return int64(v.Float(name))
}

// Strings 返回链列表字段，单条链也会返回单元素切片。
func (v Values) Strings(name string) []string {
	switch t := v[name].(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case string:
		return []string{t}
	default:
		return nil
	}
}

// Map 返回普通 map，便于序列化与记录。
func (v Values) Map() map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Issue 是一条字段校验失败记录。
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

// IssuesError 把多条校验失败合并为一个 VALIDATION_ERROR。
func IssuesError(issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.String())
	}
	return xerrors.New(xerrors.CodeValidation, strings.Join(parts, "; "),
		xerrors.WithMetadata("issues", strconv.Itoa(len(issues))),
	)
}

// Validate 按 Schema 校验模型输出，补齐默认值并归一化类型。
// 所有字段问题会一次性汇总返回。
func (s Schema) Validate(raw map[string]any) (Values, error) {
	values := make(Values, len(s.Fields))
	var issues []Issue

	for _, f := range s.Fields {
		value, present := raw[f.Name]
		if present && value == nil {
			present = false
		}
		if !present {
			switch {
			case f.Default != nil:
				values[f.Name] = f.Default
			case f.Required:
				issues = append(issues, Issue{Field: f.Name, Message: "Required"})
			}
			continue
		}

		normalized, msg := f.normalize(value)
		if msg != "" {
			issues = append(issues, Issue{Field: f.Name, Message: msg})
			continue
		}
		values[f.Name] = normalized
	}

	if err := IssuesError(issues); err != nil {
		return nil, err
	}
	return values, nil
}

func (f Field) normalize(value any) (any, string) {
	switch f.Kind {
	case KindString:
		s, ok := asString(value)
		if !ok {
			return nil, fmt.Sprintf("Expected string, received %s", typeName(value))
		}
		if f.Prefix != "" && !strings.HasPrefix(s, f.Prefix) {
			if f.PrefixOrEmpty && s == "" {
				return s, ""
			}
			if f.Message != "" {
				return nil, f.Message
			}
			return nil, fmt.Sprintf("Invalid input: must start with %q", f.Prefix)
		}
		return s, ""
	case KindNumber:
		n, ok := asNumber(value)
		if !ok {
			return nil, fmt.Sprintf("Expected number, received %s", typeName(value))
		}
		return n, ""
	case KindBoolean:
		b, ok := asBool(value)
		if !ok {
			return nil, fmt.Sprintf("Expected boolean, received %s", typeName(value))
		}
		return b, ""
	case KindChain:
		id, msg := asChain(value)
		if msg != "" {
			return nil, msg
		}
		return id, ""
	case KindChainList:
		list, ok := value.([]any)
		if !ok {
			if typed, isStrings := value.([]string); isStrings {
				list = make([]any, len(typed))
				for i, s := range typed {
					list[i] = s
				}
				ok = true
			}
		}
		if !ok {
			id, msg := asChain(value)
			if msg != "" {
				return nil, msg
			}
			return id, ""
		}
		ids := make([]string, 0, len(list))
		for idx, item := range list {
			id, msg := asChain(item)
			if msg != "" {
				return nil, fmt.Sprintf("[%d] %s", idx, msg)
			}
			ids = append(ids, id)
		}
		return ids, ""
	default:
		return nil, "unsupported field kind"
	}
}

func asString(value any) (string, bool) {
	switch t := value.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatFloat(t, 'f', -1, 64), true
		}
		return "", false
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

func asNumber(value any) (float64, bool) {
	switch t := value.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asBool(value any) (bool, bool) {
	switch t := value.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	default:
		return false, false
	}
}

func asChain(value any) (string, string) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Sprintf("Expected chain tag, received %s", typeName(value))
	}
	info, ok := chains.LookupName(s)
	if !ok {
		return "", fmt.Sprintf("Invalid enum value. Expected one of %s, received '%s'", strings.Join(sortedIDs(), " | "), s)
	}
	return info.ID, ""
}

func sortedIDs() []string {
	ids := chains.IDs()
	sort.Strings(ids)
	return ids
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
