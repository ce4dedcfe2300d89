package tooling

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// SchemaState 区分参数契约是否成功解析。
type SchemaState int

const (
	// SchemaUnavailable 表示契约缺失或无法解析，此时视为没有必填字段。
	SchemaUnavailable SchemaState = iota
	// SchemaPresent 表示契约解析成功。
	SchemaPresent
)

// String 返回状态名称。
func (s SchemaState) String() string {
	if s == SchemaPresent {
		return "present"
	}
	return "unavailable"
}

// Property 描述单个参数字段的形态。
type Property struct {
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Format      string   `json:"format,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ArgumentSchema 是工具参数契约的统一内部表示。
type ArgumentSchema struct {
	State      SchemaState         `json:"-"`
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
	// Reason 记录契约不可用的原因，便于排查。
	Reason string `json:"-"`
}

// Available 判断契约是否可用。
func (s ArgumentSchema) Available() bool {
	return s.State == SchemaPresent
}

// RequiredFields 按声明顺序返回必填字段；契约不可用时返回空列表。
func (s ArgumentSchema) RequiredFields() []string {
	if s.State != SchemaPresent {
		return []string{}
	}
	return append([]string{}, s.Required...)
}

// ParseSchema 将 JSON Schema 形式的参数契约转换为 ArgumentSchema。
// 任何解析失败都会得到 SchemaUnavailable，而不是错误。
func ParseSchema(raw []byte) ArgumentSchema {
	if len(raw) == 0 {
		return unavailable("empty schema")
	}
	if !gjson.ValidBytes(raw) {
		return unavailable("invalid json")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return unavailable("schema is not an object")
	}

	schema := ArgumentSchema{
		State:      SchemaPresent,
		Required:   []string{},
		Properties: map[string]Property{},
	}

	if required := root.Get("required"); required.Exists() && required.Type != gjson.Null {
		if !required.IsArray() {
			return unavailable("required is not an array")
		}
		seen := make(map[string]struct{})
		for _, item := range required.Array() {
			if item.Type != gjson.String {
				return unavailable("required contains a non-string entry")
			}
			name := item.String()
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			schema.Required = append(schema.Required, name)
		}
	}

	if props := root.Get("properties"); props.IsObject() {
		props.ForEach(func(key, value gjson.Result) bool {
			prop := Property{
				Type:        value.Get("type").String(),
				Description: value.Get("description").String(),
				Format:      value.Get("format").String(),
			}
			if prop.Type == "" {
				// pydantic 风格的可选字段使用 anyOf 描述类型。
				prop.Type = value.Get("anyOf.0.type").String()
			}
			for _, e := range value.Get("enum").Array() {
				prop.Enum = append(prop.Enum, e.String())
			}
			schema.Properties[key.String()] = prop
			return true
		})
	}
	return schema
}

// MarshalSchema 将任意 schema 值编码为 JSON，编码失败时返回 nil。
func MarshalSchema(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func unavailable(reason string) ArgumentSchema {
	return ArgumentSchema{
		State:      SchemaUnavailable,
		Required:   []string{},
		Properties: map[string]Property{},
		Reason:     reason,
	}
}
