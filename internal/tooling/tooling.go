package tooling

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"OpenMCP-Dialog/internal/dialog"
	xerrors "OpenMCP-Dialog/internal/errors"
)

// Tool 是工具能力描述。
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      ArgumentSchema  `json:"-"`
	RawSchema   json.RawMessage `json:"inputSchema,omitempty"`
}

// NewTool 通过原始 JSON Schema 构造 Tool，契约在此处一次性解析。
func NewTool(name, description string, rawSchema json.RawMessage) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Schema:      ParseSchema(rawSchema),
		RawSchema:   rawSchema,
	}
}

// Backend 抽象外部工具后端：能力枚举与工具调用。
type Backend interface {
	ListTools(ctx context.Context) ([]Tool, error)
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
	Close() error
}

// Registry 是无缓存的能力注册表，每次查询都透传到后端。
type Registry struct {
	backend Backend
}

// NewRegistry 创建 Registry。
func NewRegistry(backend Backend) *Registry {
	return &Registry{backend: backend}
}

// ListTools 返回后端当前公布的有序工具列表。
func (r *Registry) ListTools(ctx context.Context) ([]Tool, error) {
	if r == nil || r.backend == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置工具后端")
	}
	tools, err := r.backend.ListTools(ctx)
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeToolUnavailable, err, "获取工具列表失败")
	}
	return tools, nil
}

// Lookup 以大小写敏感的精确匹配查找工具。
func (r *Registry) Lookup(ctx context.Context, name string) (Tool, bool, error) {
	tools, err := r.ListTools(ctx)
	if err != nil {
		return Tool{}, false, err
	}
	for _, tool := range tools {
		if tool.Name == name {
			return tool, true, nil
		}
	}
	return Tool{}, false, nil
}

// Invoke 调用指定工具。
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	if r == nil || r.backend == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置工具后端")
	}
	return r.backend.Invoke(ctx, name, args)
}

// MatchNormalized 在工具列表中按规范化名称查找第一个匹配项。
func MatchNormalized(tools []Tool, name string) (Tool, bool) {
	key := dialog.NormalizeName(name)
	if key == "" {
		return Tool{}, false
	}
	for _, tool := range tools {
		if dialog.NormalizeName(tool.Name) == key {
			return tool, true
		}
	}
	return Tool{}, false
}

// Names 返回工具名称列表。
func Names(tools []Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}

// Describe 生成供提示词使用的工具清单文本。
func Describe(tools []Tool) string {
	var b strings.Builder
	for _, tool := range tools {
		b.WriteString("- ")
		b.WriteString(tool.Name)
		if tool.Description != "" {
			b.WriteString(": ")
			b.WriteString(tool.Description)
		}
		required := tool.Schema.RequiredFields()
		if len(required) > 0 {
			b.WriteString(" (required: ")
			b.WriteString(strings.Join(required, ", "))
			b.WriteString(")")
		}
		var optional []string
		for name := range tool.Schema.Properties {
			if !contains(required, name) {
				optional = append(optional, name)
			}
		}
		if len(optional) > 0 {
			sort.Strings(optional)
			b.WriteString(" (optional: ")
			b.WriteString(strings.Join(optional, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
