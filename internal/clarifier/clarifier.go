// Package clarifier determines which required arguments an intent still
// lacks, by consulting the tool registry's argument contracts.
package clarifier

import (
	"context"
	"log/slog"

	"OpenMCP-Dialog/internal/dialog"
	"OpenMCP-Dialog/internal/tooling"
	"OpenMCP-Dialog/pkg/logger"
)

// ToolLister 是 Resolver 依赖的能力注册表子集。
type ToolLister interface {
	ListTools(ctx context.Context) ([]tooling.Tool, error)
}

// Resolver 负责计算意图缺失的必填参数。
type Resolver struct {
	tools ToolLister
	log   *slog.Logger
}

// New 创建 Resolver。
func New(tools ToolLister) *Resolver {
	return &Resolver{tools: tools, log: logger.Named("clarifier")}
}

// MissingRequired 返回 intent 对应工具仍缺失的必填字段，顺序与契约声明一致。
// 工具名称采用大小写敏感的精确匹配；找不到工具时返回空列表，由调度器负责判定未知工具。
func (r *Resolver) MissingRequired(ctx context.Context, intent string, given map[string]any) ([]string, error) {
	tools, err := r.tools.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	for _, tool := range tools {
		if tool.Name != intent {
			continue
		}
		if !tool.Schema.Available() {
			r.log.Debug("工具参数契约不可用，跳过必填校验", "tool", tool.Name, "reason", tool.Schema.Reason)
		}
		missing := Missing(tool.Schema, given)
		if len(missing) > 0 {
			r.log.Info("意图缺少必填参数", "intent", intent, "missing", missing)
		}
		return missing, nil
	}
	return []string{}, nil
}

// Lookup 按规范化名称（去空白、小写）查找意图对应的工具，与调度器的匹配规则一致。
func (r *Resolver) Lookup(ctx context.Context, intent string) (tooling.Tool, bool, error) {
	tools, err := r.tools.ListTools(ctx)
	if err != nil {
		return tooling.Tool{}, false, err
	}
	tool, ok := tooling.MatchNormalized(tools, intent)
	return tool, ok, nil
}

// Missing 计算 given 相对于 schema 缺失的必填字段。缺失、nil 与空串均视为未提供。
func Missing(schema tooling.ArgumentSchema, given map[string]any) []string {
	missing := []string{}
	for _, field := range schema.RequiredFields() {
		if v, ok := given[field]; !ok || dialog.IsEmptyValue(v) {
			missing = append(missing, field)
		}
	}
	return missing
}
