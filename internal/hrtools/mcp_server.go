package hrtools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"OpenMCP-Dialog/internal/tooling"
)

// NewMCPServer 创建暴露 backend 全部工具的 MCP 服务器。
func NewMCPServer(ctx context.Context, backend tooling.Backend, name, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	tools, err := backend.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	for _, tool := range tools {
		s.AddTool(mcp.NewToolWithRawSchema(tool.Name, tool.Description, tool.RawSchema), toolHandler(backend, tool.Name))
	}
	return s, nil
}

func toolHandler(backend tooling.Backend, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := backend.Invoke(ctx, name, req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		payload, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}
