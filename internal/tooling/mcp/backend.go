// Package mcp connects the tool registry to a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/tooling"
)

// Config 描述以 stdio 子进程方式启动的 MCP 服务。
type Config struct {
	Command       string
	Args          []string
	Env           []string
	ClientName    string
	ClientVersion string
}

// Backend 通过 MCP 协议实现 tooling.Backend。
type Backend struct {
	client *mcpclient.Client
}

// Dial 启动 MCP 子进程并完成初始化握手。
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 MCP 服务启动命令")
	}
	client, err := mcpclient.NewStdioMCPClient(command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolUnavailable, err, "启动 MCP 服务失败")
	}
	backend, err := New(ctx, client, cfg.ClientName, cfg.ClientVersion)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return backend, nil
}

// New 对已建立传输的客户端执行初始化握手。
func New(ctx context.Context, client *mcpclient.Client, name, version string) (*Backend, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MCP 客户端不能为空")
	}
	if name == "" {
		name = "openmcp-dialog"
	}
	if version == "" {
		version = "dev"
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: name, Version: version}
	if _, err := client.Initialize(ctx, req); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolUnavailable, err, "MCP 初始化握手失败")
	}
	return &Backend{client: client}, nil
}

// ListTools 实现 tooling.Backend。
func (b *Backend) ListTools(ctx context.Context) ([]tooling.Tool, error) {
	resp, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	tools := make([]tooling.Tool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		raw := t.RawInputSchema
		if len(raw) == 0 {
			raw = tooling.MarshalSchema(t.InputSchema)
		}
		tools = append(tools, tooling.NewTool(t.Name, t.Description, raw))
	}
	return tools, nil
}

// Invoke 实现 tooling.Backend。文本内容若是合法 JSON 则解码后返回。
func (b *Backend) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	resp, err := b.client.CallTool(ctx, req)
	if err != nil {
		return nil, err
	}
	texts := collectText(resp.Content)
	if resp.IsError {
		msg := strings.Join(texts, "; ")
		if msg == "" {
			msg = "tool reported an error"
		}
		return nil, xerrors.Wrap(xerrors.CodeToolFailure, stdErrors.New(msg), fmt.Sprintf("工具 %s 返回错误", name))
	}
	switch len(texts) {
	case 0:
		return nil, nil
	case 1:
		return decodeText(texts[0]), nil
	default:
		values := make([]any, 0, len(texts))
		for _, text := range texts {
			values = append(values, decodeText(text))
		}
		return values, nil
	}
}

// Close 结束 MCP 会话。
func (b *Backend) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

func collectText(contents []mcp.Content) []string {
	texts := make([]string, 0, len(contents))
	for _, content := range contents {
		switch c := content.(type) {
		case mcp.TextContent:
			texts = append(texts, c.Text)
		case *mcp.TextContent:
			texts = append(texts, c.Text)
		}
	}
	return texts
}

func decodeText(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err == nil {
		return value
	}
	return text
}
