// Package jsonrpc exposes and consumes the tool backend over JSON-RPC 2.0
// using the go-ethereum rpc stack (HTTP, WebSocket or IPC endpoints).
package jsonrpc

import (
	"context"
	"encoding/json"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/tooling"
)

// Namespace 是工具服务在 RPC 服务器上的命名空间。
const Namespace = "tools"

// ToolDescriptor 是工具在线路上的表示。
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Client 通过 JSON-RPC 实现 tooling.Backend。
type Client struct {
	rpc *gethrpc.Client
}

// Dial 连接 JSON-RPC 端点。
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置工具服务 RPC 地址")
	}
	rpcClient, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolUnavailable, err, "连接工具服务失败")
	}
	return NewClient(rpcClient), nil
}

// NewClient 包装已有的 RPC 客户端。
func NewClient(rpcClient *gethrpc.Client) *Client {
	return &Client{rpc: rpcClient}
}

// ListTools 调用 tools_list。
func (c *Client) ListTools(ctx context.Context) ([]tooling.Tool, error) {
	var descriptors []ToolDescriptor
	if err := c.rpc.CallContext(ctx, &descriptors, Namespace+"_list"); err != nil {
		return nil, err
	}
	tools := make([]tooling.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, tooling.NewTool(d.Name, d.Description, d.InputSchema))
	}
	return tools, nil
}

// Invoke 调用 tools_call。
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	var result any
	if err := c.rpc.CallContext(ctx, &result, Namespace+"_call", name, args); err != nil {
		return nil, err
	}
	return result, nil
}

// Close 关闭连接。
func (c *Client) Close() error {
	if c.rpc != nil {
		c.rpc.Close()
	}
	return nil
}

// Service 是注册到 RPC 服务器上的工具服务。
type Service struct {
	backend tooling.Backend
}

// List 返回工具清单。
func (s *Service) List(ctx context.Context) ([]ToolDescriptor, error) {
	tools, err := s.backend.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		out = append(out, ToolDescriptor{Name: tool.Name, Description: tool.Description, InputSchema: tool.RawSchema})
	}
	return out, nil
}

// Call 执行工具。
func (s *Service) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	return s.backend.Invoke(ctx, name, args)
}

// NewServer 创建暴露 backend 的 RPC 服务器，返回值可直接作为 http.Handler 使用。
func NewServer(backend tooling.Backend) (*gethrpc.Server, error) {
	if backend == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工具后端不能为空")
	}
	srv := gethrpc.NewServer()
	if err := srv.RegisterName(Namespace, &Service{backend: backend}); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "注册工具服务失败")
	}
	return srv, nil
}
