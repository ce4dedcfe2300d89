// Command hrtoolsd serves the built-in HR tool catalog to dialogd over MCP
// stdio or JSON-RPC HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"OpenMCP-Dialog/internal/hrtools"
	"OpenMCP-Dialog/internal/tooling/jsonrpc"
	"OpenMCP-Dialog/pkg/logger"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          "hrtoolsd",
		Short:        "Serve the HR tool catalog",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// stdout 属于 MCP 协议，日志只能写 stderr。
			return logger.Init(logger.Config{Level: logLevel, Format: "json", OutputPaths: []string{"stderr"}})
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(newMCPStdioCmd(), newJSONRPCCmd())
	return root
}

func newMCPStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-stdio",
		Short: "Speak MCP over stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := hrtools.NewMCPServer(cmd.Context(), hrtools.NewCatalog(), "hrtoolsd", version)
			if err != nil {
				return err
			}
			logger.L().Info("MCP stdio 服务已启动")
			return server.ServeStdio(s)
		},
	}
}

func newJSONRPCCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "jsonrpc",
		Short: "Serve JSON-RPC over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rpcServer, err := jsonrpc.NewServer(hrtools.NewCatalog())
			if err != nil {
				return err
			}
			defer rpcServer.Stop()
			return serveHTTP(cmd.Context(), addr, rpcServer)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address")
	return cmd
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.L().Info("JSON-RPC 工具服务已启动", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
