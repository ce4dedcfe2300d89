package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"OpenMCP-Dialog/internal/agent"
	"OpenMCP-Dialog/internal/api"
	"OpenMCP-Dialog/internal/clarifier"
	"OpenMCP-Dialog/internal/config"
	"OpenMCP-Dialog/internal/dialog"
	"OpenMCP-Dialog/internal/dispatcher"
	"OpenMCP-Dialog/internal/hrtools"
	"OpenMCP-Dialog/internal/llm"
	"OpenMCP-Dialog/internal/llm/anthropic"
	"OpenMCP-Dialog/internal/llm/openai"
	"OpenMCP-Dialog/internal/llm/pythonbridge"
	"OpenMCP-Dialog/internal/llm/template"
	"OpenMCP-Dialog/internal/observability/alerting"
	"OpenMCP-Dialog/internal/observability/metrics"
	"OpenMCP-Dialog/internal/session"
	"OpenMCP-Dialog/internal/storage"
	"OpenMCP-Dialog/internal/storage/mysql"
	"OpenMCP-Dialog/internal/task"
	"OpenMCP-Dialog/internal/tooling"
	"OpenMCP-Dialog/internal/tooling/jsonrpc"
	"OpenMCP-Dialog/internal/tooling/mcp"
	"OpenMCP-Dialog/pkg/logger"
)

const version = "0.1.0"

// main 是对话编排服务的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("dialogd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	collector := metrics.Default()

	backend, err := createToolBackend(ctx, cfg)
	if err != nil {
		return err
	}
	gate := tooling.NewGate(backend,
		tooling.WithCallTimeout(cfg.Tools.CallTimeout.Std()),
		tooling.WithObserver(collector.ObserveToolCall),
	)
	defer gate.Close()
	registry := tooling.NewRegistry(gate)

	completer, err := createCompleter(cfg)
	if err != nil {
		return err
	}
	var (
		detector llm.Detector
		renderer llm.Renderer
	)
	canned := template.New()
	if completer == nil {
		detector = template.NewDetector(registry)
		renderer = canned
	} else {
		detector = llm.NewIntentDetector(completer, registry)
		renderer = llm.NewResponseRenderer(completer, canned)
	}

	store := session.NewMemoryStore()
	resolver := clarifier.New(registry)
	executor := dispatcher.New(registry, resolver, store,
		dispatcher.WithResultObserver(func(_ string, status dialog.Status) {
			collector.ObserveIntentResult(string(status))
		}),
	)

	opts := []agent.Option{
		agent.WithConfidenceThreshold(cfg.Agent.ConfidenceThreshold),
		agent.WithMemoryDepth(cfg.Agent.MemoryDepth),
		agent.WithDetectTimeout(cfg.Agent.DetectTimeout.Std()),
		agent.WithRenderTimeout(cfg.Agent.RenderTimeout.Std()),
		agent.WithFallbackRenderer(canned),
		agent.WithTurnObserver(func(outcome agent.Outcome, elapsed time.Duration) {
			collector.ObserveTurn(string(outcome), elapsed)
		}),
	}
	archive, err := createTranscriptRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		if closer, ok := archive.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		opts = append(opts, agent.WithTranscriptRepository(archive))
	}
	orchestrator := agent.New(store, detector, resolver, executor, renderer, opts...)

	serverOpts := []api.Option{
		api.WithTimeouts(cfg.Server.ReadTimeout.Std(), cfg.Server.WriteTimeout.Std(), cfg.Server.ShutdownTimeout.Std()),
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		serverOpts = append(serverOpts, api.WithMetricsHandler(collector.Handler()))
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.TaskQueue.Enabled {
		taskStore, err := createTaskStore(ctx, cfg)
		if err != nil {
			return err
		}
		taskQueue, err := createTaskQueue(ctx, cfg)
		if err != nil {
			_ = taskStore.Close()
			return err
		}
		service := task.NewService(taskStore, taskQueue, cfg.TaskQueue.MaxRetries)
		defer func() {
			if err := service.Close(); err != nil {
				logger.L().Warn("关闭任务服务失败", slog.Any("error", err))
			}
		}()

		processor := task.NewProcessor(orchestrator, taskStore, taskQueue, taskQueue,
			task.WithWorkerCount(cfg.TaskQueue.Workers),
			task.WithProcessorLogger(logger.Named("task.processor")),
			task.WithAlertDispatcher(createAlertDispatcher(cfg)),
		)
		g.Go(func() error {
			return ignoreCanceled(processor.Start(gctx))
		})
		serverOpts = append(serverOpts, api.WithTurnQueue(service))
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Address != "" {
		g.Go(func() error {
			logger.L().Info("指标服务已启动", slog.String("addr", cfg.Metrics.Address))
			return ignoreCanceled(metrics.StartServer(gctx, cfg.Metrics.Address))
		})
	}

	server := api.NewServer(cfg.Server.Address, orchestrator, serverOpts...)
	g.Go(func() error {
		return ignoreCanceled(server.Start(gctx))
	})

	logger.L().Info("dialogd 已启动",
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("tools_transport", cfg.Tools.Transport),
		slog.Bool("task_queue", cfg.TaskQueue.Enabled),
	)
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func createToolBackend(ctx context.Context, cfg *config.Config) (tooling.Backend, error) {
	switch cfg.Tools.Transport {
	case "local":
		return hrtools.NewCatalog(), nil
	case "mcp":
		return mcp.Dial(ctx, mcp.Config{
			Command:       cfg.Tools.MCP.Command,
			Args:          cfg.Tools.MCP.Args,
			Env:           cfg.Tools.MCP.Env,
			ClientName:    "dialogd",
			ClientVersion: version,
		})
	case "jsonrpc":
		return jsonrpc.Dial(ctx, cfg.Tools.JSONRPC.Endpoint)
	default:
		return nil, fmt.Errorf("未知的工具传输方式: %s", cfg.Tools.Transport)
	}
}

// createCompleter 返回 nil 表示使用不依赖大模型的 template 模式。
func createCompleter(cfg *config.Config) (llm.Completer, error) {
	switch cfg.LLM.Provider {
	case "template":
		return nil, nil
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.OpenAI.APIKey,
			BaseURL:     cfg.LLM.OpenAI.BaseURL,
			Model:       cfg.LLM.OpenAI.Model,
			Temperature: cfg.LLM.OpenAI.Temperature,
			MaxTokens:   cfg.LLM.OpenAI.MaxTokens,
			Timeout:     cfg.LLM.OpenAI.Timeout.Std(),
		})
	case "anthropic":
		return anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.LLM.Anthropic.APIKey,
			BaseURL:     cfg.LLM.Anthropic.BaseURL,
			Model:       cfg.LLM.Anthropic.Model,
			Temperature: cfg.LLM.Anthropic.Temperature,
			MaxTokens:   cfg.LLM.Anthropic.MaxTokens,
			Timeout:     cfg.LLM.Anthropic.Timeout.Std(),
		})
	case "python_bridge":
		scriptPath := pythonbridge.ResolveScriptPath(cfg.LLM.Python.WorkingDir, cfg.LLM.Python.ScriptPath)
		return pythonbridge.NewClient(cfg.LLM.Python.PythonExecutable, scriptPath, cfg.LLM.Python.WorkingDir)
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func mysqlConfig(c config.MySQLConfig) mysql.Config {
	return mysql.Config{
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime.Std(),
	}
}

func createTranscriptRepository(ctx context.Context, cfg *config.Config) (storage.TranscriptRepository, error) {
	switch cfg.Storage.Transcripts.Driver {
	case "none":
		return nil, nil
	case "file":
		return storage.NewFileTranscriptRepository(cfg.Runtime.DataDir)
	case "mysql":
		return mysql.NewSQLTranscriptRepository(ctx, mysqlConfig(cfg.Storage.Transcripts.MySQL))
	default:
		return nil, fmt.Errorf("未知的归档驱动: %s", cfg.Storage.Transcripts.Driver)
	}
}

func createTaskStore(ctx context.Context, cfg *config.Config) (task.Store, error) {
	switch cfg.TaskQueue.Store {
	case "memory":
		return task.NewMemoryStore(), nil
	case "mysql":
		return task.NewMySQLStore(ctx, mysqlConfig(cfg.TaskQueue.MySQL))
	default:
		return nil, fmt.Errorf("未知的任务存储: %s", cfg.TaskQueue.Store)
	}
}

func createTaskQueue(ctx context.Context, cfg *config.Config) (task.Queue, error) {
	switch cfg.TaskQueue.Queue {
	case "memory":
		return task.NewMemoryQueue(cfg.TaskQueue.BufferSize), nil
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.TaskQueue.Redis.Address,
			Password:  cfg.TaskQueue.Redis.Password,
			DB:        cfg.TaskQueue.Redis.DB,
			Queue:     cfg.TaskQueue.Redis.Queue,
			BlockWait: cfg.TaskQueue.Redis.BlockWait.Std(),
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.TaskQueue.RabbitMQ.URL,
			Queue:    cfg.TaskQueue.RabbitMQ.Queue,
			Prefetch: cfg.TaskQueue.RabbitMQ.Prefetch,
			Durable:  cfg.TaskQueue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.TaskQueue.Queue)
	}
}

func createAlertDispatcher(cfg *config.Config) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.Alerting.Log {
		notifiers = append(notifiers, alerting.LogNotifier{})
	}
	if cfg.Alerting.Webhook.URL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.Webhook.URL, Headers: cfg.Alerting.Webhook.Headers})
	}
	if cfg.Alerting.Slack.URL != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{WebhookURL: cfg.Alerting.Slack.URL})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}
