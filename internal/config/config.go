package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/pkg/logger"
)

// EnvConfigPath 是未显式指定时读取配置文件路径的环境变量。
const EnvConfigPath = "DIALOG_CONFIG"

// Config 描述了对话服务在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Logging   logger.Config   `json:"logging" yaml:"logging"`
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Tools     ToolsConfig     `json:"tools" yaml:"tools"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	TaskQueue TaskQueueConfig `json:"task_queue" yaml:"task_queue"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Alerting  AlertingConfig  `json:"alerting" yaml:"alerting"`
	Runtime   RuntimeConfig   `json:"runtime" yaml:"runtime"`
}

// Duration 支持以 "1500ms"、"5s" 这样的字符串或纳秒整数书写时长。
type Duration time.Duration

// Std 返回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalJSON 实现 json.Unmarshaler。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw any) error {
	switch v := raw.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(time.Duration(v))
	case int:
		*d = Duration(time.Duration(v))
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address         string   `json:"address" yaml:"address"`
	ReadTimeout     Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AgentConfig 调整编排器的行为。
type AgentConfig struct {
	ConfidenceThreshold float64  `json:"confidence_threshold" yaml:"confidence_threshold"`
	MemoryDepth         int      `json:"memory_depth" yaml:"memory_depth"`
	DetectTimeout       Duration `json:"detect_timeout" yaml:"detect_timeout"`
	RenderTimeout       Duration `json:"render_timeout" yaml:"render_timeout"`
}

// LLMConfig 用于配置意图检测与回复生成所用的大模型。
type LLMConfig struct {
	Provider  string             `json:"provider" yaml:"provider"`
	OpenAI    ProviderConfig     `json:"openai" yaml:"openai"`
	Anthropic ProviderConfig     `json:"anthropic" yaml:"anthropic"`
	Python    PythonBridgeConfig `json:"python_bridge" yaml:"python_bridge"`
}

// ProviderConfig 描述托管模型服务的访问参数。APIKeyEnv 优先于 APIKey。
type ProviderConfig struct {
	APIKey      string   `json:"api_key" yaml:"api_key"`
	APIKeyEnv   string   `json:"api_key_env" yaml:"api_key_env"`
	BaseURL     string   `json:"base_url" yaml:"base_url"`
	Model       string   `json:"model" yaml:"model"`
	Temperature float64  `json:"temperature" yaml:"temperature"`
	MaxTokens   int64    `json:"max_tokens" yaml:"max_tokens"`
	Timeout     Duration `json:"timeout" yaml:"timeout"`
}

// PythonBridgeConfig 描述通过 Python 脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable" yaml:"python_executable"`
	ScriptPath       string `json:"script_path" yaml:"script_path"`
	WorkingDir       string `json:"working_dir" yaml:"working_dir"`
}

// ToolsConfig 选择工具后端的传输方式。
type ToolsConfig struct {
	Transport   string        `json:"transport" yaml:"transport"`
	CallTimeout Duration      `json:"call_timeout" yaml:"call_timeout"`
	MCP         MCPConfig     `json:"mcp" yaml:"mcp"`
	JSONRPC     JSONRPCConfig `json:"jsonrpc" yaml:"jsonrpc"`
}

// MCPConfig 描述以 stdio 子进程方式启动的 MCP 工具服务。
type MCPConfig struct {
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
	Env     []string `json:"env" yaml:"env"`
}

// JSONRPCConfig 描述 JSON-RPC 工具服务地址，支持 http、ws 与 IPC 路径。
type JSONRPCConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// StorageConfig 描述对话归档的存储后端。
type StorageConfig struct {
	Transcripts TranscriptStoreConfig `json:"transcripts" yaml:"transcripts"`
}

// TranscriptStoreConfig 支持 none、file 与 mysql 三种驱动。
type TranscriptStoreConfig struct {
	Driver string      `json:"driver" yaml:"driver"`
	MySQL  MySQLConfig `json:"mysql" yaml:"mysql"`
}

// MySQLConfig 描述 MySQL 连接池参数。DSNEnv 优先于 DSN。
type MySQLConfig struct {
	DSN             string   `json:"dsn" yaml:"dsn"`
	DSNEnv          string   `json:"dsn_env" yaml:"dsn_env"`
	MaxOpenConns    int      `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int      `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// TaskQueueConfig 控制异步轮次的存储与队列。
type TaskQueueConfig struct {
	Enabled    bool           `json:"enabled" yaml:"enabled"`
	Store      string         `json:"store" yaml:"store"`
	Queue      string         `json:"queue" yaml:"queue"`
	Workers    int            `json:"workers" yaml:"workers"`
	MaxRetries int            `json:"max_retries" yaml:"max_retries"`
	BufferSize int            `json:"buffer_size" yaml:"buffer_size"`
	MySQL      MySQLConfig    `json:"mysql" yaml:"mysql"`
	Redis      RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ   RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列。
type RedisConfig struct {
	Address     string   `json:"address" yaml:"address"`
	Password    string   `json:"password" yaml:"password"`
	PasswordEnv string   `json:"password_env" yaml:"password_env"`
	DB          int      `json:"db" yaml:"db"`
	Queue       string   `json:"queue" yaml:"queue"`
	BlockWait   Duration `json:"block_wait" yaml:"block_wait"`
}

// RabbitMQConfig 描述 RabbitMQ 队列。URLEnv 优先于 URL。
type RabbitMQConfig struct {
	URL      string `json:"url" yaml:"url"`
	URLEnv   string `json:"url_env" yaml:"url_env"`
	Queue    string `json:"queue" yaml:"queue"`
	Prefetch int    `json:"prefetch" yaml:"prefetch"`
	Durable  bool   `json:"durable" yaml:"durable"`
}

// MetricsConfig 控制 Prometheus 指标暴露。Address 为空时挂载到 API 服务的 /metrics。
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
}

// AlertingConfig 配置异步轮次失败时的告警渠道。
type AlertingConfig struct {
	Log     bool          `json:"log" yaml:"log"`
	Webhook WebhookConfig `json:"webhook" yaml:"webhook"`
	Slack   WebhookConfig `json:"slack" yaml:"slack"`
}

// WebhookConfig 描述一个 HTTP 告警端点。
type WebhookConfig struct {
	URL     string            `json:"url" yaml:"url"`
	URLEnv  string            `json:"url_env" yaml:"url_env"`
	Headers map[string]string `json:"headers" yaml:"headers"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// Load 解析指定路径的配置文件。扩展名为 .yaml 或 .yml 时按 YAML 解析，否则按 JSON 解析。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取配置文件失败")
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析配置失败")
	}

	cfg.applyDefaults(filepath.Dir(path))
	cfg.resolveSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv 读取 DIALOG_CONFIG 指向的配置文件；未设置时返回全部默认值。
func LoadFromEnv() (*Config, error) {
	path := strings.TrimSpace(os.Getenv(EnvConfigPath))
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Default 返回仅包含默认值的配置，基准目录为当前工作目录。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	cfg.resolveSecrets()
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(15 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(60 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Agent.ConfidenceThreshold <= 0 {
		c.Agent.ConfidenceThreshold = 0.7
	}
	if c.Agent.MemoryDepth <= 0 {
		c.Agent.MemoryDepth = 5
	}
	if c.Agent.DetectTimeout == 0 {
		c.Agent.DetectTimeout = Duration(30 * time.Second)
	}
	if c.Agent.RenderTimeout == 0 {
		c.Agent.RenderTimeout = Duration(30 * time.Second)
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "template"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.Anthropic.APIKeyEnv == "" {
		c.LLM.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	c.LLM.Python.WorkingDir = resolvePath(baseDir, c.LLM.Python.WorkingDir, baseDir)

	if c.Tools.Transport == "" {
		c.Tools.Transport = "local"
	}
	if c.Tools.CallTimeout == 0 {
		c.Tools.CallTimeout = Duration(30 * time.Second)
	}

	if c.Storage.Transcripts.Driver == "" {
		c.Storage.Transcripts.Driver = "file"
	}

	if c.TaskQueue.Store == "" {
		c.TaskQueue.Store = "memory"
	}
	if c.TaskQueue.Queue == "" {
		c.TaskQueue.Queue = "memory"
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 1
	}
	if c.TaskQueue.MaxRetries <= 0 {
		c.TaskQueue.MaxRetries = 3
	}
	if c.TaskQueue.BufferSize <= 0 {
		c.TaskQueue.BufferSize = 256
	}

	c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir, filepath.Join(baseDir, "data"))
}

func resolvePath(baseDir, value, fallback string) string {
	if value == "" {
		return fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}

// resolveSecrets 用 *_env 指向的环境变量覆盖明文字段。
func (c *Config) resolveSecrets() {
	c.LLM.OpenAI.APIKey = fromEnv(c.LLM.OpenAI.APIKeyEnv, c.LLM.OpenAI.APIKey)
	c.LLM.Anthropic.APIKey = fromEnv(c.LLM.Anthropic.APIKeyEnv, c.LLM.Anthropic.APIKey)
	c.Storage.Transcripts.MySQL.DSN = fromEnv(c.Storage.Transcripts.MySQL.DSNEnv, c.Storage.Transcripts.MySQL.DSN)
	c.TaskQueue.MySQL.DSN = fromEnv(c.TaskQueue.MySQL.DSNEnv, c.TaskQueue.MySQL.DSN)
	c.TaskQueue.Redis.Password = fromEnv(c.TaskQueue.Redis.PasswordEnv, c.TaskQueue.Redis.Password)
	c.TaskQueue.RabbitMQ.URL = fromEnv(c.TaskQueue.RabbitMQ.URLEnv, c.TaskQueue.RabbitMQ.URL)
	c.Alerting.Webhook.URL = fromEnv(c.Alerting.Webhook.URLEnv, c.Alerting.Webhook.URL)
	c.Alerting.Slack.URL = fromEnv(c.Alerting.Slack.URLEnv, c.Alerting.Slack.URL)
}

func fromEnv(name, fallback string) string {
	if name == "" {
		return fallback
	}
	if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// Validate 检查枚举字段与必填组合。
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "template", "openai", "anthropic", "python_bridge":
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的 llm.provider: %s", c.LLM.Provider))
	}
	switch c.Tools.Transport {
	case "local":
	case "mcp":
		if strings.TrimSpace(c.Tools.MCP.Command) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "tools.mcp.command 不能为空")
		}
	case "jsonrpc":
		if strings.TrimSpace(c.Tools.JSONRPC.Endpoint) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "tools.jsonrpc.endpoint 不能为空")
		}
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的 tools.transport: %s", c.Tools.Transport))
	}
	switch c.Storage.Transcripts.Driver {
	case "none", "file", "mysql":
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的 storage.transcripts.driver: %s", c.Storage.Transcripts.Driver))
	}
	switch c.TaskQueue.Store {
	case "memory", "mysql":
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的 task_queue.store: %s", c.TaskQueue.Store))
	}
	switch c.TaskQueue.Queue {
	case "memory", "redis", "rabbitmq":
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的 task_queue.queue: %s", c.TaskQueue.Queue))
	}
	return nil
}
