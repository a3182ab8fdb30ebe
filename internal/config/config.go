package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "ANKRMCP_CONFIG"

// DefaultPath 是未设置 EnvConfigPath 时使用的配置文件。
const DefaultPath = "configs/ankrmcp.json"

// Config 描述了 ankrmcpd 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Ankr     AnkrConfig     `json:"ankr"`
	LLM      LLMConfig      `json:"llm"`
	Storage  StorageConfig  `json:"storage"`
	Task     TaskConfig     `json:"task"`
	Alerting AlertingConfig `json:"alerting"`
	Plugins  PluginsConfig  `json:"plugins"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址与访问令牌。
type ServerConfig struct {
	Address        string   `json:"address"`
	MetricsAddress string   `json:"metrics_address"`
	AuthTokens     []string `json:"auth_tokens"`
	AuthTokensEnv  string   `json:"auth_tokens_env"`
	ShutdownGrace  Duration `json:"shutdown_grace"`
}

// LoggingConfig 对应 pkg/logger.Config。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	AddSource   bool        `json:"add_source"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的落盘位置与轮转策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// AnkrConfig 描述访问 Ankr Advanced API 的参数。
type AnkrConfig struct {
	APIKey         string   `json:"api_key"`
	APIKeyEnv      string   `json:"api_key_env"`
	BaseURL        string   `json:"base_url"`
	Timeout        Duration `json:"timeout"`
	ExtractTimeout Duration `json:"extract_timeout"`
	CallTimeout    Duration `json:"call_timeout"`
	ModelClass     string   `json:"model_class"`
}

// LLMConfig 用于配置参数抽取所用的大模型。
type LLMConfig struct {
	Provider string             `json:"provider"`
	OpenAI   ProviderConfig     `json:"openai"`
	Gemini   ProviderConfig     `json:"gemini"`
	Python   PythonBridgeConfig `json:"python_bridge"`
}

// ProviderConfig 是 HTTP 类模型服务的公共配置。
type ProviderConfig struct {
	APIKey    string            `json:"api_key"`
	APIKeyEnv string            `json:"api_key_env"`
	BaseURL   string            `json:"base_url"`
	Model     string            `json:"model"`
	Models    map[string]string `json:"models"`
	Timeout   Duration          `json:"timeout"`
}

// PythonBridgeConfig 描述通过 Python 脚本完成抽取时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable"`
	ScriptPath       string `json:"script_path"`
	WorkingDir       string `json:"working_dir"`
}

// StorageConfig 描述调用历史与任务状态的存储后端。
type StorageConfig struct {
	History   BackendConfig `json:"history"`
	TaskStore BackendConfig `json:"task_store"`
}

// BackendConfig 选择 memory 或 mysql 后端。
type BackendConfig struct {
	Driver          string   `json:"driver"`
	DSN             string   `json:"dsn"`
	DSNEnv          string   `json:"dsn_env"`
	MaxOpenConns    int      `json:"max_open_conns"`
	MaxIdleConns    int      `json:"max_idle_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime"`
}

// TaskConfig 控制异步调用的队列与工作协程。
type TaskConfig struct {
	Enabled    bool `json:"enabled"`
	Workers    int  `json:"workers"`
	MaxRetries int  `json:"max_retries"`
	// RetryBackoff 为首次重试前的等待，之后逐次翻倍，不超过 RetryBackoffMax。
	RetryBackoff    Duration       `json:"retry_backoff"`
	RetryBackoffMax Duration       `json:"retry_backoff_max"`
	Queue           QueueConfig    `json:"queue"`
	Redis           RedisConfig    `json:"redis"`
	RabbitMQ        RabbitMQConfig `json:"rabbitmq"`
}

// QueueConfig 选择队列实现：memory、redis 或 rabbitmq。
type QueueConfig struct {
	Driver string `json:"driver"`
	Size   int    `json:"size"`
}

// RedisConfig 描述 Redis 队列。
type RedisConfig struct {
	Address   string   `json:"address"`
	Password  string   `json:"password"`
	DB        int      `json:"db"`
	Queue     string   `json:"queue"`
	BlockWait Duration `json:"block_wait"`
}

// RabbitMQConfig 描述 RabbitMQ 队列。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	URLEnv   string `json:"url_env"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// AlertingConfig 配置任务告警渠道。
type AlertingConfig struct {
	Log     bool              `json:"log"`
	Webhook string            `json:"webhook_url"`
	Headers map[string]string `json:"webhook_headers"`
	Slack   string            `json:"slack_webhook_url"`
}

// PluginsConfig 指向插件管理器的 YAML 配置。
type PluginsConfig struct {
	ConfigPath string `json:"config_path"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir      string            `json:"data_dir"`
	HistoryDepth int               `json:"history_depth"`
	Settings     map[string]string `json:"settings"`
}

// Duration 支持 "5s" 形式的字符串或秒数。
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	case string:
		if v == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("无效的时长 %q: %w", v, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("无效的时长类型 %T", raw)
	}
	return nil
}

// MarshalJSON 以字符串形式输出时长。
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std 返回 time.Duration。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Path 返回当前生效的配置文件路径。
func Path() string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	return DefaultPath
}

// LoadDotEnv 加载工作目录与配置目录下的 .env 文件，已存在的环境变量不会被覆盖。
func LoadDotEnv(dirs ...string) error {
	for _, dir := range append([]string{"."}, dirs...) {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("加载 %s 失败: %w", path, err)
		}
	}
	return nil
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	baseDir := filepath.Dir(path)
	if err := LoadDotEnv(baseDir); err != nil {
		return nil, err
	}
	cfg.applyDefaults(baseDir)
	cfg.resolveSecrets()

	return &cfg, nil
}

// Default 返回未加载文件时的默认配置，相对路径以工作目录为准。
func Default() *Config {
	cfg := &Config{}
	_ = LoadDotEnv()
	cfg.applyDefaults(".")
	cfg.resolveSecrets()
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.AuthTokensEnv == "" {
		c.Server.AuthTokensEnv = "ANKRMCP_AUTH_TOKENS"
	}
	if c.Server.ShutdownGrace <= 0 {
		c.Server.ShutdownGrace = Duration(5 * time.Second)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}

	if c.Ankr.APIKeyEnv == "" {
		c.Ankr.APIKeyEnv = "ANKR_API_KEY"
	}
	if c.Ankr.ModelClass == "" {
		c.Ankr.ModelClass = "small"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.Gemini.APIKeyEnv == "" {
		c.LLM.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	if c.LLM.Python.WorkingDir == "" {
		c.LLM.Python.WorkingDir = baseDir
	} else if !filepath.IsAbs(c.LLM.Python.WorkingDir) {
		c.LLM.Python.WorkingDir = filepath.Join(baseDir, c.LLM.Python.WorkingDir)
	}

	if c.Storage.History.Driver == "" {
		c.Storage.History.Driver = "memory"
	}
	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}

	if c.Task.Workers <= 0 {
		c.Task.Workers = 4
	}
	if c.Task.MaxRetries <= 0 {
		c.Task.MaxRetries = 3
	}
	if c.Task.RetryBackoff <= 0 {
		c.Task.RetryBackoff = Duration(time.Second)
	}
	if c.Task.RetryBackoffMax < c.Task.RetryBackoff {
		c.Task.RetryBackoffMax = Duration(30 * time.Second)
	}
	if c.Task.Queue.Driver == "" {
		c.Task.Queue.Driver = "memory"
	}

	if c.Plugins.ConfigPath != "" && !filepath.IsAbs(c.Plugins.ConfigPath) {
		c.Plugins.ConfigPath = filepath.Join(baseDir, c.Plugins.ConfigPath)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Runtime.HistoryDepth <= 0 {
		c.Runtime.HistoryDepth = 10
	}
}

// resolveSecrets 在配置值为空时从环境变量读取密钥。
func (c *Config) resolveSecrets() {
	fromEnv := func(value *string, env string) {
		if strings.TrimSpace(*value) == "" && env != "" {
			*value = strings.TrimSpace(os.Getenv(env))
		}
	}
	fromEnv(&c.LLM.OpenAI.APIKey, c.LLM.OpenAI.APIKeyEnv)
	fromEnv(&c.LLM.Gemini.APIKey, c.LLM.Gemini.APIKeyEnv)
	fromEnv(&c.Storage.History.DSN, c.Storage.History.DSNEnv)
	fromEnv(&c.Storage.TaskStore.DSN, c.Storage.TaskStore.DSNEnv)
	fromEnv(&c.Task.RabbitMQ.URL, c.Task.RabbitMQ.URLEnv)

	if len(c.Server.AuthTokens) == 0 {
		for _, token := range strings.Split(os.Getenv(c.Server.AuthTokensEnv), ",") {
			if token = strings.TrimSpace(token); token != "" {
				c.Server.AuthTokens = append(c.Server.AuthTokens, token)
			}
		}
	}
}

// AnkrDefaultKey 返回配置层面的 Ankr 密钥：文件中的 api_key 优先，其次为 api_key_env 指向的变量。
// 运行时设置与 ANKR_API_KEY 环境变量的优先级由 agent.ResolveAPIKey 处理。
func (c *Config) AnkrDefaultKey() string {
	if key := strings.TrimSpace(c.Ankr.APIKey); key != "" {
		return key
	}
	if c.Ankr.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(c.Ankr.APIKeyEnv))
	}
	return ""
}
