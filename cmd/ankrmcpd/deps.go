package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"OpenMCP-Ankr/internal/config"
	"OpenMCP-Ankr/internal/llm"
	"OpenMCP-Ankr/internal/llm/gemini"
	"OpenMCP-Ankr/internal/llm/openai"
	"OpenMCP-Ankr/internal/llm/pythonbridge"
	"OpenMCP-Ankr/internal/observability/alerting"
	"OpenMCP-Ankr/internal/plugin/ankr"
	storage "OpenMCP-Ankr/internal/storage/mysql"
	"OpenMCP-Ankr/internal/task"
	"OpenMCP-Ankr/pkg/plugin"
)

// newExtractor 按 provider 创建参数抽取器。
func newExtractor(ctx context.Context, cfg *config.Config) (llm.Extractor, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Models:  modelClasses(cfg.LLM.OpenAI.Models),
			Timeout: cfg.LLM.OpenAI.Timeout.Std(),
		})
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:  cfg.LLM.Gemini.APIKey,
			BaseURL: cfg.LLM.Gemini.BaseURL,
			Model:   cfg.LLM.Gemini.Model,
			Models:  modelClasses(cfg.LLM.Gemini.Models),
		})
	case "python_bridge":
		script := pythonbridge.ResolveScriptPath(cfg.LLM.Python.WorkingDir, cfg.LLM.Python.ScriptPath)
		return pythonbridge.NewClient(cfg.LLM.Python.PythonExecutable, script, cfg.LLM.Python.WorkingDir)
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func modelClasses(models map[string]string) map[llm.ModelClass]string {
	if len(models) == 0 {
		return nil
	}
	out := make(map[llm.ModelClass]string, len(models))
	for class, model := range models {
		out[llm.ModelClass(strings.ToLower(class))] = model
	}
	return out
}

// newHistory 创建调用历史仓库，返回的关闭函数总是可调用。
func newHistory(ctx context.Context, cfg *config.Config) (storage.InvocationRepository, func(), error) {
	backend := cfg.Storage.History
	switch backend.Driver {
	case "", "memory":
		repo, err := storage.NewMemoryInvocationRepository(cfg.Runtime.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	case "mysql":
		repo, err := storage.NewSQLInvocationRepository(ctx, mysqlConfig(backend))
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的历史存储驱动: %s", backend.Driver)
	}
}

func mysqlConfig(backend config.BackendConfig) storage.Config {
	return storage.Config{
		DSN:             backend.DSN,
		MaxOpenConns:    backend.MaxOpenConns,
		MaxIdleConns:    backend.MaxIdleConns,
		ConnMaxLifetime: backend.ConnMaxLifetime.Std(),
	}
}

// newTaskBackend 根据配置选择任务存储与队列实现。
func newTaskBackend(ctx context.Context, cfg *config.Config) (task.Store, task.Queue, error) {
	var store task.Store
	switch cfg.Storage.TaskStore.Driver {
	case "", "memory":
		store = task.NewMemoryStore()
	case "mysql":
		mysqlStore, err := task.NewMySQLStore(ctx, mysqlConfig(cfg.Storage.TaskStore))
		if err != nil {
			return nil, nil, err
		}
		store = mysqlStore
	default:
		return nil, nil, fmt.Errorf("未知的任务存储驱动: %s", cfg.Storage.TaskStore.Driver)
	}

	var queue task.Queue
	switch cfg.Task.Queue.Driver {
	case "", "memory":
		queue = task.NewMemoryQueue(cfg.Task.Queue.Size)
	case "redis":
		redisQueue, err := task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Task.Redis.Address,
			Password:  cfg.Task.Redis.Password,
			DB:        cfg.Task.Redis.DB,
			Queue:     cfg.Task.Redis.Queue,
			BlockWait: cfg.Task.Redis.BlockWait.Std(),
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.Task.RabbitMQ.URL,
			Queue:    cfg.Task.RabbitMQ.Queue,
			Prefetch: cfg.Task.RabbitMQ.Prefetch,
			Durable:  cfg.Task.RabbitMQ.Durable,
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		queue = rabbitQueue
	default:
		_ = store.Close()
		return nil, nil, fmt.Errorf("未知的队列驱动: %s", cfg.Task.Queue.Driver)
	}
	return store, queue, nil
}

// newAlerting 组装告警渠道；未配置任何渠道时退化为日志告警。
func newAlerting(cfg *config.Config) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.Alerting.Log {
		notifiers = append(notifiers, alerting.LogNotifier{})
	}
	if cfg.Alerting.Webhook != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.Webhook, Headers: cfg.Alerting.Headers})
	}
	if cfg.Alerting.Slack != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{WebhookURL: cfg.Alerting.Slack})
	}
	if len(notifiers) == 0 {
		notifiers = append(notifiers, alerting.LogNotifier{})
	}
	return alerting.NewFanout(notifiers...)
}

// pluginConfig 读取插件宿主配置，并把 ankr 配置段作为插件配置的默认值。
// upstreamTransport 供插件沙箱使用，所有 Ankr 请求都打到同一主机，放宽单主机空闲连接数。
func upstreamTransport() *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32
	transport.IdleConnTimeout = 90 * time.Second
	return transport
}

func pluginConfig(cfg *config.Config) (plugin.ManagerConfig, error) {
	managerCfg := plugin.ManagerConfig{
		Defaults: plugin.IsolationPolicy{AllowedCapabilities: []plugin.Capability{plugin.CapabilityNetwork}},
		Plugins:  map[string]plugin.PluginConfig{},
	}
	if cfg.Plugins.ConfigPath != "" {
		loaded, err := plugin.LoadManagerConfig(cfg.Plugins.ConfigPath)
		if err != nil {
			return plugin.ManagerConfig{}, err
		}
		managerCfg = loaded
	}

	block, configured := managerCfg.Plugins[ankr.ID]
	if !configured {
		block.Enabled = true
	}
	if !block.Enabled {
		return plugin.ManagerConfig{}, fmt.Errorf("插件 %s 已被禁用", ankr.ID)
	}
	merged := ankrDefaults(cfg.Ankr)
	for key, value := range block.Config {
		merged[key] = value
	}
	block.Config = merged
	managerCfg.Plugins[ankr.ID] = block
	return managerCfg, nil
}

func ankrDefaults(c config.AnkrConfig) map[string]any {
	out := map[string]any{}
	if c.BaseURL != "" {
		out["base_url"] = c.BaseURL
	}
	if c.ModelClass != "" {
		out["model_class"] = c.ModelClass
	}
	durations := map[string]config.Duration{
		"timeout":         c.Timeout,
		"extract_timeout": c.ExtractTimeout,
		"call_timeout":    c.CallTimeout,
	}
	for key, d := range durations {
		if d > 0 {
			out[key] = d.Std().String()
		}
	}
	return out
}
