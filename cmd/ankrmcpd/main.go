package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"OpenMCP-Ankr/internal/agent"
	"OpenMCP-Ankr/internal/api"
	"OpenMCP-Ankr/internal/config"
	"OpenMCP-Ankr/internal/observability/metrics"
	"OpenMCP-Ankr/internal/plugin/ankr"
	"OpenMCP-Ankr/internal/task"
	"OpenMCP-Ankr/pkg/logger"
	"OpenMCP-Ankr/pkg/plugin"
)

// main 是 ankrmcpd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ankrmcpd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Service:     "ankrmcpd",
		AddSource:   cfg.Logging.AddSource,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	daemonLog := logger.Named("ankrmcpd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}

	// 初始化参数抽取器。
	extractor, err := newExtractor(ctx, cfg)
	if err != nil {
		return err
	}

	history, closeHistory, err := newHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	runtime := agent.NewMemoryRuntime(cfg.Runtime.Settings, cfg.Runtime.HistoryDepth)
	agentOpts := []agent.Option{
		agent.WithLogger(logger.Named("agent")),
		agent.WithObserver(metrics.ActionObserver{}),
		agent.WithHistory(history),
	}
	if key := cfg.AnkrDefaultKey(); key != "" {
		agentOpts = append(agentOpts, agent.WithDefaultAPIKey(key))
	}

	// 通过插件宿主构建 Ankr 插件。
	managerCfg, err := pluginConfig(cfg)
	if err != nil {
		return err
	}
	manager, err := plugin.NewManager(managerCfg,
		plugin.WithLogger(logger.Named("plugin")),
		plugin.WithIsolationStrategy(&plugin.EgressIsolation{Base: upstreamTransport()}),
		plugin.WithResource(ankr.ResourceExtractor, extractor),
		plugin.WithResource(ankr.ResourceRuntime, agent.Runtime(runtime)),
		plugin.WithResource(ankr.ResourceOptions, agentOpts),
	)
	if err != nil {
		return err
	}
	if err := manager.StartAll(ctx); err != nil {
		return err
	}
	defer func() {
		if err := manager.StopAll(context.WithoutCancel(ctx)); err != nil {
			daemonLog.Warn("停止插件失败", slog.Any("error", err))
		}
	}()

	registered, err := manager.Lookup(ankr.ID)
	if err != nil {
		return fmt.Errorf("%w (已注册工厂: %s)", err, strings.Join(plugin.Factories(), ", "))
	}
	ankrPlugin, ok := registered.(*ankr.Plugin)
	if !ok || ankrPlugin.Agent() == nil {
		return errors.New("Ankr 插件未正确初始化")
	}
	ag := ankrPlugin.Agent()

	group, groupCtx := errgroup.WithContext(ctx)
	apiOpts := []api.Option{
		api.WithAuthTokens(cfg.Server.AuthTokens...),
		api.WithShutdownGrace(cfg.Server.ShutdownGrace.Std()),
	}

	if cfg.Task.Enabled {
		store, queue, err := newTaskBackend(ctx, cfg)
		if err != nil {
			return err
		}
		service := task.NewService(store, queue, cfg.Task.MaxRetries)
		defer func() {
			if err := service.Close(); err != nil {
				daemonLog.Warn("关闭任务服务失败", slog.Any("error", err))
			}
		}()

		processor := task.NewProcessor(ag, store, queue, queue,
			task.WithWorkerCount(cfg.Task.Workers),
			task.WithRetryBackoff(task.ExponentialBackoff(cfg.Task.RetryBackoff.Std(), cfg.Task.RetryBackoffMax.Std())),
			task.WithProcessorLogger(logger.Named("task")),
			task.WithAlertDispatcher(newAlerting(cfg)),
		)
		group.Go(func() error {
			return ignoreCanceled(processor.Start(groupCtx))
		})
		apiOpts = append(apiOpts, api.WithTaskService(service))
	}

	if cfg.Server.MetricsAddress != "" {
		group.Go(func() error {
			return ignoreCanceled(metrics.StartServer(groupCtx, cfg.Server.MetricsAddress))
		})
	}

	server := api.NewServer(cfg.Server.Address, ag, apiOpts...)
	group.Go(func() error {
		return ignoreCanceled(server.Start(groupCtx))
	})

	daemonLog.Info("ankrmcpd 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.Bool("tasks", cfg.Task.Enabled),
	)
	return group.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
