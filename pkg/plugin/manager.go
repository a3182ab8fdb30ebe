package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"OpenMCP-Ankr/pkg/logger"
)

// Manager keeps track of registered plugins and orchestrates their lifecycle.
type Manager struct {
	mu        sync.RWMutex
	registry  map[string]*instance
	loader    Loader
	isolation IsolationStrategy
	resources map[string]any
	defaults  IsolationPolicy
	logger    *slog.Logger
}

type instance struct {
	mu      sync.Mutex
	Plugin  Plugin
	Info    Info
	State   State
	Config  map[string]any
	Policy  IsolationPolicy
	Source  string
	sandbox Sandbox
}

// NewManager constructs a manager using the supplied configuration and options.
func NewManager(cfg ManagerConfig, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		registry:  make(map[string]*instance),
		loader:    FactoryLoader{},
		isolation: NewIsolationStrategy(nil),
		resources: make(map[string]any),
		defaults:  cfg.Defaults,
		logger:    logger.Named("plugin-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.isolation = NewIsolationStrategy(m.isolation)
	if err := m.loadConfigured(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// Register registers a plugin instance directly with the manager.
func (m *Manager) Register(id string, p Plugin, cfg map[string]any, policy IsolationPolicy) error {
	if id == "" {
		return errors.New("plugin id cannot be empty")
	}
	if p == nil {
		return errors.New("plugin implementation cannot be nil")
	}
	if info := p.Info(); info.ID != "" && info.ID != id {
		return fmt.Errorf("plugin id mismatch: %s != %s", info.ID, id)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	if err := p.Configure(cfg); err != nil {
		return fmt.Errorf("configure plugin %s: %w", id, err)
	}
	info := mergeInfo(p.Info(), id)
	policy = MergePolicies(m.defaults, &policy)
	if err := EnsurePolicy(info, policy); err != nil {
		return err
	}
	if err := m.isolation.Validate(info, policy); err != nil {
		return fmt.Errorf("plugin %s rejected by isolation policy: %w", id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registry[id]; exists {
		return fmt.Errorf("plugin %s already registered", id)
	}
	m.registry[id] = &instance{Plugin: p, Info: info, State: StateRegistered, Config: cfg, Policy: policy, Source: "manual"}
	m.logger.Debug("plugin registered",
		slog.String("plugin", id),
		slog.Any("capabilities", info.Capabilities),
		slog.String("hosts", strings.Join(info.Hosts(), ",")),
	)
	return nil
}

// Load builds a plugin through the configured loader and registers it with the manager.
func (m *Manager) Load(id string, factory string, cfg map[string]any, policy IsolationPolicy) error {
	if factory == "" {
		return errors.New("plugin factory cannot be empty")
	}
	p, err := m.loader.Load(factory)
	if err != nil {
		return fmt.Errorf("load plugin %s: %w", id, err)
	}
	if err := m.Register(id, p, cfg, policy); err != nil {
		return err
	}
	m.setSource(id, factory)
	return nil
}

func (m *Manager) setSource(id, source string) {
	_ = m.withInstance(id, func(inst *instance) error {
		inst.Source = source
		return nil
	})
}

// withInstance runs fn while holding the plugin's lifecycle lock.
func (m *Manager) withInstance(id string, fn func(*instance) error) error {
	inst, err := m.get(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return fn(inst)
}

// Start prepares the sandbox, then initialises and starts a plugin by id.
// A plugin whose Init failed is marked failed and retried on the next Start.
func (m *Manager) Start(ctx context.Context, id string) error {
	return m.withInstance(id, func(inst *instance) error { return m.start(ctx, id, inst) })
}

func (m *Manager) start(ctx context.Context, id string, inst *instance) error {
	if inst.State == StateStarted {
		return nil
	}
	sandbox, err := m.isolation.Prepare(inst.Info, inst.Policy)
	if err != nil {
		return fmt.Errorf("prepare isolation for %s: %w", id, err)
	}
	inst.sandbox = sandbox
	execCtx := m.executionContext(ctx, id, inst)
	if inst.State != StateInitialised {
		if err := inst.Plugin.Init(execCtx.Clone()); err != nil {
			inst.State = StateFailed
			_ = m.isolation.Cleanup(inst.Info)
			return fmt.Errorf("initialise plugin %s: %w", id, err)
		}
		inst.State = StateInitialised
	}
	if err := inst.Plugin.Start(execCtx.Clone()); err != nil {
		_ = m.isolation.Cleanup(inst.Info)
		return fmt.Errorf("start plugin %s: %w", id, err)
	}
	inst.State = StateStarted
	m.logger.Info("plugin started",
		slog.String("plugin", id),
		slog.String("version", inst.Info.Version),
		slog.String("source", inst.Source),
		slog.Int("actions", len(inst.Info.Actions)),
	)
	return nil
}

func (m *Manager) executionContext(ctx context.Context, id string, inst *instance) *ExecutionContext {
	return &ExecutionContext{
		C:          ctx,
		PluginID:   id,
		Config:     inst.Config,
		Resources:  m.resources,
		Logger:     m.logger.With(slog.String("plugin", id)),
		HTTPClient: inst.sandbox.HTTPClient,
	}
}

// Stop halts a plugin if it is running.
func (m *Manager) Stop(ctx context.Context, id string) error {
	return m.withInstance(id, func(inst *instance) error { return m.stop(ctx, id, inst) })
}

func (m *Manager) stop(ctx context.Context, id string, inst *instance) error {
	if inst.State != StateStarted {
		return nil
	}
	if err := inst.Plugin.Stop(m.executionContext(ctx, id, inst).Clone()); err != nil {
		return fmt.Errorf("stop plugin %s: %w", id, err)
	}
	if err := m.isolation.Cleanup(inst.Info); err != nil {
		return fmt.Errorf("cleanup isolation for %s: %w", id, err)
	}
	inst.State = StateStopped
	inst.sandbox = Sandbox{}
	m.logger.Info("plugin stopped", slog.String("plugin", id))
	return nil
}

// StartAll starts all registered plugins in id order.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, id := range m.ids() {
		if err := m.Start(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops all active plugins in reverse id order and reports every failure.
func (m *Manager) StopAll(ctx context.Context) error {
	ids := m.ids()
	var errs []error
	for i := len(ids) - 1; i >= 0; i-- {
		if err := m.Stop(ctx, ids[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the registered plugin implementation.
func (m *Manager) Lookup(id string) (Plugin, error) {
	inst, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return inst.Plugin, nil
}

// Infos returns metadata for every registered plugin, sorted by id.
func (m *Manager) Infos() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.registry))
	for _, id := range slices.Sorted(maps.Keys(m.registry)) {
		infos = append(infos, m.registry[id].Info)
	}
	return infos
}

func (m *Manager) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.registry))
}

// State returns the lifecycle state of a plugin.
func (m *Manager) State(id string) (State, error) {
	var state State
	err := m.withInstance(id, func(inst *instance) error {
		state = inst.State
		return nil
	})
	return state, err
}

func (m *Manager) get(id string) (*instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.registry[id]
	if !ok {
		return nil, fmt.Errorf("plugin %s not registered", id)
	}
	return inst, nil
}

// loadConfigured loads enabled plugins in id order so a failing entry is
// reported the same way on every run.
func (m *Manager) loadConfigured(cfg ManagerConfig) error {
	for _, id := range slices.Sorted(maps.Keys(cfg.Plugins)) {
		pluginCfg := cfg.Plugins[id]
		if !pluginCfg.Enabled {
			continue
		}
		policy := MergePolicies(cfg.Defaults, pluginCfg.Policy)
		if err := m.Load(id, pluginCfg.FactoryName(id), maps.Clone(pluginCfg.Config), policy); err != nil {
			return err
		}
	}
	return nil
}

func mergeInfo(info Info, id string) Info {
	if info.ID == "" {
		info.ID = id
	}
	return info
}
