package plugin

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
)

// Plugin is the lifecycle contract between the daemon and a compiled-in plugin.
// The manager calls Configure once at registration, then Init and Start with a
// sandboxed ExecutionContext, and Stop on shutdown.
type Plugin interface {
	Info() Info
	// Configure may inject defaults into cfg; Info is read again afterwards so
	// endpoints derived from configuration are policy-checked.
	Configure(cfg map[string]any) error
	Init(ctx *ExecutionContext) error
	Start(ctx *ExecutionContext) error
	Stop(ctx *ExecutionContext) error
}

// ExecutionContext is passed to plugins for every lifecycle stage.
type ExecutionContext struct {
	C context.Context
	// PluginID is the id the plugin was registered under.
	PluginID string
	Config   map[string]any
	// Resources exposes shared services supplied by the host application.
	Resources map[string]any
	// Logger is tagged with the plugin id.
	Logger *slog.Logger
	// HTTPClient is confined to the plugin's allowed hosts.
	HTTPClient *http.Client
}

// Clone returns a copy whose maps the plugin may mutate freely.
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return nil
	}
	dup := *c
	dup.Config = maps.Clone(c.Config)
	dup.Resources = maps.Clone(c.Resources)
	return &dup
}

// Option modifies the behaviour of a plugin manager instance.
type Option func(*Manager)

// WithLoader overrides the default factory loader implementation.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithIsolationStrategy sets a custom isolation policy enforcement strategy.
func WithIsolationStrategy(strategy IsolationStrategy) Option {
	return func(m *Manager) {
		if strategy != nil {
			m.isolation = strategy
		}
	}
}

// WithResource registers a shared resource that will be exposed to all plugins.
func WithResource(key string, value any) Option {
	return func(m *Manager) {
		if key == "" || value == nil {
			return
		}
		if m.resources == nil {
			m.resources = make(map[string]any)
		}
		m.resources[key] = value
	}
}

// WithLogger sets the manager logger; plugin loggers derive from it.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
