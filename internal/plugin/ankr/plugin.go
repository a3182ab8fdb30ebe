// Package ankr packages the Ankr actions as a host plugin: it builds the
// agent from resources supplied by the host and exposes the action manifest.
package ankr

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"OpenMCP-Ankr/internal/action"
	"OpenMCP-Ankr/internal/agent"
	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/llm"
	ankrapi "OpenMCP-Ankr/internal/web3/ankr"
	"OpenMCP-Ankr/internal/web3/chains"
	"OpenMCP-Ankr/pkg/logger"
	"OpenMCP-Ankr/pkg/plugin"
)

// 插件元数据。
const (
	ID          = "plugin-ankr"
	Description = "Ankr Plugin for web3"
	Version     = "1.0.0"
)

// 宿主通过 ExecutionContext.Resources 提供的依赖。
const (
	ResourceExtractor = "llm:extractor"
	ResourceRuntime   = "agent:runtime"
	ResourceOptions   = "agent:options"
)

func init() {
	plugin.RegisterFactory(ID, func() plugin.Plugin { return New() })
}

// Plugin 实现 plugin.Plugin，持有构建好的 Agent。
type Plugin struct {
	mu      sync.RWMutex
	options []agent.Option
	baseURL string
	agent   *agent.Agent
	logger  *slog.Logger
}

// New 创建插件，opts 会与配置块及宿主资源中的选项合并。
func New(opts ...agent.Option) *Plugin {
	return &Plugin{options: opts, logger: logger.Named("plugin")}
}

// Info 返回插件元数据，Endpoints 随 base_url 配置变化。
func (p *Plugin) Info() plugin.Info {
	p.mu.RLock()
	endpoint := p.baseURL
	p.mu.RUnlock()
	if endpoint == "" {
		endpoint = ankrapi.DefaultBaseURL
	}
	names := make([]string, 0, len(action.All()))
	for _, d := range action.All() {
		names = append(names, d.Name)
	}
	return plugin.Info{
		ID:           ID,
		Name:         ID,
		Description:  Description,
		Author:       "OpenMCP",
		Version:      Version,
		Category:     plugin.TypeAction,
		Capabilities: []plugin.Capability{plugin.CapabilityNetwork},
		Endpoints:    []string{endpoint},
		Actions:      names,
	}
}

// Configure 解析配置块：api_key、base_url 以及 timeout/extract_timeout/call_timeout。
func (p *Plugin) Configure(cfg map[string]any) error {
	var opts []agent.Option
	if key, err := stringValue(cfg, "api_key"); err != nil {
		return err
	} else if key != "" {
		opts = append(opts, agent.WithDefaultAPIKey(key))
	}
	base, err := stringValue(cfg, "base_url")
	if err != nil {
		return err
	}
	if base != "" {
		opts = append(opts, agent.WithAnkrBaseURL(base))
	}
	durations := []struct {
		key   string
		apply func(time.Duration) agent.Option
	}{
		{"timeout", agent.WithAnkrTimeout},
		{"extract_timeout", agent.WithExtractTimeout},
		{"call_timeout", agent.WithCallTimeout},
	}
	for _, d := range durations {
		value, err := durationValue(cfg, d.key)
		if err != nil {
			return err
		}
		if value > 0 {
			opts = append(opts, d.apply(value))
		}
	}
	if class, err := stringValue(cfg, "model_class"); err != nil {
		return err
	} else if class != "" {
		opts = append(opts, agent.WithModelClass(llm.ModelClass(class)))
	}

	p.mu.Lock()
	p.options = append(p.options, opts...)
	if base != "" {
		p.baseURL = base
	}
	p.mu.Unlock()
	return nil
}

// Init 从宿主资源构建 Agent；未提供运行时则使用内存运行时。
// 宿主沙箱提供的 HTTP 客户端最后生效，配置无法绕过出口限制。
func (p *Plugin) Init(ctx *plugin.ExecutionContext) error {
	extractor, ok := ctx.Resources[ResourceExtractor].(llm.Extractor)
	if !ok || extractor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未提供参数抽取器资源 "+ResourceExtractor)
	}
	rt, _ := ctx.Resources[ResourceRuntime].(agent.Runtime)
	if rt == nil {
		rt = agent.NewMemoryRuntime(nil, 0)
	}
	extra, _ := ctx.Resources[ResourceOptions].([]agent.Option)

	p.mu.Lock()
	defer p.mu.Unlock()
	opts := append(append([]agent.Option(nil), p.options...), extra...)
	if ctx.HTTPClient != nil {
		opts = append(opts, agent.WithHTTPClient(ctx.HTTPClient))
	}
	if ctx.Logger != nil {
		p.logger = ctx.Logger
	}
	p.agent = agent.New(rt, extractor, opts...)
	p.logger.Debug("agent built", slog.Bool("sandboxed", ctx.HTTPClient != nil))
	return nil
}

// Start 输出插件横幅。
func (p *Plugin) Start(*plugin.ExecutionContext) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.agent == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "插件尚未初始化")
	}
	p.logger.Info(Banner(),
		slog.Int("actions", len(action.All())),
		slog.Int("chains", len(chains.All())),
	)
	return nil
}

// Stop 对无状态插件无需操作。
func (p *Plugin) Stop(*plugin.ExecutionContext) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.logger.Info("ankr plugin stopped")
	return nil
}

// Agent 返回初始化后的 Agent，Init 之前为 nil。
func (p *Plugin) Agent() *agent.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.agent
}

// Actions 返回向宿主注册的动作清单。
func (p *Plugin) Actions() []agent.Action {
	ag := p.Agent()
	if ag == nil {
		return nil
	}
	return ag.Actions()
}

// Banner 返回启动时打印的一行摘要。
func Banner() string {
	names := make([]string, 0, len(action.All()))
	for _, d := range action.All() {
		names = append(names, d.Name)
	}
	return fmt.Sprintf("%s v%s: %s (%d actions: %s)", ID, Version, Description, len(names), strings.Join(names, ", "))
}

func stringValue(cfg map[string]any, key string) (string, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, raw)
	}
	return strings.TrimSpace(value), nil
}

func durationValue(cfg map[string]any, key string) (time.Duration, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case time.Duration:
		return v, nil
	default:
		return 0, fmt.Errorf("%s must be a duration, got %T", key, raw)
	}
}

var _ plugin.Plugin = (*Plugin)(nil)
