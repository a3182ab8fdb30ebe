package plugin

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// Sandbox holds the restricted facilities handed to a plugin for its lifetime.
type Sandbox struct {
	// HTTPClient only reaches hosts admitted by the plugin policy.
	HTTPClient *http.Client
}

// IsolationStrategy enforces security restrictions for plugins at runtime.
type IsolationStrategy interface {
	Validate(info Info, policy IsolationPolicy) error
	Prepare(info Info, policy IsolationPolicy) (Sandbox, error)
	Cleanup(info Info) error
}

// EgressError is returned by sandboxed HTTP clients for requests outside the policy.
type EgressError struct {
	Plugin string
	Host   string
	Reason string
}

func (e *EgressError) Error() string {
	return fmt.Sprintf("plugin %s may not reach %s: %s", e.Plugin, e.Host, e.Reason)
}

// EgressIsolation checks capabilities and confines plugin HTTP traffic to AllowedHosts.
type EgressIsolation struct {
	// Base is the transport wrapped by sandboxed clients; defaults to http.DefaultTransport.
	Base http.RoundTripper

	mu      sync.Mutex
	clients map[string]*http.Client
}

// Validate ensures requested capabilities and declared endpoints are allowed.
func (s *EgressIsolation) Validate(info Info, policy IsolationPolicy) error {
	for _, cap := range policy.DeniedCapabilities {
		if slices.Contains(info.Capabilities, cap) {
			return fmt.Errorf("capability %s is explicitly denied", cap)
		}
	}
	if len(policy.AllowedCapabilities) > 0 {
		for _, cap := range info.Capabilities {
			if !slices.Contains(policy.AllowedCapabilities, cap) {
				return fmt.Errorf("capability %s not permitted", cap)
			}
		}
	}
	hosts := info.Hosts()
	if len(hosts) > 0 && !slices.Contains(info.Capabilities, CapabilityNetwork) {
		return fmt.Errorf("plugin %s declares endpoints without the %s capability", info.ID, CapabilityNetwork)
	}
	for _, host := range hosts {
		if !hostAllowed(policy.AllowedHosts, host) {
			return fmt.Errorf("endpoint host %s not in allowed hosts", host)
		}
	}
	return nil
}

// Prepare builds the plugin's sandboxed HTTP client.
func (s *EgressIsolation) Prepare(info Info, policy IsolationPolicy) (Sandbox, error) {
	base := s.Base
	if base == nil {
		base = http.DefaultTransport
	}
	transport := &egressTransport{
		base:    base,
		plugin:  info.ID,
		network: slices.Contains(info.Capabilities, CapabilityNetwork),
		allowed: slices.Clone(policy.AllowedHosts),
	}
	client := &http.Client{Transport: transport}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients == nil {
		s.clients = make(map[string]*http.Client)
	}
	s.clients[info.ID] = client
	return Sandbox{HTTPClient: client}, nil
}

// Cleanup drops the plugin's idle upstream connections.
func (s *EgressIsolation) Cleanup(info Info) error {
	s.mu.Lock()
	client := s.clients[info.ID]
	delete(s.clients, info.ID)
	s.mu.Unlock()
	if client != nil {
		client.CloseIdleConnections()
	}
	return nil
}

type egressTransport struct {
	base    http.RoundTripper
	plugin  string
	network bool
	allowed []string
}

func (t *egressTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := strings.ToLower(req.URL.Hostname())
	if !t.network {
		return nil, &EgressError{Plugin: t.plugin, Host: host, Reason: "network capability not granted"}
	}
	if !hostAllowed(t.allowed, host) {
		return nil, &EgressError{Plugin: t.plugin, Host: host, Reason: "host not in allowed hosts"}
	}
	return t.base.RoundTrip(req)
}

func (t *egressTransport) CloseIdleConnections() {
	if closer, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

// hostAllowed treats an empty allow list as unrestricted.
func hostAllowed(allowed []string, host string) bool {
	if len(allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, pattern := range allowed {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "*", pattern == host:
			return true
		case strings.HasPrefix(pattern, "*.") && strings.HasSuffix(host, pattern[1:]):
			return true
		}
	}
	return false
}

// NewIsolationStrategy returns the egress strategy when none is supplied.
func NewIsolationStrategy(strategy IsolationStrategy) IsolationStrategy {
	if strategy == nil {
		return &EgressIsolation{}
	}
	return strategy
}

// MergePolicies layers the plugin policy over the manager defaults.
func MergePolicies(defaults IsolationPolicy, plugin *IsolationPolicy) IsolationPolicy {
	if plugin == nil || plugin.empty() {
		return defaults
	}
	return plugin.Merge(defaults)
}

// EnsurePolicy rejects plugins that request capabilities under an empty policy.
func EnsurePolicy(info Info, policy IsolationPolicy) error {
	if len(info.Capabilities) == 0 {
		return nil
	}
	if policy.empty() {
		return fmt.Errorf("plugin %s declares capabilities but no isolation policy applies", info.ID)
	}
	return nil
}
