package plugin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHostAllowed(t *testing.T) {
	cases := []struct {
		allowed []string
		host    string
		want    bool
	}{
		{nil, "rpc.ankr.com", true},
		{[]string{"rpc.ankr.com"}, "RPC.ankr.com", true},
		{[]string{"rpc.ankr.com"}, "api.openai.com", false},
		{[]string{"*.ankr.com"}, "rpc.ankr.com", true},
		{[]string{"*.ankr.com"}, "ankr.com.evil.io", false},
		{[]string{"*"}, "127.0.0.1", true},
	}
	for _, tc := range cases {
		if got := hostAllowed(tc.allowed, tc.host); got != tc.want {
			t.Fatalf("hostAllowed(%v, %q) = %v, want %v", tc.allowed, tc.host, got, tc.want)
		}
	}
}

func TestInfoHosts(t *testing.T) {
	info := Info{Endpoints: []string{"https://rpc.ankr.com/multichain/", "127.0.0.1:8545", "Example.org", ""}}
	got := strings.Join(info.Hosts(), ",")
	if got != "rpc.ankr.com,127.0.0.1,example.org" {
		t.Fatalf("unexpected hosts: %s", got)
	}
}

func TestValidateChecksEndpoints(t *testing.T) {
	s := &EgressIsolation{}
	network := []Capability{CapabilityNetwork}
	policy := IsolationPolicy{AllowedHosts: []string{"rpc.ankr.com"}}

	if err := s.Validate(Info{ID: "ankr", Capabilities: network, Endpoints: []string{"https://rpc.ankr.com/multichain/"}}, policy); err != nil {
		t.Fatalf("allowed endpoint rejected: %v", err)
	}
	if err := s.Validate(Info{ID: "ankr", Capabilities: network, Endpoints: []string{"https://mirror.example.com/"}}, policy); err == nil {
		t.Fatalf("expected endpoint outside allowed hosts to be rejected")
	}
	if err := s.Validate(Info{ID: "offline", Endpoints: []string{"https://rpc.ankr.com/"}}, policy); err == nil {
		t.Fatalf("expected endpoints without network capability to be rejected")
	}
}

func TestSandboxClientConfinesEgress(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer upstream.Close()
	u, _ := url.Parse(upstream.URL)

	s := &EgressIsolation{}
	network := []Capability{CapabilityNetwork}

	allowed, err := s.Prepare(Info{ID: "ankr", Capabilities: network}, IsolationPolicy{AllowedHosts: []string{u.Hostname()}})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	resp, err := allowed.HTTPClient.Get(upstream.URL)
	if err != nil {
		t.Fatalf("allowed request failed: %v", err)
	}
	resp.Body.Close()

	blocked, _ := s.Prepare(Info{ID: "ankr", Capabilities: network}, IsolationPolicy{AllowedHosts: []string{"rpc.ankr.com"}})
	_, err = blocked.HTTPClient.Get(upstream.URL)
	var egress *EgressError
	if !errors.As(err, &egress) || egress.Plugin != "ankr" || egress.Host != u.Hostname() {
		t.Fatalf("expected egress error, got %v", err)
	}

	offline, _ := s.Prepare(Info{ID: "offline"}, IsolationPolicy{})
	if _, err := offline.HTTPClient.Get(upstream.URL); !errors.As(err, &egress) {
		t.Fatalf("plugin without network capability reached upstream: %v", err)
	}
	if err := s.Cleanup(Info{ID: "ankr"}); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

type sandboxedPlugin struct {
	fakePlugin
	initErr error
	inits   int
	client  *http.Client
	logged  bool
	id      string
}

func (p *sandboxedPlugin) Init(ctx *ExecutionContext) error {
	p.inits++
	p.client = ctx.HTTPClient
	p.logged = ctx.Logger != nil
	p.id = ctx.PluginID
	return p.initErr
}

func TestManagerHandsSandboxToPlugin(t *testing.T) {
	m, err := NewManager(ManagerConfig{Defaults: IsolationPolicy{AllowedCapabilities: []Capability{CapabilityNetwork}}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	p := &sandboxedPlugin{
		fakePlugin: fakePlugin{info: Info{ID: "ankr", Capabilities: []Capability{CapabilityNetwork}, Endpoints: []string{"https://rpc.ankr.com/multichain/"}}},
		initErr:    errors.New("extractor missing"),
	}
	if err := m.Register("ankr", p, nil, IsolationPolicy{AllowedHosts: []string{"rpc.ankr.com"}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	if err := m.Start(ctx, "ankr"); err == nil {
		t.Fatalf("expected init failure")
	}
	if state, _ := m.State("ankr"); state != StateFailed {
		t.Fatalf("unexpected state after failed init: %s", state)
	}

	p.initErr = nil
	if err := m.Start(ctx, "ankr"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if p.inits != 2 || p.client == nil || !p.logged || p.id != "ankr" {
		t.Fatalf("sandbox not handed over: inits=%d client=%v logged=%v id=%q", p.inits, p.client, p.logged, p.id)
	}
	if _, err := p.client.Get("https://api.openai.com/v1/models"); err == nil {
		t.Fatalf("sandboxed client reached a host outside the policy")
	}
	if err := m.StopAll(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRegisterRejectsEndpointOutsidePolicy(t *testing.T) {
	m, _ := NewManager(ManagerConfig{Defaults: IsolationPolicy{AllowedCapabilities: []Capability{CapabilityNetwork}}})
	p := &fakePlugin{info: Info{ID: "ankr", Capabilities: []Capability{CapabilityNetwork}, Endpoints: []string{"https://mirror.example.com/"}}}
	if err := m.Register("ankr", p, nil, IsolationPolicy{AllowedHosts: []string{"rpc.ankr.com"}}); err == nil {
		t.Fatalf("expected endpoint outside allowed hosts to be rejected")
	}
}

func TestValidateRejectsBadAllowedHost(t *testing.T) {
	cfg := ManagerConfig{Plugins: map[string]PluginConfig{
		"x": {Enabled: true, Policy: &IsolationPolicy{AllowedHosts: []string{"https://rpc.ankr.com/"}}},
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid allowed host error")
	}
}
