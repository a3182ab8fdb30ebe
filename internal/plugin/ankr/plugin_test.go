package ankr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"OpenMCP-Ankr/internal/agent"
	"OpenMCP-Ankr/internal/llm"
	"OpenMCP-Ankr/pkg/plugin"
)

func TestPluginThroughManager(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"blockchain":"eth","usdPrice":"1.5"}}`)
	}))
	defer server.Close()

	extractor := llm.ExtractorFunc(func(context.Context, llm.ExtractRequest) (map[string]any, error) {
		return map[string]any{"blockchain": "eth"}, nil
	})
	runtime := agent.NewMemoryRuntime(map[string]string{agent.APIKeySetting: "plugin-key"}, 0)

	upstream, _ := url.Parse(server.URL)

	m, err := plugin.NewManager(plugin.ManagerConfig{
		Defaults: plugin.IsolationPolicy{AllowedCapabilities: []plugin.Capability{plugin.CapabilityNetwork}},
		Plugins: map[string]plugin.PluginConfig{
			ID: {
				Enabled: true,
				Config:  map[string]any{"base_url": server.URL + "/multichain/", "call_timeout": "5s"},
				Policy:  &plugin.IsolationPolicy{AllowedHosts: []string{upstream.Hostname()}},
			},
		},
	},
		plugin.WithResource(ResourceExtractor, llm.Extractor(extractor)),
		plugin.WithResource(ResourceRuntime, agent.Runtime(runtime)),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.StopAll(context.Background())

	registered, err := m.Lookup(ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	p := registered.(*Plugin)
	info := p.Info()
	if info.Name != "plugin-ankr" || info.Description != "Ankr Plugin for web3" || len(info.Actions) != 14 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if hosts := info.Hosts(); len(hosts) != 1 || hosts[0] != upstream.Hostname() {
		t.Fatalf("endpoint should follow base_url, got %v", hosts)
	}

	actions := p.Actions()
	if len(actions) != 14 {
		t.Fatalf("expected 14 actions, got %d", len(actions))
	}
	var price agent.Action
	for _, a := range actions {
		if a.Name == "GET_TOKEN_PRICE_ANKR" {
			price = a
		}
	}
	if price.Handler == nil || !price.Validate(context.Background(), runtime, agent.Message{}) {
		t.Fatalf("token price action missing or not applicable: %+v", price)
	}

	var delivered agent.Result
	ok, err := price.Handler(context.Background(), runtime, agent.Message{Text: "price of eth"}, nil, nil, func(r agent.Result) { delivered = r })
	if err != nil || !ok {
		t.Fatalf("handler failed: %v", err)
	}
	if !strings.Contains(delivered.Text, "Price: $1.50000 USD") {
		t.Fatalf("unexpected text: %q", delivered.Text)
	}
	if path != "/multichain/plugin-key" {
		t.Fatalf("unexpected upstream path: %s", path)
	}
}

func TestPluginInitRequiresExtractor(t *testing.T) {
	p := New()
	if err := p.Init(&plugin.ExecutionContext{C: context.Background()}); err == nil {
		t.Fatalf("expected missing extractor error")
	}
	if p.Actions() != nil {
		t.Fatalf("actions should be empty before init")
	}
}

func TestConfigureRejectsBadValues(t *testing.T) {
	if err := New().Configure(map[string]any{"timeout": "soon"}); err == nil {
		t.Fatalf("expected invalid duration error")
	}
	if err := New().Configure(map[string]any{"api_key": 42}); err == nil {
		t.Fatalf("expected type error for api_key")
	}
}

func TestBannerListsActions(t *testing.T) {
	banner := Banner()
	if !strings.HasPrefix(banner, "plugin-ankr v1.0.0: Ankr Plugin for web3 (14 actions: ") {
		t.Fatalf("unexpected banner: %s", banner)
	}
	if !strings.Contains(banner, "GET_TRANSACTIONS_BY_HASH_ANKR") {
		t.Fatalf("banner should list every action: %s", banner)
	}
}

func TestPluginRejectedWhenEndpointNotAllowed(t *testing.T) {
	_, err := plugin.NewManager(plugin.ManagerConfig{
		Defaults: plugin.IsolationPolicy{AllowedCapabilities: []plugin.Capability{plugin.CapabilityNetwork}},
		Plugins: map[string]plugin.PluginConfig{
			ID: {
				Enabled: true,
				Config:  map[string]any{"base_url": "https://mirror.example.com/multichain/"},
				Policy:  &plugin.IsolationPolicy{AllowedHosts: []string{"rpc.ankr.com"}},
			},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "mirror.example.com") {
		t.Fatalf("expected policy rejection naming the host, got %v", err)
	}
}

func TestDefaultEndpointIsAnkr(t *testing.T) {
	hosts := New().Info().Hosts()
	if len(hosts) != 1 || hosts[0] != "rpc.ankr.com" {
		t.Fatalf("unexpected default hosts: %v", hosts)
	}
}
