package ankr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "OpenMCP-Ankr/internal/errors"
)

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "   "})
	if !xerrors.Is(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCallSendsObjectParams(t *testing.T) {
	var captured struct {
		Path string
		Body map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"usdPrice":"3021.123456","blockchain":"eth","syncStatus":{"timestamp":1700000000,"lag":"-2s","status":"synced"}}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "secret", BaseURL: srv.URL + "/multichain", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	reply, err := client.GetTokenPrice(context.Background(), TokenPriceRequest{Blockchain: "eth"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.Path != "/multichain/secret" {
		t.Fatalf("api key should be appended to the path, got %q", captured.Path)
	}
	if captured.Body["method"] != MethodGetTokenPrice || captured.Body["jsonrpc"] != "2.0" {
		t.Fatalf("unexpected envelope: %v", captured.Body)
	}
	params, ok := captured.Body["params"].(map[string]any)
	if !ok {
		t.Fatalf("params must be an object, got %T", captured.Body["params"])
	}
	if _, present := params["contractAddress"]; present {
		t.Fatalf("empty contract address must be omitted: %v", params)
	}
	if reply.UsdPrice != "3021.123456" || reply.SyncStatus == nil || reply.SyncStatus.Lag != "-2s" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestCallReturnsRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid blockchain"}}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	client.httpClient = srv.Client()

	_, err := client.GetCurrencies(context.Background(), CurrenciesRequest{Blockchain: "nope"})
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32602 || !strings.Contains(rpcErr.Error(), "invalid blockchain") {
		t.Fatalf("unexpected rpc error: %v", rpcErr)
	}
}

func TestCallHTTPErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client, _ := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	client.httpClient = srv.Client()

	err := client.Call(context.Background(), "getInteractions", InteractionsRequest{Address: "0x1"}, nil)
	xe, ok := xerrors.From(err)
	if !ok || xe.Code() != xerrors.CodeAPI || xe.StatusCode() != http.StatusForbidden {
		t.Fatalf("expected API_ERROR with status 403, got %v", err)
	}
	if xe.Metadata()["method"] != MethodGetInteractions {
		t.Fatalf("method prefix should be added, got %v", xe.Metadata())
	}
}

func TestTransportErrorHidesKey(t *testing.T) {
	client, _ := NewClient(Config{APIKey: "topsecret", BaseURL: "http://127.0.0.1:1/"})

	err := client.Call(context.Background(), MethodGetBlockchainStats, BlockchainStatsRequest{}, nil)
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if strings.Contains(err.Error(), "topsecret") {
		t.Fatalf("api key leaked into error: %v", err)
	}
}

func TestDecodeFlexibleFields(t *testing.T) {
	var history TokenHoldersCountReply
	raw := `{"latestHoldersCount":12,"holderCountHistory":[{"holderCount":10,"totalAmount":"1.5","lastUpdatedAt":"2024-03-01T00:00:00Z"},{"holderCount":12,"totalAmount":"2","lastUpdatedAt":1709337600000}]}`
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := history.HolderCountHistory[0].LastUpdatedAt.Time().Format("2006-01-02"); got != "2024-03-01" {
		t.Fatalf("iso timestamp decoded as %s", got)
	}
	if got := history.HolderCountHistory[1].LastUpdatedAt.Time().Format("2006-01-02"); got != "2024-03-02" {
		t.Fatalf("millisecond timestamp decoded as %s", got)
	}

	var meta NFTMetadataReply
	if err := json.Unmarshal([]byte(`{"metadata":{"contractType":1,"contractAddress":"0xabc"},"attributes":{"traits":[{"trait_type":"Level","value":7}]}}`), &meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Metadata.ContractType != "1" || meta.Attributes.Traits[0].Value != "7" {
		t.Fatalf("numbers should decode into text: %+v %+v", meta.Metadata, meta.Attributes)
	}

	encoded, _ := json.Marshal(AccountBalanceRequest{Blockchain: ChainSet{"eth"}, WalletAddress: "0x1"})
	if !strings.Contains(string(encoded), `"blockchain":"eth"`) {
		t.Fatalf("single chain should encode as string: %s", encoded)
	}
	encoded, _ = json.Marshal(AccountBalanceRequest{Blockchain: ChainSet{"eth", "bsc"}, WalletAddress: "0x1"})
	if !strings.Contains(string(encoded), `"blockchain":["eth","bsc"]`) {
		t.Fatalf("chain list should encode as array: %s", encoded)
	}
	encoded, _ = json.Marshal(AccountBalanceRequest{WalletAddress: "0x1"})
	if strings.Contains(string(encoded), "blockchain") {
		t.Fatalf("absent chain should be omitted: %s", encoded)
	}
}

type recordingTransport struct {
	hosts []string
}

func (r *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r.hosts = append(r.hosts, req.URL.Host)
	return http.DefaultTransport.RoundTrip(req)
}

func TestSuppliedHTTPClientIsUsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"blockchain":"eth","usdPrice":"1"}}`))
	}))
	defer srv.Close()

	transport := &recordingTransport{}
	shared := &http.Client{Transport: transport}
	client, err := NewClient(Config{APIKey: "secret", BaseURL: srv.URL, Timeout: 3 * time.Second, HTTPClient: shared})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.httpClient == shared || client.httpClient.Timeout != 3*time.Second || shared.Timeout != 0 {
		t.Fatalf("client should copy the supplied client and apply its own timeout")
	}
	if _, err := client.GetTokenPrice(context.Background(), TokenPriceRequest{Blockchain: "eth"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transport.hosts) != 1 || !strings.HasPrefix(srv.URL, "http://"+transport.hosts[0]) {
		t.Fatalf("supplied transport not used: %v", transport.hosts)
	}
}
