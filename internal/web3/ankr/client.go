package ankr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	xerrors "OpenMCP-Ankr/internal/errors"
)

const (
	// DefaultBaseURL 是 Ankr Advanced API 的多链入口，API Key 直接拼在路径末尾。
	DefaultBaseURL = "https://rpc.ankr.com/multichain/"
	defaultTimeout = 30 * time.Second
	methodPrefix   = "ankr_"
)

// Config 描述访问 Ankr 多链接口所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// HTTPClient 为空时使用默认客户端；非空时复制一份并套用 Timeout。
	HTTPClient *http.Client
}

// Client 以 JSON-RPC 2.0 调用 Ankr Advanced API。
type Client struct {
	endpoint   string
	redacted   string
	httpClient *http.Client
	seq        atomic.Uint64
}

// RPCError 是 Ankr 在 JSON-RPC 信封中返回的错误。
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ankr rpc error %d: %s", e.Code, e.Message)
}

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "ANKR_API_KEY not found in environment variables")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		*httpClient = *cfg.HTTPClient
	}
	httpClient.Timeout = timeout

	return &Client{
		endpoint:   baseURL + url.PathEscape(apiKey),
		redacted:   baseURL + "***",
		httpClient: httpClient,
	}, nil
}

// Endpoint 返回隐藏了 API Key 的请求地址，可安全写入日志。
func (c *Client) Endpoint() string {
	return c.redacted
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Call 发送一次 JSON-RPC 请求，method 不带 ankr_ 前缀时自动补齐。
// 调用不做重试，也不会自动翻页。
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	if !strings.HasPrefix(method, methodPrefix) {
		method = methodPrefix + method
	}
	if params == nil {
		params = struct{}{}
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.seq.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("序列化 Ankr 请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构建 Ankr 请求失败: %w", c.redact(err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("请求 Ankr 失败: %w", c.redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return xerrors.New(xerrors.CodeAPI,
			fmt.Sprintf("Ankr 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			xerrors.WithStatusCode(resp.StatusCode),
			xerrors.WithMetadata(xerrors.MetadataMethod, method),
		)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("解析 Ankr 响应失败: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return errors.New("Ankr 响应中没有 result")
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("解析 %s 结果失败: %w", method, err)
	}
	return nil
}

// redact 去掉 net/http 错误里带 API Key 的 URL。
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: c.redacted, Err: urlErr.Err}
	}
	return err
}
