package pgwapi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	log "PGWDash/internal/log"

	"github.com/go-resty/resty/v2"
	"github.com/mattn/go-ieproxy"
)

// ErrUnauthorized 后端返回 401，令牌已被清除
var ErrUnauthorized = errors.New("登录已失效，请重新登录")

// APIError 非 2xx 响应或网络错误的统一表示
type APIError struct {
	Status  int    // HTTP 状态码，网络错误时为 0
	Message string // 后端 error 字段，缺失时为通用提示
	Method  string
	Path    string
	Err     error // 底层网络错误
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrUnauthorized) 对 401 成立
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Transport 是否为网络层错误
func (e *APIError) Transport() bool {
	return e.Status == 0
}

// genericMessage 后端未提供 error 字段时的提示
func genericMessage(status int) string {
	if status == 0 {
		return "网络请求失败，请检查 API 地址"
	}
	return fmt.Sprintf("请求失败 (HTTP %d)", status)
}

// TokenSource 提供当前登录令牌，没有则返回空串
type TokenSource interface {
	Token() string
}

// TokenFunc 函数形式的 TokenSource
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// UnauthorizedHandler 收到 401 时调用，用于全局清除令牌
type UnauthorizedHandler func()

// Options 客户端配置
type Options struct {
	BaseURL   string        // 例如 http://localhost:8082/api/v1
	Timeout   time.Duration // 单次请求超时
	Tokens    TokenSource
	Transport http.RoundTripper // 为空时使用带系统代理检测的默认 Transport
}

// Client pgw REST API 客户端，不做任何重试
type Client struct {
	http    *resty.Client
	baseURL string
	tokens  TokenSource

	mu             sync.RWMutex
	onUnauthorized UnauthorizedHandler
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New 创建客户端
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = defaultTransport()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTransport(transport)

	return &Client{
		http:    client,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		tokens:  opts.Tokens,
	}
}

// defaultTransport 启用系统/环境代理检测：先读 env，再回退到系统代理
func defaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:           ieproxy.GetProxyFunc(),
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
}

// BaseURL 返回 API 地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OnUnauthorized 注册 401 处理函数（进程级副作用）
func (c *Client) OnUnauthorized(h UnauthorizedHandler) {
	c.mu.Lock()
	c.onUnauthorized = h
	c.mu.Unlock()
}

// Send 发送请求。body 为空时不带请求体，dest 为空时忽略响应体。
func (c *Client) Send(ctx context.Context, method, path string, body, dest interface{}) error {
	req := c.http.R().SetContext(ctx).SetError(&errorBody{})

	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.SetAuthToken(token)
		}
	}
	if body != nil {
		req.SetBody(body)
	}
	if dest != nil {
		req.SetResult(dest)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warnf("[PGW-API] %s %s 网络错误: %v", method, path, err)
		return &APIError{Method: method, Path: path, Message: genericMessage(0), Err: err}
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		log.Debugf("[PGW-API] %s %s -> %d", method, path, status)
		return nil
	}

	apiErr := &APIError{Status: status, Method: method, Path: path, Message: genericMessage(status)}
	if eb, ok := resp.Error().(*errorBody); ok && eb != nil {
		if eb.Error != "" {
			apiErr.Message = eb.Error
		} else if eb.Message != "" {
			apiErr.Message = eb.Message
		}
	}

	if status == http.StatusUnauthorized {
		log.Warnf("[PGW-API] %s %s 返回 401，清除本地令牌", method, path)
		c.mu.RLock()
		handler := c.onUnauthorized
		c.mu.RUnlock()
		if handler != nil {
			handler()
		}
		return apiErr
	}

	log.Debugf("[PGW-API] %s %s -> %d: %s", method, path, status, apiErr.Message)
	return apiErr
}

// Message 提取适合直接展示给用户的错误信息
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
