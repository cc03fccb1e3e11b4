// Package provider 外部图书数据源客户端
// 每个数据源把自己的记录映射为book.NormalizedBook，由upsert统一落库
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/pkg/circuitbreaker"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
	"github.com/xiebiao/bookcatalog/pkg/metrics"
	"github.com/xiebiao/bookcatalog/pkg/ratelimit"
)

// ISBNPrefix sourceID的ISBN形式："isbn:9780441013593"
const ISBNPrefix = "isbn:"

// 数据源错误
var (
	// ErrNotFound 数据源没有这条记录，不可重试，不计入熔断
	ErrNotFound = apperrors.New(apperrors.ErrCodeProviderNotFound, "数据源无此记录")

	// ErrUnknownSource 没有注册该数据源的客户端
	ErrUnknownSource = apperrors.New(apperrors.ErrCodeInvalidParams, "不支持的数据源")
)

// Provider 按数据源记录ID拉取一条图书
// sourceID可以是数据源自己的ID，也可以是"isbn:"前缀的ISBN
type Provider interface {
	Source() string
	Fetch(ctx context.Context, sourceID string) (*book.NormalizedBook, error)
}

// Registry 按数据源标签查找客户端
type Registry map[string]Provider

// NewRegistry 注册客户端
func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Source()] = p
	}
	return r
}

// Get 数据源未注册时返回false
func (r Registry) Get(source string) (Provider, bool) {
	p, ok := r[strings.ToUpper(strings.TrimSpace(source))]
	return p, ok
}

// Fetch 按数据源标签分发；未注册的数据源返回ErrUnknownSource
func (r Registry) Fetch(ctx context.Context, source, sourceID string) (*book.NormalizedBook, error) {
	p, ok := r.Get(source)
	if !ok {
		return nil, ErrUnknownSource
	}
	return p.Fetch(ctx, sourceID)
}

// ISBNFromSourceID 拆出"isbn:"前缀的ISBN
func ISBNFromSourceID(sourceID string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(sourceID), ISBNPrefix) {
		return "", false
	}
	isbn := book.SanitizeISBN(sourceID[len(ISBNPrefix):])
	return isbn, isbn != ""
}

// httpClient 数据源共用的HTTP调用：限流 → 熔断 → 请求 → 解码
type httpClient struct {
	name    string
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func newHTTPClient(name string, rps float64, timeout time.Duration, logger *zap.Logger) *httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		name:    name,
		http:    &http.Client{Timeout: timeout},
		limiter: ratelimit.New(name, rps),
		breaker: circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			// 无此记录是正常结果，不触发熔断
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound)
			},
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				metrics.SetCircuitBreakerState(name, int(to))
				logger.Warn("provider circuit breaker state changed",
					zap.String("provider", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
		logger: logger,
	}
}

// getJSON GET并解码JSON；404映射为ErrNotFound
func (c *httpClient) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	err := c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return c.do(ctx, url, out)
	})
	switch {
	case err == nil:
		metrics.IncProviderRequest(c.name, "success")
		return nil
	case errors.Is(err, ErrNotFound):
		metrics.IncProviderRequest(c.name, "not_found")
		return err
	case errors.Is(err, circuitbreaker.ErrOpenState), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		metrics.IncCircuitBreakerRequest(c.name, "rejected")
		return apperrors.WrapCode(err, apperrors.ErrCodeProviderOpen, "数据源暂不可用")
	default:
		metrics.IncProviderRequest(c.name, "error")
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.WrapCode(err, apperrors.ErrCodeProviderError, fmt.Sprintf("调用%s失败", c.name))
	}
}

func (c *httpClient) do(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", c.name, err)
	}
	return nil
}
