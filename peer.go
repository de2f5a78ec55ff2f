package olatx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// 下游服务透传事务登记地址使用的请求头
const EnlistmentURIHeader = "enlistmentUri"

// 下游服务
type Peer interface {
	// 返回下游服务唯一 id
	ID() string
	// 调用下游的 hola 链路，使其以第二个参与者的身份加入同一笔事务
	Hola(ctx context.Context, enlistmentURI string) ([]string, error)
}

type PeerOptions struct {
	// 单次调用超时
	Timeout time.Duration
	// 调用路径
	Path string
	// 熔断器配置
	Breaker gobreaker.Settings
}

type PeerOption func(*PeerOptions)

func WithPeerTimeout(timeout time.Duration) PeerOption {
	return func(o *PeerOptions) {
		o.Timeout = timeout
	}
}

func WithPeerPath(path string) PeerOption {
	return func(o *PeerOptions) {
		o.Path = path
	}
}

// WithBreakerMaxFailures 连续失败多少次后熔断
func WithBreakerMaxFailures(n uint32) PeerOption {
	return func(o *PeerOptions) {
		if n == 0 {
			return
		}
		o.Breaker.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// WithBreakerTimeout 熔断后多久进入半开状态
func WithBreakerTimeout(timeout time.Duration) PeerOption {
	return func(o *PeerOptions) {
		o.Breaker.Timeout = timeout
	}
}

func repairPeerOptions(o *PeerOptions) {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Path == "" {
		o.Path = "/api/hola-chaining"
	}
	if o.Breaker.ReadyToTrip == nil {
		o.Breaker.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	if o.Breaker.Timeout <= 0 {
		o.Breaker.Timeout = 10 * time.Second
	}
	if o.Breaker.MaxRequests == 0 {
		o.Breaker.MaxRequests = 1
	}
}

// HTTPPeer 通过 HTTP 调用下游服务，外层套熔断器
type HTTPPeer struct {
	id      string
	baseURL string
	opts    *PeerOptions
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPPeer(id, baseURL string, opts ...PeerOption) *HTTPPeer {
	options := &PeerOptions{}
	for _, opt := range opts {
		opt(options)
	}
	repairPeerOptions(options)
	options.Breaker.Name = id

	return &HTTPPeer{
		id:      id,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		opts:    options,
		client:  resty.New().SetTimeout(options.Timeout),
		breaker: gobreaker.NewCircuitBreaker(options.Breaker),
	}
}

func (h *HTTPPeer) ID() string {
	return h.id
}

func (h *HTTPPeer) Hola(ctx context.Context, enlistmentURI string) ([]string, error) {
	res, err := h.breaker.Execute(func() (interface{}, error) {
		return h.call(ctx, enlistmentURI)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: peer %s: %v", ErrPeerCall, h.id, err)
		}
		return nil, err
	}
	greetings, _ := res.([]string)
	return greetings, nil
}

func (h *HTTPPeer) call(ctx context.Context, enlistmentURI string) ([]string, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader(EnlistmentURIHeader, enlistmentURI).
		Get(h.baseURL + h.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: peer %s: %v", ErrPeerCall, h.id, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: peer %s, unexpected status: %d", ErrPeerCall, h.id, resp.StatusCode())
	}

	var greetings []string
	if err := json.Unmarshal(resp.Body(), &greetings); err != nil {
		return nil, fmt.Errorf("%w: peer %s, decode: %v", ErrPeerCall, h.id, err)
	}
	return greetings, nil
}
