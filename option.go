package olatx

import "time"

type Options struct {
	// 单次请求协调者的超时时长
	RequestTimeout time.Duration
	// 事务在协调者侧的超时时长，0 表示不设置
	TXTimeout time.Duration
	// 是否严格要求 commit 之前必须 prepare
	StrictOrdering bool
	// 构造 link header 时附带的参数
	LinkParams map[string]string
	// 协调者地址，加入上游事务时校验登记地址与其同源
	CoordinatorURL string
}

type Option func(*Options)

func WithRequestTimeout(timeout time.Duration) Option {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(o *Options) {
		o.RequestTimeout = timeout
	}
}

func WithTXTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.TXTimeout = timeout
		}
	}
}

func WithStrictOrdering(strict bool) Option {
	return func(o *Options) {
		o.StrictOrdering = strict
	}
}

func WithLinkParams(params map[string]string) Option {
	return func(o *Options) {
		o.LinkParams = params
	}
}

func WithCoordinatorURL(coordinatorURL string) Option {
	return func(o *Options) {
		o.CoordinatorURL = coordinatorURL
	}
}

func newOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	repair(o)
	return o
}

func repair(o *Options) {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}

	if o.TXTimeout < 0 {
		o.TXTimeout = 0
	}
}
