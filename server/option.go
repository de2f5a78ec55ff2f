package server

import "time"

type Options struct {
	// 允许跨域的来源，为空或包含 * 时放行所有来源
	AllowedOrigins []string
	// 优雅退出的最长等待时长
	ShutdownTimeout time.Duration
	// 服务名，作为指标的 subsystem
	Service string
}

type Option func(*Options)

func WithAllowedOrigins(origins []string) Option {
	return func(o *Options) {
		o.AllowedOrigins = origins
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ShutdownTimeout = timeout
	}
}

func WithService(service string) Option {
	return func(o *Options) {
		o.Service = service
	}
}

func repair(o *Options) {
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.Service == "" {
		o.Service = "ola"
	}
}
