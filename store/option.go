package store

import "time"

type Options struct {
	// 终态记录的保留时长
	Retention time.Duration
	// 非终态记录无更新后的保留时长，协调者失联时兜底
	StaleAfter time.Duration
	// 清理任务轮询间隔
	SweepTick time.Duration
	// 等待参与者锁的最长时间
	LockWait time.Duration
}

type Option func(*Options)

func WithRetention(retention time.Duration) Option {
	if retention <= 0 {
		retention = 10 * time.Minute
	}

	return func(o *Options) {
		o.Retention = retention
	}
}

func WithStaleAfter(staleAfter time.Duration) Option {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}

	return func(o *Options) {
		o.StaleAfter = staleAfter
	}
}

func WithSweepTick(tick time.Duration) Option {
	if tick <= 0 {
		tick = time.Minute
	}

	return func(o *Options) {
		o.SweepTick = tick
	}
}

func WithLockWait(wait time.Duration) Option {
	if wait <= 0 {
		wait = 5 * time.Second
	}

	return func(o *Options) {
		o.LockWait = wait
	}
}

func repair(o *Options) {
	if o.Retention <= 0 {
		o.Retention = 10 * time.Minute
	}

	if o.StaleAfter <= 0 {
		o.StaleAfter = time.Hour
	}

	if o.SweepTick <= 0 {
		o.SweepTick = time.Minute
	}

	if o.LockWait <= 0 {
		o.LockWait = 5 * time.Second
	}
}
