package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xiaoxuxiansheng/olatx"
	"github.com/xiaoxuxiansheng/olatx/store/pkg"
	"github.com/xiaoxuxiansheng/redis_lock"
)

// RedisStore 多实例部署时，基于 redis 分布式锁保证同一参与者的回调串行执行
type RedisStore struct {
	opts   *Options
	client *redis_lock.Client
}

func NewRedisStore(client *redis_lock.Client, opts ...Option) *RedisStore {
	r := RedisStore{
		opts:   &Options{},
		client: client,
	}
	for _, opt := range opts {
		opt(r.opts)
	}
	repair(r.opts)
	return &r
}

func (r *RedisStore) Transit(ctx context.Context, participantID string, fn olatx.TransitFunc) (olatx.Phase, error) {
	// 基于 participantID 维度加锁
	lock := redis_lock.NewRedisLock(pkg.BuildPhaseLockKey(participantID), r.client,
		redis_lock.WithBlock(),
		redis_lock.WithBlockWaitingSeconds(int64(r.opts.LockWait.Seconds())),
	)
	if err := lock.Lock(ctx); err != nil {
		return olatx.PhaseNone, err
	}
	defer func() {
		_ = lock.Unlock(ctx)
	}()

	record, err := r.get(ctx, participantID)
	if err != nil && !errors.Is(err, olatx.ErrParticipantNotFound) {
		return olatx.PhaseNone, err
	}

	current := olatx.PhaseNone
	if record != nil {
		current = record.Phase
	}

	next, err := fn(current)
	if err != nil {
		return current, err
	}
	if next == current {
		return current, nil
	}

	body, _ := json.Marshal(&olatx.ParticipantRecord{
		ParticipantID: participantID,
		Phase:         next,
		UpdatedAt:     time.Now(),
	})
	keysAndArgs := []interface{}{pkg.BuildPhaseKey(participantID), string(body), r.expireSeconds(next)}
	if _, err = r.client.Eval(ctx, pkg.LuaSetWithExpire, 1, keysAndArgs); err != nil {
		return current, err
	}
	return next, nil
}

// 终态按 Retention 过期，非终态按 StaleAfter 过期
func (r *RedisStore) expireSeconds(phase olatx.Phase) int64 {
	ttl := r.opts.StaleAfter
	if phase.Terminal() {
		ttl = r.opts.Retention
	}
	if seconds := int64(ttl / time.Second); seconds > 0 {
		return seconds
	}
	return 1
}

func (r *RedisStore) Get(ctx context.Context, participantID string) (*olatx.ParticipantRecord, error) {
	return r.get(ctx, participantID)
}

func (r *RedisStore) get(ctx context.Context, participantID string) (*olatx.ParticipantRecord, error) {
	reply, err := r.client.Get(ctx, pkg.BuildPhaseKey(participantID))
	if errors.Is(err, redis_lock.ErrNil) || (err == nil && reply == "") {
		return nil, fmt.Errorf("%w: %s", olatx.ErrParticipantNotFound, participantID)
	}
	if err != nil {
		return nil, err
	}

	var record olatx.ParticipantRecord
	if err = json.Unmarshal([]byte(reply), &record); err != nil {
		return nil, fmt.Errorf("invalid participant record, participant id: %s, err: %w", participantID, err)
	}
	return &record, nil
}
