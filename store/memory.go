package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiaoxuxiansheng/olatx"
	"github.com/xiaoxuxiansheng/olatx/log"
)

// 参与者维度的锁，refs 归零后从 map 中移除
type keyLock struct {
	sync.Mutex
	refs int
}

// MemoryStore 单实例部署使用的内存存储
type MemoryStore struct {
	ctx     context.Context
	stop    context.CancelFunc
	opts    *Options
	mutex   sync.Mutex
	records map[string]*olatx.ParticipantRecord
	locks   map[string]*keyLock
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	m := MemoryStore{
		ctx:     ctx,
		stop:    cancel,
		opts:    &Options{},
		records: make(map[string]*olatx.ParticipantRecord),
		locks:   make(map[string]*keyLock),
	}

	for _, opt := range opts {
		opt(m.opts)
	}

	repair(m.opts)

	go m.run()
	return &m
}

func (m *MemoryStore) Close() error {
	m.stop()
	return nil
}

func (m *MemoryStore) lock(participantID string) *keyLock {
	m.mutex.Lock()
	l, ok := m.locks[participantID]
	if !ok {
		l = &keyLock{}
		m.locks[participantID] = l
	}
	l.refs++
	m.mutex.Unlock()

	l.Lock()
	return l
}

func (m *MemoryStore) unlock(participantID string, l *keyLock) {
	l.Unlock()

	m.mutex.Lock()
	defer m.mutex.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, participantID)
	}
}

func (m *MemoryStore) Transit(ctx context.Context, participantID string, fn olatx.TransitFunc) (olatx.Phase, error) {
	if err := ctx.Err(); err != nil {
		return olatx.PhaseNone, err
	}

	l := m.lock(participantID)
	defer m.unlock(participantID, l)

	current := olatx.PhaseNone
	m.mutex.Lock()
	if record, ok := m.records[participantID]; ok {
		current = record.Phase
	}
	m.mutex.Unlock()

	next, err := fn(current)
	if err != nil {
		return current, err
	}
	if next == current {
		return current, nil
	}

	m.mutex.Lock()
	m.records[participantID] = &olatx.ParticipantRecord{
		ParticipantID: participantID,
		Phase:         next,
		UpdatedAt:     time.Now(),
	}
	m.mutex.Unlock()
	return next, nil
}

func (m *MemoryStore) Get(ctx context.Context, participantID string) (*olatx.ParticipantRecord, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	record, ok := m.records[participantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", olatx.ErrParticipantNotFound, participantID)
	}
	cp := *record
	return &cp, nil
}

func (m *MemoryStore) run() {
	for {
		select {
		case <-m.ctx.Done():
			return

		case <-time.After(m.opts.SweepTick):
			if n := m.sweep(time.Now()); n > 0 {
				log.Debugf("memory store evicted %d participants", n)
			}
		}
	}
}

// 终态记录超过 Retention、非终态记录超过 StaleAfter 未更新即清理
func (m *MemoryStore) sweep(now time.Time) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var evicted int
	for participantID, record := range m.records {
		ttl := m.opts.StaleAfter
		if record.Phase.Terminal() {
			ttl = m.opts.Retention
		}
		if !record.UpdatedAt.Before(now.Add(-ttl)) {
			continue
		}
		// 正在被操作的参与者留到下一轮
		if _, busy := m.locks[participantID]; busy {
			continue
		}
		delete(m.records, participantID)
		evicted++
	}
	return evicted
}
