package olatx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type mockParticipantStore struct {
	mutex   sync.Mutex
	records map[string]*ParticipantRecord
	// 模拟 id 碰撞，前 collisions 次登记读到已存在的记录
	collisions int
}

func newMockParticipantStore() *mockParticipantStore {
	return &mockParticipantStore{
		records: make(map[string]*ParticipantRecord),
	}
}

func (m *mockParticipantStore) Transit(ctx context.Context, participantID string, fn TransitFunc) (Phase, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	current := PhaseNone
	if record, ok := m.records[participantID]; ok {
		current = record.Phase
	} else if m.collisions > 0 {
		m.collisions--
		current = PhaseStarted
	}

	next, err := fn(current)
	if err != nil {
		return current, err
	}
	m.records[participantID] = &ParticipantRecord{
		ParticipantID: participantID,
		Phase:         next,
		UpdatedAt:     time.Now(),
	}
	return next, nil
}

func (m *mockParticipantStore) Get(ctx context.Context, participantID string) (*ParticipantRecord, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	record, ok := m.records[participantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParticipantNotFound, participantID)
	}
	cp := *record
	return &cp, nil
}

func (m *mockParticipantStore) all() []ParticipantRecord {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	records := make([]ParticipantRecord, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, *record)
	}
	return records
}

type mockCoordinator struct {
	mutex     sync.Mutex
	calls     []string
	links     []LinkDescriptor
	startErr  error
	enlistErr error
	commitErr error
	// abort / commit 时 ctx 是否已经被取消
	abortCtxErr  error
	commitCtxErr error
}

func newMockCoordinator() *mockCoordinator {
	return &mockCoordinator{}
}

func (m *mockCoordinator) record(call string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockCoordinator) Calls() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockCoordinator) StartTX(ctx context.Context) (*Transaction, error) {
	m.record("start")
	if m.startErr != nil {
		return nil, m.startErr
	}
	return &Transaction{
		URI:           "http://coordinator/tx/1",
		EnlistmentURI: "http://coordinator/tx/1/participant",
		TerminatorURI: "http://coordinator/tx/1/terminator",
		CreatedAt:     time.Now(),
	}, nil
}

func (m *mockCoordinator) Enlist(ctx context.Context, enlistmentURI string, link LinkDescriptor) (string, error) {
	m.record("enlist")
	m.mutex.Lock()
	m.links = append(m.links, link)
	m.mutex.Unlock()
	if m.enlistErr != nil {
		return "", m.enlistErr
	}
	return enlistmentURI + "/" + link.ParticipantID, nil
}

func (m *mockCoordinator) Commit(ctx context.Context, tx *Transaction) error {
	m.record("commit")
	m.mutex.Lock()
	m.commitCtxErr = ctx.Err()
	m.mutex.Unlock()
	return m.commitErr
}

func (m *mockCoordinator) Abort(ctx context.Context, tx *Transaction) error {
	m.record("abort")
	m.mutex.Lock()
	m.abortCtxErr = ctx.Err()
	m.mutex.Unlock()
	return nil
}

type mockPeer struct {
	id          string
	greetings   []string
	err         error
	panicFlag   bool
	mutex       sync.Mutex
	enlistments []string
}

func newMockPeer(id string, greetings ...string) *mockPeer {
	return &mockPeer{
		id:        id,
		greetings: greetings,
	}
}

func (m *mockPeer) ID() string {
	return m.id
}

func (m *mockPeer) Hola(ctx context.Context, enlistmentURI string) ([]string, error) {
	m.mutex.Lock()
	m.enlistments = append(m.enlistments, enlistmentURI)
	m.mutex.Unlock()
	if m.panicFlag {
		panic(errors.New("peer exploded"))
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.greetings, nil
}
