package olatx

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"regexp"

	"github.com/spf13/cast"
	"github.com/xiaoxuxiansheng/olatx/log"
)

// 从请求地址中解析出 api 根路径以及参与者 id
var participantURIPattern = regexp.MustCompile(`(?i)^(.*/api)/([^/]*)/participant.*`)

// NewParticipantID 生成 [1, MaxInt32] 区间内的随机参与者 id.
// 同一事务内约 7.7 万次登记后碰撞概率达到 50%，重复 id 会在登记时被本地存储拒绝
func NewParticipantID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt32))
	if err != nil {
		return "", err
	}
	return cast.ToString(n.Int64() + 1), nil
}

// Participant 处理协调者的 prepare / commit / abort 回调
type Participant struct {
	opts  *Options
	store ParticipantStore
}

func NewParticipant(store ParticipantStore, opts ...Option) *Participant {
	return &Participant{
		opts:  newOptions(opts...),
		store: store,
	}
}

// Enlist 在本地登记一个参与者，id 已存在时返回 ErrDuplicateParticipant
func (p *Participant) Enlist(ctx context.Context, participantID string) error {
	_, err := p.store.Transit(ctx, participantID, func(current Phase) (Phase, error) {
		if current != PhaseNone {
			return current, fmt.Errorf("%w: %s", ErrDuplicateParticipant, participantID)
		}
		return PhaseStarted, nil
	})
	return err
}

// Terminate 处理协调者的 PUT {pid}/terminator 请求
func (p *Participant) Terminate(ctx context.Context, participantID, body string) (Status, error) {
	status := ParseStatus(body)
	log.InfoContextf(ctx, "terminate request, participant id: %s, body: %q, status: %s", participantID, body, status)

	switch status {
	case StatusPrepare, StatusCommit, StatusCommitOnePhase, StatusAbort:
	default:
		return StatusUnknown, fmt.Errorf("%w: %q", ErrUnrecognizedStatus, body)
	}

	phase, err := p.store.Transit(ctx, participantID, func(current Phase) (Phase, error) {
		return p.next(current, status)
	})
	if err != nil {
		log.WarnContextf(ctx, "terminate rejected, participant id: %s, status: %s, err: %v", participantID, status, err)
		return StatusUnknown, err
	}

	log.InfoContextf(ctx, "participant %s now %s", participantID, phase)
	return status, nil
}

// 状态机: started -> prepared -> committed | aborted
func (p *Participant) next(current Phase, status Status) (Phase, error) {
	if current == PhaseNone {
		current = PhaseStarted
	}

	switch status {
	case StatusPrepare:
		// 本地没有需要锁定的资源，直接投票 ready
		if current == PhaseStarted || current == PhasePrepared {
			return PhasePrepared, nil
		}
	case StatusCommit:
		if current == PhasePrepared || current == PhaseCommitted {
			return PhaseCommitted, nil
		}
		if current == PhaseStarted && !p.opts.StrictOrdering {
			return PhaseCommitted, nil
		}
	case StatusCommitOnePhase:
		if current != PhaseAborted {
			return PhaseCommitted, nil
		}
	case StatusAbort:
		if current != PhaseCommitted {
			return PhaseAborted, nil
		}
	}

	return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, status, current)
}

// Status 查询参与者当前阶段
func (p *Participant) Status(ctx context.Context, participantID string) (Phase, error) {
	record, err := p.store.Get(ctx, participantID)
	if err != nil {
		return PhaseNone, err
	}
	return record.Phase, nil
}

// Info 根据 HEAD {pid}/participant 的请求地址，重新构造该参与者的 link header
func (p *Participant) Info(requestURL string) (LinkDescriptor, error) {
	baseURL, participantID, err := ParseParticipantURI(requestURL)
	if err != nil {
		return LinkDescriptor{}, err
	}
	return BuildLinkHeader(baseURL, true, participantID, p.opts.LinkParams), nil
}

// ParseParticipantURI 从 .../api/{pid}/participant 中拆出 api 根路径和 pid
func ParseParticipantURI(requestURL string) (baseURL, participantID string, err error) {
	matches := participantURIPattern.FindStringSubmatch(requestURL)
	if len(matches) != 3 || matches[2] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrMalformedParticipantURI, requestURL)
	}
	return matches[1], matches[2], nil
}
