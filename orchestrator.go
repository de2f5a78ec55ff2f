package olatx

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xiaoxuxiansheng/olatx/log"
)

// Coordinator 事务协调者客户端，TXClient 为其 http 实现
type Coordinator interface {
	StartTX(ctx context.Context) (*Transaction, error)
	Enlist(ctx context.Context, enlistmentURI string, link LinkDescriptor) (string, error)
	Commit(ctx context.Context, tx *Transaction) error
	Abort(ctx context.Context, tx *Transaction) error
}

// 生成参与者 id 时允许的重试次数，仅针对本地 id 碰撞
const maxParticipantIDAttempts = 3

// 1. 开启事务并登记自身
// 2. 串行调用下游服务
// 3. 成功则提交，任一环节失败则回滚
type Orchestrator struct {
	opts           *Options
	hostname       string
	selfBaseURL    string
	coordinator    Coordinator
	participant    *Participant
	registryCenter *registryCenter
}

// NewOrchestrator selfBaseURL 为本服务对协调者暴露的 api 根路径，例如 http://ola:8080/api
func NewOrchestrator(hostname, selfBaseURL string, coordinator Coordinator, participant *Participant, opts ...Option) *Orchestrator {
	if hostname == "" {
		hostname = "Unknown"
	}
	return &Orchestrator{
		opts:           newOptions(opts...),
		hostname:       hostname,
		selfBaseURL:    selfBaseURL,
		coordinator:    coordinator,
		participant:    participant,
		registryCenter: newRegistryCenter(),
	}
}

func (o *Orchestrator) Register(peer Peer) error {
	return o.registryCenter.register(peer)
}

// Greeting 本地问候语
func (o *Orchestrator) Greeting() string {
	return fmt.Sprintf("Olá de %s", o.hostname)
}

// Chain 链式调用. inboundEnlistmentURI 非空时说明本服务作为下游被调用，加入上游的事务而不负责提交
func (o *Orchestrator) Chain(ctx context.Context, inboundEnlistmentURI string) ([]string, error) {
	var greetings []string
	err := o.WithinTX(ctx, inboundEnlistmentURI, func(ctx context.Context, tx *Transaction) error {
		if err := o.enlistSelf(ctx, tx); err != nil {
			return err
		}

		greetings = append(greetings, o.Greeting())
		for _, peer := range o.registryCenter.getPeers() {
			peerGreetings, err := peer.Hola(ctx, tx.EnlistmentURI)
			if err != nil {
				log.ErrorContextf(ctx, "peer call failed, peer: %s, tx: %s, err: %v", peer.ID(), tx.URI, err)
				return err
			}
			greetings = append(greetings, peerGreetings...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return greetings, nil
}

// WithinTX 在一笔事务的作用域内执行 fn. 作为事务发起方时，fn 成功则提交，
// fn 返回错误或 panic 时保证回滚；加入他人事务时不做终结
func (o *Orchestrator) WithinTX(ctx context.Context, inboundEnlistmentURI string, fn func(ctx context.Context, tx *Transaction) error) (err error) {
	if inboundEnlistmentURI != "" {
		if err := o.checkInbound(inboundEnlistmentURI); err != nil {
			log.WarnContextf(ctx, "reject inbound enlistment, err: %v", err)
			return err
		}
		return fn(ctx, &Transaction{
			URI:           inboundEnlistmentURI,
			EnlistmentURI: inboundEnlistmentURI,
			CreatedAt:     time.Now(),
		})
	}

	tx, err := o.coordinator.StartTX(ctx)
	if err != nil {
		log.ErrorContextf(ctx, "start tx failed, err: %v", err)
		return err
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		// fn 发生 panic
		o.abort(ctx, tx)
	}()

	if err = fn(ctx, tx); err != nil {
		finished = true
		o.abort(ctx, tx)
		return err
	}

	finished = true
	cctx, cancel := o.detach(ctx)
	defer cancel()
	if err = o.coordinator.Commit(cctx, tx); err != nil {
		log.ErrorContextf(ctx, "commit tx failed, tx: %s, err: %v", tx.URI, err)
		return err
	}
	return nil
}

// 事务的终结不受上游请求取消的影响
func (o *Orchestrator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.opts.RequestTimeout)
}

func (o *Orchestrator) abort(ctx context.Context, tx *Transaction) {
	actx, cancel := o.detach(ctx)
	defer cancel()
	if err := o.coordinator.Abort(actx, tx); err != nil {
		log.ErrorContextf(ctx, "abort tx failed, tx: %s, err: %v", tx.URI, err)
		return
	}
	log.WarnContextf(ctx, "tx %s aborted", tx.URI)
}

// 只加入与配置的协调者同源的事务
func (o *Orchestrator) checkInbound(inboundEnlistmentURI string) error {
	inbound, err := url.Parse(inboundEnlistmentURI)
	if err != nil || inbound.Host == "" {
		return fmt.Errorf("%w: %s", ErrUntrustedEnlistment, inboundEnlistmentURI)
	}
	trusted, err := url.Parse(o.opts.CoordinatorURL)
	if err != nil || trusted.Host == "" {
		return fmt.Errorf("%w: no coordinator configured", ErrUntrustedEnlistment)
	}
	if !strings.EqualFold(inbound.Scheme, trusted.Scheme) || !strings.EqualFold(inbound.Host, trusted.Host) {
		return fmt.Errorf("%w: %s", ErrUntrustedEnlistment, inboundEnlistmentURI)
	}
	return nil
}

func (o *Orchestrator) enlistSelf(ctx context.Context, tx *Transaction) error {
	participantID, err := o.reserveParticipantID(ctx)
	if err != nil {
		return err
	}

	link := BuildLinkHeader(o.selfBaseURL, true, participantID, o.opts.LinkParams)
	log.InfoContextf(ctx, "enlisting participant, header: %s, enlistment uri: %s", link, tx.EnlistmentURI)
	if _, err = o.coordinator.Enlist(ctx, tx.EnlistmentURI, link); err != nil {
		// 协调者不会回调一个未登记成功的参与者，本地直接置为 aborted
		if _, _err := o.participant.store.Transit(ctx, participantID, func(Phase) (Phase, error) {
			return PhaseAborted, nil
		}); _err != nil {
			log.ErrorContextf(ctx, "abandon participant failed, participant id: %s, err: %v", participantID, _err)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) reserveParticipantID(ctx context.Context) (string, error) {
	var lastErr error
	for i := 0; i < maxParticipantIDAttempts; i++ {
		participantID, err := NewParticipantID()
		if err != nil {
			return "", err
		}
		if lastErr = o.participant.Enlist(ctx, participantID); lastErr == nil {
			return participantID, nil
		}
		if !errors.Is(lastErr, ErrDuplicateParticipant) {
			return "", lastErr
		}
	}
	return "", lastErr
}
