package olatx

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/xiaoxuxiansheng/olatx/log"
)

const (
	mediaTypePost     = "application/x-www-form-urlencoded"
	mediaTypeTXStatus = "application/txstatus"

	restATCommitted  = "TransactionCommitted"
	restATRolledBack = "TransactionRolledBack"
)

// TXClient 与外部 REST 事务协调者交互：开启事务、登记参与者、提交或回滚
type TXClient struct {
	coordinatorURL string
	opts           *Options
	client         *resty.Client
}

// NewTXClient 协调者地址由调用方注入，形如 http://host:8080/rest-at-coordinator/tx/transaction-manager
func NewTXClient(coordinatorURL string, opts ...Option) *TXClient {
	options := newOptions(opts...)
	return &TXClient{
		coordinatorURL: strings.TrimSuffix(coordinatorURL, "/"),
		opts:           options,
		client:         resty.New().SetTimeout(options.RequestTimeout),
	}
}

// StartTX 开启一笔事务
func (t *TXClient) StartTX(ctx context.Context) (*Transaction, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", mediaTypePost).
		SetBody(fmt.Sprintf("timeout=%d", t.opts.TXTimeout.Milliseconds())).
		Post(t.coordinatorURL)
	if err != nil {
		return nil, fmt.Errorf("%w: start tx: %v", ErrCoordinatorUnreachable, err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("%w: start tx, unexpected status: %d", ErrCoordinatorProtocol, resp.StatusCode())
	}

	txURI := resp.Header().Get("Location")
	if txURI == "" {
		return nil, fmt.Errorf("%w: start tx, missing location", ErrCoordinatorProtocol)
	}

	tx := Transaction{
		URI:           txURI,
		EnlistmentURI: txURI,
		TerminatorURI: txURI + "/terminator",
		CreatedAt:     time.Now(),
	}
	links := ParseLinkHeader(resp.Header().Values("Link")...)
	if uri, ok := links[RelDurableParticipant]; ok {
		tx.EnlistmentURI = uri
	}
	if uri, ok := links[RelTerminator]; ok {
		tx.TerminatorURI = uri
	}

	log.InfoContextf(ctx, "tx started, uri: %s, enlistment uri: %s", tx.URI, tx.EnlistmentURI)
	return &tx, nil
}

// Enlist 把参与者登记到事务中，返回协调者分配的参与者地址
func (t *TXClient) Enlist(ctx context.Context, enlistmentURI string, link LinkDescriptor) (string, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", mediaTypePost).
		SetHeader("Link", link.String()).
		Post(enlistmentURI)
	if err != nil {
		return "", fmt.Errorf("%w: enlist participant %s: %v", ErrCoordinatorUnreachable, link.ParticipantID, err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("%w: enlist participant %s, unexpected status: %d", ErrCoordinatorProtocol, link.ParticipantID, resp.StatusCode())
	}

	participantURL := resp.Header().Get("Location")
	if participantURL == "" {
		return "", fmt.Errorf("%w: enlist participant %s, missing location", ErrCoordinatorProtocol, link.ParticipantID)
	}
	log.InfoContextf(ctx, "participant %s enlisted, url: %s", link.ParticipantID, participantURL)
	return participantURL, nil
}

// Commit 提交事务，协调者随后驱动所有参与者完成两阶段提交
func (t *TXClient) Commit(ctx context.Context, tx *Transaction) error {
	return t.terminate(ctx, tx, restATCommitted)
}

// Abort 回滚事务
func (t *TXClient) Abort(ctx context.Context, tx *Transaction) error {
	return t.terminate(ctx, tx, restATRolledBack)
}

func (t *TXClient) terminate(ctx context.Context, tx *Transaction, status string) error {
	if tx == nil || tx.TerminatorURI == "" {
		return fmt.Errorf("%w: empty transaction", ErrCoordinatorProtocol)
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", mediaTypeTXStatus).
		SetBody(statusContentKey + "=" + status).
		Put(tx.TerminatorURI)
	if err != nil {
		return fmt.Errorf("%w: terminate tx %s: %v", ErrCoordinatorUnreachable, tx.URI, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
	default:
		return fmt.Errorf("%w: terminate tx %s, unexpected status: %d", ErrCoordinatorProtocol, tx.URI, resp.StatusCode())
	}

	log.InfoContextf(ctx, "tx %s terminated with %s", tx.URI, status)
	return nil
}
