package olatx

import (
	"strings"
	"time"
)

// 协调者回调时携带的事务状态
type Status string

const (
	StatusUnknown        Status = ""
	StatusPrepare        Status = "PREPARE"
	StatusCommit         Status = "COMMIT"
	StatusCommitOnePhase Status = "COMMIT_ONE_PHASE"
	StatusAbort          Status = "ABORT"
	StatusRollback       Status = "ROLLBACK"
	StatusReadOnly       Status = "READ_ONLY"
	// 仅用于查询，已登记但尚未收到回调
	StatusActive Status = "ACTIVE"
)

func (s Status) String() string {
	return string(s)
}

// REST-AT 状态内容的 key，形如 txstatus=TransactionPrepared
const statusContentKey = "txstatus"

// REST-AT 协议中的状态名称
var restATStatuses = map[string]Status{
	"transactionprepared":          StatusPrepare,
	"transactionpreparing":         StatusPrepare,
	"transactioncommitted":         StatusCommit,
	"transactioncommitting":        StatusCommit,
	"transactioncommittedonephase": StatusCommitOnePhase,
	"transactioncommitonephase":    StatusCommitOnePhase,
	"transactionrolledback":        StatusAbort,
	"transactionrollingback":       StatusRollback,
	"transactionrollbackonly":      StatusRollback,
	"transactionreadonly":          StatusReadOnly,
}

// REST-AT 协议中各状态的标准名称，用于回复协调者
var restATNames = map[Status]string{
	StatusPrepare:        "TransactionPrepared",
	StatusCommit:         "TransactionCommitted",
	StatusCommitOnePhase: "TransactionCommittedOnePhase",
	StatusAbort:          "TransactionRolledBack",
	StatusRollback:       "TransactionRollbackOnly",
	StatusReadOnly:       "TransactionReadOnly",
}

// 拆出 txstatus=X 中的 X. 非状态内容形式时 content 为 false
func splitStatusContent(body string) (value string, content, ok bool) {
	raw := strings.TrimSpace(body)
	key, value, found := strings.Cut(raw, "=")
	if !found {
		return raw, false, true
	}
	if !strings.EqualFold(strings.TrimSpace(key), statusContentKey) {
		return "", true, false
	}
	return strings.TrimSpace(value), true, true
}

// ParseStatus 解析回调请求体，兼容裸关键字（prepare / commit-one-phase）以及 txstatus=TransactionXxx 两种形式
func ParseStatus(body string) Status {
	raw, _, ok := splitStatusContent(body)
	if !ok {
		return StatusUnknown
	}

	normalized := strings.ToUpper(strings.ReplaceAll(raw, "-", "_"))
	switch Status(normalized) {
	case StatusPrepare, StatusCommit, StatusCommitOnePhase, StatusAbort, StatusRollback, StatusReadOnly:
		return Status(normalized)
	}

	if status, ok := restATStatuses[strings.ToLower(raw)]; ok {
		return status
	}
	return StatusUnknown
}

// ReplyContent 按请求体的形式构造回调响应. 请求使用 REST-AT 状态名时以 REST-AT 状态名回复，
// 否则回显关键字
func ReplyContent(body string, status Status) string {
	raw, content, ok := splitStatusContent(body)
	if ok && content {
		if _, restAT := restATStatuses[strings.ToLower(raw)]; restAT {
			if name, ok := restATNames[status]; ok {
				return statusContentKey + "=" + name
			}
		}
	}
	return ToStatusContent(status)
}

// ToStatusContent 构造响应体
func ToStatusContent(status Status) string {
	return statusContentKey + "=" + status.String()
}

// 参与者在本地记录的阶段
type Phase string

const (
	// 本地没有记录
	PhaseNone Phase = ""
	// 已登记到事务中
	PhaseStarted Phase = "started"
	// 已投票 prepare
	PhasePrepared Phase = "prepared"
	// 已提交
	PhaseCommitted Phase = "committed"
	// 已回滚
	PhaseAborted Phase = "aborted"
)

func (p Phase) String() string {
	return string(p)
}

// Terminal 已经走到终态
func (p Phase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseAborted
}

// Status 阶段对应的协议状态，用于 GET terminator
func (p Phase) Status() Status {
	switch p {
	case PhaseStarted:
		return StatusActive
	case PhasePrepared:
		return StatusPrepare
	case PhaseCommitted:
		return StatusCommit
	case PhaseAborted:
		return StatusAbort
	default:
		return StatusUnknown
	}
}

// 协调者侧的一笔事务
type Transaction struct {
	// 事务资源地址，startTx 返回的 Location
	URI string `json:"uri"`
	// 参与者登记地址
	EnlistmentURI string `json:"enlistmentUri"`
	// 终结事务的地址
	TerminatorURI string    `json:"terminatorUri"`
	CreatedAt     time.Time `json:"createdAt"`
}

// 参与者阶段记录
type ParticipantRecord struct {
	ParticipantID string    `json:"participantID"`
	Phase         Phase     `json:"phase"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
