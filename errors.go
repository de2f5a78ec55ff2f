package olatx

import "errors"

var (
	// 与协调者之间网络不通或超时
	ErrCoordinatorUnreachable = errors.New("coordinator unreachable")
	// 协调者返回了非预期的状态码或响应
	ErrCoordinatorProtocol = errors.New("coordinator protocol error")
	// 回调请求体无法识别
	ErrUnrecognizedStatus = errors.New("unrecognized transaction status")
	// 请求地址不符合 .../api/{pid}/participant 的形式
	ErrMalformedParticipantURI = errors.New("malformed participant uri")
	// 下游服务调用失败
	ErrPeerCall = errors.New("peer call failure")
	// 非法的状态扭转，例如先 abort 后 commit
	ErrInvalidTransition = errors.New("invalid participant transition")
	// 重复的参与者 id
	ErrDuplicateParticipant = errors.New("repeat participant id")
	// 上游透传的事务登记地址不属于配置的协调者
	ErrUntrustedEnlistment = errors.New("untrusted enlistment uri")
	// 参与者不存在
	ErrParticipantNotFound = errors.New("participant not found")
)
