package olatx

import (
	"context"
)

// TransitFunc 根据参与者当前阶段给出下一个阶段. 返回错误时不做任何变更
type TransitFunc func(current Phase) (Phase, error)

// 参与者阶段存储模块
type ParticipantStore interface {
	// 在参与者维度的锁内读取当前阶段，执行 fn 并写回结果. 参与者不存在时 current 为 PhaseNone
	Transit(ctx context.Context, participantID string, fn TransitFunc) (Phase, error)
	// 获取参与者记录，不存在时返回 ErrParticipantNotFound
	Get(ctx context.Context, participantID string) (*ParticipantRecord, error)
}
