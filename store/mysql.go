package store

import (
	"context"
	"fmt"

	"github.com/xiaoxuxiansheng/olatx"
	"github.com/xiaoxuxiansheng/olatx/log"
	"github.com/xiaoxuxiansheng/olatx/store/dao"
)

// MySQLStore 以 participant_record 表持久化参与者阶段，行锁保证同一参与者串行
type MySQLStore struct {
	dao *dao.ParticipantRecordDAO
}

func NewMySQLStore(dao *dao.ParticipantRecordDAO) *MySQLStore {
	return &MySQLStore{
		dao: dao,
	}
}

func (m *MySQLStore) Transit(ctx context.Context, participantID string, fn olatx.TransitFunc) (olatx.Phase, error) {
	phase, err := m.transit(ctx, participantID, fn)
	if !dao.IsDuplicateKey(err) {
		return phase, err
	}

	// 并发的首次写入在唯一索引上冲突，此时记录已存在，重试一次即可拿到行锁
	log.WarnContextf(ctx, "participant %s inserted concurrently, retry", participantID)
	phase, err = m.transit(ctx, participantID, fn)
	if dao.IsDuplicateKey(err) {
		return phase, fmt.Errorf("%w: participant %s written concurrently", olatx.ErrInvalidTransition, participantID)
	}
	return phase, err
}

func (m *MySQLStore) transit(ctx context.Context, participantID string, fn olatx.TransitFunc) (olatx.Phase, error) {
	var result olatx.Phase
	err := m.dao.LockAndDo(ctx, participantID, func(ctx context.Context, d *dao.ParticipantRecordDAO, record *dao.ParticipantRecordPO) error {
		current := olatx.Phase(record.Phase)
		result = current

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == current {
			return nil
		}

		record.Phase = next.String()
		if err = d.SaveParticipantRecord(ctx, record); err != nil {
			return err
		}
		result = next
		return nil
	})
	return result, err
}

func (m *MySQLStore) Get(ctx context.Context, participantID string) (*olatx.ParticipantRecord, error) {
	records, err := m.dao.GetParticipantRecords(ctx, dao.WithParticipantID(participantID))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", olatx.ErrParticipantNotFound, participantID)
	}

	return &olatx.ParticipantRecord{
		ParticipantID: records[0].ParticipantID,
		Phase:         olatx.Phase(records[0].Phase),
		UpdatedAt:     records[0].UpdatedAt,
	}, nil
}
