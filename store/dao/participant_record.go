package dao

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParticipantRecordPO struct {
	gorm.Model
	ParticipantID string `gorm:"column:participant_id;uniqueIndex;size:32"`
	Phase         string `gorm:"column:phase;size:16"`
}

func (p ParticipantRecordPO) TableName() string {
	return "participant_record"
}

type ParticipantRecordDAO struct {
	db *gorm.DB
}

func NewParticipantRecordDAO(db *gorm.DB) *ParticipantRecordDAO {
	return &ParticipantRecordDAO{
		db: db,
	}
}

func (p *ParticipantRecordDAO) GetParticipantRecords(ctx context.Context, opts ...QueryOption) ([]*ParticipantRecordPO, error) {
	db := p.db.WithContext(ctx).Model(&ParticipantRecordPO{})
	for _, opt := range opts {
		db = opt(db)
	}

	var records []*ParticipantRecordPO
	return records, db.Scan(&records).Error
}

func (p *ParticipantRecordDAO) CreateParticipantRecord(ctx context.Context, record *ParticipantRecordPO) (uint, error) {
	err := p.db.WithContext(ctx).Create(record).Error
	return record.ID, err
}

func (p *ParticipantRecordDAO) UpdateParticipantRecord(ctx context.Context, record *ParticipantRecordPO) error {
	return p.db.WithContext(ctx).Updates(record).Error
}

// SaveParticipantRecord ID 为 0 时新建，否则更新
func (p *ParticipantRecordDAO) SaveParticipantRecord(ctx context.Context, record *ParticipantRecordPO) error {
	if record.ID == 0 {
		_, err := p.CreateParticipantRecord(ctx, record)
		return err
	}
	return p.UpdateParticipantRecord(ctx, record)
}

// LockAndDo 在事务内对参与者记录加写锁后执行 do. 记录不存在时传入 ID 为 0 的新记录
func (p *ParticipantRecordDAO) LockAndDo(ctx context.Context, participantID string, do func(ctx context.Context, dao *ParticipantRecordDAO, record *ParticipantRecordPO) error) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 加写锁
		var record ParticipantRecordPO
		err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("participant_id = ?", participantID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = ParticipantRecordPO{ParticipantID: participantID}
		} else if err != nil {
			return err
		}

		dao := NewParticipantRecordDAO(tx)
		return do(ctx, dao, &record)
	})
}

// IsDuplicateKey 判断 err 是否由 participant_id 唯一索引冲突导致
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
