package dao

import (
	"github.com/demdxx/gocast"
	"github.com/xiaoxuxiansheng/olatx"
	"gorm.io/gorm"
)

type QueryOption func(db *gorm.DB) *gorm.DB

func WithID(id interface{}) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", gocast.ToUint(id))
	}
}

func WithParticipantID(participantID string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("participant_id = ?", participantID)
	}
}

func WithPhase(phase olatx.Phase) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("phase = ?", phase.String())
	}
}
