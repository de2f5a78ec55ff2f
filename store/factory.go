package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/xiaoxuxiansheng/olatx"
	"github.com/xiaoxuxiansheng/olatx/store/dao"
	"github.com/xiaoxuxiansheng/olatx/store/pkg"
	"gorm.io/gorm"
)

const (
	KindMemory = "memory"
	KindRedis  = "redis"
	KindMySQL  = "mysql"
)

type Config struct {
	Kind       string
	Retention  time.Duration
	StaleAfter time.Duration
	LockWait   time.Duration

	RedisNetwork  string
	RedisAddress  string
	RedisPassword string

	MySQLDSN         string
	MySQLAutoMigrate bool
}

// New 根据配置构造参与者存储，返回的 closer 用于释放资源
func New(cfg Config) (olatx.ParticipantStore, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(cfg.Kind) {
	case "", KindMemory:
		s := NewMemoryStore(WithRetention(cfg.Retention), WithStaleAfter(cfg.StaleAfter))
		return s, s.Close, nil

	case KindRedis:
		network := cfg.RedisNetwork
		if network == "" {
			network = "tcp"
		}
		client := pkg.NewRedisClient(network, cfg.RedisAddress, cfg.RedisPassword)
		return NewRedisStore(client,
			WithLockWait(cfg.LockWait),
			WithRetention(cfg.Retention),
			WithStaleAfter(cfg.StaleAfter),
		), noop, nil

	case KindMySQL:
		db, err := pkg.NewDB(cfg.MySQLDSN, &gorm.Config{})
		if err != nil {
			return nil, noop, fmt.Errorf("open mysql: %w", err)
		}
		if cfg.MySQLAutoMigrate {
			if err = db.AutoMigrate(&dao.ParticipantRecordPO{}); err != nil {
				return nil, noop, fmt.Errorf("migrate participant_record: %w", err)
			}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, noop, err
		}
		return NewMySQLStore(dao.NewParticipantRecordDAO(db)), sqlDB.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown store kind: %s", cfg.Kind)
	}
}
