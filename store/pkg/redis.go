package pkg

import (
	"fmt"

	"github.com/xiaoxuxiansheng/redis_lock"
)

func NewRedisClient(network, address, password string) *redis_lock.Client {
	return redis_lock.NewClient(network, address, password)
}

// LuaSetWithExpire 写入 value 并设置过期秒数
const LuaSetWithExpire = `
  return redis.call('set', KEYS[1], ARGV[1], 'EX', ARGV[2])
`

// 构造参与者阶段 key
func BuildPhaseKey(participantID string) string {
	return fmt.Sprintf("olatx:participant:%s:phase", participantID)
}

// 构造参与者锁 key
func BuildPhaseLockKey(participantID string) string {
	return fmt.Sprintf("olatx:participant:%s:lock", participantID)
}
