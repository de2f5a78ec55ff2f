package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，coordinator.url 对应 OLA_COORDINATOR_URL
const EnvPrefix = "OLA"

type Config struct {
	Listen      string            `mapstructure:"listen"`
	Hostname    string            `mapstructure:"hostname"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Participant ParticipantConfig `mapstructure:"participant"`
	Peer        PeerConfig        `mapstructure:"peer"`
	Peers       []PeerEndpoint    `mapstructure:"peers"`
	Store       StoreConfig       `mapstructure:"store"`
	Log         LogConfig         `mapstructure:"log"`
	CORS        CORSConfig        `mapstructure:"cors"`
}

type CoordinatorConfig struct {
	// 协调者 transaction-manager 地址
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	TXTimeout time.Duration `mapstructure:"tx_timeout"`
}

type ParticipantConfig struct {
	// 本服务对协调者暴露的 api 根路径
	BaseURL    string            `mapstructure:"base_url"`
	Strict     bool              `mapstructure:"strict"`
	LinkParams map[string]string `mapstructure:"link_params"`
}

type PeerConfig struct {
	URL     string        `mapstructure:"url"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type PeerEndpoint struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type StoreConfig struct {
	Kind   string       `mapstructure:"kind"`
	Memory MemoryConfig `mapstructure:"memory"`
	Redis  RedisConfig  `mapstructure:"redis"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
}

type MemoryConfig struct {
	Retention  time.Duration `mapstructure:"retention"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type RedisConfig struct {
	Network  string        `mapstructure:"network"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	LockWait time.Duration `mapstructure:"lock_wait"`
}

type MySQLConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Stdout bool   `mapstructure:"stdout"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("hostname", "Unknown")
	v.SetDefault("coordinator.url", "http://wildfly-rts:8080/rest-at-coordinator/tx/transaction-manager")
	v.SetDefault("coordinator.timeout", 10*time.Second)
	v.SetDefault("coordinator.tx_timeout", time.Duration(0))
	v.SetDefault("participant.base_url", "http://ola:8080/api")
	v.SetDefault("participant.strict", false)
	v.SetDefault("participant.link_params", map[string]string{})
	v.SetDefault("peer.url", "http://hola:8080")
	v.SetDefault("peer.path", "/api/hola-chaining")
	v.SetDefault("peer.timeout", 10*time.Second)
	v.SetDefault("peer.breaker.max_failures", 5)
	v.SetDefault("peer.breaker.open_timeout", 10*time.Second)
	v.SetDefault("store.kind", "memory")
	v.SetDefault("store.memory.retention", 10*time.Minute)
	v.SetDefault("store.memory.stale_after", time.Hour)
	v.SetDefault("store.redis.network", "tcp")
	v.SetDefault("store.redis.address", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.lock_wait", 5*time.Second)
	v.SetDefault("store.mysql.dsn", "")
	v.SetDefault("store.mysql.auto_migrate", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.stdout", true)
	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load 依次叠加默认值、配置文件、环境变量以及命令行参数
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 容器内的主机名，不带前缀
	if err := v.BindEnv("hostname", "HOSTNAME"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading configuration file: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Coordinator.URL) == "" {
		return errors.New("coordinator.url is required")
	}
	if strings.TrimSpace(c.Participant.BaseURL) == "" {
		return errors.New("participant.base_url is required")
	}
	if c.Hostname == "" {
		c.Hostname = "Unknown"
	}
	return nil
}

// PeerEndpoints 未配置 peers 列表时退化为 peer.url 指向的 hola 服务
func (c *Config) PeerEndpoints() []PeerEndpoint {
	if len(c.Peers) > 0 {
		return c.Peers
	}
	if c.Peer.URL == "" {
		return nil
	}
	return []PeerEndpoint{{Name: "hola", URL: c.Peer.URL}}
}
