// 包 config：进程配置；先加载 .env 文件，再由环境变量解析到结构体，字段默认值写在标签上
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend：存储后端选择
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendSQLite   Backend = "sqlite"
)

type Config struct {
	Addr    string  `env:"ADDR" envDefault:":8080"`
	APIBase string  `env:"API_BASE" envDefault:"/api/v1"`
	Backend Backend `env:"STORE_BACKEND" envDefault:"memory"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Postgres Postgres
	Redis    Redis
	// SQLitePath：文件路径；":memory:" 仅用于测试
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/territory.db"`

	Grid   Grid
	Raster Raster
	Commit Commit

	ViewportMaxRegions int `env:"VIEWPORT_MAX_REGIONS" envDefault:"2000"`
	ShardCacheSize     int `env:"SHARD_CACHE_SIZE" envDefault:"4096"`
	ShardCacheTTLSec   int `env:"SHARD_CACHE_TTL_S" envDefault:"2"`
	ReplayTTLSec       int `env:"REPLAY_TTL_S" envDefault:"86400"`

	Events    Events
	RateLimit RateLimit
	Access    Access
	TLS       TLS
}

type Postgres struct {
	Host         string `env:"PG_HOST" envDefault:"localhost"`
	Port         string `env:"PG_PORT" envDefault:"5432"`
	User         string `env:"PG_USER" envDefault:"postgres"`
	Password     string `env:"PG_PASSWORD"`
	DB           string `env:"PG_DB" envDefault:"territory"`
	SSLMode      string `env:"PG_SSLMODE" envDefault:"disable"`
	MaxOpenConns int    `env:"PG_MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConns int    `env:"PG_MAX_IDLE_CONNS" envDefault:"25"`
}

// DSN：拼接 lib/pq 连接串；密码经 URL 转义
func (p Postgres) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     p.Host + ":" + p.Port,
		Path:     "/" + p.DB,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else {
		u.User = url.User(p.User)
	}
	return u.String()
}

type Redis struct {
	Host string `env:"REDIS_HOST" envDefault:"127.0.0.1"`
	Port string `env:"REDIS_PORT" envDefault:"6379"`
	Pass string `env:"REDIS_PASS"`
	DB   int    `env:"REDIS_DB" envDefault:"0"`
	// Prefix：所有键的命名空间
	Prefix string `env:"REDIS_PREFIX" envDefault:"territory"`
}

func (r Redis) Addr() string { return r.Host + ":" + r.Port }

type Grid struct {
	CaptureRes int `env:"GRID_CAPTURE_RES" envDefault:"10"`
	RegionRes  int `env:"GRID_REGION_RES" envDefault:"6"`
}

type Raster struct {
	CloseToleranceMeters float64 `env:"RASTER_CLOSE_TOLERANCE_M" envDefault:"0"`
	MaxFillCells         int     `env:"RASTER_MAX_FILL_CELLS" envDefault:"100000"`
	MaxPathPoints        int     `env:"RASTER_MAX_PATH_POINTS" envDefault:"10000"`
}

type Commit struct {
	Workers    int `env:"COMMIT_WORKERS" envDefault:"8"`
	MaxRetries int `env:"COMMIT_MAX_RETRIES" envDefault:"5"`
}

type Events struct {
	Enabled  bool          `env:"EVENTS_ENABLED" envDefault:"false"`
	Stream   string        `env:"EVENTS_STREAM" envDefault:"territory:events"`
	Group    string        `env:"EVENTS_GROUP" envDefault:"territory-engine"`
	Consumer string        `env:"EVENTS_CONSUMER"`
	Block    time.Duration `env:"EVENTS_BLOCK" envDefault:"5s"`
	Batch    int64         `env:"EVENTS_BATCH" envDefault:"32"`
}

type RateLimit struct {
	Enabled bool    `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	QPS     float64 `env:"RATE_LIMIT_QPS" envDefault:"20"`
	Burst   int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
}

// Access：来源网段白名单；未启用时不做来源限制
type Access struct {
	Enabled    bool     `env:"ACCESS_ALLOW_ENABLED" envDefault:"false"`
	CIDRs      []string `env:"ACCESS_ALLOW_CIDRS" envSeparator:","`
	AllowLocal bool     `env:"ACCESS_ALLOW_LOCAL" envDefault:"true"`
}

type TLS struct {
	Enable   bool   `env:"TLS_ENABLE" envDefault:"false"`
	CertPath string `env:"TLS_CERT_PATH" envDefault:"data/tls/server.crt"`
	KeyPath  string `env:"TLS_KEY_PATH" envDefault:"data/tls/server.key"`
}

// Load：加载 .env（可缺省）并解析环境变量
// 约束：已存在的环境变量优先于 .env 文件内容
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	return Parse()
}

// Parse：仅从当前环境变量解析，测试使用
func Parse() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate：分辨率阶梯与数值边界检查
func (c *Config) Validate() error {
	if c.Grid.CaptureRes < 0 || c.Grid.CaptureRes > 15 {
		return fmt.Errorf("GRID_CAPTURE_RES %d out of range [0,15]", c.Grid.CaptureRes)
	}
	if c.Grid.RegionRes < 0 || c.Grid.RegionRes >= c.Grid.CaptureRes {
		return fmt.Errorf("GRID_REGION_RES %d must be in [0,%d)", c.Grid.RegionRes, c.Grid.CaptureRes)
	}
	switch c.Backend {
	case BackendMemory, BackendPostgres, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("STORE_BACKEND %q not supported", c.Backend)
	}
	if c.Commit.Workers < 1 {
		return fmt.Errorf("COMMIT_WORKERS must be positive")
	}
	if c.Commit.MaxRetries < 0 {
		return fmt.Errorf("COMMIT_MAX_RETRIES must not be negative")
	}
	if c.ViewportMaxRegions < 1 {
		return fmt.Errorf("VIEWPORT_MAX_REGIONS must be positive")
	}
	if c.Raster.CloseToleranceMeters < 0 {
		return fmt.Errorf("RASTER_CLOSE_TOLERANCE_M must not be negative")
	}
	if c.Events.Enabled && c.Events.Stream == "" {
		return fmt.Errorf("EVENTS_STREAM required when EVENTS_ENABLED")
	}
	return nil
}
