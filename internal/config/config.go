// Package config は通知サービスの設定を読み込む。
//
// 読み込み順は 既定値 → 設定ファイル（任意） → .env → 環境変数 で、後のものが優先される。
// 環境変数は NOTIFYHUB_ 接頭辞を持ち、キーの "." は "_" に置き換える
// （例: stream.heartbeat_interval → NOTIFYHUB_STREAM_HEARTBEAT_INTERVAL）。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix は環境変数の接頭辞。
const envPrefix = "NOTIFYHUB"

// Config はサービス全体の設定。
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Log        LogConfig        `mapstructure:"log"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig は通知ストアの接続設定。
type DatabaseConfig struct {
	// Driver は "sqlite" または "postgres"。
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// AuthConfig は認証の設定。
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// InternalToken が空の場合、内部APIはマウントされない。
	InternalToken string `mapstructure:"internal_token"`
}

// StreamConfig はストリーム配信の設定。
type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	QueueSize         int           `mapstructure:"queue_size"`
	PushTimeout       time.Duration `mapstructure:"push_timeout"`
}

// PaginationConfig は一覧取得の設定。
type PaginationConfig struct {
	PageSize    int `mapstructure:"page_size"`
	MaxPageSize int `mapstructure:"max_page_size"`
}

// DirectoryConfig はメンバー・ユーザー情報を提供するディレクトリサービスの設定。
type DirectoryConfig struct {
	// URL が空の場合はディレクトリを使用しない。
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Token が空でなければBearerトークンとして送信する。
	Token string `mapstructure:"token"`
}

// BrokerConfig はインスタンス間ファンアウトの設定。
type BrokerConfig struct {
	// RedisURL が空の場合は単一プロセス内でのみ配信する。
	RedisURL string `mapstructure:"redis_url"`
	Channel  string `mapstructure:"channel"`
}

// KafkaConfig は通知生成リクエストの取り込み設定。
type KafkaConfig struct {
	// Brokers が空の場合は取り込みを行わない。
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// RetentionConfig は既読通知の保持期間の設定。
type RetentionConfig struct {
	// Days が0の場合は削除しない。
	Days     int    `mapstructure:"days"`
	Schedule string `mapstructure:"schedule"`
}

// TracingConfig はOpenTelemetryの設定。
type TracingConfig struct {
	// Endpoint が空の場合はトレースをエクスポートしない。
	Endpoint    string `mapstructure:"endpoint"`
	Environment string `mapstructure:"environment"`
}

// LogConfig はロガーの設定。
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// CORSConfig はCORSの設定。
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// setDefaults は既定値を設定する。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8086")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "/data/notification.db")
	v.SetDefault("auth.jwt_secret", "dev-secret-key")
	v.SetDefault("auth.internal_token", "")
	v.SetDefault("stream.heartbeat_interval", 30*time.Second)
	v.SetDefault("stream.queue_size", 16)
	v.SetDefault("stream.push_timeout", 2*time.Second)
	v.SetDefault("pagination.page_size", 20)
	v.SetDefault("pagination.max_page_size", 100)
	v.SetDefault("directory.url", "")
	v.SetDefault("directory.timeout", 5*time.Second)
	v.SetDefault("directory.token", "")
	v.SetDefault("broker.redis_url", "")
	v.SetDefault("broker.channel", "notifyhub:push")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "notification.requests")
	v.SetDefault("kafka.group_id", "notifyhub")
	v.SetDefault("retention.days", 0)
	v.SetDefault("retention.schedule", "@daily")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("cors.allowed_origins", []string{})
}

// Load は設定を読み込む。pathが空の場合は設定ファイルを読まない。
func Load(path string) (*Config, error) {
	// .envは存在しなくてもよい
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q は未対応です", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn が空です"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret が空です"))
	}
	if c.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("stream.heartbeat_interval は正の値である必要があります"))
	}
	if c.Stream.QueueSize <= 0 {
		errs = append(errs, errors.New("stream.queue_size は正の値である必要があります"))
	}
	if c.Stream.PushTimeout <= 0 {
		errs = append(errs, errors.New("stream.push_timeout は正の値である必要があります"))
	}
	if c.Pagination.PageSize <= 0 {
		errs = append(errs, errors.New("pagination.page_size は正の値である必要があります"))
	}
	if c.Pagination.MaxPageSize < c.Pagination.PageSize {
		errs = append(errs, errors.New("pagination.max_page_size は page_size 以上である必要があります"))
	}
	if c.Retention.Days < 0 {
		errs = append(errs, errors.New("retention.days は0以上である必要があります"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("設定が不正です: %w", errors.Join(errs...))
	}
	return nil
}
