package notification

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/pkg/middleware"
)

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// JWTSecret はユーザー認証に使うJWTの署名鍵。
	JWTSecret string
	// InternalToken は内部APIの共有トークン。空の場合は内部APIを公開しない。
	InternalToken string
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// PageSize は一覧取得の既定件数。
	PageSize int
	// MaxPageSize は一覧取得の最大件数。
	MaxPageSize int
	// Stream はストリーム配信の設定。
	Stream StreamConfig
}

const (
	// defaultPageSize は一覧取得の既定件数。
	defaultPageSize = 20
	// defaultMaxPageSize は一覧取得の最大件数の既定値。
	defaultMaxPageSize = 100
)

// withDefaults は未設定の値を既定値で埋めた設定を返す。
func (cfg ServerConfig) withDefaults() ServerConfig {
	def := DefaultStreamConfig()
	if cfg.Stream.HeartbeatInterval <= 0 {
		cfg.Stream.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.Stream.QueueSize <= 0 {
		cfg.Stream.QueueSize = def.QueueSize
	}
	if cfg.Stream.PushTimeout <= 0 {
		cfg.Stream.PushTimeout = def.PushTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaultMaxPageSize
	}
	if cfg.MaxPageSize < cfg.PageSize {
		cfg.MaxPageSize = cfg.PageSize
	}
	return cfg
}

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサーバー設定。
	cfg ServerConfig
	// store は通知ストア。
	store Store
	// creator は通知生成パイプライン。
	creator *Creator
	// streamer はストリーム接続を管理する。
	streamer *streamer
	// logger は構造化ロガー。
	logger *zap.Logger
	// now は既読日時に使う時計。
	now func() time.Time
}

// NewServer は新しい通知サーバーを生成する。cfgの未設定値は既定値で補う。
func NewServer(cfg ServerConfig, store Store, registry *Registry, creator *Creator, logger *zap.Logger) *Server {
	cfg = cfg.withDefaults()

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(middleware.CORS(cfg.AllowedOrigins))
	}

	s := &Server{
		router:  router,
		cfg:     cfg,
		store:   store,
		creator: creator,
		streamer: &streamer{
			registry: registry,
			cfg:      cfg.Stream,
			logger:   logger,
			now:      time.Now,
		},
		logger: logger,
		now:    time.Now,
	}
	s.setupRoutes()

	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	// EventSourceはヘッダーを設定できないため、ストリームのみクエリパラメータのトークンも受け付ける
	api.GET("/notifications/stream",
		middleware.JWTAuth(s.cfg.JWTSecret, middleware.WithQueryToken("token")),
		s.handleStream())

	notifications := api.Group("/notifications")
	notifications.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	{
		// 通知一覧取得
		notifications.GET("", s.handleList())
		// 未読件数取得
		notifications.GET("/unread-count", s.handleUnreadCount())
		// 通知を既読にする
		notifications.PATCH("/:id", s.handleMarkRead())
		// 全通知を既読にする
		notifications.PUT("/read-all", s.handleMarkAllRead())
	}

	// 内部API（他サービスから呼び出される）
	if s.cfg.InternalToken != "" {
		internal := api.Group("/internal")
		internal.Use(middleware.InternalToken(s.cfg.InternalToken))
		{
			internal.POST("/notifications", s.handleCreate())
			internal.POST("/notifications/batch", s.handleCreateBatch())
			internal.POST("/groups/:id/notifications", s.handleCreateForGroup())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})

	// Prometheusメトリクス
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
