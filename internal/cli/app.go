package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/internal/config"
	"github.com/nao1215/notifyhub/internal/ingest"
	"github.com/nao1215/notifyhub/internal/notification"
	"github.com/nao1215/notifyhub/pkg/httpclient"
	"github.com/nao1215/notifyhub/pkg/logger"
	"github.com/nao1215/notifyhub/pkg/observability"
)

// appOptions はserveコマンドのfxアプリケーション構成を返す。
func appOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newDB,
			newStore,
			notification.NewRegistry,
			newDispatchers,
			newDirectory,
			newCreator,
			newServer,
			newRetention,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			registerTracer,
			registerHTTPServer,
			registerBroker,
			registerIngest,
			registerRetention,
		),
	)
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		_ = log.Sync()
	}))
	return log, nil
}

// newDB はデータベースに接続し、未適用のスキーマを適用する。
func newDB(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*sqlx.DB, error) {
	db, err := notification.OpenDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if _, err := notification.Migrate(context.Background(), db, log); err != nil {
		db.Close()
		return nil, err
	}
	lc.Append(fx.StopHook(db.Close))
	return db, nil
}

func newStore(db *sqlx.DB) notification.Store {
	return notification.NewSQLStore(db)
}

// dispatchers は配信経路。Brokerはbroker.redis_url未設定時はnil。
type dispatchers struct {
	fx.Out

	Dispatcher notification.Dispatcher
	Broker     *notification.RedisDispatcher
}

func newDispatchers(lc fx.Lifecycle, cfg *config.Config, registry *notification.Registry, log *zap.Logger) (dispatchers, error) {
	local := notification.NewLocalDispatcher(registry, log)
	if cfg.Broker.RedisURL == "" {
		return dispatchers{Dispatcher: local}, nil
	}

	opts, err := redis.ParseURL(cfg.Broker.RedisURL)
	if err != nil {
		return dispatchers{}, err
	}
	client := redis.NewClient(opts)
	lc.Append(fx.StopHook(client.Close))

	broker := notification.NewRedisDispatcher(client, cfg.Broker.Channel, local, log)
	return dispatchers{Dispatcher: broker, Broker: broker}, nil
}

func newDirectory(cfg *config.Config) notification.Directory {
	if cfg.Directory.URL == "" {
		return notification.StaticDirectory{}
	}
	opts := []httpclient.Option{httpclient.WithTimeout(cfg.Directory.Timeout)}
	if cfg.Directory.Token != "" {
		opts = append(opts, httpclient.WithHeader("Authorization", "Bearer "+cfg.Directory.Token))
	}
	return notification.NewHTTPDirectory(cfg.Directory.URL, opts...)
}

func newCreator(store notification.Store, dispatcher notification.Dispatcher, directory notification.Directory, log *zap.Logger) *notification.Creator {
	return notification.NewCreator(store, dispatcher, directory, log)
}

func newServer(cfg *config.Config, store notification.Store, registry *notification.Registry, creator *notification.Creator, log *zap.Logger) *notification.Server {
	return notification.NewServer(notification.ServerConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		InternalToken:  cfg.Auth.InternalToken,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		PageSize:       cfg.Pagination.PageSize,
		MaxPageSize:    cfg.Pagination.MaxPageSize,
		Stream: notification.StreamConfig{
			HeartbeatInterval: cfg.Stream.HeartbeatInterval,
			QueueSize:         cfg.Stream.QueueSize,
			PushTimeout:       cfg.Stream.PushTimeout,
		},
	}, store, registry, creator, log)
}

func newRetention(cfg *config.Config, store notification.Store, log *zap.Logger) *notification.Retention {
	return notification.NewRetention(store, cfg.Retention.Days, cfg.Retention.Schedule, log)
}

func registerTracer(lc fx.Lifecycle, cfg *config.Config) error {
	shutdown, err := observability.InitTracer(context.Background(), observability.Config{
		ServiceName:    "notifyhub",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		Environment:    cfg.Tracing.Environment,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.StopHook(shutdown))
	return nil
}

// registerHTTPServer はHTTPサーバーの起動と停止を登録する。
// 停止時はストリーム接続を先に閉じてからShutdownする。
func registerHTTPServer(lc fx.Lifecycle, cfg *config.Config, server *notification.Server, registry *notification.Registry, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           otelhttp.NewHandler(server.Handler(), "notifyhub"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("notification service started", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			registry.CloseAll()
			return srv.Shutdown(ctx)
		},
	})
}

// registerBroker はRedisの購読を開始する。Redis未設定時は何もしない。
func registerBroker(lc fx.Lifecycle, broker *notification.RedisDispatcher, log *zap.Logger) {
	if broker == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := broker.Run(ctx); err != nil {
					log.Error("broker stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// registerIngest はKafkaからの取り込みを開始する。ブローカー未設定時は何もしない。
func registerIngest(lc fx.Lifecycle, cfg *config.Config, creator *notification.Creator, log *zap.Logger) {
	if len(cfg.Kafka.Brokers) == 0 {
		return
	}

	consumer := ingest.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, ingest.NewHandler(creator, log), log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("ingest started", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
			go func() {
				defer close(done)
				consumer.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return consumer.Close()
		},
	})
}

func registerRetention(lc fx.Lifecycle, retention *notification.Retention) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return retention.Start()
		},
		OnStop: retention.Stop,
	})
}
