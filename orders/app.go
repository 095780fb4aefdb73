package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/JoseSOto27/WNGL/common/broker"
	"github.com/JoseSOto27/WNGL/common/logger"
	"github.com/JoseSOto27/WNGL/common/metrics"
	"github.com/JoseSOto27/WNGL/common/middleware"
	"github.com/JoseSOto27/WNGL/common/store"
)

type App struct {
	store         *store.PostgresStore
	cache         *Cache
	channel       *amqp.Channel
	closeRabbitMQ func() error
	httpServer    *http.Server
	config        Config
	logger        *slog.Logger
}

type Config struct {
	ServiceName    string
	HTTPAddr       string
	DatabaseURL    string
	Migrate        bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MenuTTL        time.Duration
	StatsTTL       time.Duration
	AMQPUser       string
	AMQPPass       string
	AMQPHost       string
	AMQPPort       string
	AllowedOrigins []string
}

func NewApp(config Config) (*App, error) {
	log := logger.NewLogger(config.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := store.NewPostgresStore(ctx, config.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to postgres", slog.Any("error", err))
		return nil, err
	}
	log.Info("postgres connected")

	if config.Migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("schema applied")
	}

	app := &App{
		store:  db,
		config: config,
		logger: log,
	}

	if config.RedisAddr == "" {
		log.Info("redis address not provided, caching disabled")
	} else {
		cache, err := NewCache(config.RedisAddr, config.RedisPassword, config.RedisDB, config.MenuTTL, config.StatsTTL)
		if err != nil {
			log.Error("failed to connect to redis", slog.Any("error", err))
			db.Close()
			return nil, err
		}
		log.Info("redis connected", slog.String("addr", config.RedisAddr))
		app.cache = cache
	}

	if config.AMQPHost == "" {
		log.Info("amqp host not provided, events disabled")
		return app, nil
	}

	log.Info("connecting to rabbitmq",
		slog.String("host", config.AMQPHost),
		slog.String("port", config.AMQPPort),
	)
	ch, close, err := broker.Connect(config.AMQPUser, config.AMQPPass, config.AMQPHost, config.AMQPPort, log)
	if err != nil {
		log.Error("failed to connect to rabbitmq", slog.Any("error", err))
		app.closeStores()
		return nil, err
	}
	log.Info("rabbitmq connected successfully")

	app.channel = ch
	app.closeRabbitMQ = close
	return app, nil
}

func (a *App) Start(ctx context.Context) error {
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer, a.config.ServiceName)
	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer, a.config.ServiceName)

	var (
		ordersStore OrdersStore = a.store
		stats       StatsInvalidator
	)
	if a.cache != nil {
		cached := NewCachedStore(a.store, a.cache, a.logger, orderMetrics)
		ordersStore = cached
		stats = cached
	}

	var publisher Publisher
	if a.channel != nil {
		publisher = broker.NewPublisher(a.channel)

		consumer := NewConsumer(a.channel, stats, a.logger, orderMetrics)
		go func() {
			if err := consumer.Listen(ctx, a.channel); err != nil {
				a.logger.Error("order.paid consumer stopped", slog.Any("error", err))
			}
		}()
	}

	svc := NewService(ordersStore, publisher, a.logger, orderMetrics)

	mux := http.NewServeMux()
	handler := NewOrdersHTTPHandler(svc, a.logger, a.store.Ping)
	handler.registerRoutes(mux)

	var h http.Handler = middleware.Metrics(httpMetrics, mux)
	h = middleware.CORS(a.config.AllowedOrigins, h)
	h = otelhttp.NewHandler(h, a.config.ServiceName)

	a.httpServer = &http.Server{
		Addr:              a.config.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("starting http server", slog.String("addr", a.config.HTTPAddr))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down gracefully")

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("http server shutdown error", slog.Any("error", err))
		}
	}

	if a.closeRabbitMQ != nil {
		if err := a.closeRabbitMQ(); err != nil {
			a.logger.Error("error closing rabbitmq", slog.Any("error", err))
		}
	}

	return a.closeStores()
}

func (a *App) closeStores() error {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("error closing redis", slog.Any("error", err))
		}
	}
	return a.store.Close()
}
