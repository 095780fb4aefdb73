package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/JoseSOto27/WNGL/common/broker"
	"github.com/JoseSOto27/WNGL/common/logger"
	"github.com/JoseSOto27/WNGL/common/metrics"
	"github.com/JoseSOto27/WNGL/common/middleware"
	"github.com/JoseSOto27/WNGL/common/store"
	"github.com/JoseSOto27/WNGL/payments/checkout"
	"github.com/JoseSOto27/WNGL/payments/processor"
	"github.com/JoseSOto27/WNGL/payments/reconcile"
)

type App struct {
	store         *store.PostgresStore
	publisher     *broker.Publisher
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
	AMQPUser       string
	AMQPPass       string
	AMQPHost       string
	AMQPPort       string
	MPAccessToken  string
	GatewayTimeout time.Duration
	WebhookTimeout time.Duration
	AllowedOrigins []string
	Policy         processor.Policy
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

	// order.paid is best effort; without a broker the webhook still records orders.
	if config.AMQPHost == "" {
		log.Info("amqp host not provided, order.paid events disabled")
		return app, nil
	}

	log.Info("connecting to rabbitmq",
		slog.String("host", config.AMQPHost),
		slog.String("port", config.AMQPPort),
	)
	ch, close, err := broker.Connect(config.AMQPUser, config.AMQPPass, config.AMQPHost, config.AMQPPort, log)
	if err != nil {
		log.Error("failed to connect to rabbitmq", slog.Any("error", err))
		db.Close()
		return nil, err
	}
	log.Info("rabbitmq connected successfully")

	app.publisher = broker.NewPublisher(ch)
	app.closeRabbitMQ = close
	return app, nil
}

func (a *App) Start(ctx context.Context) error {
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer, a.config.ServiceName)
	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer, a.config.ServiceName)

	mp, err := processor.NewMercadoPago(a.config.MPAccessToken, a.config.GatewayTimeout, paymentMetrics)
	if err != nil {
		return err
	}
	a.logger.Info("mercadopago processor initialized")

	var publisher reconcile.Publisher
	if a.publisher != nil {
		publisher = a.publisher
	}

	builder := checkout.NewBuilder(mp, a.store, a.config.Policy, a.logger)
	engine := reconcile.NewEngine(mp, a.store, publisher, a.logger, paymentMetrics)
	svc := NewService(builder, engine, a.logger, paymentMetrics)

	mux := http.NewServeMux()
	handler := NewPaymentHTTPHandler(svc, a.logger, a.config.WebhookTimeout, a.store.Ping)
	handler.registerRoutes(mux)

	// otelhttp outermost: Metrics reads r.Pattern, which only the inner request carries.
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

	return a.store.Close()
}
