package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/outlet-commerce/internal/domain/catalog"
	"github.com/xenking/outlet-commerce/internal/domain/coupon"
	"github.com/xenking/outlet-commerce/internal/domain/notification"
	"github.com/xenking/outlet-commerce/internal/domain/order"
	"github.com/xenking/outlet-commerce/internal/events"
	"github.com/xenking/outlet-commerce/internal/gateway/mail"
	"github.com/xenking/outlet-commerce/internal/gateway/sms"
	"github.com/xenking/outlet-commerce/internal/handler"
	"github.com/xenking/outlet-commerce/internal/idempotency"
	"github.com/xenking/outlet-commerce/internal/invoice"
	"github.com/xenking/outlet-commerce/pkg/health"
	"github.com/xenking/outlet-commerce/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the notification
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	st, err := openStores(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer st.close()

	deps, closeDeps, err := notificationDeps(lg, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	dispatcher, err := notification.NewDispatcher(lg.Named("notify"), notification.Config{
		Workers:        cfg.Notify.Workers,
		QueueSize:      cfg.Notify.QueueSize,
		MaxRetries:     cfg.Notify.MaxRetries,
		InitialBackoff: cfg.Notify.InitialBackoff,
		MaxBackoff:     cfg.Notify.MaxBackoff,
		Timeout:        cfg.Notify.Timeout,
	}, deps, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create dispatcher")
	}
	healthSvc.AddReadinessCheck("notifications", time.Second,
		health.BacklogCheck(dispatcher.Pending, cfg.Notify.QueueSize))

	vatRate, err := cfg.Orders.vatRate()
	if err != nil {
		return err
	}
	orderService, err := order.NewService(order.Deps{
		Customers: st.customers,
		Catalog:   catalog.NewResolver(st.products),
		Coupons:   coupon.NewEvaluator(st.coupons),
		Orders:    st.orders,
		Outlets:   st.outlets,
		Notifier:  dispatcher,
	},
		order.WithNumberPrefix(cfg.Orders.NumberPrefix),
		order.WithVATRate(vatRate),
		order.WithTransitions(cfg.Orders.EnforceTransitions),
		order.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	var idem idempotency.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		idem = idempotency.NewRedisStore(rdb, cfg.Redis.IdempotencyTTL)
	} else {
		lg.Info("Redis not configured, idempotency keys disabled")
	}

	h := handler.New(handler.Config{Idempotency: idem}, orderService)

	router := chi.NewRouter()
	router.Use(httpmiddleware.LogRequests())
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Mount(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("shop-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", idempotency.Header},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				RPS:   cfg.RateLimit.RPS,
				Burst: cfg.RateLimit.Burst,
			}),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			dispatcher.Close()
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		// No new orders can arrive; let the workers drain the queue.
		dispatcher.Close()
		healthSvc.Stop()
		return nil
	})
	return g.Wait()
}

// notificationDeps builds the enabled delivery channels. The returned func
// releases them once the dispatcher has drained.
func notificationDeps(lg *zap.Logger, cfg *Config) (notification.Deps, func(), error) {
	var (
		deps   notification.Deps
		closer = func() {}
	)

	if cfg.SMS.BaseURL != "" {
		deps.SMS = sms.New(sms.Config{
			BaseURL:  cfg.SMS.BaseURL,
			APIKey:   cfg.SMS.APIKey,
			SenderID: cfg.SMS.SenderID,
		}, nil)
	} else {
		lg.Info("SMS gateway not configured, SMS disabled")
	}

	if cfg.SMTP.Host != "" {
		sender, err := mail.New(mail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return deps, closer, errors.Wrap(err, "create mail sender")
		}
		deps.Email = sender
		deps.Invoices = invoice.New(cfg.Orders.ShopName)
	} else {
		lg.Info("SMTP not configured, invoice email disabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		deps.Events = pub
		closer = func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}
	} else {
		lg.Info("Kafka not configured, order events disabled")
	}

	return deps, closer, nil
}
