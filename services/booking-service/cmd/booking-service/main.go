package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/auth"
	"github.com/md-rashed-zaman/advisoryoffice/libs/config"
	"github.com/md-rashed-zaman/advisoryoffice/libs/db"
	"github.com/md-rashed-zaman/advisoryoffice/libs/httpx"
	"github.com/md-rashed-zaman/advisoryoffice/libs/kafkax"
	otelx "github.com/md-rashed-zaman/advisoryoffice/libs/otel"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/libs/runtime"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/bookings"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/advisoryoffice/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	policy, err := loadPolicy()
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	signer := auth.NewSigner(jwtSecret, config.String("JWT_ISSUER", "advisoryoffice"))

	brokers := config.String("KAFKA_BROKERS", "")
	var (
		store  bookings.Store
		checks []runtime.ReadyCheck
	)
	switch driver := strings.ToLower(config.String("STORE_DRIVER", "postgres")); driver {
	case "memory":
		logger.Warn("using in-memory booking store; events are not published")
		store = storage.NewMemoryStore()
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			panic(err)
		}
		pool, err := db.Open(ctx, dbURL, db.PoolConfig{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
			MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
		})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if err := pool.ApplySchema(ctx, storage.Schema()); err != nil {
			logger.Error("schema apply failed", "err", err)
			panic(err)
		}

		outboxRepo := outbox.NewRepository()
		store = storage.NewBookingRepository(pool, outboxRepo)
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	default:
		panic("unknown STORE_DRIVER " + driver)
	}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	svc := bookings.NewService(store, signer, logger, bookings.Config{
		Policy:   policy,
		TokenTTL: config.Duration("BOOKING_TOKEN_TTL", 24*time.Hour),
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewBookingHandler(svc, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 64<<10))),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}

func loadPolicy() (availability.Policy, error) {
	p := availability.DefaultPolicy()
	loc, err := time.LoadLocation(config.String("BOOKING_TIMEZONE", "UTC"))
	if err != nil {
		return availability.Policy{}, err
	}
	p.Location = loc
	p.MinLead = config.Duration("BOOKING_MIN_LEAD", p.MinLead)
	p.DayStart = config.Duration("BOOKING_DAY_START", p.DayStart)
	p.DayEnd = config.Duration("BOOKING_DAY_END", p.DayEnd)
	p.Step = time.Duration(config.Int("BOOKING_SLOT_MINUTES", int(p.Step/time.Minute))) * time.Minute
	return p, nil
}
