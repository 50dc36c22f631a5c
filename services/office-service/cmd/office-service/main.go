package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/config"
	"github.com/md-rashed-zaman/advisoryoffice/libs/db"
	"github.com/md-rashed-zaman/advisoryoffice/libs/events"
	"github.com/md-rashed-zaman/advisoryoffice/libs/httpx"
	"github.com/md-rashed-zaman/advisoryoffice/libs/kafkax"
	otelx "github.com/md-rashed-zaman/advisoryoffice/libs/otel"
	"github.com/md-rashed-zaman/advisoryoffice/libs/outbox"
	"github.com/md-rashed-zaman/advisoryoffice/libs/runtime"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/admission"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/consumer"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/handlers"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/inbox"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/meetings"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/objectstore"
	"github.com/md-rashed-zaman/advisoryoffice/services/office-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type officeStore interface {
	meetings.Store
	admission.Store
}

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "office-service")
	port, err := config.Port("PORT", "8084")
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

	brokers := config.String("KAFKA_BROKERS", "")
	var (
		store  officeStore
		box    consumer.Inbox
		checks []runtime.ReadyCheck
	)
	switch driver := strings.ToLower(config.String("STORE_DRIVER", "postgres")); driver {
	case "memory":
		logger.Warn("using in-memory office store; events are not published")
		store = storage.NewMemory()
		box = inbox.NewMemory()
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
		store = storage.NewRepository(pool, outboxRepo)
		box = inbox.NewRepository(pool)
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

	objects, filesHandler, err := openObjectStore()
	if err != nil {
		logger.Error("object store setup failed", "err", err)
		panic(err)
	}

	svc := meetings.NewService(store, objects, logger)
	engine := admission.NewEngine(store, logger)

	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		c := consumer.New(logger, box, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   events.BookingCreated,
		}, consumer.BookingCreated(svc, logger))
		go c.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; booked meetings are not opened automatically")
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewOfficeHandler(svc, engine, logger).Register(mux)
	if filesHandler != nil {
		mux.Handle("GET /files/{key...}", filesHandler)
	}

	// Base64 inflates uploads by a third.
	maxUpload := int64(config.Int("FILES_MAX_BYTES", 10<<20))
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(maxUpload*4/3+64<<10),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "office")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}

// openObjectStore picks Cloudinary when CLOUDINARY_URL is set and the local directory
// store otherwise. The local store comes with the handler that serves it.
func openObjectStore() (objectstore.Store, http.Handler, error) {
	limits := objectstore.DefaultLimits()
	limits.MaxBytes = int64(config.Int("FILES_MAX_BYTES", int(limits.MaxBytes)))
	if allowed := config.List("FILES_ALLOWED_TYPES", ""); len(allowed) > 0 {
		limits.Allowed = allowed
	}

	switch driver := strings.ToLower(config.String("OBJECT_STORE", "")); {
	case driver == "cloudinary" || (driver == "" && config.String("CLOUDINARY_URL", "") != ""):
		rawURL, err := config.RequiredString("CLOUDINARY_URL")
		if err != nil {
			return nil, nil, err
		}
		cld, err := objectstore.NewCloudinary(rawURL, config.String("CLOUDINARY_FOLDER", "advisoryoffice"), limits)
		return cld, nil, err
	default:
		local, err := objectstore.NewLocal(
			config.String("FILES_DIR", "./data/files"),
			config.String("FILES_PUBLIC_BASE", "http://localhost:8080/files"),
			limits,
		)
		if err != nil {
			return nil, nil, err
		}
		return local, local.Handler(), nil
	}
}
