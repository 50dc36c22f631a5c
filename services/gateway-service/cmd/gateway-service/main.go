package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/auth"
	"github.com/md-rashed-zaman/advisoryoffice/libs/config"
	"github.com/md-rashed-zaman/advisoryoffice/libs/httpx"
	otelx "github.com/md-rashed-zaman/advisoryoffice/libs/otel"
	"github.com/md-rashed-zaman/advisoryoffice/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	signer := auth.NewSigner(jwtSecret, config.String("JWT_ISSUER", "advisoryoffice"))

	up := upstreams{
		booking: mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		office:  mustParseURL(config.String("OFFICE_URL", "http://office-service:8084")),
	}
	checks := []runtime.ReadyCheck{
		{Name: "booking-service", Check: upstreamCheck(up.booking)},
		{Name: "office-service", Check: upstreamCheck(up.office)},
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	g := &gateway{
		signer: signer,
		logger: logger,
		login: &loginHandler{
			signer:       signer,
			logger:       logger,
			email:        config.String("ADMIN_EMAIL", ""),
			passwordHash: config.String("ADMIN_PASSWORD_HASH", ""),
			ttl:          config.Duration("ADMIN_TOKEN_TTL", 12*time.Hour),
		},
		bodyLimit:   int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		uploadLimit: int64(config.Int("UPLOAD_BODY_LIMIT_BYTES", 14<<20)),
	}
	if g.login.passwordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set; admin login is disabled")
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	g.routes(mux, up)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,X-Booking-Token"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// upstreamCheck probes the service's /healthz.
func upstreamCheck(base *url.URL) func(context.Context) error {
	client := &http.Client{Timeout: 2 * time.Second}
	target := base.JoinPath("healthz").String()
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("healthz returned %d", resp.StatusCode)
		}
		return nil
	}
}
