package main

import (
	"embed"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/auth"
	"github.com/md-rashed-zaman/advisoryoffice/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

type upstreams struct {
	booking *url.URL
	office  *url.URL
}

type gateway struct {
	signer      *auth.Signer
	logger      *slog.Logger
	login       *loginHandler
	bodyLimit   int64
	uploadLimit int64
}

func (g *gateway) routes(mux *http.ServeMux, up upstreams) {
	booking := g.proxy(up.booking)
	office := g.proxy(up.office)
	small := httpx.WithBodyLimit(g.bodyLimit)
	large := httpx.WithBodyLimit(g.uploadLimit)

	mux.Handle("POST /auth/login", small(g.login))

	mux.Handle("POST /bookings", small(g.public(booking)))
	mux.Handle("GET /bookings/slots", g.public(booking))
	mux.Handle("GET /bookings", g.requireAuth(g.requireRole(booking, auth.RoleAdmin)))
	mux.Handle("GET /bookings/{id}", g.requireAuth(booking))
	mux.Handle("POST /bookings/{id}/status", small(g.requireAuth(g.requireRole(booking, auth.RoleAdmin))))

	// Host-only office routes.
	// Polled reads are never cached, gateway errors included.
	host := g.requireAuth(g.requireRole(office, auth.RoleAdmin))
	mux.Handle("POST /virtual-office/meetings", small(host))
	mux.Handle("POST /virtual-office/meetings/{meetingId}/start", host)
	mux.Handle("GET /virtual-office/waiting-room/{meetingId}", httpx.NoStore(host))
	mux.Handle("POST /virtual-office/admit/{entryId}", host)
	mux.Handle("POST /virtual-office/reject/{entryId}", host)

	// Participant routes: the office service scopes guests to their booking, and ad-hoc
	// meetings accept callers without a token.
	participant := g.optionalAuth(office)
	polled := httpx.NoStore(participant)
	mux.Handle("GET /virtual-office/meetings", polled)
	mux.Handle("GET /virtual-office/meetings/{meetingId}", polled)
	mux.Handle("POST /virtual-office/waiting-room/{meetingId}/join", small(participant))
	mux.Handle("GET /virtual-office/waiting-room/entry/{entryId}", polled)
	mux.Handle("GET /virtual-office/chat/{meetingId}", polled)
	mux.Handle("POST /virtual-office/chat", small(participant))
	mux.Handle("GET /virtual-office/files/{meetingId}", polled)
	mux.Handle("POST /virtual-office/files/upload", large(participant))
	mux.Handle("GET /files/{key...}", g.public(office))

	mux.HandleFunc("GET /openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func (g *gateway) proxy(target *url.URL) http.Handler {
	p := httputil.NewSingleHostReverseProxy(target)
	p.Transport = otelhttp.NewTransport(http.DefaultTransport)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Error("upstream request failed",
			"upstream", target.Host,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable", "code": "upstream_error"})
	}
	return p
}

// public forwards without identity: client-supplied identity headers are dropped.
func (g *gateway) public(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripCredentials(r)
		auth.SetHeaders(r.Header, nil)
		next.ServeHTTP(w, r)
	})
}

// requireAuth verifies the admin bearer token or the guest booking token and forwards the
// verified identity as headers.
func (g *gateway) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.verify(r)
		if err == nil && claims == nil {
			err = apperr.Unauthorized("missing credentials")
		}
		if err != nil {
			httpx.WriteError(w, r, g.logger, err)
			return
		}
		stripCredentials(r)
		auth.SetHeaders(r.Header, claims)
		next.ServeHTTP(w, r)
	})
}

// optionalAuth is requireAuth for routes that also serve anonymous callers. A token that
// is present must still be valid.
func (g *gateway) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.verify(r)
		if err != nil {
			httpx.WriteError(w, r, g.logger, err)
			return
		}
		stripCredentials(r)
		auth.SetHeaders(r.Header, claims)
		next.ServeHTTP(w, r)
	})
}

func (g *gateway) requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := allowed[r.Header.Get(auth.HeaderRole)]; !ok {
			httpx.WriteError(w, r, g.logger, apperr.Forbidden("role not allowed"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// verify returns nil claims when the request carries no credentials.
func (g *gateway) verify(r *http.Request) (*auth.Claims, error) {
	raw := ""
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return nil, apperr.Unauthorized("malformed Authorization header")
		}
		raw = strings.TrimSpace(token)
	} else if token := strings.TrimSpace(r.Header.Get(auth.BookingTokenHeader)); token != "" {
		raw = token
	}
	if raw == "" {
		return nil, nil
	}
	claims, err := g.signer.Parse(raw)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			return nil, err
		}
		return nil, apperr.Unauthorized("invalid or expired token")
	}
	return claims, nil
}

func stripCredentials(r *http.Request) {
	r.Header.Del("Authorization")
	r.Header.Del(auth.BookingTokenHeader)
}
