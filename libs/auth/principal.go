package auth

import (
	"net/http"
	"strings"
)

// Headers forwarded by the gateway after it has verified a token. Services trust them
// only because they are reachable through the gateway alone.
const (
	HeaderUserID    = "X-User-Id"
	HeaderRole      = "X-Role"
	HeaderBookingID = "X-Booking-Id"

	// BookingTokenHeader carries the guest booking token from the browser to the gateway.
	BookingTokenHeader = "X-Booking-Token"
)

type Principal struct {
	UserID    string
	Role      string
	BookingID string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func PrincipalFromHeaders(h http.Header) Principal {
	return Principal{
		UserID:    strings.TrimSpace(h.Get(HeaderUserID)),
		Role:      strings.TrimSpace(h.Get(HeaderRole)),
		BookingID: strings.TrimSpace(h.Get(HeaderBookingID)),
	}
}

// SetHeaders replaces any client-supplied identity headers with the verified claims.
func SetHeaders(h http.Header, c *Claims) {
	h.Del(HeaderUserID)
	h.Del(HeaderRole)
	h.Del(HeaderBookingID)
	if c == nil {
		return
	}
	h.Set(HeaderUserID, c.Subject)
	h.Set(HeaderRole, c.Role)
	if c.BookingID != "" {
		h.Set(HeaderBookingID, c.BookingID)
	}
}
