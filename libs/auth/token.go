package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	RoleAdmin = "admin"
	RoleGuest = "guest"
)

// Claims covers both token kinds: admin session tokens (Role=admin) and guest booking
// tokens (Role=guest, BookingID set) handed out when a booking is created.
type Claims struct {
	Role      string `json:"role"`
	BookingID string `json:"booking_id,omitempty"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewSigner(secret, issuer string) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// AdminToken issues a session token for a back-office user.
func (s *Signer) AdminToken(subject string, ttl time.Duration) (string, error) {
	now := s.now()
	return s.sign(Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
}

// BookingToken issues the guest token that scopes a visitor to one booking. It stays
// valid until ttl after the booked slot starts.
func (s *Signer) BookingToken(bookingID string, slotStart time.Time, ttl time.Duration) (string, error) {
	now := s.now()
	return s.sign(Claims{
		Role:      RoleGuest,
		BookingID: bookingID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   bookingID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(slotStart.Add(ttl)),
		},
	})
}

func (s *Signer) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies an HS256 token and its expiry.
func (s *Signer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Role != RoleAdmin && claims.Role != RoleGuest {
		return nil, ErrInvalidToken
	}
	if claims.Role == RoleGuest && claims.BookingID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
