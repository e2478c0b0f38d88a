package authn

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session is the authenticated identity attached to a request.
type Session struct {
	UserID uuid.UUID
	Email  string
}

// Claims is the token payload: sub carries the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 session tokens.
type Service struct {
	key    []byte
	issuer string
	leeway time.Duration
	ttl    time.Duration
	now    func() time.Time
}

func New(cfg Config) (*Service, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue mints a token for s. The identity service normally does this; the
// billing service uses it for tooling and tests.
func (s *Service) Issue(sess Session) (string, error) {
	if sess.UserID == uuid.Nil {
		return "", ErrInvalidSubject
	}
	now := s.now()
	claims := Claims{
		Email: sess.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks the signature, algorithm, expiry and issuer of token and
// returns its session.
func (s *Service) Verify(token string) (Session, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return s.key, nil }, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Session{}, ErrExpiredToken
	case err != nil:
		return Session{}, errors.Join(ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return Session{}, ErrInvalidSubject
	}
	return Session{UserID: id, Email: strings.TrimSpace(claims.Email)}, nil
}
