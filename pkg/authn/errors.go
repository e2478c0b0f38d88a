package authn

import "errors"

var (
	ErrMissingSigningKey = errors.New("authn: signing key is required")
	ErrMissingToken      = errors.New("authn: missing bearer token")
	ErrInvalidToken      = errors.New("authn: invalid token")
	ErrExpiredToken      = errors.New("authn: token expired")
	ErrInvalidSubject    = errors.New("authn: token subject is not a user id")
	ErrNoSession         = errors.New("authn: no session in context")
)
