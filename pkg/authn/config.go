package authn

import "time"

type Config struct {
	SigningKey string        `env:"AUTH_JWT_SECRET,required"`         // SigningKey is the HS256 secret shared with the identity service.
	Issuer     string        `env:"AUTH_JWT_ISSUER"`                  // Issuer, when set, must match the iss claim.
	Leeway     time.Duration `env:"AUTH_JWT_LEEWAY" envDefault:"30s"` // Leeway tolerates clock skew on exp and nbf.
	TokenTTL   time.Duration `env:"AUTH_JWT_TTL" envDefault:"1h"`     // TokenTTL applies to tokens minted by Issue.
}
