// Package config loads service configuration from environment variables.
//
// It wraps github.com/joho/godotenv for .env files and
// github.com/caarlos0/env/v11 for struct parsing. Each component owns its
// config struct (billing.StripeConfig, authn.Config, pg.Config, ...) and the
// entrypoint loads them one by one:
//
//	var stripeCfg billing.StripeConfig
//	config.MustLoad(&stripeCfg)
//
// Values set in the process environment take precedence over .env files.
// Parse failures wrap ErrParsingConfig so callers can match with errors.Is.
package config
