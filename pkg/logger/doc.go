// Package logger builds structured slog loggers for the billing service.
//
// New returns a *slog.Logger configured by Option functions: output format,
// level, static attributes and ContextExtractor callbacks that inject
// request-scoped values (request id, user id) on every log call.
// NewFromConfig applies an environment preset from APP_ENV and LOG_LEVEL.
//
// Request-scoped loggers are carried through context.Context with
// WithContext and FromContext rather than package globals:
//
//	log := logger.NewFromConfig(cfg)
//	ctx = logger.WithContext(ctx, log.With(logger.EventID(evt.ID)))
//	...
//	logger.FromContext(ctx).InfoContext(ctx, "webhook processed")
//
// Attribute helpers in attr.go (Error, UserID, CustomerID, SubscriptionID,
// EventType, ...) keep key names consistent. Error returns an empty Attr for
// a nil error, so it can be passed without a nil check.
package logger
