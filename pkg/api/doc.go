// Package api exposes the billing components over HTTP with chi.
//
// User-facing routes live under /api/billing and require a bearer session
// (see package authn). The Stripe webhook endpoint is unauthenticated and
// relies on signature verification inside billing.WebhookProcessor.
//
// Errors are answered as {"error": "<user-safe message>", "code": "<key>"};
// the underlying error is logged with the request-scoped logger and never
// echoed to the client.
package api
