// Package authn authenticates API requests with HS256 bearer tokens issued by
// the identity service. The token subject is the user id and the email claim
// is used for processor customer lookup.
//
//	svc, err := authn.New(cfg)
//	r.With(authn.Middleware(svc)).Post("/api/billing/checkout", h.Checkout)
//	...
//	sess := authn.MustSession(r.Context())
package authn
