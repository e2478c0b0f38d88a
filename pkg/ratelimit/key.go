package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// maxKeyLength keeps storage keys short when parts are combined.
const maxKeyLength = 64

// KeyFunc extracts a unique identifier from an HTTP request for rate limiting.
type KeyFunc func(*http.Request) string

// ByRemoteIP keys on the client address. Mount chi's RealIP middleware in
// front when running behind a proxy.
func ByRemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Composite joins the non-empty results of keyFuncs. Keys longer than 64
// characters are replaced by a truncated SHA256 hex digest.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}
		if len(parts) == 0 {
			return ""
		}

		combined := strings.Join(parts, ":")
		if len(combined) > maxKeyLength {
			hash := sha256.Sum256([]byte(combined))
			return hex.EncodeToString(hash[:16])
		}
		return combined
	}
}

// FirstOf returns the first non-empty key, e.g. the user id falling back to
// the client address.
func FirstOf(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				return key
			}
		}
		return ""
	}
}
