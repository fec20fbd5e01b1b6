package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// APIKeyMiddleware authenticates machine callers against a configured key
// set. Requests without the header fall through to the JWT middleware.
type APIKeyMiddleware struct {
	headerName string
	keyHashes  []string
}

func NewAPIKeyMiddleware(headerName string, keys []string) *APIKeyMiddleware {
	hashes := make([]string, len(keys))
	for i, k := range keys {
		hashes[i] = HashAPIKey(k)
	}
	return &APIKeyMiddleware{headerName: headerName, keyHashes: hashes}
}

func (m *APIKeyMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(m.headerName)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		hash := HashAPIKey(key)
		for _, known := range m.keyHashes {
			if subtle.ConstantTimeCompare([]byte(known), []byte(hash)) == 1 {
				ctx := WithActor(r.Context(), "api-key")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		writeError(w, http.StatusUnauthorized, "invalid API key")
	})
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
