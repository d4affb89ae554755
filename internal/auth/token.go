package auth

import (
	"net/http"
	"strings"
)

// BearerToken extracts the credential from the token query parameter,
// the Authorization header or the token header, in that order.
func BearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	return r.Header.Get("token")
}
