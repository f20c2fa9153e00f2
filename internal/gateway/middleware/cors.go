package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods  = "POST, GET, OPTIONS"
	corsAllowHeaders  = "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, Connect-Protocol-Version, Connect-Timeout-Ms, X-User-Agent, Connect-Content-Encoding, Connect-Accept-Encoding"
	corsExposeHeaders = "X-Run-Id, X-Request-Id, Connect-Content-Encoding, Connect-Accept-Encoding"
)

// CORS reflects the request origin when it is allowed. An empty allow list
// accepts every origin; "*" in the list does the same.
func CORS(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	allowAll := len(allowed) == 0
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		set[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			_, ok := set[origin]
			switch {
			case origin == "":
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowAll || ok:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			default:
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.Header().Set("Access-Control-Expose-Headers", corsExposeHeaders)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
