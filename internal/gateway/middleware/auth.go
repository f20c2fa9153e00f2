package middleware

import (
	"context"
	"net/http"
	"strings"

	"contactdir/internal/githost"
)

type credentialKey struct{}

// Credential stores the bearer token of the request, if any, in its context.
// Missing tokens are not rejected here: read-only routes do not need one and
// the contribution pipeline reports the auth failure itself.
func Credential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cred := BearerToken(r.Header.Get("Authorization")); cred != "" {
			r = r.WithContext(WithCredential(r.Context(), cred))
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) githost.Credential {
	header = strings.TrimSpace(header)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return githost.Credential(strings.TrimSpace(token))
}

func WithCredential(ctx context.Context, cred githost.Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

func CredentialFromContext(ctx context.Context) githost.Credential {
	cred, _ := ctx.Value(credentialKey{}).(githost.Credential)
	return cred
}
