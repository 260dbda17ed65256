package httpx

import "net/http"

// RequireAuth rejects requests that carry no authenticated identity. It
// assumes an upstream middleware already tried to resolve one from the
// bearer token.
func RequireAuth() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				WriteBearerError(w, "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperuser rejects callers whose identity lacks the platform
// superuser flag. Stack it after RequireAuth.
func RequireSuperuser() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteBearerError(w, "missing or invalid bearer token")
				return
			}
			if !id.Superuser {
				WriteError(w, http.StatusForbidden, "forbidden", "superuser access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteBearerError writes an RFC 6750 style 401 for bearer auth failures.
func WriteBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
