package flapjackapi

import (
	"net/http"
	"strings"

	"github.com/flapjack/flapjack/internal/acl"
	"github.com/flapjack/flapjack/pkg/keystore"
)

// unauthenticatedPrefixes lists path prefixes the auth middleware never
// guards.
var unauthenticatedPrefixes = []string{
	"/health", "/healthz", "/readyz", "/metrics",
	"/dashboard", "/swagger-ui", "/api-docs",
}

func isUnauthenticatedPath(path string) bool {
	for _, prefix := range unauthenticatedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AuthMiddleware runs the auth precedence chain: skip list,
// credential presence, key resolution (plain lookup, then secured-key
// validation), expiry, ACL, and index-pattern restriction.
func (a *App) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isUnauthenticatedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if a.NoAuth {
			next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), identity{
				Key:    keystore.ApiKey{ACL: append([]string(nil), keystore.DefaultACLs...)},
				Tenant: headerOrParam(r, "x-algolia-application-id", "x-algolia-application-id", "application-id"),
			})))
			return
		}

		appID := headerOrParam(r, "x-algolia-application-id", "x-algolia-application-id", "application-id")
		rawKey := headerOrParam(r, "x-algolia-api-key", "x-algolia-api-key", "api-key")
		if appID == "" || rawKey == "" {
			denyInvalidCredential(w)
			return
		}

		key, restrictions, ok := a.resolveKey(rawKey)
		if !ok {
			denyInvalidCredential(w)
			return
		}

		if key.Validity > 0 && nowMs() > key.CreatedAt+key.Validity*1000 {
			denyInvalidCredential(w)
			return
		}

		required := acl.RequiredACL(r.Method, r.URL.Path)
		if required != "" {
			if required == "admin" {
				if !(a.Keys.IsAdmin(rawKey) || isSelfKeyRead(r, rawKey)) {
					denyMethodNotAllowed(w)
					return
				}
			} else if !key.HasACL(required) {
				denyMethodNotAllowed(w)
				return
			}
		}

		if indexName := acl.ExtractIndexName(r.URL.Path); indexName != "" {
			if !acl.IndexPatternMatches(key.Indexes, indexName) {
				denyMethodNotAllowed(w)
				return
			}
			if restrictions != nil && len(restrictions.RestrictIndices) > 0 {
				if !acl.IndexPatternMatches(restrictions.RestrictIndices, indexName) {
					denyMethodNotAllowed(w)
					return
				}
			}
		}

		if a.RateLimit != nil && key.MaxQueriesPerIPPerHour > 0 {
			ip := clientIP(r)
			result, err := a.RateLimit.Allow(r.Context(), rawKey, ip, key.MaxQueriesPerIPPerHour)
			if err == nil && !result.Allowed {
				denyRateLimited(w)
				return
			}
		}

		ctx := contextWithIdentity(r.Context(), identity{
			Key:          key,
			RawKey:       rawKey,
			Tenant:       appID,
			Restrictions: restrictions,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveKey tries a plain KeyStore lookup first, then falls back to
// secured-key HMAC validation.
func (a *App) resolveKey(rawKey string) (keystore.ApiKey, *keystore.SecuredKeyRestrictions, bool) {
	if key, ok := a.Keys.Lookup(rawKey); ok {
		return key, nil, true
	}
	if key, restrictions, ok := a.Keys.ValidateSecuredKey(rawKey); ok {
		return key, &restrictions, true
	}
	return keystore.ApiKey{}, nil, false
}

// isSelfKeyRead allows a non-admin key to GET /1/keys/{k} only when k is
// the presented key itself (the self-read exception to the admin ACL).
func isSelfKeyRead(r *http.Request, rawKey string) bool {
	if r.Method != http.MethodGet {
		return false
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "1" || parts[1] != "keys" {
		return false
	}
	return parts[2] == rawKey
}

func headerOrParam(r *http.Request, headerName string, paramNames ...string) string {
	if v := r.Header.Get(headerName); v != "" {
		return v
	}
	for _, p := range paramNames {
		if v := r.URL.Query().Get(p); v != "" {
			return v
		}
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

func denyInvalidCredential(w http.ResponseWriter) {
	writeAuthError(w, "Invalid Application-ID or API key")
}

func denyMethodNotAllowed(w http.ResponseWriter) {
	writeAuthError(w, "Method not allowed with this API key")
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"message":"` + message + `","status":403}`))
}

func denyRateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"message":"Too many requests","status":429}`))
}
