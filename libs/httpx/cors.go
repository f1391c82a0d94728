package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures cross-origin access for browser consoles. An origin
// entry may be exact ("https://admin.example.com"), a subdomain pattern
// ("https://*.example.com") or "*".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type originRule struct {
	any    bool
	exact  string
	scheme string
	suffix string
}

func (o originRule) match(origin string) bool {
	switch {
	case o.any:
		return true
	case o.exact != "":
		return strings.EqualFold(o.exact, origin)
	}
	origin = strings.ToLower(origin)
	host, ok := strings.CutPrefix(origin, o.scheme)
	return ok && strings.HasSuffix(host, o.suffix) && len(host) > len(o.suffix)
}

func parseOriginRule(raw string) originRule {
	if raw == "*" {
		return originRule{any: true}
	}
	scheme, host, ok := strings.Cut(strings.ToLower(raw), "://")
	if ok && strings.HasPrefix(host, "*.") {
		return originRule{scheme: scheme + "://", suffix: host[1:]}
	}
	return originRule{exact: raw}
}

// WithCORS answers preflights and decorates responses for allowed origins.
// Preflights from other origins get 403; with no origins configured the
// middleware does nothing.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := trimAll(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rules := make([]originRule, 0, len(origins))
	wildcard := false
	for _, o := range origins {
		r := parseOriginRule(o)
		wildcard = wildcard || r.any
		rules = append(rules, r)
	}
	methods := strings.Join(trimAll(cfg.AllowedMethods), ", ")
	headers := strings.Join(trimAll(cfg.AllowedHeaders), ", ")
	maxAge := ""
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		maxAge = strconv.Itoa(secs)
	}

	allowed := func(origin string) bool {
		for _, r := range rules {
			if r.match(origin) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			if !allowed(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			// Credentialed requests may not use a literal "*".
			if wildcard && !cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if maxAge != "" {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
