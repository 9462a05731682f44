package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowHeaders = "Authorization, Content-Type, Accept, Last-Event-ID"
	corsAllowMethods = "GET, POST, OPTIONS"
	corsMaxAge       = "600"
)

// OriginPolicy decides which browser origins may embed the chat widget.
// Entries are exact origins ("https://acme.in"), subdomain wildcards
// ("https://*.acme.in") or "*".
type OriginPolicy struct {
	any       bool
	exact     map[string]struct{}
	wildcards []wildcardOrigin
}

type wildcardOrigin struct {
	scheme string
	suffix string // ".acme.in"
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{exact: map[string]struct{}{}}
	for _, raw := range origins {
		origin := strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
		switch {
		case origin == "":
		case origin == "*":
			p.any = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://")
			p.wildcards = append(p.wildcards, wildcardOrigin{scheme: scheme, suffix: strings.TrimPrefix(host, "*")})
		default:
			p.exact[origin] = struct{}{}
		}
	}
	return p
}

// Empty reports whether no origin is configured.
func (p *OriginPolicy) Empty() bool {
	return !p.any && len(p.exact) == 0 && len(p.wildcards) == 0
}

// Allows reports whether origin matches the policy.
func (p *OriginPolicy) Allows(origin string) bool {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	if len(p.wildcards) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	for _, w := range p.wildcards {
		if u.Scheme == w.scheme && strings.HasSuffix(u.Host, w.suffix) {
			return true
		}
	}
	return false
}

// CORS answers preflights and sets the response headers for allowed origins.
// Requests from other origins pass through without CORS headers, so the
// browser blocks them.
func CORS(policy *OriginPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			allowed := policy.Allows(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
