package server

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/Tyrowin/collabocanvas/internal/log"
)

const wildcardOrigin = "*"

// OriginPolicy decides which browser origins may open a WebSocket.
type OriginPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
}

// NewOriginPolicy builds a policy from an allow-list. "*" allows any
// well-formed origin.
func NewOriginPolicy(origins []string) *OriginPolicy {
	list, all := normalizeOrigins(origins)
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(list)), allowAll: all}
	for _, o := range list {
		p.allowed[o] = struct{}{}
	}
	return p
}

// normalizeOrigins canonicalizes every entry, dropping blanks and logging
// the ones that do not parse. The second result reports a wildcard.
func normalizeOrigins(origins []string) (list []string, wildcard bool) {
	list = make([]string, 0, len(origins))
	for _, raw := range origins {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
		case entry == wildcardOrigin:
			wildcard = true
		default:
			if o, ok := canonicalOrigin(entry); ok {
				list = append(list, o)
			} else {
				log.Warn("ignoring invalid origin in configuration", "origin", raw)
			}
		}
	}
	return list, wildcard
}

// canonicalOrigin reduces an origin to lower-case scheme://host[:port],
// dropping the port when it is the scheme's default.
func canonicalOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if _, port, err := net.SplitHostPort(host); err == nil {
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			host = strings.TrimSuffix(host, ":"+port)
		}
	}
	return scheme + "://" + host, true
}

// Allowed reports whether the request's Origin header passes the policy.
// Requests without an Origin are refused.
func (p *OriginPolicy) Allowed(r *http.Request) bool {
	o, ok := canonicalOrigin(r.Header.Get("Origin"))
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok = p.allowed[o]
	return ok
}

// CheckOrigin is suitable for websocket.Upgrader.CheckOrigin.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	ok := p.Allowed(r)
	if !ok {
		log.Warn("blocked websocket connection from disallowed origin",
			"origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
	}
	return ok
}
