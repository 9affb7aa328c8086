// Package router implements the domain/path matching algorithm: a
// RouteConfig holding ordered VirtualHosts, each holding ordered Routes,
// matched against a request's authority and path.
package router

import (
	"strings"

	"github.com/wayfinder/wayfinder/internal/codec"
)

// PathMatchKind selects how Route.Path is compared against the request
// path. Prefix and exact cover this proxy's actual scope; regex matching
// is out of scope.
type PathMatchKind int

const (
	PathPrefix PathMatchKind = iota
	PathExact
)

// Route is one matchable rule within a VirtualHost.
type Route struct {
	PathMatch PathMatchKind
	Path      string

	ClusterName string

	// RewriteHost carries the route's rewrite_host setting. No filter in
	// this proxy reads it, so it does not change the forwarded Host header.
	RewriteHost string
	// PrefixRewrite carries the route's prefix_rewrite setting. No filter
	// in this proxy reads it, so it does not change the forwarded path.
	PrefixRewrite string

	// Passthrough skips the request-rewrite filter's body/header rewriting
	// for this route (rule_cfg.passthrough).
	Passthrough bool
}

func (r *Route) matches(path string) bool {
	switch r.PathMatch {
	case PathExact:
		return path == r.Path
	default:
		return strings.HasPrefix(path, r.Path)
	}
}

// VirtualHost groups Routes under a domain matcher.
type VirtualHost struct {
	Name    string
	Domains []string
	Routes  []Route

	IgnorePortInHostMatching           bool
	IgnorePathParametersInPathMatching bool

	// RewriteURLs maps an alias host to the upstream URL the request-rewrite
	// filter should substitute for it, keyed by the host the client sent.
	RewriteURLs map[string]string
}

// RouteConfig is the full routing table: an ordered list of VirtualHosts.
type RouteConfig struct {
	VirtualHosts []VirtualHost
}

// New builds an empty RouteConfig.
func New() *RouteConfig {
	return &RouteConfig{}
}

// Route resolves a request's headers against this config's virtual
// hosts and routes, returning the matched route (if any).
// random is accepted for interface parity with a weighted-selection signature
// (weighted-cluster selection within a route would consume it); this
// proxy's routes are single-cluster, so it goes unused today.
func (c *RouteConfig) Route(headers *codec.Headers, random func() float64) (*Route, *VirtualHost, bool) {
	authority := headers.Authority
	if authority == "" {
		authority = headers.Get("Host")
	}
	path := headers.Path
	if path == "" {
		path = "/"
	}

	vh := c.findVirtualHost(authority)
	if vh == nil {
		return nil, nil, false
	}

	matchPath := path
	if vh.IgnorePathParametersInPathMatching {
		if i := strings.IndexByte(matchPath, ';'); i >= 0 {
			matchPath = matchPath[:i]
		}
	}

	for i := range vh.Routes {
		if vh.Routes[i].matches(matchPath) {
			return &vh.Routes[i], vh, true
		}
	}
	return nil, vh, false
}

// findVirtualHost applies the longest-match domain precedence: exact >
// suffix wildcard (*.foo.com) > prefix wildcard (foo.*) > bare wildcard
// (*).
func (c *RouteConfig) findVirtualHost(authority string) *VirtualHost {
	var best *VirtualHost
	bestRank := -1
	bestLen := -1

	for i := range c.VirtualHosts {
		vh := &c.VirtualHosts[i]
		host := authority
		if vh.IgnorePortInHostMatching {
			host = stripPort(host)
		}
		for _, domain := range vh.Domains {
			rank, length, ok := domainMatch(domain, host)
			if !ok {
				continue
			}
			if rank > bestRank || (rank == bestRank && length > bestLen) {
				best = vh
				bestRank = rank
				bestLen = length
			}
		}
	}
	return best
}

// domainMatch reports whether domain matches host, and a (rank, length)
// pair used to break ties per the precedence order: higher rank wins;
// among equal ranks, the longer (more specific) domain wins.
func domainMatch(domain, host string) (rank, length int, ok bool) {
	switch {
	case domain == "*":
		return 0, 0, true
	case strings.HasPrefix(domain, "*."):
		suffix := domain[1:] // keep the leading dot: ".foo.com"
		label := host[:max(0, len(host)-len(suffix))]
		if strings.HasSuffix(host, suffix) && label != "" {
			return 2, len(domain), true
		}
		return 0, 0, false
	case strings.HasSuffix(domain, ".*"):
		prefix := domain[:len(domain)-1] // keep trailing dot: "foo."
		if strings.HasPrefix(host, prefix) && len(host) > len(prefix) {
			return 1, len(domain), true
		}
		return 0, 0, false
	default:
		if domain == host {
			return 3, len(domain), true
		}
		return 0, 0, false
	}
}

func stripPort(hostport string) string {
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 && !strings.Contains(hostport[i:], "]") {
		return hostport[:i]
	}
	return hostport
}
