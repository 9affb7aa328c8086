package router

import (
	"testing"

	"github.com/wayfinder/wayfinder/internal/codec"
)

func headersFor(authority, path string) *codec.Headers {
	h := codec.NewHeaders()
	h.Authority = authority
	h.Path = path
	return h
}

func noRandom() float64 { return 0 }

func TestExactDomainBeatsWildcard(t *testing.T) {
	c := &RouteConfig{VirtualHosts: []VirtualHost{
		{Name: "wild", Domains: []string{"*.example.com"}, Routes: []Route{{Path: "/", ClusterName: "wild-cluster"}}},
		{Name: "exact", Domains: []string{"api.example.com"}, Routes: []Route{{Path: "/", ClusterName: "exact-cluster"}}},
	}}
	route, vh, ok := c.Route(headersFor("api.example.com", "/x"), noRandom)
	if !ok {
		t.Fatal("expected a route match")
	}
	if vh.Name != "exact" || route.ClusterName != "exact-cluster" {
		t.Fatalf("expected exact virtual host to win, got %+v", vh)
	}
}

func TestSuffixWildcardBeatsPrefixWildcard(t *testing.T) {
	c := &RouteConfig{VirtualHosts: []VirtualHost{
		{Name: "prefix", Domains: []string{"api.*"}, Routes: []Route{{Path: "/", ClusterName: "prefix-cluster"}}},
		{Name: "suffix", Domains: []string{"*.example.com"}, Routes: []Route{{Path: "/", ClusterName: "suffix-cluster"}}},
	}}
	_, vh, ok := c.Route(headersFor("api.example.com", "/"), noRandom)
	if !ok || vh.Name != "suffix" {
		t.Fatalf("expected suffix wildcard to win over prefix wildcard, got %+v ok=%v", vh, ok)
	}
}

func TestBareWildcardIsLastResort(t *testing.T) {
	c := &RouteConfig{VirtualHosts: []VirtualHost{
		{Name: "catchall", Domains: []string{"*"}, Routes: []Route{{Path: "/", ClusterName: "default-cluster"}}},
	}}
	_, vh, ok := c.Route(headersFor("anything.invalid", "/"), noRandom)
	if !ok || vh.Name != "catchall" {
		t.Fatal("expected bare wildcard to match when nothing else does")
	}
}

func TestNoVirtualHostMatch(t *testing.T) {
	c := &RouteConfig{VirtualHosts: []VirtualHost{
		{Name: "only", Domains: []string{"example.com"}, Routes: []Route{{Path: "/", ClusterName: "c"}}},
	}}
	_, _, ok := c.Route(headersFor("other.com", "/"), noRandom)
	if ok {
		t.Fatal("expected no match for an unrelated authority")
	}
}

func TestFirstMatchingRouteWins(t *testing.T) {
	c := &RouteConfig{VirtualHosts: []VirtualHost{
		{Name: "vh", Domains: []string{"example.com"}, Routes: []Route{
			{PathMatch: PathPrefix, Path: "/api/", ClusterName: "api-cluster"},
			{PathMatch: PathPrefix, Path: "/", ClusterName: "default-cluster"},
		}},
	}}
	route, _, ok := c.Route(headersFor("example.com", "/api/v1"), noRandom)
	if !ok || route.ClusterName != "api-cluster" {
		t.Fatalf("expected the more specific prefix route to win, got %+v", route)
	}
	route2, _, ok := c.Route(headersFor("example.com", "/other"), noRandom)
	if !ok || route2.ClusterName != "default-cluster" {
		t.Fatalf("expected fallback route, got %+v", route2)
	}
}

func TestExactPathMatch(t *testing.T) {
	c := &RouteConfig{VirtualHosts: []VirtualHost{
		{Name: "vh", Domains: []string{"example.com"}, Routes: []Route{
			{PathMatch: PathExact, Path: "/health", ClusterName: "health-cluster"},
		}},
	}}
	if _, _, ok := c.Route(headersFor("example.com", "/health/x"), noRandom); ok {
		t.Fatal("expected exact match to reject a longer path")
	}
	route, _, ok := c.Route(headersFor("example.com", "/health"), noRandom)
	if !ok || route.ClusterName != "health-cluster" {
		t.Fatal("expected exact match to succeed on identical path")
	}
}

func TestIgnorePortInHostMatching(t *testing.T) {
	c := &RouteConfig{VirtualHosts: []VirtualHost{
		{Name: "vh", Domains: []string{"example.com"}, IgnorePortInHostMatching: true,
			Routes: []Route{{Path: "/", ClusterName: "c"}}},
	}}
	_, vh, ok := c.Route(headersFor("example.com:8080", "/"), noRandom)
	if !ok || vh.Name != "vh" {
		t.Fatal("expected port to be stripped before matching")
	}
}

func TestIgnorePathParametersInPathMatching(t *testing.T) {
	c := &RouteConfig{VirtualHosts: []VirtualHost{
		{Name: "vh", Domains: []string{"example.com"}, IgnorePathParametersInPathMatching: true,
			Routes: []Route{{PathMatch: PathExact, Path: "/widgets", ClusterName: "c"}}},
	}}
	route, _, ok := c.Route(headersFor("example.com", "/widgets;jsessionid=abc"), noRandom)
	if !ok || route.ClusterName != "c" {
		t.Fatal("expected path parameters to be stripped before matching")
	}
}

func TestConnectDefaultsPathToRoot(t *testing.T) {
	c := &RouteConfig{VirtualHosts: []VirtualHost{
		{Name: "vh", Domains: []string{"example.com"}, Routes: []Route{{Path: "/", ClusterName: "c"}}},
	}}
	h := codec.NewHeaders()
	h.Method = "CONNECT"
	h.Authority = "example.com"
	route, _, ok := c.Route(h, noRandom)
	if !ok || route.ClusterName != "c" {
		t.Fatal("expected CONNECT with empty path to default-match '/'")
	}
}
