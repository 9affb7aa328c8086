package state

import (
	"testing"

	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/filtermanager"
	"github.com/wayfinder/wayfinder/internal/router"
)

func buildManager(t *testing.T, cfg *router.RouteConfig) *filtermanager.Manager {
	t.Helper()
	m := filtermanager.New(nil, nil)
	m.SetRouteConfig(cfg, func() float64 { return 0 })
	return m
}

func TestDecodeHeadersPublishesRuleAndOriginalURI(t *testing.T) {
	cfg := &router.RouteConfig{
		VirtualHosts: []router.VirtualHost{
			{
				Name:        "vh",
				Domains:     []string{"example.com"},
				RewriteURLs: map[string]string{"alias.example.com": "https://upstream.example.net"},
				Routes: []router.Route{
					{PathMatch: router.PathPrefix, Path: "/", ClusterName: "backend"},
				},
			},
		},
	}
	m := buildManager(t, cfg)
	m.AddDecoderFilter(New())

	headers := &codec.Headers{Scheme: "https", Authority: "example.com", Path: "/widgets"}
	m.DecodeHeaders(headers, true)

	fs := m.StreamInfo().FilterState()
	rule, ok := fs.GetData(KeyRule)
	if !ok {
		t.Fatal("expected rule to be published")
	}
	route, ok := rule.(*router.Route)
	if !ok || route.ClusterName != "backend" {
		t.Fatalf("unexpected rule value: %#v", rule)
	}

	uri, ok := fs.GetData(KeyOriginalURI)
	if !ok || uri != "https://example.com/widgets" {
		t.Fatalf("unexpected original_uri: %v", uri)
	}

	rewriteURLs, ok := fs.GetData(KeyRewriteURLs)
	if !ok {
		t.Fatal("expected rewrite_urls to be published")
	}
	m2, ok := rewriteURLs.(map[string]string)
	if !ok || m2["alias.example.com"] != "https://upstream.example.net" {
		t.Fatalf("unexpected rewrite_urls value: %#v", rewriteURLs)
	}

	if fs.HasData(KeyPassthrough) {
		t.Fatal("passthrough should not be set for a non-passthrough route")
	}
}

func TestDecodeHeadersPassthroughSkipsRuleEntries(t *testing.T) {
	cfg := &router.RouteConfig{
		VirtualHosts: []router.VirtualHost{
			{
				Name:    "vh",
				Domains: []string{"example.com"},
				Routes: []router.Route{
					{PathMatch: router.PathPrefix, Path: "/", ClusterName: "backend", Passthrough: true},
				},
			},
		},
	}
	m := buildManager(t, cfg)
	m.AddDecoderFilter(New())

	headers := &codec.Headers{Scheme: "http", Authority: "example.com", Path: "/"}
	m.DecodeHeaders(headers, true)

	fs := m.StreamInfo().FilterState()
	passthrough, ok := fs.GetData(KeyPassthrough)
	if !ok || passthrough != true {
		t.Fatal("expected passthrough to be published as true")
	}
	if fs.HasData(KeyRule) {
		t.Fatal("passthrough route should not publish rule/rewrite_urls/original_uri")
	}
}

func TestDecodeHeadersNoRouteLeavesFilterStateEmpty(t *testing.T) {
	cfg := &router.RouteConfig{}
	m := buildManager(t, cfg)
	m.AddDecoderFilter(New())

	headers := &codec.Headers{Scheme: "http", Authority: "unknown.example.com", Path: "/"}
	m.DecodeHeaders(headers, true)

	fs := m.StreamInfo().FilterState()
	if fs.HasData(KeyRule) || fs.HasData(KeyPassthrough) {
		t.Fatal("expected no FilterState entries when no route matched")
	}
}
