// Package state implements the decoder chain's route-resolution filter:
// it runs first, resolves the route for the request, and publishes
// well-known FilterState entries later filters read instead of
// re-resolving the route themselves.
package state

import (
	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/filtermanager"
	"github.com/wayfinder/wayfinder/internal/filterstate"
	"github.com/wayfinder/wayfinder/internal/router"
)

// FilterState keys this filter publishes. Exported so filters in other
// packages (request-rewrite, access logging) can read them without an
// import of this package's internals.
const (
	KeyRule        = "state.rule"
	KeyRewriteURLs = "state.rewrite_urls"
	KeyOriginalURI = "state.original_uri"
	KeyPassthrough = "state.passthrough"
)

// Filter resolves the route for the request and records it on the stream's
// FilterState before any other decoder filter runs.
type Filter struct {
	cb filtermanager.DecoderFilterCallbacks
}

// New returns an unattached state Filter.
func New() *Filter { return &Filter{} }

func (f *Filter) SetDecoderFilterCallbacks(cb filtermanager.DecoderFilterCallbacks) {
	f.cb = cb
}

func (f *Filter) DecodeHeaders(headers *codec.Headers, endStream bool) filtermanager.IterationState {
	fs := f.cb.StreamInfo().FilterState()
	route := f.cb.Route()
	vhost := f.cb.VirtualHost()

	if route == nil {
		// No matching route: leave FilterState empty and let the terminal
		// router filter produce the 404/no-route response.
		return filtermanager.Continue
	}

	if route.Passthrough {
		fs.SetData(KeyPassthrough, true, filterstate.ReadOnly, filterstate.Request)
		return filtermanager.Continue
	}

	fs.SetData(KeyRule, route, filterstate.ReadOnly, filterstate.Request)

	var rewriteURLs map[string]string
	if vhost != nil {
		rewriteURLs = vhost.RewriteURLs
	}
	fs.SetData(KeyRewriteURLs, rewriteURLs, filterstate.ReadOnly, filterstate.Request)

	fs.SetData(KeyOriginalURI, buildOriginalURI(headers), filterstate.ReadOnly, filterstate.Request)

	return filtermanager.Continue
}

func (f *Filter) DecodeData(data []byte, endStream bool) filtermanager.IterationState {
	return filtermanager.Continue
}

func (f *Filter) DecodeTrailers(trailers *codec.Headers) filtermanager.IterationState {
	return filtermanager.Continue
}

// buildOriginalURI reconstructs the absolute URI the client requested,
// for later filters (request-rewrite) to build their substitution
// pattern from.
func buildOriginalURI(headers *codec.Headers) string {
	scheme := headers.Scheme
	if scheme == "" {
		scheme = "http"
	}
	path := headers.Path
	if path == "" {
		path = "/"
	}
	return scheme + "://" + headers.Authority + path
}

// RouteOrNil is a small helper for filters downstream of this one that want
// a typed read of the rule FilterState entry without an assertion at every
// call site.
func RouteOrNil(fs *filterstate.FilterState) *router.Route {
	v, ok := fs.GetData(KeyRule)
	if !ok {
		return nil
	}
	route, _ := v.(*router.Route)
	return route
}
