// Package rewrite implements the request-rewrite filter: it rewrites the
// Host/Origin headers and, via regex substitution, every other header
// value and the request body, translating the original authority the
// client addressed into the chosen upstream.
package rewrite

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/wayfinder/wayfinder/internal/buffer"
	"github.com/wayfinder/wayfinder/internal/codec"
	"github.com/wayfinder/wayfinder/internal/filtermanager"
	"github.com/wayfinder/wayfinder/internal/filters/state"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

// Filter rewrites outbound request headers and body to address the chosen
// upstream instead of whatever authority the client originally sent.
type Filter struct {
	cb filtermanager.DecoderFilterCallbacks

	upstreamHost *upstream.Host
	tls          bool

	active      bool
	pattern     *regexp.Regexp
	replacement string
	hostValue   string
	originValue string

	body *buffer.Buffer
}

// New returns a rewrite Filter that falls back to upstreamHost (with tls
// selecting http/https) when no rewrite_urls alias matches the request's
// original host.
func New(upstreamHost *upstream.Host, tls bool) *Filter {
	return &Filter{upstreamHost: upstreamHost, tls: tls, body: buffer.New()}
}

func (f *Filter) SetDecoderFilterCallbacks(cb filtermanager.DecoderFilterCallbacks) {
	f.cb = cb
}

func (f *Filter) DecodeHeaders(headers *codec.Headers, endStream bool) filtermanager.IterationState {
	fs := f.cb.StreamInfo().FilterState()
	if v, ok := fs.GetData(state.KeyPassthrough); ok && v == true {
		return filtermanager.Continue
	}

	var originalURI string
	if v, ok := fs.GetData(state.KeyOriginalURI); ok {
		originalURI, _ = v.(string)
	}
	if originalURI == "" {
		return filtermanager.Continue
	}

	var rewriteURLs map[string]string
	if v, ok := fs.GetData(state.KeyRewriteURLs); ok {
		rewriteURLs, _ = v.(map[string]string)
	}

	f.buildRegex(originalURI, rewriteURLs)
	if !f.active {
		return filtermanager.Continue
	}

	f.rewriteHeaders(headers)
	return filtermanager.Continue
}

func (f *Filter) DecodeData(data []byte, endStream bool) filtermanager.IterationState {
	if !f.active {
		return filtermanager.Continue
	}
	f.body.Append(data)
	if !endStream {
		return filtermanager.StopIteration
	}
	rewritten := f.pattern.ReplaceAllLiteral(f.body.Bytes(), []byte(f.replacement))
	f.body.Reset()
	f.cb.ReplaceDecodedData(rewritten)
	return filtermanager.Continue
}

func (f *Filter) DecodeTrailers(trailers *codec.Headers) filtermanager.IterationState {
	return filtermanager.Continue
}

// buildRegex derives the {scheme}://{host}[:port]/ pattern from the
// original URI and picks a replacement from rewriteURLs (matched by host)
// or the fallback upstream. If pattern and replacement are the same, the
// filter has nothing to do and deactivates.
func (f *Filter) buildRegex(originalURI string, rewriteURLs map[string]string) {
	u, err := url.Parse(originalURI)
	if err != nil || u.Host == "" {
		f.active = false
		return
	}
	pattern := u.Scheme + "://" + u.Host + "/"
	replacement := f.selectReplacement(u.Hostname(), rewriteURLs)

	if strings.EqualFold(pattern, replacement) {
		f.active = false
		return
	}

	f.pattern = regexp.MustCompile(regexp.QuoteMeta(pattern))
	f.replacement = replacement
	f.hostValue = hostValue(replacement)
	f.originValue = originValue(replacement)
	f.active = true
}

func (f *Filter) selectReplacement(host string, rewriteURLs map[string]string) string {
	for aliasHost, target := range rewriteURLs {
		if !strings.EqualFold(aliasHost, host) {
			continue
		}
		if tu, err := url.Parse(target); err == nil && tu.Host != "" {
			return tu.Scheme + "://" + tu.Host + "/"
		}
	}

	scheme := "http"
	if f.tls {
		scheme = "https"
	}
	addr := ""
	if f.upstreamHost != nil {
		addr = f.upstreamHost.Address().String()
	}
	return scheme + "://" + addr + "/"
}

func hostValue(replacement string) string {
	u, err := url.Parse(replacement)
	if err != nil {
		return ""
	}
	return u.Host
}

func originValue(replacement string) string {
	u, err := url.Parse(replacement)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// rewriteHeaders replaces Host/Origin with values extracted from the
// replacement URL, and every other header value via pattern substitution.
func (f *Filter) rewriteHeaders(headers *codec.Headers) {
	for key, values := range headers.Fields {
		if key == "Host" || key == "Origin" {
			continue
		}
		for i, v := range values {
			values[i] = f.pattern.ReplaceAllLiteralString(v, f.replacement)
		}
	}
	if headers.Get("Host") != "" {
		headers.Set("Host", f.hostValue)
	}
	if headers.Get("Origin") != "" {
		headers.Set("Origin", f.originValue)
	}
	if headers.Authority != "" {
		headers.Authority = f.hostValue
	}
}
