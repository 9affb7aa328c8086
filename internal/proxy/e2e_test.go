package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/wayfinder/wayfinder/internal/addr"
	"github.com/wayfinder/wayfinder/internal/clustermanager"
	"github.com/wayfinder/wayfinder/internal/config"
	"github.com/wayfinder/wayfinder/internal/router"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

// testHarness wires a real Server up to a free TCP port and a set of
// httptest upstreams, without going through internal/configwatch's YAML
// layer — the routing table is built directly so each test can shape it
// precisely.
type testHarness struct {
	t      *testing.T
	cm     *clustermanager.Manager
	srv    *Server
	addr   string
	client *http.Client
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		ListenAddr:            "127.0.0.1:0",
		DefaultConnectTimeout: 2 * time.Second,
		DefaultBufferLimit:    1 << 20,
		DrainTimeout:          2 * time.Second,
	}
	cm := clustermanager.New(log)
	srv := New(cfg, cm, nil, log)

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg.ListenAddr = lis.Addr().String()
	lis.Close()

	h := &testHarness{t: t, cm: cm, srv: srv, addr: cfg.ListenAddr, client: &http.Client{Timeout: 5 * time.Second}}
	return h
}

func (h *testHarness) start() {
	ctx := h.t.Context()
	go func() {
		if err := h.srv.ListenAndServe(ctx); err != nil {
			h.t.Logf("server stopped: %v", err)
		}
	}()
	waitForListener(h.t, h.addr)
}

func waitForListener(t *testing.T, address string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", address)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("proxy never started listening on %s", address)
}

// addCluster registers a cluster backed by the given httptest.Server URLs,
// one host per URL, at the default priority.
func (h *testHarness) addCluster(name string, limits upstream.ResourceLimits, urls ...string) *upstream.ClusterInfo {
	info := upstream.NewClusterInfo(upstream.ClusterInfoConfig{
		Name:           name,
		LBPolicy:       upstream.LBRoundRobin,
		ConnectTimeout: time.Second,
		DefaultLimits:  limits,
	})
	var hosts []*upstream.Host
	for _, u := range urls {
		hp := mustHostPort(h.t, u)
		a, err := addr.FromHostPort(hp)
		if err != nil {
			h.t.Fatalf("addr: %v", err)
		}
		hosts = append(hosts, upstream.NewHost(name, info, upstream.HostConfig{Address: a, Priority: upstream.PriorityDefault}))
	}
	h.cm.AddOrUpdateCluster(info, map[upstream.Priority][]*upstream.Host{upstream.PriorityDefault: hosts})
	return info
}

func mustHostPort(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parsing %q: %v", rawURL, err)
	}
	return u.Host
}

func (h *testHarness) setRoutes(cfg *router.RouteConfig) {
	h.srv.SetRouteConfig(cfg)
}

func singleRouteConfig(cluster string) *router.RouteConfig {
	return &router.RouteConfig{
		VirtualHosts: []router.VirtualHost{
			{
				Name:    "default",
				Domains: []string{"*"},
				Routes: []router.Route{
					{PathMatch: router.PathPrefix, Path: "/", ClusterName: cluster},
				},
			},
		},
	}
}

func get(t *testing.T, client *http.Client, addr, path string) *http.Response {
	t.Helper()
	resp, err := client.Get("http://" + addr + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// Seed scenario 1: single upstream, GET /a returns the upstream's body
// unchanged.
func TestEndToEnd_SingleUpstream(t *testing.T) {
	h := newHarness(t)
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "hello from %s", r.URL.Path)
	}))
	defer upstreamSrv.Close()

	h.addCluster("svc", upstream.ResourceLimits{MaxConnectionsPerHost: 10, MaxPendingRequests: 10}, upstreamSrv.URL)
	h.setRoutes(singleRouteConfig("svc"))
	h.start()

	resp := get(t, h.client, h.addr, "/a")
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != "hello from /a" {
		t.Fatalf("body = %q", body)
	}
}

// Seed scenario 2: two upstreams behind round_robin alternate evenly.
func TestEndToEnd_RoundRobinAlternates(t *testing.T) {
	h := newHarness(t)
	var a, b int
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { a++; w.Write([]byte("a")) }))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { b++; w.Write([]byte("b")) }))
	defer srvB.Close()

	h.addCluster("svc", upstream.ResourceLimits{MaxConnectionsPerHost: 10, MaxPendingRequests: 10}, srvA.URL, srvB.URL)
	h.setRoutes(singleRouteConfig("svc"))
	h.start()

	for i := 0; i < 10; i++ {
		resp := get(t, h.client, h.addr, "/")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if a != 5 || b != 5 {
		t.Fatalf("a=%d b=%d, want 5/5", a, b)
	}
}

// Seed scenario 3: a saturated pool (max_connections_per_host=1,
// max_pending=1) fails a third concurrent request with 503 rather than
// queuing it indefinitely.
func TestEndToEnd_PoolSaturationOverflows(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	started := make(chan struct{}, 3)
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.Write([]byte("done"))
	}))
	defer upstreamSrv.Close()

	h.addCluster("svc", upstream.ResourceLimits{MaxConnectionsPerHost: 1, MaxPendingRequests: 1}, upstreamSrv.URL)
	h.setRoutes(singleRouteConfig("svc"))
	h.start()

	results := make(chan int, 3)
	for i := 0; i < 3; i++ {
		go func() {
			resp, err := h.client.Get("http://" + h.addr + "/")
			if err != nil {
				results <- -1
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			results <- resp.StatusCode
		}()
	}

	<-started // request #1 is now blocking the upstream handler
	time.Sleep(50 * time.Millisecond)
	close(release)

	counts := map[int]int{}
	for i := 0; i < 3; i++ {
		counts[<-results]++
	}
	if counts[http.StatusOK] < 1 {
		t.Fatalf("expected at least one 200, got %v", counts)
	}
	if counts[http.StatusServiceUnavailable] < 1 {
		t.Fatalf("expected at least one 503 overflow, got %v", counts)
	}
}

// Seed scenario 6: a request to a domain with no matching virtual host
// gets a synthesized 404 without ever touching an upstream pool.
func TestEndToEnd_NoRouteMatch(t *testing.T) {
	h := newHarness(t)
	h.setRoutes(&router.RouteConfig{
		VirtualHosts: []router.VirtualHost{
			{Name: "only", Domains: []string{"configured.example"}, Routes: []router.Route{
				{PathMatch: router.PathPrefix, Path: "/", ClusterName: "svc"},
			}},
		},
	})
	h.start()

	resp := get(t, h.client, h.addr, "/")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
