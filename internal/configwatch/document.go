// Package configwatch loads the static cluster/route configuration document
// and watches it for changes on disk, fanning updates out to the cluster
// manager and router.
package configwatch

// Document is the top-level shape of the static config file: a list of
// clusters and the routing table that references them by name.
type Document struct {
	Clusters []ClusterConfig `yaml:"clusters"`
	Routes   RouteConfigDoc  `yaml:"route_config"`
}

// ClusterConfig mirrors cluster schema field-for-field.
type ClusterConfig struct {
	Name                     string           `yaml:"name"`
	Type                     string           `yaml:"type"`
	ConnectTimeoutMs         int              `yaml:"connect_timeout_ms"`
	PerConnectionBufferLimit int              `yaml:"per_connection_buffer_limit"`
	LBPolicy                 string           `yaml:"lb_policy"`
	DNSLookupFamily          string           `yaml:"dns_lookup_family"`
	Endpoints                []EndpointConfig `yaml:"endpoints"`

	MaxConnections              int `yaml:"max_connections"`
	MaxPendingRequests          int `yaml:"max_pending_requests"`
	MaxRequests                 int `yaml:"max_requests"`
	MaxRetries                  int `yaml:"max_retries"`
	MaxConnectionsPerHost       int `yaml:"max_connections_per_host"`
	MaxConnectAttemptsPerSecond int `yaml:"max_connect_attempts_per_second"`
}

// EndpointConfig is one priority tier's worth of hosts.
type EndpointConfig struct {
	LocalityPriority int         `yaml:"locality_priority"`
	Hosts            []HostEntry `yaml:"hosts"`
}

// HostEntry is a single upstream endpoint within an EndpointConfig.
type HostEntry struct {
	Address  string            `yaml:"address"`
	Port     int               `yaml:"port"`
	Weight   int               `yaml:"weight"`
	Metadata map[string]string `yaml:"metadata"`
}

// RouteConfigDoc is the YAML shape of internal/router.RouteConfig.
type RouteConfigDoc struct {
	VirtualHosts []VirtualHostConfig `yaml:"virtual_hosts"`
}

// VirtualHostConfig is the YAML shape of internal/router.VirtualHost.
type VirtualHostConfig struct {
	Name                                string            `yaml:"name"`
	Domains                             []string          `yaml:"domains"`
	IgnorePortInHostMatching            bool              `yaml:"ignore_port_in_host_matching"`
	IgnorePathParametersInPathMatching  bool              `yaml:"ignore_path_parameters_in_path_matching"`
	RewriteURLs                         map[string]string `yaml:"rewrite_urls"`
	Routes                              []RouteConfigRule `yaml:"routes"`
}

// RouteConfigRule is the YAML shape of internal/router.Route.
type RouteConfigRule struct {
	PathMatch     string `yaml:"path_match"`
	Path          string `yaml:"path"`
	Cluster       string `yaml:"cluster"`
	RewriteHost   string `yaml:"rewrite_host"`
	PrefixRewrite string `yaml:"prefix_rewrite"`
	Passthrough   bool   `yaml:"passthrough"`
}
