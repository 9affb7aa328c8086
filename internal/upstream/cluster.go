package upstream

// InitState is a cluster's initialization state machine: a cluster
// starts Uninitialized, moves through Initializing, and (since this
// proxy is static-config-only) settles immediately into Ready without
// ever visiting Primary/Secondary — those exist for parity with cluster
// health vocabulary elsewhere and for dynamic-discovery clusters, which
// are out of scope here.
type InitState int

const (
	InitUninitialized InitState = iota
	InitInitializing
	InitPrimary
	InitSecondary
	InitReady
)

// Cluster bundles an immutable ClusterInfo with its mutable PrioritySet
// and initialization state.
type Cluster struct {
	Info        *ClusterInfo
	Priorities  *MainPrioritySet
	state       InitState
}

// NewCluster creates a Cluster with an empty PrioritySet.
func NewCluster(info *ClusterInfo) *Cluster {
	return &Cluster{
		Info:       info,
		Priorities: NewMainPrioritySet(),
		state:      InitUninitialized,
	}
}

// Initialize loads the given hosts (already partitioned by priority) and
// transitions straight to Ready, invoking onInit once membership is
// installed. Static clusters never have a meaningful "warming" period.
func (c *Cluster) Initialize(byPriority map[Priority][]*Host, onInit func()) {
	c.state = InitInitializing
	for p, hosts := range byPriority {
		c.Priorities.UpdateHosts(p, hosts)
	}
	c.state = InitReady
	if onInit != nil {
		onInit()
	}
}

// State returns the cluster's current initialization state.
func (c *Cluster) State() InitState { return c.state }
