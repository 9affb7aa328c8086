package clustermanager

import "sync"

// InitPhase is one step of the cluster-manager-wide initialization
// sequence.
type InitPhase int

const (
	PhaseLoading InitPhase = iota
	PhaseWaitingForPrimaryInitializationToComplete
	PhaseWaitingToStartSecondaryInitialization
	PhaseWaitingToStartCdsInitialization
	PhaseCdsInitialized
	PhaseAllClustersInitialized
)

// InitBucket classifies which bucket a cluster's InitializationPhase
// places it in; this proxy only ever builds static clusters, which are
// always primary ("primary clusters" initialize immediately). The
// secondary bucket exists so the phase vocabulary matches Envoy's own
// even though no cluster discovery type in this proxy populates it
// today (EDS/CDS are out of scope).
type InitBucket int

const (
	BucketPrimary InitBucket = iota
	BucketSecondary
)

// InitHelper runs the cluster-manager init phase machine. All clusters
// known at startup are registered via AddCluster while the helper is still
// in PhaseLoading; StartInitialization then kicks off every primary
// cluster's initialize callback and, as each reports completion via
// onInit, advances the phase once its bucket empties.
type InitHelper struct {
	mu sync.Mutex

	phase InitPhase

	primary   map[string]func(onInit func())
	secondary map[string]func(onInit func())

	primaryPending   map[string]bool
	secondaryPending map[string]bool

	onPrimaryInitialized     func()
	onAllClustersInitialized func()
}

// NewInitHelper builds an InitHelper in the Loading phase.
func NewInitHelper() *InitHelper {
	return &InitHelper{
		phase:            PhaseLoading,
		primary:          make(map[string]func(onInit func())),
		secondary:        make(map[string]func(onInit func())),
		primaryPending:   make(map[string]bool),
		secondaryPending: make(map[string]bool),
	}
}

// Phase returns the current phase.
func (h *InitHelper) Phase() InitPhase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase
}

// OnPrimaryClustersInitialized registers the callback fired once the
// primary bucket empties.
func (h *InitHelper) OnPrimaryClustersInitialized(fn func()) {
	h.mu.Lock()
	h.onPrimaryInitialized = fn
	h.mu.Unlock()
}

// OnAllClustersInitialized registers the callback fired once the
// secondary bucket empties (AllClustersInitialized).
func (h *InitHelper) OnAllClustersInitialized(fn func()) {
	h.mu.Lock()
	h.onAllClustersInitialized = fn
	h.mu.Unlock()
}

// AddCluster registers name in bucket, to be kicked off by
// StartInitialization. Must be called only while still in PhaseLoading —
// a cluster added after initialization has started is a dynamic
// add_or_update, outside InitHelper's startup sequencing.
func (h *InitHelper) AddCluster(name string, bucket InitBucket, initializeFn func(onInit func())) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch bucket {
	case BucketPrimary:
		h.primary[name] = initializeFn
		h.primaryPending[name] = true
	default:
		h.secondary[name] = initializeFn
		h.secondaryPending[name] = true
	}
}

// StartInitialization ends the loading phase and begins calling each
// registered primary cluster's initialize function.
func (h *InitHelper) StartInitialization() {
	h.mu.Lock()
	h.phase = PhaseWaitingForPrimaryInitializationToComplete
	primary := make(map[string]func(onInit func()), len(h.primary))
	for k, v := range h.primary {
		primary[k] = v
	}
	noPrimary := len(h.primaryPending) == 0
	h.mu.Unlock()

	if noPrimary {
		h.primaryBucketEmptied()
		return
	}
	for name, fn := range primary {
		n := name
		fn(func() { h.markInitialized(n, BucketPrimary) })
	}
}

func (h *InitHelper) markInitialized(name string, bucket InitBucket) {
	h.mu.Lock()
	switch bucket {
	case BucketPrimary:
		delete(h.primaryPending, name)
	default:
		delete(h.secondaryPending, name)
	}
	primaryDone := len(h.primaryPending) == 0
	secondaryDone := len(h.secondaryPending) == 0
	phase := h.phase
	h.mu.Unlock()

	if bucket == BucketPrimary && primaryDone && phase == PhaseWaitingForPrimaryInitializationToComplete {
		h.primaryBucketEmptied()
		return
	}
	if bucket == BucketSecondary && secondaryDone && phase == PhaseWaitingToStartCdsInitialization {
		h.secondaryBucketEmptied()
	}
}

func (h *InitHelper) primaryBucketEmptied() {
	h.mu.Lock()
	h.phase = PhaseWaitingToStartSecondaryInitialization
	firePrimary := h.onPrimaryInitialized
	secondary := make(map[string]func(onInit func()), len(h.secondary))
	for k, v := range h.secondary {
		secondary[k] = v
	}
	noSecondary := len(h.secondaryPending) == 0
	h.phase = PhaseWaitingToStartCdsInitialization
	h.mu.Unlock()

	if firePrimary != nil {
		firePrimary()
	}
	if noSecondary {
		h.secondaryBucketEmptied()
		return
	}
	for name, fn := range secondary {
		n := name
		fn(func() { h.markInitialized(n, BucketSecondary) })
	}
}

func (h *InitHelper) secondaryBucketEmptied() {
	h.mu.Lock()
	h.phase = PhaseCdsInitialized
	h.phase = PhaseAllClustersInitialized
	fireAll := h.onAllClustersInitialized
	h.mu.Unlock()

	if fireAll != nil {
		fireAll()
	}
}
