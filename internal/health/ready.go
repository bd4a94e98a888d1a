package health

import "sync/atomic"

// Readiness latches the two preconditions main.go cares about before
// calling the gateway up: the Redis session store and the device TCP
// listener.
type Readiness struct {
	storeReady atomic.Bool
	tcpReady   atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetStoreReady(v bool) { r.storeReady.Store(v) }
func (r *Readiness) SetTCPReady(v bool)   { r.tcpReady.Store(v) }

// Ready reports overall readiness: both latches must be set.
func (r *Readiness) Ready() bool {
	return r.storeReady.Load() && r.tcpReady.Load()
}
