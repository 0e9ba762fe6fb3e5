// Package registry holds the live mapping from PID-namespace inode to
// workload identity that every kernel event is attributed against.
package registry

import (
	"sync"

	"github.com/cuemby/sentryd/pkg/metrics"
	"github.com/cuemby/sentryd/pkg/types"
)

// Registry is a pidns_inum -> WorkloadRecord map with one writer (the
// workload watcher) and many readers (the flow classifier, the syscall
// aggregator). Reads copy the record out and release the lock immediately,
// so readers never hold the lock across collector I/O.
type Registry struct {
	mu      sync.RWMutex
	records map[uint64]types.WorkloadRecord
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{records: make(map[uint64]types.WorkloadRecord)}
}

// Insert is idempotent: inserting the same pidns_inum twice just overwrites
// the prior record, matching the "re-applying the same watch event is a
// no-op" round-trip property.
func (r *Registry) Insert(rec types.WorkloadRecord) {
	r.mu.Lock()
	r.records[rec.PidnsInum] = rec
	r.mu.Unlock()
	metrics.WorkloadsRegistered.Set(float64(r.len()))
}

// Remove evicts a workload's record. Eviction is lazy and best-effort — a
// workload that silently disappears from the watch stream is not required
// to be removed immediately.
func (r *Registry) Remove(pidnsInum uint64) {
	r.mu.Lock()
	delete(r.records, pidnsInum)
	r.mu.Unlock()
	metrics.WorkloadsRegistered.Set(float64(r.len()))
}

// Get returns the record for pidnsInum and whether it was present. An event
// whose inum is not found must be dropped silently by the caller, not
// queued or retried — the registry and the probe pipeline are not ordered
// with respect to each other.
func (r *Registry) Get(pidnsInum uint64) (types.WorkloadRecord, bool) {
	r.mu.RLock()
	rec, ok := r.records[pidnsInum]
	r.mu.RUnlock()
	return rec, ok
}

// Snapshot returns a copy of every record currently held.
func (r *Registry) Snapshot() []types.WorkloadRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.WorkloadRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

func (r *Registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
