// Package sysaccount aggregates per-workload syscall usage from raw
// SyscallEvents and flushes the full set to the collector on a fixed
// interval. Named to avoid shadowing the standard library's syscall
// package.
package sysaccount

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/cuemby/sentryd/pkg/log"
	"github.com/cuemby/sentryd/pkg/metrics"
	"github.com/cuemby/sentryd/pkg/types"
)

const (
	// defaultFlushInterval matches the collector upsert cadence in §4.D.
	defaultFlushInterval = 60 * time.Second
	defaultCacheSize     = 10000
)

// WorkloadLookup is the capability this package needs from the registry.
type WorkloadLookup interface {
	Get(pidnsInum uint64) (types.WorkloadRecord, bool)
}

// Emitter is the capability this package needs from the collector client.
type Emitter interface {
	Post(ctx context.Context, path string, doc interface{}) error
}

// Aggregator runs the ingest and flush tasks over a shared, mutex-guarded
// cache of per-workload syscall accumulators.
type Aggregator struct {
	registry WorkloadLookup
	emitter  Emitter
	events   <-chan types.SyscallEvent

	flushInterval time.Duration

	mu    sync.Mutex
	cache *lru.Cache // pidns_inum (uint64) -> *types.SyscallAccumulator

	now func() time.Time
	log zerolog.Logger
}

// New constructs an Aggregator. flushInterval <= 0 uses defaultFlushInterval;
// cacheSize <= 0 uses defaultCacheSize.
func New(registry WorkloadLookup, emitter Emitter, events <-chan types.SyscallEvent, flushInterval time.Duration, cacheSize int) (*Aggregator, error) {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		registry:      registry,
		emitter:       emitter,
		events:        events,
		flushInterval: flushInterval,
		cache:         cache,
		now:           time.Now,
		log:           log.WithComponent("syscall-aggregator"),
	}, nil
}

// Run starts the ingest loop and the flush ticker; it returns when ctx is
// cancelled or the events channel closes.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.events:
			if !ok {
				return nil
			}
			a.ingest(ev)
		case <-ticker.C:
			a.flush(ctx)
		}
	}
}

func (a *Aggregator) ingest(ev types.SyscallEvent) {
	rec, ok := a.registry.Get(ev.Inum)
	if !ok {
		metrics.SyscallEventsOrphanedTotal.Inc()
		return
	}

	name, resolved := resolveName(ev.SyscallNumber)
	if !resolved {
		metrics.SyscallUnresolvedTotal.Inc()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	acc := a.accumulatorFor(rec.PidnsInum)
	acc.Current[name] = struct{}{}
}

// accumulatorFor returns the accumulator for inum, creating one if absent.
// Must be called with a.mu held.
func (a *Aggregator) accumulatorFor(inum uint64) *types.SyscallAccumulator {
	if v, ok := a.cache.Get(inum); ok {
		return v.(*types.SyscallAccumulator)
	}
	acc := types.NewSyscallAccumulator()
	a.cache.Add(inum, acc)
	return acc
}

func (a *Aggregator) flush(ctx context.Context) {
	type pending struct {
		inum uint64
		acc  *types.SyscallAccumulator
		doc  types.SyscallDoc
	}

	a.mu.Lock()
	var batch []pending
	for _, key := range a.cache.Keys() {
		inum, ok := key.(uint64)
		if !ok {
			continue
		}
		v, ok := a.cache.Peek(key)
		if !ok {
			continue
		}
		acc := v.(*types.SyscallAccumulator)
		if !acc.Changed() {
			continue
		}

		rec, ok := a.registry.Get(inum)
		if !ok {
			continue
		}

		batch = append(batch, pending{
			inum: inum,
			acc:  acc,
			doc: types.SyscallDoc{
				PodName:      rec.Identity.Name,
				PodNamespace: rec.Identity.Namespace,
				Syscalls:     acc.Names(),
				Arch:         arch,
				Timestamp:    a.now(),
			},
		})
	}
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	docs := make([]types.SyscallDoc, 0, len(batch))
	for _, p := range batch {
		docs = append(docs, p.doc)
	}

	if err := a.emitter.Post(ctx, "pod/syscalls", docs); err != nil {
		a.log.Warn().Err(err).Int("workloads", len(batch)).Msg("pod/syscalls post failed, will retry next tick")
		return
	}

	metrics.SyscallBatchesEmittedTotal.Inc()

	a.mu.Lock()
	for _, p := range batch {
		p.acc.MarkSent()
	}
	a.mu.Unlock()
}
