// Package classifier turns raw NetworkEvents into deduplicated,
// collector-ready TrafficRecords.
package classifier

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/cuemby/sentryd/pkg/log"
	"github.com/cuemby/sentryd/pkg/metrics"
	"github.com/cuemby/sentryd/pkg/types"
)

// defaultCacheSize bounds the fingerprint dedup cache; eviction is the only
// reason a fingerprint may be re-emitted.
const defaultCacheSize = 10000

// WorkloadLookup is the capability this package needs from the registry.
type WorkloadLookup interface {
	Get(pidnsInum uint64) (types.WorkloadRecord, bool)
}

// Emitter is the capability this package needs from the collector client.
type Emitter interface {
	Post(ctx context.Context, path string, doc interface{}) error
}

// Classifier consumes NetworkEvents, resolves each to a workload, and
// forwards deduplicated TrafficRecords to the collector.
type Classifier struct {
	registry WorkloadLookup
	emitter  Emitter
	events   <-chan types.NetworkEvent
	cache    *lru.Cache
	now      func() time.Time
	log      zerolog.Logger
}

// New constructs a Classifier reading from events. cacheSize <= 0 uses
// defaultCacheSize.
func New(registry WorkloadLookup, emitter Emitter, events <-chan types.NetworkEvent, cacheSize int) (*Classifier, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		registry: registry,
		emitter:  emitter,
		events:   events,
		cache:    cache,
		now:      time.Now,
		log:      log.WithComponent("flow-classifier"),
	}, nil
}

// Run consumes events until ctx is cancelled or the channel closes.
func (c *Classifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-c.events:
			if !ok {
				return nil
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Classifier) handle(ctx context.Context, ev types.NetworkEvent) {
	rec, ok := c.registry.Get(ev.Inum)
	if !ok {
		metrics.FlowsOrphanedTotal.Inc()
		return
	}

	// traffic_in_out_ip is always the event's destination address, even for
	// the ingress kind (where it is the pod's own address rather than the
	// initiator's) — the port fields carry the direction-specific meaning.
	peerAddress := ipv4String(ev.Daddr)

	traffic, ok := types.NewTrafficRecord(rec.Identity, ev, peerAddress, uuid.NewString(), c.now())
	if !ok {
		c.log.Warn().Uint64("kind", uint64(ev.Kind)).Msg("undefined event kind, dropping")
		return
	}

	fp := traffic.Fingerprint(rec.Identity.PrimaryAddress)
	if c.cache.Contains(fp) {
		metrics.FlowsDeduplicatedTotal.Inc()
		return
	}

	doc := types.NewPodTrafficDoc(traffic)
	if err := c.emitter.Post(ctx, "pod/traffic", doc); err != nil {
		c.log.Warn().Err(err).Str("workload", rec.Identity.Name).Msg("pod/traffic post failed, will retry on next occurrence")
		return
	}

	c.cache.Add(fp, struct{}{})
	metrics.FlowsEmittedTotal.Inc()
}

// ipv4String renders a network-order uint32 address in dotted-quad form.
func ipv4String(addr uint32) string {
	ip := net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
	return ip.String()
}
