package classifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sentryd/pkg/types"
)

type fakeRegistry struct {
	records map[uint64]types.WorkloadRecord
}

func (r fakeRegistry) Get(inum uint64) (types.WorkloadRecord, bool) {
	rec, ok := r.records[inum]
	return rec, ok
}

type fakeEmitter struct {
	mu    sync.Mutex
	docs  []interface{}
	paths []string
}

func (e *fakeEmitter) Post(ctx context.Context, path string, doc interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paths = append(e.paths, path)
	e.docs = append(e.docs, doc)
	return nil
}

func (e *fakeEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.docs)
}

func webRegistry() fakeRegistry {
	return fakeRegistry{records: map[uint64]types.WorkloadRecord{
		42: {
			Identity: types.WorkloadIdentity{Name: "web", Namespace: "app", PrimaryAddress: "10.0.0.5"},
			PidnsInum: 42,
		},
	}}
}

func ipv4(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

func TestScenario1_TCPEgressDeduplicated(t *testing.T) {
	registry := webRegistry()
	emitter := &fakeEmitter{}
	c, err := New(registry, emitter, nil, 0)
	require.NoError(t, err)

	ev := types.NetworkEvent{Inum: 42, Saddr: ipv4(10, 0, 0, 5), Daddr: ipv4(10, 0, 0, 7), Dport: 80, Kind: types.KindTCPEgressEstablished}

	c.handle(context.Background(), ev)
	c.handle(context.Background(), ev)

	require.Equal(t, 1, emitter.count())
	doc := emitter.docs[0].(types.PodTrafficDoc)
	assert.Equal(t, "web", doc.PodName)
	assert.Equal(t, "10.0.0.5", doc.PodIP)
	assert.Equal(t, "0", doc.PodPort)
	assert.Equal(t, "10.0.0.7", doc.TrafficInOutIP)
	assert.Equal(t, "80", doc.TrafficInOutPort)
	assert.Equal(t, types.DirectionEgress, doc.TrafficType)
	assert.Equal(t, types.ProtocolTCP, doc.IPProtocol)
}

func TestScenario2_TCPIngress(t *testing.T) {
	registry := webRegistry()
	emitter := &fakeEmitter{}
	c, err := New(registry, emitter, nil, 0)
	require.NoError(t, err)

	ev := types.NetworkEvent{Inum: 42, Saddr: ipv4(10, 0, 0, 9), Daddr: ipv4(10, 0, 0, 5), Sport: 34567, Dport: 80, Kind: types.KindTCPIngressAccepted}

	c.handle(context.Background(), ev)

	require.Equal(t, 1, emitter.count())
	doc := emitter.docs[0].(types.PodTrafficDoc)
	assert.Equal(t, types.DirectionIngress, doc.TrafficType)
	assert.Equal(t, "34567", doc.PodPort)
	assert.Equal(t, "0", doc.TrafficInOutPort)
	assert.Equal(t, "10.0.0.5", doc.TrafficInOutIP)
}

func TestScenario3_UDPEgress(t *testing.T) {
	registry := webRegistry()
	emitter := &fakeEmitter{}
	c, err := New(registry, emitter, nil, 0)
	require.NoError(t, err)

	ev := types.NetworkEvent{Inum: 42, Daddr: ipv4(8, 8, 8, 8), Dport: 53, Kind: types.KindUDPEgressSend}

	c.handle(context.Background(), ev)

	require.Equal(t, 1, emitter.count())
	doc := emitter.docs[0].(types.PodTrafficDoc)
	assert.Equal(t, types.DirectionEgress, doc.TrafficType)
	assert.Equal(t, types.ProtocolUDP, doc.IPProtocol)
	assert.Equal(t, "0", doc.PodPort)
	assert.Equal(t, "53", doc.TrafficInOutPort)
}

func TestScenario5_OrphanEventProducesNoPost(t *testing.T) {
	registry := fakeRegistry{records: map[uint64]types.WorkloadRecord{}}
	emitter := &fakeEmitter{}
	c, err := New(registry, emitter, nil, 0)
	require.NoError(t, err)

	c.handle(context.Background(), types.NetworkEvent{Inum: 999, Kind: types.KindTCPEgressEstablished})

	assert.Equal(t, 0, emitter.count())
}

func TestInvariant5_UndefinedKindIsDropped(t *testing.T) {
	registry := webRegistry()
	emitter := &fakeEmitter{}
	c, err := New(registry, emitter, nil, 0)
	require.NoError(t, err)

	c.handle(context.Background(), types.NetworkEvent{Inum: 42, Kind: types.Kind(99)})

	assert.Equal(t, 0, emitter.count())
}

func TestInvariant1_DedupCacheBoundedByEviction(t *testing.T) {
	registry := webRegistry()
	emitter := &fakeEmitter{}
	c, err := New(registry, emitter, nil, 1)
	require.NoError(t, err)

	evA := types.NetworkEvent{Inum: 42, Daddr: ipv4(10, 0, 0, 7), Dport: 80, Kind: types.KindTCPEgressEstablished}
	evB := types.NetworkEvent{Inum: 42, Daddr: ipv4(10, 0, 0, 8), Dport: 443, Kind: types.KindTCPEgressEstablished}

	c.handle(context.Background(), evA)
	c.handle(context.Background(), evB) // evicts evA's fingerprint from the size-1 cache
	c.handle(context.Background(), evA) // re-emitted: eviction is the only reason for recurrence

	assert.Equal(t, 3, emitter.count())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	registry := webRegistry()
	emitter := &fakeEmitter{}
	events := make(chan types.NetworkEvent)
	c, err := New(registry, emitter, events, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
