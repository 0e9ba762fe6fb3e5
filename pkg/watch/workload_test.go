package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	apiwatch "k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/cuemby/sentryd/pkg/types"
)

type fakeResolver struct {
	pid  uint32
	inum uint64
	ok   bool
}

func (f fakeResolver) Resolve(ctx context.Context, containerID string) (uint32, uint64, bool) {
	return f.pid, f.inum, f.ok
}

type fakeStore struct {
	mu      sync.Mutex
	records []types.WorkloadRecord
}

func (s *fakeStore) Insert(rec types.WorkloadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *fakeStore) snapshot() []types.WorkloadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.WorkloadRecord, len(s.records))
	copy(out, s.records)
	return out
}

type fakeEmitter struct {
	mu    sync.Mutex
	posts []string
	err   error
}

func (e *fakeEmitter) Post(ctx context.Context, path string, doc interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.posts = append(e.posts, path)
	return e.err
}

func (e *fakeEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.posts)
}

func readyPod(name, namespace, ip, nodeName string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       corev1.PodSpec{NodeName: nodeName},
		Status: corev1.PodStatus{
			PodIP: ip,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
			ContainerStatuses: []corev1.ContainerStatus{
				{ContainerID: "containerd://abc123"},
			},
		},
	}
}

func newWatcher(t *testing.T, client *fake.Clientset, resolver ContainerResolver, store *fakeStore, emitter *fakeEmitter, cfg WorkloadWatcherConfig) (*WorkloadWatcher, chan uint64, chan string) {
	t.Helper()
	inumCh := make(chan uint64, 8)
	ignoredIPCh := make(chan string, 8)
	w := NewWorkloadWatcher(client, resolver, store, emitter, cfg, inumCh, ignoredIPCh)
	return w, inumCh, ignoredIPCh
}

func TestWorkloadWatcher_HandlesReadyPod(t *testing.T) {
	client := fake.NewSimpleClientset()
	store := &fakeStore{}
	emitter := &fakeEmitter{}
	resolver := fakeResolver{pid: 100, inum: 42, ok: true}
	cfg := WorkloadWatcherConfig{NodeName: "node-a"}

	w, inumCh, _ := newWatcher(t, client, resolver, store, emitter, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	w.handle(ctx, podEvent(readyPod("web", "app", "10.0.0.5", "node-a")))

	require.Len(t, store.snapshot(), 1)
	assert.Equal(t, uint64(42), store.snapshot()[0].PidnsInum)
	assert.Equal(t, 1, emitter.count())

	select {
	case inum := <-inumCh:
		assert.Equal(t, uint64(42), inum)
	default:
		t.Fatal("expected inum to be published")
	}
}

func TestWorkloadWatcher_SkipsNotReady(t *testing.T) {
	client := fake.NewSimpleClientset()
	store := &fakeStore{}
	emitter := &fakeEmitter{}
	resolver := fakeResolver{pid: 100, inum: 42, ok: true}
	cfg := WorkloadWatcherConfig{NodeName: "node-a"}

	w, _, _ := newWatcher(t, client, resolver, store, emitter, cfg)

	pod := readyPod("web", "app", "10.0.0.5", "node-a")
	pod.Status.Conditions[0].Status = corev1.ConditionFalse

	w.handle(context.Background(), podEvent(pod))

	assert.Empty(t, store.snapshot())
	assert.Equal(t, 0, emitter.count())
}

func TestWorkloadWatcher_SkipsExcludedNamespace(t *testing.T) {
	client := fake.NewSimpleClientset()
	store := &fakeStore{}
	emitter := &fakeEmitter{}
	resolver := fakeResolver{pid: 100, inum: 42, ok: true}
	cfg := WorkloadWatcherConfig{
		NodeName:           "node-a",
		ExcludedNamespaces: map[string]struct{}{"kube-system": {}},
	}

	w, _, _ := newWatcher(t, client, resolver, store, emitter, cfg)

	w.handle(context.Background(), podEvent(readyPod("dns", "kube-system", "10.0.0.9", "node-a")))

	assert.Empty(t, store.snapshot())
	assert.Equal(t, 0, emitter.count())
}

func TestWorkloadWatcher_SkipsUnresolvedContainer(t *testing.T) {
	client := fake.NewSimpleClientset()
	store := &fakeStore{}
	emitter := &fakeEmitter{}
	resolver := fakeResolver{ok: false}
	cfg := WorkloadWatcherConfig{NodeName: "node-a"}

	w, inumCh, _ := newWatcher(t, client, resolver, store, emitter, cfg)

	w.handle(context.Background(), podEvent(readyPod("web", "app", "10.0.0.5", "node-a")))

	assert.Empty(t, store.snapshot())
	// pod/spec is still posted even when the container can't yet be resolved.
	assert.Equal(t, 1, emitter.count())
	select {
	case <-inumCh:
		t.Fatal("expected no inum published for unresolved container")
	default:
	}
}

func TestWorkloadWatcher_PublishesIgnoredIPForInfra(t *testing.T) {
	client := fake.NewSimpleClientset()
	store := &fakeStore{}
	emitter := &fakeEmitter{}
	resolver := fakeResolver{pid: 100, inum: 42, ok: true}
	cfg := WorkloadWatcherConfig{
		NodeName:           "node-a",
		IgnoreInfraTraffic: true,
		IsInfra: func(namespace string, labels map[string]string) bool {
			return namespace == "kube-guardian"
		},
	}

	w, _, ignoredIPCh := newWatcher(t, client, resolver, store, emitter, cfg)

	w.handle(context.Background(), podEvent(readyPod("agent", "kube-guardian", "10.0.0.7", "node-a")))

	select {
	case ip := <-ignoredIPCh:
		assert.Equal(t, "10.0.0.7", ip)
	default:
		t.Fatal("expected ignored IP to be published")
	}
}

func podEvent(pod *corev1.Pod) apiwatch.Event {
	return apiwatch.Event{Type: apiwatch.Added, Object: pod}
}
