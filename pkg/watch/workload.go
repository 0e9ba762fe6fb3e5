package watch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	apiwatch "k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/cuemby/sentryd/pkg/container"
	"github.com/cuemby/sentryd/pkg/log"
	"github.com/cuemby/sentryd/pkg/metrics"
	"github.com/cuemby/sentryd/pkg/types"
)

// WorkloadStore is the capability this package needs from the registry.
type WorkloadStore interface {
	Insert(types.WorkloadRecord)
}

// InfraPredicate reports whether a pod is infrastructure (e.g. a per-node
// agent) whose traffic should be suppressed at the kernel, given its
// namespace and labels.
type InfraPredicate func(namespace string, labels map[string]string) bool

// WorkloadWatcherConfig configures the workload side of the registry.
type WorkloadWatcherConfig struct {
	NodeName           string
	ExcludedNamespaces map[string]struct{}
	IgnoreInfraTraffic bool
	IsInfra            InfraPredicate
}

// WorkloadWatcher watches node-scoped pods, resolves each ready pod to a
// WorkloadRecord, inserts it into the registry, pushes its pidns inode to
// the probe loader, and POSTs a pod/spec document to the collector.
type WorkloadWatcher struct {
	client   kubernetes.Interface
	resolver ContainerResolver
	store    WorkloadStore
	emitter  EmitterClient
	cfg      WorkloadWatcherConfig

	inumCh      chan<- uint64
	ignoredIPCh chan<- string

	log zerolog.Logger
}

// NewWorkloadWatcher constructs a watcher. inumCh and ignoredIPCh are owned
// by the probe loader; sends on inumCh block if full (the watcher is not
// latency-critical), matching the data model's publish contract.
func NewWorkloadWatcher(client kubernetes.Interface, resolver ContainerResolver, store WorkloadStore, emitter EmitterClient, cfg WorkloadWatcherConfig, inumCh chan<- uint64, ignoredIPCh chan<- string) *WorkloadWatcher {
	return &WorkloadWatcher{
		client:      client,
		resolver:    resolver,
		store:       store,
		emitter:     emitter,
		cfg:         cfg,
		inumCh:      inumCh,
		ignoredIPCh: ignoredIPCh,
		log:         log.WithComponent("workload-watcher"),
	}
}

// Run watches until ctx is cancelled, restarting the watch stream on error
// with backoff. It never returns an error: watch-stream failures are
// transient per the error taxonomy, and Run is meant to be handed directly
// to an errgroup.Group that tears the process down on a different failure.
func (w *WorkloadWatcher) Run(ctx context.Context) error {
	runWithBackoff(ctx, "workload", func(ctx context.Context) (apiwatch.Interface, error) {
		return w.client.CoreV1().Pods("").Watch(ctx, metav1.ListOptions{
			FieldSelector: fields.OneTermEqualSelector("spec.nodeName", w.cfg.NodeName).String(),
		})
	}, func(ev apiwatch.Event) {
		w.handle(ctx, ev)
	})

	return nil
}

func (w *WorkloadWatcher) handle(ctx context.Context, ev apiwatch.Event) {
	pod, ok := ev.Object.(*corev1.Pod)
	if !ok || ev.Type == apiwatch.Deleted {
		return
	}

	if _, excluded := w.cfg.ExcludedNamespaces[pod.Namespace]; excluded {
		return
	}

	if !podReady(pod) || pod.Status.PodIP == "" {
		w.log.Debug().Str("pod", pod.Name).Msg("pod not ready or has no address, skipping")
		return
	}

	identity := types.WorkloadIdentity{
		Name:           pod.Name,
		Namespace:      pod.Namespace,
		PrimaryAddress: pod.Status.PodIP,
	}

	for _, cs := range pod.Status.ContainerStatuses {
		if cs.ContainerID == "" {
			continue
		}

		runtimeID := container.StripRuntimePrefix(cs.ContainerID)
		pid, inum, resolved := w.resolver.Resolve(ctx, runtimeID)
		if !resolved {
			metrics.ContainerResolveFailuresTotal.Inc()
			w.log.Debug().Str("pod", pod.Name).Str("container", runtimeID).Msg("container resolve failed, skipping until next event")
			continue
		}

		rec := types.WorkloadRecord{
			Identity:    identity,
			ContainerID: runtimeID,
			RuntimePID:  pid,
			PidnsInum:   inum,
		}
		w.store.Insert(rec)

		select {
		case w.inumCh <- inum:
		case <-ctx.Done():
			return
		}
	}

	if err := w.emitter.Post(ctx, "pod/spec", types.PodSpecDoc{
		PodIP:        pod.Status.PodIP,
		PodName:      pod.Name,
		PodNamespace: pod.Namespace,
		PodObj:       pod,
		Timestamp:    time.Now(),
	}); err != nil {
		w.log.Warn().Err(err).Str("pod", pod.Name).Msg("pod/spec post failed, continuing")
	}

	if w.cfg.IgnoreInfraTraffic && w.cfg.IsInfra != nil && w.cfg.IsInfra(pod.Namespace, pod.Labels) {
		select {
		case w.ignoredIPCh <- pod.Status.PodIP:
		case <-ctx.Done():
		}
	}
}

// podReady reports whether the pod has a PodReady condition set to true.
func podReady(pod *corev1.Pod) bool {
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}
