package watch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	apiwatch "k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/cuemby/sentryd/pkg/log"
	"github.com/cuemby/sentryd/pkg/types"
)

// ServiceWatcher watches cluster-scoped Service objects and forwards their
// specs to the collector. Simpler than the workload side: no registry
// entry, no pidns resolution, just a readiness gate and a POST.
type ServiceWatcher struct {
	client  kubernetes.Interface
	emitter EmitterClient
	log     zerolog.Logger
}

// NewServiceWatcher constructs a service watcher.
func NewServiceWatcher(client kubernetes.Interface, emitter EmitterClient) *ServiceWatcher {
	return &ServiceWatcher{
		client:  client,
		emitter: emitter,
		log:     log.WithComponent("service-watcher"),
	}
}

// Run watches until ctx is cancelled, restarting on error with backoff.
func (s *ServiceWatcher) Run(ctx context.Context) error {
	runWithBackoff(ctx, "service", func(ctx context.Context) (apiwatch.Interface, error) {
		return s.client.CoreV1().Services("").Watch(ctx, metav1.ListOptions{})
	}, func(ev apiwatch.Event) {
		s.handle(ctx, ev)
	})

	return nil
}

func (s *ServiceWatcher) handle(ctx context.Context, ev apiwatch.Event) {
	svc, ok := ev.Object.(*corev1.Service)
	if !ok || ev.Type == apiwatch.Deleted {
		return
	}

	if svc.Spec.ClusterIP == "" || svc.Spec.ClusterIP == corev1.ClusterIPNone {
		return
	}

	if err := s.emitter.Post(ctx, "svc/spec", types.SvcSpecDoc{
		SvcIP:        svc.Spec.ClusterIP,
		SvcName:      svc.Name,
		SvcNamespace: svc.Namespace,
		ServiceSpec:  svc.Spec,
		Timestamp:    time.Now(),
	}); err != nil {
		s.log.Warn().Err(err).Str("service", svc.Name).Msg("svc/spec post failed, continuing")
	}
}
