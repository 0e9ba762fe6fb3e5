// Package watch maintains the workload registry and forwards service specs
// to the collector by watching the orchestrator's object store directly —
// a raw watch.Interface with a manual backoff-restart loop, not an informer
// cache, since what's needed here is a thin "watch then restart" loop
// rather than a reconciled local cache.
package watch

import (
	"context"
	"math/rand"
	"time"

	apiwatch "k8s.io/apimachinery/pkg/watch"

	"github.com/cuemby/sentryd/pkg/metrics"
)

// EmitterClient is the capability this package needs from the Emitter.
type EmitterClient interface {
	Post(ctx context.Context, path string, doc interface{}) error
}

// ContainerResolver is the capability this package needs from the container
// resolver: container ID to PID and PID-namespace inode.
type ContainerResolver interface {
	Resolve(ctx context.Context, containerID string) (pid uint32, pidnsInum uint64, ok bool)
}

// runWithBackoff runs start/drain repeatedly, restarting on a start error or
// channel close with jittered exponential backoff (1 s doubling up to 30 s,
// reset after a stream that stayed open longer than that), until ctx is
// cancelled. It mirrors the restart loop in
// GoogleCloudPlatform-prometheus-engine's secretWatcher: on unintentional
// close, back off, then restart; on ctx.Done, stop cleanly.
func runWithBackoff(ctx context.Context, watcherLabel string, start func(ctx context.Context) (apiwatch.Interface, error), handle func(apiwatch.Event)) {
	const maxBackoff = 30 * time.Second
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		w, err := start(ctx)
		if err != nil {
			metrics.WatchRestartsTotal.WithLabelValues(watcherLabel).Inc()
			sleepWithJitter(ctx, backoff)
			backoff = min(2*backoff, maxBackoff)
			continue
		}

		started := time.Now()
		restart := drain(ctx, w, handle)
		w.Stop()
		if ctx.Err() != nil || !restart {
			return
		}
		if time.Since(started) > maxBackoff {
			backoff = time.Second
		}

		metrics.WatchRestartsTotal.WithLabelValues(watcherLabel).Inc()
		sleepWithJitter(ctx, backoff)
		backoff = min(2*backoff, maxBackoff)
	}
}

// drain forwards events until the channel closes or ctx is cancelled. It
// returns true if the channel closed unintentionally (a restart is wanted).
func drain(ctx context.Context, w apiwatch.Interface, handle func(apiwatch.Event)) bool {
	for {
		select {
		case ev, ok := <-w.ResultChan():
			if !ok {
				return true
			}
			handle(ev)
		case <-ctx.Done():
			return false
		}
	}
}

func sleepWithJitter(ctx context.Context, base time.Duration) {
	jitter := base + time.Duration(rand.Int63n(int64(base)))
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
