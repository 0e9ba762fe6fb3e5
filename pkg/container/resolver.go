// Package container resolves a container-runtime ID to the PID-namespace
// inode that kernel events are attributed against.
package container

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/namespaces"
)

const (
	// DefaultNamespace is the containerd namespace workloads run in.
	DefaultNamespace = "k8s.io"

	// DefaultSocketPath is the default containerd control socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	runtimePrefix = "://"
)

// Resolver queries the local containerd socket for a container's task PID
// and the PID-namespace inode that PID's descendants share.
type Resolver struct {
	client    *containerd.Client
	namespace string
}

// New connects to the containerd control socket at socketPath (empty uses
// DefaultSocketPath).
func New(socketPath string) (*Resolver, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("container: connect to containerd: %w", err)
	}

	return &Resolver{client: client, namespace: DefaultNamespace}, nil
}

// Close releases the containerd client connection.
func (r *Resolver) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// StripRuntimePrefix removes the "<runtime>://" prefix Kubernetes container
// statuses report (e.g. "containerd://<hex>" -> "<hex>").
func StripRuntimePrefix(containerStatusID string) string {
	if idx := strings.Index(containerStatusID, runtimePrefix); idx >= 0 {
		return containerStatusID[idx+len(runtimePrefix):]
	}
	return containerStatusID
}

// Resolve performs the two sequential queries the data model requires:
// container lookup by ID, then task lookup for the main PID. It returns the
// PID and the inode of /proc/<pid>/ns/pid_for_children, the namespace new
// descendant processes of that PID join. Any failure returns ok=false; the
// caller skips the workload until the next watch event.
func (r *Resolver) Resolve(ctx context.Context, containerID string) (pid uint32, pidnsInum uint64, ok bool) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	c, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return 0, 0, false
	}

	task, err := c.Task(ctx, nil)
	if err != nil {
		return 0, 0, false
	}

	p := task.Pid()
	if p == 0 {
		return 0, 0, false
	}

	inum, err := pidnsInumForChildren(p)
	if err != nil {
		return 0, 0, false
	}

	return p, inum, true
}

// pidnsInumForChildren reads the inode number of /proc/<pid>/ns/pid_for_children,
// the PID namespace that pid's future children are born into.
func pidnsInumForChildren(pid uint32) (uint64, error) {
	path := fmt.Sprintf("/proc/%d/ns/pid_for_children", pid)

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("container: stat %s: %w", path, err)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("container: no stat_t for %s", path)
	}

	return stat.Ino, nil
}
