/*
Package types defines the data model shared by every component of the
agent: workload identity and records, the classified network and syscall
events delivered from the kernel probes, the deduplicated TrafficRecord
and its FlowFingerprint dedup key, the per-workload SyscallAccumulator, and
the JSON wire documents POSTed to the collector.

Kind is a closed, three-value sum type (TCP ingress accepted, TCP egress
established, UDP egress send) that the probe loader assigns at the
kernel/user-space boundary; everywhere above that boundary, code switches
on Kind rather than on the raw wire byte.
*/
package types
