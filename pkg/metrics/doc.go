/*
Package metrics defines and registers the agent's Prometheus metrics and
exposes them over /metrics, plus /health and /ready liveness endpoints.

All metrics are package-level variables registered at init() rather than
built and wired through a collector struct. They track the testable
properties of the observation pipeline: registry size, watch restarts,
per-channel probe drop counts, flow emit/dedup/orphan counts, syscall
batch and unresolved-name counts, and emitter POST latency and failures.

Components call metrics.<Name>.Inc()/.Set()/.Observe() directly; there is
no collection loop, since updates happen inline as events are processed
rather than on a polling cycle.
*/
package metrics
