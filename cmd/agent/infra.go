package main

// podTemplateGenerationLabel is stamped by the DaemonSet controller onto
// every pod it manages (unlike Deployments, which use pod-template-hash, or
// StatefulSets, which use controller-revision-hash without it). Its mere
// presence is enough to identify a DaemonSet-managed pod from labels alone,
// without an extra owner-reference lookup.
const podTemplateGenerationLabel = "pod-template-generation"

// isDaemonSetManaged implements watch.InfraPredicate: it flags pods such as
// this agent itself, and other per-node DaemonSets, whose traffic should be
// suppressed at the kernel rather than reported as workload traffic.
func isDaemonSetManaged(_ string, labels map[string]string) bool {
	_, ok := labels[podTemplateGenerationLabel]
	return ok
}
