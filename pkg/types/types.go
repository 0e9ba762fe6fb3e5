package types

import (
	"fmt"
	"time"
)

// WorkloadIdentity is the stable, logical identity of a workload: its name,
// namespace, and the address other workloads use to reach it. It is created
// once a workload becomes ready with a non-empty address and never mutated.
type WorkloadIdentity struct {
	Name           string
	Namespace      string
	PrimaryAddress string
}

// WorkloadRecord enriches a WorkloadIdentity with the runtime facts needed
// to attribute kernel events to it. PidnsInum is unique across concurrently
// live workloads on the node and is the sole correlation key between kernel
// events and workload identity.
type WorkloadRecord struct {
	Identity    WorkloadIdentity
	ContainerID string
	RuntimePID  uint32
	PidnsInum   uint64
}

// Kind is the closed set of classified kernel network events. Its mapping to
// (direction, protocol, port-assignment) is total and injective: every Kind
// maps to exactly one combination and no two Kinds share a combination.
type Kind uint16

const (
	KindTCPIngressAccepted   Kind = 1
	KindTCPEgressEstablished Kind = 2
	KindUDPEgressSend        Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindTCPIngressAccepted:
		return "tcp_ingress_accepted"
	case KindTCPEgressEstablished:
		return "tcp_egress_established"
	case KindUDPEgressSend:
		return "udp_egress_send"
	default:
		return fmt.Sprintf("kind(%d)", uint16(k))
	}
}

// Direction classifies a TrafficRecord as peer-initiated or workload-initiated.
type Direction string

const (
	DirectionIngress Direction = "INGRESS"
	DirectionEgress  Direction = "EGRESS"
)

// Protocol is the transport protocol of a classified flow.
type Protocol string

const (
	ProtocolTCP Protocol = "TCP"
	ProtocolUDP Protocol = "UDP"
)

// DirectionProtocol is the total, injective mapping from Kind to
// (direction, protocol) named in the classification rule.
func (k Kind) DirectionProtocol() (Direction, Protocol, bool) {
	switch k {
	case KindTCPIngressAccepted:
		return DirectionIngress, ProtocolTCP, true
	case KindTCPEgressEstablished:
		return DirectionEgress, ProtocolTCP, true
	case KindUDPEgressSend:
		return DirectionEgress, ProtocolUDP, true
	default:
		return "", "", false
	}
}

// NetworkEvent is the fixed binary layout of a network event delivered from
// the kernel probe over a per-CPU perf ring. Addresses and ports are as
// captured from the kernel; Kind is the probe's classification.
type NetworkEvent struct {
	Inum     uint64
	Saddr    uint32
	Sport    uint16
	Daddr    uint32
	Dport    uint16
	OldState uint16
	NewState uint16
	Kind     Kind
}

// SyscallEvent is the fixed binary layout of a syscall-entry event delivered
// from the kernel probe.
type SyscallEvent struct {
	Inum          uint64
	SyscallNumber uint32
}

// TrafficRecord is a classified, deduplicated flow ready for the collector.
// The pod_port/peer_port encoding follows the Kind-specific rule: TCP ingress
// records the peer's source port as PodPort and leaves PeerPort zero (the
// accept side only stores the initiator's address); TCP/UDP egress record
// the peer's destination port as PeerPort and leave PodPort zero.
type TrafficRecord struct {
	UUID        string
	Identity    WorkloadIdentity
	PodPort     uint16
	PeerAddress string
	PeerPort    uint16
	Direction   Direction
	Protocol    Protocol
	Timestamp   time.Time
}

// FlowFingerprint is the dedup key for traffic records. At most one
// TrafficRecord per fingerprint reaches the collector per process lifetime;
// the cache's bounded size is the only reason a fingerprint may recur.
type FlowFingerprint struct {
	Name        string
	PodAddress  string
	PodPort     uint16
	PeerAddress string
	PeerPort    uint16
	Direction   Direction
	Protocol    Protocol
}

// NewTrafficRecord classifies a NetworkEvent against a resolved identity,
// applying the Kind-specific port-assignment rule from the data model. It
// returns false if the Kind is not one of the three defined values.
func NewTrafficRecord(identity WorkloadIdentity, ev NetworkEvent, peerAddress string, uuid string, now time.Time) (TrafficRecord, bool) {
	direction, protocol, ok := ev.Kind.DirectionProtocol()
	if !ok {
		return TrafficRecord{}, false
	}

	rec := TrafficRecord{
		UUID:        uuid,
		Identity:    identity,
		PeerAddress: peerAddress,
		Direction:   direction,
		Protocol:    protocol,
		Timestamp:   now,
	}

	switch ev.Kind {
	case KindTCPIngressAccepted:
		rec.PodPort = ev.Sport
		rec.PeerPort = 0
	case KindTCPEgressEstablished, KindUDPEgressSend:
		rec.PodPort = 0
		rec.PeerPort = ev.Dport
	}

	return rec, true
}

// Fingerprint computes the dedup key for a TrafficRecord.
func (r TrafficRecord) Fingerprint(podAddress string) FlowFingerprint {
	return FlowFingerprint{
		Name:        r.Identity.Name,
		PodAddress:  podAddress,
		PodPort:     r.PodPort,
		PeerAddress: r.PeerAddress,
		PeerPort:    r.PeerPort,
		Direction:   r.Direction,
		Protocol:    r.Protocol,
	}
}

// SyscallAccumulator holds the per-workload current syscall-name set and the
// last-sent snapshot, so a flush can emit only when the set has changed.
type SyscallAccumulator struct {
	Current  map[string]struct{}
	LastSent map[string]struct{}
}

// NewSyscallAccumulator returns an empty accumulator.
func NewSyscallAccumulator() *SyscallAccumulator {
	return &SyscallAccumulator{
		Current:  make(map[string]struct{}),
		LastSent: make(map[string]struct{}),
	}
}

// Names returns Current as a slice; order is not meaningful, the collector
// upsert is order-insensitive.
func (a *SyscallAccumulator) Names() []string {
	names := make([]string, 0, len(a.Current))
	for name := range a.Current {
		names = append(names, name)
	}
	return names
}

// Changed reports whether Current differs from LastSent.
func (a *SyscallAccumulator) Changed() bool {
	if len(a.Current) != len(a.LastSent) {
		return true
	}
	for name := range a.Current {
		if _, ok := a.LastSent[name]; !ok {
			return true
		}
	}
	return false
}

// MarkSent copies Current into LastSent after a successful POST.
func (a *SyscallAccumulator) MarkSent() {
	snapshot := make(map[string]struct{}, len(a.Current))
	for name := range a.Current {
		snapshot[name] = struct{}{}
	}
	a.LastSent = snapshot
}

// --- Collector wire documents (§6) ---

// PodSpecDoc is the body of a POST to pod/spec.
type PodSpecDoc struct {
	PodIP        string      `json:"pod_ip"`
	PodName      string      `json:"pod_name"`
	PodNamespace string      `json:"pod_namespace,omitempty"`
	PodObj       interface{} `json:"pod_obj,omitempty"`
	Timestamp    time.Time   `json:"time_stamp"`
}

// PodTrafficDoc is the body of a POST to pod/traffic.
type PodTrafficDoc struct {
	UUID             string    `json:"uuid"`
	PodName          string    `json:"pod_name"`
	PodNamespace     string    `json:"pod_namespace,omitempty"`
	PodIP            string    `json:"pod_ip"`
	PodPort          string    `json:"pod_port,omitempty"`
	TrafficInOutIP   string    `json:"traffic_in_out_ip,omitempty"`
	TrafficInOutPort string    `json:"traffic_in_out_port,omitempty"`
	TrafficType      Direction `json:"traffic_type,omitempty"`
	IPProtocol       Protocol  `json:"ip_protocol,omitempty"`
	Timestamp        time.Time `json:"time_stamp"`
}

// SvcSpecDoc is the body of a POST to svc/spec.
type SvcSpecDoc struct {
	SvcIP        string      `json:"svc_ip"`
	SvcName      string      `json:"svc_name"`
	SvcNamespace string      `json:"svc_namespace,omitempty"`
	ServiceSpec  interface{} `json:"service_spec,omitempty"`
	Timestamp    time.Time   `json:"time_stamp"`
}

// SyscallDoc is one element of the list POSTed to pod/syscalls.
type SyscallDoc struct {
	PodName      string    `json:"pod_name"`
	PodNamespace string    `json:"pod_namespace"`
	Syscalls     []string  `json:"syscalls"`
	Arch         string    `json:"arch"`
	Timestamp    time.Time `json:"time_stamp"`
}

// NewPodTrafficDoc renders a TrafficRecord into its collector wire shape.
// Each Kind leaves exactly one of pod_port/traffic_in_out_port at its zero
// value, per the accept-side/initiator-side storage rule; it is still
// rendered as "0" rather than omitted, matching the observed source shape.
func NewPodTrafficDoc(r TrafficRecord) PodTrafficDoc {
	return PodTrafficDoc{
		UUID:             r.UUID,
		PodName:          r.Identity.Name,
		PodNamespace:     r.Identity.Namespace,
		PodIP:            r.Identity.PrimaryAddress,
		PodPort:          portString(r.PodPort),
		TrafficInOutIP:   r.PeerAddress,
		TrafficInOutPort: portString(r.PeerPort),
		TrafficType:      r.Direction,
		IPProtocol:       r.Protocol,
		Timestamp:        r.Timestamp,
	}
}

func portString(p uint16) string {
	return fmt.Sprintf("%d", p)
}
