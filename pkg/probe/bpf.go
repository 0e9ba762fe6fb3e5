package probe

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/cilium/ebpf"
)

// probesObj is the compiled tracepoint/kprobe object. The real artifact is
// produced by a clang/libbpf build step outside this module (see
// DESIGN.md); bpf/probes.o is a placeholder so the embed directive
// resolves.
//
//go:embed bpf/probes.o
var probesObj []byte

const (
	mapWorkloadInumsNetwork = "workload_inums_network"
	mapWorkloadInumsSyscall = "workload_inums_syscall"
	mapIgnoreIPs            = "ignore_ips"
	mapNetworkEvents        = "network_events"
	mapSyscallEvents        = "syscall_events"

	progTCPSetState = "handle_tcp_set_state"
	progUDPSendmsg  = "handle_udp_sendmsg"
	progSysEnter    = "handle_sys_enter"
)

// programs bundles the loaded maps and programs from the embedded object:
// the network probe's two kprobe programs and the syscall probe's
// tracepoint program, plus the maps they share with user space.
type programs struct {
	collection *ebpf.Collection

	networkInums *ebpf.Map
	syscallInums *ebpf.Map
	ignoreIPs    *ebpf.Map
	networkPerf  *ebpf.Map
	syscallPerf  *ebpf.Map

	tcpSetState *ebpf.Program
	udpSendmsg  *ebpf.Program
	sysEnter    *ebpf.Program
}

// loadProgramsFromObject parses the embedded object and loads it into the
// kernel, returning handles to every map and program this package attaches
// or mutates. Callers must call Close when done.
func loadProgramsFromObject() (*programs, error) {
	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(probesObj))
	if err != nil {
		return nil, fmt.Errorf("parse probe object: %w", err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("load probe collection: %w", err)
	}

	p := &programs{collection: coll}

	lookups := []struct {
		name string
		m    **ebpf.Map
	}{
		{mapWorkloadInumsNetwork, &p.networkInums},
		{mapWorkloadInumsSyscall, &p.syscallInums},
		{mapIgnoreIPs, &p.ignoreIPs},
		{mapNetworkEvents, &p.networkPerf},
		{mapSyscallEvents, &p.syscallPerf},
	}
	for _, l := range lookups {
		m, ok := coll.Maps[l.name]
		if !ok {
			coll.Close()
			return nil, fmt.Errorf("probe object missing map %q", l.name)
		}
		*l.m = m
	}

	progLookups := []struct {
		name string
		prog **ebpf.Program
	}{
		{progTCPSetState, &p.tcpSetState},
		{progUDPSendmsg, &p.udpSendmsg},
		{progSysEnter, &p.sysEnter},
	}
	for _, l := range progLookups {
		prog, ok := coll.Programs[l.name]
		if !ok {
			coll.Close()
			return nil, fmt.Errorf("probe object missing program %q", l.name)
		}
		*l.prog = prog
	}

	return p, nil
}

func (p *programs) Close() error {
	p.collection.Close()
	return nil
}
