// Package probe owns the kernel-side tracepoint/kprobe programs, their perf
// readers and their filter maps; no other package touches them. It never
// reads the workload registry or talks to the collector directly — it
// forwards raw events to bounded channels and drains inum/IP updates into
// the kernel maps, nothing else.
package probe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/perf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/rs/zerolog"

	"github.com/cuemby/sentryd/pkg/log"
	"github.com/cuemby/sentryd/pkg/metrics"
	"github.com/cuemby/sentryd/pkg/types"
)

const (
	eventChannelCapacity = 1000
	pollTimeout          = 100 * time.Millisecond
)

// Loader loads and attaches the two tracepoint/kprobe programs, consumes
// their per-CPU perf ring buffers, and applies inum/IP updates to the
// kernel-side filter maps. It is the sole owner of every handle it creates.
type Loader struct {
	programs *programs

	tcpSetStateLink link.Link
	udpSendmsgLink  link.Link
	sysEnterLink    link.Link

	networkReader *perf.Reader
	syscallReader *perf.Reader

	networkCh chan types.NetworkEvent
	syscallCh chan types.SyscallEvent

	inumUpdates      <-chan uint64
	ignoredIPUpdates <-chan string
	dropInfraTraffic bool

	log zerolog.Logger
}

// NewLoader loads the embedded probe object, attaches its programs, and
// binds per-CPU perf readers. Run receives from inumUpdates and
// ignoredIPUpdates as values arrive; dropInfraTraffic gates whether an
// address received on ignoredIPUpdates is written to the ignore_ips map
// (when false it is received and discarded).
func NewLoader(inumUpdates <-chan uint64, ignoredIPUpdates <-chan string, dropInfraTraffic bool) (*Loader, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("remove memlock rlimit: %w", err)
	}

	progs, err := loadProgramsFromObject()
	if err != nil {
		return nil, err
	}

	tcpLink, err := link.Kprobe("tcp_set_state", progs.tcpSetState, nil)
	if err != nil {
		progs.Close()
		return nil, fmt.Errorf("attach tcp_set_state kprobe: %w", err)
	}

	udpLink, err := link.Kprobe("udp_sendmsg", progs.udpSendmsg, nil)
	if err != nil {
		tcpLink.Close()
		progs.Close()
		return nil, fmt.Errorf("attach udp_sendmsg kprobe: %w", err)
	}

	sysLink, err := link.Tracepoint("raw_syscalls", "sys_enter", progs.sysEnter, nil)
	if err != nil {
		udpLink.Close()
		tcpLink.Close()
		progs.Close()
		return nil, fmt.Errorf("attach sys_enter tracepoint: %w", err)
	}

	networkReader, err := perf.NewReader(progs.networkPerf, os.Getpagesize())
	if err != nil {
		sysLink.Close()
		udpLink.Close()
		tcpLink.Close()
		progs.Close()
		return nil, fmt.Errorf("open network perf ring: %w", err)
	}

	syscallReader, err := perf.NewReader(progs.syscallPerf, os.Getpagesize())
	if err != nil {
		networkReader.Close()
		sysLink.Close()
		udpLink.Close()
		tcpLink.Close()
		progs.Close()
		return nil, fmt.Errorf("open syscall perf ring: %w", err)
	}

	return &Loader{
		programs:         progs,
		tcpSetStateLink:  tcpLink,
		udpSendmsgLink:   udpLink,
		sysEnterLink:     sysLink,
		networkReader:    networkReader,
		syscallReader:    syscallReader,
		networkCh:        make(chan types.NetworkEvent, eventChannelCapacity),
		syscallCh:        make(chan types.SyscallEvent, eventChannelCapacity),
		inumUpdates:      inumUpdates,
		ignoredIPUpdates: ignoredIPUpdates,
		dropInfraTraffic: dropInfraTraffic,
		log:              log.WithComponent("probe-loader"),
	}, nil
}

// NetworkEvents is the receive side the Flow Classifier consumes.
func (l *Loader) NetworkEvents() <-chan types.NetworkEvent { return l.networkCh }

// SyscallEvents is the receive side the Syscall Aggregator consumes.
func (l *Loader) SyscallEvents() <-chan types.SyscallEvent { return l.syscallCh }

// Run starts one goroutine per perf reader (network and syscall), each
// polling its ring with a pollTimeout deadline, and itself applies inum and
// ignored-IP updates to the filter maps; the maps are written only from
// Run's goroutine. It returns only when ctx is cancelled, closing every
// handle on the way out. An unrecoverable perf read error panics in the
// polling goroutine, which ends the process.
func (l *Loader) Run(ctx context.Context) error {
	defer l.close()

	go l.pollNetwork(ctx)
	go l.pollSyscalls(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case inum, ok := <-l.inumUpdates:
			if !ok {
				l.inumUpdates = nil
				continue
			}
			l.applyInum(inum)
		case ip, ok := <-l.ignoredIPUpdates:
			if !ok {
				l.ignoredIPUpdates = nil
				continue
			}
			if l.dropInfraTraffic {
				l.applyIgnoredIP(ip)
			}
		}
	}
}

func (l *Loader) applyInum(inum uint64) {
	if err := l.programs.networkInums.Put(inum, uint8(1)); err != nil {
		l.log.Warn().Err(err).Uint64("pidns_inum", inum).Msg("update network filter map failed")
	}
	if err := l.programs.syscallInums.Put(inum, uint8(1)); err != nil {
		l.log.Warn().Err(err).Uint64("pidns_inum", inum).Msg("update syscall filter map failed")
	}
}

func (l *Loader) applyIgnoredIP(ip string) {
	key := ipToUint32(ip)
	if key == 0 {
		return
	}
	if err := l.programs.ignoreIPs.Put(key, uint8(1)); err != nil {
		l.log.Warn().Err(err).Str("ip", ip).Msg("update ignore_ips map failed")
	}
}

func (l *Loader) pollNetwork(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		_ = l.networkReader.SetDeadline(time.Now().Add(pollTimeout))
		record, err := l.networkReader.Read()
		if err != nil {
			if errors.Is(err, perf.ErrClosed) {
				return
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			l.log.Error().Err(err).Msg("network perf read failed, loader exiting")
			panic(fmt.Errorf("network perf read: %w", err))
		}
		if record.LostSamples > 0 {
			metrics.ProbeEventsDroppedTotal.WithLabelValues("network_ring").Add(float64(record.LostSamples))
		}
		if len(record.RawSample) == 0 {
			continue
		}

		ev, err := decodeNetworkEvent(record.RawSample)
		if err != nil {
			l.log.Warn().Err(err).Msg("discarding malformed network sample")
			continue
		}

		metrics.ProbeEventsReceivedTotal.WithLabelValues("network").Inc()
		forwardNetworkEvent(l.networkCh, ev)
	}
}

// forwardNetworkEvent sends ev on ch without blocking, reporting whether it
// was dropped. A full channel means the classifier is falling behind; per
// the backpressure contract the poll loop must never block on it.
func forwardNetworkEvent(ch chan<- types.NetworkEvent, ev types.NetworkEvent) (dropped bool) {
	select {
	case ch <- ev:
		return false
	default:
		metrics.ProbeEventsDroppedTotal.WithLabelValues("network").Inc()
		return true
	}
}

func (l *Loader) pollSyscalls(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		_ = l.syscallReader.SetDeadline(time.Now().Add(pollTimeout))
		record, err := l.syscallReader.Read()
		if err != nil {
			if errors.Is(err, perf.ErrClosed) {
				return
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			l.log.Error().Err(err).Msg("syscall perf read failed, loader exiting")
			panic(fmt.Errorf("syscall perf read: %w", err))
		}
		if record.LostSamples > 0 {
			metrics.ProbeEventsDroppedTotal.WithLabelValues("syscall_ring").Add(float64(record.LostSamples))
		}
		if len(record.RawSample) == 0 {
			continue
		}

		ev, err := decodeSyscallEvent(record.RawSample)
		if err != nil {
			l.log.Warn().Err(err).Msg("discarding malformed syscall sample")
			continue
		}

		metrics.ProbeEventsReceivedTotal.WithLabelValues("syscall").Inc()
		forwardSyscallEvent(l.syscallCh, ev)
	}
}

// forwardSyscallEvent is forwardNetworkEvent's syscall-channel counterpart.
func forwardSyscallEvent(ch chan<- types.SyscallEvent, ev types.SyscallEvent) (dropped bool) {
	select {
	case ch <- ev:
		return false
	default:
		metrics.ProbeEventsDroppedTotal.WithLabelValues("syscall").Inc()
		return true
	}
}

func (l *Loader) close() {
	l.networkReader.Close()
	l.syscallReader.Close()
	l.sysEnterLink.Close()
	l.udpSendmsgLink.Close()
	l.tcpSetStateLink.Close()
	l.programs.Close()
}

// ipToUint32 parses a dotted-quad IPv4 address into the kernel map's native
// key form. Non-IPv4 addresses (unsupported by the kernel-side contract)
// return 0.
func ipToUint32(ip string) uint32 {
	v4 := net.ParseIP(ip).To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}
