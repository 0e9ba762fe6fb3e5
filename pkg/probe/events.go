package probe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/cuemby/sentryd/pkg/types"
)

// rawNetworkEvent mirrors the kernel-side fixed layout field-for-field;
// binary.Read decodes it packed (no alignment padding) and little-endian.
type rawNetworkEvent struct {
	Inum     uint64
	Saddr    uint32
	Sport    uint16
	Daddr    uint32
	Dport    uint16
	OldState uint16
	NewState uint16
	Kind     uint16
}

// rawSyscallEvent mirrors the kernel-side {inum, syscall_number} layout.
type rawSyscallEvent struct {
	Inum          uint64
	SyscallNumber uint32
}

// decodeNetworkEvent reinterprets a raw perf-ring sample as a NetworkEvent.
// Saddr/Daddr are the kernel's raw network-order (big-endian) address
// bytes, same convention as ipToUint32 and the ignore_ips map; reading the
// whole struct as little-endian leaves them byte-reversed, so they are
// swapped back here before anything downstream treats them as presentation
// addresses.
func decodeNetworkEvent(raw []byte) (types.NetworkEvent, error) {
	var r rawNetworkEvent
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &r); err != nil {
		return types.NetworkEvent{}, fmt.Errorf("decode network event: %w", err)
	}

	return types.NetworkEvent{
		Inum:     r.Inum,
		Saddr:    bits.ReverseBytes32(r.Saddr),
		Sport:    r.Sport,
		Daddr:    bits.ReverseBytes32(r.Daddr),
		Dport:    r.Dport,
		OldState: r.OldState,
		NewState: r.NewState,
		Kind:     types.Kind(r.Kind),
	}, nil
}

// decodeSyscallEvent reinterprets a raw perf-ring sample as a SyscallEvent.
func decodeSyscallEvent(raw []byte) (types.SyscallEvent, error) {
	var r rawSyscallEvent
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &r); err != nil {
		return types.SyscallEvent{}, fmt.Errorf("decode syscall event: %w", err)
	}

	return types.SyscallEvent{
		Inum:          r.Inum,
		SyscallNumber: r.SyscallNumber,
	}, nil
}
