package probe

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sentryd/pkg/types"
)

// packRawNetworkEvent lays out bytes the way a real kernel sample would:
// Saddr/Daddr in network order (first byte = first octet), everything else
// host order. Unlike binary.Write(..., rawNetworkEvent{...}), this does not
// assume the struct's native packing already matches the wire.
func packRawNetworkEvent(t *testing.T, inum uint64, saddr [4]byte, sport uint16, daddr [4]byte, dport, oldState, newState, kind uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, inum))
	buf.Write(saddr[:])
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, sport))
	buf.Write(daddr[:])
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, dport))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, oldState))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, newState))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, kind))
	return buf.Bytes()
}

// renderIPv4 mirrors the classifier's ipv4String rendering, so this test can
// confirm a decoded address is not just non-zero but octet-correct.
func renderIPv4(addr uint32) string {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr)).String()
}

func TestDecodeNetworkEvent(t *testing.T) {
	raw := packRawNetworkEvent(t, 42, [4]byte{10, 0, 0, 5}, 8080, [4]byte{10, 0, 0, 9}, 443, 2, 1, uint16(types.KindTCPEgressEstablished))

	ev, err := decodeNetworkEvent(raw)

	require.NoError(t, err)
	assert.Equal(t, uint64(42), ev.Inum)
	assert.Equal(t, uint16(443), ev.Dport)
	assert.Equal(t, types.KindTCPEgressEstablished, ev.Kind)
	assert.Equal(t, "10.0.0.5", renderIPv4(ev.Saddr))
	assert.Equal(t, "10.0.0.9", renderIPv4(ev.Daddr))
}

// TestDecodeNetworkEvent_AddressIsNetworkOrderNotByteReversed is the
// asymmetric-address case: every octet differs, so a byte-reversed address
// would render as a different (but still valid-looking) IP instead of
// failing outright.
func TestDecodeNetworkEvent_AddressIsNetworkOrderNotByteReversed(t *testing.T) {
	raw := packRawNetworkEvent(t, 1, [4]byte{172, 16, 254, 3}, 0, [4]byte{192, 168, 1, 200}, 0, 0, 0, uint16(types.KindUDPEgressSend))

	ev, err := decodeNetworkEvent(raw)

	require.NoError(t, err)
	assert.Equal(t, "172.16.254.3", renderIPv4(ev.Saddr))
	assert.Equal(t, "192.168.1.200", renderIPv4(ev.Daddr))
}

func TestDecodeNetworkEvent_TruncatedIsError(t *testing.T) {
	_, err := decodeNetworkEvent([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeSyscallEvent(t *testing.T) {
	var buf bytes.Buffer
	raw := rawSyscallEvent{Inum: 7, SyscallNumber: 59}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, raw))

	ev, err := decodeSyscallEvent(buf.Bytes())

	require.NoError(t, err)
	assert.Equal(t, uint64(7), ev.Inum)
	assert.Equal(t, uint32(59), ev.SyscallNumber)
}

func TestDecodeSyscallEvent_TruncatedIsError(t *testing.T) {
	_, err := decodeSyscallEvent([]byte{1})
	assert.Error(t, err)
}
