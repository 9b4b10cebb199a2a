package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func feedFrame(f *frame, wire []byte) frameOutcome {
	var last frameOutcome
	for _, b := range wire {
		last = f.handleByte(b)
		if last == outcomeComplete || last == outcomeDropped {
			return last
		}
	}
	return last
}

func TestFrameMinimalRawDataRequest(t *testing.T) {
	buf := make([]byte, 32)
	var f frame
	f.prepareForRead(buf)

	wire := buildWireFrame(hostFlags(true, true, false), ProfileRawData, nil)
	outcome := feedFrame(&f, wire)

	require.Equal(t, outcomeComplete, outcome)
	require.Equal(t, uint8(ProtocolVersion), f.version)
	require.Equal(t, ProfileRawData, f.profile)
	require.True(t, f.isRead())
	require.Equal(t, 0, f.payloadLength())
}

func TestFramePrepareForReadIsIdempotent(t *testing.T) {
	buf := make([]byte, 16)
	var a, b frame
	a.prepareForRead(buf)
	a.prepareForRead(buf)
	b.prepareForRead(buf)

	require.Equal(t, b.length, a.length)
	require.Equal(t, b.readReady, a.readReady)
	require.Equal(t, b.shouldDrop, a.shouldDrop)
}

func TestFrameBufferSafetyOnOverrun(t *testing.T) {
	capacity := 4
	buf := make([]byte, capacity)
	for i := range buf {
		buf[i] = 0xCC
	}
	var f frame
	f.prepareForRead(buf)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	wire := buildWireFrame(hostFlags(true, true, false), ProfileRawData, payload)
	outcome := feedFrame(&f, wire)

	require.Equal(t, outcomeDropped, outcome)
	// The first `capacity` payload bytes are legitimately committed; nothing
	// beyond buffer[capacity-1] was ever touched.
	require.Equal(t, []byte{1, 2, 3, 4}, buf[:capacity])
}

func TestFrameEscapedPayloadBytes(t *testing.T) {
	buf := make([]byte, 16)
	var f frame
	f.prepareForRead(buf)

	payload := []byte{0x7D, 0x7E, 0x01}
	wire := buildWireFrame(hostFlags(false, true, false), ProfileRawData, payload)
	outcome := feedFrame(&f, wire)

	require.Equal(t, outcomeComplete, outcome)
	require.Equal(t, payload, f.payload[:f.payloadLength()])
}

func TestFrameDropsOnReservedFlagBits(t *testing.T) {
	buf := make([]byte, 16)
	var f frame
	f.prepareForRead(buf)

	wire := buildWireFrame(hostFlags(true, true, false)|(1<<30), ProfileRawData, nil)
	outcome := feedFrame(&f, wire)
	require.Equal(t, outcomeDropped, outcome)
}

func TestFrameDropsWhenNotFromMaster(t *testing.T) {
	buf := make([]byte, 16)
	var f frame
	f.prepareForRead(buf)

	wire := buildWireFrame(hostFlags(true, false, false), ProfileRawData, nil)
	outcome := feedFrame(&f, wire)
	require.Equal(t, outcomeDropped, outcome)
}

func TestFrameDropsOnBadCRC(t *testing.T) {
	buf := make([]byte, 16)
	var f frame
	f.prepareForRead(buf)

	wire := buildWireFrame(hostFlags(true, true, false), ProfileRawData, []byte{0xAA})
	// Corrupt a payload byte after parity has already been computed.
	for i, b := range wire {
		if b == 0xAA {
			wire[i] = 0xAB
			break
		}
	}
	outcome := feedFrame(&f, wire)
	require.Equal(t, outcomeDropped, outcome)
}
