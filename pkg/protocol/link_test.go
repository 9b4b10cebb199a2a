package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkInitForcesNineSixHundredBaud(t *testing.T) {
	tp := newFakeTransport()
	tp.baud = 115200
	var l link
	l.init(tp, 250000)

	require.Equal(t, 9600, tp.baud)
	require.Equal(t, 9600, l.currentBaud)
	require.Equal(t, 250000, l.targetBaud)
	require.False(t, l.connected)
}

func TestLinkChangeBaudIsNoOpWhenUnchanged(t *testing.T) {
	tp := newFakeTransport()
	var l link
	l.init(tp, 9600)

	l.changeBaud(9600)
	require.Equal(t, []int{9600}, tp.baudChanges) // only init's own SetBaudRate
	require.Zero(t, tp.txPulses)
}

func TestLinkChangeBaudPulsesTxDirection(t *testing.T) {
	tp := newFakeTransport()
	var l link
	l.init(tp, 9600)

	l.changeBaud(115200)
	require.Equal(t, []int{9600, 115200}, tp.baudChanges)
	require.Equal(t, 1, tp.txPulses)
	require.Equal(t, 115200, l.currentBaud)
	require.False(t, tp.txEnabled)
}

func TestLinkCheckTimeoutBeforeFirstMessage(t *testing.T) {
	tp := newFakeTransport()
	var l link
	l.init(tp, 9600)

	require.False(t, l.checkTimeout(50_000))
	require.Equal(t, []int{9600}, tp.baudChanges) // only init's own SetBaudRate
}

func TestLinkCheckTimeoutExpiresAndFallsBack(t *testing.T) {
	tp := newFakeTransport()
	var l link
	l.init(tp, 250000)
	l.changeBaud(250000)
	l.connected = true
	l.touch(1_000)

	require.True(t, l.checkTimeout(1_000+connectionTimeoutMs))
	require.False(t, l.checkTimeout(1_000+connectionTimeoutMs+1))
	require.False(t, l.connected)
	require.Equal(t, 9600, l.currentBaud)
	require.Equal(t, 9600, tp.baud)
}

func TestLinkCheckTimeoutHandlesClockWraparound(t *testing.T) {
	tp := newFakeTransport()
	var l link
	l.init(tp, 9600)
	l.connected = true
	l.touch(4_000_000_000)

	// timeMs wrapped to a small value; must not be mistaken for a multi-
	// billion millisecond gap.
	require.True(t, l.checkTimeout(100))
	require.True(t, l.connected)
	require.Equal(t, uint32(100), l.lastMessageTime)
}
