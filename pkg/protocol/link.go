package protocol

// link owns the baud-negotiation and connection-tracking state described in
// spec.md §4.5 — the timeout-driven half of the engine that has no
// counterpart in the original_source/ C (only the older, status-only
// revision survives there), so its shape follows §4.5 and §6 directly.
type link struct {
	cb Callback

	currentBaud int
	targetBaud  int
	connected   bool

	haveLastMessage bool
	lastMessageTime uint32

	lastNotifyService   uint16
	lastNotifyAttribute uint16
}

const connectionTimeoutMs = 10_000

func (l *link) init(cb Callback, targetBaud int) {
	l.cb = cb
	l.targetBaud = targetBaud
	l.currentBaud = 9600
	l.connected = false
	l.haveLastMessage = false
	cb.SetBaudRate(9600)
}

// changeBaud moves the transport from its current baud to to, pulsing the
// TX-direction line so the hardware settles. Re-entering the currently
// configured baud is a no-op.
func (l *link) changeBaud(to int) {
	if to == l.currentBaud {
		return
	}
	l.cb.SetBaudRate(to)
	l.cb.SetTxEnabled(true)
	l.cb.SetTxEnabled(false)
	l.currentBaud = to
}

// touch records timeMs as the timestamp of the most recently observed valid
// host frame.
func (l *link) touch(timeMs uint32) {
	l.haveLastMessage = true
	l.lastMessageTime = timeMs
}

// checkTimeout applies the 10-second inactivity rule and returns the
// resulting connection state. It is called both from handleByte (every
// byte) and from IsConnected (on demand) so the two never disagree.
func (l *link) checkTimeout(timeMs uint32) bool {
	if !l.haveLastMessage {
		return l.connected
	}
	if timeMs < l.lastMessageTime {
		// Wrap-around: treat this call as the new reference point rather
		// than declaring a bogus multi-billion-ms gap.
		l.lastMessageTime = timeMs
		return l.connected
	}
	if timeMs-l.lastMessageTime > connectionTimeoutMs {
		l.connected = false
		l.changeBaud(9600)
	}
	return l.connected
}
