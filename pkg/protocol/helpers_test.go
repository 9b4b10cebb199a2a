package protocol

// fakeTransport is a Callback that records every command the engine issues,
// for assertions in tests — grounded in the teacher's style of driving a
// real transport, minus the actual hardware.
type fakeTransport struct {
	baud        int
	txEnabled   bool
	written     []byte
	breaks      int
	baudChanges []int
	txPulses    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{baud: 9600}
}

func (f *fakeTransport) SetBaudRate(baud int) {
	f.baud = baud
	f.baudChanges = append(f.baudChanges, baud)
}

func (f *fakeTransport) SetTxEnabled(enabled bool) {
	f.txEnabled = enabled
	if !enabled {
		f.txPulses++
	}
}

func (f *fakeTransport) WriteByte(b byte) {
	f.written = append(f.written, b)
}

func (f *fakeTransport) WriteBreak() {
	f.breaks++
}

// lastFrame returns the most recently transmitted FLAG-delimited, escaped
// frame body (decoded), or nil if none was written.
func (f *fakeTransport) lastFrame() []byte {
	// Find the last pair of FLAG bytes bracketing a frame.
	end := -1
	for i := len(f.written) - 1; i >= 0; i-- {
		if f.written[i] == flagByte {
			end = i
			break
		}
	}
	if end <= 0 {
		return nil
	}
	start := -1
	for i := end - 1; i >= 0; i-- {
		if f.written[i] == flagByte {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	var c codec
	var out []byte
	for _, b := range f.written[start+1 : end] {
		bb := b
		r := c.decode(&bb)
		if r.shouldStore {
			out = append(out, bb)
		}
	}
	return out
}

// allFrames splits the transport's written bytes into every FLAG-delimited,
// escaped frame body (decoded), in transmission order. Used to check that
// concurrent callers never interleave two frames' bytes on the wire (spec
// §6): each returned frame's bytes came from a single, uninterrupted
// transmitFrame call if and only if its CRC residual is zero.
func (f *fakeTransport) allFrames() [][]byte {
	var frames [][]byte
	var c codec
	var cur []byte
	open := false
	for _, b := range f.written {
		bb := b
		r := c.decode(&bb)
		switch {
		case r.complete:
			if open {
				frames = append(frames, cur)
			}
			cur = nil
			open = !open
		case r.shouldStore:
			cur = append(cur, bb)
		}
	}
	return frames
}

// buildWireFrame constructs a complete escaped, FLAG-delimited byte stream
// for a frame with the given flags/profile/payload, with a correct
// trailing parity byte — the test-side mirror of Engine.transmitFrame.
func buildWireFrame(flags uint32, profile Profile, payload []byte) []byte {
	body := make([]byte, 0, headerLength+len(payload)+1)
	body = append(body, ProtocolVersion)
	body = append(body, byte(flags), byte(flags>>8), byte(flags>>16), byte(flags>>24))
	body = append(body, byte(profile), byte(profile>>8))
	body = append(body, payload...)
	parity := crc8Parity(body)
	body = append(body, parity)

	out := []byte{flagByte}
	for _, b := range body {
		bb := b
		if encode(&bb) {
			out = append(out, escapeByte)
		}
		out = append(out, bb)
	}
	out = append(out, flagByte)
	return out
}

// feedBytes pushes every byte of wire through e.HandleByte at a fixed
// timestamp and returns the result of the one call that returns ok=true, if
// any.
func feedBytes(e *Engine, wire []byte, timeMs uint32) (serviceID, attributeID uint16, length int, reqType RequestType, ok bool) {
	for _, b := range wire {
		sid, aid, n, rt, done := e.HandleByte(b, timeMs)
		if done {
			return sid, aid, n, rt, true
		}
	}
	return 0, 0, 0, 0, false
}

func hostFlags(isRead, isMaster, isNotification bool) uint32 {
	var f uint32
	if isRead {
		f |= flagIsRead
	}
	if isMaster {
		f |= flagIsMaster
	}
	if isNotification {
		f |= flagIsNotification
	}
	return f
}
