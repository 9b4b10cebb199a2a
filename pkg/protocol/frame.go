package protocol

// frame is the in-memory record of one decoded body, from the first byte
// after the opening FLAG through (but not including) the closing FLAG.
//
// Byte placement is driven entirely by length: the first byte is version,
// the next four are the little-endian flags field, the next two are the
// little-endian profile field, and everything after offset 7 is payload
// followed by one trailing parity byte. Because the parity byte cannot be
// told apart from payload at arrival time, the assembler holds a one-byte
// lookahead (footerByte) and commits it into the payload buffer only once
// it learns a further byte has arrived — mirroring
// original_source/utility/PebbleSerial.c's parity_buffer trick, generalized
// from that file's 2-byte header to the 7-byte header this protocol
// revision uses.
type frame struct {
	codec codec

	version uint8
	flags   uint32
	profile Profile

	payload    []byte // caller-owned backing buffer
	capacity   int
	length     int // decoded body bytes seen so far, header + payload + trailing parity
	footerByte byte

	crc uint8

	shouldDrop bool
	readReady  bool
}

// prepareForRead resets the assembler to a fresh frame bound to buf. Calling
// it twice in a row is equivalent to calling it once.
func (f *frame) prepareForRead(buf []byte) {
	f.codec.reset()
	f.version = 0
	f.flags = 0
	f.profile = ProfileInvalid
	f.payload = buf
	f.capacity = len(buf)
	f.length = 0
	f.footerByte = 0
	f.crc = 0
	f.shouldDrop = false
	f.readReady = true
}

// frameOutcome reports what handleByte accomplished with one wire byte.
type frameOutcome int

const (
	outcomeNeedMore frameOutcome = iota
	outcomeDropped
	outcomeComplete
)

// handleByte advances the assembler by one already-dequeued wire byte
// (FLAG included) and reports whether a frame just completed. On
// outcomeComplete, payloadLength() gives the number of valid payload bytes
// in f.payload.
func (f *frame) handleByte(b byte) frameOutcome {
	if b == flagByte {
		if f.length == 0 {
			// Opening flag (or a repeated one before any body byte arrived).
			return outcomeNeedMore
		}
		result := f.codec.decode(&b)
		if result.encodingError {
			f.shouldDrop = true
		}
		if f.shouldDrop {
			return outcomeDropped
		}
		if !f.validate() {
			return outcomeDropped
		}
		return outcomeComplete
	}

	// The escape decoder keeps running even for an already-dropped frame:
	// its internal escape-pending bit must stay correct so a later escaped
	// FLAG or ESCAPE byte inside the discarded frame isn't mistaken for the
	// real end of frame.
	wasDropped := f.shouldDrop
	result := f.codec.decode(&b)
	if result.encodingError {
		f.shouldDrop = true
	}
	if !result.shouldStore {
		return outcomeNeedMore
	}

	// Per §4.3, an overrun keeps the CRC accumulator and length counter
	// advancing so end-of-frame detection still works, even though nothing
	// more is written to the caller's buffer.
	f.crc = crc8Update(f.crc, b)
	if !wasDropped {
		f.placeByte(b)
	}
	f.length++
	return outcomeNeedMore
}

// placeByte routes one decoded body byte into the header fields or the
// payload/footer lookahead, by current length.
func (f *frame) placeByte(b byte) {
	switch {
	case f.length == 0:
		f.version = b
	case f.length < 5:
		shift := uint((f.length - 1) * 8)
		f.flags = (f.flags &^ (uint32(0xff) << shift)) | uint32(b)<<shift
	case f.length < headerLength:
		shift := uint((f.length - 5) * 8)
		f.profile = Profile((uint32(f.profile) &^ (uint32(0xff) << shift)) | uint32(b)<<shift)
	default:
		// payloadLength is the number of payload bytes that would exist if
		// the frame ended right before this byte — the same quantity
		// original_source/utility/PebbleSerial.c calls payload_length,
		// generalized from its 2-byte header offset to this protocol
		// revision's 7-byte header.
		payloadLength := f.length - headerLength
		if payloadLength > f.capacity {
			f.shouldDrop = true
			// The CRC has already advanced and handleByte still advances
			// length after this returns, so end-of-frame detection still
			// works; the buffer is left untouched.
			return
		}
		if payloadLength > 0 {
			// Commit the previously-held byte now that we know it wasn't
			// the trailing parity byte after all.
			f.payload[payloadLength-1] = f.footerByte
		}
		f.footerByte = b
	}
}

// payloadLength returns the number of payload bytes committed into
// f.payload (excluding the trailing parity byte, which is never written
// there).
func (f *frame) payloadLength() int {
	if f.length <= headerLength {
		return 0
	}
	return f.length - headerLength - 1
}

// validate applies §4.3's end-of-frame acceptance rule.
func (f *frame) validate() bool {
	if f.shouldDrop {
		return false
	}
	if f.version == 0 || f.version > ProtocolVersion {
		return false
	}
	if f.flags&flagIsMaster == 0 {
		return false
	}
	if f.flags&flagsReservedMask != 0 {
		return false
	}
	switch f.profile {
	case ProfileLinkControl, ProfileRawData, ProfileGenericService:
	default:
		return false
	}
	if f.length < frameMinLength {
		return false
	}
	if f.crc != 0 {
		return false
	}
	return true
}

func (f *frame) isRead() bool         { return f.flags&flagIsRead != 0 }
func (f *frame) isNotification() bool { return f.flags&flagIsNotification != 0 }
