package protocol

import "sync"

// Engine is the integrator-facing façade described in spec.md §4.6. The
// zero value is not usable; construct one with NewEngine. spec.md §5
// describes a single cooperative main loop, but an integrator's read loop,
// Redis pub/sub watcher, and command-queue watcher (see cmd/smartstrap-
// accessoryd) commonly call HandleByte/Write and Notify from separate
// goroutines; mu serializes all of them so frame transmission stays atomic
// on the wire (§6: "the engine must never mix command order across a frame
// boundary") and the pending-notification fields link.lastNotifyService/
// lastNotifyAttribute never race, the same mutex-per-shared-resource
// pattern pkg/transport.Serial uses for its own port access.
type Engine struct {
	mu sync.Mutex

	services []uint16

	frame frame
	link  link

	pending pendingResponse
}

// pendingResponse is the "at most one outstanding request" slot from
// spec.md §3.
type pendingResponse struct {
	canRespond  bool
	profile     Profile
	serviceID   uint16
	attributeID uint16
	reqType     RequestType
}

// NewEngine records the integrator's transport callback, target baud, and
// advertised service list, and forces the transport to 9600 baud — the
// facade's init operation. services is read-only and must outlive the
// Engine.
func NewEngine(cb Callback, targetBaud int, services []uint16) *Engine {
	if !IsValidBaud(targetBaud) {
		targetBaud = 9600
	}
	e := &Engine{services: services}
	e.link.init(cb, targetBaud)
	return e
}

// PrepareForRead resets the assembler to a fresh frame bound to buf.
// Calling it twice in a row is equivalent to calling it once; it also
// cancels any outstanding pending-response slot, per the facade's
// "implicitly... until the next prepare_for_read" rule.
func (e *Engine) PrepareForRead(buf []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frame.prepareForRead(buf)
	e.pending = pendingResponse{}
}

// HandleByte feeds one received wire byte into the engine. It returns true
// at most once per application-visible frame, with serviceID, attributeID,
// length, and reqType describing the request; it returns false when the
// frame is incomplete, was dropped, or was consumed internally (link
// control, or an engine-intercepted generic-service attribute). timeMs is
// the caller's monotonic millisecond clock, used for the inactivity
// timeout.
func (e *Engine) HandleByte(b byte, timeMs uint32) (serviceID uint16, attributeID uint16, length int, reqType RequestType, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.link.checkTimeout(timeMs)

	if !e.frame.readReady {
		return 0, 0, 0, 0, false
	}

	switch e.frame.handleByte(b) {
	case outcomeNeedMore:
		return 0, 0, 0, 0, false
	case outcomeDropped:
		e.frame.prepareForRead(e.frame.payload)
		return 0, 0, 0, 0, false
	case outcomeComplete:
		e.link.touch(timeMs)
		result := e.dispatch()
		if !result.surfaced {
			return 0, 0, 0, 0, false
		}
		return result.serviceID, result.attributeID, result.length, result.reqType, true
	default:
		return 0, 0, 0, 0, false
	}
}

// validAddressing applies the write() addressing rule from spec.md §7:
// service 0 (RawData) only ever pairs with attribute 0, and services in
// (0, 0x00FF) are rejected — 0x00FF itself is the first non-zero service
// ID accepted.
func validAddressing(serviceID, attributeID uint16) bool {
	if serviceID == 0 {
		return attributeID == 0
	}
	return serviceID >= 0x00FF
}

// Write emits a response frame on the profile matching the pending
// request and clears the pending-response slot. It returns false if no
// request is pending or the pending request's addressing is invalid.
func (e *Engine) Write(success bool, payload []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.pending.canRespond {
		return false
	}
	if !validAddressing(e.pending.serviceID, e.pending.attributeID) {
		return false
	}

	switch e.pending.profile {
	case ProfileRawData:
		e.transmitFrame(ProfileRawData, 0, payload)
	case ProfileGenericService:
		errorCode := uint8(0)
		if !success {
			errorCode = 1
		}
		h := genericHeader{
			version:     ProtocolVersion,
			serviceID:   e.pending.serviceID,
			attributeID: e.pending.attributeID,
			reqType:     e.pending.reqType,
			errorCode:   errorCode,
			length:      uint16(len(payload)),
		}
		body := appendGenericHeader(make([]byte, 0, genericHeaderSize+len(payload)), h)
		body = append(body, payload...)
		e.transmitFrame(ProfileGenericService, 0, body)
	default:
		return false
	}

	e.pending.canRespond = false
	e.frame.prepareForRead(e.frame.payload)
	return true
}

// Notify sends the three-break wakeup burst followed by an empty
// notification frame on the profile matching serviceID, per spec.md §4.5.
// The host is expected to respond by polling the notification-info
// attribute, which HandleByte answers internally from the values recorded
// here.
func (e *Engine) Notify(serviceID, attributeID uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()

	profile := ProfileGenericService
	if serviceID == 0 {
		profile = ProfileRawData
	}
	e.link.lastNotifyService = serviceID
	e.link.lastNotifyAttribute = attributeID

	e.link.cb.WriteBreak()
	e.link.cb.WriteBreak()
	e.link.cb.WriteBreak()

	e.transmitFrame(profile, flagIsNotification, nil)
}

// IsConnected reports the current connection state, applying the same
// 10-second inactivity check HandleByte performs.
func (e *Engine) IsConnected(timeMs uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.link.checkTimeout(timeMs)
}

// transmitFrame encodes and sends one complete frame: FLAG, escaped
// header+payload+parity, FLAG, with the transport held in TX-enabled mode
// for the duration — see original_source/utility/PebbleSerial.c's
// prv_write_internal, generalized from a 2-byte header to this revision's
// 7-byte one.
func (e *Engine) transmitFrame(profile Profile, flags uint32, payload []byte) {
	body := make([]byte, 0, headerLength+len(payload))
	body = append(body, ProtocolVersion)
	body = append(body, byte(flags), byte(flags>>8), byte(flags>>16), byte(flags>>24))
	body = append(body, byte(profile), byte(profile>>8))
	body = append(body, payload...)

	parity := crc8Parity(body)

	e.link.cb.SetTxEnabled(true)
	e.link.cb.WriteByte(flagByte)
	for _, b := range body {
		e.writeEscaped(b)
	}
	e.writeEscaped(parity)
	e.link.cb.WriteByte(flagByte)
	e.link.cb.SetTxEnabled(false)
}

func (e *Engine) writeEscaped(b byte) {
	if encode(&b) {
		e.link.cb.WriteByte(escapeByte)
	}
	e.link.cb.WriteByte(b)
}
