package protocol

// genericHeader is the packed, little-endian generic-service payload header
// (spec.md §4.4): version, service_id, attribute_id, type, error, length.
// Assembled byte-wise rather than via native struct layout, per the design
// note in spec.md §9.
type genericHeader struct {
	version     uint8
	serviceID   uint16
	attributeID uint16
	reqType     RequestType
	errorCode   uint8
	length      uint16
}

const genericHeaderSize = 9

func parseGenericHeader(buf []byte) (genericHeader, bool) {
	if len(buf) < genericHeaderSize {
		return genericHeader{}, false
	}
	h := genericHeader{
		version:     buf[0],
		serviceID:   uint16(buf[1]) | uint16(buf[2])<<8,
		attributeID: uint16(buf[3]) | uint16(buf[4])<<8,
		reqType:     RequestType(buf[5]),
		errorCode:   buf[6],
		length:      uint16(buf[7]) | uint16(buf[8])<<8,
	}
	return h, true
}

func appendGenericHeader(dst []byte, h genericHeader) []byte {
	dst = append(dst, h.version,
		byte(h.serviceID), byte(h.serviceID>>8),
		byte(h.attributeID), byte(h.attributeID>>8),
		byte(h.reqType), h.errorCode,
		byte(h.length), byte(h.length>>8))
	return dst
}

// dispatchResult reports what the dispatcher did with a validated frame.
type dispatchResult struct {
	surfaced    bool
	serviceID   uint16
	attributeID uint16
	length      int
	reqType     RequestType
}

// dispatch routes a freshly validated frame by profile. Link-control and
// the two well-known generic-service attributes are handled entirely
// inside the engine; everything else is surfaced to the caller.
func (e *Engine) dispatch() dispatchResult {
	switch e.frame.profile {
	case ProfileLinkControl:
		e.handleLinkControl()
		return dispatchResult{}
	case ProfileGenericService:
		return e.dispatchGenericService()
	case ProfileRawData:
		return e.dispatchRawData()
	default:
		return dispatchResult{}
	}
}

func (e *Engine) dispatchRawData() dispatchResult {
	n := e.frame.payloadLength()

	var reqType RequestType
	switch {
	case e.frame.isRead() && n > 0:
		reqType = RequestTypeWriteRead
	case e.frame.isRead():
		reqType = RequestTypeRead
	default:
		reqType = RequestTypeWrite
	}

	e.pending = pendingResponse{
		canRespond:  true,
		profile:     ProfileRawData,
		serviceID:   0,
		attributeID: 0,
		reqType:     reqType,
	}
	e.frame.readReady = false
	return dispatchResult{surfaced: true, serviceID: 0, attributeID: 0, length: n, reqType: reqType}
}

func (e *Engine) dispatchGenericService() dispatchResult {
	n := e.frame.payloadLength()
	header, ok := parseGenericHeader(e.frame.payload[:n])
	if !ok {
		// Malformed generic-service payload: too short to carry a header.
		// Treated like any other malformed frame — dropped silently.
		e.frame.prepareForRead(e.frame.payload)
		return dispatchResult{}
	}

	if header.serviceID == serviceDiscovery && header.attributeID == attributeServiceDiscovery {
		e.respondServiceDiscovery(header)
		return dispatchResult{}
	}
	if header.serviceID == serviceDiscovery && header.attributeID == attributeNotificationInfo {
		e.respondNotificationInfo(header)
		return dispatchResult{}
	}

	dataLen := int(header.length)
	available := n - genericHeaderSize
	if dataLen > available {
		dataLen = available
	}
	// Strip the header in place so the application sees only its data,
	// starting at the front of the caller's buffer.
	copy(e.frame.payload, e.frame.payload[genericHeaderSize:genericHeaderSize+dataLen])

	e.pending = pendingResponse{
		canRespond:  true,
		profile:     ProfileGenericService,
		serviceID:   header.serviceID,
		attributeID: header.attributeID,
		reqType:     header.reqType,
	}
	e.frame.readReady = false
	return dispatchResult{
		surfaced:    true,
		serviceID:   header.serviceID,
		attributeID: header.attributeID,
		length:      dataLen,
		reqType:     header.reqType,
	}
}

// respondServiceDiscovery answers the engine-intercepted (0x0101,0x0001)
// attribute with the integrator's configured service-ID list.
func (e *Engine) respondServiceDiscovery(req genericHeader) {
	data := make([]byte, 0, len(e.services)*2)
	for _, svc := range e.services {
		data = append(data, byte(svc), byte(svc>>8))
	}
	e.replyGenericService(req, data)
}

// respondNotificationInfo answers (0x0101,0x0002) with the service/attribute
// pair most recently passed to Notify.
func (e *Engine) respondNotificationInfo(req genericHeader) {
	data := []byte{
		byte(e.link.lastNotifyService), byte(e.link.lastNotifyService >> 8),
		byte(e.link.lastNotifyAttribute), byte(e.link.lastNotifyAttribute >> 8),
	}
	e.replyGenericService(req, data)
}

func (e *Engine) replyGenericService(req genericHeader, data []byte) {
	resp := genericHeader{
		version:     ProtocolVersion,
		serviceID:   req.serviceID,
		attributeID: req.attributeID,
		reqType:     req.reqType,
		errorCode:   0,
		length:      uint16(len(data)),
	}
	payload := appendGenericHeader(make([]byte, 0, genericHeaderSize+len(data)), resp)
	payload = append(payload, data...)
	e.transmitFrame(ProfileGenericService, 0, payload)
	e.frame.prepareForRead(e.frame.payload)
}

// handleLinkControl answers a profile-1 frame entirely inside the engine;
// see spec.md §4.4.
func (e *Engine) handleLinkControl() {
	n := e.frame.payloadLength()
	if n < 1 {
		e.frame.prepareForRead(e.frame.payload)
		return
	}
	reqType := linkControlType(e.frame.payload[0])
	switch reqType {
	case linkControlStatus:
		var status uint8
		if e.link.currentBaud != e.link.targetBaud {
			status = statusBaudRate
		} else {
			status = statusOk
			e.link.connected = true
		}
		e.transmitFrame(ProfileLinkControl, 0, []byte{byte(reqType), status})
	case linkControlProfiles:
		payload := []byte{byte(reqType)}
		for _, p := range e.supportedProfiles() {
			payload = append(payload, byte(p), byte(p>>8))
		}
		e.transmitFrame(ProfileLinkControl, 0, payload)
	case linkControlBaud:
		e.transmitFrame(ProfileLinkControl, 0, []byte{byte(reqType), baudAck})
		e.link.changeBaud(e.link.targetBaud)
	}
	e.frame.prepareForRead(e.frame.payload)
}

// supportedProfiles derives the advertised profile-ID list from the
// configured service list: RawData is enabled by a 0x0000 entry,
// GenericService by any entry above it.
func (e *Engine) supportedProfiles() []Profile {
	var profiles []Profile
	var hasRaw, hasGeneric bool
	for _, svc := range e.services {
		if svc == 0x0000 {
			hasRaw = true
		} else {
			hasGeneric = true
		}
	}
	if hasRaw {
		profiles = append(profiles, ProfileRawData)
	}
	if hasGeneric {
		profiles = append(profiles, ProfileGenericService)
	}
	return profiles
}
