package bridge

import (
	"fmt"
	"log"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/librescoot/smartstrap-accessory/pkg/protocol"
)

// Redis keys, carried over from the teacher's constants.go naming.
const (
	KeyVehicle         = "vehicle"
	KeyBatterySlot1    = "battery:0"
	KeyBatterySlot2    = "battery:1"
	KeyPowerManager    = "power-manager"
	KeyMileage         = "engine-ecu"
	KeyFirmwareVersion = "system"

	KeyCommandList = "scooter:smartstrap"
)

// Well-known generic-service addressing this bridge answers. Each maps one
// (service, attribute) pair to a Redis hash field.
const (
	ServiceVehicleState  = 0x0110
	attrVehicleState     = 1
	attrVehicleSeatbox   = 2
	attrVehicleHandlebar = 3

	ServiceScooterInfo = 0x0120
	attrMileage        = 1
	attrFirmwareVer    = 2

	ServiceBatterySlot1 = 0x0130
	ServiceBatterySlot2 = 0x0131
	attrBattState       = 1
	attrBattPresent     = 2
	attrBattCycleCount  = 3
	attrBattCharge      = 4

	ServicePowerManagement = 0x0140
	attrPowerState         = 1
)

// valueKind selects how an attribute's Redis-stored value round-trips
// through CBOR on the wire.
type valueKind int

const (
	kindInt valueKind = iota
	kindString
)

type attributeKey struct {
	serviceID   uint16
	attributeID uint16
}

// attributeBinding ties one generic-service attribute to the Redis hash
// field that holds its value, mirroring the Update*/handle* pairs in the
// teacher's redis_handlers.go and usock_handlers.go, but data-driven instead
// of one handwritten method per field.
type attributeBinding struct {
	redisKey   string
	redisField string
	kind       valueKind
	publish    bool
}

// Bridge connects a protocol.Engine to Redis: it answers generic-service
// attribute reads/writes from Redis state, and turns Redis pub/sub
// notifications and queued commands into engine-level requests, the same
// role pkg/service played between pkg/usock and pkg/redis for the teacher.
type Bridge struct {
	engine *protocol.Engine
	redis  *RedisClient

	bindings map[attributeKey]attributeBinding

	mu         sync.Mutex
	pendingRaw []byte
}

// New constructs a Bridge with the fixed librescoot attribute map wired in.
// The engine can be nil at construction time — call SetEngine once it
// exists, since NewEngine itself needs Services() from this Bridge.
func New(engine *protocol.Engine, redis *RedisClient) *Bridge {
	b := &Bridge{
		engine: engine,
		redis:  redis,
		bindings: map[attributeKey]attributeBinding{
			{ServiceVehicleState, attrVehicleState}:     {KeyVehicle, "state", kindInt, true},
			{ServiceVehicleState, attrVehicleSeatbox}:   {KeyVehicle, "seatbox:lock", kindInt, true},
			{ServiceVehicleState, attrVehicleHandlebar}: {KeyVehicle, "handlebar:lock-sensor", kindInt, true},

			{ServiceScooterInfo, attrMileage}:     {KeyMileage, "odometer", kindInt, true},
			{ServiceScooterInfo, attrFirmwareVer}: {KeyFirmwareVersion, "mdb-version", kindString, true},

			{ServiceBatterySlot1, attrBattState}:      {KeyBatterySlot1, "state", kindInt, true},
			{ServiceBatterySlot1, attrBattPresent}:    {KeyBatterySlot1, "present", kindInt, true},
			{ServiceBatterySlot1, attrBattCycleCount}: {KeyBatterySlot1, "cycle-count", kindInt, true},
			{ServiceBatterySlot1, attrBattCharge}:      {KeyBatterySlot1, "charge", kindInt, true},

			{ServiceBatterySlot2, attrBattState}:      {KeyBatterySlot2, "state", kindInt, true},
			{ServiceBatterySlot2, attrBattPresent}:    {KeyBatterySlot2, "present", kindInt, true},
			{ServiceBatterySlot2, attrBattCycleCount}: {KeyBatterySlot2, "cycle-count", kindInt, true},
			{ServiceBatterySlot2, attrBattCharge}:      {KeyBatterySlot2, "charge", kindInt, true},

			{ServicePowerManagement, attrPowerState}: {KeyPowerManager, "state", kindInt, false},
		},
	}
	return b
}

// SetEngine binds the Bridge to the Engine it drives notifications through.
// Must be called once before HandleRequest, QueueNotification, or
// NotifyAttribute are used.
func (b *Bridge) SetEngine(engine *protocol.Engine) {
	b.engine = engine
}

// Services returns the service IDs this bridge answers for — 0x0000
// (RawData) followed by every bound generic-service ID — for use as
// NewEngine's advertised service list.
func (b *Bridge) Services() []uint16 {
	seen := map[uint16]bool{0x0000: true}
	services := []uint16{0x0000}
	for k := range b.bindings {
		if !seen[k.serviceID] {
			seen[k.serviceID] = true
			services = append(services, k.serviceID)
		}
	}
	return services
}

// HandleRequest answers one surfaced engine request and returns the payload
// to hand to Engine.Write, plus whether the request succeeded.
func (b *Bridge) HandleRequest(serviceID, attributeID uint16, reqType protocol.RequestType, payload []byte) ([]byte, bool) {
	if serviceID == 0 {
		return b.handleRawData(reqType, payload)
	}

	binding, ok := b.bindings[attributeKey{serviceID, attributeID}]
	if !ok {
		log.Printf("bridge: request for unbound attribute (service=0x%04x attribute=0x%04x)", serviceID, attributeID)
		return nil, false
	}

	if reqType == protocol.RequestTypeWrite || reqType == protocol.RequestTypeWriteRead {
		if err := b.writeAttribute(binding, payload); err != nil {
			log.Printf("bridge: write %s/%s: %v", binding.redisKey, binding.redisField, err)
			return nil, false
		}
	}

	resp, err := b.readAttribute(binding)
	if err != nil {
		log.Printf("bridge: read %s/%s: %v", binding.redisKey, binding.redisField, err)
		return nil, false
	}
	return resp, true
}

func (b *Bridge) readAttribute(binding attributeBinding) ([]byte, error) {
	switch binding.kind {
	case kindString:
		v, err := b.redis.GetString(binding.redisKey, binding.redisField)
		if err != nil {
			v = ""
		}
		return cbor.Marshal(v)
	default:
		v, err := b.redis.GetInt(binding.redisKey, binding.redisField)
		if err != nil {
			v = 0
		}
		return cbor.Marshal(v)
	}
}

func (b *Bridge) writeAttribute(binding attributeBinding, payload []byte) error {
	switch binding.kind {
	case kindString:
		var v string
		if err := cbor.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("decode cbor string: %w", err)
		}
		if binding.publish {
			return b.redis.WriteAndPublishString(binding.redisKey, binding.redisField, v)
		}
		return b.redis.WriteString(binding.redisKey, binding.redisField, v)
	default:
		var v int
		if err := cbor.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("decode cbor int: %w", err)
		}
		if binding.publish {
			return b.redis.WriteAndPublishString(binding.redisKey, binding.redisField, fmt.Sprintf("%d", v))
		}
		return b.redis.WriteInt(binding.redisKey, binding.redisField, v)
	}
}

// rawCommand is the CBOR shape exchanged over the RawData profile (service
// 0): a topic/value pair, the same "scooter:state unlock" convention the
// teacher's handleEventMessage used for nRF-originated events, generalized
// to carry accessory commands in both directions.
type rawCommand struct {
	Topic string `cbor:"topic"`
	Value string `cbor:"value"`
}

func (b *Bridge) handleRawData(reqType protocol.RequestType, payload []byte) ([]byte, bool) {
	if reqType == protocol.RequestTypeWrite || reqType == protocol.RequestTypeWriteRead {
		var cmd rawCommand
		if len(payload) > 0 {
			if err := cbor.Unmarshal(payload, &cmd); err != nil {
				log.Printf("bridge: decode raw command: %v", err)
				return nil, false
			}
			if err := b.redis.LPush(KeyCommandList, fmt.Sprintf("%s:%s", cmd.Topic, cmd.Value)); err != nil {
				log.Printf("bridge: lpush command: %v", err)
				return nil, false
			}
		}
	}

	b.mu.Lock()
	out := b.pendingRaw
	b.pendingRaw = nil
	b.mu.Unlock()
	if out == nil {
		out = []byte{}
	}
	return out, true
}

// QueueNotification stages a CBOR-encoded raw-data payload to be returned
// on the accessory's next RawData read, and wakes the host with the
// three-break notification burst so it knows to poll for it.
func (b *Bridge) QueueNotification(topic, value string) {
	encoded, err := cbor.Marshal(rawCommand{Topic: topic, Value: value})
	if err != nil {
		log.Printf("bridge: encode notification: %v", err)
		return
	}
	b.mu.Lock()
	b.pendingRaw = encoded
	b.mu.Unlock()
	b.engine.Notify(0, 0)
}

// NotifyAttribute wakes the host about a change to a bound generic-service
// attribute, for use from a Redis pub/sub subscriber.
func (b *Bridge) NotifyAttribute(serviceID, attributeID uint16) {
	b.engine.Notify(serviceID, attributeID)
}

// FindBinding looks up the (service, attribute) pair bound to a given Redis
// key/field, for routing an inbound pub/sub message to a Notify call — the
// bridge's mirror of the teacher's SubscribeToRedisChannels channel-to-field
// switch.
func (b *Bridge) FindBinding(redisKey, redisField string) (serviceID, attributeID uint16, ok bool) {
	for k, binding := range b.bindings {
		if binding.redisKey == redisKey && binding.redisField == redisField {
			return k.serviceID, k.attributeID, true
		}
	}
	return 0, 0, false
}
