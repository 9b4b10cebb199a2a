package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/librescoot/smartstrap-accessory/pkg/bridge"
	"github.com/librescoot/smartstrap-accessory/pkg/protocol"
	"github.com/librescoot/smartstrap-accessory/pkg/transport"
)

// startTime anchors the millisecond clock the engine uses for its
// inactivity timeout; only elapsed time matters, not wall-clock value.
var startTime = time.Now()

func nowMs() uint32 {
	return uint32(time.Since(startTime).Milliseconds())
}

var (
	serialDevice = flag.String("serial", "/dev/ttymxc2", "Serial device path for the smartstrap accessory port")
	targetBaud   = flag.Int("baud", 230400, "Baud rate to negotiate up to once the host accepts it")
	redisAddr    = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass    = flag.String("redis-pass", "", "Redis password")
	redisDB      = flag.Int("redis-db", 0, "Redis database number")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting smartstrap accessory daemon")
	log.Printf("Serial device: %s", *serialDevice)
	log.Printf("Target baud rate: %d", *targetBaud)
	log.Printf("Redis address: %s", *redisAddr)

	if !protocol.IsValidBaud(*targetBaud) {
		log.Fatalf("invalid target baud rate: %d", *targetBaud)
	}

	redisClient, err := bridge.NewRedisClient(*redisAddr, *redisPass, *redisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("Connected to Redis")

	port, err := transport.Open(*serialDevice)
	if err != nil {
		log.Fatalf("Failed to open serial port: %v", err)
	}
	defer port.Close()
	log.Printf("Opened serial port %s", *serialDevice)

	br := bridge.New(nil, redisClient) // engine wired below, after construction
	engine := protocol.NewEngine(port, *targetBaud, br.Services())
	br.SetEngine(engine)

	stopCh := make(chan struct{})

	buf := make([]byte, protocol.MinPayloadBufferSize(256))
	engine.PrepareForRead(buf)

	go func() {
		err := port.ReadLoop(stopCh, func(b byte) {
			serviceID, attributeID, length, reqType, ok := engine.HandleByte(b, nowMs())
			if !ok {
				return
			}
			resp, success := br.HandleRequest(serviceID, attributeID, reqType, buf[:length])
			engine.Write(success, resp)
			engine.PrepareForRead(buf)
		})
		if err != nil {
			log.Printf("serial read loop exited: %v", err)
		}
	}()

	go watchAttributeChanges(redisClient, br)
	go watchCommandQueue(redisClient, br)

	log.Printf("Smartstrap accessory daemon ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Shutting down...")
	close(stopCh)
}

// watchAttributeChanges subscribes to the Redis channels backing every
// bound generic-service attribute and notifies the host whenever one
// changes, mirroring the teacher's SubscribeToRedisChannels loop.
func watchAttributeChanges(redisClient *bridge.RedisClient, br *bridge.Bridge) {
	channels := []string{
		bridge.KeyVehicle,
		bridge.KeyBatterySlot1,
		bridge.KeyBatterySlot2,
		bridge.KeyPowerManager,
		bridge.KeyMileage,
		bridge.KeyFirmwareVersion,
	}
	for _, channel := range channels {
		go func(ch string) {
			messages, closeFunc := redisClient.Subscribe(ch)
			defer closeFunc()
			for msg := range messages {
				serviceID, attributeID, ok := br.FindBinding(ch, msg.Payload)
				if !ok {
					continue
				}
				br.NotifyAttribute(serviceID, attributeID)
			}
		}(channel)
	}
}

// watchCommandQueue blocks on the outbound command list and stages each
// entry as a RawData notification, mirroring the teacher's
// WatchRedisCommands BRPOP loop.
func watchCommandQueue(redisClient *bridge.RedisClient, br *bridge.Bridge) {
	for {
		result, err := redisClient.BRPop(0, bridge.KeyCommandList)
		if err != nil {
			log.Printf("command queue watcher: %v", err)
			continue
		}
		if len(result) != 2 {
			continue
		}
		br.QueueNotification("command", result[1])
	}
}
