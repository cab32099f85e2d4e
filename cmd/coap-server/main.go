// Command coap-server runs a CoAP endpoint that serves ".well-known/core"
// discovery plus one observable resource, over UDP.
package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/junbin-yang/coapcore/pkg/coap"
	"github.com/junbin-yang/coapcore/pkg/utils/config"
	log "github.com/junbin-yang/coapcore/pkg/utils/logger"
)

func main() {
	cfg := config.Parse()

	socket, err := coap.NewUDPSocket(cfg.ListenAddr)
	if err != nil {
		log.Fatalf("[SERVER] failed to bind %s: %v", cfg.ListenAddr, err)
	}
	if err := coap.JoinAllCoAPNodesGroups(socket); err != nil {
		log.Warnf("[SERVER] multicast join incomplete: %v", err)
	}

	server := coap.NewServer(socket, coap.WithLogger(log.Adapter{}))

	registerDeviceResource(server, cfg)
	registerClock(server)

	server.Start()
	log.Infof("[SERVER] listening on %s as device %s (%s)", cfg.ListenAddr, cfg.DeviceID, cfg.DeviceName)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("[SERVER] shutting down")
	server.Stop()
}

// registerDeviceResource exposes this device's identity at "/oc/d",
// advertised through ".well-known/core".
func registerDeviceResource(server *coap.Server, cfg *config.Config) {
	server.AddResource("/oc/d", true, false, func(req *coap.Packet, addr net.Addr) *coap.Packet {
		resp := coap.NewPacket()
		if req.Code() != coap.GET {
			resp.SetCode(coap.MethodNotAllowed)
			return resp
		}
		resp.SetCode(coap.Content)
		_ = resp.SetOption(coap.ContentFormat, []byte{byte(coap.AppJSON)})
		resp.AppendPayload([]byte(`{"di":"` + cfg.DeviceID + `","n":"` + cfg.DeviceName + `"}`))
		return resp
	})
}

// registerClock exposes an observable resource that ticks once a second,
// useful for exercising the Observe machinery end-to-end.
func registerClock(server *coap.Server) {
	res := server.AddResource("/clock", true, true, func(req *coap.Packet, addr net.Addr) *coap.Packet {
		resp := coap.NewPacket()
		if req.Code() != coap.GET {
			resp.SetCode(coap.MethodNotAllowed)
			return resp
		}
		resp.SetCode(coap.Content)
		resp.AppendPayload([]byte(time.Now().UTC().Format(time.RFC3339)))
		return resp
	})

	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for range t.C {
			server.Notify(res, coap.Content, []byte(time.Now().UTC().Format(time.RFC3339)), coap.TextPlain)
		}
	}()
}
