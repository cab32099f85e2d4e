// Command oic-client discovers OIC devices on the local multicast groups,
// prints each one found, and observes a resource on the first one,
// printing notifications as they arrive.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/junbin-yang/coapcore/pkg/coap"
	"github.com/junbin-yang/coapcore/pkg/oic"
	"github.com/junbin-yang/coapcore/pkg/utils/config"
	log "github.com/junbin-yang/coapcore/pkg/utils/logger"
)

const coapPort = 5683

func main() {
	cfg := config.Parse()

	socket, err := coap.NewUDPSocket(":0")
	if err != nil {
		log.Fatalf("[CLIENT] failed to bind: %v", err)
	}
	server := coap.NewServer(socket, coap.WithLogger(log.Adapter{}))
	server.Start()
	defer server.Stop()

	client := oic.NewClient(server)

	groups := multicastTargets(cfg.Interface)
	log.Infof("[CLIENT] discovering against %d multicast group(s)", len(groups))

	devices, err := client.Discover(groups, oic.DiscoverOptions{Timeout: 3 * time.Second})
	if err != nil {
		log.Errorf("[CLIENT] discover failed: %v", err)
		return
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return
	}

	for _, d := range devices {
		fmt.Printf("found %s at %s (href=%s, rt=%v)\n", d.DeviceID, d.Address, d.Href, d.ResourceTypes)
	}

	first := devices[0]
	addr, err := net.ResolveUDPAddr("udp", first.Address)
	if err != nil {
		log.Errorf("[CLIENT] bad address %s: %v", first.Address, err)
		return
	}

	obs := client.Observe(addr, "/clock", func(env *oic.Envelope) {
		fmt.Printf("notify from %s: %v\n", first.Address, env.Representation)
	})
	defer obs.Cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

func multicastTargets(iface string) []net.Addr {
	addrs := []net.Addr{
		&net.UDPAddr{IP: coap.AllCoAPNodesIPv4, Port: coapPort},
		&net.UDPAddr{IP: coap.AllCoAPNodesIPv6LinkLocal, Port: coapPort},
	}
	_ = iface // a future revision may restrict discovery to one interface's zone
	return addrs
}
