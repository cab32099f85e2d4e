package oic

import (
	"net"
	"sync"
	"time"

	"github.com/junbin-yang/coapcore/pkg/coap"
)

// WellKnownPath is the OCF multicast discovery resource.
var WellKnownPath = []string{"oc", "core"}

// pollInterval is how often Client.Observe re-issues a plain GET against
// a resource whose server never confirms the Observe registration —
// grounded on the teacher's discovery loop, which re-broadcasts on a
// fixed cadence rather than trusting a single round-trip.
const pollInterval = 10 * time.Second

// Client is an OIC client built on one coap.Server: it multicasts
// discovery requests, issues unicast GET/POST requests and observes
// resources, unwrapping every payload as a JSON Envelope.
type Client struct {
	server *coap.Server
}

// NewClient wraps server, which the caller is responsible for Start()ing
// and Stop()ing.
func NewClient(server *coap.Server) *Client {
	return &Client{server: server}
}

// DiscoverOptions filters a discovery request by resource type and
// interface, mirroring the "rt="/"if=" URI-Query parameters of RFC 7252
// resource discovery as specialized by OCF.
type DiscoverOptions struct {
	ResourceType string
	Interface    string
	Timeout      time.Duration
}

// Discover multicasts a GET to "/oc/core" on every joined group and
// collects DeviceInfo from every distinct reply received before opts.Timeout
// elapses (0 defaults to 3 seconds).
func (c *Client) Discover(groups []net.Addr, opts DiscoverOptions) ([]DeviceInfo, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	var mu sync.Mutex
	var found []DeviceInfo
	seen := make(map[string]bool)

	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }
	timer := time.AfterFunc(timeout, closeDone)
	defer timer.Stop()

	onReply := func(addr net.Addr) func(*coap.Packet) {
		return func(reply *coap.Packet) {
			if reply == nil {
				return
			}
			defer reply.Release()
			env, err := UnmarshalEnvelope(reply.Payload())
			if err != nil {
				return
			}
			info := DeviceInfo{
				DeviceID:      env.DeviceID,
				Href:          env.Href(),
				ResourceTypes: env.ResourceTypes,
				Interfaces:    env.Interfaces,
				Address:       addr.String(),
			}
			mu.Lock()
			key := info.Address + "#" + info.Href
			if !seen[key] {
				seen[key] = true
				found = append(found, info)
			}
			mu.Unlock()
		}
	}

	for _, g := range groups {
		req := coap.NewPacket()
		req.SetType(coap.NonConfirmable)
		req.SetCode(coap.GET)
		_ = req.SetPath(WellKnownPath)
		if opts.ResourceType != "" {
			_ = req.AddOption(coap.URIQuery, []byte("rt="+opts.ResourceType))
		}
		if opts.Interface != "" {
			_ = req.AddOption(coap.URIQuery, []byte("if="+opts.Interface))
		}
		_ = req.AddOption(coap.Accept, encodeMediaType(coap.AppJSON))
		c.server.Request(req, g, onReply(g))
		req.Release()
	}

	<-done
	return found, nil
}

// Get issues a unicast GET against href on addr and returns the parsed
// representation.
func (c *Client) Get(addr net.Addr, href string) (*Envelope, error) {
	req := coap.NewPacket()
	req.SetType(coap.Confirmable)
	req.SetCode(coap.GET)
	_ = req.SetPath(coap.SplitPath(href))
	_ = req.AddOption(coap.Accept, encodeMediaType(coap.AppJSON))
	defer req.Release()

	return c.roundTrip(req, addr)
}

// Post issues a unicast POST against href on addr carrying rep as its
// JSON-wrapped body.
func (c *Client) Post(addr net.Addr, href string, rep map[string]interface{}) (*Envelope, error) {
	body, err := MarshalEnvelope(href, rep, nil, nil)
	if err != nil {
		return nil, err
	}

	req := coap.NewPacket()
	req.SetType(coap.Confirmable)
	req.SetCode(coap.POST)
	_ = req.SetPath(coap.SplitPath(href))
	_ = req.AddOption(coap.ContentFormat, encodeMediaType(coap.AppJSON))
	req.AppendPayload(body)
	defer req.Release()

	return c.roundTrip(req, addr)
}

func (c *Client) roundTrip(req *coap.Packet, addr net.Addr) (*Envelope, error) {
	type result struct {
		env *Envelope
		err error
	}
	ch := make(chan result, 1)
	c.server.Request(req, addr, func(reply *coap.Packet) {
		if reply == nil {
			ch <- result{err: coap.ErrTimeout}
			return
		}
		defer reply.Release()
		env, err := UnmarshalEnvelope(reply.Payload())
		ch <- result{env: env, err: err}
	})
	r := <-ch
	return r.env, r.err
}

// Observation is a live subscription returned by Client.Observe.
type Observation struct {
	cancelObserve func()
	stopPoll      chan struct{}
	once          sync.Once
}

// Cancel ends the observation: it sends an Observe deregistration to the
// server and stops the polling fallback goroutine if one was started.
func (o *Observation) Cancel() {
	o.once.Do(func() {
		if o.cancelObserve != nil {
			o.cancelObserve()
		}
		if o.stopPoll != nil {
			close(o.stopPoll)
		}
	})
}

// Observe registers an Observe-driven subscription against href on addr,
// delivering every notification to cb as a parsed Envelope. If no
// notification (nor the initial response) arrives within one pollInterval,
// Observe additionally starts polling the resource with plain GETs on that
// cadence — "observe with polling fallback", since not every CoAP server
// actually implements the Observe extension.
func (c *Client) Observe(addr net.Addr, href string, cb func(*Envelope)) *Observation {
	obs := &Observation{}
	notified := make(chan struct{}, 1)

	deliver := func(reply *coap.Packet) {
		if reply == nil {
			return
		}
		defer reply.Release()
		env, err := UnmarshalEnvelope(reply.Payload())
		if err != nil {
			return
		}
		select {
		case notified <- struct{}{}:
		default:
		}
		cb(env)
	}

	obs.cancelObserve = c.server.Observe(coap.SplitPath(href), addr, deliver)

	obs.stopPoll = make(chan struct{})
	go c.pollFallback(addr, href, notified, obs.stopPoll, cb)

	return obs
}

func (c *Client) pollFallback(addr net.Addr, href string, notified chan struct{}, stop chan struct{}, cb func(*Envelope)) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-notified:
			// A real notification arrived; no need to poll this round.
			t.Reset(pollInterval)
		case <-t.C:
			env, err := c.Get(addr, href)
			if err == nil {
				cb(env)
			}
		}
	}
}

func encodeMediaType(m coap.MediaType) []byte {
	if m == 0 {
		return nil
	}
	if m < 256 {
		return []byte{byte(m)}
	}
	return []byte{byte(m >> 8), byte(m)}
}
