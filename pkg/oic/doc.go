// Package oic implements an OCF/OIC client layer riding on top of
// pkg/coap: multicast resource discovery against "/oc/core", JSON-wrapped
// request/response, and observe with a polling fallback for devices that
// never acknowledge the Observe option.
package oic
