package oic

import (
	"bytes"
	"encoding/json"
)

// Envelope is the JSON wrapping every OIC payload travels in: a device
// identifier, the resource types/interfaces it was discovered or
// requested under, and the representation itself nested under "rep" —
// grounded on the teacher's flat device-discovery JSON (json_payload.go),
// generalized here to the OCF "di/rt/if/rep" envelope since no CBOR
// library exists anywhere in the retrieved corpus and JSON is the only
// serialization this client can exercise.
type Envelope struct {
	DeviceID       string                 `json:"di,omitempty"`
	ResourceTypes  []string               `json:"rt,omitempty"`
	Interfaces     []string               `json:"if,omitempty"`
	Representation map[string]interface{} `json:"rep"`
}

// DeviceInfo mirrors the fields a "/oc/core" or "/oc/con" discovery
// response carries about a device, flattened out of its Envelope for
// caller convenience.
type DeviceInfo struct {
	DeviceID      string
	Href          string
	ResourceTypes []string
	Interfaces    []string
	Address       string
}

// MarshalEnvelope wraps rep (and optional resource type/interface
// filters) into the wire JSON payload.
func MarshalEnvelope(href string, rep map[string]interface{}, rt, iface []string) ([]byte, error) {
	env := Envelope{
		ResourceTypes:  rt,
		Interfaces:     iface,
		Representation: withHref(href, rep),
	}
	return json.Marshal(env)
}

func withHref(href string, rep map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(rep)+1)
	for k, v := range rep {
		out[k] = v
	}
	if href != "" {
		out["href"] = href
	}
	return out
}

// CleanPayload strips bytes that are neither printable ASCII nor
// tab/newline/carriage-return from data, discarding the trailing NUL padding
// and other control-byte noise some OIC peers pad their payload with before
// it ever reaches json.Unmarshal (adapted from the teacher's CleanJSONData).
func CleanPayload(data []byte) []byte {
	var cleaned bytes.Buffer
	for _, b := range data {
		if (b >= 0x20 && b <= 0x7E) || b == 0x0A || b == 0x0D || b == 0x09 {
			cleaned.WriteByte(b)
		}
	}
	return cleaned.Bytes()
}

// UnmarshalEnvelope parses a response payload into an Envelope, running it
// through CleanPayload first.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(CleanPayload(data), &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Href extracts the "href" field out of an envelope's representation, if
// present.
func (e *Envelope) Href() string {
	if e.Representation == nil {
		return ""
	}
	if v, ok := e.Representation["href"].(string); ok {
		return v
	}
	return ""
}
