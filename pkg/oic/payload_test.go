package oic

import "testing"

func TestMarshalUnmarshalEnvelopeRoundTrip(t *testing.T) {
	rep := map[string]interface{}{"power": "on", "level": 5.0}
	wire, err := MarshalEnvelope("/light/1", rep, []string{"oic.r.switch.binary"}, []string{"oic.if.a"})
	if err != nil {
		t.Fatalf("MarshalEnvelope: %v", err)
	}

	env, err := UnmarshalEnvelope(wire)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}

	if env.Href() != "/light/1" {
		t.Errorf("href = %q, want /light/1", env.Href())
	}
	if len(env.ResourceTypes) != 1 || env.ResourceTypes[0] != "oic.r.switch.binary" {
		t.Errorf("resource types = %v", env.ResourceTypes)
	}
	if env.Representation["power"] != "on" {
		t.Errorf("rep[power] = %v, want on", env.Representation["power"])
	}
}

func TestUnmarshalEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalEnvelope([]byte("not json")); err == nil {
		t.Error("expected an error parsing non-JSON payload")
	}
}

func TestUnmarshalEnvelopeStripsTrailingNUL(t *testing.T) {
	wire := append([]byte(`{"rep":{"power":"on"}}`), 0x00)
	env, err := UnmarshalEnvelope(wire)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope with trailing NUL: %v", err)
	}
	if env.Representation["power"] != "on" {
		t.Errorf("rep[power] = %v, want on", env.Representation["power"])
	}
}

func TestCleanPayloadStripsControlBytes(t *testing.T) {
	in := []byte("{\"a\":1}\x00\x01\x02")
	got := CleanPayload(in)
	if string(got) != `{"a":1}` {
		t.Errorf("CleanPayload = %q, want %q", got, `{"a":1}`)
	}
}
