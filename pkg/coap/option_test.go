package coap

import "testing"

func TestExtendFieldTiers(t *testing.T) {
	cases := []struct {
		in         int
		wantNibble uint8
		wantExtLen int
	}{
		{0, 0, 0},
		{12, 12, 0},
		{13, optExtByte, 1},
		{268, optExtByte, 1},
		{269, optExtWord, 2},
		{65535, optExtWord, 2},
	}
	for _, c := range cases {
		nibble, ext := extendField(c.in)
		if nibble != c.wantNibble {
			t.Errorf("extendField(%d) nibble = %d, want %d", c.in, nibble, c.wantNibble)
		}
		if len(ext) != c.wantExtLen {
			t.Errorf("extendField(%d) ext len = %d, want %d", c.in, len(ext), c.wantExtLen)
		}
	}
}

func TestOptionListFindAndFirst(t *testing.T) {
	var ol optionList
	if err := ol.insert(URIPath, []byte("a")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := ol.insert(URIPath, []byte("b")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	all := ol.find(URIPath)
	if len(all) != 2 || string(all[0]) != "a" || string(all[1]) != "b" {
		t.Errorf("find = %v, want [a b]", all)
	}

	first, ok := ol.first(URIPath)
	if !ok || string(first) != "a" {
		t.Errorf("first = %q,%v, want a,true", first, ok)
	}

	if _, ok := ol.first(ETag); ok {
		t.Errorf("first(ETag) found, want absent")
	}
}

func TestOptionListRejectsDecreasingCode(t *testing.T) {
	var ol optionList
	if err := ol.insert(ContentFormat, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := ol.insert(URIPath, nil); err != ErrOutOfOrder {
		t.Errorf("err = %v, want ErrOutOfOrder", err)
	}
}
