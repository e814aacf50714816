package mac

import "testing"

func TestParseAndString(t *testing.T) {
	a, err := Parse("AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := a.String(); got != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("String() = %s", got)
	}

	b, err := Parse("aa-bb-cc-dd-ee-ff")
	if err != nil {
		t.Fatalf("Parse hyphenated: %v", err)
	}
	if a != b {
		t.Fatalf("expected hyphenated and colon forms to parse equal")
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{"", "AA:BB:CC", "not-a-mac-address-at-all", "AA:BB:CC:DD:EE:GG"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Fatalf("expected error parsing %q", c)
		}
	}
}

func TestBroadcastAndZero(t *testing.T) {
	if !Broadcast.IsBroadcast() {
		t.Fatalf("Broadcast.IsBroadcast() = false")
	}
	var zero Addr
	if !zero.IsZero() {
		t.Fatalf("zero value IsZero() = false")
	}
	if zero.IsBroadcast() {
		t.Fatalf("zero value should not be broadcast")
	}
}

func TestFromBytesRoundTrip(t *testing.T) {
	orig := Addr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	a, err := FromBytes(orig.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if a != orig {
		t.Fatalf("round trip mismatch: %v != %v", a, orig)
	}

	if _, err := FromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short slice")
	}
}
