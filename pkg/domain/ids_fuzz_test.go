package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseNGOID checks that parsing never panics on arbitrary input and
// always returns either a valid, round-trippable ID or an error.
func FuzzParseNGOID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE ngos;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseNGOID(input)
		if err == nil {
			if id.IsNil() {
				t.Error("nil ID accepted")
			}
			roundTrip, err2 := ParseNGOID(id.String())
			if err2 != nil || roundTrip != id {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAddress checks the address parser never accepts whitespace.
func FuzzParseAddress(f *testing.F) {
	f.Add("0xabc")
	f.Add(" ")
	f.Add("a\tb")
	f.Fuzz(func(t *testing.T, input string) {
		a, err := ParseAddress(input)
		if err != nil {
			return
		}
		for _, r := range string(a) {
			if r == ' ' || r == '\t' || r == '\n' {
				t.Errorf("address %q contains whitespace", a)
			}
		}
	})
}
