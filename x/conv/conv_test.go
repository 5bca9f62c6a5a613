package conv

import "testing"

func TestUtoaItoa(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{Utoa(0), "0"},
		{Utoa(705600), "705600"},
		{Itoa(-90), "-90"},
		{Itoa(0), "0"},
		{Itoa(240), "240"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Fatalf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestHex8(t *testing.T) {
	if got := Hex8(0x20); got != "0x20" {
		t.Fatalf("Hex8(0x20) = %q", got)
	}
	if got := Hex8(0xaf); got != "0xaf" {
		t.Fatalf("Hex8(0xaf) = %q", got)
	}
}
