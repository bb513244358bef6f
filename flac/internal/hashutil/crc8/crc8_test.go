package crc8

import "testing"

func TestChecksumATM(t *testing.T) {
	golden := []struct {
		in   string
		want uint8
	}{
		{in: "", want: 0x00},
		{in: "a", want: 0x20},
		{in: "123456789", want: 0xF4},
	}
	for _, g := range golden {
		got := ChecksumATM([]byte(g.in))
		if g.want != got {
			t.Errorf("ChecksumATM(%q) mismatch; expected 0x%02X, got 0x%02X", g.in, g.want, got)
		}
	}
}

func TestDigestIncremental(t *testing.T) {
	h := NewATM()
	h.Write([]byte("1234"))
	h.Write([]byte("56789"))
	if want, got := uint8(0xF4), h.Sum8(); want != got {
		t.Errorf("incremental checksum mismatch; expected 0x%02X, got 0x%02X", want, got)
	}
	h.Reset()
	if got := h.Sum8(); got != 0 {
		t.Errorf("checksum after Reset; expected 0x00, got 0x%02X", got)
	}
}
