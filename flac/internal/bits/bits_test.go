package bits_test

import (
	"bytes"
	"testing"

	"github.com/icza/bitio"
	"github.com/icza/mighty"

	"github.com/ydah/wavify/flac/internal/bits"
)

func TestIntN(t *testing.T) {
	eq := mighty.Eq(t)
	golden := []struct {
		x    uint64
		n    uint
		want int64
	}{
		{x: 0b011, n: 3, want: 3},
		{x: 0b010, n: 3, want: 2},
		{x: 0b001, n: 3, want: 1},
		{x: 0b000, n: 3, want: 0},
		{x: 0b111, n: 3, want: -1},
		{x: 0b110, n: 3, want: -2},
		{x: 0b101, n: 3, want: -3},
		{x: 0b100, n: 3, want: -4},
		{x: 0xFFFFFFFF, n: 32, want: -1},
	}
	for _, g := range golden {
		eq(g.want, bits.IntN(g.x, g.n))
	}
}

func TestUintNRoundTrip(t *testing.T) {
	eq := mighty.Eq(t)
	for _, x := range []int64{0, 1, -1, 127, -128, 32767, -32768, 1 << 30, -(1 << 31)} {
		eq(x, bits.IntN(bits.UintN(x, 32), 32))
	}
}

func TestZigZag(t *testing.T) {
	eq := mighty.Eq(t)
	golden := []struct {
		decoded int32
		encoded uint32
	}{
		{decoded: 0, encoded: 0},
		{decoded: -1, encoded: 1},
		{decoded: 1, encoded: 2},
		{decoded: -2, encoded: 3},
		{decoded: 2, encoded: 4},
		{decoded: -3, encoded: 5},
		{decoded: 3, encoded: 6},
	}
	for _, g := range golden {
		eq(g.encoded, bits.EncodeZigZag(g.decoded))
		eq(g.decoded, bits.DecodeZigZag(g.encoded))
	}
}

func TestUnary(t *testing.T) {
	buf := new(bytes.Buffer)
	bw := bitio.NewWriter(buf)
	for want := uint64(0); want < 1000; want++ {
		if err := bits.WriteUnary(bw, want); err != nil {
			t.Fatalf("error writing unary: %v", err)
		}
		if err := bw.Close(); err != nil {
			t.Fatalf("error flushing the bit writer: %v", err)
		}
		br := bitio.NewReader(buf)
		got, err := bits.ReadUnary(br)
		if err != nil {
			t.Fatalf("error reading unary: %v", err)
		}
		if got != want {
			t.Fatalf("unary round-trip mismatch; expected %v, got %v", want, got)
		}
		buf.Reset()
		bw = bitio.NewWriter(buf)
	}
}
