// Package bits provides bit-level helpers shared by the encoder and decoder:
// unary codes, ZigZag mapping and two's complement narrowing.
package bits

// IntN returns the signed two's complement interpretation of the n lowest
// bits of x.
//
// Examples for n = 3:
//
//	0b011 ->  3
//	0b000 ->  0
//	0b111 -> -1
//	0b100 -> -4
func IntN(x uint64, n uint) int64 {
	signBitMask := uint64(1 << (n - 1))
	if x&signBitMask == 0 {
		// positive.
		return int64(x)
	}
	// negative.
	v := int64(x ^ signBitMask) // clear sign bit.
	v -= int64(signBitMask)
	return v
}

// UintN masks x to its n lowest bits, producing the unsigned two's
// complement representation written to the bitstream for signed fields.
func UintN(x int64, n uint) uint64 {
	return uint64(x) & (1<<n - 1)
}
