package bits

// EncodeZigZag maps a signed integer onto an unsigned one, so that values of
// small magnitude stay small:
//
//	 0 => 0
//	-1 => 1
//	 1 => 2
//	-2 => 3
//
// ref: https://developers.google.com/protocol-buffers/docs/encoding
func EncodeZigZag(x int32) uint32 {
	return uint32(x<<1) ^ uint32(x>>31)
}

// DecodeZigZag is the inverse of EncodeZigZag.
func DecodeZigZag(x uint32) int32 {
	return int32(x>>1) ^ -int32(x&1)
}
