// Package crc16 implements the 16-bit cyclic redundancy check, or CRC-16,
// checksum used by audio frames.
package crc16

import "github.com/ydah/wavify/flac/internal/hashutil"

// IBM is the generator polynomial of CRC-16/BUYPASS: x^16 + x^15 + x^2 + 1,
// with no bit reflection and a zero initial register.
const IBM = 0x8005

// digest represents the partial evaluation of a checksum.
type digest struct {
	// Running CRC-16 register.
	crc uint16
	// Generator polynomial.
	poly uint16
}

// NewIBM returns a new hashutil.Hash16 computing the CRC-16/BUYPASS
// checksum.
func NewIBM() hashutil.Hash16 {
	return &digest{poly: IBM}
}

func (d *digest) Size() int { return 2 }

func (d *digest) BlockSize() int { return 1 }

func (d *digest) Reset() { d.crc = 0 }

// Write adds p to the running checksum bit-serially, mirroring crc8.Write
// with a 16-bit register.
func (d *digest) Write(p []byte) (n int, err error) {
	crc := d.crc
	for _, b := range p {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ d.poly
			} else {
				crc <<= 1
			}
		}
	}
	d.crc = crc
	return len(p), nil
}

func (d *digest) Sum16() uint16 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	return append(in, byte(d.crc>>8), byte(d.crc))
}

// ChecksumIBM returns the CRC-16/BUYPASS checksum of data.
func ChecksumIBM(data []byte) uint16 {
	d := digest{poly: IBM}
	d.Write(data)
	return d.Sum16()
}
