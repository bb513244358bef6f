// Package crc8 implements the 8-bit cyclic redundancy check, or CRC-8,
// checksum used by frame headers.
package crc8

import "github.com/ydah/wavify/flac/internal/hashutil"

// ATM is the generator polynomial of CRC-8/ATM: x^8 + x^2 + x + 1, with no
// bit reflection and a zero initial register.
const ATM = 0x07

// digest represents the partial evaluation of a checksum.
type digest struct {
	// Running CRC-8 register.
	crc uint8
	// Generator polynomial.
	poly uint8
}

// NewATM returns a new hashutil.Hash8 computing the CRC-8/ATM checksum.
func NewATM() hashutil.Hash8 {
	return &digest{poly: ATM}
}

func (d *digest) Size() int { return 1 }

func (d *digest) BlockSize() int { return 1 }

func (d *digest) Reset() { d.crc = 0 }

// Write adds p to the running checksum, one bit at a time: the top bit of
// each input byte is XORed into the register's top bit, the register is
// shifted, and the polynomial applied when the shifted-out bit was set.
func (d *digest) Write(p []byte) (n int, err error) {
	crc := d.crc
	for _, b := range p {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ d.poly
			} else {
				crc <<= 1
			}
		}
	}
	d.crc = crc
	return len(p), nil
}

func (d *digest) Sum8() uint8 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	return append(in, d.crc)
}

// ChecksumATM returns the CRC-8/ATM checksum of data.
func ChecksumATM(data []byte) uint8 {
	d := digest{poly: ATM}
	d.Write(data)
	return d.Sum8()
}
