// Package utf8 implements encoding and decoding of the "UTF-8 coded number"
// used by frame headers to store frame numbers. The scheme borrows the
// prefix-length marker and continuation bytes of UTF-8 but extends the
// sequence to up to 7 bytes, carrying values of up to 36 bits.
package utf8

import (
	"io"

	"github.com/icza/bitio"
	"github.com/pkg/errors"
)

const (
	tx = 0x80 // 1000 0000
	t2 = 0xC0 // 1100 0000
	t3 = 0xE0 // 1110 0000
	t4 = 0xF0 // 1111 0000
	t5 = 0xF8 // 1111 1000
	t6 = 0xFC // 1111 1100
	t7 = 0xFE // 1111 1110

	maskx = 0x3F // 0011 1111
	mask2 = 0x1F // 0001 1111
	mask3 = 0x0F // 0000 1111
	mask4 = 0x07 // 0000 0111
	mask5 = 0x03 // 0000 0011
	mask6 = 0x01 // 0000 0001

	rune1Max = 1<<7 - 1
	rune2Max = 1<<11 - 1
	rune3Max = 1<<16 - 1
	rune4Max = 1<<21 - 1
	rune5Max = 1<<26 - 1
	rune6Max = 1<<31 - 1
	rune7Max = 1<<36 - 1
)

// Encode writes x as a UTF-8 coded number.
func Encode(bw *bitio.Writer, x uint64) error {
	// 1-byte, 7-bit sequence?
	if x <= rune1Max {
		return bw.WriteByte(byte(x))
	}

	// Leading byte; its prefix of ones gives the total sequence length.
	var (
		// number of continuation bytes.
		l int
		// leading byte.
		c0 byte
	)
	switch {
	case x <= rune2Max:
		// 110xxxxx; total 11 bits (5 + 6).
		l = 1
		c0 = t2 | byte(x>>6)&mask2
	case x <= rune3Max:
		// 1110xxxx; total 16 bits (4 + 6 + 6).
		l = 2
		c0 = t3 | byte(x>>(6*2))&mask3
	case x <= rune4Max:
		// 11110xxx; total 21 bits (3 + 6 + 6 + 6).
		l = 3
		c0 = t4 | byte(x>>(6*3))&mask4
	case x <= rune5Max:
		// 111110xx; total 26 bits (2 + 6*4).
		l = 4
		c0 = t5 | byte(x>>(6*4))&mask5
	case x <= rune6Max:
		// 1111110x; total 31 bits (1 + 6*5).
		l = 5
		c0 = t6 | byte(x>>(6*5))&mask6
	case x <= rune7Max:
		// 11111110; total 36 bits (0 + 6*6).
		l = 6
		c0 = t7
	default:
		return errors.Errorf("unable to encode %d as a UTF-8 coded number; exceeds 36 bits", x)
	}
	if err := bw.WriteByte(c0); err != nil {
		return err
	}

	// Continuation bytes.
	for i := l - 1; i >= 0; i-- {
		if err := bw.WriteByte(tx | byte(x>>uint(6*i))&maskx); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads and returns a UTF-8 coded number.
func Decode(br *bitio.Reader) (x uint64, err error) {
	c0, err := br.ReadByte()
	if err != nil {
		return 0, err
	}

	// 1-byte, 7-bit sequence?
	if c0 < tx {
		return uint64(c0), nil
	}

	// Leading byte prefix determines the number of continuation bytes.
	var l int
	switch {
	case c0 < t2:
		// 10xxxxxx is a continuation byte, invalid in leading position.
		return 0, errors.Errorf("invalid leading byte 0x%02X of UTF-8 coded number", c0)
	case c0 < t3:
		l = 1
		x = uint64(c0 & mask2)
	case c0 < t4:
		l = 2
		x = uint64(c0 & mask3)
	case c0 < t5:
		l = 3
		x = uint64(c0 & mask4)
	case c0 < t6:
		l = 4
		x = uint64(c0 & mask5)
	case c0 < t7:
		l = 5
		x = uint64(c0 & mask6)
	case c0 == t7:
		l = 6
		x = 0
	default:
		// 11111111 would sync-fool; never valid.
		return 0, errors.Errorf("invalid leading byte 0x%02X of UTF-8 coded number", c0)
	}

	for i := 0; i < l; i++ {
		c, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if c&t2 != tx {
			return 0, errors.Errorf("invalid continuation byte 0x%02X of UTF-8 coded number", c)
		}
		x = x<<6 | uint64(c&maskx)
	}
	return x, nil
}
