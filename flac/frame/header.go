package frame

import (
	"io"

	"github.com/icza/bitio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
	"github.com/ydah/wavify/flac/internal/utf8"
)

// SyncCode marks the start of each frame header. Bit representation:
// 11111111111110.
const SyncCode = 0x3FFE

// MaxBlockSize is the largest block size expressible by a frame header (a
// 16-bit stored value plus one).
const MaxBlockSize = 65536

// parseHeader reads and parses the header of an audio frame.
//
// Frame header format (pseudo code):
//
//	type FRAME_HEADER struct {
//	   sync_code         uint14 // 0x3FFE
//	   _                 uint1  // reserved, must be 0
//	   blocking_strategy uint1  // 0: fixed block size, 1: variable
//	   block_size_spec   uint4
//	   sample_rate_spec  uint4
//	   channels_spec     uint4
//	   sample_size_spec  uint3
//	   _                 uint1  // reserved, must be 0
//	   frame_num         uint36 // "UTF-8" coded, 1-7 bytes
//	   switch block_size_spec {
//	   case 0110: block_size uint8  // block_size - 1
//	   case 0111: block_size uint16 // block_size - 1
//	   }
//	   switch sample_rate_spec {
//	   case 1100: sample_rate uint8  // in kHz
//	   case 1101: sample_rate uint16 // in Hz
//	   case 1110: sample_rate uint16 // in daHz
//	   }
//	   crc8 uint8
//	}
func (frame *Frame) parseHeader(br *bitio.Reader, d StreamDefaults) error {
	// 16 bits: sync code, reserved bit, blocking strategy. Read together so
	// an end of input at a frame boundary surfaces as a clean io.EOF.
	x, err := br.ReadBits(16)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return unexpected(err)
	}
	if sync := x >> 2; sync != SyncCode {
		return errors.Wrapf(wavify.ErrInvalidFormat, "frame: invalid sync code; expected %014b, got %014b", SyncCode, sync)
	}
	if x>>1&1 != 0 {
		return errors.Wrap(wavify.ErrInvalidFormat, "frame: non-zero reserved bit after sync code")
	}
	if x&1 != 0 {
		// Variable block-size streams store sample numbers instead of frame
		// numbers and are not implemented.
		return errors.Wrap(wavify.ErrUnsupportedFormat, "frame: variable block-size stream")
	}

	// 4 bits: block size spec.
	blockSizeSpec, err := br.ReadBits(4)
	if err != nil {
		return unexpected(err)
	}

	// 4 bits: sample rate spec.
	sampleRateSpec, err := br.ReadBits(4)
	if err != nil {
		return unexpected(err)
	}

	// 4 bits: channel assignment.
	if err := frame.parseChannels(br); err != nil {
		return err
	}

	// 3 bits: sample size spec.
	if err := frame.parseSampleSize(br, d); err != nil {
		return err
	}

	// 1 bit: reserved.
	x, err = br.ReadBits(1)
	if err != nil {
		return unexpected(err)
	}
	if x != 0 {
		return errors.Wrap(wavify.ErrInvalidFormat, "frame: non-zero reserved bit before frame number")
	}

	// 1-7 bytes: "UTF-8" coded frame number.
	num, err := utf8.Decode(br)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return unexpected(err)
		}
		return errors.Wrap(wavify.ErrInvalidFormat, err.Error())
	}
	frame.Num = num

	// Block size stored at the end of the header, for specs 6 and 7.
	if err := frame.parseBlockSize(br, blockSizeSpec); err != nil {
		return err
	}

	// Sample rate stored at the end of the header, for specs 12-14.
	if err := frame.parseSampleRate(br, sampleRateSpec, d); err != nil {
		return err
	}

	// 8 bits: CRC-8 of the header bytes preceding it. Stored but not
	// verified.
	if _, err := br.ReadBits(8); err != nil {
		return unexpected(err)
	}
	return nil
}

// parseBlockSize resolves the block size spec of the header.
//
//	0000:      reserved
//	0001:      192 samples
//	0010-0101: 576 * 2^(spec-2) samples, i.e. 576/1152/2304/4608
//	0110:      get 8 bit (block size - 1) from end of header
//	0111:      get 16 bit (block size - 1) from end of header
//	1000-1111: 256 * 2^(spec-8) samples, i.e. 256/512/.../32768
func (frame *Frame) parseBlockSize(br *bitio.Reader, spec uint64) error {
	switch {
	case spec == 0x0:
		return errors.Wrap(wavify.ErrInvalidFormat, "frame: reserved block size bit pattern (0000)")
	case spec == 0x1:
		frame.BlockSize = 192
	case spec <= 0x5:
		frame.BlockSize = 576 << (spec - 2)
	case spec == 0x6:
		x, err := br.ReadBits(8)
		if err != nil {
			return unexpected(err)
		}
		frame.BlockSize = int(x) + 1
	case spec == 0x7:
		x, err := br.ReadBits(16)
		if err != nil {
			return unexpected(err)
		}
		frame.BlockSize = int(x) + 1
	default:
		// 1000-1111
		frame.BlockSize = 256 << (spec - 8)
	}
	return nil
}

// parseSampleRate resolves the sample rate spec of the header.
//
//	0000: inherit from StreamInfo
//	0001: 88.2 kHz
//	0010: 176.4 kHz
//	0011: 192 kHz
//	0100: 8 kHz
//	0101: 16 kHz
//	0110: 22.05 kHz
//	0111: 24 kHz
//	1000: 32 kHz
//	1001: 44.1 kHz
//	1010: 48 kHz
//	1011: 96 kHz
//	1100: get 8 bit sample rate (in kHz) from end of header
//	1101: get 16 bit sample rate (in Hz) from end of header
//	1110: get 16 bit sample rate (in daHz) from end of header
//	1111: invalid, to prevent sync-fooling string of 1s
func (frame *Frame) parseSampleRate(br *bitio.Reader, spec uint64, d StreamDefaults) error {
	switch spec {
	case 0x0:
		frame.SampleRate = d.SampleRate
	case 0x1:
		frame.SampleRate = 88200
	case 0x2:
		frame.SampleRate = 176400
	case 0x3:
		frame.SampleRate = 192000
	case 0x4:
		frame.SampleRate = 8000
	case 0x5:
		frame.SampleRate = 16000
	case 0x6:
		frame.SampleRate = 22050
	case 0x7:
		frame.SampleRate = 24000
	case 0x8:
		frame.SampleRate = 32000
	case 0x9:
		frame.SampleRate = 44100
	case 0xA:
		frame.SampleRate = 48000
	case 0xB:
		frame.SampleRate = 96000
	case 0xC:
		x, err := br.ReadBits(8)
		if err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x) * 1000
	case 0xD:
		x, err := br.ReadBits(16)
		if err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x)
	case 0xE:
		x, err := br.ReadBits(16)
		if err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x) * 10
	default:
		return errors.Wrap(wavify.ErrInvalidFormat, "frame: invalid sample rate bit pattern (1111)")
	}
	return nil
}

// parseChannels parses the channel assignment of the header.
//
//	0000-0111: (number of independent channels) - 1
//	1000:      left/side stereo
//	1001:      side/right stereo
//	1010:      mid/side stereo
//	1011-1111: reserved
func (frame *Frame) parseChannels(br *bitio.Reader) error {
	x, err := br.ReadBits(4)
	if err != nil {
		return unexpected(err)
	}
	if x > uint64(ChannelsMidSide) {
		return errors.Wrapf(wavify.ErrInvalidFormat, "frame: reserved channel assignment bit pattern (%04b)", x)
	}
	frame.Channels = Channels(x)
	return nil
}

// parseSampleSize resolves the sample size spec of the header.
//
//	000: inherit from StreamInfo
//	001: 8 bits per sample
//	010: 12 bits per sample
//	011: reserved
//	100: 16 bits per sample
//	101: 20 bits per sample
//	110: 24 bits per sample
//	111: reserved
func (frame *Frame) parseSampleSize(br *bitio.Reader, d StreamDefaults) error {
	x, err := br.ReadBits(3)
	if err != nil {
		return unexpected(err)
	}
	switch x {
	case 0x0:
		frame.BitsPerSample = d.BitsPerSample
	case 0x1:
		frame.BitsPerSample = 8
	case 0x2:
		frame.BitsPerSample = 12
	case 0x4:
		frame.BitsPerSample = 16
	case 0x5:
		frame.BitsPerSample = 20
	case 0x6:
		frame.BitsPerSample = 24
	default:
		return errors.Wrapf(wavify.ErrInvalidFormat, "frame: reserved sample size bit pattern (%03b)", x)
	}
	return nil
}
