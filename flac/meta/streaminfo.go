package meta

import (
	"io"

	"github.com/eaburns/bit"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
)

// StreamInfoLen is the body length in bytes of a StreamInfo metadata block.
const StreamInfoLen = 34

// StreamInfo describes the basic properties of the audio stream. It must be
// present as the first metadata block of a stream.
//
// A streaming encoder writes it zero-filled at stream start and patches it
// in place when the stream is closed; see the flac package Encoder.
type StreamInfo struct {
	// Minimum and maximum block size (in samples) used in the stream.
	BlockSizeMin uint16
	BlockSizeMax uint16
	// Minimum and maximum frame size (in bytes) used in the stream; a 0
	// value implies unknown.
	FrameSizeMin uint32
	FrameSizeMax uint32
	// Sample rate in Hz.
	SampleRate uint32
	// Number of channels; between 1 and 8.
	NChannels uint8
	// Sample size in bits-per-sample; between 4 and 32.
	BitsPerSample uint8
	// Total number of inter-channel samples in the stream; a 0 value
	// implies unknown.
	NSamples uint64
	// MD5 checksum of the unencoded audio samples.
	MD5sum [16]byte
}

// parseStreamInfo reads and parses the body of a StreamInfo metadata block.
//
// StreamInfo block body format (pseudo code):
//
//	type METADATA_BLOCK_STREAMINFO struct {
//	   block_size_min  uint16
//	   block_size_max  uint16
//	   frame_size_min  uint24
//	   frame_size_max  uint24
//	   sample_rate     uint20
//	   nchannels       uint3 // (number of channels) - 1
//	   bits_per_sample uint5 // (bits-per-sample) - 1
//	   nsamples        uint36
//	   md5sum          [16]byte
//	}
func parseStreamInfo(r io.Reader) (si *StreamInfo, err error) {
	br := bit.NewReader(r)
	fields, err := br.ReadFields(16, 16, 24, 24, 20, 3, 5, 36)
	if err != nil {
		return nil, unexpected(err)
	}

	si = &StreamInfo{
		BlockSizeMin:  uint16(fields[0]),
		BlockSizeMax:  uint16(fields[1]),
		FrameSizeMin:  uint32(fields[2]),
		FrameSizeMax:  uint32(fields[3]),
		SampleRate:    uint32(fields[4]),
		NChannels:     uint8(fields[5]) + 1,
		BitsPerSample: uint8(fields[6]) + 1,
		NSamples:      fields[7],
	}
	if si.SampleRate == 0 {
		return nil, errors.Wrap(wavify.ErrInvalidFormat, "meta: zero sample rate in StreamInfo")
	}
	if _, err := io.ReadFull(r, si.MD5sum[:]); err != nil {
		return nil, unexpected(err)
	}
	return si, nil
}
