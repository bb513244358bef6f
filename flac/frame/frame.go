// Package frame implements access to audio frames.
//
// An encoder divides the audio stream into blocks of interleaved samples,
// splits each block into one sub-block per channel, predicts each sub-block
// and stores the prediction residuals. Blocks and sub-blocks contain
// unencoded audio samples, while frames and subframes contain encoded audio
// samples. Stereo frames may store the channels inter-channel decorrelated:
//
//	mid  = (left + right)/2 // average of the channels
//	side = left - right     // difference between the channels
package frame

import (
	"hash"
	"io"

	"github.com/icza/bitio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
)

// Channel assignments. The following abbreviations are used:
//
//	C:   center (directly in front)
//	R:   right (standard stereo)
//	Rs:  right surround (back right)
//	Cs:  center surround (rear center)
//	Ls:  left surround (back left)
//	Sl:  side left (directly to the left)
//	Sr:  side right (directly to the right)
//	L:   left (standard stereo)
//	Lfe: low-frequency effect (placed according to room acoustics)
//
// The first 6 channel constants follow the SMPTE/ITU-R channel order:
//
//	L R C Lfe Ls Rs
const (
	ChannelsMono           Channels = iota // 1 channel: mono.
	ChannelsLR                             // 2 channels: left, right.
	ChannelsLRC                            // 3 channels: left, right, center.
	ChannelsLRLsRs                         // 4 channels: left, right, left surround, right surround.
	ChannelsLRCLsRs                        // 5 channels: left, right, center, left surround, right surround.
	ChannelsLRCLfeLsRs                     // 6 channels: left, right, center, LFE, left surround, right surround.
	ChannelsLRCLfeCsSlSr                   // 7 channels: left, right, center, LFE, center surround, side left, side right.
	ChannelsLRCLfeLsRsSlSr                 // 8 channels: left, right, center, LFE, left surround, right surround, side left, side right.
	ChannelsLeftSide                       // 2 channels: left, side; using inter-channel decorrelation.
	ChannelsSideRight                      // 2 channels: side, right; using inter-channel decorrelation.
	ChannelsMidSide                        // 2 channels: mid, side; using inter-channel decorrelation.
)

// Channels specifies the number of channels (subframes) that exist in a
// frame, their order, and any inter-channel decorrelation between them.
type Channels uint8

// nChannels maps each channel assignment to its channel count.
var nChannels = [...]int{
	ChannelsMono:           1,
	ChannelsLR:             2,
	ChannelsLRC:            3,
	ChannelsLRLsRs:         4,
	ChannelsLRCLsRs:        5,
	ChannelsLRCLfeLsRs:     6,
	ChannelsLRCLfeCsSlSr:   7,
	ChannelsLRCLfeLsRsSlSr: 8,
	ChannelsLeftSide:       2,
	ChannelsSideRight:      2,
	ChannelsMidSide:        2,
}

// Count returns the number of channels (subframes) used by the provided
// channel assignment.
func (channels Channels) Count() int {
	return nChannels[channels]
}

// A Header contains the basic properties of an audio frame, such as its
// block size, sample rate and channel count. To facilitate random access
// decoding each frame header starts with a sync-code.
type Header struct {
	// Block size in inter-channel samples, i.e. the number of audio samples
	// in each subframe.
	BlockSize int
	// Sample rate in Hz. Resolved from the stream info when the header
	// elects to inherit it.
	SampleRate uint32
	// Channel assignment of the frame.
	Channels Channels
	// Sample size in bits-per-sample. Resolved from the stream info when
	// the header elects to inherit it.
	BitsPerSample uint8
	// Frame number. Only fixed block-size streams are supported, so the
	// frame's first sample number is Num times the block size.
	Num uint64
}

// StreamDefaults carries the StreamInfo values inherited by frame headers
// that elect not to store the sample rate or sample size explicitly.
type StreamDefaults struct {
	// Sample rate in Hz.
	SampleRate uint32
	// Sample size in bits-per-sample.
	BitsPerSample uint8
}

// A Frame holds an audio frame header and one subframe of decoded samples
// per channel.
type Frame struct {
	// Audio frame header.
	Header
	// One subframe per channel, containing decoded audio samples.
	Subframes []*Subframe
	// CRC-16 field trailing the frame, as stored in the stream. Kept for
	// inspection; read operations do not verify it.
	CRC16 uint16
}

// Parse reads and parses the header and all subframes of an audio frame
// from br, and reverts any inter-channel decorrelation between the decoded
// samples. It returns io.EOF to signal a graceful end of stream.
func Parse(br *bitio.Reader, d StreamDefaults) (frame *Frame, err error) {
	frame = &Frame{}
	if err := frame.parseHeader(br, d); err != nil {
		return nil, err
	}

	frame.Subframes = make([]*Subframe, frame.Channels.Count())
	for channel := range frame.Subframes {
		// The side channel of a decorrelated stereo frame carries the
		// difference of two bps-bit channels and needs one extra bit.
		bps := uint(frame.BitsPerSample)
		switch frame.Channels {
		case ChannelsSideRight:
			if channel == 0 {
				bps++
			}
		case ChannelsLeftSide, ChannelsMidSide:
			if channel == 1 {
				bps++
			}
		}
		subframe, err := frame.parseSubframe(br, bps)
		if err != nil {
			return nil, err
		}
		frame.Subframes[channel] = subframe
	}
	frame.correlate()

	// Zero-padding to byte alignment, then the CRC-16 of the frame. The
	// checksum is stored but deliberately not verified; see the package
	// documentation of flac.
	br.Align()
	crc, err := br.ReadBits(16)
	if err != nil {
		return nil, unexpected(err)
	}
	frame.CRC16 = uint16(crc)
	return frame, nil
}

// correlate reverts any inter-channel decorrelation between the samples of
// the subframes.
func (frame *Frame) correlate() {
	switch frame.Channels {
	case ChannelsLeftSide:
		// channel 0 holds left; channel 1 holds side = left - right.
		left := frame.Subframes[0].Samples
		side := frame.Subframes[1].Samples
		for i := range side {
			// right = left - side
			side[i] = left[i] - side[i]
		}
	case ChannelsSideRight:
		// channel 0 holds side = left - right; channel 1 holds right.
		side := frame.Subframes[0].Samples
		right := frame.Subframes[1].Samples
		for i := range side {
			// left = right + side
			side[i] = right[i] + side[i]
		}
	case ChannelsMidSide:
		// channel 0 holds mid = (left + right)>>1; channel 1 holds side.
		mid := frame.Subframes[0].Samples
		side := frame.Subframes[1].Samples
		for i := range side {
			// The integer division in mid = (left + right)>>1 discarded the
			// least significant bit. A sum A+B and a difference A-B share
			// their least significant bit, so it is recovered from side.
			m := mid[i] << 1
			s := side[i]
			m |= s & 1
			mid[i] = (m + s) >> 1
			side[i] = (m - s) >> 1
		}
	}
}

// Hash adds the decoded audio samples of the frame to a running hash,
// packing each sample in little-endian byte order at the frame's sample
// size. It matches the packing used for the content checksum of encoded
// streams.
func (frame *Frame) Hash(md5sum hash.Hash) {
	var buf [4]byte
	bps := frame.BitsPerSample
	for i := 0; i < frame.BlockSize; i++ {
		for _, subframe := range frame.Subframes {
			sample := subframe.Samples[i]
			switch {
			case bps <= 8:
				buf[0] = uint8(sample)
				md5sum.Write(buf[:1])
			case bps <= 16:
				buf[0] = uint8(sample)
				buf[1] = uint8(sample >> 8)
				md5sum.Write(buf[:2])
			case bps <= 24:
				buf[0] = uint8(sample)
				buf[1] = uint8(sample >> 8)
				buf[2] = uint8(sample >> 16)
				md5sum.Write(buf[:3])
			default:
				buf[0] = uint8(sample)
				buf[1] = uint8(sample >> 8)
				buf[2] = uint8(sample >> 16)
				buf[3] = uint8(sample >> 24)
				md5sum.Write(buf[:4])
			}
		}
	}
}

// SampleNumber returns the stream-relative number of the first sample
// contained within the frame.
func (frame *Frame) SampleNumber() uint64 {
	return frame.Num * uint64(frame.BlockSize)
}

// unexpected reports an end of input inside a frame as truncation, which is
// a malformed stream, not a graceful end of stream.
func unexpected(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(wavify.ErrInvalidFormat, "frame: unexpected end of stream")
	}
	return err
}
