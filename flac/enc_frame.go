package flac

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/icza/bitio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify/flac/frame"
	"github.com/ydah/wavify/flac/internal/hashutil/crc16"
	"github.com/ydah/wavify/flac/internal/hashutil/crc8"
	"github.com/ydah/wavify/flac/internal/utf8"
	"github.com/ydah/wavify/flac/meta"
)

// encodeFrame encodes one block of interleaved samples as a complete audio
// frame and writes it to w. Channels are always encoded independently, that
// is, without inter-channel decorrelation.
func (enc *encoder) encodeFrame(w io.Writer, data []int) error {
	nchannels := enc.format.NumChannels
	blockSize := len(data) / nchannels
	channels := make([][]int32, nchannels)
	for ch := range channels {
		samples := make([]int32, blockSize)
		for i := range samples {
			samples[i] = int32(data[i*nchannels+ch])
		}
		channels[ch] = samples
	}

	// The frame is assembled in memory so the trailing CRC-16 and the frame
	// size statistics cover the exact bytes written.
	buf := new(bytes.Buffer)
	h16 := crc16.NewIBM()
	mw := io.MultiWriter(buf, h16)
	if err := enc.writeFrameHeader(mw, blockSize); err != nil {
		return err
	}
	bw := bitio.NewWriter(mw)
	for _, samples := range channels {
		if err := enc.encodeSubframe(bw, samples, uint(enc.bitDepth)); err != nil {
			return err
		}
	}
	// Zero-padding to byte alignment is covered by the CRC-16.
	if err := bw.Close(); err != nil {
		return errors.WithStack(err)
	}
	var tail [2]byte
	binary.BigEndian.PutUint16(tail[:], h16.Sum16())
	if _, err := buf.Write(tail[:]); err != nil {
		return errors.WithStack(err)
	}

	n := buf.Len()
	if _, err := io.Copy(w, buf); err != nil {
		return errors.WithStack(err)
	}
	enc.stats.add(blockSize, n)
	enc.frameNum++
	return nil
}

// writeFrameHeader writes the header of an audio frame, including its
// trailing CRC-8. The block size is always stored explicitly at the end of
// the header: as 8 bits for block sizes up to 256, as 16 bits otherwise.
// The sample rate, and any sample size without a dedicated code, inherit
// from StreamInfo.
func (enc *encoder) writeFrameHeader(w io.Writer, blockSize int) error {
	h8 := crc8.NewATM()
	bw := bitio.NewWriter(io.MultiWriter(w, h8))

	// 14 bits: sync code. 1 bit: reserved. 1 bit: fixed block-size stream.
	if err := bw.WriteBits(frame.SyncCode, 14); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(0, 2); err != nil {
		return errors.WithStack(err)
	}
	// 4 bits: block size spec.
	bsSpec := uint64(0x7)
	if blockSize <= 256 {
		bsSpec = 0x6
	}
	if err := bw.WriteBits(bsSpec, 4); err != nil {
		return errors.WithStack(err)
	}
	// 4 bits: sample rate spec; inherit from StreamInfo.
	if err := bw.WriteBits(0x0, 4); err != nil {
		return errors.WithStack(err)
	}
	// 4 bits: channel assignment; independent channels.
	if err := bw.WriteBits(uint64(enc.format.NumChannels-1), 4); err != nil {
		return errors.WithStack(err)
	}
	// 3 bits: sample size spec.
	if err := bw.WriteBits(sampleSizeSpec(enc.bitDepth), 3); err != nil {
		return errors.WithStack(err)
	}
	// 1 bit: reserved.
	if err := bw.WriteBits(0, 1); err != nil {
		return errors.WithStack(err)
	}
	// 1-7 bytes: "UTF-8" coded frame number.
	if err := utf8.Encode(bw, enc.frameNum); err != nil {
		return errors.WithStack(err)
	}
	// 8 or 16 bits: block size - 1.
	if bsSpec == 0x6 {
		if err := bw.WriteBits(uint64(blockSize-1), 8); err != nil {
			return errors.WithStack(err)
		}
	} else {
		if err := bw.WriteBits(uint64(blockSize-1), 16); err != nil {
			return errors.WithStack(err)
		}
	}
	if err := bw.Close(); err != nil {
		return errors.WithStack(err)
	}

	// 8 bits: CRC-8 of the header bytes written so far.
	if _, err := w.Write([]byte{h8.Sum8()}); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// sampleSizeSpec returns the sample size spec of the given sample size, or
// the inherit-from-StreamInfo spec when no dedicated code exists.
func sampleSizeSpec(bitDepth int) uint64 {
	switch bitDepth {
	case 8:
		return 0x1
	case 12:
		return 0x2
	case 16:
		return 0x4
	case 20:
		return 0x5
	case 24:
		return 0x6
	default:
		return 0x0
	}
}

// writeBlockHeader writes a metadata block header.
func writeBlockHeader(w io.Writer, hdr meta.Header) error {
	bw := bitio.NewWriter(w)
	x := uint64(0)
	if hdr.IsLast {
		x = 1
	}
	if err := bw.WriteBits(x, 1); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(uint64(hdr.Type), 7); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(uint64(hdr.Length), 24); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// writeStreamInfo writes the 34-byte body of a StreamInfo metadata block.
func writeStreamInfo(w io.Writer, si *meta.StreamInfo) error {
	bw := bitio.NewWriter(w)
	if err := bw.WriteBits(uint64(si.BlockSizeMin), 16); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(uint64(si.BlockSizeMax), 16); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(uint64(si.FrameSizeMin), 24); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(uint64(si.FrameSizeMax), 24); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(uint64(si.SampleRate), 20); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(uint64(si.NChannels-1), 3); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(uint64(si.BitsPerSample-1), 5); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(si.NSamples&(1<<36-1), 36); err != nil {
		return errors.WithStack(err)
	}
	if _, err := bw.Write(si.MD5sum[:]); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
