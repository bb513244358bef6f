// Package flac implements a lossless audio codec with a FLAC-compatible
// bitstream layout.
//
// The basic structure of an encoded stream is:
//
//   - The four byte string signature "fLaC".
//   - The StreamInfo metadata block.
//   - Zero or more other metadata blocks.
//   - One or more audio frames.
//
// Decoding is permissive about stored checksums: the CRC-8 of each frame
// header and the CRC-16 of each frame are read but not verified, so streams
// with corrupt audio payloads decode without error as long as they stay
// structurally well-formed. Parse verifies the MD5 checksum of the decoded
// samples against StreamInfo when the stream records one.
package flac

import (
	"bytes"
	"crypto/md5"
	"io"
	"os"

	"github.com/icza/bitio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
	"github.com/ydah/wavify/flac/frame"
	"github.com/ydah/wavify/flac/meta"
)

// signature marks the start of an encoded stream.
const signature = "fLaC"

// A Stream is a handle for decoding an encoded audio stream.
type Stream struct {
	// The StreamInfo metadata block of the stream.
	Info *meta.StreamInfo
	// All metadata blocks of the stream, the StreamInfo block included.
	Blocks []*meta.Block
	// Audio frames; populated by Parse and ParseFile, nil when frames are
	// read one at a time through ParseNext.
	Frames []*frame.Frame
	// Bit reader positioned at the first audio frame.
	br *bitio.Reader
	// Number of inter-channel samples decoded so far.
	samplesDecoded uint64
	// Expected number of the next frame.
	nextNum uint64
	// Underlying io.Closer of streams opened by Open and ParseFile.
	c io.Closer
}

// New reads the stream signature and the metadata blocks of r and returns a
// stream handle positioned at the first audio frame. Call ParseNext to
// decode the audio frames.
func New(r io.Reader) (stream *Stream, err error) {
	stream = &Stream{}
	if err := stream.parseMeta(r); err != nil {
		return nil, err
	}
	return stream, nil
}

// Parse reads the metadata blocks and all audio frames of r, and verifies
// the MD5 checksum of the decoded audio samples against the one recorded in
// StreamInfo, when present.
func Parse(r io.Reader) (stream *Stream, err error) {
	stream, err = New(r)
	if err != nil {
		return nil, err
	}
	if err := stream.parseFrames(); err != nil {
		return nil, err
	}
	return stream, nil
}

// Open opens the provided file and returns a stream handle positioned at
// the first audio frame. Callers should close the stream when done reading
// from it.
func Open(path string) (stream *Stream, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stream, err = New(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	stream.c = f
	return stream, nil
}

// ParseFile opens the provided file and decodes it fully, the way Parse
// does. Callers should close the stream when done with it.
func ParseFile(path string) (stream *Stream, err error) {
	stream, err = Open(path)
	if err != nil {
		return nil, err
	}
	if err := stream.parseFrames(); err != nil {
		stream.Close()
		return nil, err
	}
	return stream, nil
}

// Close closes the underlying file of streams opened by Open and ParseFile.
// It is a no-op for streams created from a reader.
func (stream *Stream) Close() error {
	if stream.c != nil {
		return stream.c.Close()
	}
	return nil
}

// parseMeta verifies the stream signature and parses the metadata blocks
// preceding the audio frames. The first block must be StreamInfo.
func (stream *Stream) parseMeta(r io.Reader) error {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.Wrap(wavify.ErrInvalidFormat, "flac: unexpected end of stream while reading signature")
		}
		return errors.WithStack(err)
	}
	if sig := string(buf[:]); sig != signature {
		return errors.Wrapf(wavify.ErrInvalidFormat, "flac: invalid signature; expected %q, got %q", signature, sig)
	}

	isFirst := true
	for {
		block, err := meta.Parse(r)
		if err != nil {
			return err
		}
		if isFirst {
			si, ok := block.Body.(*meta.StreamInfo)
			if !ok {
				return errors.Wrapf(wavify.ErrInvalidFormat, "flac: first metadata block type is invalid; expected %d (StreamInfo), got %d", meta.TypeStreamInfo, block.Type)
			}
			stream.Info = si
			isFirst = false
		}
		stream.Blocks = append(stream.Blocks, block)
		if block.IsLast {
			break
		}
	}

	stream.br = bitio.NewReader(r)
	return nil
}

// ParseNext decodes and returns the next audio frame of the stream. It
// returns io.EOF to signal a graceful end of stream, and verifies that the
// frame is consistent with StreamInfo: a channel count mismatch or a
// non-sequential frame number reports a malformed stream.
func (stream *Stream) ParseNext() (f *frame.Frame, err error) {
	d := frame.StreamDefaults{
		SampleRate:    stream.Info.SampleRate,
		BitsPerSample: stream.Info.BitsPerSample,
	}
	f, err = frame.Parse(stream.br, d)
	if err != nil {
		return nil, err
	}
	if got := f.Channels.Count(); got != int(stream.Info.NChannels) {
		return nil, errors.Wrapf(wavify.ErrInvalidFormat, "flac: frame channel count (%d) differs from StreamInfo (%d)", got, stream.Info.NChannels)
	}
	if f.Num != stream.nextNum {
		return nil, errors.Wrapf(wavify.ErrInvalidFormat, "flac: non-sequential frame number; expected %d, got %d", stream.nextNum, f.Num)
	}
	stream.nextNum++
	stream.samplesDecoded += uint64(f.BlockSize)
	return f, nil
}

// parseFrames decodes the audio frames of the stream until end of stream,
// storing them in stream.Frames, and verifies the decoded sample count and
// MD5 checksum against StreamInfo.
func (stream *Stream) parseFrames() error {
	md5sum := md5.New()
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		f.Hash(md5sum)
		stream.Frames = append(stream.Frames, f)
	}
	if stream.Info.NSamples != 0 && stream.samplesDecoded < stream.Info.NSamples {
		return errors.Wrapf(wavify.ErrInvalidFormat, "flac: short stream; expected %d samples, got %d", stream.Info.NSamples, stream.samplesDecoded)
	}
	var zero [md5.Size]byte
	if stream.Info.MD5sum == zero {
		// Checksum of the source audio unknown; nothing to verify against.
		return nil
	}
	if got := md5sum.Sum(nil); !bytes.Equal(got, stream.Info.MD5sum[:]) {
		return errors.Wrapf(wavify.ErrInvalidFormat, "flac: md5 checksum mismatch; expected %32x, got %32x", stream.Info.MD5sum, got)
	}
	return nil
}
