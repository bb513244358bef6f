package flac

import (
	"bytes"
	"crypto/md5"
	"hash"
	"io"

	"github.com/go-audio/audio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
	"github.com/ydah/wavify/flac/frame"
	"github.com/ydah/wavify/flac/meta"
)

// defaultBlockSize is the block size in sample frames used by the PerChunk
// and FixedBlock strategies when the caller does not configure one.
const defaultBlockSize = 4096

// EncodeStats tracks the running minimum and maximum block size (in
// samples) and frame size (in bytes) of the frames written so far. The
// final values are persisted in the StreamInfo block on Close.
type EncodeStats struct {
	BlockSizeMin int
	BlockSizeMax int
	FrameSizeMin int
	FrameSizeMax int
}

// add merges one written frame into the stats.
func (stats *EncodeStats) add(blockSize, frameSize int) {
	if stats.BlockSizeMin == 0 || blockSize < stats.BlockSizeMin {
		stats.BlockSizeMin = blockSize
	}
	if blockSize > stats.BlockSizeMax {
		stats.BlockSizeMax = blockSize
	}
	if stats.FrameSizeMin == 0 || frameSize < stats.FrameSizeMin {
		stats.FrameSizeMin = frameSize
	}
	if frameSize > stats.FrameSizeMax {
		stats.FrameSizeMax = frameSize
	}
}

// An encoder holds the per-stream state shared by the streaming and
// whole-buffer encode paths: the audio format, the running content checksum
// and the frame bookkeeping.
type encoder struct {
	// Channel count and sample rate of the stream.
	format audio.Format
	// Sample size in bits-per-sample.
	bitDepth int
	// Running MD5 checksum of the unencoded audio samples.
	md5sum hash.Hash
	// Running min/max block and frame sizes.
	stats EncodeStats
	// Number of the next frame.
	frameNum uint64
	// Total number of inter-channel samples written so far.
	nsamples uint64
}

func newEncoder(format *audio.Format, bitDepth int) (*encoder, error) {
	if err := validateFormat(format, bitDepth); err != nil {
		return nil, err
	}
	return &encoder{
		format:   *format,
		bitDepth: bitDepth,
		md5sum:   md5.New(),
	}, nil
}

// validateFormat rejects audio formats the encoder cannot represent.
// Formats that are well-formed but beyond the bitstream's limits report
// wavify.ErrUnsupportedFormat; nonsensical ones report
// wavify.ErrInvalidArgument.
func validateFormat(format *audio.Format, bitDepth int) error {
	if format == nil {
		return errors.Wrap(wavify.ErrInvalidArgument, "flac: missing audio format")
	}
	if format.NumChannels < 1 {
		return errors.Wrapf(wavify.ErrInvalidArgument, "flac: invalid channel count %d", format.NumChannels)
	}
	if format.NumChannels > 8 {
		return errors.Wrapf(wavify.ErrUnsupportedFormat, "flac: unable to encode %d channels; at most 8 channels are supported", format.NumChannels)
	}
	if format.SampleRate < 1 || format.SampleRate >= 1<<20 {
		return errors.Wrapf(wavify.ErrInvalidArgument, "flac: invalid sample rate %d", format.SampleRate)
	}
	if bitDepth > 32 {
		return errors.Wrapf(wavify.ErrUnsupportedFormat, "flac: unable to encode %d bits-per-sample; at most 32 bits are supported", bitDepth)
	}
	if bitDepth < 4 {
		return errors.Wrapf(wavify.ErrInvalidArgument, "flac: invalid sample size %d", bitDepth)
	}
	return nil
}

// validateChunk rejects caller-supplied sample chunks before any I/O takes
// place.
func (enc *encoder) validateChunk(chunk *audio.IntBuffer) error {
	if chunk == nil || chunk.Data == nil {
		return errors.Wrap(wavify.ErrInvalidArgument, "flac: missing sample chunk")
	}
	if chunk.Format != nil && *chunk.Format != enc.format {
		return errors.Wrapf(wavify.ErrInvalidArgument, "flac: chunk format %+v differs from stream format %+v", *chunk.Format, enc.format)
	}
	if len(chunk.Data)%enc.format.NumChannels != 0 {
		return errors.Wrapf(wavify.ErrInvalidArgument, "flac: sample count (%d) is not a multiple of the channel count (%d)", len(chunk.Data), enc.format.NumChannels)
	}
	return nil
}

// hashChunk folds the PCM bytes of a sample chunk into the running content
// checksum, packing each sample in little-endian byte order at the stream's
// sample size.
func (enc *encoder) hashChunk(data []int) {
	var buf [4]byte
	var width int
	switch {
	case enc.bitDepth <= 8:
		width = 1
	case enc.bitDepth <= 16:
		width = 2
	case enc.bitDepth <= 24:
		width = 3
	default:
		width = 4
	}
	for _, sample := range data {
		for i := 0; i < width; i++ {
			buf[i] = uint8(sample >> uint(8*i))
		}
		enc.md5sum.Write(buf[:width])
	}
}

// streamInfo finalizes the StreamInfo block of the stream written so far.
func (enc *encoder) streamInfo() meta.StreamInfo {
	si := meta.StreamInfo{
		BlockSizeMin:  uint16(enc.stats.BlockSizeMin),
		BlockSizeMax:  uint16(enc.stats.BlockSizeMax),
		FrameSizeMin:  uint32(enc.stats.FrameSizeMin),
		FrameSizeMax:  uint32(enc.stats.FrameSizeMax),
		SampleRate:    uint32(enc.format.SampleRate),
		NChannels:     uint8(enc.format.NumChannels),
		BitsPerSample: uint8(enc.bitDepth),
		NSamples:      enc.nsamples,
	}
	enc.md5sum.Sum(si.MD5sum[:0])
	return si
}

// An Encoder writes an encoded audio stream chunk by chunk. The output
// writer must be seekable: the StreamInfo block is written zero-filled when
// the encoder is created and patched in place by Close, once the sample
// total, checksum and frame statistics are known.
type Encoder struct {
	*encoder
	w    io.WriteSeeker
	opts wavify.StreamOptions
	// Offset of the StreamInfo block body, patched by Close.
	infoOffset int64
	// Interleaved samples buffered between chunks by the PerChunk and
	// FixedBlock strategies.
	pending []int
	closed  bool
}

// NewEncoder writes the stream signature and a zero-filled StreamInfo
// placeholder to w and returns an encoder accepting sample chunks. It fails
// fast with wavify.ErrNotSeekable when w is not an io.WriteSeeker, since
// Close must seek back to finalize the StreamInfo block.
func NewEncoder(w io.Writer, format *audio.Format, bitDepth int, opts ...wavify.StreamOption) (*Encoder, error) {
	e, err := newEncoder(format, bitDepth)
	if err != nil {
		return nil, err
	}
	o := wavify.StreamOptions{BlockSize: defaultBlockSize, Strategy: wavify.PerChunk}
	for _, opt := range opts {
		opt(&o)
	}
	if o.BlockSize < 1 || o.BlockSize > frame.MaxBlockSize {
		return nil, errors.Wrapf(wavify.ErrInvalidArgument, "flac: invalid block size %d", o.BlockSize)
	}
	ws, ok := w.(io.WriteSeeker)
	if !ok {
		return nil, errors.Wrap(wavify.ErrNotSeekable, "flac: streaming encoding requires a seekable writer")
	}

	enc := &Encoder{encoder: e, w: ws, opts: o}
	if err := enc.writeHeader(); err != nil {
		return nil, err
	}
	return enc, nil
}

// writeHeader writes the stream signature, the StreamInfo block header and
// a zero-filled StreamInfo body, recording the body offset for Close.
func (enc *Encoder) writeHeader() error {
	if _, err := io.WriteString(enc.w, signature); err != nil {
		return errors.WithStack(err)
	}
	hdr := meta.Header{IsLast: true, Type: meta.TypeStreamInfo, Length: meta.StreamInfoLen}
	if err := writeBlockHeader(enc.w, hdr); err != nil {
		return err
	}
	offset, err := enc.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.WithStack(err)
	}
	enc.infoOffset = offset
	var placeholder [meta.StreamInfoLen]byte
	if _, err := enc.w.Write(placeholder[:]); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Write encodes one chunk of interleaved samples. The content checksum is
// updated for the entire chunk before any frame is written, so a mid-write
// failure leaves the checksum consistent with the samples seen. How the
// chunk maps onto encoded frames depends on the block-size strategy.
func (enc *Encoder) Write(chunk *audio.IntBuffer) error {
	if enc.closed {
		return errors.Wrap(wavify.ErrInvalidArgument, "flac: write on closed encoder")
	}
	if err := enc.validateChunk(chunk); err != nil {
		return err
	}
	if enc.opts.Strategy == wavify.SourceChunk {
		if n := len(chunk.Data) / enc.format.NumChannels; n > frame.MaxBlockSize {
			return errors.Wrapf(wavify.ErrInvalidArgument, "flac: chunk of %d sample frames exceeds the maximum block size (%d)", n, frame.MaxBlockSize)
		}
	}
	enc.hashChunk(chunk.Data)
	enc.nsamples += uint64(len(chunk.Data) / enc.format.NumChannels)

	switch enc.opts.Strategy {
	case wavify.SourceChunk:
		// One frame per caller-supplied chunk, preserving its boundaries.
		if len(chunk.Data) == 0 {
			return nil
		}
		return enc.encodeFrame(enc.w, chunk.Data)
	default:
		// PerChunk and FixedBlock re-chunk pending samples into blocks of
		// the configured block size, carrying remainders over.
		enc.pending = append(enc.pending, chunk.Data...)
		stride := enc.opts.BlockSize * enc.format.NumChannels
		for len(enc.pending) >= stride {
			if err := enc.encodeFrame(enc.w, enc.pending[:stride]); err != nil {
				return err
			}
			enc.pending = enc.pending[stride:]
		}
		return nil
	}
}

// Stats returns the running frame statistics of the stream.
func (enc *Encoder) Stats() EncodeStats {
	return enc.stats
}

// Close flushes any buffered samples as a final (possibly short) frame,
// seeks back to the StreamInfo placeholder, overwrites it with the
// finalized block and restores the cursor to the end of the stream.
func (enc *Encoder) Close() error {
	if enc.closed {
		return nil
	}
	enc.closed = true
	if len(enc.pending) > 0 {
		if err := enc.encodeFrame(enc.w, enc.pending); err != nil {
			return err
		}
		enc.pending = nil
	}

	end, err := enc.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := enc.w.Seek(enc.infoOffset, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	si := enc.streamInfo()
	if err := writeStreamInfo(enc.w, &si); err != nil {
		return err
	}
	if _, err := enc.w.Seek(end, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Encode encodes buf as one complete stream to w. Unlike the streaming
// Encoder it buffers the encoded frames in memory, so the finalized
// StreamInfo block is written up front and w needs no seeking support.
func Encode(w io.Writer, buf *audio.IntBuffer, opts ...wavify.StreamOption) error {
	if buf == nil || buf.Data == nil {
		return errors.Wrap(wavify.ErrInvalidArgument, "flac: missing sample buffer")
	}
	enc, err := newEncoder(buf.Format, bufBitDepth(buf))
	if err != nil {
		return err
	}
	o := wavify.StreamOptions{BlockSize: defaultBlockSize, Strategy: wavify.PerChunk}
	for _, opt := range opts {
		opt(&o)
	}
	if o.BlockSize < 1 || o.BlockSize > frame.MaxBlockSize {
		return errors.Wrapf(wavify.ErrInvalidArgument, "flac: invalid block size %d", o.BlockSize)
	}
	if err := enc.validateChunk(buf); err != nil {
		return err
	}
	nframes := len(buf.Data) / enc.format.NumChannels
	if o.Strategy == wavify.SourceChunk && nframes > frame.MaxBlockSize {
		return errors.Wrapf(wavify.ErrInvalidArgument, "flac: buffer of %d sample frames exceeds the maximum block size (%d)", nframes, frame.MaxBlockSize)
	}
	enc.hashChunk(buf.Data)
	enc.nsamples = uint64(nframes)

	frames := new(bytes.Buffer)
	data := buf.Data
	stride := o.BlockSize * enc.format.NumChannels
	if o.Strategy == wavify.SourceChunk {
		stride = len(data)
	}
	for len(data) > 0 {
		n := stride
		if n > len(data) {
			n = len(data)
		}
		if err := enc.encodeFrame(frames, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}

	if _, err := io.WriteString(w, signature); err != nil {
		return errors.WithStack(err)
	}
	hdr := meta.Header{IsLast: true, Type: meta.TypeStreamInfo, Length: meta.StreamInfoLen}
	if err := writeBlockHeader(w, hdr); err != nil {
		return err
	}
	si := enc.streamInfo()
	if err := writeStreamInfo(w, &si); err != nil {
		return err
	}
	if _, err := io.Copy(w, frames); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// bufBitDepth resolves the sample size of a buffer, defaulting to 16
// bits-per-sample when the buffer does not record one.
func bufBitDepth(buf *audio.IntBuffer) int {
	if buf != nil && buf.SourceBitDepth > 0 {
		return buf.SourceBitDepth
	}
	return 16
}
