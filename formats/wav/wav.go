// Package wav adapts the RIFF/WAVE container to the wavify codec interface.
// The heavy lifting is done by github.com/go-audio/wav; this package only
// maps its API onto wavify.Codec and registers the format.
package wav

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
)

func init() {
	wavify.RegisterFormat("wav", []byte("RIFF"), []string{".wav"}, codec{})
}

// wavAudioFormat is the PCM format tag of the fmt chunk.
const wavAudioFormat = 1

// Decode reads an entire WAV stream from r and returns its samples as one
// interleaved buffer. The reader must be seekable.
func Decode(r io.Reader) (*audio.IntBuffer, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return nil, errors.Wrap(wavify.ErrNotSeekable, "wav: decoding requires a seekable reader")
	}
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, errors.Wrap(wavify.ErrInvalidFormat, "wav: invalid WAV stream")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	buf.SourceBitDepth = int(dec.BitDepth)
	return buf, nil
}

// Encode writes the samples of buf to w as one complete WAV stream. The
// writer must be seekable, since the RIFF chunk sizes are patched on close.
func Encode(w io.Writer, buf *audio.IntBuffer) error {
	if buf == nil || buf.Data == nil || buf.Format == nil {
		return errors.Wrap(wavify.ErrInvalidArgument, "wav: missing sample buffer")
	}
	ws, ok := w.(io.WriteSeeker)
	if !ok {
		return errors.Wrap(wavify.ErrNotSeekable, "wav: encoding requires a seekable writer")
	}
	if len(buf.Data)%buf.Format.NumChannels != 0 {
		return errors.Wrapf(wavify.ErrInvalidArgument, "wav: sample count (%d) is not a multiple of the channel count (%d)", len(buf.Data), buf.Format.NumChannels)
	}
	enc := wav.NewEncoder(ws, buf.Format.SampleRate, bufBitDepth(buf), buf.Format.NumChannels, wavAudioFormat)
	if err := enc.Write(buf); err != nil {
		return errors.WithStack(err)
	}
	if err := enc.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// codec adapts the package to the wavify.Codec interface.
type codec struct{}

func (codec) Decode(r io.Reader) (*audio.IntBuffer, error) {
	return Decode(r)
}

func (codec) Encode(w io.Writer, buf *audio.IntBuffer) error {
	return Encode(w, buf)
}

func (codec) StreamEncode(w io.Writer, format *audio.Format, bitDepth int, opts ...wavify.StreamOption) (wavify.ChunkWriter, error) {
	if format == nil || format.NumChannels < 1 {
		return nil, errors.Wrap(wavify.ErrInvalidArgument, "wav: missing audio format")
	}
	ws, ok := w.(io.WriteSeeker)
	if !ok {
		return nil, errors.Wrap(wavify.ErrNotSeekable, "wav: streaming encoding requires a seekable writer")
	}
	// Block-size options tune frame grouping in block-structured codecs;
	// WAV stores a flat sample stream, so they have no effect here.
	enc := wav.NewEncoder(ws, format.SampleRate, bitDepth, format.NumChannels, wavAudioFormat)
	return &chunkWriter{enc: enc, format: *format}, nil
}

func (codec) StreamDecode(r io.Reader, chunkSize int) (wavify.ChunkReader, error) {
	if chunkSize < 1 {
		return nil, errors.Wrapf(wavify.ErrInvalidArgument, "wav: invalid chunk size %d", chunkSize)
	}
	buf, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return &chunkReader{buf: buf, stride: chunkSize * buf.Format.NumChannels}, nil
}

func (codec) Info(r io.Reader) (*wavify.Info, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return nil, errors.Wrap(wavify.ErrNotSeekable, "wav: reading metadata requires a seekable reader")
	}
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, errors.Wrap(wavify.ErrInvalidFormat, "wav: invalid WAV stream")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, errors.WithStack(err)
	}
	info := &wavify.Info{
		Format: &audio.Format{
			NumChannels: int(dec.NumChans),
			SampleRate:  int(dec.SampleRate),
		},
		BitDepth: int(dec.BitDepth),
	}
	if frameBytes := int(dec.NumChans) * int(dec.BitDepth) / 8; frameBytes > 0 {
		info.TotalFrames = int64(dec.PCMSize / frameBytes)
	}
	return info, nil
}

// chunkWriter adapts wav.Encoder to the wavify.ChunkWriter interface.
type chunkWriter struct {
	enc    *wav.Encoder
	format audio.Format
}

func (cw *chunkWriter) WriteChunk(buf *audio.IntBuffer) error {
	if buf == nil || buf.Data == nil {
		return errors.Wrap(wavify.ErrInvalidArgument, "wav: missing sample chunk")
	}
	if buf.Format != nil && *buf.Format != cw.format {
		return errors.Wrapf(wavify.ErrInvalidArgument, "wav: chunk format %+v differs from stream format %+v", *buf.Format, cw.format)
	}
	if len(buf.Data)%cw.format.NumChannels != 0 {
		return errors.Wrapf(wavify.ErrInvalidArgument, "wav: sample count (%d) is not a multiple of the channel count (%d)", len(buf.Data), cw.format.NumChannels)
	}
	if err := cw.enc.Write(buf); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (cw *chunkWriter) Close() error {
	if err := cw.enc.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// chunkReader re-segments a fully decoded buffer into fixed-size chunks.
type chunkReader struct {
	buf    *audio.IntBuffer
	stride int
	off    int
}

func (cr *chunkReader) ReadChunk() (*audio.IntBuffer, error) {
	if cr.off >= len(cr.buf.Data) {
		return nil, io.EOF
	}
	n := cr.stride
	if rest := len(cr.buf.Data) - cr.off; n > rest {
		n = rest
	}
	data := make([]int, n)
	copy(data, cr.buf.Data[cr.off:cr.off+n])
	cr.off += n
	return &audio.IntBuffer{
		Format:         cr.buf.Format,
		SourceBitDepth: cr.buf.SourceBitDepth,
		Data:           data,
	}, nil
}

// bufBitDepth resolves the sample size of a buffer, defaulting to 16
// bits-per-sample when the buffer does not record one.
func bufBitDepth(buf *audio.IntBuffer) int {
	if buf.SourceBitDepth > 0 {
		return buf.SourceBitDepth
	}
	return 16
}
