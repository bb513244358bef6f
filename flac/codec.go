package flac

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
)

func init() {
	wavify.RegisterFormat("flac", []byte(signature), []string{".flac"}, codec{})
}

// Decode reads an entire encoded stream from r and returns its samples as
// one interleaved buffer.
func Decode(r io.Reader) (*audio.IntBuffer, error) {
	stream, err := Parse(r)
	if err != nil {
		return nil, err
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: int(stream.Info.NChannels),
			SampleRate:  int(stream.Info.SampleRate),
		},
		SourceBitDepth: int(stream.Info.BitsPerSample),
		Data:           make([]int, 0, int(stream.samplesDecoded)*int(stream.Info.NChannels)),
	}
	for _, f := range stream.Frames {
		for i := 0; i < f.BlockSize; i++ {
			for _, subframe := range f.Subframes {
				buf.Data = append(buf.Data, int(subframe.Samples[i]))
			}
		}
	}
	return buf, nil
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
	enc, err := NewEncoder(w, format, bitDepth, opts...)
	if err != nil {
		return nil, err
	}
	return chunkWriter{enc}, nil
}

func (codec) StreamDecode(r io.Reader, chunkSize int) (wavify.ChunkReader, error) {
	return NewChunkReader(r, chunkSize)
}

func (codec) Info(r io.Reader) (*wavify.Info, error) {
	stream, err := New(r)
	if err != nil {
		return nil, err
	}
	return &wavify.Info{
		Format: &audio.Format{
			NumChannels: int(stream.Info.NChannels),
			SampleRate:  int(stream.Info.SampleRate),
		},
		BitDepth:    int(stream.Info.BitsPerSample),
		TotalFrames: int64(stream.Info.NSamples),
	}, nil
}

// chunkWriter adapts Encoder to the wavify.ChunkWriter interface.
type chunkWriter struct {
	enc *Encoder
}

func (cw chunkWriter) WriteChunk(buf *audio.IntBuffer) error { return cw.enc.Write(buf) }
func (cw chunkWriter) Close() error                          { return cw.enc.Close() }

// A ChunkReader decodes an encoded stream chunk by chunk, re-segmenting the
// decoded samples into chunks of a caller-chosen size regardless of how the
// stream groups them into frames. Samples straddling a frame/chunk boundary
// wait in a pending queue until the next read.
type ChunkReader struct {
	stream    *Stream
	format    *audio.Format
	chunkSize int
	pending   []int
	eos       bool
}

// NewChunkReader parses the metadata of r and returns a reader yielding the
// decoded samples in chunks of chunkSize interleaved sample frames. The
// final chunk of a stream may be short.
func NewChunkReader(r io.Reader, chunkSize int) (*ChunkReader, error) {
	if chunkSize < 1 {
		return nil, errors.Wrapf(wavify.ErrInvalidArgument, "flac: invalid chunk size %d", chunkSize)
	}
	stream, err := New(r)
	if err != nil {
		return nil, err
	}
	return &ChunkReader{
		stream: stream,
		format: &audio.Format{
			NumChannels: int(stream.Info.NChannels),
			SampleRate:  int(stream.Info.SampleRate),
		},
		chunkSize: chunkSize,
	}, nil
}

// ReadChunk returns the next chunk of decoded samples. It returns io.EOF
// after the final chunk has been delivered, and wavify.ErrInvalidFormat
// when the stream ends with fewer samples than StreamInfo declares.
func (cr *ChunkReader) ReadChunk() (*audio.IntBuffer, error) {
	stride := cr.chunkSize * cr.format.NumChannels
	for len(cr.pending) < stride && !cr.eos {
		f, err := cr.stream.ParseNext()
		if err == io.EOF {
			cr.eos = true
			info := cr.stream.Info
			if info.NSamples != 0 && cr.stream.samplesDecoded < info.NSamples {
				return nil, errors.Wrapf(wavify.ErrInvalidFormat, "flac: short stream; expected %d samples, got %d", info.NSamples, cr.stream.samplesDecoded)
			}
			break
		}
		if err != nil {
			return nil, err
		}
		for i := 0; i < f.BlockSize; i++ {
			for _, subframe := range f.Subframes {
				cr.pending = append(cr.pending, int(subframe.Samples[i]))
			}
		}
	}
	if len(cr.pending) == 0 {
		return nil, io.EOF
	}
	n := stride
	if n > len(cr.pending) {
		n = len(cr.pending)
	}
	data := make([]int, n)
	copy(data, cr.pending[:n])
	cr.pending = cr.pending[n:]
	return &audio.IntBuffer{
		Format:         cr.format,
		SourceBitDepth: int(cr.stream.Info.BitsPerSample),
		Data:           data,
	}, nil
}
