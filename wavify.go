// Package wavify provides a toolkit for reading and writing audio streams.
//
// Audio samples are exchanged as interleaved integer PCM buffers
// (audio.IntBuffer from github.com/go-audio/audio), tagged with a format
// describing channel count and sample rate. Container formats implement the
// Codec interface and register themselves with the package, after which
// streams may be decoded through format auto-detection; importing a format
// package (e.g. github.com/ydah/wavify/flac) is enough to enable it, in the
// manner of the standard library image package.
package wavify

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-audio/audio"
)

// A Codec encodes and decodes audio streams of one container format.
type Codec interface {
	// Decode reads an entire stream from r and returns its samples as one
	// interleaved buffer.
	Decode(r io.Reader) (*audio.IntBuffer, error)
	// Encode writes the samples of buf to w as one complete stream.
	Encode(w io.Writer, buf *audio.IntBuffer) error
	// StreamDecode returns a reader yielding decoded samples in chunks of
	// chunkSize interleaved sample frames, regardless of how the underlying
	// stream groups them.
	StreamDecode(r io.Reader, chunkSize int) (ChunkReader, error)
	// StreamEncode returns a writer accepting caller-supplied sample chunks.
	// The caller must invoke Close to finalize the stream.
	StreamEncode(w io.Writer, format *audio.Format, bitDepth int, opts ...StreamOption) (ChunkWriter, error)
	// Info parses the stream metadata of r without decoding audio samples.
	Info(r io.Reader) (*Info, error)
}

// A ChunkReader yields decoded audio samples chunk by chunk. ReadChunk
// returns io.EOF after the final chunk has been delivered.
type ChunkReader interface {
	ReadChunk() (*audio.IntBuffer, error)
}

// A ChunkWriter accepts audio samples chunk by chunk. Close flushes any
// buffered samples and finalizes the stream metadata.
type ChunkWriter interface {
	WriteChunk(buf *audio.IntBuffer) error
	Close() error
}

// Info describes the basic properties of an audio stream.
type Info struct {
	// Channel count and sample rate of the stream.
	Format *audio.Format
	// Sample size in bits-per-sample.
	BitDepth int
	// Total number of inter-channel sample frames; 0 if unknown.
	TotalFrames int64
}

// format pairs a registered codec with its detection rules.
type format struct {
	name  string
	magic []byte
	exts  []string
	codec Codec
}

var (
	formatsMu sync.Mutex
	formats   []format
)

// RegisterFormat registers a codec for use by Detect functions. Name is the
// format name ("flac", "wav"), magic the byte prefix identifying the format,
// and exts the file extensions (including the leading dot) it claims.
func RegisterFormat(name string, magic []byte, exts []string, codec Codec) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats = append(formats, format{name: name, magic: magic, exts: exts, codec: codec})
}

// DetectMagic returns the codec registered for the given stream prefix.
func DetectMagic(prefix []byte) (name string, codec Codec, err error) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	for _, f := range formats {
		if len(f.magic) > 0 && bytes.HasPrefix(prefix, f.magic) {
			return f.name, f.codec, nil
		}
	}
	return "", nil, ErrUnknownFormat
}

// DetectPath returns the codec registered for the extension of path.
func DetectPath(path string) (name string, codec Codec, err error) {
	ext := strings.ToLower(filepath.Ext(path))
	formatsMu.Lock()
	defer formatsMu.Unlock()
	for _, f := range formats {
		for _, e := range f.exts {
			if e == ext {
				return f.name, f.codec, nil
			}
		}
	}
	return "", nil, ErrUnknownFormat
}

// Decode reads the first bytes of r, selects a registered codec by magic
// bytes, and decodes the entire stream. The reader must be seekable so the
// sniffed prefix can be rewound.
func Decode(rs io.ReadSeeker) (*audio.IntBuffer, error) {
	var prefix [8]byte
	n, err := io.ReadFull(rs, prefix[:])
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	_, codec, err := DetectMagic(prefix[:n])
	if err != nil {
		return nil, err
	}
	return codec.Decode(rs)
}
