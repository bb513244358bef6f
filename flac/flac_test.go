package flac_test

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/icza/bitio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
	"github.com/ydah/wavify/flac"
	"github.com/ydah/wavify/flac/internal/hashutil/crc16"
	"github.com/ydah/wavify/flac/internal/hashutil/crc8"
	"github.com/ydah/wavify/flac/internal/utf8"
)

func monoFormat(rate int) *audio.Format {
	return &audio.Format{NumChannels: 1, SampleRate: rate}
}

func stereoFormat(rate int) *audio.Format {
	return &audio.Format{NumChannels: 2, SampleRate: rate}
}

func TestRoundTrip(t *testing.T) {
	golden := []struct {
		name string
		buf  *audio.IntBuffer
		opts []wavify.StreamOption
	}{
		{
			name: "mono 16-bit",
			buf: &audio.IntBuffer{
				Format:         monoFormat(44100),
				SourceBitDepth: 16,
				Data:           []int{0, 1000, -1000, 32767, -32768, 1, -1, 0},
			},
		},
		{
			name: "stereo 16-bit",
			buf: &audio.IntBuffer{
				Format:         stereoFormat(48000),
				SourceBitDepth: 16,
				Data:           []int{100, -100, 200, -200, 300, -300, 400, -400},
			},
		},
		{
			name: "mono 8-bit",
			buf: &audio.IntBuffer{
				Format:         monoFormat(8000),
				SourceBitDepth: 8,
				Data:           []int{0, 127, -128, 5, -5},
			},
		},
		{
			name: "stereo 24-bit",
			buf: &audio.IntBuffer{
				Format:         stereoFormat(96000),
				SourceBitDepth: 24,
				Data:           []int{1 << 22, -(1 << 22), 8388607, -8388608, 0, 42},
			},
		},
		{
			name: "linear ramp",
			buf: &audio.IntBuffer{
				Format:         monoFormat(44100),
				SourceBitDepth: 16,
				Data:           []int{1000, 1010, 1020, 1030, 1040, 1050},
			},
		},
		{
			name: "ramp across several blocks",
			buf: &audio.IntBuffer{
				Format:         monoFormat(44100),
				SourceBitDepth: 16,
				Data:           ramp(1000),
			},
			opts: []wavify.StreamOption{wavify.WithBlockSize(64)},
		},
	}
	for _, g := range golden {
		t.Run(g.name, func(t *testing.T) {
			out := new(bytes.Buffer)
			if err := flac.Encode(out, g.buf, g.opts...); err != nil {
				t.Fatalf("unable to encode; %+v", err)
			}
			got, err := flac.Decode(bytes.NewReader(out.Bytes()))
			if err != nil {
				t.Fatalf("unable to decode; %+v", err)
			}
			if !equal(got.Data, g.buf.Data) {
				t.Errorf("sample mismatch; expected %v, got %v", g.buf.Data, got.Data)
			}
			if got.Format.NumChannels != g.buf.Format.NumChannels || got.Format.SampleRate != g.buf.Format.SampleRate {
				t.Errorf("format mismatch; expected %+v, got %+v", g.buf.Format, got.Format)
			}
			if got.SourceBitDepth != g.buf.SourceBitDepth {
				t.Errorf("bit depth mismatch; expected %d, got %d", g.buf.SourceBitDepth, got.SourceBitDepth)
			}
		})
	}
}

// ramp returns a deterministic but non-trivial sample sequence.
func ramp(n int) []int {
	data := make([]int, n)
	for i := range data {
		data[i] = (i*37)%3000 - 1500
	}
	return data
}

func TestContentChecksum(t *testing.T) {
	buf := &audio.IntBuffer{
		Format:         monoFormat(44100),
		SourceBitDepth: 16,
		Data:           ramp(100),
	}
	out := new(bytes.Buffer)
	if err := flac.Encode(out, buf); err != nil {
		t.Fatalf("unable to encode; %+v", err)
	}
	stream, err := flac.Parse(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("unable to parse; %+v", err)
	}
	// The embedded checksum must equal the MD5 of the decoded PCM bytes.
	md5sum := md5.New()
	var b [2]byte
	for _, sample := range buf.Data {
		binary.LittleEndian.PutUint16(b[:], uint16(int16(sample)))
		md5sum.Write(b[:])
	}
	if got, want := stream.Info.MD5sum[:], md5sum.Sum(nil); !bytes.Equal(got, want) {
		t.Errorf("md5 mismatch; expected %32x, got %32x", want, got)
	}
}

func TestFrameCRC(t *testing.T) {
	buf := &audio.IntBuffer{
		Format:         monoFormat(44100),
		SourceBitDepth: 16,
		Data:           []int{10, 12, 11, 13},
	}
	out := new(bytes.Buffer)
	if err := flac.Encode(out, buf); err != nil {
		t.Fatalf("unable to encode; %+v", err)
	}
	data := out.Bytes()
	// Signature (4) + block header (4) + StreamInfo (34).
	const frameStart = 42
	// Frame header of frame 0 with an 8-bit block size: 4 fixed bytes, a
	// 1-byte frame number and the block size byte, then the CRC-8.
	const headerLen = 6
	gotCRC8 := data[frameStart+headerLen]
	if want := crc8.ChecksumATM(data[frameStart : frameStart+headerLen]); gotCRC8 != want {
		t.Errorf("header crc8 mismatch; expected %#02x, got %#02x", want, gotCRC8)
	}
	gotCRC16 := binary.BigEndian.Uint16(data[len(data)-2:])
	if want := crc16.ChecksumIBM(data[frameStart : len(data)-2]); gotCRC16 != want {
		t.Errorf("frame crc16 mismatch; expected %#04x, got %#04x", want, gotCRC16)
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	// Residuals spanning more than 30 bits of dynamic range must survive
	// through the escape path of the residual coder.
	data := make([]int, 20)
	for i := range data {
		v := 1<<30 - 1 - i*1000
		if i%2 == 1 {
			v = -v
		}
		data[i] = v
	}
	buf := &audio.IntBuffer{
		Format:         monoFormat(44100),
		SourceBitDepth: 32,
		Data:           data,
	}
	out := new(bytes.Buffer)
	if err := flac.Encode(out, buf); err != nil {
		t.Fatalf("unable to encode; %+v", err)
	}
	got, err := flac.Decode(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("unable to decode; %+v", err)
	}
	if !equal(got.Data, buf.Data) {
		t.Errorf("sample mismatch; expected %v, got %v", buf.Data, got.Data)
	}
}

func TestStreamEncode(t *testing.T) {
	golden := []struct {
		name          string
		opts          []wavify.StreamOption
		chunks        [][]int // mono chunks
		wantBlockMin  int
		wantBlockMax  int
		wantNumFrames int
	}{
		{
			name:          "per_chunk regroups across chunks",
			opts:          []wavify.StreamOption{wavify.WithBlockSize(4)},
			chunks:        [][]int{{1, 2, 3, 4, 5, 6}, {7, 8, 9, 10, 11, 12}},
			wantBlockMin:  4,
			wantBlockMax:  4,
			wantNumFrames: 3,
		},
		{
			name: "fixed flushes a short tail",
			opts: []wavify.StreamOption{
				wavify.WithBlockSize(5),
				wavify.WithBlockSizeStrategy(wavify.FixedBlock),
			},
			chunks:        [][]int{{1, 2, 3}, {4, 5, 6, 7}},
			wantBlockMin:  2,
			wantBlockMax:  5,
			wantNumFrames: 2,
		},
		{
			name: "source_chunk preserves chunk boundaries",
			opts: []wavify.StreamOption{
				wavify.WithBlockSizeStrategy(wavify.SourceChunk),
			},
			chunks:        [][]int{{1, 2, 3}, {4, 5, 6, 7, 8}},
			wantBlockMin:  3,
			wantBlockMax:  5,
			wantNumFrames: 2,
		},
	}
	for _, g := range golden {
		t.Run(g.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.flac")
			f, err := os.Create(path)
			if err != nil {
				t.Fatalf("unable to create output file; %v", err)
			}
			defer f.Close()
			enc, err := flac.NewEncoder(f, monoFormat(44100), 16, g.opts...)
			if err != nil {
				t.Fatalf("unable to create encoder; %+v", err)
			}
			var want []int
			for _, chunk := range g.chunks {
				buf := &audio.IntBuffer{Format: monoFormat(44100), SourceBitDepth: 16, Data: chunk}
				if err := enc.Write(buf); err != nil {
					t.Fatalf("unable to write chunk; %+v", err)
				}
				want = append(want, chunk...)
			}
			if err := enc.Close(); err != nil {
				t.Fatalf("unable to close encoder; %+v", err)
			}

			stream, err := flac.ParseFile(path)
			if err != nil {
				t.Fatalf("unable to parse; %+v", err)
			}
			defer stream.Close()
			if got := int(stream.Info.BlockSizeMin); got != g.wantBlockMin {
				t.Errorf("min block size mismatch; expected %d, got %d", g.wantBlockMin, got)
			}
			if got := int(stream.Info.BlockSizeMax); got != g.wantBlockMax {
				t.Errorf("max block size mismatch; expected %d, got %d", g.wantBlockMax, got)
			}
			if got := int(stream.Info.NSamples); got != len(want) {
				t.Errorf("sample total mismatch; expected %d, got %d", len(want), got)
			}
			if got := len(stream.Frames); got != g.wantNumFrames {
				t.Errorf("frame count mismatch; expected %d, got %d", g.wantNumFrames, got)
			}
			var got []int
			for _, fr := range stream.Frames {
				for i := 0; i < fr.BlockSize; i++ {
					got = append(got, int(fr.Subframes[0].Samples[i]))
				}
			}
			if !equal(got, want) {
				t.Errorf("sample mismatch; expected %v, got %v", want, got)
			}
		})
	}
}

func TestChunkReader(t *testing.T) {
	// Encode with block size 4; read back in chunks of 5 to force
	// re-segmentation across frame boundaries.
	buf := &audio.IntBuffer{
		Format:         monoFormat(44100),
		SourceBitDepth: 16,
		Data:           ramp(12),
	}
	out := new(bytes.Buffer)
	if err := flac.Encode(out, buf, wavify.WithBlockSize(4)); err != nil {
		t.Fatalf("unable to encode; %+v", err)
	}
	cr, err := flac.NewChunkReader(bytes.NewReader(out.Bytes()), 5)
	if err != nil {
		t.Fatalf("unable to create chunk reader; %+v", err)
	}
	var got []int
	var sizes []int
	for {
		chunk, err := cr.ReadChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unable to read chunk; %+v", err)
		}
		sizes = append(sizes, len(chunk.Data))
		got = append(got, chunk.Data...)
	}
	if want := []int{5, 5, 2}; !equal(sizes, want) {
		t.Errorf("chunk size mismatch; expected %v, got %v", want, sizes)
	}
	if !equal(got, buf.Data) {
		t.Errorf("sample mismatch; expected %v, got %v", buf.Data, got)
	}
}

func TestShortStream(t *testing.T) {
	// Encode eight samples as two frames, then cut the stream at the frame
	// boundary. The remaining stream ends cleanly but holds fewer samples
	// than StreamInfo declares.
	full := new(bytes.Buffer)
	buf := &audio.IntBuffer{Format: monoFormat(44100), SourceBitDepth: 16, Data: ramp(8)}
	if err := flac.Encode(full, buf, wavify.WithBlockSize(4)); err != nil {
		t.Fatalf("unable to encode; %+v", err)
	}
	half := new(bytes.Buffer)
	first := &audio.IntBuffer{Format: monoFormat(44100), SourceBitDepth: 16, Data: ramp(8)[:4]}
	if err := flac.Encode(half, first, wavify.WithBlockSize(4)); err != nil {
		t.Fatalf("unable to encode; %+v", err)
	}
	// The first frame of both streams is byte-identical, so the length of
	// the one-frame stream marks the frame boundary in the two-frame one.
	truncated := full.Bytes()[:half.Len()]
	_, err := flac.Parse(bytes.NewReader(truncated))
	if !errors.Is(err, wavify.ErrInvalidFormat) {
		t.Errorf("error mismatch; expected ErrInvalidFormat, got %v", err)
	}
}

func TestEncodeErrors(t *testing.T) {
	golden := []struct {
		name string
		buf  *audio.IntBuffer
		opts []wavify.StreamOption
		want error
	}{
		{
			name: "sample count not a multiple of channels",
			buf: &audio.IntBuffer{
				Format:         stereoFormat(44100),
				SourceBitDepth: 16,
				Data:           []int{1, 2, 3},
			},
			want: wavify.ErrInvalidArgument,
		},
		{
			name: "too many channels",
			buf: &audio.IntBuffer{
				Format:         &audio.Format{NumChannels: 9, SampleRate: 44100},
				SourceBitDepth: 16,
				Data:           make([]int, 9),
			},
			want: wavify.ErrUnsupportedFormat,
		},
		{
			name: "bit depth too large",
			buf: &audio.IntBuffer{
				Format:         monoFormat(44100),
				SourceBitDepth: 33,
				Data:           []int{1, 2},
			},
			want: wavify.ErrUnsupportedFormat,
		},
		{
			name: "block size too large",
			buf: &audio.IntBuffer{
				Format:         monoFormat(44100),
				SourceBitDepth: 16,
				Data:           []int{1, 2},
			},
			opts: []wavify.StreamOption{wavify.WithBlockSize(65537)},
			want: wavify.ErrInvalidArgument,
		},
		{
			name: "missing format",
			buf:  &audio.IntBuffer{SourceBitDepth: 16, Data: []int{1}},
			want: wavify.ErrInvalidArgument,
		},
	}
	for _, g := range golden {
		t.Run(g.name, func(t *testing.T) {
			err := flac.Encode(io.Discard, g.buf, g.opts...)
			if !errors.Is(err, g.want) {
				t.Errorf("error mismatch; expected %v, got %v", g.want, err)
			}
		})
	}
}

func TestEncoderNotSeekable(t *testing.T) {
	_, err := flac.NewEncoder(new(bytes.Buffer), monoFormat(44100), 16)
	if !errors.Is(err, wavify.ErrNotSeekable) {
		t.Errorf("error mismatch; expected ErrNotSeekable, got %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	golden := []struct {
		name string
		data []byte
		want error
	}{
		{
			name: "bad magic",
			data: []byte("fLaK\x80\x00\x00\x22"),
			want: wavify.ErrInvalidFormat,
		},
		{
			name: "truncated signature",
			data: []byte("fL"),
			want: wavify.ErrInvalidFormat,
		},
		{
			name: "first block not StreamInfo",
			data: []byte{'f', 'L', 'a', 'C', 0x81, 0x00, 0x00, 0x00},
			want: wavify.ErrInvalidFormat,
		},
		{
			name: "truncated block header",
			data: []byte("fLaC\x80\x00"),
			want: wavify.ErrInvalidFormat,
		},
		{
			name: "truncated StreamInfo body",
			data: []byte("fLaC\x80\x00\x00\x22\x10\x00"),
			want: wavify.ErrInvalidFormat,
		},
	}
	for _, g := range golden {
		t.Run(g.name, func(t *testing.T) {
			_, err := flac.Parse(bytes.NewReader(g.data))
			if !errors.Is(err, g.want) {
				t.Errorf("error mismatch; expected %v, got %v", g.want, err)
			}
		})
	}
}

// buildStream assembles a stream by hand: signature, a StreamInfo block for
// the given format, and one frame written by the callback. channelsSpec is
// the channel assignment of the frame header, which for the decorrelated
// stereo specs 8-10 differs from the channel count.
func buildStream(t *testing.T, channelsSpec uint64, nchannels, bps, blockSize int, writeSubframes func(bw *bitio.Writer)) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.WriteString("fLaC")
	bw := bitio.NewWriter(buf)
	// StreamInfo block header: last block, type 0, length 34.
	bw.WriteBits(1, 1)
	bw.WriteBits(0, 7)
	bw.WriteBits(34, 24)
	// StreamInfo body.
	bw.WriteBits(uint64(blockSize), 16)
	bw.WriteBits(uint64(blockSize), 16)
	bw.WriteBits(0, 24)
	bw.WriteBits(0, 24)
	bw.WriteBits(44100, 20)
	bw.WriteBits(uint64(nchannels-1), 3)
	bw.WriteBits(uint64(bps-1), 5)
	bw.WriteBits(uint64(blockSize), 36)
	for i := 0; i < 16; i++ {
		bw.WriteByte(0) // unknown md5; not verified
	}
	// Frame header: fixed blocking, 8-bit block size at end of header,
	// 44.1 kHz, 16 bits-per-sample, frame 0.
	bw.WriteBits(0x3FFE, 14)
	bw.WriteBits(0, 2)
	bw.WriteBits(0x6, 4)
	bw.WriteBits(0x9, 4)
	bw.WriteBits(channelsSpec, 4)
	bw.WriteBits(0x4, 3)
	bw.WriteBits(0, 1)
	utf8.Encode(bw, 0)
	bw.WriteBits(uint64(blockSize-1), 8)
	bw.WriteBits(0, 8) // CRC-8, not verified
	writeSubframes(bw)
	bw.Align()
	bw.WriteBits(0, 16) // CRC-16, not verified
	bw.Close()
	return buf.Bytes()
}

func TestDecodeConstantSubframes(t *testing.T) {
	// Two channels of constant subframes decode to interleaved pairs.
	data := buildStream(t, 1, 2, 16, 4, func(bw *bitio.Writer) {
		for _, value := range []uint64{42, 0x10000 - 42} {
			bw.WriteBits(0, 1)
			bw.WriteBits(0x00, 6) // constant
			bw.WriteBits(0, 1)
			bw.WriteBits(value, 16)
		}
	})
	got, err := flac.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("unable to decode; %+v", err)
	}
	want := []int{42, -42, 42, -42, 42, -42, 42, -42}
	if !equal(got.Data, want) {
		t.Errorf("sample mismatch; expected %v, got %v", want, got.Data)
	}
}

func TestDecodeLeftSide(t *testing.T) {
	// Left/side assignment (channel spec 8): the stored side channel is
	// left - right at 17 bits-per-sample.
	left := []int{100, 110, 120, 130}
	right := []int{4, 6, 8, 10}
	data := buildStream(t, 8, 2, 16, 4, func(bw *bitio.Writer) {
		bw.WriteBits(0, 1)
		bw.WriteBits(0x01, 6) // verbatim left
		bw.WriteBits(0, 1)
		for _, v := range left {
			bw.WriteBits(uint64(v), 16)
		}
		bw.WriteBits(0, 1)
		bw.WriteBits(0x01, 6) // verbatim side
		bw.WriteBits(0, 1)
		for i := range left {
			bw.WriteBits(uint64(left[i]-right[i]), 17)
		}
	})
	got, err := flac.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("unable to decode; %+v", err)
	}
	want := []int{100, 4, 110, 6, 120, 8, 130, 10}
	if !equal(got.Data, want) {
		t.Errorf("sample mismatch; expected %v, got %v", want, got.Data)
	}
}

func TestDecodeUnsupportedSubframe(t *testing.T) {
	data := buildStream(t, 0, 1, 16, 4, func(bw *bitio.Writer) {
		bw.WriteBits(0, 1)
		bw.WriteBits(0x02, 6) // reserved type code
		bw.WriteBits(0, 1)
	})
	_, err := flac.Decode(bytes.NewReader(data))
	if !errors.Is(err, wavify.ErrUnsupportedFormat) {
		t.Errorf("error mismatch; expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeChannelCountMismatch(t *testing.T) {
	// StreamInfo declares stereo; the frame is mono.
	data := buildStream(t, 1, 2, 16, 2, func(bw *bitio.Writer) {
		bw.WriteBits(0, 1)
		bw.WriteBits(0x00, 6)
		bw.WriteBits(0, 1)
		bw.WriteBits(7, 16)
	})
	// Overwrite the channel assignment nibble of the frame header: byte 45
	// holds [channels(4) | sample size(3) | reserved(1)].
	data[45] &= 0x0F
	_, err := flac.Decode(bytes.NewReader(data))
	if !errors.Is(err, wavify.ErrInvalidFormat) {
		t.Errorf("error mismatch; expected ErrInvalidFormat, got %v", err)
	}
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
