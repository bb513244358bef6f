package wav_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
	"github.com/ydah/wavify/formats/wav"
)

func writeTemp(t *testing.T, buf *audio.IntBuffer) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("unable to create output file; %v", err)
	}
	defer f.Close()
	if err := wav.Encode(f, buf); err != nil {
		t.Fatalf("unable to encode; %+v", err)
	}
	return path
}

func TestRoundTrip(t *testing.T) {
	want := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 44100},
		SourceBitDepth: 16,
		Data:           []int{0, 1, -1, 1000, -1000, 32767, -32768, 42},
	}
	path := writeTemp(t, want)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("unable to open file; %v", err)
	}
	defer f.Close()
	got, err := wav.Decode(f)
	if err != nil {
		t.Fatalf("unable to decode; %+v", err)
	}
	if len(got.Data) != len(want.Data) {
		t.Fatalf("sample count mismatch; expected %d, got %d", len(want.Data), len(got.Data))
	}
	for i := range want.Data {
		if got.Data[i] != want.Data[i] {
			t.Fatalf("sample mismatch at %d; expected %d, got %d", i, want.Data[i], got.Data[i])
		}
	}
	if got.Format.NumChannels != 2 || got.Format.SampleRate != 44100 {
		t.Errorf("format mismatch; got %+v", got.Format)
	}
	if got.SourceBitDepth != 16 {
		t.Errorf("bit depth mismatch; expected 16, got %d", got.SourceBitDepth)
	}
}

func TestInfo(t *testing.T) {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 8000},
		SourceBitDepth: 16,
		Data:           make([]int, 20),
	}
	path := writeTemp(t, buf)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("unable to open file; %v", err)
	}
	defer f.Close()
	name, codec, err := wavify.DetectPath(path)
	if err != nil {
		t.Fatalf("unable to detect codec; %v", err)
	}
	if name != "wav" {
		t.Fatalf("codec name mismatch; expected wav, got %s", name)
	}
	info, err := codec.Info(f)
	if err != nil {
		t.Fatalf("unable to read metadata; %+v", err)
	}
	if info.Format.NumChannels != 2 || info.Format.SampleRate != 8000 {
		t.Errorf("format mismatch; got %+v", info.Format)
	}
	if info.BitDepth != 16 {
		t.Errorf("bit depth mismatch; expected 16, got %d", info.BitDepth)
	}
	if info.TotalFrames != 10 {
		t.Errorf("frame total mismatch; expected 10, got %d", info.TotalFrames)
	}
}

func TestStreamDecode(t *testing.T) {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		SourceBitDepth: 16,
		Data:           []int{1, 2, 3, 4, 5, 6, 7},
	}
	path := writeTemp(t, buf)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("unable to open file; %v", err)
	}
	defer f.Close()
	_, codec, err := wavify.DetectMagic([]byte("RIFF"))
	if err != nil {
		t.Fatalf("unable to detect codec; %v", err)
	}
	cr, err := codec.StreamDecode(f, 3)
	if err != nil {
		t.Fatalf("unable to create chunk reader; %+v", err)
	}
	var sizes []int
	var got []int
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
	if want := []int{3, 3, 1}; len(sizes) != 3 || sizes[0] != want[0] || sizes[1] != want[1] || sizes[2] != want[2] {
		t.Errorf("chunk size mismatch; expected %v, got %v", want, sizes)
	}
	for i := range buf.Data {
		if got[i] != buf.Data[i] {
			t.Fatalf("sample mismatch at %d; expected %d, got %d", i, buf.Data[i], got[i])
		}
	}
}

func TestNotSeekable(t *testing.T) {
	if _, err := wav.Decode(onlyReader{}); !errors.Is(err, wavify.ErrNotSeekable) {
		t.Errorf("decode error mismatch; expected ErrNotSeekable, got %v", err)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		SourceBitDepth: 16,
		Data:           []int{1},
	}
	if err := wav.Encode(new(bytes.Buffer), buf); !errors.Is(err, wavify.ErrNotSeekable) {
		t.Errorf("encode error mismatch; expected ErrNotSeekable, got %v", err)
	}
}

type onlyReader struct{}

func (onlyReader) Read(p []byte) (int, error) { return 0, io.EOF }
