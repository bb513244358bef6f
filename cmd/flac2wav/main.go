// flac2wav converts FLAC files to WAV files.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/ydah/wavify/flac"
)

func main() {
	// Parse command line arguments.
	var (
		// force overwrite WAV file if already present.
		force bool
	)
	flag.BoolVar(&force, "f", false, "force overwrite")
	flag.Parse()
	for _, flacPath := range flag.Args() {
		if err := flac2wav(flacPath, force); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}

func flac2wav(flacPath string, force bool) error {
	// Open FLAC stream.
	stream, err := flac.Open(flacPath)
	if err != nil {
		return err
	}
	defer stream.Close()

	// Create WAV encoder.
	wavPath := strings.TrimSuffix(flacPath, filepath.Ext(flacPath)) + ".wav"
	if !force {
		if _, err := os.Stat(wavPath); err == nil {
			return errors.Errorf("WAV file %q already present; use -f flag to force overwrite", wavPath)
		}
	}
	w, err := os.Create(wavPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer w.Close()
	format := &audio.Format{
		NumChannels: int(stream.Info.NChannels),
		SampleRate:  int(stream.Info.SampleRate),
	}
	bps := int(stream.Info.BitsPerSample)
	enc := gowav.NewEncoder(w, format.SampleRate, bps, format.NumChannels, 1)

	// Decode frames and write their samples interleaved.
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		buf := &audio.IntBuffer{
			Format:         format,
			SourceBitDepth: bps,
			Data:           make([]int, 0, f.BlockSize*len(f.Subframes)),
		}
		for i := 0; i < f.BlockSize; i++ {
			for _, subframe := range f.Subframes {
				buf.Data = append(buf.Data, int(subframe.Samples[i]))
			}
		}
		if err := enc.Write(buf); err != nil {
			return errors.WithStack(err)
		}
	}
	if err := enc.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
