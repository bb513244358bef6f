// wav2flac converts WAV files to FLAC files.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
	"github.com/ydah/wavify/flac"
)

func main() {
	// Parse command line arguments.
	var (
		// force overwrite FLAC file if already present.
		force bool
		// blockSize in samples per encoded frame.
		blockSize int
	)
	flag.BoolVar(&force, "f", false, "force overwrite")
	flag.IntVar(&blockSize, "blocksize", 4096, "block size in samples per frame")
	flag.Parse()
	for _, wavPath := range flag.Args() {
		if err := wav2flac(wavPath, force, blockSize); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}

func wav2flac(wavPath string, force bool, blockSize int) error {
	// Create WAV decoder.
	r, err := os.Open(wavPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer r.Close()
	dec := gowav.NewDecoder(r)
	if !dec.IsValidFile() {
		return errors.Errorf("invalid WAV file %q", wavPath)
	}
	sampleRate, nchannels, bps := int(dec.SampleRate), int(dec.NumChans), int(dec.BitDepth)

	// Create FLAC encoder.
	flacPath := strings.TrimSuffix(wavPath, filepath.Ext(wavPath)) + ".flac"
	if !force {
		if _, err := os.Stat(flacPath); err == nil {
			return errors.Errorf("FLAC file %q already present; use -f flag to force overwrite", flacPath)
		}
	}
	w, err := os.Create(flacPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer w.Close()
	format := &audio.Format{NumChannels: nchannels, SampleRate: sampleRate}
	enc, err := flac.NewEncoder(w, format, bps, wavify.WithBlockSize(blockSize))
	if err != nil {
		return err
	}

	// Encode samples.
	if err := dec.FwdToPCM(); err != nil {
		return errors.WithStack(err)
	}
	const bufferSize = 64 * 1024
	buf := &audio.IntBuffer{
		Format:         format,
		SourceBitDepth: bps,
		Data:           make([]int, bufferSize),
	}
	for !dec.EOF() {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return errors.WithStack(err)
		}
		if n == 0 {
			break
		}
		chunk := &audio.IntBuffer{Format: format, SourceBitDepth: bps, Data: buf.Data[:n]}
		if err := enc.Write(chunk); err != nil {
			return err
		}
	}
	return enc.Close()
}
