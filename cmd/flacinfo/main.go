// flacinfo prints the StreamInfo fields of FLAC files.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/ydah/wavify/flac"
)

func main() {
	flag.Parse()
	for _, path := range flag.Args() {
		if err := flacinfo(path); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}

func flacinfo(path string) error {
	stream, err := flac.Open(path)
	if err != nil {
		return err
	}
	defer stream.Close()
	si := stream.Info
	fmt.Printf("%s:\n", path)
	fmt.Printf("  block size (min/max):  %d/%d samples\n", si.BlockSizeMin, si.BlockSizeMax)
	fmt.Printf("  frame size (min/max):  %d/%d bytes\n", si.FrameSizeMin, si.FrameSizeMax)
	fmt.Printf("  sample rate:           %d Hz\n", si.SampleRate)
	fmt.Printf("  channels:              %d\n", si.NChannels)
	fmt.Printf("  bits per sample:       %d\n", si.BitsPerSample)
	fmt.Printf("  total samples:         %d\n", si.NSamples)
	fmt.Printf("  md5 checksum:          %32x\n", si.MD5sum)
	return nil
}
