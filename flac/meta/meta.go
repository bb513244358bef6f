// Package meta implements access to the metadata blocks that precede the
// audio frames of a stream.
package meta

import (
	"io"
	"io/ioutil"

	"github.com/eaburns/bit"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
)

// Metadata block types.
const (
	TypeStreamInfo    Type = 0
	TypePadding       Type = 1
	TypeApplication   Type = 2
	TypeSeekTable     Type = 3
	TypeVorbisComment Type = 4
	TypeCueSheet      Type = 5
	TypePicture       Type = 6
)

// Type identifies the body layout of a metadata block.
type Type uint8

// A Header contains the type and length of a metadata block.
type Header struct {
	// IsLast is true if the block is the last metadata block before the
	// audio frames.
	IsLast bool
	// Block type.
	Type Type
	// Length in bytes of the block body.
	Length int64
}

// A Block is a metadata block: a header followed by a body. Only StreamInfo
// bodies are interpreted; other block types may be skipped by length.
type Block struct {
	Header
	// Block body; *StreamInfo for StreamInfo blocks, nil otherwise.
	Body interface{}
	// Underlying reader of the block body.
	lr io.Reader
}

// New reads a metadata block header from r and returns a handle to the
// block. Call Block.Parse to read the body, or Block.Skip to ignore it.
func New(r io.Reader) (block *Block, err error) {
	hdr, err := parseHeader(r)
	if err != nil {
		return nil, err
	}
	return &Block{Header: hdr, lr: io.LimitReader(r, hdr.Length)}, nil
}

// Parse reads a metadata block from r, interpreting its body.
func Parse(r io.Reader) (block *Block, err error) {
	block, err = New(r)
	if err != nil {
		return nil, err
	}
	if err := block.Parse(); err != nil {
		return nil, err
	}
	return block, nil
}

// Parse reads and interprets the metadata block body.
func (block *Block) Parse() error {
	switch block.Type {
	case TypeStreamInfo:
		si, err := parseStreamInfo(block.lr)
		if err != nil {
			return err
		}
		block.Body = si
		return nil
	default:
		// Bodies of other block types carry no information the codec needs;
		// discard them by length.
		return block.Skip()
	}
}

// Skip discards the metadata block body.
func (block *Block) Skip() error {
	n, err := io.Copy(ioutil.Discard, block.lr)
	if err != nil {
		return errors.WithStack(err)
	}
	if n != block.Length {
		return errors.Wrapf(wavify.ErrInvalidFormat, "meta: unexpected end of stream; block body truncated at %d of %d bytes", n, block.Length)
	}
	return nil
}

// unexpected reports an end of input inside a metadata block as truncation,
// which is a malformed stream.
func unexpected(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(wavify.ErrInvalidFormat, "meta: unexpected end of stream")
	}
	return errors.WithStack(err)
}

// parseHeader reads and parses a metadata block header.
//
// Block header format (pseudo code):
//
//	type METADATA_BLOCK_HEADER struct {
//	   is_last    bool
//	   block_type uint7
//	   length     uint24
//	}
func parseHeader(r io.Reader) (hdr Header, err error) {
	br := bit.NewReader(r)
	// is_last:    1 bit
	// block_type: 7 bits
	// length:     24 bits
	fields, err := br.ReadFields(1, 7, 24)
	if err != nil {
		return hdr, unexpected(err)
	}

	hdr.IsLast = fields[0] != 0

	// Block type 127 is invalid, to avoid confusion with a frame sync code.
	if fields[1] == 127 {
		return hdr, errors.Wrap(wavify.ErrInvalidFormat, "meta: invalid metadata block type 127")
	}
	hdr.Type = Type(fields[1])
	hdr.Length = int64(fields[2])
	return hdr, nil
}
