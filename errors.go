package wavify

import "errors"

var (
	// ErrInvalidFormat reports a malformed or inconsistent bitstream: bad
	// magic bytes, truncated data, reserved-bit violations, or stream
	// contents contradicting the declared metadata.
	ErrInvalidFormat = errors.New("wavify: invalid format")

	// ErrUnsupportedFormat reports a well-formed stream using a feature this
	// toolkit does not implement, such as variable block-size streams or
	// reserved subframe types. It is distinct from ErrInvalidFormat so
	// callers can tell a broken file from a valid but unimplemented one.
	ErrUnsupportedFormat = errors.New("wavify: unsupported format")

	// ErrInvalidArgument reports caller input rejected before any I/O, such
	// as sample data whose length is not a multiple of the channel count.
	ErrInvalidArgument = errors.New("wavify: invalid argument")

	// ErrNotSeekable reports an operation requiring a seekable stream, such
	// as streaming encoding, invoked on a non-seekable reader or writer.
	ErrNotSeekable = errors.New("wavify: stream is not seekable")

	// ErrUnknownFormat reports that no registered codec claims the stream.
	ErrUnknownFormat = errors.New("wavify: unknown format")
)
