package wavify

import "github.com/pkg/errors"

// BlockSizeStrategy selects how a streaming encoder groups caller-supplied
// sample chunks into encoded blocks.
type BlockSizeStrategy uint8

const (
	// PerChunk re-chunks pending samples into fixed-size blocks of the
	// configured block size, carrying remainders over to the next chunk.
	// This is the default strategy.
	PerChunk BlockSizeStrategy = iota
	// FixedBlock is identical chunking to PerChunk, offered as an explicit
	// named strategy.
	FixedBlock
	// SourceChunk turns each caller-supplied chunk into exactly one block
	// whose size equals that chunk's sample frame count, preserving the
	// caller-chosen boundaries.
	SourceChunk
)

// strategyNames maps strategy names accepted by ParseBlockSizeStrategy.
var strategyNames = map[string]BlockSizeStrategy{
	"per_chunk":    PerChunk,
	"fixed":        FixedBlock,
	"source_chunk": SourceChunk,
}

// ParseBlockSizeStrategy returns the strategy named by s.
func ParseBlockSizeStrategy(s string) (BlockSizeStrategy, error) {
	strategy, ok := strategyNames[s]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidArgument, "unknown block size strategy %q", s)
	}
	return strategy, nil
}

func (strategy BlockSizeStrategy) String() string {
	switch strategy {
	case PerChunk:
		return "per_chunk"
	case FixedBlock:
		return "fixed"
	case SourceChunk:
		return "source_chunk"
	}
	return "unknown"
}

// StreamOptions holds the tunable parameters of a streaming encoder.
type StreamOptions struct {
	// Block size in sample frames per encoded block. Ignored by the
	// SourceChunk strategy.
	BlockSize int
	// Strategy grouping chunks into blocks.
	Strategy BlockSizeStrategy
}

// A StreamOption mutates StreamOptions.
type StreamOption func(*StreamOptions)

// WithBlockSize sets the block size used by the PerChunk and FixedBlock
// strategies.
func WithBlockSize(n int) StreamOption {
	return func(o *StreamOptions) { o.BlockSize = n }
}

// WithBlockSizeStrategy sets the block-size strategy.
func WithBlockSizeStrategy(strategy BlockSizeStrategy) StreamOption {
	return func(o *StreamOptions) { o.Strategy = strategy }
}
