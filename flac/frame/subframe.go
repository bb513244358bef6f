package frame

import (
	"github.com/icza/bitio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify"
	"github.com/ydah/wavify/flac/internal/bits"
)

// Prediction methods.
const (
	// PredConstant specifies that every sample of the subframe has the same
	// value; a single unencoded sample is stored.
	PredConstant Pred = iota
	// PredVerbatim specifies that the subframe stores its samples
	// unencoded.
	PredVerbatim
	// PredFixed specifies linear prediction with one of five predefined
	// polynomials of order 0 through 4.
	PredFixed
	// PredFIR specifies linear prediction with quantized coefficients
	// stored in the subframe; orders 1 through 32.
	PredFIR
)

// Pred specifies the prediction method of a subframe.
type Pred uint8

// Residual coding methods.
const (
	// ResidualCodingMethodRice1 is Rice coding with a 4-bit Rice parameter
	// (escape value 0xF).
	ResidualCodingMethodRice1 ResidualCodingMethod = 0
	// ResidualCodingMethodRice2 is Rice coding with a 5-bit Rice parameter
	// (escape value 0x1F).
	ResidualCodingMethodRice2 ResidualCodingMethod = 1
)

// ResidualCodingMethod specifies a residual coding method.
type ResidualCodingMethod uint8

// FixedCoeffs holds the coefficient sets of the five fixed predictors.
var FixedCoeffs = [...][]int32{
	0: {},
	1: {1},
	2: {2, -1},
	3: {3, -3, 1},
	4: {4, -6, 4, -1},
}

// A RicePartition holds the coding parameter of one partition of residuals.
type RicePartition struct {
	// Rice parameter.
	Param uint
	// Residual sample size in bits-per-sample used by escaped partitions.
	EscapedBitsPerSample uint
}

// A RiceSubframe holds the partition structure of Rice coded residuals.
type RiceSubframe struct {
	// Partition order; the residuals are split into 2^PartOrder partitions.
	PartOrder int
	// Rice partitions.
	Partitions []RicePartition
}

// A SubHeader specifies the prediction method, order and wasted bits of a
// subframe.
type SubHeader struct {
	// Prediction method of the subframe.
	Pred Pred
	// Prediction order used by fixed and FIR linear prediction.
	Order int
	// Wasted bits-per-sample; trailing zero bits common to every sample of
	// the sub-block, factored out before prediction.
	Wasted uint
	// Residual coding method used by fixed and FIR linear prediction.
	ResidualCodingMethod ResidualCodingMethod
	// Coefficient precision in bits, used by FIR linear prediction.
	CoeffPrec uint
	// Predictor coefficient shift in bits, used by FIR linear prediction.
	// Negative shifts denote a left shift of the predicted value.
	CoeffShift int32
	// Predictor coefficients, used by FIR linear prediction.
	Coeffs []int32
	// Rice coding structure; nil unless the subframe uses Rice coded
	// residuals.
	RiceSubframe *RiceSubframe
}

// A Subframe contains the decoded audio samples of one channel of an audio
// frame.
type Subframe struct {
	// Subframe header.
	SubHeader
	// Decoded audio samples. During decoding the slice temporarily holds
	// residuals, which decodeLPC turns into samples in place.
	Samples []int32
	// Number of audio samples in the subframe.
	NSamples int
}

// parseSubframe reads and parses one subframe, decoding bps-bit samples.
func (frame *Frame) parseSubframe(br *bitio.Reader, bps uint) (subframe *Subframe, err error) {
	subframe = &Subframe{NSamples: frame.BlockSize}
	if err := subframe.parseHeader(br); err != nil {
		return nil, err
	}
	if subframe.Order > subframe.NSamples {
		return nil, errors.Wrapf(wavify.ErrInvalidFormat, "frame: prediction order (%d) exceeds block size (%d)", subframe.Order, subframe.NSamples)
	}

	// Wasted bits are factored out of every sample before prediction and
	// restored afterwards.
	if subframe.Wasted >= bps {
		return nil, errors.Wrapf(wavify.ErrInvalidFormat, "frame: %d wasted bits-per-sample at sample size %d", subframe.Wasted, bps)
	}
	bps -= subframe.Wasted

	subframe.Samples = make([]int32, 0, subframe.NSamples)
	switch subframe.Pred {
	case PredConstant:
		err = subframe.decodeConstant(br, bps)
	case PredVerbatim:
		err = subframe.decodeVerbatim(br, bps)
	case PredFixed:
		err = subframe.decodeFixed(br, bps)
	case PredFIR:
		err = subframe.decodeFIR(br, bps)
	}
	if err != nil {
		return nil, err
	}

	if subframe.Wasted > 0 {
		for i, sample := range subframe.Samples {
			subframe.Samples[i] = sample << subframe.Wasted
		}
	}
	return subframe, nil
}

// parseHeader reads and parses the header of a subframe.
func (subframe *Subframe) parseHeader(br *bitio.Reader) error {
	// 1 bit: zero padding, to prevent sync-fooling strings of 1s.
	x, err := br.ReadBits(1)
	if err != nil {
		return unexpected(err)
	}
	if x != 0 {
		return errors.Wrap(wavify.ErrInvalidFormat, "frame: non-zero padding bit in subframe header")
	}

	// 6 bits: subframe type.
	//
	//	000000: constant
	//	000001: verbatim
	//	00001x: reserved
	//	0001xx: reserved
	//	001xxx: fixed, order xxx (xxx > 4 reserved)
	//	01xxxx: reserved
	//	1xxxxx: LPC, order xxxxx + 1
	x, err = br.ReadBits(6)
	if err != nil {
		return unexpected(err)
	}
	switch {
	case x == 0x00:
		subframe.Pred = PredConstant
	case x == 0x01:
		subframe.Pred = PredVerbatim
	case x < 0x08:
		return errors.Wrapf(wavify.ErrUnsupportedFormat, "frame: reserved subframe type bit pattern (%06b)", x)
	case x < 0x10:
		order := int(x & 0x07)
		if order > 4 {
			return errors.Wrapf(wavify.ErrUnsupportedFormat, "frame: reserved subframe type bit pattern (%06b)", x)
		}
		subframe.Pred = PredFixed
		subframe.Order = order
	case x < 0x20:
		return errors.Wrapf(wavify.ErrUnsupportedFormat, "frame: reserved subframe type bit pattern (%06b)", x)
	default:
		subframe.Pred = PredFIR
		subframe.Order = int(x&0x1F) + 1
	}

	// 1 bit: wasted bits-per-sample flag. If set, a unary coded count minus
	// one follows: k wasted bits are stored as k-1 zeros and a one.
	x, err = br.ReadBits(1)
	if err != nil {
		return unexpected(err)
	}
	if x != 0 {
		x, err = bits.ReadUnary(br)
		if err != nil {
			return unexpected(err)
		}
		subframe.Wasted = uint(x) + 1
	}
	return nil
}

// decodeConstant reads the single unencoded sample of a constant subframe
// and replicates it across the block.
func (subframe *Subframe) decodeConstant(br *bitio.Reader, bps uint) error {
	x, err := br.ReadBits(byte(bps))
	if err != nil {
		return unexpected(err)
	}
	sample := int32(bits.IntN(x, bps))
	for i := 0; i < subframe.NSamples; i++ {
		subframe.Samples = append(subframe.Samples, sample)
	}
	return nil
}

// decodeVerbatim reads the unencoded samples of a verbatim subframe.
func (subframe *Subframe) decodeVerbatim(br *bitio.Reader, bps uint) error {
	for i := 0; i < subframe.NSamples; i++ {
		x, err := br.ReadBits(byte(bps))
		if err != nil {
			return unexpected(err)
		}
		subframe.Samples = append(subframe.Samples, int32(bits.IntN(x, bps)))
	}
	return nil
}

// decodeFixed reads the warm-up samples and residuals of a fixed prediction
// subframe and reconstructs its samples.
func (subframe *Subframe) decodeFixed(br *bitio.Reader, bps uint) error {
	if err := subframe.decodeWarmup(br, bps); err != nil {
		return err
	}
	if err := subframe.decodeResiduals(br); err != nil {
		return err
	}
	return subframe.decodeLPC(FixedCoeffs[subframe.Order], 0)
}

// decodeFIR reads the warm-up samples, quantized coefficients and residuals
// of an LPC subframe and reconstructs its samples.
func (subframe *Subframe) decodeFIR(br *bitio.Reader, bps uint) error {
	if err := subframe.decodeWarmup(br, bps); err != nil {
		return err
	}

	// 4 bits: (coefficient precision in bits) - 1.
	x, err := br.ReadBits(4)
	if err != nil {
		return unexpected(err)
	}
	if x == 0xF {
		return errors.Wrap(wavify.ErrInvalidFormat, "frame: invalid coefficient precision bit pattern (1111)")
	}
	subframe.CoeffPrec = uint(x) + 1

	// 5 bits: signed predictor coefficient shift.
	x, err = br.ReadBits(5)
	if err != nil {
		return unexpected(err)
	}
	subframe.CoeffShift = int32(bits.IntN(x, 5))

	// order * precision bits: signed quantized coefficients.
	subframe.Coeffs = make([]int32, 0, subframe.Order)
	for i := 0; i < subframe.Order; i++ {
		x, err = br.ReadBits(byte(subframe.CoeffPrec))
		if err != nil {
			return unexpected(err)
		}
		subframe.Coeffs = append(subframe.Coeffs, int32(bits.IntN(x, subframe.CoeffPrec)))
	}

	if err := subframe.decodeResiduals(br); err != nil {
		return err
	}
	return subframe.decodeLPC(subframe.Coeffs, subframe.CoeffShift)
}

// decodeWarmup reads the unencoded warm-up samples that seed the predictor.
func (subframe *Subframe) decodeWarmup(br *bitio.Reader, bps uint) error {
	for i := 0; i < subframe.Order; i++ {
		x, err := br.ReadBits(byte(bps))
		if err != nil {
			return unexpected(err)
		}
		subframe.Samples = append(subframe.Samples, int32(bits.IntN(x, bps)))
	}
	return nil
}

// decodeResiduals reads the coded residuals of the subframe, appending them
// to subframe.Samples after the warm-up samples.
func (subframe *Subframe) decodeResiduals(br *bitio.Reader) error {
	// 2 bits: residual coding method.
	//
	//	00: Rice coding with a 4-bit Rice parameter
	//	01: Rice coding with a 5-bit Rice parameter
	//	1x: reserved
	x, err := br.ReadBits(2)
	if err != nil {
		return unexpected(err)
	}
	subframe.ResidualCodingMethod = ResidualCodingMethod(x)
	switch subframe.ResidualCodingMethod {
	case ResidualCodingMethodRice1:
		return subframe.decodeRicePart(br, 4)
	case ResidualCodingMethodRice2:
		return subframe.decodeRicePart(br, 5)
	default:
		return errors.Wrapf(wavify.ErrInvalidFormat, "frame: reserved residual coding method bit pattern (%02b)", x)
	}
}

// decodeRicePart decodes the Rice partitions of the subframe, using a Rice
// parameter of the given size in bits.
func (subframe *Subframe) decodeRicePart(br *bitio.Reader, paramSize byte) error {
	// 4 bits: partition order.
	x, err := br.ReadBits(4)
	if err != nil {
		return unexpected(err)
	}
	partOrder := int(x)
	riceSubframe := &RiceSubframe{PartOrder: partOrder}
	subframe.RiceSubframe = riceSubframe

	// 2^partOrder partitions in total. The first partition omits the
	// warm-up samples; the block must split evenly.
	nparts := 1 << uint(partOrder)
	if subframe.NSamples%nparts != 0 {
		return errors.Wrapf(wavify.ErrInvalidFormat, "frame: block size (%d) is not divisible into %d Rice partitions", subframe.NSamples, nparts)
	}
	if nsamples := subframe.NSamples / nparts; nsamples < subframe.Order {
		return errors.Wrapf(wavify.ErrInvalidFormat, "frame: first Rice partition (%d samples) cannot hold %d warm-up samples", nsamples, subframe.Order)
	}
	partitions := make([]RicePartition, nparts)
	riceSubframe.Partitions = partitions
	for i := 0; i < nparts; i++ {
		partition := &partitions[i]
		// (4 or 5) bits: Rice parameter.
		x, err := br.ReadBits(paramSize)
		if err != nil {
			return unexpected(err)
		}
		param := uint(x)
		partition.Param = param

		nsamples := subframe.NSamples / nparts
		if i == 0 {
			nsamples -= subframe.Order
		}

		if paramSize == 4 && param == 0xF || paramSize == 5 && param == 0x1F {
			// Escape code: the partition stores residuals unencoded, as
			// n-bit signed two's complement values; n follows as a 5-bit
			// number. A width of zero means every residual is zero.
			x, err := br.ReadBits(5)
			if err != nil {
				return unexpected(err)
			}
			n := uint(x)
			partition.EscapedBitsPerSample = n
			for j := 0; j < nsamples; j++ {
				if n == 0 {
					subframe.Samples = append(subframe.Samples, 0)
					continue
				}
				x, err := br.ReadBits(byte(n))
				if err != nil {
					return unexpected(err)
				}
				subframe.Samples = append(subframe.Samples, int32(bits.IntN(x, n)))
			}
			continue
		}

		for j := 0; j < nsamples; j++ {
			residual, err := subframe.decodeRiceResidual(br, param)
			if err != nil {
				return err
			}
			subframe.Samples = append(subframe.Samples, residual)
		}
	}
	return nil
}

// decodeRiceResidual decodes one Rice coded residual: a unary quotient, a
// param-bit remainder, then ZigZag decoding back to a signed value.
func (subframe *Subframe) decodeRiceResidual(br *bitio.Reader, param uint) (int32, error) {
	high, err := bits.ReadUnary(br)
	if err != nil {
		return 0, unexpected(err)
	}
	low, err := br.ReadBits(byte(param))
	if err != nil {
		return 0, unexpected(err)
	}
	folded := uint32(high<<param | low)
	return bits.DecodeZigZag(folded), nil
}

// decodeLPC reconstructs the samples of the subframe from its warm-up
// samples and residuals, using linear prediction with the given
// coefficients and shift. The coefficient-history products are accumulated
// in 64 bits so high orders and precisions cannot overflow.
func (subframe *Subframe) decodeLPC(coeffs []int32, shift int32) error {
	if len(coeffs) != subframe.Order {
		return errors.Wrapf(wavify.ErrInvalidFormat, "frame: prediction order (%d) differs from number of coefficients (%d)", subframe.Order, len(coeffs))
	}
	samples := subframe.Samples
	for i := subframe.Order; i < len(samples); i++ {
		var sum int64
		for j, c := range coeffs {
			sum += int64(c) * int64(samples[i-j-1])
		}
		var predicted int64
		if shift >= 0 {
			predicted = sum >> uint(shift)
		} else {
			predicted = sum << uint(-shift)
		}
		// The stored value is the residual; add the prediction back.
		samples[i] += int32(predicted)
	}
	return nil
}
