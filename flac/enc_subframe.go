package flac

import (
	mathbits "math/bits"

	"github.com/icza/bitio"
	"github.com/pkg/errors"

	"github.com/ydah/wavify/flac/frame"
	"github.com/ydah/wavify/flac/internal/bits"
)

// encodeSubframe encodes the samples of one channel, choosing between a
// verbatim subframe and fixed prediction of orders 0 through 4 by exact
// encoded bit count. Constant and FIR linear prediction subframes are never
// produced; decoding them is supported for interoperability only.
func (enc *encoder) encodeSubframe(bw *bitio.Writer, samples []int32, bps uint) error {
	n := len(samples)

	// Verbatim: subframe header plus every sample unencoded.
	bestCost := uint64(8 + n*int(bps))
	bestOrder := -1
	var bestResiduals []int32
	var bestPlan ricePlan

	maxOrder := 4
	if n-1 < maxOrder {
		maxOrder = n - 1
	}
	for order := 0; order <= maxOrder; order++ {
		residuals, ok := fixedResiduals(samples, order)
		if !ok {
			// Residuals of this order overflow 32 bits; a higher order only
			// grows them further.
			break
		}
		plan := bestRicePlan(residuals)
		cost := uint64(8+order*int(bps)) + plan.nbits
		if cost < bestCost {
			bestCost = cost
			bestOrder = order
			bestResiduals = residuals
			bestPlan = plan
		}
	}

	if bestOrder < 0 {
		return enc.writeVerbatim(bw, samples, bps)
	}
	return enc.writeFixed(bw, samples, bps, bestOrder, bestResiduals, bestPlan)
}

// writeVerbatim writes a verbatim subframe.
func (enc *encoder) writeVerbatim(bw *bitio.Writer, samples []int32, bps uint) error {
	if err := writeSubframeHeader(bw, 0x01); err != nil {
		return err
	}
	for _, sample := range samples {
		if err := bw.WriteBits(bits.UintN(int64(sample), bps), byte(bps)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// writeFixed writes a fixed prediction subframe: warm-up samples followed
// by Rice coded (or escaped) residuals in a single partition.
func (enc *encoder) writeFixed(bw *bitio.Writer, samples []int32, bps uint, order int, residuals []int32, plan ricePlan) error {
	if err := writeSubframeHeader(bw, uint64(0x08|order)); err != nil {
		return err
	}
	for _, sample := range samples[:order] {
		if err := bw.WriteBits(bits.UintN(int64(sample), bps), byte(bps)); err != nil {
			return errors.WithStack(err)
		}
	}
	return writeResiduals(bw, residuals, plan)
}

// writeSubframeHeader writes a subframe header with the given type code and
// no wasted bits.
func writeSubframeHeader(bw *bitio.Writer, typeCode uint64) error {
	// 1 bit: zero padding.
	if err := bw.WriteBits(0, 1); err != nil {
		return errors.WithStack(err)
	}
	// 6 bits: subframe type.
	if err := bw.WriteBits(typeCode, 6); err != nil {
		return errors.WithStack(err)
	}
	// 1 bit: no wasted bits-per-sample.
	if err := bw.WriteBits(0, 1); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// writeResiduals writes the residuals of a subframe as a single Rice
// partition, Rice coded or escaped according to plan.
func writeResiduals(bw *bitio.Writer, residuals []int32, plan ricePlan) error {
	// 2 bits: Rice coding with a 4-bit parameter. 4 bits: partition order 0.
	if err := bw.WriteBits(0, 2); err != nil {
		return errors.WithStack(err)
	}
	if err := bw.WriteBits(0, 4); err != nil {
		return errors.WithStack(err)
	}
	if plan.escape {
		// 4 bits: escape code. 5 bits: residual sample size.
		if err := bw.WriteBits(0xF, 4); err != nil {
			return errors.WithStack(err)
		}
		if err := bw.WriteBits(uint64(plan.width), 5); err != nil {
			return errors.WithStack(err)
		}
		if plan.width == 0 {
			// Every residual is zero; nothing is stored.
			return nil
		}
		for _, residual := range residuals {
			if err := bw.WriteBits(bits.UintN(int64(residual), plan.width), byte(plan.width)); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	// 4 bits: Rice parameter.
	if err := bw.WriteBits(uint64(plan.param), 4); err != nil {
		return errors.WithStack(err)
	}
	for _, residual := range residuals {
		folded := uint64(bits.EncodeZigZag(residual))
		if err := bits.WriteUnary(bw, folded>>plan.param); err != nil {
			return errors.WithStack(err)
		}
		if plan.param > 0 {
			if err := bw.WriteBits(folded&(1<<plan.param-1), byte(plan.param)); err != nil {
				return errors.WithStack(err)
			}
		}
	}
	return nil
}

// A ricePlan is the cheapest residual encoding found for one partition:
// either Rice coding with a parameter of 0 through 14, or the escape path
// storing every residual raw at a fixed width.
type ricePlan struct {
	escape bool
	param  uint
	width  uint
	// Exact encoded size in bits, including the coding method, partition
	// order and parameter fields.
	nbits uint64
}

// bestRicePlan simulates the exact bit cost of every Rice parameter and of
// the escape path, and returns the cheapest.
func bestRicePlan(residuals []int32) ricePlan {
	// Coding method (2) + partition order (4) + Rice parameter (4).
	const overhead = 10

	var width uint
	folded := make([]uint64, len(residuals))
	for i, residual := range residuals {
		folded[i] = uint64(bits.EncodeZigZag(residual))
		if n := signedBits(residual); n > width {
			width = n
		}
	}
	best := ricePlan{
		escape: true,
		width:  width,
		nbits:  overhead + 5 + uint64(len(residuals))*uint64(width),
	}
	if width > 31 {
		// The escaped sample size field holds at most 31; Rice coding can
		// always represent such residuals.
		best.nbits = ^uint64(0)
	}
	for param := uint(0); param <= 14; param++ {
		nbits := uint64(overhead)
		for _, x := range folded {
			nbits += x>>param + 1 + uint64(param)
			if nbits >= best.nbits {
				break
			}
		}
		if nbits < best.nbits {
			best = ricePlan{param: param, nbits: nbits}
		}
	}
	return best
}

// signedBits returns the number of bits needed to store x as a signed two's
// complement value; 0 when x is zero.
func signedBits(x int32) uint {
	if x == 0 {
		return 0
	}
	if x < 0 {
		return uint(mathbits.Len32(uint32(-(x + 1)))) + 1
	}
	return uint(mathbits.Len32(uint32(x))) + 1
}

// fixedResiduals computes the prediction residuals of samples at the given
// fixed predictor order. It reports failure when a residual overflows 32
// bits, which disqualifies the order.
func fixedResiduals(samples []int32, order int) ([]int32, bool) {
	coeffs := frame.FixedCoeffs[order]
	residuals := make([]int32, len(samples)-order)
	for i := order; i < len(samples); i++ {
		var predicted int64
		for j, c := range coeffs {
			predicted += int64(c) * int64(samples[i-j-1])
		}
		residual := int64(samples[i]) - predicted
		if residual != int64(int32(residual)) {
			return nil, false
		}
		residuals[i-order] = int32(residual)
	}
	return residuals, true
}
