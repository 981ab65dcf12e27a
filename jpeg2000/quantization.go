package jpeg2000

import (
	"math"
	"math/bits"

	"github.com/cinderblocks/corej2k/jpeg2000/codestream"
)

// 9/7 wavelet L2 norms per decomposition level, indexed [orient][level].
// Orientation 0 is LL, 1 HL, 2 LH, 3 HH. Used to spread a base step
// size across subbands so the quantization error is balanced in the
// image domain.
var dwtNorms97 = [4][10]float64{
	{1.000, 1.965, 4.177, 8.403, 16.90, 33.84, 67.69, 135.3, 270.6, 540.9},
	{2.022, 3.989, 8.355, 17.04, 34.27, 68.63, 137.3, 274.6, 549.0, 0.0},
	{2.022, 3.989, 8.355, 17.04, 34.27, 68.63, 137.3, 274.6, 549.0, 0.0},
	{2.080, 3.865, 8.307, 17.18, 34.71, 69.59, 139.3, 278.6, 557.2, 0.0},
}

func dwtNorm97(level, orient int) float64 {
	if level < 0 {
		level = 0
	}
	if orient == 0 && level >= 10 {
		level = 9
	} else if orient > 0 && level >= 9 {
		level = 8
	}
	if orient < 0 || orient > 3 {
		return 1.0
	}
	return dwtNorms97[orient][level]
}

// subbandParams maps a flat subband index (resolution-major: LL, then
// HL/LH/HH per resolution) to its resolution number, orientation, and
// decomposition level.
func subbandParams(idx, numLevels int) (resno, orient, level int) {
	if idx == 0 {
		resno = 0
		orient = 0
	} else {
		resno = (idx-1)/3 + 1
		orient = (idx-1)%3 + 1
	}
	level = numLevels - resno
	if level < 0 {
		level = 0
	}
	return resno, orient, level
}

// bandGain returns the log2 nominal dynamic range gain of a subband
// orientation: 0 for LL, 1 for HL and LH, 2 for HH.
func bandGain(orient int) int {
	switch orient {
	case 1, 2:
		return 1
	case 3:
		return 2
	}
	return 0
}

// encodeStep converts a real step size to the 5-bit exponent, 11-bit
// mantissa form, relative to the band's nominal range rb bits.
func encodeStep(stepSize float64, rb int) codestream.QuantStep {
	if stepSize <= 0 {
		stepSize = math.SmallestNonzeroFloat64
	}
	// step = 2^(rb-expn) * (1 + mant/2048)
	p := int(math.Floor(math.Log2(stepSize)))
	frac := stepSize/math.Ldexp(1, p) - 1.0
	mant := int(math.Round(frac * 2048))
	if mant >= 2048 {
		mant = 0
		p++
	}
	expn := rb - p
	if expn < 0 {
		expn = 0
	}
	if expn > 31 {
		expn = 31
	}
	return codestream.QuantStep{Exponent: uint8(expn), Mantissa: uint16(mant)}
}

// decodeStep reconstructs the real step size from its coded form.
func decodeStep(s codestream.QuantStep, rb int) float64 {
	return math.Ldexp(1.0+float64(s.Mantissa)/2048.0, rb-int(s.Exponent))
}

// Quantizer holds the per-subband quantization for one component:
// either reversible (no scaling, exponents record the nominal ranges)
// or irreversible scalar with expounded or derived step sizes.
type Quantizer struct {
	Style     uint8
	GuardBits int
	BitDepth  int
	NumLevels int

	steps     []codestream.QuantStep
	stepSizes []float64
}

func numSubbands(numLevels int) int { return 3*numLevels + 1 }

// NewReversibleQuantizer builds the no-quantization form used with the
// 5/3 transform. Step sizes are all 1; the coded exponents carry the
// nominal band ranges.
func NewReversibleQuantizer(bitDepth, guardBits, numLevels int) *Quantizer {
	n := numSubbands(numLevels)
	q := &Quantizer{
		Style:     codestream.QuantNone,
		GuardBits: guardBits,
		BitDepth:  bitDepth,
		NumLevels: numLevels,
		steps:     make([]codestream.QuantStep, n),
		stepSizes: make([]float64, n),
	}
	for idx := 0; idx < n; idx++ {
		_, orient, _ := subbandParams(idx, numLevels)
		q.steps[idx] = codestream.QuantStep{Exponent: uint8(bitDepth + bandGain(orient))}
		q.stepSizes[idx] = 1
	}
	return q
}

// NewIrreversibleQuantizer builds expounded scalar quantization for
// the 9/7 transform. baseStep is the step size in the image domain;
// each subband's step is baseStep divided by its wavelet norm.
func NewIrreversibleQuantizer(bitDepth, guardBits, numLevels int, baseStep float64) *Quantizer {
	if baseStep <= 0 {
		baseStep = 1.0 / float64(int(1)<<bitDepth)
	}
	n := numSubbands(numLevels)
	q := &Quantizer{
		Style:     codestream.QuantExpounded,
		GuardBits: guardBits,
		BitDepth:  bitDepth,
		NumLevels: numLevels,
		steps:     make([]codestream.QuantStep, n),
		stepSizes: make([]float64, n),
	}
	for idx := 0; idx < n; idx++ {
		_, orient, level := subbandParams(idx, numLevels)
		norm := dwtNorm97(level, orient)
		step := baseStep
		if norm > 0 {
			step = baseStep / norm
		}
		rb := bitDepth + bandGain(orient)
		coded := encodeStep(step, rb)
		q.steps[idx] = coded
		q.stepSizes[idx] = decodeStep(coded, rb)
	}
	return q
}

// QuantizerFromSteps rebuilds a component's quantizer from parsed QCD
// or QCC values. Derived style expands the single signalled step to
// every subband by halving per decomposition level.
func QuantizerFromSteps(style uint8, guardBits int, steps []codestream.QuantStep, bitDepth, numLevels int) (*Quantizer, error) {
	n := numSubbands(numLevels)
	q := &Quantizer{
		Style:     style,
		GuardBits: guardBits,
		BitDepth:  bitDepth,
		NumLevels: numLevels,
		steps:     make([]codestream.QuantStep, n),
		stepSizes: make([]float64, n),
	}
	switch style {
	case codestream.QuantNone, codestream.QuantExpounded:
		if len(steps) < n {
			return nil, configErr("quantization", "%d subband steps signalled, %d needed", len(steps), n)
		}
		copy(q.steps, steps)
	case codestream.QuantDerived:
		if len(steps) < 1 {
			return nil, configErr("quantization", "derived style without a base step")
		}
		base := steps[0]
		for idx := 0; idx < n; idx++ {
			_, _, level := subbandParams(idx, numLevels)
			expn := int(base.Exponent) - numLevels + level
			if expn < 0 {
				expn = 0
			}
			q.steps[idx] = codestream.QuantStep{Exponent: uint8(expn), Mantissa: base.Mantissa}
		}
	default:
		return nil, configErr("quantization", "unknown style %d", style)
	}
	for idx := 0; idx < n; idx++ {
		_, orient, _ := subbandParams(idx, numLevels)
		if style == codestream.QuantNone {
			q.stepSizes[idx] = 1
		} else {
			q.stepSizes[idx] = decodeStep(q.steps[idx], bitDepth+bandGain(orient))
		}
	}
	return q, nil
}

// StepSize returns the real quantization step of a subband.
func (q *Quantizer) StepSize(bandIdx int) float64 {
	if bandIdx < 0 || bandIdx >= len(q.stepSizes) {
		return 1
	}
	return q.stepSizes[bandIdx]
}

// Mb returns the magnitude bit count coded for a subband: guard bits
// plus the signalled exponent, minus one.
func (q *Quantizer) Mb(bandIdx int) int {
	if bandIdx < 0 || bandIdx >= len(q.steps) {
		return q.BitDepth + q.GuardBits
	}
	m := q.GuardBits + int(q.steps[bandIdx].Exponent) - 1
	if m < 1 {
		m = 1
	}
	if m > 31 {
		m = 31
	}
	return m
}

// Steps returns the coded per-subband values in signalling order.
func (q *Quantizer) Steps() []codestream.QuantStep {
	return q.steps
}

// Segment builds the QCD marker segment for this quantizer.
func (q *Quantizer) Segment() *codestream.QCDSegment {
	seg := &codestream.QCDSegment{Style: q.Style, GuardBits: uint8(q.GuardBits)}
	if q.Style == codestream.QuantDerived {
		seg.Steps = q.steps[:1]
	} else {
		seg.Steps = q.steps
	}
	return seg
}

// QuantizeFloat maps real subband coefficients to quantized integers,
// sign preserved, magnitude truncated (deadzone quantizer).
func (q *Quantizer) QuantizeFloat(coeffs []float64, bandIdx int) []int32 {
	step := q.StepSize(bandIdx)
	out := make([]int32, len(coeffs))
	for i, c := range coeffs {
		mag := int32(math.Abs(c) / step)
		if c < 0 {
			mag = -mag
		}
		out[i] = mag
	}
	return out
}

// DequantizeFloat reconstructs real coefficients at the midpoint of
// each quantization interval.
func (q *Quantizer) DequantizeFloat(coeffs []int32, bandIdx int) []float64 {
	step := q.StepSize(bandIdx)
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		switch {
		case c > 0:
			out[i] = (float64(c) + 0.5) * step
		case c < 0:
			out[i] = (float64(c) - 0.5) * step
		}
	}
	return out
}

// magBits returns the bit length of the largest magnitude in coeffs.
func magBits(coeffs []int32) int {
	max := int32(0)
	for _, c := range coeffs {
		if c < 0 {
			c = -c
		}
		if c > max {
			max = c
		}
	}
	return bits.Len32(uint32(max))
}
