package jpeg2000

import (
	"math"
	"testing"

	"github.com/cinderblocks/corej2k/jpeg2000/codestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubbandParams(t *testing.T) {
	// 2 levels: LL, then HL1 LH1 HH1 (resolution 1), HL2 LH2 HH2 (resolution 2)
	tests := []struct {
		idx                  int
		resno, orient, level int
	}{
		{0, 0, 0, 2},
		{1, 1, 1, 1},
		{2, 1, 2, 1},
		{3, 1, 3, 1},
		{4, 2, 1, 0},
		{5, 2, 2, 0},
		{6, 2, 3, 0},
	}
	for _, tt := range tests {
		resno, orient, level := subbandParams(tt.idx, 2)
		assert.Equal(t, tt.resno, resno, "idx %d resno", tt.idx)
		assert.Equal(t, tt.orient, orient, "idx %d orient", tt.idx)
		assert.Equal(t, tt.level, level, "idx %d level", tt.idx)
	}
}

func TestEncodeDecodeStep(t *testing.T) {
	// mantissa has 11 bits, so round trip holds to about 1/2048
	for _, step := range []float64{0.001, 0.01, 0.125, 0.5, 1.0, 2.5, 30.0} {
		enc := encodeStep(step, 16)
		got := decodeStep(enc, 16)
		assert.InEpsilon(t, step, got, 1.0/1024, "step %g", step)
	}
}

func TestEncodeStepMantissaCarry(t *testing.T) {
	// A step just below a power of two rounds its mantissa up to 2048,
	// which must carry into the exponent instead of overflowing.
	enc := encodeStep(0.4999999, 16)
	assert.Less(t, int(enc.Mantissa), 2048)
	got := decodeStep(enc, 16)
	assert.InEpsilon(t, 0.5, got, 1.0/1024)
}

func TestReversibleQuantizer(t *testing.T) {
	q := NewReversibleQuantizer(8, 2, 2)
	require.Equal(t, uint8(codestream.QuantNone), q.Style)

	// Exponent is depth plus band gain: LL gains 0, HL/LH gain 1, HH gains 2.
	assert.Equal(t, 1.0, q.StepSize(0))
	steps := q.Steps()
	require.Len(t, steps, 7)
	assert.Equal(t, uint8(8), steps[0].Exponent)
	assert.Equal(t, uint8(9), steps[1].Exponent)
	assert.Equal(t, uint8(9), steps[2].Exponent)
	assert.Equal(t, uint8(10), steps[3].Exponent)

	// Mb = guard + exponent - 1
	assert.Equal(t, 9, q.Mb(0))
	assert.Equal(t, 11, q.Mb(3))
}

func TestIrreversibleQuantizer(t *testing.T) {
	q := NewIrreversibleQuantizer(8, 2, 3, 1.0/128)
	require.Equal(t, uint8(codestream.QuantExpounded), q.Style)
	require.Len(t, q.Steps(), 10)

	// Finer subbands carry larger synthesis gains, so their effective
	// steps shrink relative to the base.
	for idx := 0; idx < 10; idx++ {
		assert.Positive(t, q.StepSize(idx), "band %d", idx)
		assert.Less(t, q.StepSize(idx), 1.0, "band %d step sanity", idx)
	}
}

func TestQuantizerFromStepsRoundTrip(t *testing.T) {
	orig := NewIrreversibleQuantizer(12, 2, 2, 1.0/64)
	got, err := QuantizerFromSteps(orig.Style, 2, orig.Steps(), 12, 2)
	require.NoError(t, err)
	for idx := 0; idx < 7; idx++ {
		assert.InEpsilon(t, orig.StepSize(idx), got.StepSize(idx), 1.0/1024, "band %d", idx)
		assert.Equal(t, orig.Mb(idx), got.Mb(idx), "band %d Mb", idx)
	}
}

func TestQuantizerFromStepsDerived(t *testing.T) {
	base := encodeStep(1.0/64, 16)
	q, err := QuantizerFromSteps(codestream.QuantDerived, 2, []codestream.QuantStep{base}, 12, 2)
	require.NoError(t, err)

	// Derived expands from one signalled step; coarser levels halve.
	require.Len(t, q.Steps(), 1)
	for idx := 1; idx < 7; idx++ {
		assert.Positive(t, q.StepSize(idx), "band %d", idx)
	}
	seg := q.Segment()
	assert.Equal(t, uint8(codestream.QuantDerived), seg.Style)
	assert.Len(t, seg.Steps, 1)
}

func TestQuantizeDequantizeBound(t *testing.T) {
	q := NewIrreversibleQuantizer(8, 2, 1, 1.0/32)
	coeffs := []float64{-130.75, -1.2, -0.4, 0, 0.4, 1.2, 57.3, 127.9}
	for idx := 0; idx < 4; idx++ {
		step := q.StepSize(idx)
		quantized := q.QuantizeFloat(coeffs, idx)
		restored := q.DequantizeFloat(quantized, idx)
		for i := range coeffs {
			assert.LessOrEqual(t, math.Abs(coeffs[i]-restored[i]), step,
				"band %d coeff %g", idx, coeffs[i])
		}
	}
}

func TestQuantizeTruncatesTowardZero(t *testing.T) {
	q := NewIrreversibleQuantizer(8, 2, 1, 1.0)
	// step 1 at LL: values in (-1, 1) quantize to zero
	out := q.QuantizeFloat([]float64{0.99, -0.99, 1.01, -1.01}, 0)
	step := q.StepSize(0)
	require.InEpsilon(t, 1.0, step, 1.0/1024)
	assert.Equal(t, []int32{0, 0, 1, -1}, out)
}

func TestMagBits(t *testing.T) {
	assert.Equal(t, 0, magBits(nil))
	assert.Equal(t, 1, magBits([]int32{1, -1}))
	assert.Equal(t, 8, magBits([]int32{0, 255}))
	assert.Equal(t, 9, magBits([]int32{-256}))
}
