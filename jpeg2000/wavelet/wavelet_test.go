package wavelet

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLen(t *testing.T) {
	cases := []struct {
		n        int
		even     bool
		low, high int
	}{
		{0, true, 0, 0},
		{1, true, 1, 0},
		{1, false, 0, 1},
		{2, true, 1, 1},
		{2, false, 1, 1},
		{5, true, 3, 2},
		{5, false, 2, 3},
		{8, true, 4, 4},
	}
	for _, c := range cases {
		lo, hi := SplitLen(c.n, c.even)
		assert.Equal(t, c.low, lo, "n=%d even=%v", c.n, c.even)
		assert.Equal(t, c.high, hi, "n=%d even=%v", c.n, c.even)
	}
}

func TestLayout(t *testing.T) {
	dims := Layout(17, 9, 0, 0, 3)
	require.Len(t, dims, 3)
	assert.Equal(t, LevelDims{W: 17, H: 9, X0: 0, Y0: 0, LowW: 9, LowH: 5}, dims[0])
	assert.Equal(t, LevelDims{W: 9, H: 5, X0: 0, Y0: 0, LowW: 5, LowH: 3}, dims[1])
	assert.Equal(t, LevelDims{W: 5, H: 3, X0: 0, Y0: 0, LowW: 3, LowH: 2}, dims[2])

	w, h := LLDimensions(17, 9, 0, 0, 3)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)

	// Odd origin flips the split at every level.
	dims = Layout(6, 6, 1, 1, 2)
	require.Len(t, dims, 2)
	assert.Equal(t, LevelDims{W: 6, H: 6, X0: 1, Y0: 1, LowW: 3, LowH: 3}, dims[0])
	assert.Equal(t, LevelDims{W: 3, H: 3, X0: 1, Y0: 1, LowW: 1, LowH: 1}, dims[1])
}

func randomTile(rng *rand.Rand, w, h, stride int) []int32 {
	data := make([]int32, h*stride)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*stride+x] = int32(rng.Intn(4096) - 2048)
		}
	}
	return data
}

func TestForward53_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(53))
	sizes := []struct{ w, h int }{
		{1, 1}, {1, 7}, {7, 1}, {2, 2}, {3, 3}, {4, 4},
		{5, 8}, {8, 5}, {16, 16}, {17, 9}, {64, 33}, {37, 41},
	}
	for _, sz := range sizes {
		for _, origin := range []struct{ x0, y0 int }{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
			for levels := 1; levels <= 4; levels++ {
				stride := sz.w + 3
				data := randomTile(rng, sz.w, sz.h, stride)
				orig := append([]int32(nil), data...)

				Forward53(data, sz.w, sz.h, stride, origin.x0, origin.y0, levels)
				Inverse53(data, sz.w, sz.h, stride, origin.x0, origin.y0, levels)

				require.Equal(t, orig, data,
					"w=%d h=%d x0=%d y0=%d levels=%d", sz.w, sz.h, origin.x0, origin.y0, levels)
			}
		}
	}
}

func TestForward53_KnownRamp(t *testing.T) {
	// A linear ramp is annihilated by the 5/3 high-pass away from the
	// boundary, so the detail half of the line should be zero.
	n := 16
	line := make([]int32, n)
	for i := range line {
		line[i] = int32(2 * i)
	}
	forward53(line, true)
	nl, _ := SplitLen(n, true)
	for k := nl + 1; k < n-1; k++ {
		assert.Zero(t, line[k], "high coefficient %d", k-nl)
	}
}

func TestForward53_DecomposesInPlace(t *testing.T) {
	// One level on an 8x8 tile leaves the LL band in the top-left 4x4.
	// Re-running the inverse on just that quadrant must not touch the
	// detail bands.
	stride := 8
	data := randomTile(rand.New(rand.NewSource(7)), 8, 8, stride)
	Forward53(data, 8, 8, stride, 0, 0, 1)

	var details []int32
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if x >= 4 || y >= 4 {
				details = append(details, data[y*stride+x])
			}
		}
	}
	Forward53(data, 4, 4, stride, 0, 0, 1)
	Inverse53(data, 4, 4, stride, 0, 0, 1)

	var after []int32
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if x >= 4 || y >= 4 {
				after = append(after, data[y*stride+x])
			}
		}
	}
	assert.Equal(t, details, after)
}

func TestForward97_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(97))
	sizes := []struct{ w, h int }{
		{1, 1}, {1, 5}, {3, 3}, {8, 8}, {17, 9}, {33, 64},
	}
	for _, sz := range sizes {
		for _, origin := range []struct{ x0, y0 int }{{0, 0}, {1, 1}} {
			for levels := 1; levels <= 3; levels++ {
				stride := sz.w + 2
				data := make([]float64, sz.h*stride)
				for y := 0; y < sz.h; y++ {
					for x := 0; x < sz.w; x++ {
						data[y*stride+x] = float64(rng.Intn(512) - 256)
					}
				}
				orig := append([]float64(nil), data...)

				Forward97(data, sz.w, sz.h, stride, origin.x0, origin.y0, levels)
				Inverse97(data, sz.w, sz.h, stride, origin.x0, origin.y0, levels)

				for i := range orig {
					require.InDelta(t, orig[i], data[i], 1e-6,
						"w=%d h=%d x0=%d y0=%d levels=%d index=%d",
						sz.w, sz.h, origin.x0, origin.y0, levels, i)
				}
			}
		}
	}
}

func TestForward97_EnergyCompaction(t *testing.T) {
	// On a smooth signal most of the energy should land in the low band.
	n := 64
	line := make([]float64, n)
	for i := range line {
		line[i] = 100 * math.Sin(float64(i)/9)
	}
	forward97(line, true)
	nl, _ := SplitLen(n, true)
	var lowE, highE float64
	for i := 0; i < nl; i++ {
		lowE += line[i] * line[i]
	}
	for i := nl; i < n; i++ {
		highE += line[i] * line[i]
	}
	assert.Greater(t, lowE, 100*highE)
}
