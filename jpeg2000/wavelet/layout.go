// Package wavelet implements the discrete wavelet transforms of
// ISO/IEC 15444-1 Annex F: the reversible 5/3 filter on integers and
// the irreversible 9/7 filter on floats, with symmetric boundary
// extension and support for odd region origins.
package wavelet

// SplitLen returns how a signal of length n splits into low-pass and
// high-pass halves. even indicates the origin parity: when the first
// sample sits at an even reference-grid coordinate the low-pass half
// gets the extra sample of an odd-length signal.
func SplitLen(n int, even bool) (low, high int) {
	if n <= 0 {
		return 0, 0
	}
	if even {
		low = (n + 1) / 2
	} else {
		low = n / 2
	}
	return low, n - low
}

// LevelDims describes the geometry of one decomposition level: the
// region being split, its origin on the reference grid, and the
// resulting low-pass dimensions.
type LevelDims struct {
	W, H   int
	X0, Y0 int
	LowW   int
	LowH   int
}

// Layout returns the per-level geometry of a multilevel decomposition,
// index 0 being the full region. Each level halves the low-pass
// window; origins follow the ceil(x/2) rule of the standard.
func Layout(width, height, x0, y0, levels int) []LevelDims {
	dims := make([]LevelDims, 0, levels)
	w, h := width, height
	for l := 0; l < levels; l++ {
		lw, _ := SplitLen(w, x0%2 == 0)
		lh, _ := SplitLen(h, y0%2 == 0)
		dims = append(dims, LevelDims{W: w, H: h, X0: x0, Y0: y0, LowW: lw, LowH: lh})
		w, h = lw, lh
		x0 = (x0 + 1) / 2
		y0 = (y0 + 1) / 2
	}
	return dims
}

// LLDimensions returns the low-low subband dimensions after levels of
// decomposition of a region at origin (x0, y0).
func LLDimensions(width, height, x0, y0, levels int) (llW, llH int) {
	dims := Layout(width, height, x0, y0, levels)
	if len(dims) == 0 {
		return width, height
	}
	last := dims[len(dims)-1]
	return last.LowW, last.LowH
}
