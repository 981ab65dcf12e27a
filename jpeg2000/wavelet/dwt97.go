package wavelet

// Irreversible 9/7 lifting, Annex F.4. Four lifting steps with the
// Cohen-Daubechies-Feauveau coefficients, then a scaling pass. Float
// arithmetic; the inverse undoes the forward exactly up to rounding.

const (
	alpha97 = -1.586134342
	beta97  = -0.052980118
	gamma97 = 0.882911075
	delta97 = 0.443506852

	k97    = 1.230174105
	invK97 = 0.812893066
)

// forward97 transforms one line in place, leaving it as [L | H].
func forward97(line []float64, even bool) {
	n := len(line)
	if n == 0 {
		return
	}
	par := 0
	if !even {
		par = 1
	}
	nl, nh := SplitLen(n, even)
	if n == 1 {
		if par == 1 {
			line[0] *= k97
		} else {
			line[0] *= invK97
		}
		return
	}

	l := make([]float64, nl)
	h := make([]float64, nh)
	for k := 0; k < nl; k++ {
		l[k] = line[2*k+par]
	}
	for k := 0; k < nh; k++ {
		h[k] = line[2*k+1-par]
	}
	lAt := func(p int) float64 { return l[(mirror(p, n)-par)/2] }
	hAt := func(p int) float64 { return h[(mirror(p, n)-(1-par))/2] }

	for k := 0; k < nh; k++ {
		p := 2*k + 1 - par
		h[k] += alpha97 * (lAt(p-1) + lAt(p+1))
	}
	for k := 0; k < nl; k++ {
		p := 2*k + par
		l[k] += beta97 * (hAt(p-1) + hAt(p+1))
	}
	for k := 0; k < nh; k++ {
		p := 2*k + 1 - par
		h[k] += gamma97 * (lAt(p-1) + lAt(p+1))
	}
	for k := 0; k < nl; k++ {
		p := 2*k + par
		l[k] += delta97 * (hAt(p-1) + hAt(p+1))
	}
	for k := range l {
		l[k] *= invK97
	}
	for k := range h {
		h[k] *= k97
	}
	copy(line[:nl], l)
	copy(line[nl:], h)
}

// inverse97 reverses forward97 on a [L | H] line.
func inverse97(line []float64, even bool) {
	n := len(line)
	if n == 0 {
		return
	}
	par := 0
	if !even {
		par = 1
	}
	nl, nh := SplitLen(n, even)
	if n == 1 {
		if par == 1 {
			line[0] *= invK97
		} else {
			line[0] *= k97
		}
		return
	}

	l := append([]float64(nil), line[:nl]...)
	h := append([]float64(nil), line[nl:]...)
	for k := range l {
		l[k] *= k97
	}
	for k := range h {
		h[k] *= invK97
	}
	lAt := func(p int) float64 { return l[(mirror(p, n)-par)/2] }
	hAt := func(p int) float64 { return h[(mirror(p, n)-(1-par))/2] }

	for k := 0; k < nl; k++ {
		p := 2*k + par
		l[k] -= delta97 * (hAt(p-1) + hAt(p+1))
	}
	for k := 0; k < nh; k++ {
		p := 2*k + 1 - par
		h[k] -= gamma97 * (lAt(p-1) + lAt(p+1))
	}
	for k := 0; k < nl; k++ {
		p := 2*k + par
		l[k] -= beta97 * (hAt(p-1) + hAt(p+1))
	}
	for k := 0; k < nh; k++ {
		p := 2*k + 1 - par
		h[k] -= alpha97 * (lAt(p-1) + lAt(p+1))
	}

	for k := 0; k < nl; k++ {
		line[2*k+par] = l[k]
	}
	for k := 0; k < nh; k++ {
		line[2*k+1-par] = h[k]
	}
}

// Forward97 applies levels of irreversible decomposition to the width
// by height region at the top-left of data, rows stride apart, with
// the same geometry conventions as Forward53.
func Forward97(data []float64, width, height, stride, x0, y0, levels int) {
	for _, d := range Layout(width, height, x0, y0, levels) {
		row := make([]float64, d.W)
		evenX := d.X0%2 == 0
		for y := 0; y < d.H; y++ {
			base := y * stride
			copy(row, data[base:base+d.W])
			forward97(row, evenX)
			copy(data[base:base+d.W], row)
		}
		col := make([]float64, d.H)
		evenY := d.Y0%2 == 0
		for x := 0; x < d.W; x++ {
			for y := 0; y < d.H; y++ {
				col[y] = data[y*stride+x]
			}
			forward97(col, evenY)
			for y := 0; y < d.H; y++ {
				data[y*stride+x] = col[y]
			}
		}
	}
}

// Inverse97 reverses Forward97 with the same geometry.
func Inverse97(data []float64, width, height, stride, x0, y0, levels int) {
	dims := Layout(width, height, x0, y0, levels)
	for i := len(dims) - 1; i >= 0; i-- {
		d := dims[i]
		col := make([]float64, d.H)
		evenY := d.Y0%2 == 0
		for x := 0; x < d.W; x++ {
			for y := 0; y < d.H; y++ {
				col[y] = data[y*stride+x]
			}
			inverse97(col, evenY)
			for y := 0; y < d.H; y++ {
				data[y*stride+x] = col[y]
			}
		}
		row := make([]float64, d.W)
		evenX := d.X0%2 == 0
		for y := 0; y < d.H; y++ {
			base := y * stride
			copy(row, data[base:base+d.W])
			inverse97(row, evenX)
			copy(data[base:base+d.W], row)
		}
	}
}
