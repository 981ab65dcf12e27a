package wavelet

// Reversible 5/3 lifting, Annex F.3. All arithmetic is integer so the
// transform inverts exactly.

// mirror reflects an index into [0, n) by whole-sample symmetric
// extension. Reflection about either edge preserves the index parity,
// so low-pass positions always reflect onto low-pass positions.
func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

// forward53 transforms one line in place, leaving it as [L | H].
// even gives the parity of the line's first reference-grid coordinate.
func forward53(line []int32, even bool) {
	n := len(line)
	if n == 0 {
		return
	}
	if n == 1 {
		if !even {
			line[0] <<= 1
		}
		return
	}
	par := 0
	if !even {
		par = 1
	}
	nl, nh := SplitLen(n, even)

	// predict: high coefficients from even neighbors
	h := make([]int32, nh)
	for k := 0; k < nh; k++ {
		p := 2*k + 1 - par
		left := line[mirror(p-1, n)]
		right := line[mirror(p+1, n)]
		h[k] = line[p] - ((left + right) >> 1)
	}
	// update: low coefficients from the new high neighbors
	hAt := func(p int) int32 {
		return h[(mirror(p, n)-(1-par))/2]
	}
	l := make([]int32, nl)
	for k := 0; k < nl; k++ {
		p := 2*k + par
		l[k] = line[p] + ((hAt(p-1) + hAt(p+1) + 2) >> 2)
	}
	copy(line[:nl], l)
	copy(line[nl:], h)
}

// inverse53 reverses forward53 on a [L | H] line.
func inverse53(line []int32, even bool) {
	n := len(line)
	if n == 0 {
		return
	}
	if n == 1 {
		if !even {
			line[0] >>= 1
		}
		return
	}
	par := 0
	if !even {
		par = 1
	}
	nl, _ := SplitLen(n, even)
	l := append([]int32(nil), line[:nl]...)
	h := append([]int32(nil), line[nl:]...)

	hAt := func(p int) int32 {
		return h[(mirror(p, n)-(1-par))/2]
	}
	low := make([]int32, nl)
	for k := 0; k < nl; k++ {
		p := 2*k + par
		low[k] = l[k] - ((hAt(p-1) + hAt(p+1) + 2) >> 2)
	}
	lowAt := func(p int) int32 {
		return low[(mirror(p, n)-par)/2]
	}
	for k := 0; k < nl; k++ {
		line[2*k+par] = low[k]
	}
	for k := 0; k < len(h); k++ {
		p := 2*k + 1 - par
		line[p] = h[k] + ((lowAt(p-1) + lowAt(p+1)) >> 1)
	}
}

// Forward53 applies levels of reversible decomposition to the width by
// height region at the top-left of data, whose rows are stride apart.
// (x0, y0) is the region origin on the reference grid; it decides the
// lifting parity of every level. After the call the region holds the
// packed subband pyramid with the final LL at the top-left.
func Forward53(data []int32, width, height, stride, x0, y0, levels int) {
	for _, d := range Layout(width, height, x0, y0, levels) {
		row := make([]int32, d.W)
		evenX := d.X0%2 == 0
		for y := 0; y < d.H; y++ {
			base := y * stride
			copy(row, data[base:base+d.W])
			forward53(row, evenX)
			copy(data[base:base+d.W], row)
		}
		col := make([]int32, d.H)
		evenY := d.Y0%2 == 0
		for x := 0; x < d.W; x++ {
			for y := 0; y < d.H; y++ {
				col[y] = data[y*stride+x]
			}
			forward53(col, evenY)
			for y := 0; y < d.H; y++ {
				data[y*stride+x] = col[y]
			}
		}
	}
}

// Inverse53 reverses Forward53 with the same geometry.
func Inverse53(data []int32, width, height, stride, x0, y0, levels int) {
	dims := Layout(width, height, x0, y0, levels)
	for i := len(dims) - 1; i >= 0; i-- {
		d := dims[i]
		col := make([]int32, d.H)
		evenY := d.Y0%2 == 0
		for x := 0; x < d.W; x++ {
			for y := 0; y < d.H; y++ {
				col[y] = data[y*stride+x]
			}
			inverse53(col, evenY)
			for y := 0; y < d.H; y++ {
				data[y*stride+x] = col[y]
			}
		}
		row := make([]int32, d.W)
		evenX := d.X0%2 == 0
		for y := 0; y < d.H; y++ {
			base := y * stride
			copy(row, data[base:base+d.W])
			inverse53(row, evenX)
			copy(data[base:base+d.W], row)
		}
	}
}
