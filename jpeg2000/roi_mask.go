package jpeg2000

// roiMask is a full-resolution boolean map for one component.
type roiMask struct {
	width  int
	height int
	data   []bool
}

func newROIMask(width, height int) *roiMask {
	return &roiMask{
		width:  width,
		height: height,
		data:   make([]bool, width*height),
	}
}

func (m *roiMask) setRect(x0, y0, x1, y1 int) {
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > m.width {
		x1 = m.width
	}
	if y1 > m.height {
		y1 = m.height
	}
	for y := y0; y < y1; y++ {
		row := y * m.width
		for x := x0; x < x1; x++ {
			m.data[row+x] = true
		}
	}
}

func (m *roiMask) get(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return m.data[y*m.width+x]
}

// orPolygon rasterizes a polygon into the mask with the even-odd rule,
// sampling each scanline at its half-pixel center.
func (m *roiMask) orPolygon(pts []Point) {
	if len(pts) < 3 {
		return
	}
	for y := 0; y < m.height; y++ {
		var xs []int
		scanY := float64(y) + 0.5
		for i := 0; i < len(pts); i++ {
			j := (i + 1) % len(pts)
			y0, y1 := pts[i].Y, pts[j].Y
			if y0 == y1 {
				continue
			}
			lo, hi := y0, y1
			if lo > hi {
				lo, hi = hi, lo
			}
			if float64(lo) <= scanY && scanY < float64(hi) {
				t := (scanY - float64(y0)) / float64(y1-y0)
				x := float64(pts[i].X) + t*float64(pts[j].X-pts[i].X)
				xs = append(xs, int(x))
			}
		}
		if len(xs) == 0 {
			continue
		}
		for i := 0; i < len(xs); i++ {
			for j := i + 1; j < len(xs); j++ {
				if xs[j] < xs[i] {
					xs[i], xs[j] = xs[j], xs[i]
				}
			}
		}
		for i := 0; i+1 < len(xs); i += 2 {
			xStart, xEnd := xs[i], xs[i+1]
			if xStart < 0 {
				xStart = 0
			}
			if xEnd > m.width {
				xEnd = m.width
			}
			for x := xStart; x < xEnd; x++ {
				m.data[y*m.width+x] = true
			}
		}
	}
}

// downsample OR-reduces the mask to the resolution of a decomposition
// level: output sample (x,y) is set when any pixel of the step-by-step
// image block it covers is set. offX and offY place the output grid in
// image coordinates.
func (m *roiMask) downsample(offX, offY, outW, outH, step int) []bool {
	if step < 1 {
		step = 1
	}
	out := make([]bool, outW*outH)
	for j := 0; j < outH; j++ {
		for i := 0; i < outW; i++ {
			bx0 := offX + i*step
			by0 := offY + j*step
			set := false
			for y := by0; y < by0+step && !set; y++ {
				for x := bx0; x < bx0+step; x++ {
					if m.get(x, y) {
						set = true
						break
					}
				}
			}
			out[j*outW+i] = set
		}
	}
	return out
}
