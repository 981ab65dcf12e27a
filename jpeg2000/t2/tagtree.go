package t2

import "fmt"

// tag tree node values start out unset; any real value is far below this
const tagTreeUnset = 1 << 20

// TagTree codes the minimum of a 2D grid of non-negative integers
// hierarchically, as used for code-block inclusion and missing
// bit-plane signalling in packet headers. Each level halves the grid
// until a single root remains. Coding state persists across calls so
// the same tree can be queried layer after layer.
type TagTree struct {
	w, h   int
	levels int
	lw, lh []int

	value [][]int
	low   [][]int
	known [][]bool
}

// NewTagTree builds a tree for a w by h leaf grid. Dimensions are
// clamped to at least 1x1.
func NewTagTree(w, h int) *TagTree {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	t := &TagTree{w: w, h: h}

	lw, lh := w, h
	for {
		t.lw = append(t.lw, lw)
		t.lh = append(t.lh, lh)
		if lw == 1 && lh == 1 {
			break
		}
		lw = (lw + 1) / 2
		lh = (lh + 1) / 2
	}
	t.levels = len(t.lw)

	t.value = make([][]int, t.levels)
	t.low = make([][]int, t.levels)
	t.known = make([][]bool, t.levels)
	for l := 0; l < t.levels; l++ {
		n := t.lw[l] * t.lh[l]
		t.value[l] = make([]int, n)
		t.low[l] = make([]int, n)
		t.known[l] = make([]bool, n)
	}
	t.Reset()
	return t
}

// Width returns the leaf grid width.
func (t *TagTree) Width() int { return t.w }

// Height returns the leaf grid height.
func (t *TagTree) Height() int { return t.h }

// Reset clears all values and coding state.
func (t *TagTree) Reset() {
	for l := 0; l < t.levels; l++ {
		for i := range t.value[l] {
			t.value[l][i] = tagTreeUnset
			t.low[l][i] = 0
			t.known[l][i] = false
		}
	}
}

// SetValue stores a leaf value and propagates the minimum toward the
// root. Values may only be set before any Encode call on the tree.
func (t *TagTree) SetValue(x, y, v int) {
	if x < 0 || x >= t.w || y < 0 || y >= t.h {
		return
	}
	for l := 0; l < t.levels; l++ {
		idx := y*t.lw[l] + x
		if t.value[l][idx] <= v {
			break
		}
		t.value[l][idx] = v
		x >>= 1
		y >>= 1
	}
}

// Encode emits the bits needed for a decoder to learn whether the leaf
// value at (x, y) is below threshold, and if so its exact value.
// Repeated calls with growing thresholds resume where the previous
// call stopped.
func (t *TagTree) Encode(bw *bioWriter, x, y, threshold int) error {
	if x < 0 || x >= t.w || y < 0 || y >= t.h {
		return fmt.Errorf("tag tree leaf (%d,%d) outside %dx%d grid", x, y, t.w, t.h)
	}
	low := 0
	px, py := x, y
	for l := t.levels - 1; l >= 0; l-- {
		idx := (py >> l)*t.lw[l] + (px >> l)
		if low > t.low[l][idx] {
			t.low[l][idx] = low
		} else {
			low = t.low[l][idx]
		}
		for low < threshold {
			if low >= t.value[l][idx] {
				if !t.known[l][idx] {
					bw.writeBit(1)
					t.known[l][idx] = true
				}
				break
			}
			bw.writeBit(0)
			low++
		}
		t.low[l][idx] = low
	}
	return nil
}

// EncodeValue emits the bits for the decoder to learn the exact leaf
// value, regardless of magnitude.
func (t *TagTree) EncodeValue(bw *bioWriter, x, y int) error {
	return t.Encode(bw, x, y, tagTreeUnset)
}

// Decode consumes bits until it is known whether the leaf value at
// (x, y) is below threshold. It returns the tightest lower bound
// established so far and whether that bound is the exact value.
func (t *TagTree) Decode(br *bioReader, x, y, threshold int) (value int, known bool, err error) {
	if x < 0 || x >= t.w || y < 0 || y >= t.h {
		return 0, false, fmt.Errorf("tag tree leaf (%d,%d) outside %dx%d grid", x, y, t.w, t.h)
	}
	low := 0
	px, py := x, y
	for l := t.levels - 1; l >= 0; l-- {
		idx := (py >> l)*t.lw[l] + (px >> l)
		if low > t.low[l][idx] {
			t.low[l][idx] = low
		} else {
			low = t.low[l][idx]
		}
		for low < threshold && !t.known[l][idx] {
			bit, err := br.readBit()
			if err != nil {
				return 0, false, err
			}
			if bit == 0 {
				low++
			} else {
				t.known[l][idx] = true
			}
		}
		t.low[l][idx] = low
		if !t.known[l][idx] {
			// value >= threshold, nothing more to learn this call
			return low, false, nil
		}
	}
	return low, true, nil
}

// DecodeValue consumes bits until the exact leaf value is known.
func (t *TagTree) DecodeValue(br *bioReader, x, y int) (int, error) {
	v, known, err := t.Decode(br, x, y, tagTreeUnset)
	if err != nil {
		return 0, err
	}
	if !known {
		return 0, fmt.Errorf("tag tree value at (%d,%d) did not resolve", x, y)
	}
	return v, nil
}
