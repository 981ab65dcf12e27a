package t1

// Tier-1 coding of one code-block. A code-block is coded independently
// of all of its siblings: the only shared data are the read-only MQ
// probability tables and the context LUTs.

// Pass types in coding order within a bit-plane.
const (
	PassSigProp = 0
	PassMagRef  = 1
	PassCleanup = 2
)

// Pass describes one coding pass and its truncation point. Rate and
// Distortion are cumulative, so any prefix of the pass list is a valid
// truncation of the code-block.
type Pass struct {
	Index      int
	Bitplane   int
	Type       int
	Rate       int     // bytes needed to truncate after this pass
	Len        int     // segment length when Terminated, else 0
	Terminated bool
	Distortion float64 // cumulative distortion reduction estimate
}

// Block is the Tier-1 output for one code-block.
type Block struct {
	Data        []byte
	Passes      []Pass
	MaxBitplane int // index of the most significant coded bit-plane, -1 if empty
	Width       int
	Height      int
}

// NumPasses returns the pass count for a block whose most significant
// non-zero bit-plane has the given index: one cleanup pass for the
// first plane, three passes for each plane below it.
func NumPasses(maxBitplane int) int {
	if maxBitplane < 0 {
		return 0
	}
	return 3*(maxBitplane+1) - 2
}

// passBitplaneType maps a pass index to its bit-plane and pass type.
// Pass 0 is the cleanup pass of the top plane.
func passBitplaneType(pass, maxBitplane int) (bitplane, passType int) {
	if pass == 0 {
		return maxBitplane, PassCleanup
	}
	q := pass - 1
	return maxBitplane - 1 - q/3, q % 3
}

// isRawPass reports whether a pass is coded in RAW mode under the lazy
// style: significance and refinement passes of all planes more than
// three below the first.
func isRawPass(style uint8, passType, bitplane, maxBitplane int) bool {
	return style&StyleLazy != 0 && passType != PassCleanup && bitplane < maxBitplane-3
}

// isTerminatedPass reports whether coding terminates after the given
// pass: always for the last pass and under TERMALL, and at every
// MQ/RAW mode switch under the lazy style.
func isTerminatedPass(style uint8, pass, numPasses, maxBitplane int) bool {
	if pass == numPasses-1 {
		return true
	}
	if style&StyleTermAll != 0 {
		return true
	}
	if style&StyleLazy != 0 {
		bp, pt := passBitplaneType(pass, maxBitplane)
		nbp, npt := passBitplaneType(pass+1, maxBitplane)
		cur := isRawPass(style, pt, bp, maxBitplane)
		next := isRawPass(style, npt, nbp, maxBitplane)
		if cur != next {
			return true
		}
	}
	return false
}

// NumSegments returns how many codeword segments the first numPasses
// passes of a block occupy under the given style. Tier-2 signals one
// length per segment when there is more than one.
func NumSegments(style uint8, numPasses, maxBitplane int) int {
	if numPasses <= 0 {
		return 0
	}
	segs := 0
	total := NumPasses(maxBitplane)
	for p := 0; p < numPasses; p++ {
		if p == numPasses-1 || isTerminatedPass(style, p, total, maxBitplane) {
			segs++
		}
	}
	return segs
}

// SegmentPassCounts groups the pass range [startPass, startPass+n)
// into codeword segments and returns the pass count of each. A
// contribution that begins or ends mid-segment still closes a group
// at its boundary, which is how truncated layers are signalled.
func SegmentPassCounts(style uint8, startPass, n, maxBitplane int) []int {
	if n <= 0 {
		return nil
	}
	total := NumPasses(maxBitplane)
	counts := make([]int, 0, 1)
	run := 0
	for p := startPass; p < startPass+n; p++ {
		run++
		if p == startPass+n-1 || isTerminatedPass(style, p, total, maxBitplane) {
			counts = append(counts, run)
			run = 0
		}
	}
	return counts
}

// seedContexts applies the standard non-zero initial states: the
// uniform context starts at state 46, run-length at 3 and the all-zero
// zero-coding context at 4.
type contextSeeder interface {
	SetContextState(contextID int, state uint8)
}

func seedContexts(c contextSeeder) {
	c.SetContextState(ctxUni, 46)
	c.SetContextState(ctxRL, 3)
	c.SetContextState(ctxZCStart, 4)
}
