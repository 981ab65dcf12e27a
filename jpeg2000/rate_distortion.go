package jpeg2000

import (
	"math"
	"sort"

	"github.com/cinderblocks/corej2k/jpeg2000/t1"
)

// Post-compression rate-distortion optimization, Annex J.2 shape.
// Every code-block is already fully coded; the allocator only picks a
// truncation pass per code-block per layer so the cumulative coded
// bytes of each layer meet its budget, maximizing the distortion
// reduction bought per byte via a global slope threshold.

// LayerAllocation records the chosen truncation points.
// CodeBlockPasses[b][l] is the cumulative pass count of block b
// through layer l; rows are non-decreasing, so every layer extends the
// previous one.
type LayerAllocation struct {
	NumLayers       int
	CodeBlockPasses [][]int
}

// PassesForLayer returns the cumulative pass count for one block at
// one layer.
func (la *LayerAllocation) PassesForLayer(block, layer int) int {
	if block >= len(la.CodeBlockPasses) || layer >= len(la.CodeBlockPasses[block]) {
		return 0
	}
	return la.CodeBlockPasses[block][layer]
}

// NewPassesForLayer returns the passes a layer adds beyond the one
// before it.
func (la *LayerAllocation) NewPassesForLayer(block, layer int) int {
	cur := la.PassesForLayer(block, layer)
	if layer == 0 {
		return cur
	}
	return cur - la.PassesForLayer(block, layer-1)
}

// hullPoint is one truncation candidate that survives the convex hull
// sweep: passes is the cumulative pass count, rate the cumulative
// bytes, slope the distortion gained per byte since the previous hull
// point.
type hullPoint struct {
	passes int
	rate   int
	slope  float64
}

// convexHull keeps the truncation points on the upper convex hull of
// the (rate, distortion) curve. Slopes along the hull are strictly
// decreasing, which is what makes a single global threshold optimal.
func convexHull(passes []t1.Pass) []hullPoint {
	var hull []hullPoint
	prevRate, prevDist := 0, 0.0
	for i := range passes {
		r, d := passes[i].Rate, passes[i].Distortion
		if r <= prevRate && d <= prevDist {
			continue
		}
		for {
			baseRate, baseDist := 0, 0.0
			if len(hull) > 0 {
				last := hull[len(hull)-1]
				baseRate = last.rate
				baseDist = distAt(passes, last.passes)
			}
			dr := r - baseRate
			if dr <= 0 {
				dr = 1
			}
			s := (d - baseDist) / float64(dr)
			if len(hull) == 0 || s < hull[len(hull)-1].slope {
				hull = append(hull, hullPoint{passes: i + 1, rate: r, slope: s})
				break
			}
			hull = hull[:len(hull)-1]
		}
		prevRate, prevDist = r, d
	}
	return hull
}

func distAt(passes []t1.Pass, count int) float64 {
	if count <= 0 {
		return 0
	}
	if count > len(passes) {
		count = len(passes)
	}
	return passes[count-1].Distortion
}

func rateAt(passes []t1.Pass, count int) int {
	if count <= 0 {
		return 0
	}
	if count > len(passes) {
		count = len(passes)
	}
	return passes[count-1].Rate
}

type allocator struct {
	blocks [][]t1.Pass
	hulls  [][]hullPoint
}

func newAllocator(blocks [][]t1.Pass) *allocator {
	a := &allocator{blocks: blocks, hulls: make([][]hullPoint, len(blocks))}
	for i, p := range blocks {
		a.hulls[i] = convexHull(p)
	}
	return a
}

func (a *allocator) maxSlope() float64 {
	max := 0.0
	for _, h := range a.hulls {
		if len(h) > 0 && h[0].slope > max {
			max = h[0].slope
		}
	}
	return max
}

// selectAt picks, per block, the deepest hull point whose slope is at
// or above theta, floored at minPasses. Returns the selection and its
// total byte cost.
func (a *allocator) selectAt(theta float64, minPasses []int) ([]int, int) {
	sel := make([]int, len(a.blocks))
	total := 0
	for i, h := range a.hulls {
		count := 0
		for _, hp := range h {
			if hp.slope >= theta {
				count = hp.passes
			} else {
				break
			}
		}
		if minPasses != nil && minPasses[i] > count {
			count = minPasses[i]
		}
		sel[i] = count
		total += rateAt(a.blocks[i], count)
	}
	return sel, total
}

// fill greedily extends the selection along remaining hull points in
// descending slope order while the budget allows.
func (a *allocator) fill(sel []int, total, budget int) int {
	type step struct {
		block int
		hp    hullPoint
	}
	var steps []step
	for i, h := range a.hulls {
		for _, hp := range h {
			if hp.passes > sel[i] {
				steps = append(steps, step{block: i, hp: hp})
			}
		}
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].hp.slope > steps[j].hp.slope })
	for _, s := range steps {
		if s.hp.passes <= sel[s.block] {
			continue
		}
		delta := rateAt(a.blocks[s.block], s.hp.passes) - rateAt(a.blocks[s.block], sel[s.block])
		if total+delta > budget {
			continue
		}
		sel[s.block] = s.hp.passes
		total += delta
	}
	return total
}

// AllocateLayers assigns truncation passes to layers. budgets holds
// one cumulative byte target per layer covering the coded block bytes;
// overhead is the estimated header cost of an all-empty layer, the
// floor below which no budget is reachable. A zero or negative budget
// entry means uncapped (include everything).
func AllocateLayers(blocks [][]t1.Pass, budgets []int, overhead int) (*LayerAllocation, error) {
	numLayers := len(budgets)
	if numLayers == 0 {
		numLayers = 1
		budgets = []int{0}
	}
	alloc := &LayerAllocation{
		NumLayers:       numLayers,
		CodeBlockPasses: make([][]int, len(blocks)),
	}
	for i := range alloc.CodeBlockPasses {
		alloc.CodeBlockPasses[i] = make([]int, numLayers)
	}
	if len(blocks) == 0 {
		return alloc, nil
	}

	a := newAllocator(blocks)
	prev := make([]int, len(blocks))

	for layer := 0; layer < numLayers; layer++ {
		budget := budgets[layer]
		if budget > 0 && budget < overhead {
			return nil, &RateTargetUnreachableError{Layer: layer, Target: budget, Overhead: overhead}
		}

		var sel []int
		if budget <= 0 {
			for i := range blocks {
				sel = append(sel, len(blocks[i]))
				if sel[i] < prev[i] {
					sel[i] = prev[i]
				}
			}
		} else {
			blockBudget := budget - overhead
			lo, hi := 0.0, a.maxSlope()*(1+1e-9)
			var total int
			sel, total = a.selectAt(hi, prev)
			if total > blockBudget {
				// Even the floor selection overshoots; the floor is
				// the previous layer, which already fit its smaller
				// budget, so this cannot happen with sane budgets.
				// Keep the floor and move on.
			} else {
				for iter := 0; iter < 48 && hi-lo > 1e-12*(1+hi); iter++ {
					mid := (lo + hi) / 2
					s, t := a.selectAt(mid, prev)
					if t <= blockBudget {
						sel, total = s, t
						hi = mid
					} else {
						lo = mid
					}
				}
				a.fill(sel, total, blockBudget)
			}
		}

		for i := range blocks {
			alloc.CodeBlockPasses[i][layer] = sel[i]
		}
		copy(prev, sel)
	}
	return alloc, nil
}

// LayerBudgets spreads a final cumulative byte target across layers.
// Early layers get a sub-linear share so each added layer refines the
// image by a similar visual step.
func LayerBudgets(total, numLayers int) []int {
	if numLayers <= 0 {
		numLayers = 1
	}
	budgets := make([]int, numLayers)
	for i := 0; i < numLayers; i++ {
		frac := math.Pow(float64(i+1)/float64(numLayers), 1.1)
		budgets[i] = int(float64(total) * frac)
	}
	budgets[numLayers-1] = total
	return budgets
}
