package t1

import (
	"math"

	"github.com/cinderblocks/corej2k/jpeg2000/mqc"
)

// Encoder codes one code-block of sign-magnitude coefficients into a
// byte segment plus its truncation-point list. The flags and magnitude
// arrays carry a one-sample border so neighbor updates never need
// bounds checks.
type Encoder struct {
	width  int
	height int
	stride int
	orient int
	style  uint8

	flags []uint32
	data  []int32 // magnitudes; sign lives in flags

	mq *mqc.MQEncoder

	// per-pass distortion counters
	sigOnes int
	refBits int
}

// NewEncoder returns an encoder for a code-block of the given size and
// subband orientation (0=LL, 1=HL, 2=LH, 3=HH).
func NewEncoder(width, height, orient int, style uint8) *Encoder {
	stride := width + 2
	return &Encoder{
		width:  width,
		height: height,
		stride: stride,
		orient: orient,
		style:  style,
		flags:  make([]uint32, stride*(height+2)),
		data:   make([]int32, stride*(height+2)),
	}
}

func (e *Encoder) index(x, y int) int {
	return (y+1)*e.stride + (x + 1)
}

// Encode runs all coding passes over the signed coefficients, given in
// row-major order, and returns the coded block. An all-zero block
// yields MaxBitplane -1 with no passes and no data.
func (e *Encoder) Encode(coeffs []int32) *Block {
	maxMag := int32(0)
	for y := 0; y < e.height; y++ {
		for x := 0; x < e.width; x++ {
			v := coeffs[y*e.width+x]
			i := e.index(x, y)
			if v < 0 {
				e.flags[i] |= flagSign
				v = -v
			}
			e.data[i] = v
			if v > maxMag {
				maxMag = v
			}
		}
	}

	blk := &Block{MaxBitplane: -1, Width: e.width, Height: e.height}
	if maxMag == 0 {
		return blk
	}
	maxBP := 0
	for maxMag>>(maxBP+1) != 0 {
		maxBP++
	}
	blk.MaxBitplane = maxBP

	e.mq = mqc.NewMQEncoder(NumContexts)
	seedContexts(e.mq)

	numPasses := NumPasses(maxBP)
	passes := make([]Pass, 0, numPasses)
	cumDist := 0.0
	segStart := 0
	rawActive := false

	for p := 0; p < numPasses; p++ {
		bp, pt := passBitplaneType(p, maxBP)
		raw := isRawPass(e.style, pt, bp, maxBP)

		e.sigOnes = 0
		e.refBits = 0
		switch pt {
		case PassSigProp:
			e.sigPropPass(bp, raw)
		case PassMagRef:
			e.magRefPass(bp, raw)
		case PassCleanup:
			e.cleanupPass(bp)
			if e.style&StyleSegsym != 0 {
				e.mq.SegmarkEnc(ctxUni)
			}
		}

		cumDist += passDistortion(bp, e.sigOnes, e.refBits)
		pass := Pass{Index: p, Bitplane: bp, Type: pt, Distortion: cumDist}

		if isTerminatedPass(e.style, p, numPasses, maxBP) {
			if rawActive {
				e.mq.BypassFlushEnc(e.style&StylePterm != 0)
				rawActive = false
			} else if e.style&StylePterm != 0 {
				e.mq.ErtermEnc()
			} else {
				e.mq.Flush()
			}
			pass.Terminated = true
			pass.Len = e.mq.NumBytes() - segStart
			pass.Rate = e.mq.NumBytes()
			segStart = e.mq.NumBytes()
			if p < numPasses-1 {
				nbp, npt := passBitplaneType(p+1, maxBP)
				if isRawPass(e.style, npt, nbp, maxBP) {
					e.mq.BypassInitEnc()
					rawActive = true
				} else {
					e.mq.RestartInitEnc()
				}
			}
		} else {
			// Truncating here needs a flush margin on top of the
			// bytes emitted so far; capped to the final length below.
			pass.Rate = e.mq.NumBytes() + 3
		}

		if e.style&StyleReset != 0 {
			e.mq.ResetContexts()
			seedContexts(e.mq)
		}
		passes = append(passes, pass)
	}

	data := append([]byte(nil), e.mq.Bytes()...)
	for i := range passes {
		if passes[i].Rate > len(data) {
			passes[i].Rate = len(data)
		}
	}
	blk.Data = data
	blk.Passes = passes
	return blk
}

// passDistortion estimates the squared-error reduction of one pass: a
// coefficient turning significant at plane b drops roughly 2.25*4^b of
// error, a refinement roughly 0.25*4^b.
func passDistortion(bitplane, sigOnes, refBits int) float64 {
	w := math.Pow(4, float64(bitplane))
	return (2.25*float64(sigOnes) + 0.25*float64(refBits)) * w
}

// causal masks the stripe row below when vertical causality is on and
// the sample sits on the last row of its stripe.
func (e *Encoder) causal(f uint32, y int) uint32 {
	if e.style&StyleVSC != 0 && y&3 == 3 {
		return f & vscMask
	}
	return f
}

func (e *Encoder) sigPropPass(bitplane int, raw bool) {
	one := int32(1) << uint(bitplane)
	for k := 0; k < e.height; k += 4 {
		for x := 0; x < e.width; x++ {
			for y := k; y < k+4 && y < e.height; y++ {
				i := e.index(x, y)
				f := e.causal(e.flags[i], y)
				if f&flagSig != 0 || f&sigNeighbors == 0 {
					continue
				}
				bit := 0
				if e.data[i]&one != 0 {
					bit = 1
				}
				if raw {
					e.mq.BypassEncode(bit)
				} else {
					e.mq.Encode(bit, zeroContext(f, e.orient))
				}
				if bit == 1 {
					e.encodeSign(i, f, raw)
					e.markSignificant(x, y)
					e.sigOnes++
				}
				e.flags[i] |= flagVisit
			}
		}
	}
}

func (e *Encoder) magRefPass(bitplane int, raw bool) {
	one := int32(1) << uint(bitplane)
	for k := 0; k < e.height; k += 4 {
		for x := 0; x < e.width; x++ {
			for y := k; y < k+4 && y < e.height; y++ {
				i := e.index(x, y)
				f := e.flags[i]
				if f&flagSig == 0 || f&flagVisit != 0 {
					continue
				}
				bit := 0
				if e.data[i]&one != 0 {
					bit = 1
				}
				if raw {
					e.mq.BypassEncode(bit)
				} else {
					e.mq.Encode(bit, magContext(e.causal(f, y)))
				}
				e.flags[i] |= flagRefine
				e.refBits++
			}
		}
	}
}

func (e *Encoder) cleanupPass(bitplane int) {
	one := int32(1) << uint(bitplane)
	for k := 0; k < e.height; k += 4 {
		for x := 0; x < e.width; x++ {
			yStart := k

			// Run-length mode: a full stripe column where nothing is
			// significant, visited or next to a significant sample.
			if e.height-k >= 4 && e.runEligible(x, k) {
				r := -1
				for dy := 0; dy < 4; dy++ {
					if e.data[e.index(x, k+dy)]&one != 0 {
						r = dy
						break
					}
				}
				if r < 0 {
					e.mq.Encode(0, ctxRL)
					continue
				}
				e.mq.Encode(1, ctxRL)
				e.mq.Encode((r>>1)&1, ctxUni)
				e.mq.Encode(r&1, ctxUni)
				y := k + r
				i := e.index(x, y)
				e.encodeSign(i, e.causal(e.flags[i], y), false)
				e.markSignificant(x, y)
				e.sigOnes++
				yStart = y + 1
			}

			for y := yStart; y < k+4 && y < e.height; y++ {
				i := e.index(x, y)
				f := e.flags[i]
				if f&(flagSig|flagVisit) != 0 {
					continue
				}
				fv := e.causal(f, y)
				bit := 0
				if e.data[i]&one != 0 {
					bit = 1
				}
				e.mq.Encode(bit, zeroContext(fv, e.orient))
				if bit == 1 {
					e.encodeSign(i, fv, false)
					e.markSignificant(x, y)
					e.sigOnes++
				}
			}
		}
	}

	for i := range e.flags {
		e.flags[i] &^= flagVisit
	}
}

func (e *Encoder) runEligible(x, k int) bool {
	for dy := 0; dy < 4; dy++ {
		y := k + dy
		f := e.causal(e.flags[e.index(x, y)], y)
		if f&(flagSig|flagVisit) != 0 || f&sigNeighbors != 0 {
			return false
		}
	}
	return true
}

func (e *Encoder) encodeSign(i int, f uint32, raw bool) {
	sign := 0
	if e.flags[i]&flagSign != 0 {
		sign = 1
	}
	if raw {
		e.mq.BypassEncode(sign)
		return
	}
	e.mq.Encode(sign^signPrediction(f), signContext(f))
}

// markSignificant sets the significance flag at (x, y) and propagates
// it, with the sign for the four orthogonal neighbors, into the
// neighbors' flag words.
func (e *Encoder) markSignificant(x, y int) {
	i := e.index(x, y)
	e.flags[i] |= flagSig
	neg := e.flags[i]&flagSign != 0
	markNeighbors(e.flags, i, e.stride, neg)
}

// markNeighbors updates the eight neighbors of a newly significant
// sample at index i. The border padding makes every write safe.
func markNeighbors(flags []uint32, i, stride int, negative bool) {
	flags[i-stride-1] |= sigSE
	flags[i-stride+1] |= sigSW
	flags[i+stride-1] |= sigNE
	flags[i+stride+1] |= sigNW

	flags[i-stride] |= sigS
	flags[i+stride] |= sigN
	flags[i-1] |= sigE
	flags[i+1] |= sigW
	if negative {
		flags[i-stride] |= signS
		flags[i+stride] |= signN
		flags[i-1] |= signE
		flags[i+1] |= signW
	}
}
