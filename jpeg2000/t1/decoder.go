package t1

import (
	"fmt"

	"github.com/cinderblocks/corej2k/jpeg2000/mqc"
)

// Decoder replays the coding passes of one code-block. It mirrors
// Encoder exactly; the two must agree on the style flags and on the
// most significant coded bit-plane (derived from the zero-bit-plane
// count Tier-2 signals).
type Decoder struct {
	width  int
	height int
	stride int
	orient int
	style  uint8

	flags []uint32
	data  []int32

	mq  *mqc.MQDecoder
	raw *mqc.RawDecoder
}

// NewDecoder returns a decoder for a code-block of the given size and
// subband orientation.
func NewDecoder(width, height, orient int, style uint8) *Decoder {
	stride := width + 2
	return &Decoder{
		width:  width,
		height: height,
		stride: stride,
		orient: orient,
		style:  style,
		flags:  make([]uint32, stride*(height+2)),
		data:   make([]int32, stride*(height+2)),
	}
}

func (d *Decoder) index(x, y int) int {
	return (y+1)*d.stride + (x + 1)
}

// Decode runs numPasses passes over data and returns the signed
// coefficients in row-major order. segLens gives the byte length of
// each terminated codeword segment in order; nil means the data is a
// single segment. Decoding a truncated segment is not an error; a
// segmentation-symbol or segment-accounting mismatch is.
func (d *Decoder) Decode(data []byte, maxBitplane, numPasses int, segLens []int) ([]int32, error) {
	if maxBitplane < 0 || numPasses <= 0 {
		return d.result(), nil
	}
	total := NumPasses(maxBitplane)
	if numPasses > total {
		return nil, fmt.Errorf("pass count %d exceeds %d for %d bit-planes", numPasses, total, maxBitplane+1)
	}

	offset := 0
	segIdx := 0
	needSegment := true
	rawActive := false
	var carried []uint8

	openSegment := func(raw bool) error {
		segEnd := len(data)
		if segLens != nil {
			if segIdx >= len(segLens) {
				return fmt.Errorf("segment %d not signaled", segIdx)
			}
			segEnd = offset + segLens[segIdx]
			if segEnd > len(data) {
				segEnd = len(data) // truncated tail segment
			}
		}
		seg := data[offset:segEnd]
		if raw {
			d.raw = mqc.NewRawDecoder(seg)
			d.mq = nil
		} else {
			if carried == nil {
				d.mq = mqc.NewMQDecoder(seg, NumContexts)
				seedContexts(d.mq)
			} else {
				d.mq = mqc.NewMQDecoderWithContexts(seg, carried)
			}
			d.raw = nil
		}
		offset = segEnd
		segIdx++
		rawActive = raw
		return nil
	}

	for p := 0; p < numPasses; p++ {
		bp, pt := passBitplaneType(p, maxBitplane)
		raw := isRawPass(d.style, pt, bp, maxBitplane)
		if needSegment {
			if err := openSegment(raw); err != nil {
				return nil, err
			}
			needSegment = false
		} else if raw != rawActive {
			return nil, fmt.Errorf("coder mode switch without termination at pass %d", p)
		}

		var err error
		switch pt {
		case PassSigProp:
			d.sigPropPass(bp, raw)
		case PassMagRef:
			d.magRefPass(bp, raw)
		case PassCleanup:
			err = d.cleanupPass(bp)
		}
		if err != nil {
			return nil, err
		}

		if isTerminatedPass(d.style, p, total, maxBitplane) {
			if d.mq != nil {
				carried = d.mq.Contexts()
			}
			needSegment = true
		}
		if d.style&StyleReset != 0 {
			carried = nil
			if d.mq != nil {
				d.mq.ResetContexts()
				seedContexts(d.mq)
			}
		}
	}

	return d.result(), nil
}

func (d *Decoder) result() []int32 {
	out := make([]int32, d.width*d.height)
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			i := d.index(x, y)
			v := d.data[i]
			if d.flags[i]&flagSign != 0 {
				v = -v
			}
			out[y*d.width+x] = v
		}
	}
	return out
}

func (d *Decoder) causal(f uint32, y int) uint32 {
	if d.style&StyleVSC != 0 && y&3 == 3 {
		return f & vscMask
	}
	return f
}

func (d *Decoder) decodeBit(raw bool, ctx int) int {
	if raw {
		return d.raw.Decode()
	}
	return d.mq.Decode(ctx)
}

func (d *Decoder) sigPropPass(bitplane int, raw bool) {
	one := int32(1) << uint(bitplane)
	for k := 0; k < d.height; k += 4 {
		for x := 0; x < d.width; x++ {
			for y := k; y < k+4 && y < d.height; y++ {
				i := d.index(x, y)
				f := d.causal(d.flags[i], y)
				if f&flagSig != 0 || f&sigNeighbors == 0 {
					continue
				}
				if d.decodeBit(raw, zeroContext(f, d.orient)) == 1 {
					d.data[i] |= one
					d.decodeSign(i, f, raw)
					d.markSignificant(x, y)
				}
				d.flags[i] |= flagVisit
			}
		}
	}
}

func (d *Decoder) magRefPass(bitplane int, raw bool) {
	one := int32(1) << uint(bitplane)
	for k := 0; k < d.height; k += 4 {
		for x := 0; x < d.width; x++ {
			for y := k; y < k+4 && y < d.height; y++ {
				i := d.index(x, y)
				f := d.flags[i]
				if f&flagSig == 0 || f&flagVisit != 0 {
					continue
				}
				var bit int
				if raw {
					bit = d.raw.Decode()
				} else {
					bit = d.mq.Decode(magContext(d.causal(f, y)))
				}
				if bit == 1 {
					d.data[i] |= one
				} else {
					d.data[i] &^= one
				}
				d.flags[i] |= flagRefine
			}
		}
	}
}

func (d *Decoder) cleanupPass(bitplane int) error {
	one := int32(1) << uint(bitplane)
	for k := 0; k < d.height; k += 4 {
		for x := 0; x < d.width; x++ {
			yStart := k

			if d.height-k >= 4 && d.runEligible(x, k) {
				if d.mq.Decode(ctxRL) == 0 {
					continue
				}
				r := d.mq.Decode(ctxUni)<<1 | d.mq.Decode(ctxUni)
				y := k + r
				i := d.index(x, y)
				d.data[i] |= one
				d.decodeSign(i, d.causal(d.flags[i], y), false)
				d.markSignificant(x, y)
				yStart = y + 1
			}

			for y := yStart; y < k+4 && y < d.height; y++ {
				i := d.index(x, y)
				f := d.flags[i]
				if f&(flagSig|flagVisit) != 0 {
					continue
				}
				fv := d.causal(f, y)
				if d.mq.Decode(zeroContext(fv, d.orient)) == 1 {
					d.data[i] |= one
					d.decodeSign(i, fv, false)
					d.markSignificant(x, y)
				}
			}
		}
	}

	for i := range d.flags {
		d.flags[i] &^= flagVisit
	}

	if d.style&StyleSegsym != 0 {
		sym := 0
		for j := 0; j < 4; j++ {
			sym = sym<<1 | d.mq.Decode(ctxUni)
		}
		if sym != 0xA {
			return fmt.Errorf("segmentation symbol mismatch at bit-plane %d: got %#x", bitplane, sym)
		}
	}
	return nil
}

func (d *Decoder) runEligible(x, k int) bool {
	for dy := 0; dy < 4; dy++ {
		y := k + dy
		f := d.causal(d.flags[d.index(x, y)], y)
		if f&(flagSig|flagVisit) != 0 || f&sigNeighbors != 0 {
			return false
		}
	}
	return true
}

func (d *Decoder) decodeSign(i int, f uint32, raw bool) {
	var bit int
	if raw {
		bit = d.raw.Decode()
	} else {
		bit = d.mq.Decode(signContext(f)) ^ signPrediction(f)
	}
	if bit == 1 {
		d.flags[i] |= flagSign
	}
}

func (d *Decoder) markSignificant(x, y int) {
	i := d.index(x, y)
	d.flags[i] |= flagSig
	markNeighbors(d.flags, i, d.stride, d.flags[i]&flagSign != 0)
}
