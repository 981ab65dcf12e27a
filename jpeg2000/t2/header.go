package t2

import "fmt"

// SegmentSizer tells the header codec how a block contribution of
// newPasses passes, starting at pass index startPass, splits into
// codeword segments. Termination boundaries depend on the code-block
// coding style, which Tier-2 does not interpret itself.
type SegmentSizer func(blockIndex, startPass, newPasses int) []int

// EncodePacketHeaderBands writes the header for one packet covering
// several subbands of a precinct, one PrecinctState and contribution
// slice per band. Contributions are indexed in raster order over each
// band's code-block grid; a block with zero NumPasses contributes
// nothing this layer. The tag trees must have been primed with
// SetBlockValues.
func EncodePacketHeaderBands(states []*PrecinctState, layer int, contribs [][]BlockContribution) ([]byte, error) {
	if len(states) != len(contribs) {
		return nil, fmt.Errorf("%d bands but %d contribution sets", len(states), len(contribs))
	}
	bw := newBioWriter()

	any := false
	for _, band := range contribs {
		for i := range band {
			if band[i].NumPasses > 0 {
				any = true
				break
			}
		}
	}
	if !any {
		bw.writeBit(0)
		return bw.flush(), nil
	}
	bw.writeBit(1)

	for b, ps := range states {
		if err := encodeBandBlocks(bw, ps, layer, contribs[b]); err != nil {
			return nil, err
		}
	}
	return bw.flush(), nil
}

// EncodePacketHeader is the single-band form of EncodePacketHeaderBands.
func EncodePacketHeader(ps *PrecinctState, layer int, contribs []BlockContribution) ([]byte, error) {
	return EncodePacketHeaderBands([]*PrecinctState{ps}, layer, [][]BlockContribution{contribs})
}

func encodeBandBlocks(bw *bioWriter, ps *PrecinctState, layer int, contribs []BlockContribution) error {
	for y := 0; y < ps.H; y++ {
		for x := 0; x < ps.W; x++ {
			i := y*ps.W + x
			st := ps.Blocks[i]
			var c *BlockContribution
			if i < len(contribs) && contribs[i].NumPasses > 0 {
				c = &contribs[i]
			}

			if !st.Included {
				if err := ps.incl.Encode(bw, x, y, layer+1); err != nil {
					return err
				}
				if c == nil {
					continue
				}
				if err := ps.zbp.EncodeValue(bw, x, y); err != nil {
					return err
				}
				st.Included = true
				st.FirstLayer = layer
				st.ZeroBitPlanes = c.ZeroBitPlanes
				st.Lblock = 3
			} else {
				if c == nil {
					bw.writeBit(0)
					continue
				}
				bw.writeBit(1)
			}

			if err := putNumPasses(bw, c.NumPasses); err != nil {
				return err
			}

			segPasses := c.SegPasses
			segLens := c.SegLengths
			if len(segPasses) == 0 {
				segPasses = []int{c.NumPasses}
				segLens = []int{c.DataLength}
			}
			if len(segPasses) != len(segLens) {
				return fmt.Errorf("block %d: %d segments but %d lengths", i, len(segPasses), len(segLens))
			}

			// Grow Lblock until every segment length fits in its field.
			inc := 0
			for s := range segPasses {
				need := bitsOf(segLens[s]) - (st.Lblock + floorLog2(segPasses[s]))
				if need > inc {
					inc = need
				}
			}
			for k := 0; k < inc; k++ {
				bw.writeBit(1)
			}
			bw.writeBit(0)
			st.Lblock += inc

			for s := range segPasses {
				bw.writeBits(segLens[s], st.Lblock+floorLog2(segPasses[s]))
			}
			st.PassesSeen += c.NumPasses
		}
	}
	return nil
}

// DecodePacketHeaderBands parses one packet header covering several
// subbands from the front of data. It returns per-band contributions
// and the number of header bytes consumed. sizers may be nil, or hold
// a nil entry for a band, in which case every contribution of that
// band is a single codeword segment.
func DecodePacketHeaderBands(data []byte, states []*PrecinctState, layer int, sizers []SegmentSizer) ([][]BlockContribution, int, error) {
	br := newBioReader(data)

	present, err := br.readBit()
	if err != nil {
		return nil, 0, fmt.Errorf("reading packet present bit: %w", err)
	}
	if present == 0 {
		if err := br.alignToByte(); err != nil {
			return nil, 0, err
		}
		return nil, br.bytesRead(), nil
	}

	bands := make([][]BlockContribution, len(states))
	for b, ps := range states {
		var sizer SegmentSizer
		if b < len(sizers) {
			sizer = sizers[b]
		}
		bands[b], err = decodeBandBlocks(br, ps, layer, sizer)
		if err != nil {
			return nil, br.bytesRead(), err
		}
	}

	if err := br.alignToByte(); err != nil {
		return nil, br.bytesRead(), err
	}
	return bands, br.bytesRead(), nil
}

// DecodePacketHeader is the single-band form of DecodePacketHeaderBands.
func DecodePacketHeader(data []byte, ps *PrecinctState, layer int, sizer SegmentSizer) (*Packet, int, error) {
	bands, n, err := DecodePacketHeaderBands(data, []*PrecinctState{ps}, layer, []SegmentSizer{sizer})
	if err != nil {
		return nil, n, err
	}
	pkt := &Packet{Layer: layer, Header: data[:n]}
	if bands == nil {
		pkt.Empty = true
		return pkt, n, nil
	}
	pkt.Blocks = bands[0]
	return pkt, n, nil
}

func decodeBandBlocks(br *bioReader, ps *PrecinctState, layer int, sizer SegmentSizer) ([]BlockContribution, error) {
	var out []BlockContribution
	for y := 0; y < ps.H; y++ {
		for x := 0; x < ps.W; x++ {
			i := y*ps.W + x
			st := ps.Blocks[i]
			c := BlockContribution{Index: i}

			if !st.Included {
				v, known, err := ps.incl.Decode(br, x, y, layer+1)
				if err != nil {
					return nil, fmt.Errorf("block %d inclusion: %w", i, err)
				}
				if !known || v > layer {
					out = append(out, c)
					continue
				}
				zbp, err := ps.zbp.DecodeValue(br, x, y)
				if err != nil {
					return nil, fmt.Errorf("block %d zero bit-planes: %w", i, err)
				}
				st.Included = true
				st.FirstLayer = v
				st.ZeroBitPlanes = zbp
				st.Lblock = 3
				c.FirstInclusion = true
			} else {
				bit, err := br.readBit()
				if err != nil {
					return nil, fmt.Errorf("block %d inclusion bit: %w", i, err)
				}
				if bit == 0 {
					out = append(out, c)
					continue
				}
			}
			c.Included = true
			c.ZeroBitPlanes = st.ZeroBitPlanes

			var err error
			c.NumPasses, err = getNumPasses(br)
			if err != nil {
				return nil, fmt.Errorf("block %d pass count: %w", i, err)
			}

			inc, err := getCommaCode(br)
			if err != nil {
				return nil, fmt.Errorf("block %d Lblock: %w", i, err)
			}
			st.Lblock += inc

			if sizer != nil {
				c.SegPasses = sizer(i, st.PassesSeen, c.NumPasses)
			}
			if len(c.SegPasses) == 0 {
				c.SegPasses = []int{c.NumPasses}
			}
			for _, sp := range c.SegPasses {
				segLen, err := br.readBits(st.Lblock + floorLog2(sp))
				if err != nil {
					return nil, fmt.Errorf("block %d segment length: %w", i, err)
				}
				c.SegLengths = append(c.SegLengths, segLen)
				c.DataLength += segLen
			}
			st.PassesSeen += c.NumPasses

			out = append(out, c)
		}
	}
	return out, nil
}

// SplitBodyBands slices a packet body into the per-block contributions
// parsed from the header, band by band in header order. It returns the
// number of body bytes consumed. A body shorter than the signalled
// lengths is reported so the caller can treat the stream as truncated.
func SplitBodyBands(bands [][]BlockContribution, body []byte) (int, error) {
	off := 0
	for _, band := range bands {
		for bi := range band {
			c := &band[bi]
			if !c.Included {
				continue
			}
			if off+c.DataLength > len(body) {
				return off, fmt.Errorf("packet body truncated: block %d needs %d bytes at offset %d, body has %d",
					c.Index, c.DataLength, off, len(body))
			}
			c.Data = body[off : off+c.DataLength]
			off += c.DataLength
		}
	}
	return off, nil
}

// SplitBody is the single-band form of SplitBodyBands.
func SplitBody(pkt *Packet, body []byte) error {
	n, err := SplitBodyBands([][]BlockContribution{pkt.Blocks}, body)
	if err != nil {
		return err
	}
	pkt.Body = body[:n]
	return nil
}

// putNumPasses writes the pass count code, B.10.6.
func putNumPasses(bw *bioWriter, n int) error {
	switch {
	case n == 1:
		bw.writeBit(0)
	case n == 2:
		bw.writeBits(2, 2)
	case n <= 5:
		bw.writeBits(0xc|(n-3), 4)
	case n <= 36:
		bw.writeBits(0x1e0|(n-6), 9)
	case n <= 164:
		bw.writeBits(0xff80|(n-37), 16)
	default:
		return fmt.Errorf("pass count %d exceeds 164", n)
	}
	return nil
}

// getNumPasses reads the pass count code, B.10.6.
func getNumPasses(br *bioReader) (int, error) {
	bit, err := br.readBit()
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		return 1, nil
	}
	bit, err = br.readBit()
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		return 2, nil
	}
	v, err := br.readBits(2)
	if err != nil {
		return 0, err
	}
	if v != 3 {
		return 3 + v, nil
	}
	v, err = br.readBits(5)
	if err != nil {
		return 0, err
	}
	if v != 31 {
		return 6 + v, nil
	}
	v, err = br.readBits(7)
	if err != nil {
		return 0, err
	}
	return 37 + v, nil
}

func getCommaCode(br *bioReader) (int, error) {
	n := 0
	for {
		bit, err := br.readBit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			return n, nil
		}
		n++
	}
}

// bitsOf returns the number of bits needed to represent v, 0 for 0.
func bitsOf(v int) int {
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}
