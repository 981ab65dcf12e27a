package jpeg2000

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/cinderblocks/corej2k/jpeg2000/codestream"
	"github.com/cinderblocks/corej2k/jpeg2000/t1"
	"github.com/cinderblocks/corej2k/jpeg2000/t2"
	"github.com/cinderblocks/corej2k/jpeg2000/wavelet"
)

// Decoder reconstructs pixel data from a JPEG 2000 codestream. A
// truncated stream decodes to however many complete packets it holds;
// a corrupted code-block decodes as zero and is reported in Warnings
// without failing the rest of the image.
type Decoder struct {
	header *codestream.Header

	width, height int
	components    int
	bitDepth      int
	isSigned      bool

	data [][]int32

	maxLayers  int
	numWorkers int

	// Warnings collects recoverable problems: corrupted code-blocks,
	// packet parse failures treated as truncation.
	Warnings  []string
	truncated bool
}

// NewDecoder creates a decoder with default options.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// SetMaxLayers caps decoding at the first n quality layers. Zero
// means all layers. Decoding a prefix of layers is deterministic: the
// passes it applies match what a full decode applies for those layers.
func (d *Decoder) SetMaxLayers(n int) { d.maxLayers = n }

// SetWorkers overrides the Tier-1 worker count.
func (d *Decoder) SetWorkers(n int) { d.numWorkers = n }

// Truncated reports whether the codestream ended before its packets.
func (d *Decoder) Truncated() bool { return d.truncated }

// Header returns the parsed codestream header after Decode.
func (d *Decoder) Header() *codestream.Header { return d.header }

// Decode parses and decodes a complete codestream.
func (d *Decoder) Decode(data []byte) error {
	h, err := codestream.Parse(data)
	if err != nil {
		return err
	}
	d.header = h
	d.truncated = h.Truncated

	siz := h.SIZ
	d.width = int(siz.Xsiz - siz.XOsiz)
	d.height = int(siz.Ysiz - siz.YOsiz)
	d.components = len(siz.Components)
	d.bitDepth = siz.Components[0].BitDepth()
	d.isSigned = siz.Components[0].IsSigned()

	d.data = make([][]int32, d.components)
	for c := range d.data {
		d.data[c] = make([]int32, d.width*d.height)
	}

	// Tile-parts grouped by tile index, data concatenated in
	// codestream order.
	numTiles := siz.NumTilesX() * siz.NumTilesY()
	tileData := make([][]byte, numTiles)
	tileFirst := make([]*codestream.TilePart, numTiles)
	for _, tp := range h.TileParts {
		t := int(tp.SOT.Isot)
		if t >= numTiles {
			return &StructuralError{Marker: codestream.MarkerSOT, Reason: fmt.Sprintf("tile index %d out of range", t)}
		}
		if tileFirst[t] == nil {
			tileFirst[t] = tp
		}
		tileData[t] = append(tileData[t], tp.Data...)
	}

	for t := 0; t < numTiles; t++ {
		if tileFirst[t] == nil {
			continue
		}
		if err := d.decodeTile(t, tileFirst[t], tileData[t]); err != nil {
			return err
		}
	}

	d.applyInverseDCLevelShift()
	return nil
}

// roiShiftFor returns the RGN MaxShift value for a component.
func (d *Decoder) roiShiftFor(comp int) int {
	for _, r := range d.header.RGN {
		if r.Component == comp {
			return int(r.Shift)
		}
	}
	return 0
}

// blockAccum gathers a code-block's contributions across layers.
type blockAccum struct {
	ref       blockRef
	data      []byte
	passes    int
	segPasses []int
	segLens   []int
	style     uint8
	maxBP     int
	roiShift  int
}

// mergeSegLens folds per-packet length chunks into terminated codeword
// segment lengths. A segment continued across packets has its length
// signalled in parts; the chunks never straddle a termination boundary,
// so summing within each segment reconstructs the true lengths. Nil
// means the whole bitstream is one segment.
func mergeSegLens(style uint8, totalPasses, maxBP int, segPasses, segLens []int) []int {
	trueSegs := t1.SegmentPassCounts(style, 0, totalPasses, maxBP)
	if len(trueSegs) <= 1 {
		return nil
	}
	out := make([]int, 0, len(trueSegs))
	si, filled, bytes := 0, 0, 0
	for i, sp := range segPasses {
		filled += sp
		bytes += segLens[i]
		if si < len(trueSegs) && filled >= trueSegs[si] {
			filled -= trueSegs[si]
			out = append(out, bytes)
			bytes = 0
			si++
		}
	}
	if bytes > 0 {
		out = append(out, bytes)
	}
	return out
}

func (d *Decoder) decodeTile(t int, tp *codestream.TilePart, data []byte) error {
	h := d.header
	siz := h.SIZ

	// Per-component geometry and quantization; the coding style may
	// differ per component via COC.
	styles := make([]codestream.CodingStyle, d.components)
	quants := make([]*Quantizer, d.components)
	geom := &tileGeom{idx: t}
	geom.x0, geom.y0, geom.x1, geom.y1 = tileBounds(siz, t)
	for c := 0; c < d.components; c++ {
		styles[c] = h.StyleFor(tp, c)
		q, guard, steps := h.QuantFor(tp, c)
		quant, err := QuantizerFromSteps(q, int(guard), steps, siz.Components[c].BitDepth(), int(styles[c].NumDecompLevels))
		if err != nil {
			return err
		}
		quants[c] = quant
		geom.comps = append(geom.comps, buildTileComp(c, geom.x0, geom.y0, geom.x1, geom.y1, &styles[c]))
	}

	cod := h.COD
	if tp.COD != nil {
		cod = tp.COD
	}
	layers := int(cod.NumLayers)
	maxRes := 0
	for c := range styles {
		if r := int(styles[c].NumDecompLevels) + 1; r > maxRes {
			maxRes = r
		}
	}
	numPrec := func(comp, res int) int {
		if comp >= len(geom.comps) || res >= len(geom.comps[comp].res) {
			return 0
		}
		return geom.comps[comp].res[res].numPrecincts()
	}

	var prog *t2.Progression
	if changes := h.ProgressionChangesFor(tp); len(changes) > 0 {
		vols := make([]t2.ProgressionVolume, len(changes))
		for i, ch := range changes {
			vols[i] = t2.ProgressionVolume{
				Order:     t2.ProgressionOrder(ch.Ppoc),
				LayerEnd:  int(ch.LYEpoc),
				ResStart:  int(ch.RSpoc),
				ResEnd:    int(ch.REpoc),
				CompStart: int(ch.CSpoc),
				CompEnd:   int(ch.CEpoc),
			}
		}
		prog = t2.NewProgressionWithChanges(vols, layers, maxRes, d.components, numPrec)
	} else {
		prog = t2.NewProgression(t2.ProgressionOrder(cod.ProgressionOrder), layers, maxRes, d.components, numPrec)
	}
	coords, err := prog.Packets()
	if err != nil {
		return &StructuralError{Reason: err.Error()}
	}

	accums := make(map[blockKey]*blockAccum)
	states := make(map[precinctKey]*t2.PrecinctState)
	offset := 0

	for _, pc := range coords {
		if d.maxLayers > 0 && pc.Layer >= d.maxLayers {
			continue
		}
		if offset >= len(data) {
			d.truncated = true
			break
		}
		n, err := d.readPacket(geom, styles, quants, cod, accums, states, pc, data[offset:])
		if err != nil {
			// A packet that cannot be parsed ends the usable part of
			// the tile; everything gathered so far still decodes.
			d.Warnings = append(d.Warnings, fmt.Sprintf("tile %d packet l%d r%d c%d p%d: %v",
				t, pc.Layer, pc.Resolution, pc.Component, pc.Precinct, err))
			d.truncated = true
			break
		}
		offset += n
	}

	planes := d.decodeBlocks(t, geom, accums)

	for c := 0; c < d.components; c++ {
		d.reconstructComponent(c, geom.comps[c], quants[c], styles[c].Transform == 1, planes[c])
	}
	return nil
}

// readPacket parses one packet (SOP, header, EPH, body) and files its
// block contributions. Returns the bytes consumed.
func (d *Decoder) readPacket(geom *tileGeom, styles []codestream.CodingStyle, quants []*Quantizer,
	cod *codestream.CODSegment, accums map[blockKey]*blockAccum, states map[precinctKey]*t2.PrecinctState,
	pc t2.PacketCoords, data []byte) (int, error) {

	consumed := 0
	if cod.UseSOP {
		_, rest, err := t2.ReadSOP(data)
		if err != nil {
			return 0, err
		}
		consumed += len(data) - len(rest)
		data = rest
	}

	g := geom.comps[pc.Component]
	rg := &g.res[pc.Resolution]
	style := styles[pc.Component].CodeBlockStyle
	roiShift := d.roiShiftFor(pc.Component)

	var bandStates []*t2.PrecinctState
	var sizers []t2.SegmentSizer
	for bi := range rg.bands {
		key := precinctKey{pc.Component, pc.Resolution, bi, pc.Precinct}
		ps := states[key]
		if ps == nil {
			pb := &rg.bands[bi].precincts[pc.Precinct]
			ps = t2.NewPrecinctState(pb.gridW, pb.gridH)
			states[key] = ps
		}
		bandStates = append(bandStates, ps)

		mb := quants[pc.Component].Mb(rg.bands[bi].bandIdx) + roiShift
		psRef := ps
		sizers = append(sizers, func(blockIndex, startPass, newPasses int) []int {
			zbp := psRef.Blocks[blockIndex].ZeroBitPlanes
			return t1.SegmentPassCounts(style, startPass, newPasses, mb-zbp-1)
		})
	}

	bands, n, err := t2.DecodePacketHeaderBands(data, bandStates, pc.Layer, sizers)
	if err != nil {
		return 0, err
	}
	consumed += n
	data = data[n:]

	if cod.UseEPH {
		rest, err := t2.ReadEPH(data)
		if err != nil {
			return 0, err
		}
		consumed += len(data) - len(rest)
		data = rest
	}

	if bands == nil {
		return consumed, nil
	}
	bodyLen, err := t2.SplitBodyBands(bands, data)
	if err != nil {
		return 0, err
	}
	consumed += bodyLen

	for bi, band := range bands {
		ps := bandStates[bi]
		mb := quants[pc.Component].Mb(rg.bands[bi].bandIdx) + roiShift
		for i := range band {
			c := &band[i]
			if !c.Included {
				continue
			}
			key := blockKey{pc.Component, pc.Resolution, bi, pc.Precinct, c.Index}
			acc := accums[key]
			if acc == nil {
				pb := &rg.bands[bi].precincts[pc.Precinct]
				acc = &blockAccum{
					ref: blockRef{
						comp: pc.Component, res: pc.Resolution, band: bi,
						precinct: pc.Precinct, cell: c.Index,
						geomBand: &rg.bands[bi], geomBlk: &pb.blocks[c.Index],
					},
					style:    style,
					maxBP:    mb - ps.Blocks[c.Index].ZeroBitPlanes - 1,
					roiShift: roiShift,
				}
				accums[key] = acc
			}
			acc.data = append(acc.data, c.Data...)
			acc.passes += c.NumPasses
			acc.segPasses = append(acc.segPasses, c.SegPasses...)
			acc.segLens = append(acc.segLens, c.SegLengths...)
		}
	}
	return consumed, nil
}

// decodeBlocks runs Tier-1 in parallel and assembles band-interleaved
// coefficient planes per component. Corrupted blocks decode as zero.
func (d *Decoder) decodeBlocks(tile int, geom *tileGeom, accums map[blockKey]*blockAccum) [][]int32 {
	planes := make([][]int32, len(geom.comps))
	for c, g := range geom.comps {
		planes[c] = make([]int32, g.width()*g.height())
	}

	list := make([]*blockAccum, 0, len(accums))
	for _, acc := range accums {
		list = append(list, acc)
	}

	workers := d.numWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([][]int32, len(list))
	errs := make([]error, len(list))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				acc := list[idx]
				dec := t1.NewDecoder(acc.ref.geomBlk.w(), acc.ref.geomBlk.h(), acc.ref.geomBand.orient, acc.style)
				segLens := mergeSegLens(acc.style, acc.passes, acc.maxBP, acc.segPasses, acc.segLens)
				results[idx], errs[idx] = dec.Decode(acc.data, acc.maxBP, acc.passes, segLens)
			}
		}()
	}
	for idx := range list {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	for idx, acc := range list {
		if errs[idx] != nil {
			derr := &ArithmeticDecodeError{
				Component:  acc.ref.comp,
				Resolution: acc.ref.res,
				Band:       acc.ref.band,
				Block:      acc.ref.cell,
				Err:        errs[idx],
			}
			d.Warnings = append(d.Warnings, fmt.Sprintf("tile %d: %v", tile, derr))
			continue // plane stays zero where this block lands
		}
		coeffs := results[idx]
		if acc.roiShift > 0 {
			removeROIShift(coeffs, acc.roiShift)
		}
		g := geom.comps[acc.ref.comp]
		storeBlock(planes[acc.ref.comp], g.width(), acc.ref.geomBand, acc.ref.geomBlk, coeffs)
	}
	return planes
}

// reconstructComponent dequantizes, inverse transforms, and copies the
// tile-component into the image plane.
func (d *Decoder) reconstructComponent(c int, g *tileCompGeom, quant *Quantizer, reversible bool, plane []int32) {
	w, h := g.width(), g.height()
	if w <= 0 || h <= 0 {
		return
	}

	if reversible {
		wavelet.Inverse53(plane, w, h, w, g.x0, g.y0, g.levels)
	} else {
		fplane := make([]float64, w*h)
		for ri := range g.res {
			for bi := range g.res[ri].bands {
				b := &g.res[ri].bands[bi]
				step := quant.StepSize(b.bandIdx)
				bw, bh := b.x1-b.x0, b.y1-b.y0
				for y := 0; y < bh; y++ {
					row := (b.offY + y) * w
					for x := 0; x < bw; x++ {
						v := plane[row+b.offX+x]
						switch {
						case v > 0:
							fplane[row+b.offX+x] = (float64(v) + 0.5) * step
						case v < 0:
							fplane[row+b.offX+x] = (float64(v) - 0.5) * step
						}
					}
				}
			}
		}
		wavelet.Inverse97(fplane, w, h, w, g.x0, g.y0, g.levels)
		for i, v := range fplane {
			plane[i] = int32(math.RoundToEven(v))
		}
	}

	for y := 0; y < h; y++ {
		dst := (g.y0+y)*d.width + g.x0
		copy(d.data[c][dst:dst+w], plane[y*w:(y+1)*w])
	}
}

// applyInverseDCLevelShift restores unsigned sample ranges and clamps
// to the component precision.
func (d *Decoder) applyInverseDCLevelShift() {
	for c := range d.data {
		depth := d.header.SIZ.Components[c].BitDepth()
		signed := d.header.SIZ.Components[c].IsSigned()
		var lo, hi, shift int32
		if signed {
			lo, hi = -(1 << (depth - 1)), 1<<(depth-1)-1
		} else {
			shift = 1 << (depth - 1)
			lo, hi = 0, 1<<depth-1
		}
		for i, v := range d.data[c] {
			v += shift
			if v < lo {
				v = lo
			}
			if v > hi {
				v = hi
			}
			d.data[c][i] = v
		}
	}
}

// GetImageData returns the decoded planes, one per component.
func (d *Decoder) GetImageData() [][]int32 { return d.data }

// GetComponentData returns one decoded component plane.
func (d *Decoder) GetComponentData(comp int) ([]int32, error) {
	if comp < 0 || comp >= len(d.data) {
		return nil, fmt.Errorf("component %d out of range", comp)
	}
	return d.data[comp], nil
}

func (d *Decoder) Width() int      { return d.width }
func (d *Decoder) Height() int     { return d.height }
func (d *Decoder) Components() int { return d.components }
func (d *Decoder) BitDepth() int   { return d.bitDepth }
func (d *Decoder) IsSigned() bool  { return d.isSigned }

// GetPixelData returns interleaved bytes, 8-bit or 16-bit
// little-endian to match the encoder's input convention.
func (d *Decoder) GetPixelData() []byte {
	numPixels := d.width * d.height
	bytesPerSample := (d.bitDepth + 7) / 8
	out := make([]byte, numPixels*d.components*bytesPerSample)
	for i := 0; i < numPixels; i++ {
		for c := 0; c < d.components; c++ {
			v := d.data[c][i]
			if bytesPerSample == 1 {
				out[i*d.components+c] = byte(v)
			} else {
				idx := (i*d.components + c) * 2
				out[idx] = byte(v)
				out[idx+1] = byte(v >> 8)
			}
		}
	}
	return out
}
