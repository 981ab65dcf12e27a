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

// EncodeParams contains parameters for JPEG 2000 encoding.
type EncodeParams struct {
	// Image parameters
	Width      int
	Height     int
	Components int
	BitDepth   int
	IsSigned   bool

	// Tile parameters. Zero means a single tile covering the image.
	TileWidth  int
	TileHeight int

	// Coding parameters
	NumLevels       int  // wavelet decomposition levels (0-32)
	Lossless        bool // true: 5/3 reversible, false: 9/7 irreversible
	CodeBlockWidth  int  // power of two, typically 64
	CodeBlockHeight int  // power of two, typically 64
	CodeBlockStyle  uint8

	// Precinct dimensions per resolution; empty means maximal (2^15).
	PrecinctSizes []codestream.PrecinctSize

	// Lossy quality 1-100. Higher keeps more. Only read when
	// Lossless is false and CustomQuantSteps is empty.
	Quality int

	// CustomQuantSteps overrides the per-subband step sizes (lossy
	// only). Length must be 3*NumLevels+1 when provided.
	CustomQuantSteps []float64

	ProgressionOrder uint8
	NumLayers        int

	// ProgressionChanges, when set, is written as a POC segment and
	// drives packet emission instead of ProgressionOrder.
	ProgressionChanges []codestream.POCChange

	// Rate control. LayerTargets holds cumulative byte budgets per
	// layer; when empty, TargetRatio sizes the final layer from the
	// raw image size (0 disables rate control).
	LayerTargets []int
	TargetRatio  float64

	// Error resilience and indexing markers
	UseSOP  bool
	UseEPH  bool
	EmitTLM bool
	EmitPLT bool

	Comment string

	ROI *ROIConfig

	// Workers for Tier-1 coding. Zero means GOMAXPROCS.
	NumWorkers int
}

// DefaultEncodeParams returns defaults for lossless encoding.
func DefaultEncodeParams(width, height, components, bitDepth int, isSigned bool) *EncodeParams {
	return &EncodeParams{
		Width:            width,
		Height:           height,
		Components:       components,
		BitDepth:         bitDepth,
		IsSigned:         isSigned,
		NumLevels:        5,
		Lossless:         true,
		Quality:          80,
		CodeBlockWidth:   64,
		CodeBlockHeight:  64,
		ProgressionOrder: 0,
		NumLayers:        1,
	}
}

// Encoder builds JPEG 2000 codestreams.
type Encoder struct {
	params *EncodeParams
	data   [][]int32 // [component][pixel]

	guardBits int
	roiShifts []int     // per component, 0 when off
	roiMasks  []*roiMask
}

// NewEncoder creates an encoder for the given parameters.
func NewEncoder(params *EncodeParams) *Encoder {
	return &Encoder{params: params}
}

// Encode encodes interleaved pixel bytes (8-bit, or 16-bit
// little-endian when BitDepth exceeds 8) to a JPEG 2000 codestream.
func (e *Encoder) Encode(pixelData []byte) ([]byte, error) {
	if err := e.validateParams(); err != nil {
		return nil, err
	}
	if err := e.convertPixelData(pixelData); err != nil {
		return nil, err
	}
	e.applyDCLevelShift()
	return e.buildCodestream()
}

// EncodeComponents encodes planar component data directly.
func (e *Encoder) EncodeComponents(componentData [][]int32) ([]byte, error) {
	if err := e.validateParams(); err != nil {
		return nil, err
	}
	if len(componentData) != e.params.Components {
		return nil, configErr("components", "%d planes for %d components", len(componentData), e.params.Components)
	}
	n := e.params.Width * e.params.Height
	e.data = make([][]int32, len(componentData))
	for c, plane := range componentData {
		if len(plane) != n {
			return nil, configErr("components", "plane %d has %d samples, want %d", c, len(plane), n)
		}
		e.data[c] = append([]int32(nil), plane...)
	}
	e.applyDCLevelShift()
	return e.buildCodestream()
}

func (e *Encoder) validateParams() error {
	p := e.params
	if p.Width <= 0 || p.Height <= 0 {
		return configErr("dimensions", "%dx%d", p.Width, p.Height)
	}
	if p.Components <= 0 || p.Components > 16384 {
		return configErr("components", "%d", p.Components)
	}
	if p.BitDepth < 1 || p.BitDepth > 16 {
		return configErr("bit depth", "%d not in 1..16", p.BitDepth)
	}
	if p.NumLevels < 0 || p.NumLevels > 32 {
		return configErr("decomposition levels", "%d not in 0..32", p.NumLevels)
	}
	if p.CodeBlockWidth == 0 {
		p.CodeBlockWidth = 64
	}
	if p.CodeBlockHeight == 0 {
		p.CodeBlockHeight = 64
	}
	wExp := exactLog2(p.CodeBlockWidth)
	hExp := exactLog2(p.CodeBlockHeight)
	if wExp < 2 || hExp < 2 || wExp > 10 || hExp > 10 || wExp+hExp > 12 {
		return configErr("code-block size", "%dx%d must be powers of two, 4..1024, area at most 4096",
			p.CodeBlockWidth, p.CodeBlockHeight)
	}
	for i, ps := range p.PrecinctSizes {
		if ps.PPx > 15 || ps.PPy > 15 {
			return configErr("precinct size", "resolution %d exponents %d,%d exceed 15", i, ps.PPx, ps.PPy)
		}
		if i > 0 && (ps.PPx == 0 || ps.PPy == 0) {
			return configErr("precinct size", "resolution %d cannot be 1x1", i)
		}
	}
	if p.NumLayers <= 0 {
		p.NumLayers = 1
	}
	if p.NumLayers > 65535 {
		return configErr("layers", "%d exceeds 65535", p.NumLayers)
	}
	if p.ProgressionOrder > 4 {
		return configErr("progression order", "%d not in 0..4", p.ProgressionOrder)
	}
	if p.Quality == 0 {
		p.Quality = 80
	}
	if len(p.CustomQuantSteps) > 0 && len(p.CustomQuantSteps) != 3*p.NumLevels+1 {
		return configErr("quantization steps", "%d values for %d subbands",
			len(p.CustomQuantSteps), 3*p.NumLevels+1)
	}
	if len(p.LayerTargets) > 0 && len(p.LayerTargets) != p.NumLayers {
		return configErr("layer targets", "%d targets for %d layers", len(p.LayerTargets), p.NumLayers)
	}
	if p.ROI != nil {
		if err := p.ROI.Validate(p.Width, p.Height, p.Components); err != nil {
			return err
		}
	}
	return nil
}

func exactLog2(v int) int {
	if v <= 0 || v&(v-1) != 0 {
		return -1
	}
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func (e *Encoder) convertPixelData(pixelData []byte) error {
	p := e.params
	numPixels := p.Width * p.Height
	bytesPerSample := (p.BitDepth + 7) / 8
	if need := numPixels * p.Components * bytesPerSample; len(pixelData) < need {
		return configErr("pixel data", "%d bytes, need %d", len(pixelData), need)
	}

	e.data = make([][]int32, p.Components)
	for i := range e.data {
		e.data[i] = make([]int32, numPixels)
	}
	if bytesPerSample == 1 {
		for i := 0; i < numPixels; i++ {
			for c := 0; c < p.Components; c++ {
				val := int32(pixelData[i*p.Components+c])
				if p.IsSigned && val >= 128 {
					val -= 256
				}
				e.data[c][i] = val
			}
		}
	} else {
		for i := 0; i < numPixels; i++ {
			for c := 0; c < p.Components; c++ {
				idx := (i*p.Components + c) * 2
				val := int32(pixelData[idx]) | int32(pixelData[idx+1])<<8
				if p.IsSigned && val >= 1<<(p.BitDepth-1) {
					val -= 1 << p.BitDepth
				}
				e.data[c][i] = val
			}
		}
	}
	return nil
}

// applyDCLevelShift centers unsigned samples around zero.
func (e *Encoder) applyDCLevelShift() {
	if e.params.IsSigned {
		return
	}
	shift := int32(1) << (e.params.BitDepth - 1)
	for _, plane := range e.data {
		for i := range plane {
			plane[i] -= shift
		}
	}
}

func qualityScale(quality int) float64 {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	if quality >= 100 {
		return 0
	}
	scale := math.Pow(2.0, (100.0-float64(quality))/12.5)
	if scale < 0.01 {
		scale = 0.01
	}
	return scale * 0.18
}

// codedTile carries one tile through the pipeline: quantized
// coefficient planes, then Tier-1 blocks, then packets.
type codedTile struct {
	geom   *tileGeom
	planes [][]int32 // [component] band-interleaved coefficients

	blocks     []*t1.Block // flat, in geometry order
	blockRefs  []blockRef  // parallel to blocks
	blockIndex map[blockKey]int
	alloc      *LayerAllocation
}

// blockKey addresses one code-block within a tile.
type blockKey struct {
	comp, res, band, precinct, cell int
}

// blockRef locates a flat block in the tile geometry.
type blockRef struct {
	comp, res, band, precinct, cell int
	geomBand *bandGeom
	geomBlk  *blockGeom
	mb       int // magnitude bit depth signalled for the block's band
}

func (e *Encoder) buildCodestream() ([]byte, error) {
	p := e.params

	siz := &codestream.SIZSegment{
		Xsiz:  uint32(p.Width),
		Ysiz:  uint32(p.Height),
		XTsiz: uint32(p.TileWidth),
		YTsiz: uint32(p.TileHeight),
	}
	if siz.XTsiz == 0 {
		siz.XTsiz = uint32(p.Width)
	}
	if siz.YTsiz == 0 {
		siz.YTsiz = uint32(p.Height)
	}
	for c := 0; c < p.Components; c++ {
		siz.Components = append(siz.Components, codestream.ComponentSize{
			Ssiz: codestream.MakeSsiz(p.BitDepth, p.IsSigned), XRsiz: 1, YRsiz: 1,
		})
	}

	transform := uint8(0)
	if p.Lossless {
		transform = 1
	}
	cod := &codestream.CODSegment{
		UseSOP:           p.UseSOP,
		UseEPH:           p.UseEPH,
		ProgressionOrder: p.ProgressionOrder,
		NumLayers:        uint16(p.NumLayers),
		CodingStyle: codestream.CodingStyle{
			NumDecompLevels:    uint8(p.NumLevels),
			CodeBlockWidthExp:  uint8(exactLog2(p.CodeBlockWidth) - 2),
			CodeBlockHeightExp: uint8(exactLog2(p.CodeBlockHeight) - 2),
			CodeBlockStyle:     p.CodeBlockStyle,
			Transform:          transform,
			PrecinctSizes:      p.PrecinctSizes,
		},
	}

	// Transform and quantize every tile first: the ROI shift and the
	// guard bits in the main header depend on the coefficients.
	numTiles := siz.NumTilesX() * siz.NumTilesY()
	tiles := make([]*codedTile, numTiles)
	quant := e.buildQuantizer()
	for t := 0; t < numTiles; t++ {
		ct, err := e.prepareTile(siz, t, &cod.CodingStyle, quant)
		if err != nil {
			return nil, err
		}
		tiles[t] = ct
	}

	if err := e.resolveROI(tiles, quant); err != nil {
		return nil, err
	}
	e.chooseGuardBits(tiles, quant)
	quant.GuardBits = e.guardBits

	// Tier-1 over all code-blocks, then per-tile rate allocation.
	for _, ct := range tiles {
		e.collectBlocks(ct, quant)
		if err := e.codeBlocks(ct); err != nil {
			return nil, err
		}
	}
	if err := e.allocateRate(tiles); err != nil {
		return nil, err
	}

	// Tile-parts are assembled before the main header so TLM can be
	// emitted with real lengths.
	var tileBytes [][]byte
	var tileLengths []codestream.TLMEntry
	sopSeq := 0
	for t, ct := range tiles {
		body, err := e.assembleTile(ct, cod, &sopSeq)
		if err != nil {
			return nil, err
		}
		tw := codestream.NewWriter()
		if err := tw.BeginTilePart(codestream.SOTSegment{Isot: uint16(t)}); err != nil {
			return nil, err
		}
		if p.EmitPLT {
			if err := tw.WritePLT(&codestream.PLTSegment{Lengths: body.packetLengths}); err != nil {
				return nil, err
			}
		}
		tw.WriteSOD()
		tw.WriteRaw(body.data)
		length, err := tw.EndTilePart()
		if err != nil {
			return nil, err
		}
		tileBytes = append(tileBytes, tw.Bytes())
		tileLengths = append(tileLengths, codestream.TLMEntry{Tile: t, Length: length})
	}

	w := codestream.NewWriter()
	w.WriteSOC()
	if err := w.WriteSIZ(siz); err != nil {
		return nil, err
	}
	if err := w.WriteCOD(cod); err != nil {
		return nil, err
	}
	if err := w.WriteQCD(quant.Segment()); err != nil {
		return nil, err
	}
	if len(p.ProgressionChanges) > 0 {
		poc := &codestream.POCSegment{Changes: p.ProgressionChanges}
		if err := w.WritePOC(poc, p.Components); err != nil {
			return nil, err
		}
	}
	for c, shift := range e.roiShifts {
		if shift > 0 {
			if err := w.WriteRGN(&codestream.RGNSegment{Component: c, Shift: uint8(shift)}, p.Components); err != nil {
				return nil, err
			}
		}
	}
	if p.EmitTLM {
		if err := w.WriteTLM(codestream.NewTLM(0, tileLengths)); err != nil {
			return nil, err
		}
	}
	if p.Comment != "" {
		if err := w.WriteCOM(&codestream.COMSegment{Rcom: 1, Data: []byte(p.Comment)}); err != nil {
			return nil, err
		}
	}
	for _, tb := range tileBytes {
		w.WriteRaw(tb)
	}
	w.WriteEOC()
	return w.Bytes(), nil
}

func (e *Encoder) buildQuantizer() *Quantizer {
	p := e.params
	if p.Lossless {
		return NewReversibleQuantizer(p.BitDepth, 2, p.NumLevels)
	}
	if len(p.CustomQuantSteps) > 0 {
		q := NewIrreversibleQuantizer(p.BitDepth, 2, p.NumLevels, 1)
		for idx, step := range p.CustomQuantSteps {
			_, orient, _ := subbandParams(idx, p.NumLevels)
			rb := p.BitDepth + bandGain(orient)
			coded := encodeStep(step, rb)
			q.steps[idx] = coded
			q.stepSizes[idx] = decodeStep(coded, rb)
		}
		return q
	}
	return NewIrreversibleQuantizer(p.BitDepth, 2, p.NumLevels, qualityScale(p.Quality))
}

// prepareTile runs the wavelet transform and quantization for every
// component of one tile, leaving band-interleaved integer planes.
func (e *Encoder) prepareTile(siz *codestream.SIZSegment, t int, cs *codestream.CodingStyle, quant *Quantizer) (*codedTile, error) {
	p := e.params
	geom := buildTileGeom(siz, t, cs)
	ct := &codedTile{geom: geom}

	for c := 0; c < p.Components; c++ {
		g := geom.comps[c]
		w, h := g.width(), g.height()
		plane := make([]int32, w*h)
		for y := 0; y < h; y++ {
			src := (g.y0+y)*p.Width + g.x0
			copy(plane[y*w:(y+1)*w], e.data[c][src:src+w])
		}

		if p.Lossless {
			wavelet.Forward53(plane, w, h, w, g.x0, g.y0, g.levels)
		} else {
			fplane := make([]float64, w*h)
			for i, v := range plane {
				fplane[i] = float64(v)
			}
			wavelet.Forward97(fplane, w, h, w, g.x0, g.y0, g.levels)
			e.quantizePlane(plane, fplane, g, quant)
		}
		ct.planes = append(ct.planes, plane)
	}
	return ct, nil
}

// quantizePlane maps the float transform output to integers band by
// band, each with its own step size.
func (e *Encoder) quantizePlane(plane []int32, fplane []float64, g *tileCompGeom, quant *Quantizer) {
	w := g.width()
	for ri := range g.res {
		for bi := range g.res[ri].bands {
			b := &g.res[ri].bands[bi]
			step := quant.StepSize(b.bandIdx)
			bw, bh := b.x1-b.x0, b.y1-b.y0
			for y := 0; y < bh; y++ {
				row := (b.offY + y) * w
				for x := 0; x < bw; x++ {
					v := fplane[row+b.offX+x]
					mag := int32(math.Abs(v) / step)
					if v < 0 {
						mag = -mag
					}
					plane[row+b.offX+x] = mag
				}
			}
		}
	}
}

// resolveROI settles the MaxShift value per component and scales the
// ROI coefficients up. The shift must clear every background
// magnitude, so the background is measured first.
func (e *Encoder) resolveROI(tiles []*codedTile, quant *Quantizer) error {
	p := e.params
	e.roiShifts = make([]int, p.Components)
	e.roiMasks = make([]*roiMask, p.Components)
	if p.ROI.IsEmpty() {
		return nil
	}

	for c := 0; c < p.Components; c++ {
		mask := p.ROI.BuildMask(c, p.Width, p.Height)
		if mask == nil {
			continue
		}
		e.roiMasks[c] = mask

		required := 0
		for _, ct := range tiles {
			g := ct.geom.comps[c]
			w := g.width()
			for ri := range g.res {
				for bi := range g.res[ri].bands {
					b := &g.res[ri].bands[bi]
					bw, bh := b.x1-b.x0, b.y1-b.y0
					if bw <= 0 || bh <= 0 {
						continue
					}
					window := bandROIWindow(mask, b, bw, bh)
					for y := 0; y < bh; y++ {
						row := (b.offY + y) * w
						for x := 0; x < bw; x++ {
							if window[y*bw+x] {
								continue
							}
							v := ct.planes[c][row+b.offX+x]
							if v < 0 {
								v = -v
							}
							if n := bitLen32(v); n > required {
								required = n
							}
						}
					}
				}
			}
		}

		shift := p.ROI.Shift
		if shift == 0 {
			shift = required
		} else if shift < required {
			return configErr("roi", "shift %d below the %d bits needed to clear the background", p.ROI.Shift, required)
		}
		e.roiShifts[c] = shift

		if shift == 0 {
			continue
		}
		for _, ct := range tiles {
			g := ct.geom.comps[c]
			w := g.width()
			for ri := range g.res {
				for bi := range g.res[ri].bands {
					b := &g.res[ri].bands[bi]
					bw, bh := b.x1-b.x0, b.y1-b.y0
					if bw <= 0 || bh <= 0 {
						continue
					}
					window := bandROIWindow(mask, b, bw, bh)
					for y := 0; y < bh; y++ {
						row := (b.offY + y) * w
						for x := 0; x < bw; x++ {
							if !window[y*bw+x] {
								continue
							}
							v := ct.planes[c][row+b.offX+x]
							if v >= 0 {
								ct.planes[c][row+b.offX+x] = v << shift
							} else {
								ct.planes[c][row+b.offX+x] = -((-v) << shift)
							}
						}
					}
				}
			}
		}
	}
	return nil
}

func bandROIWindow(mask *roiMask, b *bandGeom, bw, bh int) []bool {
	step := 1 << b.level
	// At level 0 there is only the LL band and both orientation
	// offsets are zero.
	off := 0
	if b.level > 0 {
		off = 1 << (b.level - 1)
	}
	xob, yob := b.orient&1, b.orient>>1
	startX := (b.x0 << b.level) + xob*off
	startY := (b.y0 << b.level) + yob*off
	return mask.downsample(startX, startY, bw, bh, step)
}

func bitLen32(v int32) int {
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}

// chooseGuardBits picks the smallest guard bit count that keeps every
// coefficient within the signalled magnitude bit budget.
func (e *Encoder) chooseGuardBits(tiles []*codedTile, quant *Quantizer) {
	guard := 2
	for _, ct := range tiles {
		for c, plane := range ct.planes {
			g := ct.geom.comps[c]
			w := g.width()
			for ri := range g.res {
				for bi := range g.res[ri].bands {
					b := &g.res[ri].bands[bi]
					bw, bh := b.x1-b.x0, b.y1-b.y0
					maxBits := 0
					for y := 0; y < bh; y++ {
						row := (b.offY + y) * w
						for x := 0; x < bw; x++ {
							v := plane[row+b.offX+x]
							if v < 0 {
								v = -v
							}
							if n := bitLen32(v); n > maxBits {
								maxBits = n
							}
						}
					}
					expn := int(quant.steps[b.bandIdx].Exponent)
					need := maxBits - e.roiShifts[c] - expn + 1
					if need > guard {
						guard = need
					}
				}
			}
		}
	}
	if guard > 7 {
		guard = 7
	}
	e.guardBits = guard
}

// collectBlocks flattens the tile's code-blocks in geometry order:
// component, resolution, band, precinct, grid cell.
func (e *Encoder) collectBlocks(ct *codedTile, quant *Quantizer) {
	ct.blockRefs = ct.blockRefs[:0]
	for c, g := range ct.geom.comps {
		for ri := range g.res {
			for bi := range g.res[ri].bands {
				b := &g.res[ri].bands[bi]
				mb := quant.Mb(b.bandIdx) + e.roiShifts[c]
				for pi := range b.precincts {
					pb := &b.precincts[pi]
					for cell := range pb.blocks {
						ct.blockRefs = append(ct.blockRefs, blockRef{
							comp: c, res: ri, band: bi, precinct: pi, cell: cell,
							geomBand: b, geomBlk: &pb.blocks[cell], mb: mb,
						})
					}
				}
			}
		}
	}
}

// codeBlocks runs Tier-1 over every code-block of the tile in
// parallel. Results land in a slice indexed by block order, so the
// join is deterministic regardless of scheduling.
func (e *Encoder) codeBlocks(ct *codedTile) error {
	p := e.params
	workers := p.NumWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ct.blocks = make([]*t1.Block, len(ct.blockRefs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				ref := &ct.blockRefs[idx]
				g := ct.geom.comps[ref.comp]
				coeffs := extractBlock(ct.planes[ref.comp], g.width(), ref.geomBand, ref.geomBlk)
				enc := t1.NewEncoder(ref.geomBlk.w(), ref.geomBlk.h(), ref.geomBand.orient, p.CodeBlockStyle)
				ct.blocks[idx] = enc.Encode(coeffs)
			}
		}()
	}
	for idx := range ct.blockRefs {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	for idx, blk := range ct.blocks {
		if blk.MaxBitplane+1 > ct.blockRefs[idx].mb {
			return fmt.Errorf("block %d magnitude %d bits exceeds signalled %d",
				idx, blk.MaxBitplane+1, ct.blockRefs[idx].mb)
		}
	}
	return nil
}

// allocateRate runs PCRD-opt. Image-wide budgets are split across
// tiles in proportion to each tile's fully-coded size.
func (e *Encoder) allocateRate(tiles []*codedTile) error {
	p := e.params

	budgets := p.LayerTargets
	if len(budgets) == 0 {
		total := 0
		if p.TargetRatio > 0 {
			raw := p.Width * p.Height * p.Components * ((p.BitDepth + 7) / 8)
			total = int(float64(raw) / p.TargetRatio)
		}
		budgets = LayerBudgets(total, p.NumLayers)
		if total == 0 {
			for i := range budgets {
				budgets[i] = 0
			}
			// Uncapped layers still need a spread; split the full
			// coded size so earlier layers stay partial.
			full := 0
			for _, ct := range tiles {
				for _, blk := range ct.blocks {
					if n := len(blk.Passes); n > 0 {
						full += blk.Passes[n-1].Rate
					}
				}
			}
			budgets = LayerBudgets(full, p.NumLayers)
		}
	}

	tileSizes := make([]int, len(tiles))
	grand := 0
	for i, ct := range tiles {
		for _, blk := range ct.blocks {
			if n := len(blk.Passes); n > 0 {
				tileSizes[i] += blk.Passes[n-1].Rate
			}
		}
		grand += tileSizes[i]
	}

	for i, ct := range tiles {
		share := 1.0
		if grand > 0 {
			share = float64(tileSizes[i]) / float64(grand)
		}
		tileBudgets := make([]int, len(budgets))
		for l, b := range budgets {
			tileBudgets[l] = int(float64(b) * share)
		}
		passes := make([][]t1.Pass, len(ct.blocks))
		for bi, blk := range ct.blocks {
			passes[bi] = blk.Passes
		}
		overhead := e.emptyLayerOverhead(ct)
		alloc, err := AllocateLayers(passes, tileBudgets, overhead)
		if err != nil {
			return err
		}
		ct.alloc = alloc
	}
	return nil
}

// emptyLayerOverhead estimates the bytes one all-empty layer costs:
// one header byte per packet, plus SOP and EPH when enabled.
func (e *Encoder) emptyLayerOverhead(ct *codedTile) int {
	perPacket := 1
	if e.params.UseSOP {
		perPacket += 6
	}
	if e.params.UseEPH {
		perPacket += 2
	}
	packets := 0
	for _, g := range ct.geom.comps {
		for ri := range g.res {
			packets += g.res[ri].numPrecincts()
		}
	}
	return packets * perPacket
}

// tileBody is the packet stream of one tile plus its PLT lengths.
type tileBody struct {
	data          []byte
	packetLengths []int
}

// assembleTile emits the tile's packets in progression order.
func (e *Encoder) assembleTile(ct *codedTile, cod *codestream.CODSegment, sopSeq *int) (*tileBody, error) {
	p := e.params
	geom := ct.geom

	numPrec := func(comp, res int) int {
		if comp >= len(geom.comps) || res >= len(geom.comps[comp].res) {
			return 0
		}
		return geom.comps[comp].res[res].numPrecincts()
	}
	var prog *t2.Progression
	if len(p.ProgressionChanges) > 0 {
		vols := make([]t2.ProgressionVolume, len(p.ProgressionChanges))
		for i, ch := range p.ProgressionChanges {
			vols[i] = t2.ProgressionVolume{
				Order:     t2.ProgressionOrder(ch.Ppoc),
				LayerEnd:  int(ch.LYEpoc),
				ResStart:  int(ch.RSpoc),
				ResEnd:    int(ch.REpoc),
				CompStart: int(ch.CSpoc),
				CompEnd:   int(ch.CEpoc),
			}
		}
		prog = t2.NewProgressionWithChanges(vols, p.NumLayers, p.NumLevels+1, p.Components, numPrec)
	} else {
		prog = t2.NewProgression(t2.ProgressionOrder(p.ProgressionOrder), p.NumLayers, p.NumLevels+1, p.Components, numPrec)
	}
	coords, err := prog.Packets()
	if err != nil {
		return nil, err
	}

	// Per precinct per band header state, primed with each block's
	// first inclusion layer and zero bit-plane count.
	states := e.primePrecinctStates(ct)

	body := &tileBody{}
	for _, pc := range coords {
		pkt, err := e.buildPacket(ct, states, pc)
		if err != nil {
			return nil, err
		}
		if p.UseSOP {
			pkt = t2.WrapSOP(*sopSeq, pkt)
			*sopSeq++
		}
		body.data = append(body.data, pkt...)
		body.packetLengths = append(body.packetLengths, len(pkt))
	}
	return body, nil
}

// precinctKey identifies a precinct-band's header state.
type precinctKey struct {
	comp, res, band, precinct int
}

func (e *Encoder) primePrecinctStates(ct *codedTile) map[precinctKey]*t2.PrecinctState {
	states := make(map[precinctKey]*t2.PrecinctState)

	// First-inclusion layer and zero bit-planes per block, grouped by
	// precinct-band.
	type prime struct {
		firstLayer []int
		zbp        []int
	}
	primes := make(map[precinctKey]*prime)
	for idx, ref := range ct.blockRefs {
		key := precinctKey{ref.comp, ref.res, ref.band, ref.precinct}
		pb := &ct.geom.comps[ref.comp].res[ref.res].bands[ref.band].precincts[ref.precinct]
		pr, ok := primes[key]
		if !ok {
			n := pb.gridW * pb.gridH
			pr = &prime{firstLayer: make([]int, n), zbp: make([]int, n)}
			for i := range pr.firstLayer {
				pr.firstLayer[i] = ct.alloc.NumLayers
			}
			primes[key] = pr
		}
		blk := ct.blocks[idx]
		first := ct.alloc.NumLayers
		for l := 0; l < ct.alloc.NumLayers; l++ {
			if ct.alloc.PassesForLayer(idx, l) > 0 {
				first = l
				break
			}
		}
		pr.firstLayer[ref.cell] = first
		pr.zbp[ref.cell] = ref.mb - (blk.MaxBitplane + 1)
	}

	for key, pr := range primes {
		pb := &ct.geom.comps[key.comp].res[key.res].bands[key.band].precincts[key.precinct]
		ps := t2.NewPrecinctState(pb.gridW, pb.gridH)
		ps.SetBlockValues(pr.firstLayer, pr.zbp)
		states[key] = ps
	}
	return states
}

// buildPacket encodes the header and body of one packet.
func (e *Encoder) buildPacket(ct *codedTile, states map[precinctKey]*t2.PrecinctState, pc t2.PacketCoords) ([]byte, error) {
	g := ct.geom.comps[pc.Component]
	rg := &g.res[pc.Resolution]

	var bandStates []*t2.PrecinctState
	var contribs [][]t2.BlockContribution
	var bodies [][]byte

	for bi := range rg.bands {
		key := precinctKey{pc.Component, pc.Resolution, bi, pc.Precinct}
		ps := states[key]
		if ps == nil {
			pb := &rg.bands[bi].precincts[pc.Precinct]
			ps = t2.NewPrecinctState(pb.gridW, pb.gridH)
			states[key] = ps
		}
		bandStates = append(bandStates, ps)

		pb := &rg.bands[bi].precincts[pc.Precinct]
		bandContrib := make([]t2.BlockContribution, len(pb.blocks))
		for cell := range pb.blocks {
			idx := e.flatBlockIndex(ct, pc.Component, pc.Resolution, bi, pc.Precinct, cell)
			blk := ct.blocks[idx]
			cur := ct.alloc.PassesForLayer(idx, pc.Layer)
			newPasses := ct.alloc.NewPassesForLayer(idx, pc.Layer)
			c := &bandContrib[cell]
			c.Index = cell
			if newPasses <= 0 {
				continue
			}
			start := cur - newPasses
			c.NumPasses = newPasses
			c.ZeroBitPlanes = ct.blockRefs[idx].mb - (blk.MaxBitplane + 1)
			c.SegPasses = t1.SegmentPassCounts(e.params.CodeBlockStyle, start, newPasses, blk.MaxBitplane)
			base := 0
			if start > 0 {
				base = blk.Passes[start-1].Rate
			}
			pos := base
			pass := start
			for _, sp := range c.SegPasses {
				end := blk.Passes[pass+sp-1].Rate
				c.SegLengths = append(c.SegLengths, end-pos)
				pos = end
				pass += sp
			}
			c.DataLength = pos - base
			c.Data = blk.Data[base:pos]
			bodies = append(bodies, c.Data)
		}
		contribs = append(contribs, bandContrib)
	}

	header, err := t2.EncodePacketHeaderBands(bandStates, pc.Layer, contribs)
	if err != nil {
		return nil, err
	}
	pkt := header
	if e.params.UseEPH {
		pkt = t2.AppendEPH(pkt)
	}
	for _, b := range bodies {
		pkt = append(pkt, b...)
	}
	return pkt, nil
}

// flatBlockIndex maps geometry coordinates to the flat block order
// built by collectBlocks.
func (e *Encoder) flatBlockIndex(ct *codedTile, comp, res, band, precinct, cell int) int {
	if ct.blockIndex == nil {
		ct.blockIndex = make(map[blockKey]int, len(ct.blockRefs))
		for i, ref := range ct.blockRefs {
			ct.blockIndex[blockKey{ref.comp, ref.res, ref.band, ref.precinct, ref.cell}] = i
		}
	}
	return ct.blockIndex[blockKey{comp, res, band, precinct, cell}]
}
