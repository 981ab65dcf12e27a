package jpeg2000

import (
	"github.com/cinderblocks/corej2k/jpeg2000/codestream"
	"github.com/cinderblocks/corej2k/jpeg2000/wavelet"
)

// Canvas geometry, Annex B. Tiles, resolutions, subbands, precincts
// and code-blocks are all rectangles on the reference grid; every
// partition below derives from integer ceiling divisions of the tile
// bounds, so odd sizes and offsets fall out of the arithmetic instead
// of being special cases.

func ceilShift(a, n int) int {
	if a >= 0 {
		return (a + (1 << n) - 1) >> n
	}
	return -((-a) >> n)
}

// blockGeom is one code-block's rectangle in subband coordinates and
// its cell in the precinct's code-block grid.
type blockGeom struct {
	x0, y0, x1, y1 int
	gx, gy         int
}

func (b *blockGeom) w() int { return b.x1 - b.x0 }
func (b *blockGeom) h() int { return b.y1 - b.y0 }

// precinctBand is the part of one precinct that falls in one subband.
type precinctBand struct {
	x0, y0, x1, y1 int
	gridW, gridH   int
	blocks         []blockGeom
}

// bandGeom is one subband of a resolution: its rectangle in band
// coordinates, its placement in the tile-component coefficient plane,
// and its per-precinct code-block partition.
type bandGeom struct {
	orient  int // 0 LL, 1 HL, 2 LH, 3 HH
	bandIdx int // flat index into the quantizer's subband order
	level   int // decomposition level the band belongs to

	x0, y0, x1, y1 int
	offX, offY     int

	precincts []precinctBand
}

// resGeom is one resolution level of a tile-component.
type resGeom struct {
	x0, y0, x1, y1     int
	ppx, ppy           int
	numPrecX, numPrecY int
	bands              []bandGeom
}

func (r *resGeom) numPrecincts() int { return r.numPrecX * r.numPrecY }

// tileCompGeom is the full partition of one component of one tile.
type tileCompGeom struct {
	comp           int
	x0, y0, x1, y1 int
	levels         int
	res            []resGeom
}

func (g *tileCompGeom) width() int  { return g.x1 - g.x0 }
func (g *tileCompGeom) height() int { return g.y1 - g.y0 }

// tileGeom is one tile of the image grid.
type tileGeom struct {
	idx            int
	x0, y0, x1, y1 int
	comps          []*tileCompGeom
}

// tileBounds returns tile t's rectangle on the reference grid.
func tileBounds(siz *codestream.SIZSegment, t int) (x0, y0, x1, y1 int) {
	ntx := siz.NumTilesX()
	p, q := t%ntx, t/ntx
	x0 = int(siz.XTOsiz) + p*int(siz.XTsiz)
	y0 = int(siz.YTOsiz) + q*int(siz.YTsiz)
	x1 = x0 + int(siz.XTsiz)
	y1 = y0 + int(siz.YTsiz)
	if x0 < int(siz.XOsiz) {
		x0 = int(siz.XOsiz)
	}
	if y0 < int(siz.YOsiz) {
		y0 = int(siz.YOsiz)
	}
	if x1 > int(siz.Xsiz) {
		x1 = int(siz.Xsiz)
	}
	if y1 > int(siz.Ysiz) {
		y1 = int(siz.Ysiz)
	}
	return x0, y0, x1, y1
}

// buildTileGeom partitions every component of tile t down to
// code-blocks, following the coding style cs (subsampling is 1, so
// tile-component bounds equal the tile bounds).
func buildTileGeom(siz *codestream.SIZSegment, t int, cs *codestream.CodingStyle) *tileGeom {
	x0, y0, x1, y1 := tileBounds(siz, t)
	tg := &tileGeom{idx: t, x0: x0, y0: y0, x1: x1, y1: y1}
	for c := range siz.Components {
		tg.comps = append(tg.comps, buildTileComp(c, x0, y0, x1, y1, cs))
	}
	return tg
}

func buildTileComp(comp, tcx0, tcy0, tcx1, tcy1 int, cs *codestream.CodingStyle) *tileCompGeom {
	levels := int(cs.NumDecompLevels)
	g := &tileCompGeom{comp: comp, x0: tcx0, y0: tcy0, x1: tcx1, y1: tcy1, levels: levels}
	dims := wavelet.Layout(tcx1-tcx0, tcy1-tcy0, tcx0, tcy0, levels)
	xcb := int(cs.CodeBlockWidthExp) + 2
	ycb := int(cs.CodeBlockHeightExp) + 2

	for r := 0; r <= levels; r++ {
		shift := levels - r
		rg := resGeom{
			x0: ceilShift(tcx0, shift),
			y0: ceilShift(tcy0, shift),
			x1: ceilShift(tcx1, shift),
			y1: ceilShift(tcy1, shift),
		}
		px, py := cs.PrecinctExponents(r)
		rg.ppx, rg.ppy = int(px), int(py)
		if rg.x1 > rg.x0 && rg.y1 > rg.y0 {
			rg.numPrecX = ceilShift(rg.x1, rg.ppx) - (rg.x0 >> rg.ppx)
			rg.numPrecY = ceilShift(rg.y1, rg.ppy) - (rg.y0 >> rg.ppy)
		}

		// Code-block size never exceeds the precinct (half of it at
		// resolutions above zero, where bands sit at half scale).
		cbx, cby := xcb, ycb
		ppbx, ppby := rg.ppx, rg.ppy
		if r > 0 {
			ppbx--
			ppby--
		}
		if cbx > ppbx {
			cbx = ppbx
		}
		if cby > ppby {
			cby = ppby
		}

		if r == 0 {
			b := bandGeom{
				orient: 0, bandIdx: 0, level: levels,
				x0: rg.x0, y0: rg.y0, x1: rg.x1, y1: rg.y1,
			}
			buildBandPrecincts(&b, &rg, r, cbx, cby)
			rg.bands = append(rg.bands, b)
		} else {
			nb := levels - r + 1
			d := dims[nb-1]
			for orient := 1; orient <= 3; orient++ {
				xob, yob := orient&1, orient>>1
				b := bandGeom{
					orient:  orient,
					bandIdx: (r-1)*3 + orient,
					level:   nb,
					x0:      ceilShift(tcx0-(xob<<(nb-1)), nb),
					y0:      ceilShift(tcy0-(yob<<(nb-1)), nb),
					x1:      ceilShift(tcx1-(xob<<(nb-1)), nb),
					y1:      ceilShift(tcy1-(yob<<(nb-1)), nb),
				}
				if xob == 1 {
					b.offX = d.LowW
				}
				if yob == 1 {
					b.offY = d.LowH
				}
				buildBandPrecincts(&b, &rg, r, cbx, cby)
				rg.bands = append(rg.bands, b)
			}
		}
		g.res = append(g.res, rg)
	}
	return g
}

// buildBandPrecincts fills in the per-precinct code-block partition of
// one band. Precinct rectangles live on the resolution grid; at
// resolutions above zero the band sits at half that scale.
func buildBandPrecincts(b *bandGeom, rg *resGeom, r, cbx, cby int) {
	toBand := func(v, ob int) int {
		if r == 0 {
			return v
		}
		return ceilShift(v-ob, 1)
	}
	xob, yob := b.orient&1, b.orient>>1
	cbw, cbh := 1<<cbx, 1<<cby

	b.precincts = make([]precinctBand, rg.numPrecincts())
	for pj := 0; pj < rg.numPrecY; pj++ {
		for pi := 0; pi < rg.numPrecX; pi++ {
			prx0 := ((rg.x0 >> rg.ppx) + pi) << rg.ppx
			pry0 := ((rg.y0 >> rg.ppy) + pj) << rg.ppy
			prx1 := prx0 + (1 << rg.ppx)
			pry1 := pry0 + (1 << rg.ppy)
			if prx0 < rg.x0 {
				prx0 = rg.x0
			}
			if pry0 < rg.y0 {
				pry0 = rg.y0
			}
			if prx1 > rg.x1 {
				prx1 = rg.x1
			}
			if pry1 > rg.y1 {
				pry1 = rg.y1
			}

			pb := precinctBand{
				x0: max(toBand(prx0, xob), b.x0),
				y0: max(toBand(pry0, yob), b.y0),
				x1: min(toBand(prx1, xob), b.x1),
				y1: min(toBand(pry1, yob), b.y1),
			}
			if pb.x0 < pb.x1 && pb.y0 < pb.y1 {
				gx0, gx1 := pb.x0/cbw, ceilShift(pb.x1, cbx)
				gy0, gy1 := pb.y0/cbh, ceilShift(pb.y1, cby)
				pb.gridW = gx1 - gx0
				pb.gridH = gy1 - gy0
				for gy := gy0; gy < gy1; gy++ {
					for gx := gx0; gx < gx1; gx++ {
						pb.blocks = append(pb.blocks, blockGeom{
							x0: max(gx*cbw, pb.x0),
							y0: max(gy*cbh, pb.y0),
							x1: min((gx+1)*cbw, pb.x1),
							y1: min((gy+1)*cbh, pb.y1),
							gx: gx - gx0,
							gy: gy - gy0,
						})
					}
				}
			}
			b.precincts[pj*rg.numPrecX+pi] = pb
		}
	}
}

// extractBlock copies one code-block out of the tile-component
// coefficient plane.
func extractBlock(plane []int32, planeW int, b *bandGeom, blk *blockGeom) []int32 {
	w, h := blk.w(), blk.h()
	out := make([]int32, w*h)
	for y := 0; y < h; y++ {
		srcRow := (b.offY + blk.y0 - b.y0 + y) * planeW
		srcCol := b.offX + blk.x0 - b.x0
		copy(out[y*w:(y+1)*w], plane[srcRow+srcCol:srcRow+srcCol+w])
	}
	return out
}

// storeBlock writes decoded code-block coefficients back into the
// tile-component coefficient plane.
func storeBlock(plane []int32, planeW int, b *bandGeom, blk *blockGeom, coeffs []int32) {
	w, h := blk.w(), blk.h()
	for y := 0; y < h; y++ {
		dstRow := (b.offY + blk.y0 - b.y0 + y) * planeW
		dstCol := b.offX + blk.x0 - b.x0
		copy(plane[dstRow+dstCol:dstRow+dstCol+w], coeffs[y*w:(y+1)*w])
	}
}

// roiWindow maps a code-block back to image coordinates and OR-reduces
// the component ROI mask over each coefficient's footprint.
func roiWindow(mask *roiMask, b *bandGeom, blk *blockGeom) []bool {
	step := 1 << b.level
	off := 0
	if b.level > 0 {
		off = 1 << (b.level - 1)
	}
	xob, yob := b.orient&1, b.orient>>1
	startX := (blk.x0 << b.level) + xob*off
	startY := (blk.y0 << b.level) + yob*off
	return mask.downsample(startX, startY, blk.w(), blk.h(), step)
}
