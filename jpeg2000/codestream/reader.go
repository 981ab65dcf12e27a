package codestream

import "encoding/binary"

// Header is the parsed output of a codestream: main-header defaults,
// per-component overrides keyed by component index, and the tile-parts
// in codestream order with their own override records.
type Header struct {
	SIZ *SIZSegment
	COD *CODSegment
	QCD *QCDSegment
	COC map[int]*COCSegment
	QCC map[int]*QCCSegment
	RGN []RGNSegment
	POC []POCChange
	TLM []TLMEntry
	COM []COMSegment

	TileParts []*TilePart

	// Truncated is set when the data ran out inside a tile body.
	// That is a valid way to cut a codestream, not an error.
	Truncated bool
}

// TilePart is one SOT..SOD..data run.
type TilePart struct {
	SOT SOTSegment

	COD *CODSegment
	COC map[int]*COCSegment
	QCD *QCDSegment
	QCC map[int]*QCCSegment
	POC []POCChange
	PLT []int

	Data []byte
}

// StyleFor resolves the coding style for a component within a
// tile-part: tile COC, then tile COD, then main COC, then main COD.
func (h *Header) StyleFor(tp *TilePart, comp int) CodingStyle {
	if tp != nil {
		if c, ok := tp.COC[comp]; ok {
			return c.CodingStyle
		}
		if tp.COD != nil {
			return tp.COD.CodingStyle
		}
	}
	if c, ok := h.COC[comp]; ok {
		return c.CodingStyle
	}
	return h.COD.CodingStyle
}

// QuantFor resolves quantization for a component the same way.
func (h *Header) QuantFor(tp *TilePart, comp int) (style, guardBits uint8, steps []QuantStep) {
	if tp != nil {
		if q, ok := tp.QCC[comp]; ok {
			return q.Style, q.GuardBits, q.Steps
		}
		if tp.QCD != nil {
			return tp.QCD.Style, tp.QCD.GuardBits, tp.QCD.Steps
		}
	}
	if q, ok := h.QCC[comp]; ok {
		return q.Style, q.GuardBits, q.Steps
	}
	return h.QCD.Style, h.QCD.GuardBits, h.QCD.Steps
}

// ProgressionChangesFor returns the POC volumes in effect for a
// tile-part, tile-level changes overriding main-header ones.
func (h *Header) ProgressionChangesFor(tp *TilePart) []POCChange {
	if tp != nil && len(tp.POC) > 0 {
		return tp.POC
	}
	return h.POC
}

// Parse reads a complete codestream. The marker sequence is validated
// as it goes: SOC first, SIZ second, COD and QCD before the first SOT,
// SOT..SOD framing per tile-part. Unknown marker segments are skipped
// by their declared length.
func Parse(data []byte) (*Header, error) {
	r := &reader{data: data}
	return r.parse()
}

type reader struct {
	data   []byte
	offset int
}

func (r *reader) parse() (*Header, error) {
	h := &Header{
		COC: make(map[int]*COCSegment),
		QCC: make(map[int]*QCCSegment),
	}

	marker, err := r.readMarker()
	if err != nil {
		return nil, err
	}
	if marker != MarkerSOC {
		return nil, structural(0, marker, "codestream does not start with SOC")
	}
	marker, err = r.readMarker()
	if err != nil {
		return nil, err
	}
	if marker != MarkerSIZ {
		return nil, structural(2, marker, "SIZ must immediately follow SOC")
	}
	segOff := r.offset - 2
	body, err := r.readSegmentBody(MarkerSIZ)
	if err != nil {
		return nil, err
	}
	h.SIZ, err = parseSIZ(body, segOff)
	if err != nil {
		return nil, err
	}
	numComp := len(h.SIZ.Components)

	// Remaining main header segments until SOT or EOC.
	for {
		segOff = r.offset
		marker, err = r.readMarker()
		if err != nil {
			return nil, err
		}
		if marker == MarkerSOT || marker == MarkerEOC {
			break
		}
		body, err = r.readSegmentBody(marker)
		if err != nil {
			return nil, err
		}
		switch marker {
		case MarkerCOD:
			if h.COD != nil {
				return nil, structural(segOff, marker, "duplicate COD in main header")
			}
			h.COD, err = parseCOD(body, segOff)
		case MarkerCOC:
			var coc *COCSegment
			coc, err = parseCOC(body, numComp, segOff)
			if err == nil {
				h.COC[coc.Component] = coc
			}
		case MarkerQCD:
			if h.QCD != nil {
				return nil, structural(segOff, marker, "duplicate QCD in main header")
			}
			h.QCD, err = parseQCD(body, segOff)
		case MarkerQCC:
			var qcc *QCCSegment
			qcc, err = parseQCC(body, numComp, segOff)
			if err == nil {
				h.QCC[qcc.Component] = qcc
			}
		case MarkerRGN:
			var rgn *RGNSegment
			rgn, err = parseRGN(body, numComp, segOff)
			if err == nil {
				h.RGN = append(h.RGN, *rgn)
			}
		case MarkerPOC:
			var poc *POCSegment
			poc, err = parsePOC(body, numComp, segOff)
			if err == nil {
				h.POC = append(h.POC, poc.Changes...)
			}
		case MarkerTLM:
			var tlm *TLMSegment
			tlm, err = parseTLM(body, segOff)
			if err == nil {
				h.TLM = append(h.TLM, tlm.Entries...)
			}
		case MarkerCOM:
			var com *COMSegment
			com, err = parseCOM(body, segOff)
			if err == nil {
				h.COM = append(h.COM, *com)
			}
		case MarkerSIZ:
			return nil, structural(segOff, marker, "duplicate SIZ")
		case MarkerSOD:
			return nil, structural(segOff, marker, "SOD outside a tile-part")
		default:
			// skipped by declared length
		}
		if err != nil {
			return nil, err
		}
	}

	if h.COD == nil {
		return nil, structural(r.offset, 0, "main header ended without COD")
	}
	if h.QCD == nil {
		return nil, structural(r.offset, 0, "main header ended without QCD")
	}

	for marker == MarkerSOT {
		tp, next, err := r.parseTilePart(h, numComp)
		if err != nil {
			return nil, err
		}
		h.TileParts = append(h.TileParts, tp)
		if next == 0 {
			// data ran out inside the tile body
			h.Truncated = true
			return h, nil
		}
		marker = next
	}

	if marker != MarkerEOC {
		return nil, structural(r.offset-2, marker, "expected SOT or EOC")
	}
	return h, nil
}

// parseTilePart reads from just after an SOT marker through the tile
// data, returning the marker that followed (SOT, EOC, or 0 when the
// buffer ended inside the body).
func (r *reader) parseTilePart(h *Header, numComp int) (*TilePart, uint16, error) {
	sotStart := r.offset - 2
	body, err := r.readSegmentBody(MarkerSOT)
	if err != nil {
		return nil, 0, err
	}
	sot, err := parseSOT(body, sotStart)
	if err != nil {
		return nil, 0, err
	}
	tp := &TilePart{
		SOT: *sot,
		COC: make(map[int]*COCSegment),
		QCC: make(map[int]*QCCSegment),
	}

	for {
		segOff := r.offset
		marker, err := r.readMarker()
		if err != nil {
			return nil, 0, err
		}
		if marker == MarkerSOD {
			break
		}
		body, err := r.readSegmentBody(marker)
		if err != nil {
			return nil, 0, err
		}
		switch marker {
		case MarkerCOD:
			if tp.COD != nil {
				return nil, 0, structural(segOff, marker, "duplicate COD in tile-part header")
			}
			tp.COD, err = parseCOD(body, segOff)
		case MarkerCOC:
			var coc *COCSegment
			coc, err = parseCOC(body, numComp, segOff)
			if err == nil {
				tp.COC[coc.Component] = coc
			}
		case MarkerQCD:
			tp.QCD, err = parseQCD(body, segOff)
		case MarkerQCC:
			var qcc *QCCSegment
			qcc, err = parseQCC(body, numComp, segOff)
			if err == nil {
				tp.QCC[qcc.Component] = qcc
			}
		case MarkerPOC:
			var poc *POCSegment
			poc, err = parsePOC(body, numComp, segOff)
			if err == nil {
				tp.POC = append(tp.POC, poc.Changes...)
			}
		case MarkerPLT:
			var plt *PLTSegment
			plt, err = parsePLT(body, segOff)
			if err == nil {
				tp.PLT = append(tp.PLT, plt.Lengths...)
			}
		case MarkerCOM:
			var com *COMSegment
			com, err = parseCOM(body, segOff)
			if err == nil {
				h.COM = append(h.COM, *com)
			}
		case MarkerSOT, MarkerSIZ:
			return nil, 0, structural(segOff, marker, "marker not allowed in tile-part header")
		default:
			// skipped by declared length
		}
		if err != nil {
			return nil, 0, err
		}
	}

	// Psot counts from the SOT marker itself; 0 means the tile-part
	// runs to the next SOT or to EOC, allowed only in the last one.
	if sot.Psot == 0 {
		end := len(r.data)
		if end >= 2 && binary.BigEndian.Uint16(r.data[end-2:]) == MarkerEOC {
			tp.Data = r.data[r.offset : end-2]
			r.offset = end - 2
		} else {
			tp.Data = r.data[r.offset:]
			r.offset = end
			return tp, 0, nil
		}
	} else {
		end := sotStart + int(sot.Psot)
		if end < r.offset {
			return nil, 0, structural(sotStart, MarkerSOT, "Psot %d smaller than tile-part header", sot.Psot)
		}
		if end > len(r.data) {
			tp.Data = r.data[r.offset:]
			r.offset = len(r.data)
			return tp, 0, nil
		}
		tp.Data = r.data[r.offset:end]
		r.offset = end
	}

	marker, err := r.readMarker()
	if err != nil {
		return nil, 0, err
	}
	if marker != MarkerSOT && marker != MarkerEOC {
		return nil, 0, structural(r.offset-2, marker, "expected SOT or EOC after tile-part data")
	}
	return tp, marker, nil
}

func (r *reader) readMarker() (uint16, error) {
	if r.offset+2 > len(r.data) {
		return 0, structural(r.offset, 0, "data ends where a marker is required")
	}
	m := binary.BigEndian.Uint16(r.data[r.offset:])
	if m < 0xFF00 {
		return 0, structural(r.offset, 0, "bytes %02X %02X are not a marker", r.data[r.offset], r.data[r.offset+1])
	}
	r.offset += 2
	return m, nil
}

// readSegmentBody reads the 16-bit length (which counts itself) and
// returns the body bytes.
func (r *reader) readSegmentBody(marker uint16) ([]byte, error) {
	if !HasLength(marker) {
		return nil, nil
	}
	if r.offset+2 > len(r.data) {
		return nil, structural(r.offset, marker, "data ends inside segment length field")
	}
	l := int(binary.BigEndian.Uint16(r.data[r.offset:]))
	if l < 2 {
		return nil, structural(r.offset, marker, "segment length %d below minimum 2", l)
	}
	if r.offset+l > len(r.data) {
		return nil, structural(r.offset, marker, "segment length %d overruns data", l)
	}
	body := r.data[r.offset+2 : r.offset+l]
	r.offset += l
	return body, nil
}
