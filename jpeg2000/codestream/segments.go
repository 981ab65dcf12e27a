package codestream

import "encoding/binary"

// Marker segment layouts, ISO/IEC 15444-1 Annex A. Each segment type
// encodes to its body bytes (everything after the 16-bit length field)
// and parses from the same.

// SIZSegment, A.5.1. Image and tile geometry on the reference grid.
type SIZSegment struct {
	Rsiz   uint16
	Xsiz   uint32
	Ysiz   uint32
	XOsiz  uint32
	YOsiz  uint32
	XTsiz  uint32
	YTsiz  uint32
	XTOsiz uint32
	YTOsiz uint32

	Components []ComponentSize
}

// ComponentSize holds one component's precision and subsampling.
type ComponentSize struct {
	Ssiz  uint8 // bit 7 sign, bits 0-6 depth-1
	XRsiz uint8
	YRsiz uint8
}

// BitDepth returns the component sample precision in bits.
func (c ComponentSize) BitDepth() int { return int(c.Ssiz&0x7F) + 1 }

// IsSigned reports whether component samples are signed.
func (c ComponentSize) IsSigned() bool { return c.Ssiz&0x80 != 0 }

// MakeSsiz builds the Ssiz byte from depth and signedness.
func MakeSsiz(bitDepth int, signed bool) uint8 {
	s := uint8(bitDepth-1) & 0x7F
	if signed {
		s |= 0x80
	}
	return s
}

// NumTilesX returns the tile grid width.
func (s *SIZSegment) NumTilesX() int {
	return ceilDiv(int(s.Xsiz)-int(s.XTOsiz), int(s.XTsiz))
}

// NumTilesY returns the tile grid height.
func (s *SIZSegment) NumTilesY() int {
	return ceilDiv(int(s.Ysiz)-int(s.YTOsiz), int(s.YTsiz))
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func (s *SIZSegment) encode() []byte {
	body := make([]byte, 36+3*len(s.Components))
	binary.BigEndian.PutUint16(body[0:], s.Rsiz)
	binary.BigEndian.PutUint32(body[2:], s.Xsiz)
	binary.BigEndian.PutUint32(body[6:], s.Ysiz)
	binary.BigEndian.PutUint32(body[10:], s.XOsiz)
	binary.BigEndian.PutUint32(body[14:], s.YOsiz)
	binary.BigEndian.PutUint32(body[18:], s.XTsiz)
	binary.BigEndian.PutUint32(body[22:], s.YTsiz)
	binary.BigEndian.PutUint32(body[26:], s.XTOsiz)
	binary.BigEndian.PutUint32(body[30:], s.YTOsiz)
	binary.BigEndian.PutUint16(body[34:], uint16(len(s.Components)))
	for i, c := range s.Components {
		body[36+3*i] = c.Ssiz
		body[37+3*i] = c.XRsiz
		body[38+3*i] = c.YRsiz
	}
	return body
}

func parseSIZ(body []byte, offset int) (*SIZSegment, error) {
	if len(body) < 36 {
		return nil, structural(offset, MarkerSIZ, "segment body %d bytes, need at least 36", len(body))
	}
	s := &SIZSegment{
		Rsiz:   binary.BigEndian.Uint16(body[0:]),
		Xsiz:   binary.BigEndian.Uint32(body[2:]),
		Ysiz:   binary.BigEndian.Uint32(body[6:]),
		XOsiz:  binary.BigEndian.Uint32(body[10:]),
		YOsiz:  binary.BigEndian.Uint32(body[14:]),
		XTsiz:  binary.BigEndian.Uint32(body[18:]),
		YTsiz:  binary.BigEndian.Uint32(body[22:]),
		XTOsiz: binary.BigEndian.Uint32(body[26:]),
		YTOsiz: binary.BigEndian.Uint32(body[30:]),
	}
	csiz := int(binary.BigEndian.Uint16(body[34:]))
	if csiz == 0 {
		return nil, structural(offset, MarkerSIZ, "zero components")
	}
	if len(body) != 36+3*csiz {
		return nil, structural(offset, MarkerSIZ, "segment body %d bytes for %d components, want %d",
			len(body), csiz, 36+3*csiz)
	}
	if s.Xsiz <= s.XOsiz || s.Ysiz <= s.YOsiz {
		return nil, structural(offset, MarkerSIZ, "image area is empty")
	}
	if s.XTsiz == 0 || s.YTsiz == 0 {
		return nil, structural(offset, MarkerSIZ, "zero tile size")
	}
	s.Components = make([]ComponentSize, csiz)
	for i := range s.Components {
		s.Components[i] = ComponentSize{
			Ssiz:  body[36+3*i],
			XRsiz: body[37+3*i],
			YRsiz: body[38+3*i],
		}
		if s.Components[i].XRsiz == 0 || s.Components[i].YRsiz == 0 {
			return nil, structural(offset, MarkerSIZ, "component %d has zero subsampling", i)
		}
	}
	return s, nil
}

// Scod flag bits, A.6.1.
const (
	scodPrecincts = 0x01
	scodSOP       = 0x02
	scodEPH       = 0x04
)

// PrecinctSize holds the exponents of one resolution's precinct
// dimensions.
type PrecinctSize struct {
	PPx uint8
	PPy uint8
}

// CODSegment, A.6.1. Default coding style for all components.
type CODSegment struct {
	UseSOP bool
	UseEPH bool

	ProgressionOrder           uint8
	NumLayers                  uint16
	MultipleComponentTransform uint8

	CodingStyle
}

// CodingStyle is the per-component part of COD, shared with COC.
type CodingStyle struct {
	NumDecompLevels    uint8
	CodeBlockWidthExp  uint8 // xcb-2
	CodeBlockHeightExp uint8 // ycb-2
	CodeBlockStyle     uint8
	Transform          uint8 // 0 = 9/7 irreversible, 1 = 5/3 reversible

	// One entry per resolution when present; empty means maximal
	// precincts (2^15).
	PrecinctSizes []PrecinctSize
}

// CodeBlockSize returns the nominal code-block dimensions.
func (c *CodingStyle) CodeBlockSize() (w, h int) {
	return 1 << (c.CodeBlockWidthExp + 2), 1 << (c.CodeBlockHeightExp + 2)
}

// PrecinctExponents returns the precinct size exponents for a
// resolution, defaulting to maximal.
func (c *CodingStyle) PrecinctExponents(res int) (ppx, ppy uint8) {
	if res < len(c.PrecinctSizes) {
		return c.PrecinctSizes[res].PPx, c.PrecinctSizes[res].PPy
	}
	return 15, 15
}

func (c *CodingStyle) encodeSP(withPrecincts bool) []byte {
	sp := []byte{
		c.NumDecompLevels,
		c.CodeBlockWidthExp,
		c.CodeBlockHeightExp,
		c.CodeBlockStyle,
		c.Transform,
	}
	if withPrecincts {
		for _, ps := range c.PrecinctSizes {
			sp = append(sp, ps.PPx&0x0F|(ps.PPy&0x0F)<<4)
		}
	}
	return sp
}

func parseCodingStyle(sp []byte, withPrecincts bool, offset int, marker uint16) (CodingStyle, error) {
	if len(sp) < 5 {
		return CodingStyle{}, structural(offset, marker, "coding style parameters truncated: %d bytes", len(sp))
	}
	cs := CodingStyle{
		NumDecompLevels:    sp[0],
		CodeBlockWidthExp:  sp[1],
		CodeBlockHeightExp: sp[2],
		CodeBlockStyle:     sp[3],
		Transform:          sp[4],
	}
	if cs.NumDecompLevels > 32 {
		return CodingStyle{}, structural(offset, marker, "decomposition levels %d exceed 32", cs.NumDecompLevels)
	}
	if cs.CodeBlockWidthExp > 8 || cs.CodeBlockHeightExp > 8 || cs.CodeBlockWidthExp+cs.CodeBlockHeightExp > 8 {
		return CodingStyle{}, structural(offset, marker, "code-block size exponents %d,%d out of range",
			cs.CodeBlockWidthExp, cs.CodeBlockHeightExp)
	}
	if withPrecincts {
		want := int(cs.NumDecompLevels) + 1
		if len(sp) != 5+want {
			return CodingStyle{}, structural(offset, marker, "%d precinct size bytes, want %d", len(sp)-5, want)
		}
		cs.PrecinctSizes = make([]PrecinctSize, want)
		for i := 0; i < want; i++ {
			cs.PrecinctSizes[i] = PrecinctSize{PPx: sp[5+i] & 0x0F, PPy: sp[5+i] >> 4}
		}
	} else if len(sp) != 5 {
		return CodingStyle{}, structural(offset, marker, "unexpected %d trailing bytes", len(sp)-5)
	}
	return cs, nil
}

func (c *CODSegment) encode() []byte {
	var scod uint8
	if len(c.PrecinctSizes) > 0 {
		scod |= scodPrecincts
	}
	if c.UseSOP {
		scod |= scodSOP
	}
	if c.UseEPH {
		scod |= scodEPH
	}
	body := make([]byte, 5, 10)
	body[0] = scod
	body[1] = c.ProgressionOrder
	binary.BigEndian.PutUint16(body[2:], c.NumLayers)
	body[4] = c.MultipleComponentTransform
	return append(body, c.encodeSP(len(c.PrecinctSizes) > 0)...)
}

func parseCOD(body []byte, offset int) (*CODSegment, error) {
	if len(body) < 10 {
		return nil, structural(offset, MarkerCOD, "segment body %d bytes, need at least 10", len(body))
	}
	scod := body[0]
	c := &CODSegment{
		UseSOP:                     scod&scodSOP != 0,
		UseEPH:                     scod&scodEPH != 0,
		ProgressionOrder:           body[1],
		NumLayers:                  binary.BigEndian.Uint16(body[2:]),
		MultipleComponentTransform: body[4],
	}
	if c.ProgressionOrder > 4 {
		return nil, structural(offset, MarkerCOD, "progression order %d out of range", c.ProgressionOrder)
	}
	if c.NumLayers == 0 {
		return nil, structural(offset, MarkerCOD, "zero layers")
	}
	cs, err := parseCodingStyle(body[5:], scod&scodPrecincts != 0, offset, MarkerCOD)
	if err != nil {
		return nil, err
	}
	c.CodingStyle = cs
	return c, nil
}

// COCSegment, A.6.2. Per-component coding style override.
type COCSegment struct {
	Component int
	CodingStyle
}

func (c *COCSegment) encode(numComponents int) []byte {
	var body []byte
	if numComponents < 257 {
		body = []byte{uint8(c.Component)}
	} else {
		body = binary.BigEndian.AppendUint16(nil, uint16(c.Component))
	}
	var scoc uint8
	if len(c.PrecinctSizes) > 0 {
		scoc = scodPrecincts
	}
	body = append(body, scoc)
	return append(body, c.encodeSP(len(c.PrecinctSizes) > 0)...)
}

func parseCOC(body []byte, numComponents, offset int) (*COCSegment, error) {
	comp, rest, err := parseComponentIndex(body, numComponents, offset, MarkerCOC)
	if err != nil {
		return nil, err
	}
	if len(rest) < 1 {
		return nil, structural(offset, MarkerCOC, "missing Scoc byte")
	}
	cs, err := parseCodingStyle(rest[1:], rest[0]&scodPrecincts != 0, offset, MarkerCOC)
	if err != nil {
		return nil, err
	}
	return &COCSegment{Component: comp, CodingStyle: cs}, nil
}

// Quantization styles, A.6.4.
const (
	QuantNone      = 0
	QuantDerived   = 1
	QuantExpounded = 2
)

// QuantStep is one subband's step size: a 5-bit exponent and, for
// irreversible styles, an 11-bit mantissa.
type QuantStep struct {
	Exponent uint8
	Mantissa uint16
}

// QCDSegment, A.6.4. Default quantization for all components.
type QCDSegment struct {
	Style     uint8
	GuardBits uint8
	Steps     []QuantStep // style derived: exactly one entry
}

func (q *QCDSegment) encode() []byte {
	body := []byte{q.Style<<5 | q.GuardBits&0x1F}
	for _, st := range q.Steps {
		if q.Style == QuantNone {
			body = append(body, st.Exponent<<3)
		} else {
			body = binary.BigEndian.AppendUint16(body, uint16(st.Exponent)<<11|st.Mantissa&0x7FF)
		}
	}
	return body
}

func parseQuantSteps(body []byte, offset int, marker uint16) (style, guard uint8, steps []QuantStep, err error) {
	if len(body) < 1 {
		return 0, 0, nil, structural(offset, marker, "empty quantization segment")
	}
	style = body[0] >> 5
	guard = body[0] & 0x1F
	rest := body[1:]
	switch style {
	case QuantNone:
		for _, b := range rest {
			steps = append(steps, QuantStep{Exponent: b >> 3})
		}
	case QuantDerived, QuantExpounded:
		if len(rest)%2 != 0 {
			return 0, 0, nil, structural(offset, marker, "odd step size byte count %d", len(rest))
		}
		for i := 0; i < len(rest); i += 2 {
			v := binary.BigEndian.Uint16(rest[i:])
			steps = append(steps, QuantStep{Exponent: uint8(v >> 11), Mantissa: v & 0x7FF})
		}
		if style == QuantDerived && len(steps) != 1 {
			return 0, 0, nil, structural(offset, marker, "derived quantization carries %d step sizes, want 1", len(steps))
		}
	default:
		return 0, 0, nil, structural(offset, marker, "quantization style %d out of range", style)
	}
	if len(steps) == 0 {
		return 0, 0, nil, structural(offset, marker, "no step sizes")
	}
	return style, guard, steps, nil
}

func parseQCD(body []byte, offset int) (*QCDSegment, error) {
	style, guard, steps, err := parseQuantSteps(body, offset, MarkerQCD)
	if err != nil {
		return nil, err
	}
	return &QCDSegment{Style: style, GuardBits: guard, Steps: steps}, nil
}

// QCCSegment, A.6.5. Per-component quantization override.
type QCCSegment struct {
	Component int
	Style     uint8
	GuardBits uint8
	Steps     []QuantStep
}

func (q *QCCSegment) encode(numComponents int) []byte {
	var body []byte
	if numComponents < 257 {
		body = []byte{uint8(q.Component)}
	} else {
		body = binary.BigEndian.AppendUint16(nil, uint16(q.Component))
	}
	inner := QCDSegment{Style: q.Style, GuardBits: q.GuardBits, Steps: q.Steps}
	return append(body, inner.encode()...)
}

func parseQCC(body []byte, numComponents, offset int) (*QCCSegment, error) {
	comp, rest, err := parseComponentIndex(body, numComponents, offset, MarkerQCC)
	if err != nil {
		return nil, err
	}
	style, guard, steps, err := parseQuantSteps(rest, offset, MarkerQCC)
	if err != nil {
		return nil, err
	}
	return &QCCSegment{Component: comp, Style: style, GuardBits: guard, Steps: steps}, nil
}

// RGNSegment, A.6.3. Region of interest via implicit max-shift.
type RGNSegment struct {
	Component int
	Srgn      uint8 // 0 = implicit ROI (max-shift)
	Shift     uint8
}

func (r *RGNSegment) encode(numComponents int) []byte {
	var body []byte
	if numComponents < 257 {
		body = []byte{uint8(r.Component)}
	} else {
		body = binary.BigEndian.AppendUint16(nil, uint16(r.Component))
	}
	return append(body, r.Srgn, r.Shift)
}

func parseRGN(body []byte, numComponents, offset int) (*RGNSegment, error) {
	comp, rest, err := parseComponentIndex(body, numComponents, offset, MarkerRGN)
	if err != nil {
		return nil, err
	}
	if len(rest) != 2 {
		return nil, structural(offset, MarkerRGN, "segment body leaves %d bytes after component, want 2", len(rest))
	}
	if rest[0] != 0 {
		return nil, &UnsupportedFeatureError{Feature: "non-implicit ROI style"}
	}
	return &RGNSegment{Component: comp, Srgn: rest[0], Shift: rest[1]}, nil
}

// POCChange is one progression order change, A.6.6.
type POCChange struct {
	RSpoc  uint8
	CSpoc  int
	LYEpoc uint16
	REpoc  uint8
	CEpoc  int
	Ppoc   uint8
}

// POCSegment, A.6.6. A list of progression order changes.
type POCSegment struct {
	Changes []POCChange
}

func (p *POCSegment) encode(numComponents int) []byte {
	var body []byte
	for _, ch := range p.Changes {
		body = append(body, ch.RSpoc)
		if numComponents < 257 {
			body = append(body, uint8(ch.CSpoc))
		} else {
			body = binary.BigEndian.AppendUint16(body, uint16(ch.CSpoc))
		}
		body = binary.BigEndian.AppendUint16(body, ch.LYEpoc)
		body = append(body, ch.REpoc)
		if numComponents < 257 {
			body = append(body, uint8(ch.CEpoc))
		} else {
			body = binary.BigEndian.AppendUint16(body, uint16(ch.CEpoc))
		}
		body = append(body, ch.Ppoc)
	}
	return body
}

func parsePOC(body []byte, numComponents, offset int) (*POCSegment, error) {
	compBytes := 1
	if numComponents >= 257 {
		compBytes = 2
	}
	entry := 5 + 2*compBytes
	if len(body) == 0 || len(body)%entry != 0 {
		return nil, structural(offset, MarkerPOC, "segment body %d bytes is not a multiple of %d", len(body), entry)
	}
	p := &POCSegment{}
	for i := 0; i < len(body); i += entry {
		e := body[i : i+entry]
		var ch POCChange
		ch.RSpoc = e[0]
		pos := 1
		if compBytes == 1 {
			ch.CSpoc = int(e[pos])
		} else {
			ch.CSpoc = int(binary.BigEndian.Uint16(e[pos:]))
		}
		pos += compBytes
		ch.LYEpoc = binary.BigEndian.Uint16(e[pos:])
		pos += 2
		ch.REpoc = e[pos]
		pos++
		if compBytes == 1 {
			// CEpoc is coded modulo 256 in the single-byte form, so 0
			// stands for 256 (A.6.6).
			ch.CEpoc = int(e[pos])
			if ch.CEpoc == 0 {
				ch.CEpoc = 256
			}
		} else {
			ch.CEpoc = int(binary.BigEndian.Uint16(e[pos:]))
		}
		pos += compBytes
		ch.Ppoc = e[pos]
		if ch.Ppoc > 4 {
			return nil, structural(offset, MarkerPOC, "progression order %d out of range", ch.Ppoc)
		}
		if ch.REpoc <= ch.RSpoc || ch.CEpoc <= ch.CSpoc || ch.LYEpoc == 0 {
			return nil, structural(offset, MarkerPOC, "empty progression volume")
		}
		p.Changes = append(p.Changes, ch)
	}
	return p, nil
}

// SOTSegment, A.4.2. Fixed 10-byte body.
type SOTSegment struct {
	Isot  uint16
	Psot  uint32 // tile-part length from marker start, 0 = to next SOT/EOC
	TPsot uint8
	TNsot uint8
}

func (s *SOTSegment) encode() []byte {
	body := make([]byte, 8)
	binary.BigEndian.PutUint16(body[0:], s.Isot)
	binary.BigEndian.PutUint32(body[2:], s.Psot)
	body[6] = s.TPsot
	body[7] = s.TNsot
	return body
}

func parseSOT(body []byte, offset int) (*SOTSegment, error) {
	if len(body) != 8 {
		return nil, structural(offset, MarkerSOT, "segment body %d bytes, want 8", len(body))
	}
	return &SOTSegment{
		Isot:  binary.BigEndian.Uint16(body[0:]),
		Psot:  binary.BigEndian.Uint32(body[2:]),
		TPsot: body[6],
		TNsot: body[7],
	}, nil
}

// TLMEntry is one tile-part length record.
type TLMEntry struct {
	Tile   int // -1 when Ttlm is omitted (tile order implied)
	Length uint32
}

// TLMSegment, A.7.1. Ztlm indexes multiple TLM segments; the Stlm byte
// selects the Ttlm width (0, 1 or 2 bytes) and Ptlm width (2 or 4).
type TLMSegment struct {
	Ztlm      uint8
	TtlmBytes int
	PtlmBytes int
	Entries   []TLMEntry
}

// NewTLM picks the narrowest field widths that fit the entries.
// Entries with Tile -1 omit the tile index entirely.
func NewTLM(ztlm uint8, entries []TLMEntry) *TLMSegment {
	t := &TLMSegment{Ztlm: ztlm, TtlmBytes: 0, PtlmBytes: 2, Entries: entries}
	for _, e := range entries {
		if e.Tile >= 0 && t.TtlmBytes == 0 {
			t.TtlmBytes = 1
		}
		if e.Tile > 0xFF {
			t.TtlmBytes = 2
		}
		if e.Length > 0xFFFF {
			t.PtlmBytes = 4
		}
	}
	return t
}

func (t *TLMSegment) encode() []byte {
	var st uint8
	switch t.TtlmBytes {
	case 1:
		st |= 1 << 4
	case 2:
		st |= 2 << 4
	}
	if t.PtlmBytes == 4 {
		st |= 1 << 6
	}
	body := []byte{t.Ztlm, st}
	for _, e := range t.Entries {
		switch t.TtlmBytes {
		case 1:
			body = append(body, uint8(e.Tile))
		case 2:
			body = binary.BigEndian.AppendUint16(body, uint16(e.Tile))
		}
		if t.PtlmBytes == 2 {
			body = binary.BigEndian.AppendUint16(body, uint16(e.Length))
		} else {
			body = binary.BigEndian.AppendUint32(body, e.Length)
		}
	}
	return body
}

func parseTLM(body []byte, offset int) (*TLMSegment, error) {
	if len(body) < 2 {
		return nil, structural(offset, MarkerTLM, "segment body %d bytes, need at least 2", len(body))
	}
	t := &TLMSegment{Ztlm: body[0]}
	st := body[1]
	t.TtlmBytes = int(st >> 4 & 0x3)
	if t.TtlmBytes == 3 {
		return nil, structural(offset, MarkerTLM, "reserved ST value 3")
	}
	t.PtlmBytes = 2
	if st&(1<<6) != 0 {
		t.PtlmBytes = 4
	}
	entry := t.TtlmBytes + t.PtlmBytes
	rest := body[2:]
	if len(rest)%entry != 0 {
		return nil, structural(offset, MarkerTLM, "%d entry bytes is not a multiple of %d", len(rest), entry)
	}
	for i := 0; i < len(rest); i += entry {
		e := TLMEntry{Tile: -1}
		switch t.TtlmBytes {
		case 1:
			e.Tile = int(rest[i])
		case 2:
			e.Tile = int(binary.BigEndian.Uint16(rest[i:]))
		}
		if t.PtlmBytes == 2 {
			e.Length = uint32(binary.BigEndian.Uint16(rest[i+t.TtlmBytes:]))
		} else {
			e.Length = binary.BigEndian.Uint32(rest[i+t.TtlmBytes:])
		}
		t.Entries = append(t.Entries, e)
	}
	return t, nil
}

// PLTSegment, A.7.3. Packet lengths in tile-part header order, coded
// as 7-bit big-endian varints with a continuation bit.
type PLTSegment struct {
	Zplt    uint8
	Lengths []int
}

func (p *PLTSegment) encode() []byte {
	body := []byte{p.Zplt}
	for _, l := range p.Lengths {
		var tmp [5]byte
		n := 0
		v := uint32(l)
		for {
			tmp[n] = byte(v & 0x7F)
			n++
			v >>= 7
			if v == 0 {
				break
			}
		}
		for i := n - 1; i >= 0; i-- {
			b := tmp[i]
			if i > 0 {
				b |= 0x80
			}
			body = append(body, b)
		}
	}
	return body
}

func parsePLT(body []byte, offset int) (*PLTSegment, error) {
	if len(body) < 1 {
		return nil, structural(offset, MarkerPLT, "empty segment body")
	}
	p := &PLTSegment{Zplt: body[0]}
	v := 0
	mid := false
	for _, b := range body[1:] {
		v = v<<7 | int(b&0x7F)
		if b&0x80 != 0 {
			mid = true
			continue
		}
		p.Lengths = append(p.Lengths, v)
		v = 0
		mid = false
	}
	if mid {
		return nil, structural(offset, MarkerPLT, "packet length varint truncated")
	}
	return p, nil
}

// COMSegment, A.9.2.
type COMSegment struct {
	Rcom uint16 // 0 binary, 1 Latin-1 text
	Data []byte
}

func (c *COMSegment) encode() []byte {
	body := binary.BigEndian.AppendUint16(nil, c.Rcom)
	return append(body, c.Data...)
}

func parseCOM(body []byte, offset int) (*COMSegment, error) {
	if len(body) < 2 {
		return nil, structural(offset, MarkerCOM, "segment body %d bytes, need at least 2", len(body))
	}
	return &COMSegment{Rcom: binary.BigEndian.Uint16(body), Data: body[2:]}, nil
}

func parseComponentIndex(body []byte, numComponents, offset int, marker uint16) (comp int, rest []byte, err error) {
	if numComponents < 257 {
		if len(body) < 1 {
			return 0, nil, structural(offset, marker, "missing component index")
		}
		comp, rest = int(body[0]), body[1:]
	} else {
		if len(body) < 2 {
			return 0, nil, structural(offset, marker, "missing component index")
		}
		comp, rest = int(binary.BigEndian.Uint16(body)), body[2:]
	}
	if comp >= numComponents {
		return 0, nil, structural(offset, marker, "component %d out of range (Csiz %d)", comp, numComponents)
	}
	return comp, rest, nil
}
