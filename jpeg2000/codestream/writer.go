package codestream

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Writer assembles a codestream marker by marker. Segment lengths are
// computed from the bodies; Psot is back-patched when a tile-part is
// closed, so callers stream tile data without sizing it first.
type Writer struct {
	buf      bytes.Buffer
	sotStart int // offset of the open tile-part's SOT marker, -1 if none
}

// NewWriter returns a Writer positioned before SOC.
func NewWriter() *Writer {
	return &Writer{sotStart: -1}
}

// Bytes returns the assembled codestream.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

func (w *Writer) writeMarker(marker uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], marker)
	w.buf.Write(b[:])
}

// WriteSegment writes a marker, its length field and body.
func (w *Writer) WriteSegment(marker uint16, body []byte) error {
	if len(body)+2 > 0xFFFF {
		return fmt.Errorf("%s segment body %d bytes exceeds the 16-bit length field", MarkerName(marker), len(body))
	}
	w.writeMarker(marker)
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(body)+2))
	w.buf.Write(l[:])
	w.buf.Write(body)
	return nil
}

// WriteSOC starts the codestream.
func (w *Writer) WriteSOC() { w.writeMarker(MarkerSOC) }

// WriteEOC terminates the codestream.
func (w *Writer) WriteEOC() { w.writeMarker(MarkerEOC) }

func (w *Writer) WriteSIZ(s *SIZSegment) error { return w.WriteSegment(MarkerSIZ, s.encode()) }
func (w *Writer) WriteCOD(c *CODSegment) error { return w.WriteSegment(MarkerCOD, c.encode()) }
func (w *Writer) WriteQCD(q *QCDSegment) error { return w.WriteSegment(MarkerQCD, q.encode()) }
func (w *Writer) WriteTLM(t *TLMSegment) error { return w.WriteSegment(MarkerTLM, t.encode()) }
func (w *Writer) WritePLT(p *PLTSegment) error { return w.WriteSegment(MarkerPLT, p.encode()) }
func (w *Writer) WriteCOM(c *COMSegment) error { return w.WriteSegment(MarkerCOM, c.encode()) }

func (w *Writer) WriteCOC(c *COCSegment, numComponents int) error {
	return w.WriteSegment(MarkerCOC, c.encode(numComponents))
}

func (w *Writer) WriteQCC(q *QCCSegment, numComponents int) error {
	return w.WriteSegment(MarkerQCC, q.encode(numComponents))
}

func (w *Writer) WriteRGN(r *RGNSegment, numComponents int) error {
	return w.WriteSegment(MarkerRGN, r.encode(numComponents))
}

func (w *Writer) WritePOC(p *POCSegment, numComponents int) error {
	return w.WriteSegment(MarkerPOC, p.encode(numComponents))
}

// BeginTilePart writes the SOT segment with a zero Psot placeholder.
// sot.Psot is filled in by EndTilePart.
func (w *Writer) BeginTilePart(sot SOTSegment) error {
	if w.sotStart >= 0 {
		return fmt.Errorf("tile-part already open")
	}
	w.sotStart = w.buf.Len()
	sot.Psot = 0
	return w.WriteSegment(MarkerSOT, sot.encode())
}

// WriteSOD separates the tile-part header from the tile data.
func (w *Writer) WriteSOD() { w.writeMarker(MarkerSOD) }

// WriteRaw appends bytes as-is, used for packet data.
func (w *Writer) WriteRaw(data []byte) { w.buf.Write(data) }

// EndTilePart closes the open tile-part, back-patching Psot with the
// length from the SOT marker through the written data. Returns that
// length for TLM bookkeeping.
func (w *Writer) EndTilePart() (uint32, error) {
	if w.sotStart < 0 {
		return 0, fmt.Errorf("no open tile-part")
	}
	length := uint32(w.buf.Len() - w.sotStart)
	binary.BigEndian.PutUint32(w.buf.Bytes()[w.sotStart+6:], length)
	w.sotStart = -1
	return length, nil
}
