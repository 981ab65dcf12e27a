package mqc

// RAW (bypass) coding, ISO/IEC 15444-1:2019 Annex D.5. In lazy mode the
// significance-propagation and magnitude-refinement passes of the low
// bit-planes skip the arithmetic coder and pack raw bits with the same
// 0xFF bit-stuffing rule as the rest of the codestream.

// BypassInitEnc switches the encoder into RAW mode. Must be called after
// the preceding MQ pass has been terminated.
func (e *MQEncoder) BypassInitEnc() {
	e.c = 0
	e.ct = rawCtUnset
}

// BypassEncode packs one raw bit into the output buffer.
func (e *MQEncoder) BypassEncode(bit int) {
	if e.ct == rawCtUnset {
		e.ct = 8
	}
	e.ct--
	e.c += uint32(bit) << uint(e.ct)
	if e.ct == 0 {
		e.ensure(e.bp)
		e.buffer[e.bp] = byte(e.c)
		e.ct = 8
		if e.buffer[e.bp] == 0xFF {
			e.ct = 7
		}
		e.bp++
		e.c = 0
	}
}

// BypassFlushEnc terminates RAW coding. With erterm set the filler bits
// follow the predictable alternating pattern; otherwise removable
// trailing bytes are dropped.
func (e *MQEncoder) BypassFlushEnc(erterm bool) {
	if e.ct < 7 || (e.ct == 7 && (erterm || (e.bp > 0 && e.buffer[e.bp-1] != 0xFF))) {
		bit := 0
		for e.ct > 0 {
			e.ct--
			e.c += uint32(bit) << uint(e.ct)
			bit = 1 - bit
		}
		e.ensure(e.bp)
		e.buffer[e.bp] = byte(e.c)
		e.bp++
	} else if e.ct == 7 && e.bp > 0 && e.buffer[e.bp-1] == 0xFF {
		if !erterm {
			e.bp--
		}
	} else if e.ct == 8 && !erterm && e.bp > 1 && e.buffer[e.bp-1] == 0x7F && e.buffer[e.bp-2] == 0xFF {
		e.bp -= 2
	}
}

// RawDecoder unpacks the bits written by BypassEncode. It mirrors the
// stuffing rule: after a 0xFF byte only 7 bits of the next byte carry
// data. Reading past the end of the segment yields 1-bits, matching the
// truncation behavior of the MQ decoder.
type RawDecoder struct {
	data     []byte
	pos      int
	c        uint32
	ct       int
	lastByte byte
}

// NewRawDecoder returns a raw bit reader over one pass segment.
func NewRawDecoder(data []byte) *RawDecoder {
	return &RawDecoder{data: data}
}

// Decode returns the next raw bit.
func (r *RawDecoder) Decode() int {
	if r.ct == 0 {
		if r.pos >= len(r.data) {
			r.c = 0xFF
			r.ct = 8
		} else {
			next := r.data[r.pos]
			r.pos++
			if r.lastByte == 0xFF {
				r.c = uint32(next)
				r.ct = 7
			} else {
				r.c = uint32(next)
				r.ct = 8
			}
			r.lastByte = next
		}
	}
	r.ct--
	return int((r.c >> uint(r.ct)) & 1)
}
