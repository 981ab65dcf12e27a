package mqc

// MQ arithmetic encoder, ISO/IEC 15444-1:2019 Annex C. Produces the byte
// segments carried in packet bodies. The buffer starts with a dummy byte
// so the carry-propagation in byteout always has a predecessor to
// increment.

// MQEncoder encodes binary decisions against adaptive context states.
type MQEncoder struct {
	buffer []byte
	start  int
	bp     int

	a  uint32
	c  uint32
	ct int

	contexts []uint8
}

// rawCtUnset marks the RAW bit counter as not yet started.
const rawCtUnset = -1

// NewMQEncoder returns an encoder with numContexts fresh contexts.
func NewMQEncoder(numContexts int) *MQEncoder {
	return &MQEncoder{
		buffer:   make([]byte, 1, 1024),
		start:    1,
		bp:       0,
		a:        0x8000,
		c:        0,
		ct:       12,
		contexts: make([]uint8, numContexts),
	}
}

// Encode codes one binary decision in the given context.
func (e *MQEncoder) Encode(bit, contextID int) {
	cx := &e.contexts[contextID]
	state := *cx & 0x7F
	mps := int(*cx >> 7)
	qe := qeTable[state]

	if bit == mps {
		e.a -= qe
		if (e.a & 0x8000) == 0 {
			if e.a < qe {
				e.a = qe
			} else {
				e.c += qe
			}
			*cx = nmpsTable[state] | (uint8(mps) << 7)
			e.renorme()
		} else {
			e.c += qe
		}
	} else {
		e.a -= qe
		if e.a < qe {
			e.c += qe
		} else {
			e.a = qe
		}
		next := nlpsTable[state]
		nextMPS := mps
		if switchTable[state] == 1 {
			nextMPS = 1 - mps
		}
		*cx = next | (uint8(nextMPS) << 7)
		e.renorme()
	}
}

func (e *MQEncoder) renorme() {
	for e.a < 0x8000 {
		e.a <<= 1
		e.c <<= 1
		e.ct--
		if e.ct == 0 {
			e.byteout()
		}
	}
}

func (e *MQEncoder) byteout() {
	e.ensure(e.bp)
	if e.buffer[e.bp] == 0xFF {
		e.bp++
		e.ensure(e.bp)
		e.buffer[e.bp] = byte(e.c >> 20)
		e.c &= 0xFFFFF
		e.ct = 7
		return
	}
	if (e.c & 0x8000000) == 0 {
		e.bp++
		e.ensure(e.bp)
		e.buffer[e.bp] = byte(e.c >> 19)
		e.c &= 0x7FFFF
		e.ct = 8
		return
	}
	e.buffer[e.bp]++
	if e.buffer[e.bp] == 0xFF {
		e.c &= 0x7FFFFFF
		e.bp++
		e.ensure(e.bp)
		e.buffer[e.bp] = byte(e.c >> 20)
		e.c &= 0xFFFFF
		e.ct = 7
		return
	}
	e.bp++
	e.ensure(e.bp)
	e.buffer[e.bp] = byte(e.c >> 19)
	e.c &= 0x7FFFF
	e.ct = 8
}

// Flush terminates the stream (FLUSH procedure, C.3.6) and appends the
// final bytes to the buffer. A coding pass must not end with 0xFF.
func (e *MQEncoder) Flush() {
	tempC := e.c + e.a
	e.c |= 0xFFFF
	if e.c >= tempC {
		e.c -= 0x8000
	}
	e.c <<= uint(e.ct)
	e.byteout()
	e.c <<= uint(e.ct)
	e.byteout()
	if e.buffer[e.bp] != 0xFF {
		e.bp++
	}
}

// ErtermEnc performs predictable termination (Annex D.4.2), used when
// the PTERM style flag is set. The decoder can then detect errors from
// the terminating bit pattern.
func (e *MQEncoder) ErtermEnc() {
	k := 11 - e.ct + 1
	for k > 0 {
		e.c <<= uint(e.ct)
		e.ct = 0
		e.byteout()
		k -= e.ct
	}
	if e.buffer[e.bp] != 0xFF {
		e.byteout()
	}
}

// RestartInitEnc reinitializes the interval registers after a terminated
// pass when coding continues into the same buffer (TERMALL, RESTART).
func (e *MQEncoder) RestartInitEnc() {
	e.a = 0x8000
	e.c = 0
	e.ct = 12
	if e.bp > e.start-1 {
		e.bp--
	}
	if e.bp >= 0 && e.bp < len(e.buffer) && e.buffer[e.bp] == 0xFF {
		e.ct = 13
	}
}

// SegmarkEnc codes the segmentation symbol 1010 in the uniform context.
func (e *MQEncoder) SegmarkEnc(uniformContext int) {
	for i := 1; i < 5; i++ {
		e.Encode(i%2, uniformContext)
	}
}

// Bytes returns the encoded bytes emitted so far.
func (e *MQEncoder) Bytes() []byte {
	if e.bp < e.start {
		return nil
	}
	return e.buffer[e.start:e.bp]
}

// NumBytes reports the emitted byte count, used for truncation-point
// rate tracking during layered encoding.
func (e *MQEncoder) NumBytes() int {
	if e.bp < e.start {
		return 0
	}
	return e.bp - e.start
}

// ResetContexts returns every context to state 0, MPS 0.
func (e *MQEncoder) ResetContexts() {
	clear(e.contexts)
}

// SetContextState overrides a single context state.
func (e *MQEncoder) SetContextState(contextID int, state uint8) {
	e.contexts[contextID] = state
}

// ContextState reports the raw state byte of a context.
func (e *MQEncoder) ContextState(contextID int) uint8 {
	return e.contexts[contextID]
}

func (e *MQEncoder) ensure(idx int) {
	if idx < len(e.buffer) {
		return
	}
	needed := idx + 1
	if needed <= cap(e.buffer) {
		e.buffer = e.buffer[:needed]
		return
	}
	newCap := cap(e.buffer) * 2
	if newCap < needed {
		newCap = needed
	}
	buf := make([]byte, needed, newCap)
	copy(buf, e.buffer)
	e.buffer = buf
}
