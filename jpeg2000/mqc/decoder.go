package mqc

// MQ arithmetic decoder, ISO/IEC 15444-1:2019 Annex C.
//
// The decoder reads a coding-pass byte segment produced by MQEncoder. Two
// 0xFF bytes are appended as an artificial marker so the byte-in routine
// never runs off the end of a truncated segment; once the marker is
// reached the decoder synthesizes 1-bits, which matches the behavior
// required for decoding truncated code-blocks.

// MQDecoder decodes binary decisions against adaptive context states.
type MQDecoder struct {
	data     []byte
	pos      int
	lastByte byte

	a  uint32
	c  uint32
	ct int

	contexts []uint8
}

// NewMQDecoder returns a decoder over data with numContexts fresh contexts.
func NewMQDecoder(data []byte, numContexts int) *MQDecoder {
	d := &MQDecoder{contexts: make([]uint8, numContexts)}
	d.setData(data)
	return d
}

// NewMQDecoderWithContexts returns a decoder over data that inherits the
// given context states. Used for terminated passes where contexts carry
// across segment boundaries.
func NewMQDecoderWithContexts(data []byte, contexts []uint8) *MQDecoder {
	d := &MQDecoder{contexts: make([]uint8, len(contexts))}
	copy(d.contexts, contexts)
	d.setData(data)
	return d
}

func (d *MQDecoder) setData(data []byte) {
	buf := make([]byte, len(data)+2)
	copy(buf, data)
	buf[len(data)] = 0xFF
	buf[len(data)+1] = 0xFF
	d.data = buf
	d.pos = 0
	d.lastByte = 0
	d.init()
}

// SetData points the decoder at a new byte segment, keeping contexts.
func (d *MQDecoder) SetData(data []byte) {
	d.setData(data)
}

// init loads the code register per C.3.4 (INITDEC).
func (d *MQDecoder) init() {
	first := byte(0xFF)
	if d.pos < len(d.data) {
		first = d.data[d.pos]
		d.c = uint32(first) << 16
		d.lastByte = first
		d.pos++
	} else {
		d.c = 0xFF << 16
		d.lastByte = 0xFF
	}

	if first == 0xFF {
		// Stuffed byte after 0xFF carries only 7 bits; a value above
		// 0x8F is a marker and is not consumed.
		if d.pos < len(d.data) && d.data[d.pos] <= 0x8F {
			second := d.data[d.pos]
			d.lastByte = second
			d.pos++
			d.c += uint32(second) << 9
			d.ct = 7
		} else {
			d.c += 0xFF00
			d.ct = 8
		}
	} else {
		d.bytein()
	}

	d.c <<= 7
	d.ct -= 7
	d.a = 0x8000
}

// Decode returns the next binary decision for the given context.
// Hot path: called once per coded bit, millions of times per tile.
func (d *MQDecoder) Decode(contextID int) int {
	cx := &d.contexts[contextID]
	state := *cx & 0x7F
	mps := int(*cx >> 7)

	qe := qeTable[state]
	d.a -= qe

	var bit int
	if (d.c >> 16) < qe {
		// LPS interval selected; conditional exchange per C.3.2.
		if d.a < qe {
			d.a = qe
			bit = mps
			*cx = nmpsTable[state] | (uint8(mps) << 7)
		} else {
			d.a = qe
			bit = 1 - mps
			next := nlpsTable[state]
			nextMPS := mps
			if switchTable[state] == 1 {
				nextMPS = 1 - mps
			}
			*cx = next | (uint8(nextMPS) << 7)
		}
		d.renormd()
	} else {
		d.c -= qe << 16
		if d.a >= 0x8000 {
			return mps
		}
		if d.a < qe {
			bit = 1 - mps
			next := nlpsTable[state]
			nextMPS := mps
			if switchTable[state] == 1 {
				nextMPS = 1 - mps
			}
			*cx = next | (uint8(nextMPS) << 7)
		} else {
			bit = mps
			*cx = nmpsTable[state] | (uint8(mps) << 7)
		}
		d.renormd()
	}
	return bit
}

func (d *MQDecoder) renormd() {
	for d.a < 0x8000 {
		if d.ct == 0 {
			d.bytein()
		}
		d.a <<= 1
		d.c <<= 1
		d.ct--
	}
}

// bytein reads the next byte, honoring bit-stuffing after 0xFF. At the
// artificial marker it feeds 0xFF00 without advancing.
func (d *MQDecoder) bytein() {
	if d.pos >= len(d.data) {
		d.c += 0xFF00
		d.ct = 8
		return
	}
	next := d.data[d.pos]
	if d.lastByte == 0xFF {
		if next > 0x8F {
			d.c += 0xFF00
			d.ct = 8
		} else {
			d.lastByte = next
			d.pos++
			d.c += uint32(next) << 9
			d.ct = 7
		}
	} else {
		d.lastByte = next
		d.pos++
		d.c += uint32(next) << 8
		d.ct = 8
	}
}

// ResetContexts returns every context to state 0, MPS 0.
func (d *MQDecoder) ResetContexts() {
	clear(d.contexts)
}

// Contexts returns a copy of the context states, for carrying them into
// the decoder of the next terminated segment.
func (d *MQDecoder) Contexts() []uint8 {
	out := make([]uint8, len(d.contexts))
	copy(out, d.contexts)
	return out
}

// SetContextState overrides a single context, used to seed the uniform
// and run-length contexts at the start of a code-block.
func (d *MQDecoder) SetContextState(contextID int, state uint8) {
	d.contexts[contextID] = state
}

// ContextState reports the raw state byte of a context.
func (d *MQDecoder) ContextState(contextID int) uint8 {
	return d.contexts[contextID]
}
