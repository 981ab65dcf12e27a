package codestream

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSIZ(comps int) *SIZSegment {
	s := &SIZSegment{
		Xsiz: 512, Ysiz: 384,
		XTsiz: 256, YTsiz: 256,
	}
	for i := 0; i < comps; i++ {
		s.Components = append(s.Components, ComponentSize{
			Ssiz: MakeSsiz(8+2*i, i%2 == 1), XRsiz: 1, YRsiz: 1,
		})
	}
	return s
}

func testCOD() *CODSegment {
	return &CODSegment{
		UseSOP:           true,
		UseEPH:           true,
		ProgressionOrder: 0,
		NumLayers:        3,
		CodingStyle: CodingStyle{
			NumDecompLevels:    2,
			CodeBlockWidthExp:  4,
			CodeBlockHeightExp: 4,
			Transform:          1,
		},
	}
}

func testQCD() *QCDSegment {
	return &QCDSegment{
		Style:     QuantNone,
		GuardBits: 2,
		Steps:     []QuantStep{{Exponent: 9}, {Exponent: 10}, {Exponent: 10}, {Exponent: 11}},
	}
}

func writeMinimalStream(t *testing.T, tileData []byte) []byte {
	t.Helper()
	w := NewWriter()
	w.WriteSOC()
	require.NoError(t, w.WriteSIZ(testSIZ(1)))
	require.NoError(t, w.WriteCOD(testCOD()))
	require.NoError(t, w.WriteQCD(testQCD()))
	require.NoError(t, w.BeginTilePart(SOTSegment{Isot: 0, TPsot: 0, TNsot: 1}))
	w.WriteSOD()
	w.WriteRaw(tileData)
	_, err := w.EndTilePart()
	require.NoError(t, err)
	w.WriteEOC()
	return w.Bytes()
}

func TestParse_MinimalStream(t *testing.T) {
	tileData := []byte{0x01, 0x02, 0x03, 0x04}
	data := writeMinimalStream(t, tileData)

	assert.Equal(t, []byte{0xFF, 0x4F}, data[:2])
	assert.Equal(t, []byte{0xFF, 0x51}, data[2:4])
	assert.Equal(t, []byte{0xFF, 0xD9}, data[len(data)-2:])

	h, err := Parse(data)
	require.NoError(t, err)
	require.NotNil(t, h.SIZ)
	assert.Equal(t, uint32(512), h.SIZ.Xsiz)
	assert.Equal(t, 1, len(h.SIZ.Components))
	assert.Equal(t, 8, h.SIZ.Components[0].BitDepth())
	require.NotNil(t, h.COD)
	assert.True(t, h.COD.UseSOP)
	assert.True(t, h.COD.UseEPH)
	require.Len(t, h.TileParts, 1)
	assert.Equal(t, tileData, h.TileParts[0].Data)
	assert.False(t, h.Truncated)
}

func TestSIZCODQCD_FieldExactRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	for trial := 0; trial < 50; trial++ {
		comps := 1 + rng.Intn(4)
		siz := &SIZSegment{
			Rsiz:   uint16(rng.Intn(3)),
			Xsiz:   uint32(1 + rng.Intn(1 << 20)),
			XTsiz:  uint32(1 + rng.Intn(1 << 16)),
			YTsiz:  uint32(1 + rng.Intn(1 << 16)),
			XOsiz:  0,
			YOsiz:  0,
			XTOsiz: 0,
			YTOsiz: 0,
		}
		siz.Ysiz = uint32(1 + rng.Intn(1<<20))
		for i := 0; i < comps; i++ {
			siz.Components = append(siz.Components, ComponentSize{
				Ssiz:  MakeSsiz(1+rng.Intn(16), rng.Intn(2) == 1),
				XRsiz: uint8(1 + rng.Intn(4)),
				YRsiz: uint8(1 + rng.Intn(4)),
			})
		}
		got, err := parseSIZ(siz.encode(), 0)
		require.NoError(t, err)
		assert.Equal(t, siz, got, "trial %d", trial)

		levels := uint8(rng.Intn(8))
		cod := &CODSegment{
			UseSOP:           rng.Intn(2) == 1,
			UseEPH:           rng.Intn(2) == 1,
			ProgressionOrder: uint8(rng.Intn(5)),
			NumLayers:        uint16(1 + rng.Intn(100)),
			CodingStyle: CodingStyle{
				NumDecompLevels:    levels,
				CodeBlockWidthExp:  uint8(rng.Intn(5)),
				CodeBlockHeightExp: uint8(rng.Intn(4)),
				CodeBlockStyle:     uint8(rng.Intn(64)),
				Transform:          uint8(rng.Intn(2)),
			},
		}
		if rng.Intn(2) == 1 {
			for i := 0; i <= int(levels); i++ {
				cod.PrecinctSizes = append(cod.PrecinctSizes, PrecinctSize{
					PPx: uint8(rng.Intn(16)), PPy: uint8(rng.Intn(16)),
				})
			}
		}
		gotCOD, err := parseCOD(cod.encode(), 0)
		require.NoError(t, err)
		assert.Equal(t, cod, gotCOD, "trial %d", trial)

		style := uint8(rng.Intn(3))
		qcd := &QCDSegment{Style: style, GuardBits: uint8(rng.Intn(8))}
		n := 1 + rng.Intn(10)
		if style == QuantDerived {
			n = 1
		}
		for i := 0; i < n; i++ {
			st := QuantStep{Exponent: uint8(rng.Intn(32))}
			if style != QuantNone {
				st.Mantissa = uint16(rng.Intn(1 << 11))
			}
			qcd.Steps = append(qcd.Steps, st)
		}
		gotQCD, err := parseQCD(qcd.encode(), 0)
		require.NoError(t, err)
		assert.Equal(t, qcd, gotQCD, "trial %d", trial)
	}
}

func TestParse_ValidationStateMachine(t *testing.T) {
	valid := writeMinimalStream(t, []byte{1, 2, 3})

	t.Run("missing SOC", func(t *testing.T) {
		_, err := Parse(valid[2:])
		var se *StructuralError
		require.ErrorAs(t, err, &se)
	})

	t.Run("SIZ not second", func(t *testing.T) {
		w := NewWriter()
		w.WriteSOC()
		require.NoError(t, w.WriteCOD(testCOD()))
		_, err := Parse(w.Bytes())
		var se *StructuralError
		require.ErrorAs(t, err, &se)
		assert.Contains(t, se.Reason, "SIZ")
	})

	t.Run("missing COD", func(t *testing.T) {
		w := NewWriter()
		w.WriteSOC()
		require.NoError(t, w.WriteSIZ(testSIZ(1)))
		require.NoError(t, w.WriteQCD(testQCD()))
		w.WriteEOC()
		_, err := Parse(w.Bytes())
		var se *StructuralError
		require.ErrorAs(t, err, &se)
		assert.Contains(t, se.Reason, "COD")
	})

	t.Run("truncated mid-segment", func(t *testing.T) {
		_, err := Parse(valid[:7])
		var se *StructuralError
		require.ErrorAs(t, err, &se)
	})

	t.Run("garbage where marker expected", func(t *testing.T) {
		bad := append([]byte{}, valid...)
		bad[2] = 0x00 // SIZ marker high byte
		_, err := Parse(bad)
		var se *StructuralError
		require.ErrorAs(t, err, &se)
	})
}

func TestParse_TruncatedTileBodyIsNotAnError(t *testing.T) {
	data := writeMinimalStream(t, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	// Cut inside the tile body, past SOD.
	cut := data[:len(data)-6]
	h, err := Parse(cut)
	require.NoError(t, err)
	assert.True(t, h.Truncated)
	require.Len(t, h.TileParts, 1)
	assert.Less(t, len(h.TileParts[0].Data), 8)
}

func TestParse_UnknownMarkerSkipped(t *testing.T) {
	w := NewWriter()
	w.WriteSOC()
	require.NoError(t, w.WriteSIZ(testSIZ(1)))
	require.NoError(t, w.WriteSegment(0xFF70, []byte{0xDE, 0xAD}))
	require.NoError(t, w.WriteCOD(testCOD()))
	require.NoError(t, w.WriteQCD(testQCD()))
	w.WriteEOC()
	_, err := Parse(w.Bytes())
	require.NoError(t, err)
}

func TestTLM_WidthSelection(t *testing.T) {
	t.Run("narrow", func(t *testing.T) {
		tlm := NewTLM(0, []TLMEntry{{Tile: 0, Length: 100}, {Tile: 1, Length: 65535}})
		assert.Equal(t, 1, tlm.TtlmBytes)
		assert.Equal(t, 2, tlm.PtlmBytes)
		got, err := parseTLM(tlm.encode(), 0)
		require.NoError(t, err)
		assert.Equal(t, tlm.Entries, got.Entries)
	})
	t.Run("wide", func(t *testing.T) {
		tlm := NewTLM(1, []TLMEntry{{Tile: 300, Length: 1 << 20}})
		assert.Equal(t, 2, tlm.TtlmBytes)
		assert.Equal(t, 4, tlm.PtlmBytes)
		got, err := parseTLM(tlm.encode(), 0)
		require.NoError(t, err)
		assert.Equal(t, uint8(1), got.Ztlm)
		assert.Equal(t, tlm.Entries, got.Entries)
	})
	t.Run("implied tile order", func(t *testing.T) {
		tlm := NewTLM(0, []TLMEntry{{Tile: -1, Length: 9}, {Tile: -1, Length: 10}})
		assert.Equal(t, 0, tlm.TtlmBytes)
		got, err := parseTLM(tlm.encode(), 0)
		require.NoError(t, err)
		assert.Equal(t, tlm.Entries, got.Entries)
	})
}

func TestPLT_VarintLengths(t *testing.T) {
	lengths := []int{0, 1, 127, 128, 255, 16384, 1 << 21}
	plt := &PLTSegment{Zplt: 2, Lengths: lengths}
	got, err := parsePLT(plt.encode(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), got.Zplt)
	assert.Equal(t, lengths, got.Lengths)
}

func TestHeader_OverrideResolution(t *testing.T) {
	w := NewWriter()
	w.WriteSOC()
	require.NoError(t, w.WriteSIZ(testSIZ(2)))
	require.NoError(t, w.WriteCOD(testCOD()))
	require.NoError(t, w.WriteQCD(testQCD()))
	coc := &COCSegment{Component: 1, CodingStyle: CodingStyle{
		NumDecompLevels: 5, CodeBlockWidthExp: 2, CodeBlockHeightExp: 2, Transform: 0,
	}}
	require.NoError(t, w.WriteCOC(coc, 2))
	qcc := &QCCSegment{Component: 1, Style: QuantDerived, GuardBits: 1,
		Steps: []QuantStep{{Exponent: 12, Mantissa: 1024}}}
	require.NoError(t, w.WriteQCC(qcc, 2))
	require.NoError(t, w.BeginTilePart(SOTSegment{Isot: 0, TNsot: 1}))
	w.WriteSOD()
	_, err := w.EndTilePart()
	require.NoError(t, err)
	w.WriteEOC()

	h, err := Parse(w.Bytes())
	require.NoError(t, err)
	require.Len(t, h.TileParts, 1)
	tp := h.TileParts[0]

	cs0 := h.StyleFor(tp, 0)
	assert.Equal(t, uint8(2), cs0.NumDecompLevels)
	cs1 := h.StyleFor(tp, 1)
	assert.Equal(t, uint8(5), cs1.NumDecompLevels)

	style, guard, steps := h.QuantFor(tp, 1)
	assert.Equal(t, uint8(QuantDerived), style)
	assert.Equal(t, uint8(1), guard)
	require.Len(t, steps, 1)
	assert.Equal(t, uint16(1024), steps[0].Mantissa)
}

func TestPOC_RoundTrip(t *testing.T) {
	poc := &POCSegment{Changes: []POCChange{
		{RSpoc: 0, CSpoc: 0, LYEpoc: 2, REpoc: 1, CEpoc: 1, Ppoc: 0},
		{RSpoc: 0, CSpoc: 0, LYEpoc: 3, REpoc: 3, CEpoc: 1, Ppoc: 1},
	}}
	got, err := parsePOC(poc.encode(1), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, poc.Changes, got.Changes)

	// wide component indices
	got, err = parsePOC(poc.encode(300), 300, 0)
	require.NoError(t, err)
	assert.Equal(t, poc.Changes, got.Changes)

	// CEpoc 256 wraps to 0 on the wire in the single-byte form and
	// must come back as 256.
	wrap := &POCSegment{Changes: []POCChange{
		{RSpoc: 0, CSpoc: 0, LYEpoc: 1, REpoc: 1, CEpoc: 256, Ppoc: 0},
	}}
	encoded := wrap.encode(256)
	assert.Equal(t, byte(0), encoded[5], "CEpoc byte")
	got, err = parsePOC(encoded, 256, 0)
	require.NoError(t, err)
	assert.Equal(t, wrap.Changes, got.Changes)
}

func TestWriter_PsotPatched(t *testing.T) {
	data := writeMinimalStream(t, make([]byte, 37))
	h, err := Parse(data)
	require.NoError(t, err)
	// SOT(12) + SOD(2) + 37 body bytes
	assert.Equal(t, uint32(12+2+37), h.TileParts[0].SOT.Psot)
}
