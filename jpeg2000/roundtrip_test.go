package jpeg2000

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cinderblocks/corej2k/jpeg2000/codestream"
	"github.com/cinderblocks/corej2k/jpeg2000/t1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientPixels(w, h, comps int) []byte {
	out := make([]byte, w*h*comps)
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < comps; c++ {
				out[i] = byte((x*2 + y*3 + c*40) % 256)
				i++
			}
		}
	}
	return out
}

func noisePixels(rng *rand.Rand, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(rng.Intn(256))
	}
	return out
}

func mse(a, b []byte) float64 {
	sum := 0.0
	for i := range a {
		d := float64(int(a[i]) - int(b[i]))
		sum += d * d
	}
	return sum / float64(len(a))
}

func TestLosslessRoundTripGray(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sizes := []struct{ w, h int }{
		{8, 8}, {64, 64}, {37, 23}, {128, 96}, {65, 64}, {1, 17},
	}
	for _, sz := range sizes {
		for _, levels := range []int{0, 1, 3} {
			pixels := noisePixels(rng, sz.w*sz.h)
			params := DefaultEncodeParams(sz.w, sz.h, 1, 8, false)
			params.NumLevels = levels

			encoded, err := NewEncoder(params).Encode(pixels)
			require.NoError(t, err, "%dx%d levels %d", sz.w, sz.h, levels)

			dec := NewDecoder()
			require.NoError(t, dec.Decode(encoded), "%dx%d levels %d", sz.w, sz.h, levels)
			assert.Empty(t, dec.Warnings)
			assert.Equal(t, sz.w, dec.Width())
			assert.Equal(t, sz.h, dec.Height())
			require.Equal(t, pixels, dec.GetPixelData(), "%dx%d levels %d", sz.w, sz.h, levels)
		}
	}
}

func TestLosslessRoundTripRGB(t *testing.T) {
	w, h := 48, 40
	pixels := gradientPixels(w, h, 3)
	params := DefaultEncodeParams(w, h, 3, 8, false)
	params.NumLevels = 2

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	assert.Equal(t, 3, dec.Components())
	require.Equal(t, pixels, dec.GetPixelData())
}

func TestLosslessRoundTripMultiTile(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	w, h := 100, 80
	pixels := noisePixels(rng, w*h)
	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.TileWidth = 64
	params.TileHeight = 64
	params.NumLevels = 2
	params.EmitTLM = true

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	h2, err := codestream.Parse(encoded)
	require.NoError(t, err)
	require.Len(t, h2.TileParts, 4)
	require.Len(t, h2.TLM, 4)

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	require.Equal(t, pixels, dec.GetPixelData())
}

func TestLosslessRoundTrip16BitSigned(t *testing.T) {
	w, h := 32, 32
	samples := make([]int16, w*h)
	rng := rand.New(rand.NewSource(3))
	for i := range samples {
		samples[i] = int16(rng.Intn(1<<12) - (1 << 11))
	}
	pixels := make([]byte, len(samples)*2)
	for i, s := range samples {
		pixels[i*2] = byte(s)
		pixels[i*2+1] = byte(uint16(s) >> 8)
	}

	params := DefaultEncodeParams(w, h, 1, 12, true)
	params.NumLevels = 2
	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	assert.Equal(t, 12, dec.BitDepth())
	assert.True(t, dec.IsSigned())
	require.Equal(t, pixels, dec.GetPixelData())
}

func TestLossyRoundTripQuality(t *testing.T) {
	w, h := 64, 64
	pixels := gradientPixels(w, h, 1)
	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.Lossless = false
	params.Quality = 85
	params.NumLevels = 3

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(pixels))

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	decoded := dec.GetPixelData()
	require.Len(t, decoded, len(pixels))

	m := mse(pixels, decoded)
	psnr := 10 * math.Log10(255*255/math.Max(m, 1e-9))
	t.Logf("lossy q85: %d -> %d bytes, psnr %.1f dB", len(pixels), len(encoded), psnr)
	assert.Greater(t, psnr, 35.0)
}

func TestLossyCustomQuantSteps(t *testing.T) {
	w, h := 32, 32
	pixels := gradientPixels(w, h, 1)
	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.Lossless = false
	params.NumLevels = 1
	params.CustomQuantSteps = []float64{0.005, 0.01, 0.01, 0.02}

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	m := mse(pixels, dec.GetPixelData())
	assert.Less(t, m, 4.0)
}

func TestAcceptanceMarkerLayout(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	w, h := 64, 64
	pixels := noisePixels(rng, w*h)

	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.NumLevels = 2
	params.NumLayers = 3
	params.LayerTargets = []int{300, 700, 0}
	params.UseSOP = true
	params.UseEPH = true

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(encoded), 6)
	assert.Equal(t, []byte{0xFF, 0x4F}, encoded[0:2], "SOC")
	assert.Equal(t, []byte{0xFF, 0x51}, encoded[2:4], "SIZ follows SOC")
	assert.Equal(t, []byte{0xFF, 0xD9}, encoded[len(encoded)-2:], "EOC")

	// 3 layers x 3 resolutions x 1 precinct x 1 component. SOP markers
	// cannot occur inside entropy-coded data (bit stuffing keeps any
	// byte after 0xFF below 0x90), so a raw scan counts packets.
	sops := 0
	for i := 0; i+1 < len(encoded); i++ {
		if encoded[i] == 0xFF && encoded[i+1] == 0x91 {
			sops++
		}
	}
	assert.Equal(t, 9, sops, "packet count")

	// The first layer alone must equal a single-layer encode at the
	// same byte target.
	single := DefaultEncodeParams(w, h, 1, 8, false)
	single.NumLevels = 2
	single.NumLayers = 1
	single.LayerTargets = []int{300}
	single.UseSOP = true
	single.UseEPH = true
	singleEnc, err := NewEncoder(single).Encode(pixels)
	require.NoError(t, err)

	layer0 := NewDecoder()
	layer0.SetMaxLayers(1)
	require.NoError(t, layer0.Decode(encoded))

	ref := NewDecoder()
	require.NoError(t, ref.Decode(singleEnc))
	assert.Equal(t, ref.GetPixelData(), layer0.GetPixelData())
}

func TestMonotonicTruncation(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	w, h := 64, 64
	pixels := noisePixels(rng, w*h)

	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.NumLevels = 2
	params.NumLayers = 3
	params.LayerTargets = []int{250, 900, 0}

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	prev := math.Inf(1)
	for layers := 1; layers <= 3; layers++ {
		dec := NewDecoder()
		dec.SetMaxLayers(layers)
		require.NoError(t, dec.Decode(encoded))
		m := mse(pixels, dec.GetPixelData())
		t.Logf("layers %d: mse %.2f", layers, m)
		assert.LessOrEqual(t, m, prev, "quality must not degrade with more layers")
		prev = m
	}
	assert.Equal(t, 0.0, prev, "all layers reconstruct losslessly")
}

func TestProgressionOrdersEquivalent(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	w, h := 48, 48
	pixels := noisePixels(rng, w*h)

	var lengths [][]int
	for order := uint8(0); order <= 4; order++ {
		params := DefaultEncodeParams(w, h, 1, 8, false)
		params.NumLevels = 2
		params.NumLayers = 2
		params.LayerTargets = []int{400, 0}
		params.ProgressionOrder = order
		params.EmitPLT = true

		encoded, err := NewEncoder(params).Encode(pixels)
		require.NoError(t, err, "order %d", order)

		dec := NewDecoder()
		require.NoError(t, dec.Decode(encoded), "order %d", order)
		require.Equal(t, pixels, dec.GetPixelData(), "order %d", order)

		hdr, err := codestream.Parse(encoded)
		require.NoError(t, err)
		require.Len(t, hdr.TileParts, 1)
		pl := append([]int(nil), hdr.TileParts[0].PLT...)
		lengths = append(lengths, pl)
	}

	// Reordering packets permutes their lengths but changes no body.
	for i := 1; i < len(lengths); i++ {
		assert.ElementsMatch(t, lengths[0], lengths[i], "order %d packet lengths", i)
	}
}

func TestProgressionOrderChange(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	w, h := 48, 48
	pixels := noisePixels(rng, w*h)

	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.NumLevels = 2
	params.NumLayers = 2
	params.ProgressionChanges = []codestream.POCChange{
		{RSpoc: 0, CSpoc: 0, LYEpoc: 2, REpoc: 1, CEpoc: 1, Ppoc: 2}, // RPCL over r0
		{RSpoc: 1, CSpoc: 0, LYEpoc: 2, REpoc: 3, CEpoc: 1, Ppoc: 0}, // LRCP for the rest
	}

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	hdr, err := codestream.Parse(encoded)
	require.NoError(t, err)
	require.Len(t, hdr.POC, 2)

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	require.Equal(t, pixels, dec.GetPixelData())
}

func TestROIPriorityUnderTruncation(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	w, h := 64, 64
	pixels := noisePixels(rng, w*h)

	roi := &ROIRect{X0: 16, Y0: 16, Width: 16, Height: 16}
	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.Lossless = false
	params.Quality = 60
	params.NumLevels = 2
	params.TargetRatio = 8
	params.ROI = &ROIConfig{Regions: []ROIRegion{{Rect: roi}}}

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	hdr, err := codestream.Parse(encoded)
	require.NoError(t, err)
	require.Len(t, hdr.RGN, 1)
	assert.Positive(t, hdr.RGN[0].Shift)

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	decoded := dec.GetPixelData()

	var roiSSE, bgSSE float64
	var roiN, bgN int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := float64(int(pixels[y*w+x]) - int(decoded[y*w+x]))
			if x >= roi.X0 && x < roi.X0+roi.Width && y >= roi.Y0 && y < roi.Y0+roi.Height {
				roiSSE += d * d
				roiN++
			} else {
				bgSSE += d * d
				bgN++
			}
		}
	}
	roiMSE := roiSSE / float64(roiN)
	bgMSE := bgSSE / float64(bgN)
	t.Logf("roi mse %.2f, background mse %.2f", roiMSE, bgMSE)
	assert.Less(t, roiMSE, bgMSE, "truncation must hit the background first")
}

func TestROIWithoutDecomposition(t *testing.T) {
	// Zero decomposition levels leave only the LL band; the ROI mask
	// window must still resolve there.
	rng := rand.New(rand.NewSource(41))
	w, h := 16, 16
	pixels := noisePixels(rng, w*h)

	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.NumLevels = 0
	params.ROI = &ROIConfig{
		Regions: []ROIRegion{{Rect: &ROIRect{X0: 4, Y0: 4, Width: 8, Height: 8}}},
	}

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	hdr, err := codestream.Parse(encoded)
	require.NoError(t, err)
	require.Len(t, hdr.RGN, 1)

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	require.Equal(t, pixels, dec.GetPixelData())
}

func TestROIShiftTooSmall(t *testing.T) {
	params := DefaultEncodeParams(32, 32, 1, 8, false)
	params.ROI = &ROIConfig{
		Regions: []ROIRegion{{Rect: &ROIRect{X0: 8, Y0: 8, Width: 8, Height: 8}}},
		Shift:   1,
	}
	_, err := NewEncoder(params).Encode(gradientPixels(32, 32, 1))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestTruncatedStreamDecodes(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	w, h := 64, 64
	pixels := noisePixels(rng, w*h)
	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.NumLevels = 2

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	cut := encoded[:len(encoded)*6/10]
	dec := NewDecoder()
	require.NoError(t, dec.Decode(cut), "truncation is not an error")
	assert.True(t, dec.Truncated())
	assert.Equal(t, w, dec.Width())
	assert.Len(t, dec.GetPixelData(), w*h)
}

func TestEncodeParamValidation(t *testing.T) {
	base := func() *EncodeParams { return DefaultEncodeParams(32, 32, 1, 8, false) }
	tests := []struct {
		name   string
		mutate func(*EncodeParams)
	}{
		{"zero width", func(p *EncodeParams) { p.Width = 0 }},
		{"bit depth", func(p *EncodeParams) { p.BitDepth = 19 }},
		{"code-block not power of two", func(p *EncodeParams) { p.CodeBlockWidth = 48 }},
		{"code-block area", func(p *EncodeParams) { p.CodeBlockWidth = 1024; p.CodeBlockHeight = 64 }},
		{"progression order", func(p *EncodeParams) { p.ProgressionOrder = 7 }},
		{"quant step count", func(p *EncodeParams) { p.Lossless = false; p.CustomQuantSteps = []float64{1, 2} }},
		{"layer target count", func(p *EncodeParams) { p.NumLayers = 2; p.LayerTargets = []int{100} }},
	}
	var cfgErr *ConfigurationError
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			_, err := NewEncoder(p).Encode(gradientPixels(32, 32, 1))
			require.Error(t, err)
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestEncodeComponentsPlanar(t *testing.T) {
	w, h := 16, 16
	plane := make([]int32, w*h)
	for i := range plane {
		plane[i] = int32(i % 256)
	}
	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.NumLevels = 1

	encoded, err := NewEncoder(params).EncodeComponents([][]int32{plane})
	require.NoError(t, err)

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	comp, err := dec.GetComponentData(0)
	require.NoError(t, err)
	assert.Equal(t, plane, comp)

	_, err = dec.GetComponentData(1)
	assert.Error(t, err)
}

func TestCommentMarker(t *testing.T) {
	params := DefaultEncodeParams(16, 16, 1, 8, false)
	params.NumLevels = 1
	params.Comment = "corej2k test"

	encoded, err := NewEncoder(params).Encode(gradientPixels(16, 16, 1))
	require.NoError(t, err)

	hdr, err := codestream.Parse(encoded)
	require.NoError(t, err)
	require.NotEmpty(t, hdr.COM)
	assert.Equal(t, uint16(1), hdr.COM[0].Rcom)
	assert.Equal(t, "corej2k test", string(hdr.COM[0].Data))
}

func TestCodeBlockStyles(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	w, h := 40, 40
	pixels := noisePixels(rng, w*h)

	styles := []uint8{
		t1.StyleLazy,
		t1.StyleTermAll,
		t1.StyleVSC,
		t1.StyleSegsym,
		t1.StyleLazy | t1.StyleTermAll,
		t1.StyleReset | t1.StylePterm | t1.StyleTermAll,
	}
	for _, style := range styles {
		params := DefaultEncodeParams(w, h, 1, 8, false)
		params.NumLevels = 1
		params.CodeBlockStyle = style

		encoded, err := NewEncoder(params).Encode(pixels)
		require.NoError(t, err, "style 0x%02x", style)

		dec := NewDecoder()
		require.NoError(t, dec.Decode(encoded), "style 0x%02x", style)
		require.Equal(t, pixels, dec.GetPixelData(), "style 0x%02x", style)
	}
}

func TestLazyModeMultiLayer(t *testing.T) {
	// Raw segments can straddle layer boundaries, so the decoder has
	// to stitch per-packet length chunks back into whole codeword
	// segments before handing them to the block decoder.
	rng := rand.New(rand.NewSource(37))
	w, h := 64, 64
	pixels := noisePixels(rng, w*h)

	for _, style := range []uint8{t1.StyleLazy, t1.StyleLazy | t1.StyleTermAll} {
		params := DefaultEncodeParams(w, h, 1, 8, false)
		params.NumLevels = 2
		params.NumLayers = 3
		params.LayerTargets = []int{200, 600, 0}
		params.CodeBlockStyle = style

		encoded, err := NewEncoder(params).Encode(pixels)
		require.NoError(t, err, "style 0x%02x", style)

		dec := NewDecoder()
		require.NoError(t, dec.Decode(encoded), "style 0x%02x", style)
		require.Equal(t, pixels, dec.GetPixelData(), "style 0x%02x", style)
	}
}

func TestPrecinctPartitionRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	w, h := 96, 64
	pixels := noisePixels(rng, w*h)

	params := DefaultEncodeParams(w, h, 1, 8, false)
	params.NumLevels = 2
	params.CodeBlockWidth = 16
	params.CodeBlockHeight = 16
	params.PrecinctSizes = []codestream.PrecinctSize{
		{PPx: 5, PPy: 5}, {PPx: 5, PPy: 5}, {PPx: 6, PPy: 6},
	}

	encoded, err := NewEncoder(params).Encode(pixels)
	require.NoError(t, err)

	dec := NewDecoder()
	require.NoError(t, dec.Decode(encoded))
	require.Equal(t, pixels, dec.GetPixelData())
}
