package lossy

import (
	"math"
	"testing"

	codecHelpers "github.com/cinderblocks/corej2k/codec"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayFrameInfo(width, height uint16) *imagetypes.FrameInfo {
	return &imagetypes.FrameInfo{
		Width:                     width,
		Height:                    height,
		BitsAllocated:             8,
		BitsStored:                8,
		HighBit:                   7,
		SamplesPerPixel:           1,
		PixelRepresentation:       0,
		PhotometricInterpretation: "MONOCHROME2",
	}
}

func smoothFrame(width, height int) []byte {
	data := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data[y*width+x] = byte((x*2 + y*2) % 256)
		}
	}
	return data
}

func TestCodecMetadata(t *testing.T) {
	c := NewCodec()
	assert.Equal(t, "JPEG 2000 Lossy", c.Name())
	require.NotNil(t, c.TransferSyntax())
	assert.Equal(t, "1.2.840.10008.1.2.4.91", c.TransferSyntax().UID().UID())
}

func TestCodecRegistration(t *testing.T) {
	registry := codec.GetGlobalRegistry()
	retrieved, exists := registry.GetCodec(transfer.JPEG2000Lossy)
	require.True(t, exists, "codec missing from the global registry")
	assert.Equal(t, "JPEG 2000 Lossy", retrieved.Name())
}

func TestEncodeDecodeQuality(t *testing.T) {
	const width, height = 64, 64
	frameInfo := grayFrameInfo(width, height)
	pixels := smoothFrame(width, height)

	src := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, src.AddFrame(pixels))

	c := NewCodec()
	params := NewLossyParameters().WithQuality(85).WithNumLevels(3)

	encoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Encode(src, encoded, params))

	encodedData, err := encoded.GetFrame(0)
	require.NoError(t, err)
	require.NotEmpty(t, encodedData)
	assert.Less(t, len(encodedData), len(pixels), "lossy output must compress")

	decoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Decode(encoded, decoded, nil))

	decodedData, err := decoded.GetFrame(0)
	require.NoError(t, err)
	require.Len(t, decodedData, len(pixels))

	var sse float64
	for i := range pixels {
		d := float64(int(pixels[i]) - int(decodedData[i]))
		sse += d * d
	}
	psnr := 10 * math.Log10(255*255*float64(len(pixels))/math.Max(sse, 1e-9))
	t.Logf("q85: %d -> %d bytes, psnr %.1f dB", len(pixels), len(encodedData), psnr)
	assert.Greater(t, psnr, 35.0)
}

func TestEncodeWithTargetRatio(t *testing.T) {
	const width, height = 64, 64
	frameInfo := grayFrameInfo(width, height)
	src := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, src.AddFrame(smoothFrame(width, height)))

	c := NewCodec()
	encoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Encode(src, encoded, NewLossyParameters().WithTargetRatio(10)))

	encodedData, err := encoded.GetFrame(0)
	require.NoError(t, err)
	// The budget caps the packet bodies; headers add a small overhead.
	assert.Less(t, len(encodedData), width*height/10+256)
}

func TestEncodeWithRate(t *testing.T) {
	const width, height = 64, 64
	frameInfo := grayFrameInfo(width, height)
	src := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, src.AddFrame(smoothFrame(width, height)))

	c := NewCodec()
	encoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Encode(src, encoded, NewLossyParameters().WithRate(20)))

	decoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Decode(encoded, decoded, nil))
	decodedData, err := decoded.GetFrame(0)
	require.NoError(t, err)
	assert.Len(t, decodedData, width*height)
}

func TestEncodeCustomSubbandSteps(t *testing.T) {
	const width, height = 32, 32
	frameInfo := grayFrameInfo(width, height)
	src := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, src.AddFrame(smoothFrame(width, height)))

	c := NewCodec()
	params := NewLossyParameters().WithNumLevels(1).WithSubbandSteps([]float64{0.005, 0.01, 0.01, 0.02})
	encoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Encode(src, encoded, params))

	decoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Decode(encoded, decoded, nil))
}

func TestParametersValidateClamps(t *testing.T) {
	p := NewLossyParameters().WithQuality(150).WithNumLevels(40).WithTargetRatio(-3)
	p.NumLayers = 0
	p.ProgressionOrder = 9
	require.NoError(t, p.Validate())
	assert.Equal(t, 100, p.Quality)
	assert.Equal(t, 6, p.NumLevels)
	assert.Equal(t, 1, p.NumLayers)
	assert.Zero(t, p.TargetRatio)
	assert.Zero(t, p.ProgressionOrder)
}

func TestParameterMapAccess(t *testing.T) {
	p := NewLossyParameters()
	p.SetParameter("quality", 60)
	p.SetParameter("numLayers", 4)
	assert.Equal(t, 60, p.Quality)
	assert.Equal(t, 4, p.NumLayers)
	assert.Equal(t, 60, p.GetParameter("quality"))

	p.SetParameter("custom", "value")
	assert.Equal(t, "value", p.GetParameter("custom"))
	assert.Nil(t, p.GetParameter("missing"))
}

func TestRateToTargetRatio(t *testing.T) {
	assert.InDelta(t, 20.0, rateToTargetRatio(20, 8, 8), 1e-9)
	assert.InDelta(t, 15.0, rateToTargetRatio(20, 12, 16), 1e-9)
	assert.Zero(t, rateToTargetRatio(0, 8, 8))
}
