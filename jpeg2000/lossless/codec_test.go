package lossless

import (
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

func gradientFrame(width, height int) []byte {
	data := make([]byte, width*height)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

func TestCodecMetadata(t *testing.T) {
	c := NewCodec()
	assert.Equal(t, "JPEG 2000 Lossless", c.Name())
	require.NotNil(t, c.TransferSyntax())
	assert.Equal(t, "1.2.840.10008.1.2.4.90", c.TransferSyntax().UID().UID())

	params := c.GetDefaultParameters()
	require.NotNil(t, params)
	losslessParams, ok := params.(*JPEG2000LosslessParameters)
	require.True(t, ok)
	assert.NoError(t, losslessParams.Validate())
}

func TestCodecRegistration(t *testing.T) {
	registry := codec.GetGlobalRegistry()
	retrieved, exists := registry.GetCodec(transfer.JPEG2000Lossless)
	require.True(t, exists, "codec missing from the global registry")
	assert.Equal(t, "JPEG 2000 Lossless", retrieved.Name())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	const width, height = 64, 64
	frameInfo := grayFrameInfo(width, height)
	pixels := gradientFrame(width, height)

	src := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, src.AddFrame(pixels))

	c := NewCodec()
	encoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Encode(src, encoded, NewLosslessParameters().WithNumLevels(3)))

	encodedData, err := encoded.GetFrame(0)
	require.NoError(t, err)
	require.NotEmpty(t, encodedData)
	assert.Equal(t, []byte{0xFF, 0x4F}, encodedData[:2])

	decoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Decode(encoded, decoded, nil))

	decodedData, err := decoded.GetFrame(0)
	require.NoError(t, err)
	assert.Equal(t, pixels, decodedData, "lossless round trip must be exact")
}

func TestEncodeMultiFrame(t *testing.T) {
	const width, height = 32, 32
	frameInfo := grayFrameInfo(width, height)

	src := codecHelpers.NewTestPixelData(frameInfo)
	frames := make([][]byte, 3)
	for f := range frames {
		frames[f] = make([]byte, width*height)
		for i := range frames[f] {
			frames[f][i] = byte((i + f*17) % 256)
		}
		require.NoError(t, src.AddFrame(frames[f]))
	}

	c := NewCodec()
	encoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Encode(src, encoded, nil))
	require.Equal(t, 3, encoded.FrameCount())

	decoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Decode(encoded, decoded, nil))
	require.Equal(t, 3, decoded.FrameCount())
	for f := range frames {
		data, err := decoded.GetFrame(f)
		require.NoError(t, err)
		assert.Equal(t, frames[f], data, "frame %d", f)
	}
}

func TestEncodeParameterMap(t *testing.T) {
	const width, height = 32, 32
	frameInfo := grayFrameInfo(width, height)
	src := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, src.AddFrame(gradientFrame(width, height)))

	// String-keyed parameters from a generic Parameters value must be
	// honored the same as the typed struct.
	params := NewLosslessParameters()
	params.SetParameter("numLevels", 2)
	params.SetParameter("numLayers", 2)
	assert.Equal(t, 2, params.GetParameter("numLevels"))

	c := NewCodec()
	encoded := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, c.Encode(src, encoded, params))
}

func TestEncodeNilInputs(t *testing.T) {
	c := NewCodec()
	frameInfo := grayFrameInfo(8, 8)
	pd := codecHelpers.NewTestPixelData(frameInfo)

	assert.Error(t, c.Encode(nil, pd, nil))
	assert.Error(t, c.Encode(pd, nil, nil))
	assert.Error(t, c.Encode(pd, codecHelpers.NewTestPixelData(frameInfo), nil), "no frames")
}

func TestDecodeInvalidData(t *testing.T) {
	c := NewCodec()
	frameInfo := grayFrameInfo(8, 8)

	src := codecHelpers.NewTestPixelData(frameInfo)
	require.NoError(t, src.AddFrame([]byte{0x00, 0x01, 0x02, 0x03}))
	dst := codecHelpers.NewTestPixelData(frameInfo)
	assert.Error(t, c.Decode(src, dst, nil))

	assert.Error(t, c.Decode(nil, dst, nil))
	assert.Error(t, c.Decode(src, nil, nil))
}

func TestParametersValidateClamps(t *testing.T) {
	p := NewLosslessParameters()
	p.NumLevels = 40
	p.NumLayers = 0
	require.NoError(t, p.Validate())
	assert.LessOrEqual(t, p.NumLevels, 6)
	assert.GreaterOrEqual(t, p.NumLayers, 1)
}
