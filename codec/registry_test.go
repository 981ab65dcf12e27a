package codec_test

import (
	"testing"

	"github.com/cinderblocks/corej2k/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRegistry(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		wantFound bool
		wantUID   string
		wantName  string
	}{
		{
			name:      "Get lossless by UID",
			key:       codec.JPEG2000LosslessUID,
			wantFound: true,
			wantUID:   "1.2.840.10008.1.2.4.90",
			wantName:  "jpeg2000-lossless",
		},
		{
			name:      "Get lossless by name",
			key:       "jpeg2000-lossless",
			wantFound: true,
			wantUID:   "1.2.840.10008.1.2.4.90",
			wantName:  "jpeg2000-lossless",
		},
		{
			name:      "Get lossy by UID",
			key:       codec.JPEG2000LossyUID,
			wantFound: true,
			wantUID:   "1.2.840.10008.1.2.4.91",
			wantName:  "jpeg2000-lossy",
		},
		{
			name:      "Get lossy by name",
			key:       "jpeg2000-lossy",
			wantFound: true,
			wantUID:   "1.2.840.10008.1.2.4.91",
			wantName:  "jpeg2000-lossy",
		},
		{
			name:      "Get non-existent codec",
			key:       "non-existent",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := codec.Get(tt.key)
			if !tt.wantFound {
				assert.ErrorIs(t, err, codec.ErrCodecNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUID, c.UID())
			assert.Equal(t, tt.wantName, c.Name())
		})
	}
}

func TestListCodecs(t *testing.T) {
	codecs := codec.List()
	require.GreaterOrEqual(t, len(codecs), 2)

	byUID := make(map[string]codec.Codec)
	for _, c := range codecs {
		byUID[c.UID()] = c
	}
	require.Contains(t, byUID, codec.JPEG2000LosslessUID)
	require.Contains(t, byUID, codec.JPEG2000LossyUID)
	assert.Equal(t, "jpeg2000-lossless", byUID[codec.JPEG2000LosslessUID].Name())
	assert.Equal(t, "jpeg2000-lossy", byUID[codec.JPEG2000LossyUID].Name())
}

func TestJPEG2000LosslessEncodeDecode(t *testing.T) {
	c := codec.MustGet("jpeg2000-lossless")

	width, height := 32, 32
	pixelData := make([]byte, width*height)
	for i := range pixelData {
		pixelData[i] = byte((i * 7) % 256)
	}

	compressed, err := c.Encode(codec.EncodeParams{
		PixelData:  pixelData,
		Width:      width,
		Height:     height,
		Components: 1,
		BitDepth:   8,
		Options:    &codec.J2KOptions{NumLevels: 3},
	})
	require.NoError(t, err)
	t.Logf("compressed %d -> %d bytes", len(pixelData), len(compressed))

	result, err := c.Decode(compressed)
	require.NoError(t, err)
	assert.Equal(t, width, result.Width)
	assert.Equal(t, height, result.Height)
	assert.Equal(t, 1, result.Components)
	assert.Equal(t, 8, result.BitDepth)
	assert.Equal(t, pixelData, result.PixelData)
}

func TestJPEG2000LossyEncodeDecode(t *testing.T) {
	c := codec.MustGet(codec.JPEG2000LossyUID)

	width, height := 64, 64
	pixelData := make([]byte, width*height)
	for i := range pixelData {
		pixelData[i] = byte(i % 256)
	}

	compressed, err := c.Encode(codec.EncodeParams{
		PixelData:  pixelData,
		Width:      width,
		Height:     height,
		Components: 1,
		BitDepth:   8,
		Options:    &codec.J2KOptions{Quality: 70, NumLevels: 3},
	})
	require.NoError(t, err)

	result, err := c.Decode(compressed)
	require.NoError(t, err)
	assert.Equal(t, width, result.Width)
	assert.Equal(t, height, result.Height)
	assert.Len(t, result.PixelData, len(pixelData))
}

func TestJ2KOptionsValidate(t *testing.T) {
	assert.NoError(t, (&codec.J2KOptions{}).Validate())
	assert.ErrorIs(t, (&codec.J2KOptions{Quality: 101}).Validate(), codec.ErrInvalidQuality)
	assert.ErrorIs(t, (&codec.J2KOptions{NumLevels: -1}).Validate(), codec.ErrInvalidParameter)
	assert.ErrorIs(t, (&codec.J2KOptions{ProgressionOrder: 9}).Validate(), codec.ErrInvalidParameter)
}
