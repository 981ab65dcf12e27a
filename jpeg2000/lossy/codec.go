// Package lossy provides JPEG 2000 Lossy codec implementations.
package lossy

import (
	"fmt"

	"github.com/cinderblocks/corej2k/jpeg2000"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
)

var _ codec.Codec = (*Codec)(nil)

const j2kLossyName = "JPEG 2000 Lossy"

// Codec implements the JPEG 2000 Lossy codec
// Transfer Syntax UID: 1.2.840.10008.1.2.4.91
type Codec struct {
	transferSyntax *transfer.Syntax
}

// NewCodec creates a new JPEG 2000 Lossy codec
func NewCodec() *Codec {
	return NewCodecWithTransferSyntax(transfer.JPEG2000Lossy)
}

// NewCodecWithTransferSyntax allows constructing the codec for alternate JPEG 2000 transfer syntaxes.
func NewCodecWithTransferSyntax(ts *transfer.Syntax) *Codec {
	return &Codec{
		transferSyntax: ts,
	}
}

// Name returns the codec name
func (c *Codec) Name() string {
	return j2kLossyName
}

// TransferSyntax returns the transfer syntax this codec handles
func (c *Codec) TransferSyntax() *transfer.Syntax {
	return c.transferSyntax
}

// GetDefaultParameters returns the default codec parameters
func (c *Codec) GetDefaultParameters() codec.Parameters {
	return NewLossyParameters()
}

// Encode encodes pixel data to JPEG 2000 Lossy format
func (c *Codec) Encode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
	if oldPixelData == nil || newPixelData == nil {
		return fmt.Errorf("source and destination PixelData cannot be nil")
	}
	frameInfo := oldPixelData.GetFrameInfo()
	if frameInfo == nil {
		return fmt.Errorf("failed to get frame info from source pixel data")
	}
	lossyParams := c.extractParameters(parameters)
	if err := lossyParams.Validate(); err != nil {
		return fmt.Errorf("invalid JPEG2000 lossy parameters: %w", err)
	}
	encParams := c.configureEncodeParams(frameInfo, lossyParams)
	encoder := jpeg2000.NewEncoder(encParams)

	frameCount := oldPixelData.FrameCount()
	if frameCount == 0 {
		return fmt.Errorf("source pixel data is empty (no frames)")
	}
	for frameIndex := 0; frameIndex < frameCount; frameIndex++ {
		frameData, err := oldPixelData.GetFrame(frameIndex)
		if err != nil {
			return fmt.Errorf("failed to get frame %d: %w", frameIndex, err)
		}
		if len(frameData) == 0 {
			return fmt.Errorf("frame %d pixel data is empty", frameIndex)
		}
		encoded, err := encoder.Encode(frameData)
		if err != nil {
			return fmt.Errorf("JPEG 2000 encode failed for frame %d: %w", frameIndex, err)
		}
		if err := newPixelData.AddFrame(encoded); err != nil {
			return fmt.Errorf("failed to add encoded frame %d: %w", frameIndex, err)
		}
	}
	return nil
}

func (c *Codec) extractParameters(parameters codec.Parameters) *JPEG2000LossyParameters {
	if parameters == nil {
		return NewLossyParameters()
	}
	if jp, ok := parameters.(*JPEG2000LossyParameters); ok {
		return jp
	}
	lossyParams := NewLossyParameters()
	for _, name := range []string{"quality", "numLevels", "numLayers", "targetRatio", "rate", "subbandSteps", "progressionOrder"} {
		if v := parameters.GetParameter(name); v != nil {
			lossyParams.SetParameter(name, v)
		}
	}
	return lossyParams
}

func (c *Codec) configureEncodeParams(frameInfo *imagetypes.FrameInfo, lossyParams *JPEG2000LossyParameters) *jpeg2000.EncodeParams {
	encParams := jpeg2000.DefaultEncodeParams(
		int(frameInfo.Width),
		int(frameInfo.Height),
		int(frameInfo.SamplesPerPixel),
		int(frameInfo.BitsStored),
		frameInfo.PixelRepresentation != 0,
	)
	encParams.Lossless = false
	encParams.Quality = lossyParams.Quality
	encParams.NumLevels = lossyParams.NumLevels
	encParams.NumLayers = lossyParams.NumLayers
	encParams.ProgressionOrder = lossyParams.ProgressionOrder
	encParams.CustomQuantSteps = lossyParams.SubbandSteps

	targetRatio := lossyParams.TargetRatio
	if targetRatio <= 0 && lossyParams.Rate > 0 {
		targetRatio = rateToTargetRatio(lossyParams.Rate, int(frameInfo.BitsStored), int(frameInfo.BitsAllocated))
	}
	encParams.TargetRatio = targetRatio
	return encParams
}

func rateToTargetRatio(rate, bitsStored, bitsAllocated int) float64 {
	if rate <= 0 {
		return 0
	}
	if bitsAllocated <= 0 {
		bitsAllocated = bitsStored
	}
	if bitsStored <= 0 || bitsAllocated <= 0 {
		return float64(rate)
	}
	return float64(rate) * float64(bitsStored) / float64(bitsAllocated)
}

// Decode decodes JPEG 2000 Lossy data to uncompressed pixel data
func (c *Codec) Decode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, _ codec.Parameters) error {
	if oldPixelData == nil || newPixelData == nil {
		return fmt.Errorf("source and destination PixelData cannot be nil")
	}

	frameCount := oldPixelData.FrameCount()
	if frameCount == 0 {
		return fmt.Errorf("source pixel data is empty (no frames)")
	}

	for frameIndex := 0; frameIndex < frameCount; frameIndex++ {
		frameData, err := oldPixelData.GetFrame(frameIndex)
		if err != nil {
			return fmt.Errorf("failed to get frame %d: %w", frameIndex, err)
		}
		if len(frameData) == 0 {
			return fmt.Errorf("frame %d pixel data is empty", frameIndex)
		}

		decoder := jpeg2000.NewDecoder()
		if err := decoder.Decode(frameData); err != nil {
			return fmt.Errorf("JPEG 2000 decode failed for frame %d: %w", frameIndex, err)
		}

		if err := newPixelData.AddFrame(decoder.GetPixelData()); err != nil {
			return fmt.Errorf("failed to add decoded frame %d: %w", frameIndex, err)
		}
	}

	return nil
}

// RegisterJPEG2000LossyCodec registers the JPEG 2000 Lossy codec with the global registry
func RegisterJPEG2000LossyCodec() {
	registry := codec.GetGlobalRegistry()
	j2kCodec := NewCodec()
	registry.RegisterCodec(transfer.JPEG2000Lossy, j2kCodec)
}

func init() {
	RegisterJPEG2000LossyCodec()
}
