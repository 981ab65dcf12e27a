// Package lossless provides JPEG 2000 Lossless codec implementations.
package lossless

import (
	"fmt"

	"github.com/cinderblocks/corej2k/jpeg2000"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
)

var _ codec.Codec = (*Codec)(nil)

const j2kLosslessName = "JPEG 2000 Lossless"

// Codec implements the JPEG 2000 Lossless codec
// Transfer Syntax UID: 1.2.840.10008.1.2.4.90
type Codec struct {
	transferSyntax *transfer.Syntax
}

// NewCodec creates a new JPEG 2000 Lossless codec
func NewCodec() *Codec {
	return NewCodecWithTransferSyntax(transfer.JPEG2000Lossless)
}

// NewCodecWithTransferSyntax allows constructing the codec for alternate JPEG 2000 transfer syntaxes.
func NewCodecWithTransferSyntax(ts *transfer.Syntax) *Codec {
	return &Codec{
		transferSyntax: ts,
	}
}

// Name returns the codec name
func (c *Codec) Name() string {
	return j2kLosslessName
}

// TransferSyntax returns the transfer syntax this codec handles
func (c *Codec) TransferSyntax() *transfer.Syntax {
	return c.transferSyntax
}

// GetDefaultParameters returns the default codec parameters
func (c *Codec) GetDefaultParameters() codec.Parameters {
	return NewLosslessParameters()
}

// Encode encodes pixel data to JPEG 2000 Lossless format
func (c *Codec) Encode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
	frameInfo, err := validateEncodeInputs(oldPixelData, newPixelData)
	if err != nil {
		return err
	}
	losslessParams := c.extractParameters(parameters)
	if err := losslessParams.Validate(); err != nil {
		return fmt.Errorf("invalid JPEG2000 lossless parameters: %w", err)
	}
	encParams := c.configureEncodeParams(frameInfo, losslessParams)
	encoder := jpeg2000.NewEncoder(encParams)
	return encodeAllFrames(oldPixelData, newPixelData, encoder)
}

func validateEncodeInputs(oldPixelData, newPixelData imagetypes.PixelData) (*imagetypes.FrameInfo, error) {
	if oldPixelData == nil || newPixelData == nil {
		return nil, fmt.Errorf("source and destination PixelData cannot be nil")
	}
	frameInfo := oldPixelData.GetFrameInfo()
	if frameInfo == nil {
		return nil, fmt.Errorf("failed to get frame info from source pixel data")
	}
	return frameInfo, nil
}

func (c *Codec) extractParameters(parameters codec.Parameters) *JPEG2000LosslessParameters {
	if parameters == nil {
		return NewLosslessParameters()
	}
	if jp, ok := parameters.(*JPEG2000LosslessParameters); ok {
		return jp
	}
	losslessParams := NewLosslessParameters()
	if v := parameters.GetParameter("numLevels"); v != nil {
		if n, ok := v.(int); ok && n >= 0 && n <= 6 {
			losslessParams.NumLevels = n
		}
	}
	if v := parameters.GetParameter("numLayers"); v != nil {
		if n, ok := v.(int); ok && n >= 1 {
			losslessParams.NumLayers = n
		}
	}
	if v := parameters.GetParameter("progressionOrder"); v != nil {
		switch x := v.(type) {
		case int:
			if x >= 0 {
				losslessParams.ProgressionOrder = uint8(x)
			}
		case uint8:
			losslessParams.ProgressionOrder = x
		}
	}
	return losslessParams
}

func (c *Codec) configureEncodeParams(frameInfo *imagetypes.FrameInfo, losslessParams *JPEG2000LosslessParameters) *jpeg2000.EncodeParams {
	encParams := jpeg2000.DefaultEncodeParams(
		int(frameInfo.Width),
		int(frameInfo.Height),
		int(frameInfo.SamplesPerPixel),
		int(frameInfo.BitsStored),
		frameInfo.PixelRepresentation != 0,
	)
	encParams.Lossless = true
	encParams.NumLevels = losslessParams.NumLevels
	encParams.ProgressionOrder = losslessParams.ProgressionOrder
	encParams.NumLayers = losslessParams.NumLayers
	return encParams
}

func encodeAllFrames(oldPixelData, newPixelData imagetypes.PixelData, encoder *jpeg2000.Encoder) error {
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

// Decode decodes JPEG 2000 Lossless data to uncompressed pixel data
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

// RegisterJPEG2000LosslessCodec registers the JPEG 2000 Lossless codec with the global registry
func RegisterJPEG2000LosslessCodec() {
	registry := codec.GetGlobalRegistry()
	j2kCodec := NewCodec()
	registry.RegisterCodec(transfer.JPEG2000Lossless, j2kCodec)
}

func init() {
	RegisterJPEG2000LosslessCodec()
}
