package lossless

import (
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
)

// Ensure JPEG2000LosslessParameters implements codec.Parameters
var _ codec.Parameters = (*JPEG2000LosslessParameters)(nil)

// JPEG2000LosslessParameters contains parameters for JPEG 2000 Lossless compression
type JPEG2000LosslessParameters struct {
	// NumLevels controls the number of wavelet decomposition levels (0-6)
	// - 0: No decomposition (minimal compression, fastest)
	// - 1: Single-level decomposition
	// - 3: Medium levels (good balance)
	// - 5: Default, recommended for most images
	// - 6: Maximum levels (best compression for large images)
	//
	// More levels generally provide better compression but require more computation.
	// For small images (< 128x128), use fewer levels (1-3).
	// For large images (>= 512x512), use more levels (5-6).
	NumLevels int

	// NumLayers is the number of quality layers to embed. A lossless
	// stream with several layers supports progressive refinement; the
	// final layer always completes to exact reconstruction.
	NumLayers int

	// ProgressionOrder selects the packet ordering (0=LRCP .. 4=CPRL).
	ProgressionOrder uint8

	// internal storage for compatibility with generic parameter interface
	params map[string]interface{}
}

// NewLosslessParameters creates a new JPEG2000LosslessParameters with default values
func NewLosslessParameters() *JPEG2000LosslessParameters {
	return &JPEG2000LosslessParameters{
		NumLevels: 5, // Default 5 decomposition levels (recommended)
		NumLayers: 1,
		params:    make(map[string]interface{}),
	}
}

// GetParameter retrieves a parameter by name (implements codec.Parameters)
func (p *JPEG2000LosslessParameters) GetParameter(name string) interface{} {
	switch name {
	case "numLevels":
		return p.NumLevels
	case "numLayers":
		return p.NumLayers
	case "progressionOrder":
		return p.ProgressionOrder
	default:
		// Check custom parameters
		return p.params[name]
	}
}

// SetParameter sets a parameter value (implements codec.Parameters)
func (p *JPEG2000LosslessParameters) SetParameter(name string, value interface{}) {
	switch name {
	case "numLevels":
		if v, ok := value.(int); ok {
			p.NumLevels = v
		}
	case "numLayers":
		if v, ok := value.(int); ok {
			p.NumLayers = v
		}
	case "progressionOrder":
		switch v := value.(type) {
		case int:
			if v >= 0 {
				p.ProgressionOrder = uint8(v)
			}
		case uint8:
			p.ProgressionOrder = v
		}
	default:
		// Store as custom parameter
		p.params[name] = value
	}
}

// Validate checks if the parameters are valid and adjusts them if needed
func (p *JPEG2000LosslessParameters) Validate() error {
	if p.NumLevels < 0 {
		p.NumLevels = 0
	}
	if p.NumLevels > 6 {
		p.NumLevels = 6
	}
	if p.NumLayers < 1 {
		p.NumLayers = 1
	}
	if p.ProgressionOrder > 4 {
		p.ProgressionOrder = 0
	}
	return nil
}

// WithNumLevels sets the decomposition level count (chainable)
func (p *JPEG2000LosslessParameters) WithNumLevels(numLevels int) *JPEG2000LosslessParameters {
	p.NumLevels = numLevels
	return p
}

// WithNumLayers sets the quality layer count (chainable)
func (p *JPEG2000LosslessParameters) WithNumLayers(layers int) *JPEG2000LosslessParameters {
	p.NumLayers = layers
	return p
}
