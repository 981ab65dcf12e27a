package lossy

import (
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
)

// Ensure JPEG2000LossyParameters implements codec.Parameters
var _ codec.Parameters = (*JPEG2000LossyParameters)(nil)

// JPEG2000LossyParameters contains parameters for JPEG 2000 Lossy compression
type JPEG2000LossyParameters struct {
	// Quality factor 1-100. Higher means finer quantization and larger
	// output. Ignored when SubbandSteps is set.
	Quality int

	// NumLevels controls the number of wavelet decomposition levels (0-6)
	NumLevels int

	// NumLayers is the number of embedded quality layers.
	NumLayers int

	// TargetRatio caps the output at originalSize/ratio bytes via
	// rate-distortion optimized truncation. Zero disables the cap.
	TargetRatio float64

	// Rate is the legacy compression-rate knob (bits kept per sample
	// numerator); converted to TargetRatio when TargetRatio is zero.
	Rate int

	// SubbandSteps overrides the quantization step size per subband,
	// indexed LL, HL1, LH1, HH1, HL2, ... Overrides Quality.
	SubbandSteps []float64

	// ProgressionOrder selects the packet ordering (0=LRCP .. 4=CPRL).
	ProgressionOrder uint8

	// internal storage for compatibility with generic parameter interface
	params map[string]interface{}
}

// NewLossyParameters creates lossy parameters with default values
func NewLossyParameters() *JPEG2000LossyParameters {
	return &JPEG2000LossyParameters{
		Quality:   80,
		NumLevels: 5,
		NumLayers: 1,
		params:    make(map[string]interface{}),
	}
}

// GetParameter retrieves a parameter by name (implements codec.Parameters)
func (p *JPEG2000LossyParameters) GetParameter(name string) interface{} {
	switch name {
	case "quality":
		return p.Quality
	case "numLevels":
		return p.NumLevels
	case "numLayers":
		return p.NumLayers
	case "targetRatio":
		return p.TargetRatio
	case "rate":
		return p.Rate
	case "subbandSteps":
		return p.SubbandSteps
	case "progressionOrder":
		return p.ProgressionOrder
	default:
		return p.params[name]
	}
}

// SetParameter sets a parameter value (implements codec.Parameters)
func (p *JPEG2000LossyParameters) SetParameter(name string, value interface{}) {
	switch name {
	case "quality":
		if v, ok := value.(int); ok {
			p.Quality = v
		}
	case "numLevels":
		if v, ok := value.(int); ok {
			p.NumLevels = v
		}
	case "numLayers":
		if v, ok := value.(int); ok {
			p.NumLayers = v
		}
	case "targetRatio":
		switch v := value.(type) {
		case float64:
			p.TargetRatio = v
		case float32:
			p.TargetRatio = float64(v)
		case int:
			p.TargetRatio = float64(v)
		}
	case "rate":
		if v, ok := value.(int); ok {
			p.Rate = v
		}
	case "subbandSteps":
		if v, ok := value.([]float64); ok {
			p.SubbandSteps = v
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
		p.params[name] = value
	}
}

// Validate checks if the parameters are valid and adjusts them if needed
func (p *JPEG2000LossyParameters) Validate() error {
	if p.Quality < 1 {
		p.Quality = 1
	}
	if p.Quality > 100 {
		p.Quality = 100
	}
	if p.NumLevels < 0 {
		p.NumLevels = 0
	}
	if p.NumLevels > 6 {
		p.NumLevels = 6
	}
	if p.NumLayers < 1 {
		p.NumLayers = 1
	}
	if p.TargetRatio < 0 {
		p.TargetRatio = 0
	}
	if p.ProgressionOrder > 4 {
		p.ProgressionOrder = 0
	}
	return nil
}

// WithQuality sets the quality factor (chainable)
func (p *JPEG2000LossyParameters) WithQuality(quality int) *JPEG2000LossyParameters {
	p.Quality = quality
	return p
}

// WithNumLevels sets the decomposition level count (chainable)
func (p *JPEG2000LossyParameters) WithNumLevels(levels int) *JPEG2000LossyParameters {
	p.NumLevels = levels
	return p
}

// WithNumLayers sets the quality layer count (chainable)
func (p *JPEG2000LossyParameters) WithNumLayers(layers int) *JPEG2000LossyParameters {
	p.NumLayers = layers
	return p
}

// WithTargetRatio sets the compression ratio cap (chainable)
func (p *JPEG2000LossyParameters) WithTargetRatio(ratio float64) *JPEG2000LossyParameters {
	p.TargetRatio = ratio
	return p
}

// WithRate sets the legacy rate knob (chainable)
func (p *JPEG2000LossyParameters) WithRate(rate int) *JPEG2000LossyParameters {
	p.Rate = rate
	return p
}

// WithSubbandSteps sets explicit quantization steps (chainable)
func (p *JPEG2000LossyParameters) WithSubbandSteps(steps []float64) *JPEG2000LossyParameters {
	p.SubbandSteps = steps
	return p
}
