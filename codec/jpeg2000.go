package codec

import (
	"github.com/cinderblocks/corej2k/jpeg2000"
)

// DICOM transfer syntax UIDs for the two JPEG 2000 Part 1 codestreams.
const (
	JPEG2000LosslessUID = "1.2.840.10008.1.2.4.90"
	JPEG2000LossyUID    = "1.2.840.10008.1.2.4.91"
)

// J2KOptions configures the JPEG 2000 codecs.
type J2KOptions struct {
	// Quality 1-100 for the lossy codec; ignored when lossless.
	Quality int

	// NumLevels is the wavelet decomposition depth.
	NumLevels int

	// NumLayers embeds that many quality layers.
	NumLayers int

	// TargetRatio caps output size at input/ratio. Zero disables.
	TargetRatio float64

	// ProgressionOrder 0=LRCP, 1=RLCP, 2=RPCL, 3=PCRL, 4=CPRL.
	ProgressionOrder uint8
}

// Validate checks the option ranges.
func (o *J2KOptions) Validate() error {
	if o.Quality != 0 && (o.Quality < 1 || o.Quality > 100) {
		return ErrInvalidQuality
	}
	if o.NumLevels < 0 || o.NumLevels > 32 {
		return ErrInvalidParameter
	}
	if o.NumLayers < 0 || o.TargetRatio < 0 {
		return ErrInvalidParameter
	}
	if o.ProgressionOrder > 4 {
		return ErrInvalidParameter
	}
	return nil
}

// J2KCodec adapts the jpeg2000 encoder and decoder to the Codec
// interface, in a lossless or a lossy flavor.
type J2KCodec struct {
	lossless bool
}

// NewJPEG2000Lossless returns the reversible 5/3 codec.
func NewJPEG2000Lossless() *J2KCodec { return &J2KCodec{lossless: true} }

// NewJPEG2000Lossy returns the irreversible 9/7 codec.
func NewJPEG2000Lossy() *J2KCodec { return &J2KCodec{lossless: false} }

func (c *J2KCodec) UID() string {
	if c.lossless {
		return JPEG2000LosslessUID
	}
	return JPEG2000LossyUID
}

func (c *J2KCodec) Name() string {
	if c.lossless {
		return "jpeg2000-lossless"
	}
	return "jpeg2000-lossy"
}

// Encode compresses interleaved pixel data to a raw JPEG 2000 codestream.
func (c *J2KCodec) Encode(params EncodeParams) ([]byte, error) {
	ep := jpeg2000.DefaultEncodeParams(params.Width, params.Height, params.Components, params.BitDepth, params.IsSigned)
	ep.Lossless = c.lossless
	if opts, ok := params.Options.(*J2KOptions); ok && opts != nil {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		if opts.Quality > 0 {
			ep.Quality = opts.Quality
		}
		if opts.NumLevels > 0 {
			ep.NumLevels = opts.NumLevels
		}
		if opts.NumLayers > 0 {
			ep.NumLayers = opts.NumLayers
		}
		ep.TargetRatio = opts.TargetRatio
		ep.ProgressionOrder = opts.ProgressionOrder
	} else if params.Options != nil {
		return nil, ErrInvalidParameter
	}
	return jpeg2000.NewEncoder(ep).Encode(params.PixelData)
}

// Decode decompresses a raw JPEG 2000 codestream.
func (c *J2KCodec) Decode(data []byte) (*DecodeResult, error) {
	dec := jpeg2000.NewDecoder()
	if err := dec.Decode(data); err != nil {
		return nil, err
	}
	return &DecodeResult{
		PixelData:  dec.GetPixelData(),
		Width:      dec.Width(),
		Height:     dec.Height(),
		Components: dec.Components(),
		BitDepth:   dec.BitDepth(),
		IsSigned:   dec.IsSigned(),
		Warnings:   dec.Warnings,
	}, nil
}

func init() {
	Register(NewJPEG2000Lossless())
	Register(NewJPEG2000Lossy())
}
