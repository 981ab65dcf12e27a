// Package codec defines the module's codec interface and a process-wide
// registry keyed by name and DICOM transfer syntax UID.
package codec

// Codec compresses and decompresses one image format.
type Codec interface {
	// Encode encodes pixel data
	Encode(params EncodeParams) ([]byte, error)

	// Decode decodes compressed data
	Decode(data []byte) (*DecodeResult, error)

	// UID returns the unique identifier (typically DICOM Transfer Syntax UID)
	UID() string

	// Name returns a human-readable name
	Name() string
}

// EncodeParams contains parameters for encoding
type EncodeParams struct {
	PixelData  []byte  // Raw pixel data, interleaved, little-endian for >8 bit
	Width      int     // Image width
	Height     int     // Image height
	Components int     // Number of color components (1=grayscale, 3=RGB)
	BitDepth   int     // Bits per sample (8, 12, 16, etc.)
	IsSigned   bool    // Two's-complement samples
	Options    Options // Codec-specific options
}

// Options is an interface for codec-specific encoding options
type Options interface {
	// Validate checks if the options are valid
	Validate() error
}

// DecodeResult contains the result of decoding
type DecodeResult struct {
	PixelData  []byte // Decoded pixel data
	Width      int    // Image width
	Height     int    // Image height
	Components int    // Number of color components
	BitDepth   int    // Bits per sample
	IsSigned   bool   // Two's-complement samples
	Warnings   []string
}
