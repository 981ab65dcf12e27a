package jpeg2000

import (
	"fmt"

	"github.com/cinderblocks/corej2k/jpeg2000/codestream"
)

// StructuralError reports a malformed codestream. Structural errors
// are fatal: the reader stops at the offending marker.
type StructuralError = codestream.StructuralError

// UnsupportedFeatureError reports a well-formed construct the codec
// does not implement.
type UnsupportedFeatureError = codestream.UnsupportedFeatureError

// ConfigurationError reports encode parameters that cannot produce a
// conforming codestream.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ArithmeticDecodeError reports corruption detected while decoding one
// code-block. It is recoverable: the block decodes as all zero and its
// siblings are unaffected.
type ArithmeticDecodeError struct {
	Component  int
	Resolution int
	Band       int
	Block      int
	Err        error
}

func (e *ArithmeticDecodeError) Error() string {
	return fmt.Sprintf("code-block c%d r%d b%d cb%d: %v",
		e.Component, e.Resolution, e.Band, e.Block, e.Err)
}

func (e *ArithmeticDecodeError) Unwrap() error { return e.Err }

// RateTargetUnreachableError reports a layer byte budget below the
// header overhead of an empty selection. Any budget at or above that
// floor is always reachable by including nothing.
type RateTargetUnreachableError struct {
	Layer    int
	Target   int
	Overhead int
}

func (e *RateTargetUnreachableError) Error() string {
	return fmt.Sprintf("layer %d target %d bytes below minimum header overhead %d",
		e.Layer, e.Target, e.Overhead)
}
