package codestream

import "fmt"

// StructuralError reports a malformed codestream: a marker out of
// place, a segment length that contradicts its content, or data that
// ends mid-segment. Structural errors are not recoverable.
type StructuralError struct {
	Offset int
	Marker uint16
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Marker != 0 {
		return fmt.Sprintf("codestream structure error at offset %d (%s): %s",
			e.Offset, MarkerName(e.Marker), e.Reason)
	}
	return fmt.Sprintf("codestream structure error at offset %d: %s", e.Offset, e.Reason)
}

func structural(offset int, marker uint16, format string, args ...interface{}) error {
	return &StructuralError{Offset: offset, Marker: marker, Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedFeatureError reports a well-formed codestream using a
// capability this implementation does not decode.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("unsupported codestream feature: %s", e.Feature)
}
