package t2

import (
	"encoding/binary"
	"fmt"
)

// In-bitstream marker segments that frame packets, A.8. SOP carries a
// 16-bit packet sequence number and may precede each packet; EPH
// terminates each packet header.
const (
	markerSOP = 0xFF91
	markerEPH = 0xFF92

	sopSegmentLen = 6
)

// WrapSOP prefixes a packet with an SOP marker segment carrying seq.
// The sequence number wraps at 65536 as the field is 16 bits.
func WrapSOP(seq int, packet []byte) []byte {
	out := make([]byte, sopSegmentLen+len(packet))
	binary.BigEndian.PutUint16(out[0:], markerSOP)
	binary.BigEndian.PutUint16(out[2:], 4)
	binary.BigEndian.PutUint16(out[4:], uint16(seq))
	copy(out[sopSegmentLen:], packet)
	return out
}

// ReadSOP parses an SOP marker segment at the front of data, returning
// the sequence number and the remaining bytes. If data does not start
// with SOP it is returned unchanged with seq -1.
func ReadSOP(data []byte) (seq int, rest []byte, err error) {
	if len(data) < 2 || binary.BigEndian.Uint16(data) != markerSOP {
		return -1, data, nil
	}
	if len(data) < sopSegmentLen {
		return 0, nil, fmt.Errorf("truncated SOP marker segment: %d bytes", len(data))
	}
	if l := binary.BigEndian.Uint16(data[2:]); l != 4 {
		return 0, nil, fmt.Errorf("SOP marker segment length %d, want 4", l)
	}
	return int(binary.BigEndian.Uint16(data[4:])), data[sopSegmentLen:], nil
}

// AppendEPH appends the end-of-packet-header marker to a header.
func AppendEPH(header []byte) []byte {
	return append(header, 0xFF, 0x92)
}

// ReadEPH checks for an EPH marker at the front of data and returns
// the bytes after it.
func ReadEPH(data []byte) ([]byte, error) {
	if len(data) < 2 || binary.BigEndian.Uint16(data) != markerEPH {
		return nil, fmt.Errorf("expected EPH marker after packet header")
	}
	return data[2:], nil
}
