package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	mbapSize = 7
	// maxLength is the largest MBAP length field for a 260 byte ADU.
	maxLength = 254
)

var errFraming = errors.New("bad MBAP framing")

// ReadFrame reads one complete Modbus-TCP frame (MBAP header plus PDU) from r.
// The header is read first so a stream of garbage fails fast.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [mbapSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if proto := binary.BigEndian.Uint16(hdr[2:4]); proto != 0 {
		return nil, fmt.Errorf("%w: protocol id %d, expected 0", errFraming, proto)
	}
	length := binary.BigEndian.Uint16(hdr[4:6])
	if length < 2 || length > maxLength {
		return nil, fmt.Errorf("%w: length field %d outside 2..%d", errFraming, length, maxLength)
	}
	frame := make([]byte, 6+int(length))
	copy(frame, hdr[:])
	if _, err := io.ReadFull(r, frame[mbapSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}
