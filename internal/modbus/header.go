package modbus

import (
	"encoding/binary"
	"io"
)

// MBAPSize is the size of the Modbus application header on the wire.
const MBAPSize = mbapSize

// Put writes the MBAP header and function code into the first 8 bytes of buf.
func (h Header) Put(buf []byte) {
	_ = buf[mbapSize] // bounds check hint
	binary.BigEndian.PutUint16(buf[0:2], h.TransactionID)
	binary.BigEndian.PutUint16(buf[2:4], h.ProtocolID)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	buf[6] = h.UnitID
	buf[7] = byte(h.FunctionCode)
}

// DecodeHeader reads the MBAP header and function code back from a frame.
func DecodeHeader(frame []byte) (Header, error) {
	if len(frame) < mbapSize+1 {
		return Header{}, io.ErrShortBuffer
	}
	return Header{
		TransactionID: binary.BigEndian.Uint16(frame[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(frame[2:4]),
		Length:        binary.BigEndian.Uint16(frame[4:6]),
		UnitID:        frame[6],
		FunctionCode:  FunctionCode(frame[7]),
	}, nil
}

// TransactionID returns the transaction id of a frame, or false when the
// frame is too short to carry one.
func TransactionID(frame []byte) (uint16, bool) {
	if len(frame) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(frame[0:2]), true
}

func writeSimple2U16(buf []byte, h Header, a, b uint16) {
	h.Put(buf)
	binary.BigEndian.PutUint16(buf[8:10], a)
	binary.BigEndian.PutUint16(buf[10:12], b)
}
