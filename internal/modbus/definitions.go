package modbus

import "fmt"

// FunctionCode is the Modbus function byte following the MBAP header.
type FunctionCode uint8

const (
	FCReadCoils            FunctionCode = 0x01
	FCReadDiscreteInputs   FunctionCode = 0x02
	FCReadHoldingRegisters FunctionCode = 0x03
	FCReadInputRegisters   FunctionCode = 0x04
	FCWriteSingleCoil      FunctionCode = 0x05
	FCWriteSingleRegister  FunctionCode = 0x06 // Holding register.

	exceptionFlag FunctionCode = 0x80
)

const (
	// ProtocolID identifies Modbus in the MBAP header.
	ProtocolID uint16 = 0
	// RequestLength is the MBAP length of every request built here:
	// unit id, function code and two 16 bit words.
	RequestLength uint16 = 6

	mbapSize    = 7
	requestSize = mbapSize + 5
)

// IsRead reports whether fc is one of the supported read functions.
func (fc FunctionCode) IsRead() bool {
	return fc == FCReadCoils || fc == FCReadDiscreteInputs ||
		fc == FCReadHoldingRegisters || fc == FCReadInputRegisters
}

// IsWrite reports whether fc is one of the supported single write functions.
func (fc FunctionCode) IsWrite() bool {
	return fc == FCWriteSingleCoil || fc == FCWriteSingleRegister
}

func (fc FunctionCode) String() (s string) {
	switch fc {
	case FCReadCoils:
		s = "read coils"
	case FCReadDiscreteInputs:
		s = "read discrete inputs"
	case FCReadHoldingRegisters:
		s = "read holding registers"
	case FCReadInputRegisters:
		s = "read input registers"
	case FCWriteSingleCoil:
		s = "write single coil"
	case FCWriteSingleRegister:
		s = "write single register"
	default:
		s = fmt.Sprintf("function(%#02x)", uint8(fc))
	}
	return s
}
