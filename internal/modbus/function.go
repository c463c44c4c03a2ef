package modbus

import (
	"encoding/binary"
	"fmt"

	"github.com/MultiSerb/scadabraboooo/internal/model/entities"
)

// Function is a codec bound to one set of command parameters. It packs the
// request and parses the matching response into raw point values.
type Function interface {
	Parameters() CommandParameters
	PackRequest() []byte
	ParseResponse(response []byte) (map[entities.PointIdentifier]uint16, error)
}

const (
	maxReadBits      = 2000
	maxReadRegisters = 125
)

// NewFunction resolves the codec for p.FunctionCode and validates that p has
// the shape that function needs.
func NewFunction(p CommandParameters) (Function, error) {
	switch p.FunctionCode {
	case FCReadCoils:
		return newReadBits(p, entities.DigitalOutput)
	case FCReadDiscreteInputs:
		return newReadBits(p, entities.DigitalInput)
	case FCReadInputRegisters:
		return newReadRegisters(p, entities.AnalogInput)
	case FCReadHoldingRegisters:
		return newReadRegisters(p, entities.AnalogOutput)
	case FCWriteSingleCoil:
		return newWriteSingle(p, entities.DigitalOutput)
	case FCWriteSingleRegister:
		return newWriteSingle(p, entities.AnalogOutput)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedFunction, p.FunctionCode)
}

// ReadFunctionCode maps a point type to the function used to poll it.
func ReadFunctionCode(t entities.PointType) (FunctionCode, error) {
	switch t {
	case entities.DigitalOutput:
		return FCReadCoils, nil
	case entities.DigitalInput:
		return FCReadDiscreteInputs, nil
	case entities.AnalogInput:
		return FCReadInputRegisters, nil
	case entities.AnalogOutput, entities.HRLong:
		return FCReadHoldingRegisters, nil
	}
	return 0, fmt.Errorf("%w: no read function for point type %q", ErrUnsupportedFunction, t)
}

type function struct {
	params CommandParameters
}

func (f *function) Parameters() CommandParameters { return f.params }

func (f *function) requireKind(k ParamsKind) error {
	if f.params.Kind != k {
		return fmt.Errorf("%w: %v needs %v parameters, got %v",
			ErrInvalidParameters, f.params.FunctionCode, k, f.params.Kind)
	}
	return nil
}

// checkResponse validates the parts of a response shared by all functions and
// turns exception replies into *ExceptionError.
func (f *function) checkResponse(resp []byte) error {
	if len(resp) < mbapSize+2 {
		return malformed("%d bytes, need at least %d", len(resp), mbapSize+2)
	}
	length := binary.BigEndian.Uint16(resp[4:6])
	if int(length) != len(resp)-6 {
		return malformed("MBAP length %d does not match %d trailing bytes", length, len(resp)-6)
	}
	fc := FunctionCode(resp[7])
	want := f.params.FunctionCode
	if fc == want|exceptionFlag {
		return &ExceptionError{Function: want, Code: resp[8]}
	}
	if fc != want {
		return malformed("function %v in response to %v", fc, want)
	}
	return nil
}

// readBits handles read coils and read discrete inputs.
type readBits struct {
	function
	pointType entities.PointType
}

func newReadBits(p CommandParameters, t entities.PointType) (Function, error) {
	f := &readBits{function: function{params: p}, pointType: t}
	if err := f.requireKind(ReadKind); err != nil {
		return nil, err
	}
	if err := checkRange(p.Read, maxReadBits); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *readBits) PackRequest() []byte {
	buf := make([]byte, requestSize)
	writeSimple2U16(buf, f.params.Header, f.params.Read.StartAddress, f.params.Read.Quantity)
	return buf
}

func (f *readBits) ParseResponse(resp []byte) (map[entities.PointIdentifier]uint16, error) {
	if err := f.checkResponse(resp); err != nil {
		return nil, err
	}
	n := int(resp[8])
	data := resp[9:]
	if len(data) < n {
		return nil, malformed("byte count %d with %d data bytes", n, len(data))
	}
	q := int(f.params.Read.Quantity)
	if n < (q+7)/8 {
		return nil, malformed("byte count %d too small for %d bits", n, q)
	}
	out := make(map[entities.PointIdentifier]uint16, q)
	addr := f.params.Read.StartAddress
	for i := 0; i < q; i++ {
		bit := (data[i/8] >> (i % 8)) & 1
		out[entities.NewPointIdentifier(f.pointType, addr)] = uint16(bit)
		addr++
	}
	return out, nil
}

// readRegisters handles read input registers and read holding registers.
type readRegisters struct {
	function
	pointType entities.PointType
}

func newReadRegisters(p CommandParameters, t entities.PointType) (Function, error) {
	f := &readRegisters{function: function{params: p}, pointType: t}
	if err := f.requireKind(ReadKind); err != nil {
		return nil, err
	}
	if err := checkRange(p.Read, maxReadRegisters); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *readRegisters) PackRequest() []byte {
	buf := make([]byte, requestSize)
	writeSimple2U16(buf, f.params.Header, f.params.Read.StartAddress, f.params.Read.Quantity)
	return buf
}

func (f *readRegisters) ParseResponse(resp []byte) (map[entities.PointIdentifier]uint16, error) {
	if err := f.checkResponse(resp); err != nil {
		return nil, err
	}
	n := int(resp[8])
	data := resp[9:]
	if len(data) < n {
		return nil, malformed("byte count %d with %d data bytes", n, len(data))
	}
	if n%2 != 0 {
		return nil, malformed("odd register byte count %d", n)
	}
	if q := int(f.params.Read.Quantity); n != 2*q {
		return nil, malformed("byte count %d for %d registers", n, q)
	}
	out := make(map[entities.PointIdentifier]uint16, n/2)
	addr := f.params.Read.StartAddress
	for i := 0; i < n; i += 2 {
		out[entities.NewPointIdentifier(f.pointType, addr)] = binary.BigEndian.Uint16(data[i : i+2])
		addr++
	}
	return out, nil
}

// writeSingle handles write single coil and write single register.
type writeSingle struct {
	function
	pointType entities.PointType
}

func newWriteSingle(p CommandParameters, t entities.PointType) (Function, error) {
	f := &writeSingle{function: function{params: p}, pointType: t}
	if err := f.requireKind(WriteKind); err != nil {
		return nil, err
	}
	if p.FunctionCode == FCWriteSingleCoil {
		switch p.Write.Value {
		case 0, 1, 0xFF00:
		default:
			return nil, fmt.Errorf("%w: coil value %#04x", ErrInvalidParameters, p.Write.Value)
		}
	}
	return f, nil
}

func (f *writeSingle) PackRequest() []byte {
	buf := make([]byte, requestSize)
	writeSimple2U16(buf, f.params.Header, f.params.Write.OutputAddress, f.params.Write.Value)
	return buf
}

// ParseResponse reads the echoed address and value of a single write.
func (f *writeSingle) ParseResponse(resp []byte) (map[entities.PointIdentifier]uint16, error) {
	if err := f.checkResponse(resp); err != nil {
		return nil, err
	}
	if len(resp) != requestSize {
		return nil, malformed("write echo of %d bytes, want %d", len(resp), requestSize)
	}
	addr := binary.BigEndian.Uint16(resp[8:10])
	value := binary.BigEndian.Uint16(resp[10:12])
	if addr != f.params.Write.OutputAddress {
		return nil, malformed("echoed address %d, wrote %d", addr, f.params.Write.OutputAddress)
	}
	if f.pointType == entities.DigitalOutput && value != 0 {
		value = 1
	}
	return map[entities.PointIdentifier]uint16{
		entities.NewPointIdentifier(f.pointType, addr): value,
	}, nil
}

func checkRange(r ReadParams, max uint16) error {
	if r.Quantity == 0 || r.Quantity > max {
		return fmt.Errorf("%w: quantity %d outside 1..%d", ErrInvalidParameters, r.Quantity, max)
	}
	if uint32(r.StartAddress)+uint32(r.Quantity) > 1<<16 {
		return fmt.Errorf("%w: %d points from address %d overflow the address space",
			ErrInvalidParameters, r.Quantity, r.StartAddress)
	}
	return nil
}
