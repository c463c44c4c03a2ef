package modbus

// ParamsKind tags which shape a CommandParameters value carries.
type ParamsKind uint8

const (
	ReadKind ParamsKind = iota + 1
	WriteKind
)

func (k ParamsKind) String() string {
	switch k {
	case ReadKind:
		return "read"
	case WriteKind:
		return "write"
	}
	return "unknown"
}

// Header holds the MBAP fields plus the function code.
type Header struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16
	UnitID        uint8
	FunctionCode  FunctionCode
}

// ReadParams addresses a block of consecutive points.
type ReadParams struct {
	StartAddress uint16
	Quantity     uint16
}

// WriteParams addresses a single coil or register.
type WriteParams struct {
	OutputAddress uint16
	Value         uint16
}

// CommandParameters is the per-request data of one Modbus command.
// Kind decides which of Read or Write is meaningful.
type CommandParameters struct {
	Header
	Kind  ParamsKind
	Read  ReadParams
	Write WriteParams
}

// NewReadParameters builds read-shaped parameters.
func NewReadParameters(length uint16, fc FunctionCode, start, quantity, transactionID uint16, unitID uint8) CommandParameters {
	return CommandParameters{
		Header: Header{
			TransactionID: transactionID,
			ProtocolID:    ProtocolID,
			Length:        length,
			UnitID:        unitID,
			FunctionCode:  fc,
		},
		Kind: ReadKind,
		Read: ReadParams{StartAddress: start, Quantity: quantity},
	}
}

// NewWriteParameters builds write-shaped parameters.
func NewWriteParameters(length uint16, fc FunctionCode, address, value, transactionID uint16, unitID uint8) CommandParameters {
	return CommandParameters{
		Header: Header{
			TransactionID: transactionID,
			ProtocolID:    ProtocolID,
			Length:        length,
			UnitID:        unitID,
			FunctionCode:  fc,
		},
		Kind:  WriteKind,
		Write: WriteParams{OutputAddress: address, Value: value},
	}
}
