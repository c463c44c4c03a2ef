package modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameters is returned when a function is built from
	// parameters of the wrong shape (read vs write).
	ErrInvalidParameters = errors.New("modbus: invalid command parameters")
	// ErrUnsupportedFunction is returned by the function factory for unknown codes.
	ErrUnsupportedFunction = errors.New("modbus: unsupported function code")
	// ErrMalformedResponse is returned when a response is too short or
	// inconsistent with its declared lengths.
	ErrMalformedResponse = errors.New("modbus: malformed response")
)

// ExceptionError is a device exception reply (function byte with the high bit set).
type ExceptionError struct {
	Function FunctionCode
	Code     uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: %v exception %s", e.Function, exceptionName(e.Code))
}

func exceptionName(code uint8) string {
	switch code {
	case 0x01:
		return "illegal function"
	case 0x02:
		return "illegal data address"
	case 0x03:
		return "illegal data value"
	case 0x04:
		return "server device failure"
	case 0x05:
		return "acknowledge"
	case 0x06:
		return "server device busy"
	case 0x0A:
		return "gateway path unavailable"
	case 0x0B:
		return "gateway target failed to respond"
	}
	return fmt.Sprintf("code %#02x", code)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedResponse}, args...)...)
}
