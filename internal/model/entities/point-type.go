package entities

import "fmt"

// PointType identifies the register space a point lives in.
type PointType string

const (
	DigitalInput  PointType = "DIGITAL_INPUT"
	DigitalOutput PointType = "DIGITAL_OUTPUT"
	AnalogInput   PointType = "ANALOG_INPUT"
	AnalogOutput  PointType = "ANALOG_OUTPUT"
	HRLong        PointType = "HR_LONG" // wide holding register
)

// Valid reports whether t is one of the known point types.
func (t PointType) Valid() bool {
	switch t {
	case DigitalInput, DigitalOutput, AnalogInput, AnalogOutput, HRLong:
		return true
	}
	return false
}

// IsAnalog reports whether values of this type go through EGU conversion.
func (t PointType) IsAnalog() bool {
	return t == AnalogInput || t == AnalogOutput || t == HRLong
}

// PointIdentifier is the lookup key of a point: type plus 16 bit address.
type PointIdentifier struct {
	Type    PointType `json:"type"`
	Address uint16    `json:"address"`
}

func NewPointIdentifier(t PointType, address uint16) PointIdentifier {
	return PointIdentifier{Type: t, Address: address}
}

func (id PointIdentifier) String() string {
	return fmt.Sprintf("%s@%d", id.Type, id.Address)
}

// DState is the two-state value of a digital point.
type DState string

const (
	StateOff DState = "off"
	StateOn  DState = "on"
)

// StateFromRaw maps a raw digital value to its state; anything non-zero is on.
func StateFromRaw(raw uint16) DState {
	if raw != 0 {
		return StateOn
	}
	return StateOff
}

// AlarmType classifies the current value of a point.
type AlarmType string

const (
	NoAlarm       AlarmType = "NO_ALARM"
	LowAlarm      AlarmType = "LOW_ALARM"
	HighAlarm     AlarmType = "HIGH_ALARM"
	AbnormalValue AlarmType = "ABNORMAL_VALUE" // digital only
)
