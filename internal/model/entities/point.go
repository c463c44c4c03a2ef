package entities

import "time"

// Point is the run-time record of a single monitored address.
// EguValue is meaningful for analog points, State for digital ones.
type Point struct {
	ID         PointIdentifier `json:"id"`
	ConfigItem *ConfigItem     `json:"-"`
	RawValue   uint16          `json:"raw_value"`
	EguValue   float64         `json:"egu_value"`
	State      DState          `json:"state,omitempty"`
	Alarm      AlarmType       `json:"alarm"`
	Timestamp  time.Time       `json:"timestamp"`
}

// IsOn reports whether a digital point is currently on.
func (p Point) IsOn() bool { return p.State == StateOn }
