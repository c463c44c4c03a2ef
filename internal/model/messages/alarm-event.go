package messages

import (
	"time"

	"github.com/MultiSerb/scadabraboooo/internal/model/entities"
)

// AlarmEvent is published on every alarm transition of a point.
// ID is unique per transition and used to drop QoS1 redeliveries.
type AlarmEvent struct {
	ID            string             `json:"id"`
	Name          string             `json:"name,omitempty"`
	Type          entities.PointType `json:"type"`
	Address       uint16             `json:"address"`
	Alarm         entities.AlarmType `json:"alarm"`
	PreviousAlarm entities.AlarmType `json:"previous_alarm"`
	RawValue      uint16             `json:"raw_value"`
	EguValue      float64            `json:"egu_value"`
	Timestamp     time.Time          `json:"timestamp"`
}
