package messages

import (
	"time"

	"github.com/MultiSerb/scadabraboooo/internal/model/entities"
)

// PointChangedEvent is published by the master after every processed update.
type PointChangedEvent struct {
	Name      string             `json:"name,omitempty"`
	Type      entities.PointType `json:"type"`
	Address   uint16             `json:"address"`
	RawValue  uint16             `json:"raw_value"`
	EguValue  float64            `json:"egu_value"`
	State     entities.DState    `json:"state,omitempty"`
	Alarm     entities.AlarmType `json:"alarm"`
	Timestamp time.Time          `json:"timestamp"`
}
