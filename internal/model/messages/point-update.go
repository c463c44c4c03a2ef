package messages

import "github.com/MultiSerb/scadabraboooo/internal/model/entities"

// PointUpdate carries one parsed value from the command executor to the
// processing engine.
type PointUpdate struct {
	Type    entities.PointType
	Address uint16
	Value   uint16
}
