package model

import (
	"github.com/MultiSerb/scadabraboooo/internal/model/entities"
	"github.com/MultiSerb/scadabraboooo/internal/model/messages"
)

// Aliases so services import one package for the shared types.

type (
	PointType         = entities.PointType
	PointIdentifier   = entities.PointIdentifier
	ConfigItem        = entities.ConfigItem
	Point             = entities.Point
	AlarmType         = entities.AlarmType
	DState            = entities.DState
	PointUpdate       = messages.PointUpdate
	PointChangedEvent = messages.PointChangedEvent
	AlarmEvent        = messages.AlarmEvent
)

const (
	DigitalInput  = entities.DigitalInput
	DigitalOutput = entities.DigitalOutput
	AnalogInput   = entities.AnalogInput
	AnalogOutput  = entities.AnalogOutput
	HRLong        = entities.HRLong

	StateOn  = entities.StateOn
	StateOff = entities.StateOff

	NoAlarm       = entities.NoAlarm
	LowAlarm      = entities.LowAlarm
	HighAlarm     = entities.HighAlarm
	AbnormalValue = entities.AbnormalValue
)

var (
	NewPointIdentifier = entities.NewPointIdentifier
	StateFromRaw       = entities.StateFromRaw
)
