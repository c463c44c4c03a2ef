package dcom

import "github.com/MultiSerb/scadabraboooo/internal/model"

// AnalogAlarm classifies an EGU value against the item's limits.
// The limits themselves are in alarm.
func AnalogAlarm(egu float64, cfg *model.ConfigItem) model.AlarmType {
	switch {
	case egu <= cfg.EGUMin:
		return model.LowAlarm
	case egu >= cfg.EGUMax:
		return model.HighAlarm
	}
	return model.NoAlarm
}

// DigitalAlarm reports ABNORMAL_VALUE when raw equals the configured abnormal
// value. Items without one never alarm.
func DigitalAlarm(raw uint16, cfg *model.ConfigItem) model.AlarmType {
	if cfg.AbnormalValue != nil && raw == *cfg.AbnormalValue {
		return model.AbnormalValue
	}
	return model.NoAlarm
}
