package entities

// ConfigItem describes one group of consecutive registers polled together.
type ConfigItem struct {
	Name                string    `json:"name"`
	RegistryType        PointType `json:"registry_type"`
	StartAddress        uint16    `json:"start_address"`
	NumberOfRegisters   uint16    `json:"number_of_registers"`
	AcquisitionInterval int       `json:"acquisition_interval"` // ticks between polls
	DefaultValue        uint16    `json:"default_value"`

	// mutated only by the acquisition scheduler
	SecondsPassedSinceLastPoll int `json:"-"`

	ScaleFactor float64 `json:"scale_factor"`
	Deviation   float64 `json:"deviation"`
	EGUMin      float64 `json:"egu_min"`
	EGUMax      float64 `json:"egu_max"`

	// AbnormalValue is the raw value that puts a digital point in alarm.
	// Nil means the point never alarms.
	AbnormalValue *uint16 `json:"abnormal_value,omitempty"`
}

// Contains reports whether address falls inside the item's register range.
func (c *ConfigItem) Contains(address uint16) bool {
	return uint32(address) >= uint32(c.StartAddress) &&
		uint32(address) < uint32(c.StartAddress)+uint32(c.NumberOfRegisters)
}

// Identifiers lists every point covered by this item in ascending address order.
func (c *ConfigItem) Identifiers() []PointIdentifier {
	out := make([]PointIdentifier, 0, c.NumberOfRegisters)
	for i := uint32(0); i < uint32(c.NumberOfRegisters); i++ {
		out = append(out, NewPointIdentifier(c.RegistryType, uint16(uint32(c.StartAddress)+i)))
	}
	return out
}
