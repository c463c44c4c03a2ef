package dcom

import "math"

// EGU conversion is linear: egu = raw*ScaleFactor + Deviation.
// A zero scale factor is treated as 1 so an unset field means "no scaling".

func scaleOrOne(scale float64) float64 {
	if scale == 0 {
		return 1
	}
	return scale
}

// ConvertToEGU turns a raw register value into engineering units.
func ConvertToEGU(scale, deviation float64, raw uint16) float64 {
	return float64(raw)*scaleOrOne(scale) + deviation
}

// ConvertToRaw is the inverse of ConvertToEGU, rounded to the nearest
// integer and clamped to the 16 bit register range.
func ConvertToRaw(scale, deviation, egu float64) uint16 {
	raw := math.Round((egu - deviation) / scaleOrOne(scale))
	if math.IsNaN(raw) || raw < 0 {
		return 0
	}
	if raw > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(raw)
}
