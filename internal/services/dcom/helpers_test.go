package dcom

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/internal/modbus"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func u16(v uint16) *uint16 { return &v }

func analogItem(name string, t model.PointType, start, n uint16, scale, dev, min, max float64) *model.ConfigItem {
	return &model.ConfigItem{
		Name: name, RegistryType: t, StartAddress: start, NumberOfRegisters: n,
		AcquisitionInterval: 1, ScaleFactor: scale, Deviation: dev, EGUMin: min, EGUMax: max,
	}
}

func digitalItem(name string, t model.PointType, start, n uint16) *model.ConfigItem {
	return &model.ConfigItem{Name: name, RegistryType: t, StartAddress: start, NumberOfRegisters: n, AcquisitionInterval: 1}
}

func newTestStorage(t *testing.T, items ...*model.ConfigItem) *Storage {
	t.Helper()
	s, err := NewStorage(items)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// setRaw runs value through the processing path for id.
func setRaw(t *testing.T, s *Storage, id model.PointIdentifier, value uint16) {
	t.Helper()
	if _, _, err := s.update(id, func(p *model.Point) { processPoint(p, value, testTime) }); err != nil {
		t.Fatal(err)
	}
}

func getPoint(t *testing.T, s *Storage, id model.PointIdentifier) model.Point {
	t.Helper()
	ps, err := s.GetPoints([]model.PointIdentifier{id})
	if err != nil {
		t.Fatal(err)
	}
	return ps[0]
}

// reply builds a response frame with the given PDU payload after the function byte.
func reply(txid uint16, fc modbus.FunctionCode, payload ...byte) []byte {
	buf := make([]byte, modbus.MBAPSize+1+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], txid)
	binary.BigEndian.PutUint16(buf[4:6], uint16(2+len(payload)))
	buf[6] = 1
	buf[7] = byte(fc)
	copy(buf[8:], payload)
	return buf
}
