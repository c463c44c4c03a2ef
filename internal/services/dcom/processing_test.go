package dcom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/internal/modbus"
)

type fakeExecutor struct {
	mu  sync.Mutex
	fns []modbus.Function
}

func (f *fakeExecutor) EnqueueCommand(_ context.Context, fn modbus.Function) error {
	f.mu.Lock()
	f.fns = append(f.fns, fn)
	f.mu.Unlock()
	return nil
}

type change struct{ before, after model.Point }

type changeLog struct {
	mu      sync.Mutex
	changes []change
}

func (l *changeLog) PointChanged(before, after model.Point) {
	l.mu.Lock()
	l.changes = append(l.changes, change{before, after})
	l.mu.Unlock()
}

func newTestProcessing(t *testing.T, items ...*model.ConfigItem) (*ProcessingManager, *Storage, *fakeExecutor, *changeLog) {
	t.Helper()
	s := newTestStorage(t, items...)
	ex := &fakeExecutor{}
	obs := &changeLog{}
	pm, err := NewProcessingManager(s, ex, nil, obs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	pm.now = func() time.Time { return testTime }
	return pm, s, ex, obs
}

func TestProcessing_analogUpdate(t *testing.T) {
	item := analogItem("level", model.AnalogInput, 100, 1, 0.5, 2, 10, 50)
	pm, s, _, obs := newTestProcessing(t, item)
	id := model.NewPointIdentifier(model.AnalogInput, 100)

	testCases := []struct {
		raw   uint16
		egu   float64
		alarm model.AlarmType
	}{
		{40, 22, model.NoAlarm},
		{16, 10, model.LowAlarm},
		{96, 50, model.HighAlarm},
		{60, 32, model.NoAlarm},
	}
	for _, tc := range testCases {
		if err := pm.apply(model.PointUpdate{Type: model.AnalogInput, Address: 100, Value: tc.raw}); err != nil {
			t.Fatal(err)
		}
		p := getPoint(t, s, id)
		if p.RawValue != tc.raw || p.EguValue != tc.egu || p.Alarm != tc.alarm || !p.Timestamp.Equal(testTime) {
			t.Errorf("raw %d: got raw=%d egu=%v alarm=%s", tc.raw, p.RawValue, p.EguValue, p.Alarm)
		}
	}
	if len(obs.changes) != len(testCases) {
		t.Fatalf("%d changes observed", len(obs.changes))
	}
	if c := obs.changes[1]; c.before.Alarm != model.NoAlarm || c.after.Alarm != model.LowAlarm {
		t.Errorf("transition %s -> %s", c.before.Alarm, c.after.Alarm)
	}
}

func TestProcessing_digitalUpdate(t *testing.T) {
	item := digitalItem("door", model.DigitalInput, 7, 1)
	item.AbnormalValue = u16(1)
	pm, s, _, _ := newTestProcessing(t, item)
	id := model.NewPointIdentifier(model.DigitalInput, 7)

	if err := pm.InitializePoint(model.DigitalInput, 7, 0); err != nil {
		t.Fatal(err)
	}
	if p := getPoint(t, s, id); p.State != model.StateOff || p.Alarm != model.NoAlarm {
		t.Errorf("initial point %+v", p)
	}
	if err := pm.apply(model.PointUpdate{Type: model.DigitalInput, Address: 7, Value: 1}); err != nil {
		t.Fatal(err)
	}
	if p := getPoint(t, s, id); p.State != model.StateOn || p.Alarm != model.AbnormalValue || p.EguValue != 0 {
		t.Errorf("point after on %+v", p)
	}
}

func TestProcessing_hrLongResolution(t *testing.T) {
	pm, s, _, _ := newTestProcessing(t,
		analogItem("k", model.AnalogOutput, 2000, 1, 1, 0, 0, 100),
		analogItem("counter", model.HRLong, 2100, 1, 1, 0, -1, 65535),
	)
	if err := pm.apply(model.PointUpdate{Type: model.AnalogOutput, Address: 2100, Value: 1234}); err != nil {
		t.Fatal(err)
	}
	if p := getPoint(t, s, model.NewPointIdentifier(model.HRLong, 2100)); p.RawValue != 1234 || p.EguValue != 1234 {
		t.Errorf("HR_LONG point %+v", p)
	}
	if err := pm.apply(model.PointUpdate{Type: model.AnalogOutput, Address: 2000, Value: 5}); err != nil {
		t.Fatal(err)
	}
	if p := getPoint(t, s, model.NewPointIdentifier(model.AnalogOutput, 2000)); p.RawValue != 5 {
		t.Errorf("K point %+v", p)
	}
	err := pm.apply(model.PointUpdate{Type: model.AnalogOutput, Address: 3000, Value: 1})
	if !errors.Is(err, ErrUnknownPoint) {
		t.Errorf("got %v, want ErrUnknownPoint", err)
	}
}

func TestProcessing_readCommand(t *testing.T) {
	item := digitalItem("t", model.DigitalOutput, 5000, 5)
	pm, _, ex, _ := newTestProcessing(t, item)

	if err := pm.ExecuteReadCommand(context.Background(), item, 11, 3, 5000, 5); err != nil {
		t.Fatal(err)
	}
	if len(ex.fns) != 1 {
		t.Fatalf("%d commands", len(ex.fns))
	}
	p := ex.fns[0].Parameters()
	if p.FunctionCode != modbus.FCReadCoils || p.TransactionID != 11 || p.UnitID != 3 ||
		p.Read.StartAddress != 5000 || p.Read.Quantity != 5 {
		t.Errorf("parameters %+v", p)
	}
}

func TestProcessing_writeCommand(t *testing.T) {
	ao := analogItem("k", model.AnalogOutput, 2000, 1, 2, 10, 0, 500)
	hr := analogItem("counter", model.HRLong, 2100, 1, 2, 10, 0, 500)
	do := digitalItem("t", model.DigitalOutput, 5000, 1)
	di := digitalItem("door", model.DigitalInput, 3000, 1)
	ai := analogItem("level", model.AnalogInput, 1000, 1, 1, 0, 0, 100)

	testCases := []struct {
		name    string
		cfg     *model.ConfigItem
		address uint16
		value   int
		fc      modbus.FunctionCode
		raw     uint16
		err     error
	}{
		{"analog output converts egu", ao, 2000, 30, modbus.FCWriteSingleRegister, 10, nil},
		{"hr long is raw", hr, 2100, 30, modbus.FCWriteSingleRegister, 30, nil},
		{"coil on", do, 5000, 1, modbus.FCWriteSingleCoil, 1, nil},
		{"coil off", do, 5000, 0, modbus.FCWriteSingleCoil, 0, nil},
		{"coil bad value", do, 5000, 2, 0, 0, modbus.ErrInvalidParameters},
		{"hr long out of range", hr, 2100, 70000, 0, 0, modbus.ErrInvalidParameters},
		{"digital input is read-only", di, 3000, 1, 0, 0, modbus.ErrInvalidParameters},
		{"analog input is read-only", ai, 1000, 1, 0, 0, modbus.ErrInvalidParameters},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pm, _, ex, _ := newTestProcessing(t, ao, hr, do, di, ai)
			err := pm.ExecuteWriteCommand(context.Background(), tc.cfg, 1, 1, tc.address, tc.value)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("got %v, want %v", err, tc.err)
				}
				if len(ex.fns) != 0 {
					t.Fatal("a rejected write was enqueued")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			p := ex.fns[0].Parameters()
			if p.FunctionCode != tc.fc || p.Write.OutputAddress != tc.address || p.Write.Value != tc.raw {
				t.Errorf("got %v addr=%d value=%d", p.FunctionCode, p.Write.OutputAddress, p.Write.Value)
			}
		})
	}
}

func TestProcessing_runStopsOnUnknownPoint(t *testing.T) {
	s := newTestStorage(t, digitalItem("t", model.DigitalOutput, 0, 1))
	updates := make(chan model.PointUpdate, 2)
	m := NewMetrics(prometheus.NewRegistry())
	pm, err := NewProcessingManager(s, &fakeExecutor{}, updates, nil, m, nil)
	if err != nil {
		t.Fatal(err)
	}
	updates <- model.PointUpdate{Type: model.DigitalOutput, Address: 0, Value: 1}
	updates <- model.PointUpdate{Type: model.DigitalOutput, Address: 9, Value: 1}

	if err := pm.Run(context.Background()); !errors.Is(err, ErrUnknownPoint) {
		t.Fatalf("got %v, want ErrUnknownPoint", err)
	}
	if !getPoint(t, s, model.NewPointIdentifier(model.DigitalOutput, 0)).IsOn() {
		t.Error("first update not applied")
	}
	if got := testutil.ToFloat64(m.updates); got != 1 {
		t.Errorf("updates metric %v, want 1", got)
	}
}

func TestProcessing_runCancel(t *testing.T) {
	s := newTestStorage(t, digitalItem("t", model.DigitalOutput, 0, 1))
	pm, err := NewProcessingManager(s, &fakeExecutor{}, make(chan model.PointUpdate), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pm.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}
