package dcom

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/MultiSerb/scadabraboooo/internal/model"
)

// PointReader gives read access to point snapshots.
type PointReader interface {
	GetPoints(ids []model.PointIdentifier) ([]model.Point, error)
}

// WriteCommander issues write commands on behalf of the automation loop.
type WriteCommander interface {
	ExecuteWriteCommand(ctx context.Context, cfg *model.ConfigItem, transactionID uint16, unit uint8, address uint16, value int) error
}

// PolicyTerm is a digital output that moves the setpoint by Delta while on.
type PolicyTerm struct {
	Name    string
	Address uint16
	Delta   int
}

// ForcedWrite is a digital output written by an interlock.
type ForcedWrite struct {
	Name    string
	Address uint16
	Value   int
}

// AutomationPolicy describes the control loop around the analog setpoint K.
type AutomationPolicy struct {
	Setpoint        uint16 // ANALOG_OUTPUT address of K
	Terms           []PolicyTerm
	LowAlarmWrites  []ForcedWrite // K in LOW_ALARM
	HighLimitWrites []ForcedWrite // K raw value at or above EGU max
}

// DefaultAutomationPolicy puts T1..T5 on coils 5000..5004, I1 and I2 on
// coils 4000 and 4001 and K on holding register 2000.
func DefaultAutomationPolicy() AutomationPolicy {
	return NewAutomationPolicy(2000, 5000, 4000)
}

// NewAutomationPolicy lays the default coefficients over the given addresses.
func NewAutomationPolicy(setpoint, actuatorBase, inletBase uint16) AutomationPolicy {
	t := func(i uint16) uint16 { return actuatorBase + i }
	in := func(i uint16) uint16 { return inletBase + i }
	return AutomationPolicy{
		Setpoint: setpoint,
		Terms: []PolicyTerm{
			{Name: "T1", Address: t(0), Delta: -1},
			{Name: "T2", Address: t(1), Delta: -1},
			{Name: "T3", Address: t(2), Delta: -1},
			{Name: "T4", Address: t(3), Delta: -3},
			{Name: "T5", Address: t(4), Delta: -2},
			{Name: "I1", Address: in(0), Delta: 3},
			{Name: "I2", Address: in(1), Delta: 4},
		},
		LowAlarmWrites: []ForcedWrite{
			{Name: "T4", Address: t(3), Value: 0},
			{Name: "T5", Address: t(4), Value: 0},
			{Name: "I1", Address: in(0), Value: 1},
			{Name: "I2", Address: in(1), Value: 1},
		},
		HighLimitWrites: []ForcedWrite{
			{Name: "I1", Address: in(0), Value: 0},
			{Name: "I2", Address: in(1), Value: 0},
		},
	}
}

// AutomationManager runs the control policy once per period.
type AutomationManager struct {
	store  PointReader
	writer WriteCommander
	config ConfigProvider
	policy AutomationPolicy
	period time.Duration
	logger *log.Logger
	ids    []model.PointIdentifier
}

func NewAutomationManager(store PointReader, writer WriteCommander, config ConfigProvider, policy AutomationPolicy, period time.Duration, logger *log.Logger) (*AutomationManager, error) {
	if store == nil || writer == nil || config == nil {
		return nil, errors.New("automation: store, writer and config are required")
	}
	if period <= 0 {
		period = 2 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &AutomationManager{store: store, writer: writer, config: config, policy: policy, period: period, logger: logger}

	// snapshot order: K, terms, then interlock targets
	a.ids = append(a.ids, model.NewPointIdentifier(model.AnalogOutput, policy.Setpoint))
	for _, t := range policy.Terms {
		a.ids = append(a.ids, model.NewPointIdentifier(model.DigitalOutput, t.Address))
	}
	for _, w := range append(append([]ForcedWrite{}, policy.LowAlarmWrites...), policy.HighLimitWrites...) {
		a.ids = append(a.ids, model.NewPointIdentifier(model.DigitalOutput, w.Address))
	}
	return a, nil
}

// Points lists the identifiers each cycle snapshots.
func (a *AutomationManager) Points() []model.PointIdentifier {
	return append([]model.PointIdentifier(nil), a.ids...)
}

// Run executes a cycle, sleeps for the period and repeats until ctx is done.
// A snapshot of an unconfigured point stops the loop.
func (a *AutomationManager) Run(ctx context.Context) error {
	for {
		if err := a.cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.period):
		}
	}
}

func (a *AutomationManager) cycle(ctx context.Context) error {
	points, err := a.store.GetPoints(a.ids)
	if err != nil {
		return err
	}
	k := points[0]
	terms := points[1 : 1+len(a.policy.Terms)]
	outputs := make(map[uint16]model.Point, len(points)-1)
	for _, p := range points[1:] {
		outputs[p.ID.Address] = p
	}

	current := int(k.EguValue)
	if k.Alarm == model.LowAlarm {
		for _, w := range a.policy.LowAlarmWrites {
			a.write(ctx, outputs[w.Address], w.Value, w.Name)
		}
		return nil
	}
	if float64(k.RawValue) >= k.ConfigItem.EGUMax {
		for _, w := range a.policy.HighLimitWrites {
			a.write(ctx, outputs[w.Address], w.Value, w.Name)
		}
	}

	temp := current
	for i, term := range a.policy.Terms {
		if terms[i].IsOn() {
			temp += term.Delta
		}
	}
	if temp != current {
		a.write(ctx, k, temp, "K")
	}
	return nil
}

func (a *AutomationManager) write(ctx context.Context, p model.Point, value int, name string) {
	err := a.writer.ExecuteWriteCommand(ctx, p.ConfigItem, a.config.GetTransactionID(), a.config.UnitAddress(), p.ID.Address, value)
	if err != nil && ctx.Err() == nil {
		a.logger.Printf("automation: write %s=%d at %v: %v", name, value, p.ID, err)
	}
}
