package dcom

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/internal/modbus"
)

// CommandExecutor accepts Modbus functions for asynchronous execution.
type CommandExecutor interface {
	EnqueueCommand(ctx context.Context, fn modbus.Function) error
}

// PointObserver is told about every processed point update.
type PointObserver interface {
	PointChanged(before, after model.Point)
}

// ProcessingManager builds read/write commands for callers and applies the
// values coming back from the executor to the point storage.
type ProcessingManager struct {
	storage  *Storage
	executor CommandExecutor
	updates  <-chan model.PointUpdate
	observer PointObserver
	metrics  *Metrics
	logger   *log.Logger
	now      func() time.Time
}

func NewProcessingManager(storage *Storage, executor CommandExecutor, updates <-chan model.PointUpdate, observer PointObserver, m *Metrics, logger *log.Logger) (*ProcessingManager, error) {
	if storage == nil {
		return nil, errors.New("storage is nil")
	}
	if executor == nil {
		return nil, errors.New("command executor is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ProcessingManager{
		storage:  storage,
		executor: executor,
		updates:  updates,
		observer: observer,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// ExecuteReadCommand enqueues a read of count points starting at start.
// Results arrive later through Run.
func (pm *ProcessingManager) ExecuteReadCommand(ctx context.Context, cfg *model.ConfigItem, transactionID uint16, unit uint8, start, count uint16) error {
	fc, err := modbus.ReadFunctionCode(cfg.RegistryType)
	if err != nil {
		return err
	}
	p := modbus.NewReadParameters(modbus.RequestLength, fc, start, count, transactionID, unit)
	fn, err := modbus.NewFunction(p)
	if err != nil {
		return err
	}
	return pm.executor.EnqueueCommand(ctx, fn)
}

// ExecuteWriteCommand enqueues a single write. For ANALOG_OUTPUT items value
// is in engineering units and is converted to raw first; other writable
// types are written as is.
func (pm *ProcessingManager) ExecuteWriteCommand(ctx context.Context, cfg *model.ConfigItem, transactionID uint16, unit uint8, address uint16, value int) error {
	var (
		fc  modbus.FunctionCode
		raw uint16
	)
	switch cfg.RegistryType {
	case model.AnalogOutput:
		fc = modbus.FCWriteSingleRegister
		raw = ConvertToRaw(cfg.ScaleFactor, cfg.Deviation, float64(value))
	case model.HRLong, model.DigitalOutput:
		if value < 0 || value > 0xFFFF {
			return fmt.Errorf("%w: value %d outside the register range", modbus.ErrInvalidParameters, value)
		}
		fc = modbus.FCWriteSingleRegister
		if cfg.RegistryType == model.DigitalOutput {
			fc = modbus.FCWriteSingleCoil
		}
		raw = uint16(value)
	default:
		return fmt.Errorf("%w: %s points are read-only", modbus.ErrInvalidParameters, cfg.RegistryType)
	}
	p := modbus.NewWriteParameters(modbus.RequestLength, fc, address, raw, transactionID, unit)
	fn, err := modbus.NewFunction(p)
	if err != nil {
		return err
	}
	return pm.executor.EnqueueCommand(ctx, fn)
}

// InitializePoint gives a point its default value through the same path a
// polled value takes.
func (pm *ProcessingManager) InitializePoint(t model.PointType, address uint16, defaultValue uint16) error {
	return pm.apply(model.PointUpdate{Type: t, Address: address, Value: defaultValue})
}

// Run applies updates until ctx is done or the channel closes. An update for
// an unconfigured point is a configuration error and stops the loop.
func (pm *ProcessingManager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-pm.updates:
			if !ok {
				return nil
			}
			if err := pm.apply(u); err != nil {
				return err
			}
		}
	}
}

func (pm *ProcessingManager) apply(u model.PointUpdate) error {
	id := pm.resolve(u)
	ts := pm.now()
	before, after, err := pm.storage.update(id, func(p *model.Point) {
		processPoint(p, u.Value, ts)
	})
	if err != nil {
		return err
	}
	pm.metrics.pointUpdated()
	if before.Alarm != after.Alarm {
		pm.metrics.alarmChanged(after.Alarm)
		pm.logger.Printf("processing: %v alarm %s -> %s (raw=%d egu=%.2f)",
			id, before.Alarm, after.Alarm, after.RawValue, after.EguValue)
	}
	if pm.observer != nil {
		pm.observer.PointChanged(before, after)
	}
	return nil
}

// resolve maps holding register values onto HR_LONG points when the address
// has no ANALOG_OUTPUT point.
func (pm *ProcessingManager) resolve(u model.PointUpdate) model.PointIdentifier {
	id := model.NewPointIdentifier(u.Type, u.Address)
	if u.Type == model.AnalogOutput && !pm.storage.Has(id) {
		if alt := model.NewPointIdentifier(model.HRLong, u.Address); pm.storage.Has(alt) {
			return alt
		}
	}
	return id
}

func processPoint(p *model.Point, value uint16, ts time.Time) {
	cfg := p.ConfigItem
	p.RawValue = value
	p.Timestamp = ts
	if p.ID.Type.IsAnalog() {
		p.EguValue = ConvertToEGU(cfg.ScaleFactor, cfg.Deviation, value)
		p.Alarm = AnalogAlarm(p.EguValue, cfg)
		return
	}
	p.State = model.StateFromRaw(value)
	p.Alarm = DigitalAlarm(value, cfg)
}
