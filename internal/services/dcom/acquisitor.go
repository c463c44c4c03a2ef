package dcom

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/MultiSerb/scadabraboooo/internal/model"
)

// ReadCommander issues read commands on behalf of the scheduler.
type ReadCommander interface {
	ExecuteReadCommand(ctx context.Context, cfg *model.ConfigItem, transactionID uint16, unit uint8, start, count uint16) error
}

// Acquisitor polls every configuration item once per AcquisitionInterval
// trigger ticks.
type Acquisitor struct {
	trigger <-chan struct{}
	reader  ReadCommander
	config  ConfigProvider
	logger  *log.Logger
}

func NewAcquisitor(trigger <-chan struct{}, reader ReadCommander, config ConfigProvider, logger *log.Logger) (*Acquisitor, error) {
	if trigger == nil {
		return nil, errors.New("trigger is nil")
	}
	if reader == nil {
		return nil, errors.New("read commander is nil")
	}
	if config == nil {
		return nil, errors.New("config provider is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Acquisitor{trigger: trigger, reader: reader, config: config, logger: logger}, nil
}

// Run waits on the trigger and runs one acquisition tick per signal, until
// ctx is done or the trigger channel closes.
func (a *Acquisitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-a.trigger:
			if !ok {
				return nil
			}
			a.tick(ctx)
		}
	}
}

func (a *Acquisitor) tick(ctx context.Context) {
	for _, item := range a.config.GetConfigurationItems() {
		item.SecondsPassedSinceLastPoll++
		if item.SecondsPassedSinceLastPoll != item.AcquisitionInterval {
			continue
		}
		err := a.reader.ExecuteReadCommand(ctx, item, a.config.GetTransactionID(), a.config.UnitAddress(),
			item.StartAddress, item.NumberOfRegisters)
		if err != nil && ctx.Err() == nil {
			a.logger.Printf("acquisitor: read %s %s@%d x%d: %v",
				item.Name, item.RegistryType, item.StartAddress, item.NumberOfRegisters, err)
		}
		item.SecondsPassedSinceLastPoll = 0
	}
}

// NewTicker turns a periodic timer into the acquisition trigger. The channel
// closes when ctx is done.
func NewTicker(ctx context.Context, period time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}
