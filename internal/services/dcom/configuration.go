package dcom

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/MultiSerb/scadabraboooo/internal/model"
)

// ConfigProvider is what the scheduler and the automation loop need from
// the configuration.
type ConfigProvider interface {
	GetConfigurationItems() []*model.ConfigItem
	GetTransactionID() uint16
	UnitAddress() uint8
}

// Configuration is the static point configuration plus the transaction id
// counter shared by every command issued by this process.
type Configuration struct {
	items []*model.ConfigItem
	unit  uint8
	txid  atomic.Uint32
}

var _ ConfigProvider = (*Configuration)(nil)

type configFile struct {
	UnitAddress *uint8              `json:"unit_address"`
	Points      []*model.ConfigItem `json:"points"`
}

// LoadConfiguration reads a JSON point configuration. defaultUnit is used
// when the file does not name a unit address.
func LoadConfiguration(path string, defaultUnit uint8) (*Configuration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f configFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	unit := defaultUnit
	if f.UnitAddress != nil {
		unit = *f.UnitAddress
	}
	return NewConfiguration(f.Points, unit)
}

// NewConfiguration validates items and builds a provider over them.
func NewConfiguration(items []*model.ConfigItem, unit uint8) (*Configuration, error) {
	if len(items) == 0 {
		return nil, errors.New("no configuration items")
	}
	for i, it := range items {
		if err := validateItem(it); err != nil {
			var name string
			if it != nil {
				name = it.Name
			}
			if strings.TrimSpace(name) == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("config item %s: %w", name, err)
		}
	}
	return &Configuration{items: items, unit: unit}, nil
}

func validateItem(it *model.ConfigItem) error {
	if it == nil {
		return errors.New("empty item")
	}
	if !it.RegistryType.Valid() {
		return fmt.Errorf("unknown registry type %q", it.RegistryType)
	}
	if it.NumberOfRegisters == 0 {
		return errors.New("number_of_registers must be at least 1")
	}
	if uint32(it.StartAddress)+uint32(it.NumberOfRegisters) > 1<<16 {
		return errors.New("register range overflows the address space")
	}
	if it.AcquisitionInterval < 1 {
		return errors.New("acquisition_interval must be at least 1")
	}
	if it.RegistryType.IsAnalog() && it.EGUMin >= it.EGUMax {
		return fmt.Errorf("egu_min %.2f must be below egu_max %.2f", it.EGUMin, it.EGUMax)
	}
	return nil
}

func (c *Configuration) GetConfigurationItems() []*model.ConfigItem { return c.items }

// GetTransactionID returns the next transaction id, wrapping after 65535.
func (c *Configuration) GetTransactionID() uint16 {
	return uint16(c.txid.Add(1))
}

func (c *Configuration) UnitAddress() uint8 { return c.unit }
