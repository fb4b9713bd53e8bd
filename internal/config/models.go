// Package config holds adapter-model descriptions: USB identification and
// endpoint numbers per hardware revision. The built-in table covers the
// reference adapter; other revisions use different endpoint numbers and can
// be added through a YAML file instead of a code change.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mknr/usbgpib/internal/usb"
)

// Model describes one adapter hardware revision.
type Model struct {
	Name      string `yaml:"name"`
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	Endpoints struct {
		BulkIn      int `yaml:"bulk_in"`
		BulkOut     int `yaml:"bulk_out"`
		InterruptIn int `yaml:"interrupt_in"`
	} `yaml:"endpoints"`
}

// USBEndpoints returns the model's endpoint assignment in transport form.
func (m Model) USBEndpoints() usb.Endpoints {
	return usb.Endpoints{
		BulkIn:      m.Endpoints.BulkIn,
		BulkOut:     m.Endpoints.BulkOut,
		InterruptIn: m.Endpoints.InterruptIn,
	}
}

func (m Model) validate() error {
	if m.Name == "" {
		return fmt.Errorf("model without a name")
	}
	if m.VendorID == 0 || m.ProductID == 0 {
		return fmt.Errorf("model %s: vendor_id and product_id are required", m.Name)
	}
	if m.Endpoints.BulkIn == 0 || m.Endpoints.BulkOut == 0 || m.Endpoints.InterruptIn == 0 {
		return fmt.Errorf("model %s: all three endpoint numbers are required", m.Name)
	}
	return nil
}

// DefaultModels returns the built-in adapter table. The 82357B is not
// listed: its endpoint numbers differ and have not been verified.
func DefaultModels() []Model {
	m := Model{Name: "Agilent 82357A", VendorID: 0x0957, ProductID: 0x0107}
	m.Endpoints.BulkIn = 2
	m.Endpoints.BulkOut = 4
	m.Endpoints.InterruptIn = 6
	return []Model{m}
}

// LoadModels reads an adapter model table from a YAML file. An empty path
// returns the built-in table.
func LoadModels(path string) ([]Model, error) {
	if path == "" {
		return DefaultModels(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var models []Model
	if err := yaml.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, m := range models {
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return models, nil
}
