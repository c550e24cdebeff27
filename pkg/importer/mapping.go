package importer

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WildcardSheet is the mapping key that matches any sheet without its own entry
const WildcardSheet = "*"

//go:embed mapping/default.yaml
var defaultMapping []byte

// MappingConfig represents the YAML mapping configuration
type MappingConfig struct {
	Version  int                    `yaml:"version"`
	Defaults DefaultFields          `yaml:"defaults"`
	Sheets   map[string]SheetConfig `yaml:"sheets"`
}

// DefaultFields fill columns a workbook does not carry
type DefaultFields struct {
	Ownership string `yaml:"ownership"`
	Location  string `yaml:"location"`
}

type SheetConfig struct {
	Category string                  `yaml:"category"`
	Inherit  string                  `yaml:"inherit"`
	Columns  map[string]ColumnConfig `yaml:"columns"`
}

// ColumnConfig maps one equipment field to the headers it may appear under
type ColumnConfig struct {
	Headers  []string `yaml:"headers"`
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
}

var knownFields = map[string]bool{
	"name":             true,
	"code":             true,
	"brand":            true,
	"model":            true,
	"serial_number":    true,
	"rental_price":     true,
	"investment_price": true,
	"weight":           true,
	"ownership":        true,
	"location":         true,
	"category_id":      true,
}

// DefaultMapping returns the built-in mapping
func DefaultMapping() (*MappingConfig, error) {
	return ParseMapping(defaultMapping)
}

// LoadMapping reads a mapping file; an empty path selects the built-in mapping
func LoadMapping(path string) (*MappingConfig, error) {
	if path == "" {
		return DefaultMapping()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}
	return ParseMapping(data)
}

// ParseMapping decodes and validates a YAML mapping, resolving inherited columns
func ParseMapping(data []byte) (*MappingConfig, error) {
	var m MappingConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if len(m.Sheets) == 0 {
		return nil, errors.New("mapping defines no sheets")
	}

	for name, sheet := range m.Sheets {
		if sheet.Inherit != "" {
			parent, ok := m.Sheets[sheet.Inherit]
			if !ok {
				return nil, fmt.Errorf("sheet %q inherits unknown sheet %q", name, sheet.Inherit)
			}
			if parent.Inherit != "" {
				return nil, fmt.Errorf("sheet %q: inheritance is one level deep", name)
			}
			merged := make(map[string]ColumnConfig, len(parent.Columns)+len(sheet.Columns))
			for field, col := range parent.Columns {
				merged[field] = col
			}
			for field, col := range sheet.Columns {
				merged[field] = col
			}
			sheet.Columns = merged
			m.Sheets[name] = sheet
		}
	}

	for name, sheet := range m.Sheets {
		for field, col := range sheet.Columns {
			if !knownFields[field] {
				return nil, fmt.Errorf("sheet %q maps unknown field %q", name, field)
			}
			if len(col.Headers) == 0 {
				return nil, fmt.Errorf("sheet %q field %q has no headers", name, field)
			}
		}
		if _, ok := sheet.Columns["code"]; !ok {
			return nil, fmt.Errorf("sheet %q must map the code column", name)
		}
		if _, ok := sheet.Columns["name"]; !ok {
			return nil, fmt.Errorf("sheet %q must map the name column", name)
		}
	}
	return &m, nil
}

// SheetFor returns the config for a sheet name, falling back to the wildcard entry
func (m *MappingConfig) SheetFor(name string) (SheetConfig, bool) {
	for key, cfg := range m.Sheets {
		if key != WildcardSheet && strings.EqualFold(key, strings.TrimSpace(name)) {
			return cfg, true
		}
	}
	cfg, ok := m.Sheets[WildcardSheet]
	return cfg, ok
}

// headerIndex resolves each mapped field to a column index in header
func (s SheetConfig) headerIndex(header []string) map[string]int {
	normalized := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if key == "" {
			continue
		}
		if _, dup := normalized[key]; !dup {
			normalized[key] = i
		}
	}
	index := make(map[string]int, len(s.Columns))
	for field, col := range s.Columns {
		for _, alias := range col.Headers {
			if i, ok := normalized[normalizeHeader(alias)]; ok {
				index[field] = i
				break
			}
		}
	}
	return index
}

func normalizeHeader(h string) string {
	return strings.ToUpper(strings.Join(strings.Fields(h), " "))
}
