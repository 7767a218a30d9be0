package mapper

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// MappingConfig is the YAML shape of a custom vendor mapping file. It
// replaces the built-in tables entirely when provided.
type MappingConfig struct {
	Vendors []VendorConfig `yaml:"vendors"`
}

type VendorConfig struct {
	Name       string            `yaml:"name"`
	Pen        uint32            `yaml:"pen"`
	Fields     []FieldConfig     `yaml:"fields"`
	Positional *PositionalConfig `yaml:"positional"`
}

type FieldConfig struct {
	Id     uint16 `yaml:"id"`
	MapsTo string `yaml:"maps-to"`
}

type PositionalConfig struct {
	Id       uint16   `yaml:"id"`
	MinCount int      `yaml:"min-count"`
	Order    []string `yaml:"order"`
}

// LoadMapping reads a MappingConfig from a YAML stream.
func LoadMapping(f io.Reader) (*MappingConfig, error) {
	config := &MappingConfig{}
	dec := yaml.NewDecoder(f)
	err := dec.Decode(config)
	return config, err
}

func unifiedIdentity(name string) (Identity, error) {
	switch name {
	case "hostname":
		return UnifiedHTTPHostname, nil
	case "url":
		return UnifiedHTTPURL, nil
	case "useragent", "user-agent":
		return UnifiedHTTPUserAgent, nil
	case "none":
		return Identity{}, nil
	default:
		return Identity{}, fmt.Errorf("unknown unified field %q", name)
	}
}

// Compile converts the configuration into vendor tables, preserving the
// declaration order of the file as recognition priority. A malformed
// configuration is a startup error, never a runtime one.
func (c *MappingConfig) Compile() ([]Vendor, error) {
	vendors := make([]Vendor, 0, len(c.Vendors))
	for _, vc := range c.Vendors {
		if vc.Name == "" {
			return nil, fmt.Errorf("vendor with pen %d: missing name", vc.Pen)
		}
		// rewriting replaces a specifier's enterprise number in place, so
		// only enterprise-scoped (8-byte) specifiers can be mapped; a
		// pen-0 vendor would match but never rewrite
		if vc.Pen == 0 {
			return nil, fmt.Errorf("vendor %s: pen is required, IANA standard elements cannot be rewritten", vc.Name)
		}
		if len(vc.Fields) == 0 && vc.Positional == nil {
			return nil, fmt.Errorf("vendor %s: no fields and no positional rule", vc.Name)
		}
		if len(vc.Fields) > 0 && vc.Positional != nil {
			return nil, fmt.Errorf("vendor %s: fields and positional rule are mutually exclusive", vc.Name)
		}

		vendor := Vendor{
			Name: vc.Name,
			Pen:  vc.Pen,
		}
		if vc.Positional != nil {
			if len(vc.Positional.Order) == 0 {
				return nil, fmt.Errorf("vendor %s: positional rule without order", vc.Name)
			}
			rule := &PositionalRule{
				Shared:   Identity{vc.Pen, vc.Positional.Id},
				MinCount: vc.Positional.MinCount,
			}
			if rule.MinCount == 0 {
				rule.MinCount = len(vc.Positional.Order)
			}
			for _, name := range vc.Positional.Order {
				target, err := unifiedIdentity(name)
				if err != nil {
					return nil, fmt.Errorf("vendor %s: %w", vc.Name, err)
				}
				rule.Order = append(rule.Order, target)
			}
			vendor.Signature = []Identity{rule.Shared}
			vendor.Positional = rule
		} else {
			for _, fc := range vc.Fields {
				target, err := unifiedIdentity(fc.MapsTo)
				if err != nil {
					return nil, fmt.Errorf("vendor %s: %w", vc.Name, err)
				}
				from := Identity{vc.Pen, fc.Id}
				vendor.Signature = append(vendor.Signature, from)
				if !target.IsZero() {
					vendor.Mappings = append(vendor.Mappings, Mapping{from, target})
				}
			}
		}
		vendors = append(vendors, vendor)
	}
	return vendors, nil
}
