package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// descriptorYAML is the on-disk shape of one descriptor. Supported filters
// are a list in YAML and a set in memory.
type descriptorYAML struct {
	League     string       `yaml:"league"`
	Dataset    string       `yaml:"dataset"`
	KeyColumns []string     `yaml:"key_columns"`
	Supported  []string     `yaml:"supported_filters"`
	Capability Capability   `yaml:"capability"`
	Chain      []MethodSpec `yaml:"chain"`
}

func (y descriptorYAML) descriptor() *Descriptor {
	supported := make(map[string]bool, len(y.Supported))
	for _, f := range y.Supported {
		supported[f] = true
	}
	return &Descriptor{
		League:     y.League,
		Dataset:    y.Dataset,
		KeyColumns: y.KeyColumns,
		Supported:  supported,
		Capability: y.Capability,
		Chain:      y.Chain,
	}
}

// LoadDefinitions reads descriptors from a YAML file and registers them,
// overriding seed entries for the same pairs.
func LoadDefinitions(r *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "catalog: read definitions %s", path)
	}

	var wrapper struct {
		Catalog struct {
			Descriptors []descriptorYAML `yaml:"descriptors"`
		} `yaml:"catalog"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return eris.Wrap(err, "catalog: parse definitions")
	}

	for _, y := range wrapper.Catalog.Descriptors {
		if err := r.RegisterOverride(y.descriptor()); err != nil {
			return eris.Wrapf(err, "catalog: register %s/%s", y.League, y.Dataset)
		}
	}
	return nil
}
