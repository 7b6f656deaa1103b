package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mchurichi/logdeck/pkg/classify"
)

// ruleFile is the document shape of a taxonomy file
type ruleFile struct {
	Taxonomies []classify.Taxonomy `toml:"taxonomies" yaml:"taxonomies"`
}

// LoadRules reads taxonomies from a TOML or YAML file, chosen by extension
func LoadRules(path string) ([]classify.Taxonomy, error) {
	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var doc ruleFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("decode rules %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode rules %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported rules file type %q (use .toml, .yaml or .yml)", ext)
	}

	for _, t := range doc.Taxonomies {
		if err := merge(t).Validate(); err != nil {
			return nil, fmt.Errorf("rules %s: %w", path, err)
		}
	}
	return doc.Taxonomies, nil
}

// merge fills fields a file left empty from the built-in taxonomy of the
// same domain. Lists that are set replace the built-in list entirely.
func merge(t classify.Taxonomy) classify.Taxonomy {
	base, err := classify.Builtin(t.Domain)
	if err != nil {
		return t
	}
	if t.Title == "" {
		t.Title = base.Title
	}
	if len(t.Categories) == 0 {
		t.Categories = base.Categories
	}
	if len(t.Counters) == 0 {
		t.Counters = base.Counters
	}
	if len(t.Success) == 0 {
		t.Success = base.Success
	}
	if len(t.Failure) == 0 {
		t.Failure = base.Failure
	}
	if len(t.ExportFields) == 0 {
		t.ExportFields = base.ExportFields
	}
	if len(t.Samples) == 0 {
		t.Samples = base.Samples
	}
	return t
}

// Classifiers compiles the built-in taxonomies, replaced or extended by the
// configured rules file. Built-in domains keep their order; new domains
// follow in file order.
func (c *Config) Classifiers() ([]*classify.Classifier, error) {
	byDomain := make(map[string]classify.Taxonomy)
	order := classify.Domains()
	for _, d := range order {
		t, err := classify.Builtin(d)
		if err != nil {
			return nil, err
		}
		byDomain[d] = t
	}

	if c.Rules.File != "" {
		custom, err := LoadRules(c.Rules.File)
		if err != nil {
			return nil, err
		}
		for _, t := range custom {
			if _, ok := byDomain[t.Domain]; !ok {
				order = append(order, t.Domain)
			}
			byDomain[t.Domain] = merge(t)
		}
	}

	out := make([]*classify.Classifier, 0, len(order))
	for _, d := range order {
		cl, err := classify.New(byDomain[d])
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, nil
}
