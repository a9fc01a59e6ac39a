package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/STRATINT/eventcurator/internal/models"
)

// PipelineFile is the YAML document listing sources, AI providers and
// auto-reject rules.
type PipelineFile struct {
	Sources    []models.SourceConfig   `yaml:"sources"`
	Providers  []models.ProviderConfig `yaml:"providers"`
	AutoReject AutoRejectRules         `yaml:"auto_reject"`
}

// AutoRejectRules holds keyword rules applied to pending events.
type AutoRejectRules struct {
	Keywords []string `yaml:"keywords"`
}

// LoadPipeline reads and validates the pipeline file at path.
func LoadPipeline(path string) (PipelineFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PipelineFile{}, fmt.Errorf("reading pipeline file: %w", err)
	}
	return ParsePipeline(b)
}

// ParsePipeline decodes and validates a pipeline document.
func ParsePipeline(b []byte) (PipelineFile, error) {
	var p PipelineFile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return PipelineFile{}, fmt.Errorf("parsing pipeline file: %w", err)
	}

	var errs []error
	seen := make(map[string]bool)
	for i, src := range p.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
		} else if seen[src.Name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, src.Name))
		}
		seen[src.Name] = true
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: url is required", i))
		}
		if !src.Type.Valid() {
			errs = append(errs, fmt.Errorf("sources[%d]: unsupported type %q", i, src.Type))
		}
		if src.Options.MaxDaysAhead < 0 {
			errs = append(errs, fmt.Errorf("sources[%d]: max_days_ahead must not be negative", i))
		}
	}

	for i, prov := range p.Providers {
		switch prov.Kind {
		case models.ProviderKindFree, models.ProviderKindLocal, models.ProviderKindPaid:
		default:
			errs = append(errs, fmt.Errorf("providers[%d]: unsupported kind %q", i, prov.Kind))
		}
		if prov.MaxDelay != 0 && prov.MaxDelay < prov.MinDelay {
			errs = append(errs, fmt.Errorf("providers[%d]: max_delay must be >= min_delay", i))
		}
	}
	if len(errs) > 0 {
		return PipelineFile{}, errors.Join(errs...)
	}

	sort.SliceStable(p.Providers, func(i, j int) bool {
		return p.Providers[i].Priority < p.Providers[j].Priority
	})

	return p, nil
}

// EnabledSources returns the sources that are not explicitly disabled.
func (p PipelineFile) EnabledSources() []models.SourceConfig {
	out := make([]models.SourceConfig, 0, len(p.Sources))
	for _, s := range p.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}
