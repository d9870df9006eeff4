package source

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

type catalogueFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadCatalogue reads and validates the YAML catalogue at path.
func LoadCatalogue(fs afero.Fs, path string) ([]Source, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes a YAML catalogue, applies defaults and validates it.
func ParseCatalogue(data []byte) ([]Source, error) {
	var cf catalogueFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	for i := range cf.Sources {
		s := &cf.Sources[i]
		if s.Status == "" {
			s.Status = StatusOperating
		}
		if s.FeedSource == "" {
			s.FeedSource = FeedSourceLocal
		}
	}
	if err := Validate(cf.Sources); err != nil {
		return nil, err
	}
	return cf.Sources, nil
}

// Validate reports every duplicate id, missing id or url and unknown format.
func Validate(sources []Source) error {
	var errs []error
	seen := make(map[string]int, len(sources))
	for i, s := range sources {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("source %d: id is required", i))
		} else if prev, ok := seen[s.ID]; ok {
			errs = append(errs, fmt.Errorf("source %d: duplicate id %q (first at %d)", i, s.ID, prev))
		} else {
			seen[s.ID] = i
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("source %q: url is required", s.ID))
		}
		if _, err := s.FeedFormat(); err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}
