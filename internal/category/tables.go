package category

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Names maps categories to display names used in output and threshold files.
type Names map[Category]string

// DefaultNames returns the PHROG names for Unknown and every named category.
func DefaultNames() Names {
	n := make(Names, NumClasses)
	for c := Unknown; c < Masked; c++ {
		n[c] = phrogNames[c]
	}
	return n
}

// Name returns the display name of c, falling back to the PHROG name.
func (n Names) Name(c Category) string {
	if name, ok := n[c]; ok {
		return name
	}
	return c.String()
}

// Lookup resolves a display name back to its category.
func (n Names) Lookup(name string) (Category, bool) {
	for c, v := range n {
		if v == name {
			return c, true
		}
	}
	return FromName(name)
}

// LoadNames reads a YAML category -> name mapping layered over the defaults.
func LoadNames(path string) (Names, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open category names: %w", err)
	}
	defer f.Close()

	return ParseNames(f)
}

// ParseNames parses a YAML mapping of category integers to names.
func ParseNames(r io.Reader) (Names, error) {
	var raw map[int]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode category names: %w", err)
	}

	names := DefaultNames()
	for k, v := range raw {
		c := Category(k)
		if c < Unknown || c >= Masked {
			return nil, fmt.Errorf("category names: %d is outside the category scheme", k)
		}
		names[c] = v
	}
	return names, nil
}

// Thresholds holds the calibrated minimum score required to accept each category.
type Thresholds map[Category]float64

// LoadThresholds reads a YAML mapping of category name -> threshold.
func LoadThresholds(path string, names Names) (Thresholds, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open threshold table: %w", err)
	}
	defer f.Close()

	return ParseThresholds(f, names)
}

// ParseThresholds parses a threshold table keyed by category name. Names are
// resolved through names; every value must lie in [0,1].
func ParseThresholds(r io.Reader, names Names) (Thresholds, error) {
	var raw map[string]float64
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode threshold table: %w", err)
	}
	if names == nil {
		names = DefaultNames()
	}

	t := make(Thresholds, len(raw))
	for name, v := range raw {
		c, ok := names.Lookup(name)
		if !ok || !c.Known() {
			return nil, fmt.Errorf("threshold table: unknown category %q", name)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("threshold table: %q threshold %g outside [0,1]", name, v)
		}
		t[c] = v
	}
	return t, nil
}

// Missing returns the categories in want that have no threshold.
func (t Thresholds) Missing(want []Category) []Category {
	var out []Category
	for _, c := range want {
		if _, ok := t[c]; !ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
