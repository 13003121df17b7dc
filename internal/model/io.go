package model

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Extension is the file suffix of serialized models.
const Extension = ".model"

func init() {
	gob.Register(&Softmax{})
}

type envelope struct {
	Model Model
}

// Save writes m to path. The file is written to a temporary name first and
// renamed into place.
func Save(path string, m Model) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(envelope{Model: m}); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode model: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close model file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename model file: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(path string) (Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()

	var env envelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if env.Model == nil {
		return nil, fmt.Errorf("decode model %s: empty file", path)
	}
	return env.Model, nil
}

// LoadDir loads every model file in dir, in file name order.
func LoadDir(dir string) ([]Model, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	sort.Strings(paths)

	models := make([]Model, 0, len(paths))
	for _, p := range paths {
		m, err := Load(p)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}
