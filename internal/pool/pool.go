// Package pool persists genome pools and held-out identifier lists.
package pool

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"strings"

	"github.com/phynteny/phynteny-go/internal/genome"
)

// Write serializes p to path with gob. The file is written under a temporary
// name and renamed into place.
func Write(path string, p genome.Pool) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create pool file: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(p); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode pool: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close pool file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename pool file: %w", err)
	}
	return nil
}

// Read loads a pool written by Write.
func Read(path string) (genome.Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pool file: %w", err)
	}
	defer f.Close()

	var p genome.Pool
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode pool %s: %w", path, err)
	}
	return p, nil
}

// WriteIDs writes one identifier per line.
func WriteIDs(path string, ids []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create id list: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, id := range ids {
		w.WriteString(id)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write id list: %w", err)
	}
	return f.Close()
}

// ReadIDs reads an identifier list, skipping blank lines.
func ReadIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id list: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id list: %w", err)
	}
	return ids, nil
}

// Outputs names the files a run writes under a common prefix.
type Outputs string

func (o Outputs) AllData() string      { return string(o) + "_all_data.gob" }
func (o Outputs) Dereplicated() string { return string(o) + "_dereplicated.gob" }
func (o Outputs) TestIDs() string      { return string(o) + "_test_ids.txt" }
func (o Outputs) KFoldMetrics() string { return string(o) + "_kfold_metrics.tsv" }
func (o Outputs) History() string      { return string(o) + "_history.tsv" }
func (o Outputs) Model() string        { return string(o) + ".model" }

// FoldTestIDs names the held-out list of fold n.
func (o Outputs) FoldTestIDs(n int) string {
	return fmt.Sprintf("%s_fold%d_test_ids.txt", o, n)
}

// FoldModel names the model of fold n.
func (o Outputs) FoldModel(n int) string {
	return fmt.Sprintf("%s_fold%d.model", o, n)
}

// FoldHistory names the training history of fold n.
func (o Outputs) FoldHistory(n int) string {
	return fmt.Sprintf("%s_fold%d_history.tsv", o, n)
}
