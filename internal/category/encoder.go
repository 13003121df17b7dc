package category

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

// NoAnnotation is the identifier carried by genes without a PHROG hit.
const NoAnnotation = "No_PHROG"

// Encoder maps raw annotation identifiers to categories. It is built once from
// the annotation table and shared read-only by every component.
type Encoder struct {
	table    map[string]Category
	unmapped int
}

// NewEncoder creates an encoder from an identifier -> category table.
// Identifiers are normalized with NormalizeID; any mapping to a category
// outside the named set is stored as Unknown.
func NewEncoder(table map[string]Category) *Encoder {
	e := &Encoder{table: make(map[string]Category, len(table))}
	for id, c := range table {
		if !c.Known() {
			c = Unknown
		}
		e.table[NormalizeID(id)] = c
	}
	return e
}

// Encode returns the category for an annotation identifier. The mapping is
// total: the absence marker and unmapped identifiers resolve to Unknown.
func (e *Encoder) Encode(id string) Category {
	if e == nil {
		return Unknown
	}
	return e.table[NormalizeID(id)]
}

// Categories returns the sorted set of named categories the encoder can produce.
func (e *Encoder) Categories() []Category {
	seen := make(map[Category]bool)
	for _, c := range e.table {
		if c.Known() {
			seen[c] = true
		}
	}
	out := make([]Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of identifiers in the table.
func (e *Encoder) Len() int {
	return len(e.table)
}

// Unmapped returns how many table rows named a category outside the scheme.
func (e *Encoder) Unmapped() int {
	return e.unmapped
}

// NormalizeID canonicalizes an annotation identifier so that "phrog_12",
// "PHROG_12" and "12" share one key. The absence marker normalizes to "".
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if strings.EqualFold(id, NoAnnotation) {
		return ""
	}
	if len(id) > 6 && strings.EqualFold(id[:6], "phrog_") {
		id = id[6:]
	}
	return id
}

// annotationRow is one line of the PHROG annotation table
// (phrog, color, annot, category).
type annotationRow struct {
	Phrog    string `csv:"phrog"`
	Category string `csv:"category"`
}

// LoadAnnotationTable loads a tab-separated PHROG annotation table.
func LoadAnnotationTable(path string) (*Encoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open annotation table: %w", err)
	}
	defer f.Close()

	return ParseAnnotationTable(f)
}

// ParseAnnotationTable parses annotation table content. Rows whose category
// name is not part of the scheme map to Unknown and are counted in Unmapped.
func ParseAnnotationTable(r io.Reader) (*Encoder, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var rows []*annotationRow
	if err := gocsv.UnmarshalCSV(cr, &rows); err != nil {
		return nil, fmt.Errorf("parse annotation table: %w", err)
	}

	e := &Encoder{table: make(map[string]Category, len(rows))}
	for i, row := range rows {
		id := NormalizeID(row.Phrog)
		if id == "" {
			return nil, fmt.Errorf("annotation table row %d: empty phrog identifier", i+2)
		}
		c, ok := FromName(row.Category)
		if !ok || !c.Known() {
			if !strings.EqualFold(strings.TrimSpace(row.Category), phrogNames[Unknown]) {
				e.unmapped++
			}
			c = Unknown
		}
		e.table[id] = c
	}
	return e, nil
}
