// Package category defines the gene-function category scheme shared by
// training-data construction and prediction.
package category

import "strings"

// Category is a gene-function class. The zero value is Unknown.
type Category int

// Categories in one-hot column order. Unknown is a real absence of annotation,
// Masked is the artificial hole used for supervision and never a model target.
const (
	Unknown Category = iota
	Integration
	Connector
	HeadPackaging
	Metabolism
	Lysis
	Moron
	Other
	Tail
	TranscriptionRegulation
	Masked
)

const (
	// NumCategories is the width of the one-hot category encoding.
	NumCategories = int(Masked) + 1
	// NumClasses is the width of a model's score vector (Unknown..TranscriptionRegulation).
	NumClasses = int(Masked)
)

// PHROG category names in scheme order.
var phrogNames = [NumCategories]string{
	"unknown function",
	"integration and excision",
	"connector",
	"head and packaging",
	"DNA, RNA and nucleotide metabolism",
	"lysis",
	"moron, auxiliary metabolic gene and host takeover",
	"other",
	"tail",
	"transcription regulation",
	"masked",
}

// String returns the PHROG name of the category.
func (c Category) String() string {
	if !c.Valid() {
		return "invalid"
	}
	return phrogNames[c]
}

// Valid reports whether c is inside the closed scheme, Masked included.
func (c Category) Valid() bool {
	return c >= Unknown && c <= Masked
}

// Known reports whether c is one of the named biological categories.
func (c Category) Known() bool {
	return c > Unknown && c < Masked
}

// Named returns the named biological categories in scheme order.
func Named() []Category {
	out := make([]Category, 0, NumClasses-1)
	for c := Integration; c < Masked; c++ {
		out = append(out, c)
	}
	return out
}

// FromName resolves a PHROG category name, case-insensitively.
func FromName(name string) (Category, bool) {
	name = strings.TrimSpace(name)
	for i, n := range phrogNames {
		if strings.EqualFold(n, name) {
			return Category(i), true
		}
	}
	return Unknown, false
}
