// Package output provides prediction and metrics output formatters.
package output

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/predict"
)

// Gene status values in the prediction table.
const (
	StatusAnnotated  = "annotated"
	StatusPredicted  = "predicted"
	StatusUnresolved = "unresolved"
)

// TabWriter writes predictions in tab-delimited format, one row per gene.
type TabWriter struct {
	w       *bufio.Writer
	names   category.Names
	columns []string
}

// NewTabWriter creates a new tab-delimited writer. Category names come from
// names, or the defaults when nil.
func NewTabWriter(w io.Writer, names category.Names) *TabWriter {
	if names == nil {
		names = category.DefaultNames()
	}
	return &TabWriter{
		w:     bufio.NewWriter(w),
		names: names,
		columns: []string{
			"genome_id",
			"gene",
			"annotation",
			"strand",
			"start",
			"end",
			"category",
			"score",
			"status",
		},
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes every gene of g with its result. Genes without a model call
// keep their input category; unknown genes of a skipped genome carry the skip
// reason as their status.
func (tw *TabWriter) Write(g genome.Genome, r predict.Result) error {
	calls := make(map[int]predict.Call, len(r.Predicted))
	for _, c := range r.Predicted {
		calls[c.Position] = c
	}

	for i, gene := range g.Genes {
		cat := category.Unknown
		if i < len(r.Categories) {
			cat = r.Categories[i]
		}

		score := "-"
		status := StatusAnnotated
		if c, ok := calls[i]; ok {
			score = strconv.FormatFloat(c.Score, 'f', 4, 64)
			status = StatusUnresolved
			if c.Accepted {
				status = StatusPredicted
			}
		} else if cat == category.Unknown && r.Skip != "" {
			status = r.Skip
		}

		annotation := gene.Annotation
		if annotation == "" {
			annotation = "-"
		}
		strand := "+"
		if gene.Strand < 0 {
			strand = "-"
		}

		values := []string{
			g.ID,
			strconv.Itoa(i + 1),
			annotation,
			strand,
			strconv.FormatInt(gene.Start, 10),
			strconv.FormatInt(gene.End, 10),
			tw.names.Name(cat),
			score,
			status,
		}
		if _, err := tw.w.WriteString(strings.Join(values, "\t") + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}
