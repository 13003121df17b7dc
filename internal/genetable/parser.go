// Package genetable reads genomes from tab-separated gene tables.
//
// Each data row describes one gene in genomic order:
//
//	genome_id  annotation  strand  start  end
//
// Rows of one genome must be contiguous. A header row starting with
// "genome_id" and lines starting with '#' are skipped. Files may be gzipped.
package genetable

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/genome"
)

// Parser reads genomes one at a time from a gene table.
type Parser struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int

	pending *row
	seen    map[string]bool
}

type row struct {
	genomeID string
	gene     genome.Gene
}

// NewParser opens a gene table. Use "-" for stdin.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gene table: %w", err)
	}

	p := &Parser{file: file, seen: make(map[string]bool)}

	// Check for gzip magic bytes
	buf := make([]byte, 2)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, fmt.Errorf("read gene table: %w", err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek gene table: %w", err)
	}

	if n == 2 && buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = bufio.NewReader(file)
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader.
func NewParserFromReader(r io.Reader) *Parser {
	return &Parser{
		reader: bufio.NewReader(r),
		seen:   make(map[string]bool),
	}
}

// Next reads the next genome. Returns nil, nil when there are no more genomes.
// Gene categories are left unset; encode the genome before use.
func (p *Parser) Next() (*genome.Genome, error) {
	var g *genome.Genome
	if p.pending != nil {
		g = &genome.Genome{ID: p.pending.genomeID, Genes: []genome.Gene{p.pending.gene}}
		p.pending = nil
	}

	for {
		r, err := p.nextRow()
		if err != nil {
			return nil, err
		}
		if r == nil {
			return g, nil
		}

		if g == nil {
			if p.seen[r.genomeID] {
				return nil, p.errorf("genome %q appears in non-contiguous rows", r.genomeID)
			}
			p.seen[r.genomeID] = true
			g = &genome.Genome{ID: r.genomeID}
		}

		if r.genomeID != g.ID {
			if p.seen[r.genomeID] {
				return nil, p.errorf("genome %q appears in non-contiguous rows", r.genomeID)
			}
			p.seen[r.genomeID] = true
			p.pending = r
			return g, nil
		}
		g.Genes = append(g.Genes, r.gene)
	}
}

// nextRow reads the next data row, skipping blanks, comments and the header.
func (p *Parser) nextRow() (*row, error) {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read gene line: %w", err)
		}
		if line == "" && err == io.EOF {
			return nil, nil
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "genome_id\t") {
			if err == io.EOF {
				return nil, nil
			}
			continue
		}
		return p.parseLine(line)
	}
}

// parseLine parses a single gene row.
func (p *Parser) parseLine(line string) (*row, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 5 {
		return nil, p.errorf("expected 5 columns, found %d", len(fields))
	}
	if fields[0] == "" {
		return nil, p.errorf("empty genome identifier")
	}

	strand, err := parseStrand(fields[2])
	if err != nil {
		return nil, p.errorf("%v", err)
	}

	start, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, p.errorf("invalid start: %s", fields[3])
	}
	end, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, p.errorf("invalid end: %s", fields[4])
	}

	return &row{
		genomeID: fields[0],
		gene: genome.Gene{
			Annotation: fields[1],
			Strand:     strand,
			Start:      start,
			End:        end,
		},
	}, nil
}

func parseStrand(s string) (int8, error) {
	switch s {
	case "+", "1", "+1":
		return genome.Forward, nil
	case "-", "-1":
		return genome.Reverse, nil
	}
	return 0, fmt.Errorf("invalid strand: %s", s)
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf(format, args...)}
}

// ParseError represents an error during gene table parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gene table parse error at line %d: %s", e.Line, e.Message)
}

// ReadPool reads every genome from path and encodes it with enc.
func ReadPool(path string, enc *category.Encoder) (genome.Pool, error) {
	p, err := NewParser(path)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	return readAll(p, enc)
}

func readAll(p *Parser, enc *category.Encoder) (genome.Pool, error) {
	var pool genome.Pool
	for {
		g, err := p.Next()
		if err != nil {
			return nil, err
		}
		if g == nil {
			return pool, nil
		}
		pool = append(pool, g.Encode(enc))
	}
}
