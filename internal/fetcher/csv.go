package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
)

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// ReadCSVLeads decodes a CSV upload whose first row is a header.
func ReadCSVLeads(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	reader := csv.NewReader(r)
	if opts.CSV.Delimiter != 0 {
		reader.Comma = opts.CSV.Delimiter
	}
	if opts.CSV.Comment != 0 {
		reader.Comment = opts.CSV.Comment
	}
	reader.LazyQuotes = opts.CSV.LazyQuotes
	reader.TrimLeadingSpace = opts.CSV.TrimSpace

	var rr rowReader = reader
	if opts.CSV.TrimSpace {
		rr = &trimReader{r: reader}
	}
	return decodeLeads(ctx, rr, opts)
}

// trimReader trims surrounding whitespace from every field.
type trimReader struct {
	r rowReader
}

func (t *trimReader) Read() ([]string, error) {
	record, err := t.r.Read()
	for i, field := range record {
		record[i] = strings.TrimSpace(field)
	}
	return record, err
}
