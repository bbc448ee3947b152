// Package fetcher reads lead batches from uploaded CSV and XLSX files.
package fetcher

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/merge"
	"github.com/sells-group/lead-harvest/internal/model"
)

// Format identifies an import file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat maps a file name to its Format by extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(name))
}

// RowError describes one input row that could not become a lead. Row is
// 1-based and counts the header.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Result is a parsed import.
type Result struct {
	Leads   []model.Lead
	Skipped []RowError
	// Duplicates counts rows dropped because an earlier row in the same file
	// had the same name and company.
	Duplicates int
}

// Options configures an import.
type Options struct {
	CSV  CSVOptions
	XLSX XLSXOptions
	// Source fills leads whose row has no source column value.
	Source string
}

// ReadLeads parses r as format.
func ReadLeads(ctx context.Context, r io.Reader, format Format, opts Options) (*Result, error) {
	switch format {
	case FormatCSV:
		return ReadCSVLeads(ctx, r, opts)
	case FormatXLSX:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: read xlsx upload")
		}
		return ReadXLSXLeads(ctx, data, opts)
	}
	return nil, eris.Errorf("fetcher: unsupported format %q", format)
}

// leadRow is the column layout accepted on import. Column names are matched
// after NormalizeHeader.
type leadRow struct {
	ID       string `csv:"id"`
	Name     string `csv:"name"`
	JobTitle string `csv:"jobTitle"`
	Company  string `csv:"company"`
	Email    string `csv:"email"`
	Phone    string `csv:"phone"`
	Priority string `csv:"priority"`
	Source   string `csv:"source"`
	AIScore  string `csv:"aiScore"`
}

var headerAliases = map[string]string{
	"id":           "id",
	"name":         "name",
	"fullname":     "name",
	"jobtitle":     "jobTitle",
	"title":        "jobTitle",
	"position":     "jobTitle",
	"company":      "company",
	"companyname":  "company",
	"organization": "company",
	"email":        "email",
	"emailaddress": "email",
	"phone":        "phone",
	"phonenumber":  "phone",
	"priority":     "priority",
	"source":       "source",
	"aiscore":      "aiScore",
	"score":        "aiScore",
}

// NormalizeHeader maps a column title such as "Job Title", "job_title" or
// "jobTitle" to the import column name. Unknown titles are returned
// unchanged and ignored by the decoder.
func NormalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if canon, ok := headerAliases[b.String()]; ok {
		return canon
	}
	return h
}

// rowReader is the record source shared by the CSV and XLSX paths.
type rowReader interface {
	Read() ([]string, error)
}

func decodeLeads(ctx context.Context, rr rowReader, opts Options) (*Result, error) {
	header, err := rr.Read()
	if err == io.EOF {
		return &Result{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read header")
	}
	normalized := make([]string, len(header))
	hasName := false
	for i, h := range header {
		normalized[i] = NormalizeHeader(h)
		hasName = hasName || normalized[i] == "name"
	}
	if !hasName {
		return nil, eris.New("fetcher: header has no name column")
	}

	dec, err := csvutil.NewDecoder(rr, normalized...)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create decoder")
	}

	res := &Result{}
	for row := 2; ; row++ {
		if ctx.Err() != nil {
			return res, eris.Wrap(ctx.Err(), "fetcher: context cancelled")
		}
		var rec leadRow
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return res, eris.Wrapf(err, "fetcher: decode row %d", row)
		}
		lead, reason := rec.toLead(opts.Source)
		if reason != "" {
			res.Skipped = append(res.Skipped, RowError{Row: row, Reason: reason})
			continue
		}
		res.Leads = append(res.Leads, lead)
	}
	n := len(res.Leads)
	res.Leads = merge.Unique(res.Leads)
	res.Duplicates = n - len(res.Leads)
	return res, nil
}

func (r leadRow) toLead(defaultSource string) (model.Lead, string) {
	r.Name = strings.TrimSpace(r.Name)
	r.Company = strings.TrimSpace(r.Company)
	if r.Name == "" {
		return model.Lead{}, "name is required"
	}
	if r.Company == "" {
		return model.Lead{}, "company is required"
	}

	lead := model.Lead{
		ID:       strings.TrimSpace(r.ID),
		Name:     r.Name,
		JobTitle: strings.TrimSpace(r.JobTitle),
		Company:  r.Company,
		Email:    blankNA(r.Email),
		Phone:    blankNA(r.Phone),
		Priority: model.PriorityLow,
		Source:   strings.TrimSpace(r.Source),
	}
	if lead.Source == "" {
		lead.Source = defaultSource
	}
	if p := strings.ToLower(strings.TrimSpace(r.Priority)); p != "" {
		parsed, ok := model.ParsePriority(p)
		if !ok {
			return model.Lead{}, "unknown priority " + strconv.Quote(r.Priority)
		}
		lead.Priority = parsed
	}
	if s := strings.TrimSpace(r.AIScore); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return model.Lead{}, "aiScore is not a number"
		}
		lead.AIScore = model.IntPtr(n)
	}
	return lead, ""
}

// blankNA treats the export placeholder "N/A" as an absent value.
func blankNA(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "N/A") {
		return ""
	}
	return s
}
