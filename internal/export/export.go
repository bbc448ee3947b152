// Package export writes lead collections as CSV, XLSX or PDF documents.
package export

import (
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/lead-harvest/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ErrNoFields is returned when an export selects no columns.
var ErrNoFields = eris.New("export: select at least one field to export")

// AllFields lists the exportable lead fields in column order.
var AllFields = []string{"id", "name", "jobTitle", "company", "email", "phone", "priority", "source", "aiScore"}

// DefaultFields are the columns selected when none are requested.
var DefaultFields = []string{"name", "jobTitle", "company", "email", "phone", "priority", "source"}

// Options selects what an export contains.
type Options struct {
	Format   Format
	Fields   []string
	Priority string // "", "all" or a priority tier
}

// ParseFormat normalises s to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	case "excel":
		return FormatXLSX, nil
	}
	return "", eris.Errorf("export: unsupported format %q", s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// FileName returns the download name for an export taken at t,
// e.g. leads-export-2024-03-01.csv.
func FileName(f Format, t time.Time) string {
	return "leads-export-" + t.UTC().Format("2006-01-02") + "." + string(f)
}

// ParseFields splits a comma-separated field list and checks every entry.
// An empty list yields DefaultFields.
func ParseFields(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return slices.Clone(DefaultFields), nil
	}
	var fields []string
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !slices.Contains(AllFields, f) {
			return nil, eris.Errorf("export: unknown field %q", f)
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	return fields, nil
}

// Filter returns the leads matching priority. "" and "all" keep everything.
func Filter(leads []model.Lead, priority string) []model.Lead {
	if priority == "" || priority == "all" {
		return leads
	}
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if string(l.Priority) == priority {
			out = append(out, l)
		}
	}
	return out
}

var titleCaser = cases.Title(language.English)

// Header turns a camelCase field name into a column header:
// jobTitle becomes "Job Title".
func Header(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return titleCaser.String(b.String())
}

// Headers maps Header over fields.
func Headers(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = Header(f)
	}
	return out
}

// Value returns the string form of one lead field. Missing values are "".
func Value(l model.Lead, field string) string {
	switch field {
	case "id":
		return l.ID
	case "name":
		return l.Name
	case "jobTitle":
		return l.JobTitle
	case "company":
		return l.Company
	case "email":
		return l.Email
	case "phone":
		return l.Phone
	case "priority":
		return string(l.Priority)
	case "source":
		return l.Source
	case "aiScore":
		if l.AIScore == nil {
			return ""
		}
		return strconv.Itoa(*l.AIScore)
	}
	return ""
}

// Write filters leads by opts.Priority and writes them to w in opts.Format.
// It returns the number of leads written.
func Write(w io.Writer, leads []model.Lead, opts Options) (int, error) {
	fields := opts.Fields
	if fields == nil {
		fields = DefaultFields
	}
	if len(fields) == 0 {
		return 0, ErrNoFields
	}
	rows := Filter(leads, opts.Priority)

	var err error
	switch opts.Format {
	case FormatCSV, "":
		err = writeCSV(w, rows, fields)
	case FormatXLSX:
		err = writeXLSX(w, rows, fields)
	case FormatPDF:
		err = writePDF(w, rows, fields)
	default:
		return 0, eris.Errorf("export: unsupported format %q", opts.Format)
	}
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
