package export

import (
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/model"
)

const (
	pdfPageWidth = 277.0 // A4 landscape minus 10mm margins
	pdfRowHeight = 7.0
	pdfMissing   = "N/A"
)

func writePDF(w io.Writer, leads []model.Lead, fields []string) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Leads Export", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	colWidth := pdfPageWidth / float64(len(fields))
	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(240, 240, 240)
		pdf.SetDrawColor(191, 191, 191)
		for _, h := range Headers(fields) {
			pdf.CellFormat(colWidth, pdfRowHeight, tr(h), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	pdf.SetAutoPageBreak(true, 10)
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})
	header()

	for _, l := range leads {
		for _, f := range fields {
			v := Value(l, f)
			if v == "" && (f == "email" || f == "phone") {
				v = pdfMissing
			}
			pdf.CellFormat(colWidth, pdfRowHeight, fit(pdf, tr(v), colWidth-2), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return eris.Wrap(err, "pdf export: render")
	}
	return eris.Wrap(pdf.Output(w), "pdf export: write")
}

// fit truncates s with an ellipsis until it renders within width. s is
// already translated to the single-byte font encoding.
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
