package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-harvest/internal/model"
)

const headerFill = "FFE0E0E0"

func headerStyle() *xlsx.Style {
	style := xlsx.NewStyle()
	style.Font.Bold = true
	style.Fill = *xlsx.NewFill("solid", headerFill, headerFill)
	style.ApplyFont = true
	style.ApplyFill = true
	return style
}

func writeXLSX(w io.Writer, leads []model.Lead, fields []string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "xlsx export: add sheet")
	}

	style := headerStyle()
	header := sheet.AddRow()
	for _, h := range Headers(fields) {
		cell := header.AddCell()
		cell.SetString(h)
		cell.SetStyle(style)
	}

	for _, l := range leads {
		row := sheet.AddRow()
		for _, field := range fields {
			cell := row.AddCell()
			if field == "aiScore" && l.AIScore != nil {
				cell.SetInt(*l.AIScore)
				continue
			}
			cell.SetString(Value(l, field))
		}
	}

	return eris.Wrap(f.Write(w), "xlsx export: write")
}
