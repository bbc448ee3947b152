package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/model"
)

func writeCSV(w io.Writer, leads []model.Lead, fields []string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Headers(fields)); err != nil {
		return eris.Wrap(err, "csv export: write header")
	}

	row := make([]string, len(fields))
	for _, l := range leads {
		for i, f := range fields {
			row[i] = Value(l, f)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "csv export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "csv export: flush")
}
