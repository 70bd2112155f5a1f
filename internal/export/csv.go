package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// utf8BOM lets spreadsheet programs detect the encoding of pilot names.
const utf8BOM = "\ufeff"

func WriteStandingsCSV(w io.Writer, sheet Sheet) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(sheet.Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, 0, len(sheet.Header))
	for _, row := range sheet.Rows {
		record = record[:0]
		for _, cell := range row {
			if cell == nil {
				record = append(record, "")
				continue
			}
			record = append(record, fmt.Sprint(cell))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
