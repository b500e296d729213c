package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tier-ranker/internal/model"
)

// ExportColumns is the header row shared by the CSV and XLSX exports.
var ExportColumns = []string{
	"Product ID",
	"Product Name",
	"Timestamp",
	"Field",
	"Old Value",
	"New Value",
	"Delta",
	"Source",
	"User ID",
	"Reason",
	"Confidence",
}

// Rows flattens entries into one row per changed field per event.
func Rows(entries []model.RankChangeHistory) [][]string {
	var rows [][]string
	for _, e := range entries {
		for _, c := range e.Changes {
			rows = append(rows, []string{
				e.ProductID,
				e.ProductName,
				e.Timestamp.UTC().Format(time.RFC3339),
				string(c.Field),
				string(c.OldValue),
				string(c.NewValue),
				strconv.Itoa(c.Delta),
				string(e.Source),
				e.UserID,
				e.Reason,
				fmt.Sprintf("%.2f", e.Confidence),
			})
		}
	}
	return rows
}

// ExportCSV writes entries as CSV to w.
func ExportCSV(w io.Writer, entries []model.RankChangeHistory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return eris.Wrap(err, "history: write csv header")
	}
	if err := cw.WriteAll(Rows(entries)); err != nil {
		return eris.Wrap(err, "history: write csv rows")
	}
	return nil
}

// ExportXLSX writes entries as a single-sheet workbook to w.
func ExportXLSX(w io.Writer, entries []model.RankChangeHistory) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("History")
	if err != nil {
		return eris.Wrap(err, "history: add sheet")
	}

	addRow(sheet, ExportColumns)
	for _, r := range Rows(entries) {
		addRow(sheet, r)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "history: write xlsx")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
