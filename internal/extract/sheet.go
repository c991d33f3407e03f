package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// sheet is one rendered worksheet.
type sheet struct {
	name string
	rows [][]string
}

// renderSheets writes each sheet as CSV under a "# Sheet: <name>" header,
// separated by blank lines.
func renderSheets(sheets []sheet) (string, error) {
	parts := make([]string, 0, len(sheets))
	for _, s := range sheets {
		var buf bytes.Buffer
		buf.WriteString("# Sheet: ")
		buf.WriteString(s.name)
		buf.WriteByte('\n')

		w := csv.NewWriter(&buf)
		if err := w.WriteAll(s.rows); err != nil {
			return "", fmt.Errorf("render sheet %q: %w", s.name, err)
		}
		parts = append(parts, strings.TrimRight(buf.String(), "\n"))
	}
	return strings.Join(parts, "\n\n"), nil
}

func extractXLSX(data []byte, maxSheets int) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var sheets []sheet
	for _, name := range f.GetSheetList() {
		if len(sheets) == maxSheets {
			break
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheets = append(sheets, sheet{name: name, rows: rows})
	}
	if len(sheets) == 0 {
		return "", fmt.Errorf("xlsx has no sheets")
	}
	return renderSheets(sheets)
}

func extractXLS(data []byte, maxSheets int) (string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return "", fmt.Errorf("open xls: %w", err)
	}

	var sheets []sheet
	for i := 0; i < wb.NumSheets() && len(sheets) < maxSheets; i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		var rows [][]string
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := xlsRow(ws, r)
			if row == nil {
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, sheet{name: ws.Name, rows: rows})
	}
	if len(sheets) == 0 {
		return "", fmt.Errorf("xls has no sheets")
	}
	return renderSheets(sheets)
}

// xlsRow returns row r, or nil for a row the file never wrote.
// WorkSheet.Row panics on missing rows.
func xlsRow(ws *xls.WorkSheet, r int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(r)
}

// extractCSV validates the CSV and renders it as a single sheet.
func extractCSV(data []byte, name string) (string, error) {
	text, err := decodeText(data)
	if err != nil {
		return "", err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	return renderSheets([]sheet{{name: name, rows: rows}})
}

func sheetNameFromFile(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." || base == "/" {
		return "Sheet1"
	}
	return base
}
