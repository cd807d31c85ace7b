// Package sheetio moves workbooks between xlsx files and in-memory
// collections. The first row of every sheet supplies column names; data
// cells are normalized so numeric-looking text loads as numbers and empty
// cells load as blanks.
package sheetio

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/javajack/sheetops"
)

// Load reads every sheet of an xlsx file into a single-file collection.
// When fileID is empty a fresh UUID is assigned.
func Load(path, fileID string) (*sheetops.FileCollection, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()
	return loadWorkbook(f, filepath.Base(path), fileID)
}

// LoadReader reads an xlsx workbook from a stream. filename is kept as the
// display name on the loaded file.
func LoadReader(r io.Reader, filename, fileID string) (*sheetops.FileCollection, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", filename, err)
	}
	defer f.Close()
	return loadWorkbook(f, filename, fileID)
}

func loadWorkbook(f *excelize.File, filename, fileID string) (*sheetops.FileCollection, error) {
	if fileID == "" {
		fileID = uuid.NewString()
	}

	file := sheetops.NewExcelFile(fileID, filename)
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheetName, err)
		}
		table, err := tableFromRows(sheetName, rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		file.AddSheet(table)
	}

	collection := sheetops.NewFileCollection()
	collection.AddFile(file)
	return collection, nil
}

func tableFromRows(name string, rows [][]string) (*sheetops.Table, error) {
	if len(rows) == 0 {
		return sheetops.NewTable(name), nil
	}

	// Header cells name the columns; unnamed trailing columns are dropped.
	var headers []string
	for _, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			break
		}
		headers = append(headers, h)
	}

	table := sheetops.NewTable(name, headers...)
	for _, row := range rows[1:] {
		record := make([]sheetops.Value, len(headers))
		for i := range headers {
			if i < len(row) {
				record[i] = parseCell(row[i])
			}
		}
		if err := table.AppendRow(record); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// parseCell normalizes one cell string: empty → blank, numeric → Number,
// TRUE/FALSE → Boolean, known error codes pass through, everything else is
// text.
func parseCell(raw string) sheetops.Value {
	if raw == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return sheetops.Number(f)
	}
	switch strings.ToUpper(raw) {
	case "TRUE":
		return sheetops.Boolean(true)
	case "FALSE":
		return sheetops.Boolean(false)
	}
	switch raw {
	case string(sheetops.ErrNA), string(sheetops.ErrDiv0), string(sheetops.ErrValue),
		string(sheetops.ErrRef), string(sheetops.ErrGeneric):
		return sheetops.CellError(raw)
	}
	return sheetops.Text(raw)
}

// Export writes every sheet of every file into one workbook. Sheets are
// named "<filename stem>_<sheet>", sanitized and truncated to Excel's
// 31-character limit.
func Export(collection *sheetops.FileCollection) ([]byte, error) {
	f, err := buildWorkbook(collection, true)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFile writes one file's sheets into a workbook, keeping the original
// sheet names.
func ExportFile(collection *sheetops.FileCollection, fileID string) ([]byte, error) {
	file, err := collection.File(fileID)
	if err != nil {
		return nil, err
	}
	single := sheetops.NewFileCollection()
	single.AddFile(file)

	f, err := buildWorkbook(single, false)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile exports the whole collection to an xlsx file on disk.
func WriteFile(collection *sheetops.FileCollection, path string) error {
	f, err := buildWorkbook(collection, true)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func buildWorkbook(collection *sheetops.FileCollection, prefixStem bool) (*excelize.File, error) {
	f := excelize.NewFile()
	first := true

	for _, fileID := range collection.FileIDs() {
		file, err := collection.File(fileID)
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))

		for _, sheetName := range file.SheetNames() {
			table, err := file.Sheet(sheetName)
			if err != nil {
				return nil, err
			}

			exportName := sheetName
			if prefixStem {
				exportName = stem + "_" + sheetName
			}
			exportName = sheetops.SafeSheetName(exportName)

			if first {
				// Rename the default sheet instead of leaving it empty.
				if err := f.SetSheetName(f.GetSheetName(0), exportName); err != nil {
					return nil, err
				}
				first = false
			} else if _, err := f.NewSheet(exportName); err != nil {
				return nil, err
			}

			if err := writeTable(f, exportName, table); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func writeTable(f *excelize.File, sheetName string, table *sheetops.Table) error {
	columns := table.Columns()
	header := make([]any, len(columns))
	for i, name := range columns {
		header[i] = name
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}

	for row := 0; row < table.RowCount(); row++ {
		record := make([]any, len(columns))
		for i, name := range columns {
			v, err := table.Cell(row, name)
			if err != nil {
				return err
			}
			record[i] = sheetops.ToAny(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, row+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &record); err != nil {
			return err
		}
	}
	return nil
}
