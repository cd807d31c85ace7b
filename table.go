package sheetops

import (
	"fmt"
)

// Table is a named sheet of equal-length columns. Columns keep their insertion
// order; every column has exactly RowCount values.
type Table struct {
	name    string
	columns []string
	data    map[string][]Value
}

// NewTable creates an empty table with the given column headers and zero rows.
func NewTable(name string, columns ...string) *Table {
	t := &Table{name: name, data: make(map[string][]Value, len(columns))}
	for _, col := range columns {
		if _, ok := t.data[col]; ok {
			continue
		}
		t.columns = append(t.columns, col)
		t.data[col] = nil
	}
	return t
}

// Name returns the sheet name.
func (t *Table) Name() string { return t.name }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.data[name]
	return ok
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	if len(t.columns) == 0 {
		return 0
	}
	return len(t.data[t.columns[0]])
}

// Column returns the values of a column.
func (t *Table) Column(name string) (Range, error) {
	values, ok := t.data[name]
	if !ok {
		return nil, fmt.Errorf("table %q has no column %q", t.name, name)
	}
	out := make(Range, len(values))
	copy(out, values)
	return out, nil
}

// ColumnIndex returns the 0-based position of a column.
func (t *Table) ColumnIndex(name string) (int, error) {
	for i, col := range t.columns {
		if col == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("table %q has no column %q", t.name, name)
}

// ColumnLetter returns the Excel column letter for a column name.
func (t *Table) ColumnLetter(name string) (string, error) {
	idx, err := t.ColumnIndex(name)
	if err != nil {
		return "", err
	}
	return ColToName(idx), nil
}

// Cell returns the value at (row, column) without copying the column.
func (t *Table) Cell(row int, column string) (Value, error) {
	values, ok := t.data[column]
	if !ok {
		return nil, fmt.Errorf("table %q has no column %q", t.name, column)
	}
	if row < 0 || row >= len(values) {
		return nil, fmt.Errorf("table %q: row %d out of range", t.name, row)
	}
	return values[row], nil
}

// AddColumn appends a new column. The column must not already exist and its
// length must match the table's row count (the first column of an empty table
// sets the row count).
func (t *Table) AddColumn(name string, values []Value) error {
	if _, ok := t.data[name]; ok {
		return fmt.Errorf("column %q already exists in table %q; use UpdateColumn to overwrite", name, t.name)
	}
	if len(t.columns) > 0 && len(values) != t.RowCount() {
		return fmt.Errorf("column %q has %d values, table %q has %d rows", name, len(values), t.name, t.RowCount())
	}
	stored := make([]Value, len(values))
	copy(stored, values)
	t.columns = append(t.columns, name)
	t.data[name] = stored
	return nil
}

// UpdateColumn replaces an existing column in place. The column must already
// exist and the replacement must match the table's row count.
func (t *Table) UpdateColumn(name string, values []Value) error {
	if _, ok := t.data[name]; !ok {
		return fmt.Errorf("column %q does not exist in table %q; use AddColumn to create it", name, t.name)
	}
	if len(values) != t.RowCount() {
		return fmt.Errorf("column %q has %d values, table %q has %d rows", name, len(values), t.name, t.RowCount())
	}
	stored := make([]Value, len(values))
	copy(stored, values)
	t.data[name] = stored
	return nil
}

// AppendRow appends one row of values in column order.
func (t *Table) AppendRow(row []Value) error {
	if len(row) != len(t.columns) {
		return fmt.Errorf("row has %d values, table %q has %d columns", len(row), t.name, len(t.columns))
	}
	for i, col := range t.columns {
		t.data[col] = append(t.data[col], row[i])
	}
	return nil
}

// SelectRows builds a new table containing the given rows, in order.
func (t *Table) SelectRows(name string, rows []int) *Table {
	out := NewTable(name, t.columns...)
	for _, col := range t.columns {
		src := t.data[col]
		values := make([]Value, 0, len(rows))
		for _, r := range rows {
			values = append(values, src[r])
		}
		out.data[col] = values
	}
	return out
}

// Clone returns a deep copy of the table, optionally renamed.
func (t *Table) Clone(name string) *Table {
	if name == "" {
		name = t.name
	}
	out := NewTable(name, t.columns...)
	for _, col := range t.columns {
		values := make([]Value, len(t.data[col]))
		copy(values, t.data[col])
		out.data[col] = values
	}
	return out
}

func (t *Table) String() string {
	return fmt.Sprintf("Table(%q, %d columns, %d rows)", t.name, len(t.columns), t.RowCount())
}

// ExcelFile groups the sheets of one workbook under an opaque file identifier
// and a display filename.
type ExcelFile struct {
	FileID   string
	Filename string

	sheetNames []string
	sheets     map[string]*Table
}

// NewExcelFile creates an empty file.
func NewExcelFile(fileID, filename string) *ExcelFile {
	return &ExcelFile{FileID: fileID, Filename: filename, sheets: make(map[string]*Table)}
}

// AddSheet adds or replaces a sheet keyed by the table's name.
func (f *ExcelFile) AddSheet(t *Table) {
	if _, ok := f.sheets[t.Name()]; !ok {
		f.sheetNames = append(f.sheetNames, t.Name())
	}
	f.sheets[t.Name()] = t
}

// Sheet returns the named sheet.
func (f *ExcelFile) Sheet(name string) (*Table, error) {
	t, ok := f.sheets[name]
	if !ok {
		return nil, fmt.Errorf("sheet %q does not exist in file %q", name, f.Filename)
	}
	return t, nil
}

// HasSheet reports whether the file has a sheet with the given name.
func (f *ExcelFile) HasSheet(name string) bool {
	_, ok := f.sheets[name]
	return ok
}

// SheetNames returns all sheet names in insertion order.
func (f *ExcelFile) SheetNames() []string {
	out := make([]string, len(f.sheetNames))
	copy(out, f.sheetNames)
	return out
}

// Clone returns a deep copy of the file.
func (f *ExcelFile) Clone() *ExcelFile {
	out := NewExcelFile(f.FileID, f.Filename)
	for _, name := range f.sheetNames {
		out.AddSheet(f.sheets[name].Clone(""))
	}
	return out
}

// ColumnSchema describes one column for schema consumers: a detected value
// type ("number", "text", "boolean", "mixed") and up to a few non-blank sample
// values.
type ColumnSchema struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Samples []Value `json:"samples"`
}

// FileCollection is the two-level (file → sheet → table) workbook store one
// execution run operates on. A collection is owned by exactly one run; it is
// not safe for concurrent use.
type FileCollection struct {
	fileIDs []string
	files   map[string]*ExcelFile
}

// NewFileCollection creates an empty collection.
func NewFileCollection() *FileCollection {
	return &FileCollection{files: make(map[string]*ExcelFile)}
}

// AddFile adds or replaces a file keyed by its FileID.
func (fc *FileCollection) AddFile(f *ExcelFile) {
	if _, ok := fc.files[f.FileID]; !ok {
		fc.fileIDs = append(fc.fileIDs, f.FileID)
	}
	fc.files[f.FileID] = f
}

// File returns the file with the given id.
func (fc *FileCollection) File(fileID string) (*ExcelFile, error) {
	f, ok := fc.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %q does not exist", fileID)
	}
	return f, nil
}

// HasFile reports whether the collection has a file with the given id.
func (fc *FileCollection) HasFile(fileID string) bool {
	_, ok := fc.files[fileID]
	return ok
}

// Table resolves the two-level address (file id, sheet name).
func (fc *FileCollection) Table(fileID, sheet string) (*Table, error) {
	f, err := fc.File(fileID)
	if err != nil {
		return nil, err
	}
	return f.Sheet(sheet)
}

// FileIDs returns all file ids in insertion order.
func (fc *FileCollection) FileIDs() []string {
	out := make([]string, len(fc.fileIDs))
	copy(out, fc.fileIDs)
	return out
}

// Clone returns a deep copy of the collection. The executor clones the input
// collection so each run owns a private working copy.
func (fc *FileCollection) Clone() *FileCollection {
	out := NewFileCollection()
	for _, id := range fc.fileIDs {
		out.AddFile(fc.files[id].Clone())
	}
	return out
}

// ColumnMapping returns column-name → Excel-letter maps for every sheet,
// keyed by file id then sheet name. The formula generator uses this to render
// cell references.
func (fc *FileCollection) ColumnMapping() map[string]map[string]map[string]string {
	mapping := make(map[string]map[string]map[string]string, len(fc.fileIDs))
	for _, id := range fc.fileIDs {
		f := fc.files[id]
		mapping[id] = make(map[string]map[string]string, len(f.sheetNames))
		for _, sheet := range f.sheetNames {
			cols := f.sheets[sheet].Columns()
			m := make(map[string]string, len(cols))
			for i, col := range cols {
				m[col] = ColToName(i)
			}
			mapping[id][sheet] = m
		}
	}
	return mapping
}

// Schemas returns per-column type and sample information for every sheet,
// keyed by file id then sheet name. sampleCount caps the samples per column.
func (fc *FileCollection) Schemas(sampleCount int) map[string]map[string][]ColumnSchema {
	schemas := make(map[string]map[string][]ColumnSchema, len(fc.fileIDs))
	for _, id := range fc.fileIDs {
		f := fc.files[id]
		schemas[id] = make(map[string][]ColumnSchema, len(f.sheetNames))
		for _, sheet := range f.sheetNames {
			t := f.sheets[sheet]
			cols := make([]ColumnSchema, 0, len(t.columns))
			for _, col := range t.columns {
				cols = append(cols, columnSchema(col, t.data[col], sampleCount))
			}
			schemas[id][sheet] = cols
		}
	}
	return schemas
}

// columnSchema detects a column's dominant type and collects sample values.
// Only the first 100 non-blank values are examined.
func columnSchema(name string, values []Value, sampleCount int) ColumnSchema {
	var numbers, texts, booleans, examined int
	var samples []Value

	for _, v := range values {
		if IsBlank(v) {
			continue
		}
		if len(samples) < sampleCount {
			samples = append(samples, v)
		}
		if examined < 100 {
			examined++
			switch v.(type) {
			case Number:
				numbers++
			case Boolean:
				booleans++
			default:
				texts++
			}
		}
	}

	typ := "text"
	total := numbers + texts + booleans
	switch {
	case total == 0:
		typ = "text"
	case booleans == total:
		typ = "boolean"
	case float64(numbers)/float64(total) > 0.8:
		typ = "number"
	case float64(texts)/float64(total) > 0.8:
		typ = "text"
	case numbers > 0 && texts > 0:
		typ = "mixed"
	}

	return ColumnSchema{Name: name, Type: typ, Samples: samples}
}
