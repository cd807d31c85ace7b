package sheetops

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	o := defaultOptions()
	assert.NotNil(t, o.logger)
	assert.Equal(t, 0.5, o.numericSortThreshold)
	assert.Equal(t, "{row}", o.rowPlaceholder)
	assert.Equal(t, 3, o.sampleCount)
}

func TestWithLogger_NilKeepsDefault(t *testing.T) {
	o := defaultOptions()
	WithLogger(nil)(o)
	assert.NotNil(t, o.logger)
}

func TestWithLogger_ExecutorLogsOperations(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	collection := salesCollection(t)
	operations, errs := ParseOperations(`{"operations": [
		{"type": "aggregate", "function": "SUM", "file_id": "orders", "table": "Orders", "column": "amount", "as": "total"}
	]}`)
	require.Empty(t, errs)

	NewExecutor(collection, WithLogger(logger)).Execute(operations)
	assert.Contains(t, buf.String(), "operation executed")
}

func TestWithRowPlaceholder(t *testing.T) {
	collection := salesCollection(t)
	operations, errs := ParseOperations(`{"operations": [
		{"type": "add_column", "file_id": "orders", "table": "Orders", "name": "d",
		 "formula": {"op": "*", "left": {"col": "amount"}, "right": {"value": 2}}}
	]}`)
	require.Empty(t, errs)

	records := NewFormulaGenerator(collection, WithRowPlaceholder("2")).Generate(operations)
	require.Len(t, records, 1)
	assert.Equal(t, "=(C2*2)", records[0].Formula)
}

func TestWithSampleCount(t *testing.T) {
	collection := salesCollection(t)

	// Orders has four data rows; the default keeps three samples per column.
	schemas := Describe(collection)
	amount := schemas["orders"]["Orders"][2]
	assert.Equal(t, "amount", amount.Name)
	assert.Len(t, amount.Samples, 3)

	schemas = Describe(collection, WithSampleCount(2))
	assert.Len(t, schemas["orders"]["Orders"][2].Samples, 2)

	// A negative count is ignored and the default stands.
	schemas = Describe(collection, WithSampleCount(-1))
	assert.Len(t, schemas["orders"]["Orders"][2].Samples, 3)
}

func TestWithNumericSortThreshold(t *testing.T) {
	table := NewTable("S", "v")
	mustAppend(t, table,
		[]Value{Number(10)},
		[]Value{Text("x")},
		[]Value{Number(2)},
	)
	file := NewExcelFile("f1", "s.xlsx")
	file.AddSheet(table)
	collection := NewFileCollection()
	collection.AddFile(file)

	operations, errs := ParseOperations(`{"operations": [
		{"type": "sort", "file_id": "f1", "table": "S", "by": [{"column": "v"}]}
	]}`)
	require.Empty(t, errs)

	// Two of three values parse as numbers: above the default threshold the
	// column sorts numerically with the text value last.
	executor := NewExecutor(collection)
	executor.Execute(operations)
	out, err := executor.Collection().Table("f1", "S")
	require.NoError(t, err)
	col, err := out.Column("v")
	require.NoError(t, err)
	assert.Equal(t, Range{Number(2), Number(10), Text("x")}, col)

	// Raising the threshold forces a string sort instead.
	executor = NewExecutor(collection, WithNumericSortThreshold(0.9))
	executor.Execute(operations)
	out, err = executor.Collection().Table("f1", "S")
	require.NoError(t, err)
	col, err = out.Column("v")
	require.NoError(t, err)
	assert.Equal(t, Range{Number(10), Number(2), Text("x")}, col)
}
