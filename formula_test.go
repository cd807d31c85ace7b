package sheetops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateOne(t *testing.T, collection *FileCollection, jsonText string) FormulaRecord {
	t.Helper()
	operations, errs := ParseAndValidate(jsonText, collection)
	require.Empty(t, errs)
	records := NewFormulaGenerator(collection).Generate(operations)
	require.Len(t, records, 1)
	return records[0]
}

func TestFormulaGenerator_Aggregate(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "aggregate", "function": "SUM", "file_id": "orders", "table": "Orders", "column": "amount", "as": "total"}
	]}`)

	assert.Equal(t, "=SUM(Orders!C:C)", rec.Formula)
	assert.Equal(t, "total", rec.Variable)
	assert.Equal(t, "orders.xlsx", rec.Filename)
}

func TestFormulaGenerator_ConditionalAggregates(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "aggregate", "function": "SUMIF", "file_id": "orders", "table": "Orders",
		 "column": "amount", "condition_column": "region", "condition": "East", "as": "east"}
	]}`)
	assert.Equal(t, `=SUMIF(Orders!B:B, "East", Orders!C:C)`, rec.Formula)

	rec = generateOne(t, collection, `{"operations": [
		{"type": "aggregate", "function": "COUNTIF", "file_id": "orders", "table": "Orders",
		 "condition_column": "amount", "condition": ">100", "as": "big"}
	]}`)
	assert.Equal(t, `=COUNTIF(Orders!C:C, ">100")`, rec.Formula)
}

func TestFormulaGenerator_AddColumn(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "add_column", "file_id": "orders", "table": "Orders", "name": "discounted",
		 "formula": {"op": "*", "left": {"col": "amount"}, "right": {"value": 0.9}}}
	]}`)

	assert.Equal(t, "=(C{row}*0.9)", rec.Formula)
	assert.Equal(t, "discounted", rec.Column)
}

func TestFormulaGenerator_LegacyFormulaSkipped(t *testing.T) {
	collection := salesCollection(t)
	operations, errs := ParseAndValidate(`{"operations": [
		{"type": "add_column", "file_id": "orders", "table": "Orders", "name": "d", "formula": "amount * 0.9"},
		{"type": "aggregate", "function": "SUM", "file_id": "orders", "table": "Orders", "column": "amount", "as": "total"}
	]}`, collection)
	require.Empty(t, errs)

	records := NewFormulaGenerator(collection).Generate(operations)
	require.Len(t, records, 1)
	assert.Equal(t, "aggregate", records[0].Type)
}

func TestFormulaGenerator_IfAndConcat(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "add_column", "file_id": "orders", "table": "Orders", "name": "label",
		 "formula": {"func": "IF",
			"args": [
				{"op": ">", "left": {"col": "amount"}, "right": {"value": 100}},
				{"func": "CONCAT", "args": [{"col": "product"}, {"value": "!"}]},
				{"value": ""}
			]}}
	]}`)

	assert.Equal(t, `=IF((C{row}>100), A{row}&"!", "")`, rec.Formula)
}

func TestFormulaGenerator_Vlookup(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "add_column", "file_id": "orders", "table": "Orders", "name": "discount",
		 "formula": {"func": "VLOOKUP", "args": [
			{"col": "product"},
			{"value": "customers.Customers"},
			{"value": "name"},
			{"value": "discount"}
		 ]}}
	]}`)

	// name is column A, discount column B: offset 2 within Customers!A:B.
	assert.Equal(t, "=VLOOKUP(A{row}, Customers!A:B, 2, FALSE)", rec.Formula)
}

func TestFormulaGenerator_CrossRefAndVar(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "add_column", "file_id": "orders", "table": "Orders", "name": "x",
		 "formula": {"op": "&", "left": {"ref": "customers.Customers.name"}, "right": {"var": "total"}}}
	]}`)

	assert.Equal(t, "=(Customers!A:A&${total})", rec.Formula)
}

func TestFormulaGenerator_Filter(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "filter", "file_id": "orders", "table": "Orders",
		 "conditions": [
			{"column": "region", "op": "=", "value": "East"},
			{"column": "amount", "op": ">", "value": 100}
		 ],
		 "logic": "AND",
		 "output": {"type": "new_sheet", "name": "EastBig"}}
	]}`)

	assert.Equal(t, `=FILTER(Orders!A:C, (Orders!B:B="East") * (Orders!C:C>100))`, rec.Formula)
	assert.Equal(t, "EastBig", rec.OutputSheet)
	assert.Contains(t, rec.Note, "Excel 365")
}

func TestFormulaGenerator_FilterOrAndContains(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "filter", "file_id": "orders", "table": "Orders",
		 "conditions": [
			{"column": "product", "op": "contains", "value": "pl"},
			{"column": "amount", "op": "<", "value": 60}
		 ],
		 "logic": "OR",
		 "output": {"type": "in_place"}}
	]}`)

	assert.Equal(t, `=FILTER(Orders!A:C, ISNUMBER(SEARCH("pl",Orders!A:A)) + (Orders!C:C<60))`, rec.Formula)
}

func TestFormulaGenerator_Sort(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "sort", "file_id": "orders", "table": "Orders",
		 "by": [{"column": "amount", "order": "desc"}]}
	]}`)
	assert.Equal(t, "=SORT(Orders!A:C, 3, -1)", rec.Formula)

	rec = generateOne(t, collection, `{"operations": [
		{"type": "sort", "file_id": "orders", "table": "Orders",
		 "by": [{"column": "region"}, {"column": "amount", "order": "desc"}]}
	]}`)
	assert.Equal(t, "=SORT(Orders!A:C, {2, 3}, {1, -1})", rec.Formula)
}

func TestFormulaGenerator_GroupBy(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "group_by", "file_id": "orders", "table": "Orders",
		 "group_columns": ["region"],
		 "aggregations": [{"column": "amount", "function": "SUM", "as": "total"}],
		 "output": {"type": "new_sheet", "name": "Summary"}}
	]}`)

	assert.Equal(t, "=GROUPBY(Orders!B:B, Orders!C:C, SUM)", rec.Formula)
	assert.Contains(t, rec.Note, "GROUPBY")
}

func TestFormulaGenerator_Take(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "take", "file_id": "orders", "table": "Orders", "rows": -5}
	]}`)
	assert.Equal(t, "=TAKE(Orders!A:C, -5)", rec.Formula)
	assert.Contains(t, rec.Description, "last 5 rows")
}

func TestFormulaGenerator_CreateSheetHasNoFormula(t *testing.T) {
	collection := salesCollection(t)
	rec := generateOne(t, collection, `{"operations": [
		{"type": "create_sheet", "file_id": "orders", "name": "New"}
	]}`)
	assert.Contains(t, rec.Formula, "no formula equivalent")
}

func TestReport(t *testing.T) {
	records := []FormulaRecord{
		{Description: "sum amounts", Filename: "orders.xlsx", Sheet: "Orders", Variable: "total", Formula: "=SUM(Orders!C:C)"},
		{Description: "filter east", Filename: "orders.xlsx", Sheet: "Orders", OutputSheet: "East", Formula: "=FILTER(...)", Note: "requires Excel 365"},
	}
	out := Report(records)

	assert.Contains(t, out, "1. sum amounts")
	assert.Contains(t, out, "2. filter east")
	assert.Contains(t, out, "variable: total")
	assert.Contains(t, out, "output sheet: East")
	assert.Contains(t, out, "note: requires Excel 365")
}

func TestRun_EndToEnd(t *testing.T) {
	collection := salesCollection(t)
	result := Run(`{"operations": [
		{"type": "aggregate", "function": "SUM", "file_id": "orders", "table": "Orders", "column": "amount", "as": "total"},
		{"type": "add_column", "file_id": "orders", "table": "Orders", "name": "share",
		 "formula": {"op": "/", "left": {"col": "amount"}, "right": {"var": "total"}}}
	]}`, collection)

	assert.Empty(t, result.Errors)
	require.NotNil(t, result.Execution)
	assert.Equal(t, Number(650), result.Execution.Variables["total"])
	require.Len(t, result.Formulas, 2)
	// The generator runs against the working copy, so the added column has
	// a position.
	assert.Equal(t, "=(C{row}/${total})", result.Formulas[1].Formula)
	assert.NotEmpty(t, result.Report)

	table, err := result.Collection.Table("orders", "Orders")
	require.NoError(t, err)
	assert.True(t, table.HasColumn("share"))
}

func TestRun_ValidationRejectsBatch(t *testing.T) {
	collection := salesCollection(t)
	result := Run(`{"operations": [
		{"type": "aggregate", "function": "SUM", "file_id": "nope", "table": "Orders", "column": "amount", "as": "total"}
	]}`, collection)

	require.Len(t, result.Errors, 1)
	assert.Nil(t, result.Execution)
	assert.Nil(t, result.Collection)
}
