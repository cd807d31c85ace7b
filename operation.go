package sheetops

import (
	"encoding/json"
	"fmt"
)

// OutputTarget says where a sheet-shaped result lands: a freshly created
// sheet or in place of the source sheet.
type OutputTarget struct {
	Type string `json:"type"`           // "new_sheet" or "in_place"
	Name string `json:"name,omitempty"` // set when Type is "new_sheet"
}

// Operation is one step of a program. Exactly nine variants exist; the
// parser admits nothing else.
type Operation interface {
	isOperation()
	// Type returns the wire-format type tag.
	Type() string
}

// AggregateOp reduces one column to a scalar and binds it to a variable.
type AggregateOp struct {
	Function        string
	FileID          string
	Table           string
	Column          string
	ConditionColumn string
	Condition       Value
	As              string
	Description     string
}

// AddColumnOp computes a new column row by row. Formula holds the decoded
// expression; Legacy holds an old-format string formula instead when the
// program used one.
type AddColumnOp struct {
	FileID      string
	Table       string
	Name        string
	Formula     Expr
	Legacy      string
	Description string
}

// UpdateColumnOp recomputes an existing column row by row.
type UpdateColumnOp struct {
	FileID      string
	Table       string
	Column      string
	Formula     Expr
	Legacy      string
	Description string
}

// ComputeOp evaluates a scalar expression over the variable context.
type ComputeOp struct {
	Expression  Expr
	Legacy      string
	As          string
	Description string
}

// FilterCondition is one predicate of a FilterOp.
type FilterCondition struct {
	Column string
	Op     string
	Value  Value
}

func (c FilterCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"column": c.Column,
		"op":     c.Op,
		"value":  ToAny(c.Value),
	})
}

// FilterOp keeps the rows matching its conditions.
type FilterOp struct {
	FileID      string
	Table       string
	Conditions  []FilterCondition
	Logic       string // "AND" or "OR"
	Output      OutputTarget
	Description string
}

// SortKey is one ordering rule of a SortOp.
type SortKey struct {
	Column string `json:"column"`
	Order  string `json:"order"` // "asc" or "desc"
}

// SortOp orders rows by one or more keys.
type SortOp struct {
	FileID      string
	Table       string
	By          []SortKey
	Output      OutputTarget
	Description string
}

// GroupAggregation is one output column of a GroupByOp.
type GroupAggregation struct {
	Column   string `json:"column"`
	Function string `json:"function"`
	As       string `json:"as"`
}

// GroupByOp groups rows by key columns and aggregates into a new sheet.
type GroupByOp struct {
	FileID       string
	Table        string
	GroupColumns []string
	Aggregations []GroupAggregation
	Output       OutputTarget
	Description  string
}

// SheetSource says how a CreateSheetOp seeds its new sheet.
type SheetSource struct {
	Type  string `json:"type"`            // "empty", "copy", or "reference"
	Table string `json:"table,omitempty"` // source sheet for copy/reference
}

// CreateSheetOp materializes a new sheet.
type CreateSheetOp struct {
	FileID      string
	Name        string
	Source      SheetSource
	Columns     []string
	Description string
}

// TakeOp keeps the first N rows (N > 0) or the last N rows (N < 0).
type TakeOp struct {
	FileID      string
	Table       string
	Rows        int
	Output      OutputTarget
	Description string
}

func (*AggregateOp) isOperation()    {}
func (*AddColumnOp) isOperation()    {}
func (*UpdateColumnOp) isOperation() {}
func (*ComputeOp) isOperation()      {}
func (*FilterOp) isOperation()       {}
func (*SortOp) isOperation()         {}
func (*GroupByOp) isOperation()      {}
func (*CreateSheetOp) isOperation()  {}
func (*TakeOp) isOperation()         {}

func (*AggregateOp) Type() string    { return "aggregate" }
func (*AddColumnOp) Type() string    { return "add_column" }
func (*UpdateColumnOp) Type() string { return "update_column" }
func (*ComputeOp) Type() string      { return "compute" }
func (*FilterOp) Type() string       { return "filter" }
func (*SortOp) Type() string         { return "sort" }
func (*GroupByOp) Type() string      { return "group_by" }
func (*CreateSheetOp) Type() string  { return "create_sheet" }
func (*TakeOp) Type() string         { return "take" }

// The wire shape of an operation mirrors the program schema, so parsing a
// document and re-serializing its operations is lossless (modulo the
// normalization the parser applies: uppercased function names, "replace"
// folded into "in_place", defaults filled in).

func addOptional(m map[string]any, field, value string) {
	if value != "" {
		m[field] = value
	}
}

// formulaJSON picks the wire form of a formula field: the legacy string when
// one was given, the expression otherwise.
func formulaJSON(formula Expr, legacy string) any {
	if legacy != "" {
		return legacy
	}
	return formula
}

func (o *AggregateOp) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":     o.Type(),
		"function": o.Function,
		"file_id":  o.FileID,
		"table":    o.Table,
		"as":       o.As,
	}
	addOptional(m, "column", o.Column)
	addOptional(m, "condition_column", o.ConditionColumn)
	if o.Condition != nil {
		m["condition"] = ToAny(o.Condition)
	}
	addOptional(m, "description", o.Description)
	return json.Marshal(m)
}

func (o *AddColumnOp) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":    o.Type(),
		"file_id": o.FileID,
		"table":   o.Table,
		"name":    o.Name,
		"formula": formulaJSON(o.Formula, o.Legacy),
	}
	addOptional(m, "description", o.Description)
	return json.Marshal(m)
}

func (o *UpdateColumnOp) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":    o.Type(),
		"file_id": o.FileID,
		"table":   o.Table,
		"column":  o.Column,
		"formula": formulaJSON(o.Formula, o.Legacy),
	}
	addOptional(m, "description", o.Description)
	return json.Marshal(m)
}

func (o *ComputeOp) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":       o.Type(),
		"expression": formulaJSON(o.Expression, o.Legacy),
		"as":         o.As,
	}
	addOptional(m, "description", o.Description)
	return json.Marshal(m)
}

func (o *FilterOp) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":       o.Type(),
		"file_id":    o.FileID,
		"table":      o.Table,
		"conditions": o.Conditions,
		"logic":      o.Logic,
		"output":     o.Output,
	}
	addOptional(m, "description", o.Description)
	return json.Marshal(m)
}

func (o *SortOp) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":    o.Type(),
		"file_id": o.FileID,
		"table":   o.Table,
		"by":      o.By,
		"output":  o.Output,
	}
	addOptional(m, "description", o.Description)
	return json.Marshal(m)
}

func (o *GroupByOp) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":          o.Type(),
		"file_id":       o.FileID,
		"table":         o.Table,
		"group_columns": o.GroupColumns,
		"aggregations":  o.Aggregations,
		"output":        o.Output,
	}
	addOptional(m, "description", o.Description)
	return json.Marshal(m)
}

func (o *CreateSheetOp) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":    o.Type(),
		"file_id": o.FileID,
		"name":    o.Name,
		"source":  o.Source,
	}
	if len(o.Columns) > 0 {
		m["columns"] = o.Columns
	}
	addOptional(m, "description", o.Description)
	return json.Marshal(m)
}

func (o *TakeOp) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":    o.Type(),
		"file_id": o.FileID,
		"table":   o.Table,
		"rows":    o.Rows,
		"output":  o.Output,
	}
	addOptional(m, "description", o.Description)
	return json.Marshal(m)
}

// SheetResult is a sheet-shaped operation output before it is applied to the
// working collection.
type SheetResult struct {
	FileID string
	Sheet  string
	Table  *Table
}

// OperationResult is the outcome of one operation. At most one of Value,
// Column, and Sheet is set; Err carries an operation-level failure without
// implying the batch failed.
type OperationResult struct {
	Operation Operation
	Value     Value
	Column    Range
	Sheet     *SheetResult
	Err       string
}

// ExecutionResult accumulates everything a run produced.
type ExecutionResult struct {
	Variables        map[string]Value
	NewColumns       map[string]map[string]map[string]Range
	UpdatedColumns   map[string]map[string]map[string]Range
	NewSheets        map[string]map[string]*Table
	Errors           []string
	OperationResults []OperationResult
}

// NewExecutionResult returns an empty result ready for accumulation.
func NewExecutionResult() *ExecutionResult {
	return &ExecutionResult{
		Variables:      make(map[string]Value),
		NewColumns:     make(map[string]map[string]map[string]Range),
		UpdatedColumns: make(map[string]map[string]map[string]Range),
		NewSheets:      make(map[string]map[string]*Table),
	}
}

func (r *ExecutionResult) addVariable(name string, v Value) {
	r.Variables[name] = v
}

func (r *ExecutionResult) addError(opIndex int, msg string) {
	r.Errors = append(r.Errors, fmt.Sprintf("operation #%d: %s", opIndex, msg))
}

func addNested(m map[string]map[string]map[string]Range, fileID, sheet, column string, values Range) {
	if m[fileID] == nil {
		m[fileID] = make(map[string]map[string]Range)
	}
	if m[fileID][sheet] == nil {
		m[fileID][sheet] = make(map[string]Range)
	}
	m[fileID][sheet][column] = values
}

func (r *ExecutionResult) addNewColumn(fileID, sheet, column string, values Range) {
	addNested(r.NewColumns, fileID, sheet, column, values)
}

func (r *ExecutionResult) addUpdatedColumn(fileID, sheet, column string, values Range) {
	addNested(r.UpdatedColumns, fileID, sheet, column, values)
}

func (r *ExecutionResult) addNewSheet(fileID string, t *Table) {
	if r.NewSheets[fileID] == nil {
		r.NewSheets[fileID] = make(map[string]*Table)
	}
	r.NewSheets[fileID][t.Name()] = t
}
