package sheetops

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Function and operator whitelists. Anything outside these is rejected at
// parse time, never discovered at execution time.

var aggregateFunctions = map[string]bool{
	"SUM": true, "COUNT": true, "COUNTA": true, "AVERAGE": true,
	"MIN": true, "MAX": true, "MEDIAN": true,
	"SUMIF": true, "COUNTIF": true, "AVERAGEIF": true,
}

var rowFunctions = map[string]bool{
	"IF": true, "AND": true, "OR": true, "NOT": true,
	"ISBLANK": true, "ISNA": true, "ISNUMBER": true, "ISERROR": true,
	"VLOOKUP": true, "IFERROR": true,
	"ROUND": true, "ABS": true,
	"LEFT": true, "RIGHT": true, "MID": true, "LEN": true, "TRIM": true,
	"UPPER": true, "LOWER": true, "PROPER": true,
	"CONCAT": true, "TEXT": true, "VALUE": true, "SUBSTITUTE": true,
	"FIND": true, "SEARCH": true,
	"COUNTIFS": true,
}

var scalarFunctions = map[string]bool{
	"ROUND": true, "ABS": true, "MAX": true, "MIN": true,
}

var groupByFunctions = map[string]bool{
	"SUM": true, "COUNT": true, "AVERAGE": true, "MIN": true, "MAX": true,
	"MEDIAN": true,
}

var filterOperators = map[string]bool{
	"=": true, "<>": true, ">": true, "<": true, ">=": true, "<=": true,
	"contains": true,
}

var binaryOperators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true,
	">": true, "<": true, ">=": true, "<=": true,
	"=": true, "<>": true, "&": true,
}

// ParseOperations deserializes a program document into operations. A
// malformed document rejects the whole batch: the returned operation list is
// empty and the error list has one entry. A top-level "error" key means the
// program author declined, and its "reason" surfaces as the sole error.
func ParseOperations(jsonText string) ([]Operation, []string) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return nil, []string{fmt.Sprintf("invalid JSON: %v", err)}
	}

	if _, declined := doc["error"]; declined {
		reason := "unknown reason"
		if r, ok := doc["reason"].(string); ok && r != "" {
			reason = r
		}
		return nil, []string{fmt.Sprintf("program declined: %s", reason)}
	}

	rawOps, ok := doc["operations"]
	if !ok {
		return nil, []string{"missing 'operations' field"}
	}
	list, ok := rawOps.([]any)
	if !ok {
		return nil, []string{"'operations' must be an array"}
	}

	var operations []Operation
	var errors []string
	for i, raw := range list {
		obj, ok := raw.(map[string]any)
		if !ok {
			errors = append(errors, fmt.Sprintf("operation #%d: must be an object", i+1))
			continue
		}
		op, opErrs := parseOperation(obj, i)
		errors = append(errors, opErrs...)
		if op != nil {
			operations = append(operations, op)
		}
	}
	return operations, errors
}

func parseOperation(obj map[string]any, index int) (Operation, []string) {
	prefix := fmt.Sprintf("operation #%d", index+1)

	opType, ok := obj["type"].(string)
	if !ok {
		return nil, []string{fmt.Sprintf("%s: missing 'type' field", prefix)}
	}

	switch opType {
	case "aggregate":
		return parseAggregate(obj, prefix)
	case "add_column":
		return parseAddColumn(obj, prefix)
	case "update_column":
		return parseUpdateColumn(obj, prefix)
	case "compute":
		return parseCompute(obj, prefix)
	case "filter":
		return parseFilter(obj, prefix)
	case "sort":
		return parseSort(obj, prefix)
	case "group_by":
		return parseGroupBy(obj, prefix)
	case "create_sheet":
		return parseCreateSheet(obj, prefix)
	case "take":
		return parseTake(obj, prefix)
	}
	return nil, []string{fmt.Sprintf("%s: invalid operation type %q", prefix, opType)}
}

// requireStrings checks that every named field exists and is a string,
// returning the values in order.
func requireStrings(obj map[string]any, prefix string, fields ...string) ([]string, []string) {
	var errors []string
	values := make([]string, len(fields))
	for i, field := range fields {
		v, ok := obj[field].(string)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: missing required field %q", prefix, field))
			continue
		}
		values[i] = v
	}
	return values, errors
}

func optString(obj map[string]any, field string) string {
	s, _ := obj[field].(string)
	return s
}

func parseAggregate(obj map[string]any, prefix string) (Operation, []string) {
	values, errors := requireStrings(obj, prefix, "function", "file_id", "table", "as")
	if len(errors) > 0 {
		return nil, errors
	}
	function := strings.ToUpper(values[0])
	if !aggregateFunctions[function] {
		return nil, []string{fmt.Sprintf("%s: unsupported aggregate function %q", prefix, function)}
	}

	needsColumn := function != "COUNTIF"
	needsCondition := function == "SUMIF" || function == "COUNTIF" || function == "AVERAGEIF"

	if needsColumn {
		if _, ok := obj["column"].(string); !ok {
			errors = append(errors, fmt.Sprintf("%s: function %s requires 'column'", prefix, function))
		}
	}
	var condition Value
	if needsCondition {
		if _, ok := obj["condition_column"].(string); !ok {
			errors = append(errors, fmt.Sprintf("%s: function %s requires 'condition_column'", prefix, function))
		}
		raw, ok := obj["condition"]
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: function %s requires 'condition'", prefix, function))
		} else {
			v, err := FromAny(raw)
			if err != nil {
				errors = append(errors, fmt.Sprintf("%s: invalid condition: %v", prefix, err))
			} else {
				condition = v
			}
		}
	}
	if len(errors) > 0 {
		return nil, errors
	}

	return &AggregateOp{
		Function:        function,
		FileID:          values[1],
		Table:           values[2],
		Column:          optString(obj, "column"),
		ConditionColumn: optString(obj, "condition_column"),
		Condition:       condition,
		As:              values[3],
		Description:     optString(obj, "description"),
	}, nil
}

// parseFormula handles the formula field shared by add_column and
// update_column: either a decoded expression object or a legacy string
// formula that must at least compile.
func parseFormula(raw any, allowed map[string]bool, prefix string) (Expr, string, []string) {
	switch f := raw.(type) {
	case string:
		if err := checkLegacyFormula(f); err != nil {
			return nil, "", []string{fmt.Sprintf("%s: invalid formula: %v", prefix, err)}
		}
		return nil, f, nil
	case map[string]any:
		expr, err := DecodeExpr(f)
		if err != nil {
			return nil, "", []string{fmt.Sprintf("%s: %v", prefix, err)}
		}
		if errs := whitelistErrors(expr, allowed, prefix); len(errs) > 0 {
			return nil, "", errs
		}
		return expr, "", nil
	}
	return nil, "", []string{fmt.Sprintf("%s: formula must be an expression object or a string", prefix)}
}

func parseAddColumn(obj map[string]any, prefix string) (Operation, []string) {
	values, errors := requireStrings(obj, prefix, "file_id", "table", "name")
	raw, ok := obj["formula"]
	if !ok {
		errors = append(errors, fmt.Sprintf("%s: missing required field %q", prefix, "formula"))
	}
	if len(errors) > 0 {
		return nil, errors
	}
	formula, legacy, errs := parseFormula(raw, rowFunctions, prefix+" formula")
	if len(errs) > 0 {
		return nil, errs
	}
	return &AddColumnOp{
		FileID:      values[0],
		Table:       values[1],
		Name:        values[2],
		Formula:     formula,
		Legacy:      legacy,
		Description: optString(obj, "description"),
	}, nil
}

func parseUpdateColumn(obj map[string]any, prefix string) (Operation, []string) {
	values, errors := requireStrings(obj, prefix, "file_id", "table", "column")
	raw, ok := obj["formula"]
	if !ok {
		errors = append(errors, fmt.Sprintf("%s: missing required field %q", prefix, "formula"))
	}
	if len(errors) > 0 {
		return nil, errors
	}
	formula, legacy, errs := parseFormula(raw, rowFunctions, prefix+" formula")
	if len(errs) > 0 {
		return nil, errs
	}
	return &UpdateColumnOp{
		FileID:      values[0],
		Table:       values[1],
		Column:      values[2],
		Formula:     formula,
		Legacy:      legacy,
		Description: optString(obj, "description"),
	}, nil
}

func parseCompute(obj map[string]any, prefix string) (Operation, []string) {
	values, errors := requireStrings(obj, prefix, "as")
	raw, ok := obj["expression"]
	if !ok {
		errors = append(errors, fmt.Sprintf("%s: missing required field %q", prefix, "expression"))
	}
	if len(errors) > 0 {
		return nil, errors
	}
	expression, legacy, errs := parseFormula(raw, scalarFunctions, prefix+" expression")
	if len(errs) > 0 {
		return nil, errs
	}
	return &ComputeOp{
		Expression:  expression,
		Legacy:      legacy,
		As:          values[0],
		Description: optString(obj, "description"),
	}, nil
}

// parseOutput decodes an output target. "replace" is accepted as a synonym
// for "in_place".
func parseOutput(obj map[string]any, prefix string, required bool, newSheetOnly bool) (OutputTarget, []string) {
	raw, ok := obj["output"]
	if !ok {
		if required {
			return OutputTarget{}, []string{fmt.Sprintf("%s: missing required field %q", prefix, "output")}
		}
		return OutputTarget{Type: "in_place"}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return OutputTarget{}, []string{fmt.Sprintf("%s: output must be an object", prefix)}
	}
	outType, ok := m["type"].(string)
	if !ok {
		return OutputTarget{}, []string{fmt.Sprintf("%s: output missing 'type' field", prefix)}
	}
	if outType == "replace" {
		outType = "in_place"
	}
	if newSheetOnly && outType != "new_sheet" {
		return OutputTarget{}, []string{fmt.Sprintf("%s: output.type must be 'new_sheet'", prefix)}
	}
	if outType != "new_sheet" && outType != "in_place" {
		return OutputTarget{}, []string{fmt.Sprintf("%s: output.type must be 'new_sheet' or 'in_place'", prefix)}
	}
	name := optString(m, "name")
	if outType == "new_sheet" && name == "" {
		return OutputTarget{}, []string{fmt.Sprintf("%s: output.type 'new_sheet' requires 'name'", prefix)}
	}
	return OutputTarget{Type: outType, Name: name}, nil
}

func parseFilter(obj map[string]any, prefix string) (Operation, []string) {
	values, errors := requireStrings(obj, prefix, "file_id", "table")
	rawConds, ok := obj["conditions"]
	if !ok {
		errors = append(errors, fmt.Sprintf("%s: missing required field %q", prefix, "conditions"))
	}
	if len(errors) > 0 {
		return nil, errors
	}

	list, ok := rawConds.([]any)
	if !ok || len(list) == 0 {
		return nil, []string{fmt.Sprintf("%s: conditions must be a non-empty array", prefix)}
	}
	conditions := make([]FilterCondition, 0, len(list))
	for i, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: conditions[%d] must be an object", prefix, i))
			continue
		}
		column, ok := m["column"].(string)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: conditions[%d] missing 'column'", prefix, i))
		}
		op, ok := m["op"].(string)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: conditions[%d] missing 'op'", prefix, i))
		} else if !filterOperators[op] {
			errors = append(errors, fmt.Sprintf("%s: conditions[%d] has unsupported op %q", prefix, i, op))
		}
		rawValue, ok := m["value"]
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: conditions[%d] missing 'value'", prefix, i))
			continue
		}
		value, err := FromAny(rawValue)
		if err != nil {
			errors = append(errors, fmt.Sprintf("%s: conditions[%d] has invalid value: %v", prefix, i, err))
			continue
		}
		conditions = append(conditions, FilterCondition{Column: column, Op: op, Value: value})
	}

	output, outErrs := parseOutput(obj, prefix, true, false)
	errors = append(errors, outErrs...)

	logic := "AND"
	if l, ok := obj["logic"].(string); ok {
		logic = l
	}
	if logic != "AND" && logic != "OR" {
		errors = append(errors, fmt.Sprintf("%s: logic must be 'AND' or 'OR'", prefix))
	}

	if len(errors) > 0 {
		return nil, errors
	}
	return &FilterOp{
		FileID:      values[0],
		Table:       values[1],
		Conditions:  conditions,
		Logic:       logic,
		Output:      output,
		Description: optString(obj, "description"),
	}, nil
}

func parseSort(obj map[string]any, prefix string) (Operation, []string) {
	values, errors := requireStrings(obj, prefix, "file_id", "table")
	rawBy, ok := obj["by"]
	if !ok {
		errors = append(errors, fmt.Sprintf("%s: missing required field %q", prefix, "by"))
	}
	if len(errors) > 0 {
		return nil, errors
	}

	list, ok := rawBy.([]any)
	if !ok || len(list) == 0 {
		return nil, []string{fmt.Sprintf("%s: by must be a non-empty array", prefix)}
	}
	by := make([]SortKey, 0, len(list))
	for i, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: by[%d] must be an object", prefix, i))
			continue
		}
		column, ok := m["column"].(string)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: by[%d] missing 'column'", prefix, i))
			continue
		}
		order := "asc"
		if o, ok := m["order"].(string); ok {
			order = o
		}
		if order != "asc" && order != "desc" {
			errors = append(errors, fmt.Sprintf("%s: by[%d] has invalid order %q, must be 'asc' or 'desc'", prefix, i, order))
			continue
		}
		by = append(by, SortKey{Column: column, Order: order})
	}

	output, outErrs := parseOutput(obj, prefix, false, false)
	errors = append(errors, outErrs...)

	if len(errors) > 0 {
		return nil, errors
	}
	return &SortOp{
		FileID:      values[0],
		Table:       values[1],
		By:          by,
		Output:      output,
		Description: optString(obj, "description"),
	}, nil
}

func parseGroupBy(obj map[string]any, prefix string) (Operation, []string) {
	values, errors := requireStrings(obj, prefix, "file_id", "table")
	rawGroups, ok := obj["group_columns"]
	if !ok {
		errors = append(errors, fmt.Sprintf("%s: missing required field %q", prefix, "group_columns"))
	}
	rawAggs, ok := obj["aggregations"]
	if !ok {
		errors = append(errors, fmt.Sprintf("%s: missing required field %q", prefix, "aggregations"))
	}
	if len(errors) > 0 {
		return nil, errors
	}

	groupList, ok := rawGroups.([]any)
	if !ok || len(groupList) == 0 {
		errors = append(errors, fmt.Sprintf("%s: group_columns must be a non-empty array", prefix))
	}
	groupColumns := make([]string, 0, len(groupList))
	for i, raw := range groupList {
		s, ok := raw.(string)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: group_columns[%d] must be a string", prefix, i))
			continue
		}
		groupColumns = append(groupColumns, s)
	}

	aggList, ok := rawAggs.([]any)
	if !ok || len(aggList) == 0 {
		errors = append(errors, fmt.Sprintf("%s: aggregations must be a non-empty array", prefix))
	}
	aggregations := make([]GroupAggregation, 0, len(aggList))
	for i, raw := range aggList {
		m, ok := raw.(map[string]any)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: aggregations[%d] must be an object", prefix, i))
			continue
		}
		column, ok := m["column"].(string)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: aggregations[%d] missing 'column'", prefix, i))
		}
		function, ok := m["function"].(string)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: aggregations[%d] missing 'function'", prefix, i))
		} else if !groupByFunctions[strings.ToUpper(function)] {
			errors = append(errors, fmt.Sprintf("%s: aggregations[%d] has unsupported function %q", prefix, i, function))
		}
		as, ok := m["as"].(string)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s: aggregations[%d] missing 'as'", prefix, i))
		}
		aggregations = append(aggregations, GroupAggregation{
			Column:   column,
			Function: strings.ToUpper(function),
			As:       as,
		})
	}

	output, outErrs := parseOutput(obj, prefix, true, true)
	errors = append(errors, outErrs...)

	if len(errors) > 0 {
		return nil, errors
	}
	return &GroupByOp{
		FileID:       values[0],
		Table:        values[1],
		GroupColumns: groupColumns,
		Aggregations: aggregations,
		Output:       output,
		Description:  optString(obj, "description"),
	}, nil
}

func parseCreateSheet(obj map[string]any, prefix string) (Operation, []string) {
	values, errors := requireStrings(obj, prefix, "file_id", "name")
	if len(errors) > 0 {
		return nil, errors
	}

	source := SheetSource{Type: "empty"}
	if rawSource, ok := obj["source"]; ok {
		m, ok := rawSource.(map[string]any)
		if !ok {
			return nil, []string{fmt.Sprintf("%s: source must be an object", prefix)}
		}
		sourceType, ok := m["type"].(string)
		if !ok {
			return nil, []string{fmt.Sprintf("%s: source missing 'type' field", prefix)}
		}
		if sourceType != "empty" && sourceType != "copy" && sourceType != "reference" {
			return nil, []string{fmt.Sprintf("%s: source.type must be 'empty', 'copy', or 'reference'", prefix)}
		}
		table := optString(m, "table")
		if (sourceType == "copy" || sourceType == "reference") && table == "" {
			return nil, []string{fmt.Sprintf("%s: source.type %q requires 'table'", prefix, sourceType)}
		}
		source = SheetSource{Type: sourceType, Table: table}
	}

	var columns []string
	if rawCols, ok := obj["columns"]; ok {
		list, ok := rawCols.([]any)
		if !ok {
			return nil, []string{fmt.Sprintf("%s: columns must be an array", prefix)}
		}
		for i, raw := range list {
			s, ok := raw.(string)
			if !ok {
				return nil, []string{fmt.Sprintf("%s: columns[%d] must be a string", prefix, i)}
			}
			columns = append(columns, s)
		}
	}

	return &CreateSheetOp{
		FileID:      values[0],
		Name:        values[1],
		Source:      source,
		Columns:     columns,
		Description: optString(obj, "description"),
	}, nil
}

func parseTake(obj map[string]any, prefix string) (Operation, []string) {
	values, errors := requireStrings(obj, prefix, "file_id", "table")
	rawRows, ok := obj["rows"]
	if !ok {
		errors = append(errors, fmt.Sprintf("%s: missing required field %q", prefix, "rows"))
	}
	if len(errors) > 0 {
		return nil, errors
	}

	f, ok := rawRows.(float64)
	if !ok || f != math.Trunc(f) {
		return nil, []string{fmt.Sprintf("%s: rows must be an integer", prefix)}
	}
	rows := int(f)
	if rows == 0 {
		return nil, []string{fmt.Sprintf("%s: rows must not be 0", prefix)}
	}

	output, outErrs := parseOutput(obj, prefix, false, false)
	if len(outErrs) > 0 {
		return nil, outErrs
	}

	return &TakeOp{
		FileID:      values[0],
		Table:       values[1],
		Rows:        rows,
		Output:      output,
		Description: optString(obj, "description"),
	}, nil
}

// whitelistErrors recursively checks every function name and operator in a
// decoded expression against the allowed set for its context.
func whitelistErrors(e Expr, allowed map[string]bool, prefix string) []string {
	var errors []string
	switch n := e.(type) {
	case *FuncCall:
		if !allowed[strings.ToUpper(n.Name)] {
			errors = append(errors, fmt.Sprintf("%s: unsupported function %q", prefix, strings.ToUpper(n.Name)))
		}
		for i, arg := range n.Args {
			errors = append(errors, whitelistErrors(arg, allowed, fmt.Sprintf("%s argument %d", prefix, i+1))...)
		}
	case *BinaryOp:
		if !binaryOperators[n.Op] {
			errors = append(errors, fmt.Sprintf("%s: unsupported operator %q", prefix, n.Op))
		}
		errors = append(errors, whitelistErrors(n.Left, allowed, prefix)...)
		errors = append(errors, whitelistErrors(n.Right, allowed, prefix)...)
	}
	return errors
}
