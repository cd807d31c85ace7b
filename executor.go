package sheetops

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Executor runs validated operations against a private working copy of the
// collection. Each operation's output is applied to the working copy
// immediately, so operation N+1 sees the output of operation N. One failing
// operation never aborts the batch.
type Executor struct {
	collection *FileCollection
	variables  map[string]Value
	legacy     *legacyEvaluator
	opts       *Options
}

// NewExecutor clones the collection and prepares a run.
func NewExecutor(collection *FileCollection, opts ...Option) *Executor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Executor{
		collection: collection.Clone(),
		variables:  make(map[string]Value),
		legacy:     newLegacyEvaluator(),
		opts:       o,
	}
}

// Collection returns the working copy, including everything the executed
// operations applied to it.
func (e *Executor) Collection() *FileCollection {
	return e.collection
}

// Execute runs the operations in order and accumulates their results.
func (e *Executor) Execute(operations []Operation) *ExecutionResult {
	result := NewExecutionResult()

	for i, op := range operations {
		opResult := e.executeOne(op)
		result.OperationResults = append(result.OperationResults, opResult)

		if opResult.Err != "" {
			result.addError(i+1, opResult.Err)
			e.opts.logger.Warn("operation failed",
				"index", i+1, "type", op.Type(), "error", opResult.Err)
		} else {
			e.opts.logger.Info("operation executed", "index", i+1, "type", op.Type())
		}

		switch op := op.(type) {
		case *AggregateOp:
			if opResult.Err == "" && opResult.Value != nil {
				e.variables[op.As] = opResult.Value
				result.addVariable(op.As, opResult.Value)
			}
		case *ComputeOp:
			if opResult.Err == "" && opResult.Value != nil {
				e.variables[op.As] = opResult.Value
				result.addVariable(op.As, opResult.Value)
			}
		case *AddColumnOp:
			// Partial row failures still produce the column; failed
			// cells already hold error values.
			if opResult.Column != nil {
				result.addNewColumn(op.FileID, op.Table, op.Name, opResult.Column)
				if err := e.applyColumn(op.FileID, op.Table, op.Name, opResult.Column); err != nil {
					result.addError(i+1, err.Error())
				}
			}
		case *UpdateColumnOp:
			if opResult.Column != nil {
				result.addUpdatedColumn(op.FileID, op.Table, op.Column, opResult.Column)
				if err := e.applyColumn(op.FileID, op.Table, op.Column, opResult.Column); err != nil {
					result.addError(i+1, err.Error())
				}
			}
		default:
			if opResult.Sheet != nil {
				result.addNewSheet(opResult.Sheet.FileID, opResult.Sheet.Table)
				if err := e.applySheet(opResult.Sheet); err != nil {
					result.addError(i+1, err.Error())
				}
			}
		}
	}
	return result
}

// executeOne dispatches a single operation. A panic escaping a handler is
// recorded as an operation-level error so the batch keeps going.
func (e *Executor) executeOne(op Operation) (res OperationResult) {
	defer func() {
		if r := recover(); r != nil {
			res = OperationResult{Operation: op, Err: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	switch op := op.(type) {
	case *AggregateOp:
		return e.executeAggregate(op)
	case *AddColumnOp:
		return e.executeColumnFormula(op, op.FileID, op.Table, op.Formula, op.Legacy, false, "")
	case *UpdateColumnOp:
		return e.executeColumnFormula(op, op.FileID, op.Table, op.Formula, op.Legacy, true, op.Column)
	case *ComputeOp:
		return e.executeCompute(op)
	case *FilterOp:
		return e.executeFilter(op)
	case *SortOp:
		return e.executeSort(op)
	case *GroupByOp:
		return e.executeGroupBy(op)
	case *CreateSheetOp:
		return e.executeCreateSheet(op)
	case *TakeOp:
		return e.executeTake(op)
	}
	return OperationResult{Operation: op, Err: fmt.Sprintf("unknown operation type %T", op)}
}

func (e *Executor) executeAggregate(op *AggregateOp) OperationResult {
	table, err := e.collection.Table(op.FileID, op.Table)
	if err != nil {
		return OperationResult{Operation: op, Err: err.Error()}
	}

	if fn, ok := simpleAggregates[op.Function]; ok {
		column, err := table.Column(op.Column)
		if err != nil {
			return OperationResult{Operation: op, Err: err.Error()}
		}
		return OperationResult{Operation: op, Value: fn(column)}
	}

	criteriaRange, err := table.Column(op.ConditionColumn)
	if err != nil {
		return OperationResult{Operation: op, Err: err.Error()}
	}

	switch op.Function {
	case "SUMIF":
		sumRange, err := table.Column(op.Column)
		if err != nil {
			return OperationResult{Operation: op, Err: err.Error()}
		}
		v, err := aggSumIf(sumRange, criteriaRange, op.Condition)
		if err != nil {
			return OperationResult{Operation: op, Err: err.Error()}
		}
		return OperationResult{Operation: op, Value: v}
	case "COUNTIF":
		return OperationResult{Operation: op, Value: aggCountIf(criteriaRange, op.Condition)}
	case "AVERAGEIF":
		avgRange, err := table.Column(op.Column)
		if err != nil {
			return OperationResult{Operation: op, Err: err.Error()}
		}
		v, err := aggAverageIf(avgRange, criteriaRange, op.Condition)
		if err != nil {
			return OperationResult{Operation: op, Err: err.Error()}
		}
		return OperationResult{Operation: op, Value: v}
	}
	return OperationResult{Operation: op, Err: fmt.Sprintf("unsupported aggregate function %q", op.Function)}
}

// executeColumnFormula is the shared add_column/update_column loop: evaluate
// the formula once per row, reusing one evaluator seeded with the row's
// column cache. A failed row becomes an error cell and is recorded, but the
// column is still produced.
func (e *Executor) executeColumnFormula(op Operation, fileID, sheet string, formula Expr, legacy string, mustExist bool, target string) OperationResult {
	table, err := e.collection.Table(fileID, sheet)
	if err != nil {
		return OperationResult{Operation: op, Err: err.Error()}
	}
	if mustExist && !table.HasColumn(target) {
		return OperationResult{Operation: op, Err: fmt.Sprintf("column %q does not exist, cannot update", target)}
	}

	columns := table.Columns()
	rowCount := table.RowCount()

	cache := make(map[string]Range, len(columns))
	for _, name := range columns {
		col, err := table.Column(name)
		if err != nil {
			return OperationResult{Operation: op, Err: err.Error()}
		}
		cache[name] = col
	}

	evaluator := NewRowEvaluator(e.collection, e.variables)
	values := make(Range, 0, rowCount)
	var rowErrors []string

	rowCtx := make(map[string]Value, len(columns))
	for row := 0; row < rowCount; row++ {
		for _, name := range columns {
			rowCtx[name] = cache[name][row]
		}

		var v Value
		var evalErr error
		if legacy != "" {
			v, evalErr = e.legacy.Evaluate(legacy, legacyEnv(rowCtx, e.variables))
		} else {
			evaluator.SetRow(rowCtx)
			v, evalErr = evaluator.Eval(formula)
		}
		if evalErr != nil {
			values = append(values, ErrGeneric)
			// Worksheet row: data starts below the header.
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", row+2, evalErr))
			continue
		}
		values = append(values, v)
	}

	result := OperationResult{Operation: op, Column: values}
	if len(rowErrors) > 0 {
		const maxDisplay = 5
		summary := strings.Join(rowErrors[:min(maxDisplay, len(rowErrors))], "; ")
		if len(rowErrors) > maxDisplay {
			summary += fmt.Sprintf(" (%d errors total)", len(rowErrors))
		}
		result.Err = "some rows failed: " + summary
	}
	return result
}

func (e *Executor) executeCompute(op *ComputeOp) OperationResult {
	var v Value
	var err error
	if op.Legacy != "" {
		v, err = e.legacy.Evaluate(op.Legacy, legacyEnv(nil, e.variables))
	} else {
		v, err = NewScalarEvaluator(e.collection, e.variables).Eval(op.Expression)
	}
	if err != nil {
		return OperationResult{Operation: op, Err: err.Error()}
	}
	return OperationResult{Operation: op, Value: v}
}

// matchFilter applies one filter predicate to one cell.
func matchFilter(v Value, op string, cond Value) bool {
	switch op {
	case ">", "<", ">=", "<=":
		if n, ok := cond.(Number); ok {
			f, ok := coerceNumber(v)
			if !ok {
				return false
			}
			return compareFloat(op, f, float64(n))
		}
		if IsBlank(v) {
			return false
		}
		return compareString(op, ValueString(v), ValueString(cond))
	case "=":
		if equalValues(v, cond) {
			return true
		}
		if n, ok := cond.(Number); ok {
			if f, ok := coerceNumber(v); ok {
				return f == float64(n)
			}
		}
		return false
	case "<>":
		return !equalValues(v, cond)
	case "contains":
		if IsBlank(v) {
			return false
		}
		return strings.Contains(ValueString(v), ValueString(cond))
	}
	return false
}

func (e *Executor) executeFilter(op *FilterOp) OperationResult {
	table, err := e.collection.Table(op.FileID, op.Table)
	if err != nil {
		return OperationResult{Operation: op, Err: err.Error()}
	}

	rowCount := table.RowCount()
	masks := make([][]bool, 0, len(op.Conditions))
	for _, cond := range op.Conditions {
		column, err := table.Column(cond.Column)
		if err != nil {
			return OperationResult{Operation: op, Err: fmt.Sprintf("column %q does not exist in sheet %q", cond.Column, op.Table)}
		}
		mask := make([]bool, rowCount)
		for i, v := range column {
			mask[i] = matchFilter(v, cond.Op, cond.Value)
		}
		masks = append(masks, mask)
	}

	var rows []int
	for i := 0; i < rowCount; i++ {
		keep := op.Logic == "AND"
		for _, mask := range masks {
			if op.Logic == "AND" {
				keep = keep && mask[i]
			} else {
				keep = keep || mask[i]
			}
		}
		if keep {
			rows = append(rows, i)
		}
	}

	return e.sheetResult(op, op.FileID, op.Table, op.Output, table.SelectRows("", rows))
}

// sheetResult names the output table per the target and wraps it.
func (e *Executor) sheetResult(op Operation, fileID, sourceSheet string, output OutputTarget, t *Table) OperationResult {
	name := sourceSheet
	if output.Type == "new_sheet" {
		name = output.Name
	}
	t.name = name
	return OperationResult{
		Operation: op,
		Sheet:     &SheetResult{FileID: fileID, Sheet: name, Table: t},
	}
}

// sortKeycolumns precomputes comparable keys for one sort column. When the
// share of numeric-parseable values crosses the threshold the column sorts
// numerically with non-numeric values last; otherwise everything sorts as
// strings.
type sortColumn struct {
	numeric bool
	nums    []float64
	strs    []string
}

func (e *Executor) buildSortColumn(values Range) sortColumn {
	numericCount := 0
	for _, v := range values {
		if _, ok := coerceNumber(v); ok {
			numericCount++
		}
	}
	col := sortColumn{}
	if len(values) > 0 && float64(numericCount)/float64(len(values)) > e.opts.numericSortThreshold {
		col.numeric = true
		col.nums = make([]float64, len(values))
		for i, v := range values {
			if f, ok := coerceNumber(v); ok {
				col.nums[i] = f
			} else {
				col.nums[i] = math.Inf(1)
			}
		}
		return col
	}
	col.strs = make([]string, len(values))
	for i, v := range values {
		col.strs[i] = ValueString(v)
	}
	return col
}

// compare returns -1, 0, or 1 for rows a and b.
func (c sortColumn) compare(a, b int) int {
	if c.numeric {
		switch {
		case c.nums[a] < c.nums[b]:
			return -1
		case c.nums[a] > c.nums[b]:
			return 1
		}
		return 0
	}
	return strings.Compare(c.strs[a], c.strs[b])
}

func (e *Executor) executeSort(op *SortOp) OperationResult {
	table, err := e.collection.Table(op.FileID, op.Table)
	if err != nil {
		return OperationResult{Operation: op, Err: err.Error()}
	}

	keys := make([]sortColumn, 0, len(op.By))
	descending := make([]bool, 0, len(op.By))
	for _, rule := range op.By {
		column, err := table.Column(rule.Column)
		if err != nil {
			return OperationResult{Operation: op, Err: fmt.Sprintf("column %q does not exist in sheet %q", rule.Column, op.Table)}
		}
		keys = append(keys, e.buildSortColumn(column))
		descending = append(descending, rule.Order == "desc")
	}

	rows := make([]int, table.RowCount())
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for k, key := range keys {
			c := key.compare(rows[a], rows[b])
			if c == 0 {
				continue
			}
			if descending[k] {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	return e.sheetResult(op, op.FileID, op.Table, op.Output, table.SelectRows("", rows))
}

// groupAggregate reduces one group's column the way a summary table does:
// COUNT counts non-blank cells, the numeric functions coerce numeric-looking
// text and yield blank (not an error) for a group with no numeric values.
func groupAggregate(function string, values Range) Value {
	if function == "COUNT" {
		return aggCountA(values)
	}
	var nums []float64
	for _, v := range values {
		if f, ok := coerceNumber(v); ok {
			nums = append(nums, f)
		}
	}
	if function == "SUM" {
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return Number(total)
	}
	if len(nums) == 0 {
		return nil
	}
	switch function {
	case "AVERAGE":
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return Number(total / float64(len(nums)))
	case "MIN":
		min := nums[0]
		for _, n := range nums[1:] {
			if n < min {
				min = n
			}
		}
		return Number(min)
	case "MAX":
		max := nums[0]
		for _, n := range nums[1:] {
			if n > max {
				max = n
			}
		}
		return Number(max)
	case "MEDIAN":
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 0 {
			return Number((nums[mid-1] + nums[mid]) / 2)
		}
		return Number(nums[mid])
	}
	return nil
}

func (e *Executor) executeGroupBy(op *GroupByOp) OperationResult {
	table, err := e.collection.Table(op.FileID, op.Table)
	if err != nil {
		return OperationResult{Operation: op, Err: err.Error()}
	}

	groupCols := make([]Range, 0, len(op.GroupColumns))
	for _, name := range op.GroupColumns {
		column, err := table.Column(name)
		if err != nil {
			return OperationResult{Operation: op, Err: fmt.Sprintf("group column %q does not exist in sheet %q", name, op.Table)}
		}
		groupCols = append(groupCols, column)
	}
	aggCols := make([]Range, 0, len(op.Aggregations))
	for _, agg := range op.Aggregations {
		column, err := table.Column(agg.Column)
		if err != nil {
			return OperationResult{Operation: op, Err: fmt.Sprintf("aggregation column %q does not exist in sheet %q", agg.Column, op.Table)}
		}
		aggCols = append(aggCols, column)
	}

	// Groups keep first-seen order.
	groupIndex := make(map[string]int)
	var groupRows [][]int
	var groupKeys [][]Value
	for row := 0; row < table.RowCount(); row++ {
		keyParts := make([]string, len(groupCols))
		keyValues := make([]Value, len(groupCols))
		for i, col := range groupCols {
			keyParts[i] = ValueString(col[row])
			keyValues[i] = col[row]
		}
		key := strings.Join(keyParts, "\x00")
		idx, seen := groupIndex[key]
		if !seen {
			idx = len(groupRows)
			groupIndex[key] = idx
			groupRows = append(groupRows, nil)
			groupKeys = append(groupKeys, keyValues)
		}
		groupRows[idx] = append(groupRows[idx], row)
	}

	columns := make([]string, 0, len(op.GroupColumns)+len(op.Aggregations))
	columns = append(columns, op.GroupColumns...)
	for _, agg := range op.Aggregations {
		columns = append(columns, agg.As)
	}

	out := NewTable(op.Output.Name, columns...)
	for g, rows := range groupRows {
		record := make([]Value, 0, len(columns))
		record = append(record, groupKeys[g]...)
		for a, agg := range op.Aggregations {
			grouped := make(Range, 0, len(rows))
			for _, row := range rows {
				grouped = append(grouped, aggCols[a][row])
			}
			record = append(record, groupAggregate(agg.Function, grouped))
		}
		if err := out.AppendRow(record); err != nil {
			return OperationResult{Operation: op, Err: err.Error()}
		}
	}

	return OperationResult{
		Operation: op,
		Sheet:     &SheetResult{FileID: op.FileID, Sheet: op.Output.Name, Table: out},
	}
}

func (e *Executor) executeCreateSheet(op *CreateSheetOp) OperationResult {
	var out *Table
	switch op.Source.Type {
	case "empty":
		out = NewTable(op.Name, op.Columns...)
	case "copy":
		source, err := e.collection.Table(op.FileID, op.Source.Table)
		if err != nil {
			return OperationResult{Operation: op, Err: err.Error()}
		}
		out = source.Clone(op.Name)
	case "reference":
		source, err := e.collection.Table(op.FileID, op.Source.Table)
		if err != nil {
			return OperationResult{Operation: op, Err: err.Error()}
		}
		out = NewTable(op.Name, source.Columns()...)
	default:
		return OperationResult{Operation: op, Err: fmt.Sprintf("unsupported source.type %q", op.Source.Type)}
	}

	return OperationResult{
		Operation: op,
		Sheet:     &SheetResult{FileID: op.FileID, Sheet: op.Name, Table: out},
	}
}

func (e *Executor) executeTake(op *TakeOp) OperationResult {
	table, err := e.collection.Table(op.FileID, op.Table)
	if err != nil {
		return OperationResult{Operation: op, Err: err.Error()}
	}

	rowCount := table.RowCount()
	n := op.Rows
	if n < 0 {
		n = -n
	}
	if n > rowCount {
		n = rowCount
	}
	rows := make([]int, n)
	start := 0
	if op.Rows < 0 {
		start = rowCount - n
	}
	for i := range rows {
		rows[i] = start + i
	}

	return e.sheetResult(op, op.FileID, op.Table, op.Output, table.SelectRows("", rows))
}

// applyColumn lands a computed column in the working copy, adding or
// replacing as needed so a re-run of the same program stays idempotent.
func (e *Executor) applyColumn(fileID, sheet, column string, values Range) error {
	table, err := e.collection.Table(fileID, sheet)
	if err != nil {
		return err
	}
	if table.HasColumn(column) {
		return table.UpdateColumn(column, values)
	}
	return table.AddColumn(column, values)
}

func (e *Executor) applySheet(s *SheetResult) error {
	f, err := e.collection.File(s.FileID)
	if err != nil {
		return err
	}
	f.AddSheet(s.Table)
	return nil
}
