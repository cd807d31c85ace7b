package sheetops

import (
	"fmt"
	"strings"
)

// FormulaRecord describes how to reproduce one operation with native Excel
// formulas. Records are advisory output; generating them never mutates state
// and never fails a run.
type FormulaRecord struct {
	Type        string
	FileID      string
	Filename    string
	Sheet       string
	OutputSheet string
	Column      string
	Variable    string
	Formula     string
	Description string
	Note        string
}

const excel365Note = "requires Excel 365 or Excel 2021 and later"

// FormulaGenerator renders Excel formula text for validated operations. It
// reads column positions from the collection it was built with and writes
// nothing back.
type FormulaGenerator struct {
	collection *FileCollection
	mapping    map[string]map[string]map[string]string
	opts       *Options
}

// NewFormulaGenerator prepares a generator over the given collection.
func NewFormulaGenerator(collection *FileCollection, opts ...Option) *FormulaGenerator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &FormulaGenerator{
		collection: collection,
		mapping:    collection.ColumnMapping(),
		opts:       o,
	}
}

// Generate renders one record per operation. A failure inside one operation
// yields a record with an #ERROR formula instead of propagating.
func (g *FormulaGenerator) Generate(operations []Operation) []FormulaRecord {
	records := make([]FormulaRecord, 0, len(operations))
	for _, op := range operations {
		if rec, ok := g.generateOne(op); ok {
			records = append(records, rec)
		}
	}
	return records
}

func (g *FormulaGenerator) generateOne(op Operation) (rec FormulaRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			rec = FormulaRecord{Type: op.Type(), Formula: "#ERROR"}
			ok = true
		}
	}()

	switch op := op.(type) {
	case *AggregateOp:
		return g.aggregateRecord(op), true
	case *AddColumnOp:
		// Legacy string formulas have no mapping onto Excel syntax.
		if op.Formula == nil {
			return FormulaRecord{}, false
		}
		return FormulaRecord{
			Type:        op.Type(),
			FileID:      op.FileID,
			Filename:    g.filename(op.FileID),
			Sheet:       op.Table,
			Column:      op.Name,
			Formula:     "=" + g.Expression(op.Formula, op.FileID, op.Table),
			Description: describe(op.Description, fmt.Sprintf("add column %q to sheet %s", op.Name, op.Table)),
		}, true
	case *UpdateColumnOp:
		if op.Formula == nil {
			return FormulaRecord{}, false
		}
		return FormulaRecord{
			Type:        op.Type(),
			FileID:      op.FileID,
			Filename:    g.filename(op.FileID),
			Sheet:       op.Table,
			Column:      op.Column,
			Formula:     "=" + g.Expression(op.Formula, op.FileID, op.Table),
			Description: describe(op.Description, fmt.Sprintf("update column %q in sheet %s", op.Column, op.Table)),
		}, true
	case *ComputeOp:
		if op.Expression == nil {
			return FormulaRecord{}, false
		}
		return FormulaRecord{
			Type:        op.Type(),
			Variable:    op.As,
			Formula:     "=" + g.Expression(op.Expression, "", ""),
			Description: describe(op.Description, fmt.Sprintf("compute %q from variables", op.As)),
		}, true
	case *FilterOp:
		return FormulaRecord{
			Type:        op.Type(),
			FileID:      op.FileID,
			Filename:    g.filename(op.FileID),
			Sheet:       op.Table,
			OutputSheet: outputName(op.Output, op.Table),
			Formula:     g.filterFormula(op),
			Description: describe(op.Description, fmt.Sprintf("filter rows of sheet %s into %s", op.Table, outputName(op.Output, op.Table))),
			Note:        excel365Note,
		}, true
	case *SortOp:
		return FormulaRecord{
			Type:        op.Type(),
			FileID:      op.FileID,
			Filename:    g.filename(op.FileID),
			Sheet:       op.Table,
			OutputSheet: outputName(op.Output, op.Table),
			Formula:     g.sortFormula(op),
			Description: describe(op.Description, fmt.Sprintf("sort sheet %s", op.Table)),
			Note:        excel365Note,
		}, true
	case *GroupByOp:
		return FormulaRecord{
			Type:        op.Type(),
			FileID:      op.FileID,
			Filename:    g.filename(op.FileID),
			Sheet:       op.Table,
			OutputSheet: op.Output.Name,
			Formula:     g.groupByFormula(op),
			Description: describe(op.Description, fmt.Sprintf("group sheet %s by %s into %s", op.Table, strings.Join(op.GroupColumns, ", "), op.Output.Name)),
			Note:        "GROUPBY requires Excel 365 (September 2023 update)",
		}, true
	case *CreateSheetOp:
		return FormulaRecord{
			Type:        op.Type(),
			FileID:      op.FileID,
			Filename:    g.filename(op.FileID),
			Sheet:       op.Name,
			Formula:     "(no formula equivalent, create the sheet manually)",
			Description: describe(op.Description, fmt.Sprintf("create sheet %s", op.Name)),
			Note:        "sheet-level action, performed manually in Excel",
		}, true
	case *TakeOp:
		return FormulaRecord{
			Type:        op.Type(),
			FileID:      op.FileID,
			Filename:    g.filename(op.FileID),
			Sheet:       op.Table,
			OutputSheet: outputName(op.Output, op.Table),
			Formula:     g.takeFormula(op),
			Description: describe(op.Description, takeDescription(op)),
			Note:        excel365Note,
		}, true
	}
	return FormulaRecord{Type: op.Type(), Formula: "#UNKNOWN"}, true
}

func describe(description, fallback string) string {
	if description != "" {
		return description
	}
	return fallback
}

func outputName(output OutputTarget, sourceSheet string) string {
	if output.Type == "new_sheet" {
		return output.Name
	}
	return sourceSheet
}

func takeDescription(op *TakeOp) string {
	if op.Rows > 0 {
		return fmt.Sprintf("take the first %d rows of sheet %s", op.Rows, op.Table)
	}
	return fmt.Sprintf("take the last %d rows of sheet %s", -op.Rows, op.Table)
}

func (g *FormulaGenerator) filename(fileID string) string {
	f, err := g.collection.File(fileID)
	if err != nil {
		return ""
	}
	return f.Filename
}

func (g *FormulaGenerator) columnLetter(fileID, sheet, column string) string {
	if sheets, ok := g.mapping[fileID]; ok {
		if cols, ok := sheets[sheet]; ok {
			if letter, ok := cols[column]; ok {
				return letter
			}
		}
	}
	return "?"
}

// Expression renders one expression tree as Excel formula text, without the
// leading "=". Column references use the configured row placeholder;
// cross-sheet references render as whole-column ranges.
func (g *FormulaGenerator) Expression(expr Expr, fileID, sheet string) string {
	switch n := expr.(type) {
	case *Literal:
		return formatLiteral(n.Value)
	case *ColumnRef:
		return g.columnLetter(fileID, sheet, n.Name) + g.opts.rowPlaceholder
	case *VarRef:
		// Excel has no direct analogue; emit a placeholder the user
		// replaces with the cell holding the aggregate result.
		return "${" + n.Name + "}"
	case *CrossRef:
		letter := g.columnLetter(n.FileID, n.Sheet, n.Column)
		return fmt.Sprintf("%s!%s:%s", n.Sheet, letter, letter)
	case *FuncCall:
		return g.functionFormula(n, fileID, sheet)
	case *BinaryOp:
		left := g.Expression(n.Left, fileID, sheet)
		right := g.Expression(n.Right, fileID, sheet)
		return fmt.Sprintf("(%s%s%s)", left, n.Op, right)
	}
	return "#UNKNOWN"
}

func formatLiteral(v Value) string {
	switch v := v.(type) {
	case Text:
		return fmt.Sprintf("%q", string(v))
	case Boolean:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case Number:
		return FormatNumber(float64(v))
	case CellError:
		return string(v)
	case nil:
		return `""`
	}
	return ValueString(v)
}

func (g *FormulaGenerator) functionFormula(call *FuncCall, fileID, sheet string) string {
	name := strings.ToUpper(call.Name)

	switch name {
	case "VLOOKUP":
		return g.vlookupFormula(call.Args, fileID, sheet)
	case "IF":
		if len(call.Args) != 3 {
			return "#ERROR"
		}
		return fmt.Sprintf("IF(%s, %s, %s)",
			g.Expression(call.Args[0], fileID, sheet),
			g.Expression(call.Args[1], fileID, sheet),
			g.Expression(call.Args[2], fileID, sheet))
	case "CONCAT":
		// Lowered to & joins.
		parts := make([]string, len(call.Args))
		for i, arg := range call.Args {
			parts[i] = g.Expression(arg, fileID, sheet)
		}
		return strings.Join(parts, "&")
	}

	args := make([]string, len(call.Args))
	for i, arg := range call.Args {
		args[i] = g.Expression(arg, fileID, sheet)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
}

// vlookupFormula resolves the key and value column letters of the target
// sheet to compute Excel's column-offset argument.
func (g *FormulaGenerator) vlookupFormula(args []Expr, fileID, sheet string) string {
	if len(args) != 4 {
		return "#ERROR"
	}
	lookup := g.Expression(args[0], fileID, sheet)

	tableRef, ok1 := literalText(args[1])
	keyCol, ok2 := literalText(args[2])
	valueCol, ok3 := literalText(args[3])
	if !ok1 || !ok2 || !ok3 {
		return "#ERROR"
	}
	parts := strings.Split(tableRef, ".")
	if len(parts) != 2 {
		return "#ERROR"
	}
	targetFile, targetSheet := parts[0], parts[1]

	keyLetter := g.columnLetter(targetFile, targetSheet, keyCol)
	valueLetter := g.columnLetter(targetFile, targetSheet, valueCol)
	if keyLetter == "?" || valueLetter == "?" {
		return "#ERROR"
	}
	keyIdx, err := NameToCol(keyLetter)
	if err != nil {
		return "#ERROR"
	}
	valueIdx, err := NameToCol(valueLetter)
	if err != nil {
		return "#ERROR"
	}
	offset := valueIdx - keyIdx + 1

	startIdx, endIdx := keyIdx, valueIdx
	if endIdx < startIdx {
		startIdx, endIdx = endIdx, startIdx
	}
	return fmt.Sprintf("VLOOKUP(%s, %s!%s:%s, %d, FALSE)",
		lookup, targetSheet, ColToName(startIdx), ColToName(endIdx), offset)
}

func literalText(e Expr) (string, bool) {
	lit, ok := e.(*Literal)
	if !ok {
		return "", false
	}
	t, ok := lit.Value.(Text)
	return string(t), ok
}

func (g *FormulaGenerator) dataRange(fileID, sheet string) string {
	table, err := g.collection.Table(fileID, sheet)
	if err != nil || len(table.Columns()) == 0 {
		return fmt.Sprintf("%s!A:Z", sheet)
	}
	columns := table.Columns()
	first := g.columnLetter(fileID, sheet, columns[0])
	last := g.columnLetter(fileID, sheet, columns[len(columns)-1])
	return fmt.Sprintf("%s!%s:%s", sheet, first, last)
}

func (g *FormulaGenerator) aggregateRecord(op *AggregateOp) FormulaRecord {
	sheet := op.Table
	column := func(name string) string {
		letter := g.columnLetter(op.FileID, sheet, name)
		return fmt.Sprintf("%s!%s:%s", sheet, letter, letter)
	}

	var formula string
	switch op.Function {
	case "SUMIF":
		formula = fmt.Sprintf("=SUMIF(%s, %s, %s)", column(op.ConditionColumn), formatLiteral(op.Condition), column(op.Column))
	case "COUNTIF":
		formula = fmt.Sprintf("=COUNTIF(%s, %s)", column(op.ConditionColumn), formatLiteral(op.Condition))
	case "AVERAGEIF":
		formula = fmt.Sprintf("=AVERAGEIF(%s, %s, %s)", column(op.ConditionColumn), formatLiteral(op.Condition), column(op.Column))
	default:
		formula = fmt.Sprintf("=%s(%s)", op.Function, column(op.Column))
	}

	return FormulaRecord{
		Type:        op.Type(),
		FileID:      op.FileID,
		Filename:    g.filename(op.FileID),
		Sheet:       sheet,
		Variable:    op.As,
		Formula:     formula,
		Description: describe(op.Description, fmt.Sprintf("compute %s of column %q in sheet %s", op.Function, op.Column, sheet)),
	}
}

// filterFormula renders =FILTER(range, (cond1) * (cond2)); AND multiplies
// conditions, OR adds them.
func (g *FormulaGenerator) filterFormula(op *FilterOp) string {
	parts := make([]string, 0, len(op.Conditions))
	for _, cond := range op.Conditions {
		letter := g.columnLetter(op.FileID, op.Table, cond.Column)
		colRange := fmt.Sprintf("%s!%s:%s", op.Table, letter, letter)
		value := formatLiteral(cond.Value)

		if cond.Op == "contains" {
			parts = append(parts, fmt.Sprintf("ISNUMBER(SEARCH(%s,%s))", value, colRange))
			continue
		}
		parts = append(parts, fmt.Sprintf("(%s%s%s)", colRange, cond.Op, value))
	}

	joiner := " * "
	if op.Logic == "OR" {
		joiner = " + "
	}
	return fmt.Sprintf("=FILTER(%s, %s)", g.dataRange(op.FileID, op.Table), strings.Join(parts, joiner))
}

func (g *FormulaGenerator) sortFormula(op *SortOp) string {
	dataRange := g.dataRange(op.FileID, op.Table)

	var columns []string
	if table, err := g.collection.Table(op.FileID, op.Table); err == nil {
		columns = table.Columns()
	}
	index := func(name string) int {
		for i, col := range columns {
			if col == name {
				return i + 1
			}
		}
		return 1
	}
	direction := func(order string) string {
		if order == "desc" {
			return "-1"
		}
		return "1"
	}

	if len(op.By) == 1 {
		return fmt.Sprintf("=SORT(%s, %d, %s)", dataRange, index(op.By[0].Column), direction(op.By[0].Order))
	}
	indices := make([]string, len(op.By))
	orders := make([]string, len(op.By))
	for i, rule := range op.By {
		indices[i] = fmt.Sprintf("%d", index(rule.Column))
		orders[i] = direction(rule.Order)
	}
	return fmt.Sprintf("=SORT(%s, {%s}, {%s})", dataRange, strings.Join(indices, ", "), strings.Join(orders, ", "))
}

func (g *FormulaGenerator) groupByFormula(op *GroupByOp) string {
	groupRanges := make([]string, len(op.GroupColumns))
	for i, name := range op.GroupColumns {
		letter := g.columnLetter(op.FileID, op.Table, name)
		groupRanges[i] = fmt.Sprintf("%s!%s:%s", op.Table, letter, letter)
	}
	groupRange := groupRanges[0]
	if len(groupRanges) > 1 {
		groupRange = fmt.Sprintf("HSTACK(%s)", strings.Join(groupRanges, ", "))
	}

	if len(op.Aggregations) == 1 {
		agg := op.Aggregations[0]
		letter := g.columnLetter(op.FileID, op.Table, agg.Column)
		aggRange := fmt.Sprintf("%s!%s:%s", op.Table, letter, letter)
		return fmt.Sprintf("=GROUPBY(%s, %s, %s)", groupRange, aggRange, agg.Function)
	}

	aggParts := make([]string, len(op.Aggregations))
	for i, agg := range op.Aggregations {
		letter := g.columnLetter(op.FileID, op.Table, agg.Column)
		aggParts[i] = fmt.Sprintf("%s(%s!%s:%s)", agg.Function, op.Table, letter, letter)
	}
	return fmt.Sprintf("=GROUPBY(%s, ..., LAMBDA(x, HSTACK(%s)))", groupRange, strings.Join(aggParts, ", "))
}

func (g *FormulaGenerator) takeFormula(op *TakeOp) string {
	return fmt.Sprintf("=TAKE(%s, %d)", g.dataRange(op.FileID, op.Table), op.Rows)
}

// Report flattens records into human-readable text, one numbered block per
// operation.
func Report(records []FormulaRecord) string {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec.Description)
		if rec.Filename != "" {
			fmt.Fprintf(&b, "   file: %s\n", rec.Filename)
		}
		if rec.Sheet != "" {
			fmt.Fprintf(&b, "   sheet: %s\n", rec.Sheet)
		}
		if rec.OutputSheet != "" && rec.OutputSheet != rec.Sheet {
			fmt.Fprintf(&b, "   output sheet: %s\n", rec.OutputSheet)
		}
		if rec.Column != "" {
			fmt.Fprintf(&b, "   column: %s\n", rec.Column)
		}
		if rec.Variable != "" {
			fmt.Fprintf(&b, "   variable: %s\n", rec.Variable)
		}
		if rec.Formula != "" {
			fmt.Fprintf(&b, "   formula: %s\n", rec.Formula)
		}
		if rec.Note != "" {
			fmt.Fprintf(&b, "   note: %s\n", rec.Note)
		}
	}
	return b.String()
}
