package sheetops

import (
	"fmt"
	"strings"
)

// Evaluator walks a decoded expression tree against a row context, the
// accumulated variable context, and a read-only FileCollection for
// cross-sheet references. The same instance is reused across rows via SetRow.
//
// A hard Go error means the expression referenced something that does not
// exist or was malformed past what the parser admits; expected spreadsheet
// failures come back as CellError values.
type Evaluator struct {
	collection *FileCollection
	funcs      map[string]builtinFunc
	rowCtx     map[string]Value
	vars       map[string]Value
}

// NewRowEvaluator builds an evaluator for per-row formulas.
func NewRowEvaluator(collection *FileCollection, vars map[string]Value) *Evaluator {
	return &Evaluator{collection: collection, funcs: rowFuncs, vars: vars}
}

// NewScalarEvaluator builds an evaluator for compute expressions, which see
// variables but no row context.
func NewScalarEvaluator(collection *FileCollection, vars map[string]Value) *Evaluator {
	return &Evaluator{collection: collection, funcs: scalarFuncs, vars: vars}
}

// SetRow swaps the current row context.
func (e *Evaluator) SetRow(row map[string]Value) {
	e.rowCtx = row
}

// Eval evaluates one expression tree.
func (e *Evaluator) Eval(expr Expr) (Value, error) {
	switch n := expr.(type) {
	case *Literal:
		return n.Value, nil
	case *ColumnRef:
		v, ok := e.rowCtx[n.Name]
		if !ok {
			return nil, fmt.Errorf("unknown column: %s", n.Name)
		}
		return v, nil
	case *VarRef:
		v, ok := e.vars[n.Name]
		if !ok {
			return nil, fmt.Errorf("undefined variable: %s", n.Name)
		}
		return v, nil
	case *CrossRef:
		return e.resolveCrossRef(n)
	case *FuncCall:
		return e.evalFunc(n)
	case *BinaryOp:
		left, err := e.Eval(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.Eval(n.Right)
		if err != nil {
			return nil, err
		}
		return applyBinary(n.Op, left, right)
	case nil:
		return nil, fmt.Errorf("nil expression")
	}
	return nil, fmt.Errorf("unknown expression type %T", expr)
}

func (e *Evaluator) resolveCrossRef(ref *CrossRef) (Value, error) {
	table, err := e.collection.Table(ref.FileID, ref.Sheet)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", ref.Ref(), err)
	}
	col, err := table.Column(ref.Column)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", ref.Ref(), err)
	}
	return col, nil
}

func (e *Evaluator) evalFunc(call *FuncCall) (Value, error) {
	name := strings.ToUpper(call.Name)

	switch name {
	case "IF":
		return e.evalIf(call.Args)
	case "AND":
		return e.evalAnd(call.Args)
	case "OR":
		return e.evalOr(call.Args)
	case "COUNTIFS":
		return e.evalCountIfs(call.Args)
	case "VLOOKUP":
		return e.evalVlookup(call.Args)
	}

	args := make([]Value, len(call.Args))
	for i, arg := range call.Args {
		v, err := e.Eval(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if fn, ok := e.funcs[name]; ok {
		return fn(args)
	}
	return nil, fmt.Errorf("unknown function: %s", call.Name)
}

// evalIf short-circuits: only the taken branch is evaluated. An error value
// in the condition propagates rather than being treated as falsy.
func (e *Evaluator) evalIf(args []Expr) (Value, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("IF expects 3 arguments, got %d", len(args))
	}
	cond, err := e.Eval(args[0])
	if err != nil {
		return nil, err
	}
	if ce, ok := cond.(CellError); ok {
		return ce, nil
	}
	if isTruthy(cond) {
		return e.Eval(args[1])
	}
	return e.Eval(args[2])
}

func (e *Evaluator) evalAnd(args []Expr) (Value, error) {
	for _, arg := range args {
		v, err := e.Eval(arg)
		if err != nil {
			return nil, err
		}
		if ce, ok := v.(CellError); ok {
			return ce, nil
		}
		if !isTruthy(v) {
			return Boolean(false), nil
		}
	}
	return Boolean(true), nil
}

func (e *Evaluator) evalOr(args []Expr) (Value, error) {
	for _, arg := range args {
		v, err := e.Eval(arg)
		if err != nil {
			return nil, err
		}
		if ce, ok := v.(CellError); ok {
			return ce, nil
		}
		if isTruthy(v) {
			return Boolean(true), nil
		}
	}
	return Boolean(false), nil
}

// evalCountIfs takes alternating (range, criterion) argument pairs. Each
// range must resolve to a whole column; criteria may be column references or
// literals.
func (e *Evaluator) evalCountIfs(args []Expr) (Value, error) {
	if len(args) < 2 || len(args)%2 != 0 {
		return nil, fmt.Errorf("COUNTIFS arguments must be (range, criterion) pairs")
	}
	var ranges []Range
	var criteria []Value
	for i := 0; i < len(args); i += 2 {
		rv, err := e.Eval(args[i])
		if err != nil {
			return nil, err
		}
		r, ok := rv.(Range)
		if !ok {
			return nil, fmt.Errorf("COUNTIFS range argument must be a cross-sheet reference")
		}
		cv, err := e.Eval(args[i+1])
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
		criteria = append(criteria, cv)
	}
	return aggCountIfs(ranges, criteria)
}

// evalVlookup scans the key column of "file_id.sheet" for the first exact
// match and returns the aligned value column entry. Every failure inside the
// lookup resolves to #N/A; lookups never raise.
func (e *Evaluator) evalVlookup(args []Expr) (Value, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("VLOOKUP expects 4 arguments, got %d", len(args))
	}
	lookup, err := e.Eval(args[0])
	if err != nil {
		return nil, err
	}
	tableRef, err := e.Eval(args[1])
	if err != nil {
		return nil, err
	}
	keyCol, err := e.Eval(args[2])
	if err != nil {
		return nil, err
	}
	valueCol, err := e.Eval(args[3])
	if err != nil {
		return nil, err
	}

	refText, ok := tableRef.(Text)
	if !ok {
		return ErrNA, nil
	}
	parts := strings.Split(string(refText), ".")
	if len(parts) != 2 {
		return ErrNA, nil
	}
	table, err := e.collection.Table(parts[0], parts[1])
	if err != nil {
		return ErrNA, nil
	}
	keys, err := table.Column(ValueString(keyCol))
	if err != nil {
		return ErrNA, nil
	}
	values, err := table.Column(ValueString(valueCol))
	if err != nil {
		return ErrNA, nil
	}
	for i, key := range keys {
		if equalValues(key, lookup) {
			if i < len(values) {
				return values[i], nil
			}
			return ErrNA, nil
		}
	}
	return ErrNA, nil
}
