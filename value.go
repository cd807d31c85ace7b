// Package sheetops implements a small typed operation language over tabular
// spreadsheet data: a JSON expression grammar, a sequential executor with
// Excel-faithful value semantics, and a generator that renders the same
// operations as native Excel formulas.
package sheetops

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the cell value domain. The closed set of variants is Number, Text,
// Boolean, CellError, and Range; a blank cell is a nil Value. Spreadsheet
// errors are ordinary values that propagate through expressions, never Go
// errors.
type Value interface{ isValue() }

// Number is a numeric cell value.
type Number float64

// Text is a string cell value.
type Text string

// Boolean is a boolean cell value.
type Boolean bool

// CellError is a spreadsheet error value such as "#N/A". It propagates through
// any operator or function that consumes it.
type CellError string

// Range is a whole-column sequence of values. It is produced only by
// cross-sheet references and is consumed by range-style functions; it never
// appears as a scalar result.
type Range []Value

func (Number) isValue()    {}
func (Text) isValue()      {}
func (Boolean) isValue()   {}
func (CellError) isValue() {}
func (Range) isValue()     {}

// Predefined spreadsheet errors.
const (
	ErrNA    CellError = "#N/A"
	ErrDiv0  CellError = "#DIV/0!"
	ErrValue CellError = "#VALUE!"
	ErrRef   CellError = "#REF!"

	// ErrGeneric marks a cell whose row formula failed outright
	// (validator escape, range misuse, unexpected shape).
	ErrGeneric CellError = "#ERROR"
)

// IsBlank reports whether v is a blank cell: nil or the empty string.
func IsBlank(v Value) bool {
	if v == nil {
		return true
	}
	t, ok := v.(Text)
	return ok && t == ""
}

// IsError reports whether v is a spreadsheet error value.
func IsError(v Value) bool {
	_, ok := v.(CellError)
	return ok
}

// isNumber reports whether v is a plain numeric value (booleans excluded).
func isNumber(v Value) bool {
	_, ok := v.(Number)
	return ok
}

// coerceNumber returns v as a float64 when v is a Number or numeric-looking
// Text.
func coerceNumber(v Value) (float64, bool) {
	switch v := v.(type) {
	case Number:
		return float64(v), true
	case Text:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// FormatNumber renders a float the way Excel displays it: no trailing zeros,
// no exponent for ordinary magnitudes.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ValueString stringifies v for display and for the text operators. Blank
// becomes the empty string.
func ValueString(v Value) string {
	switch v := v.(type) {
	case nil:
		return ""
	case Number:
		return FormatNumber(float64(v))
	case Text:
		return string(v)
	case Boolean:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case CellError:
		return string(v)
	case Range:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = ValueString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}

// FromAny converts a decoded JSON (or expr-lang) value into a Value.
func FromAny(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case Value:
		return v, nil
	case bool:
		return Boolean(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(v), nil
	case int:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case uint64:
		return Number(v), nil
	case string:
		return Text(v), nil
	case []any:
		r := make(Range, len(v))
		for i, item := range v {
			iv, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			r[i] = iv
		}
		return r, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// ToAny converts a Value into a plain Go value for JSON encoding and for the
// legacy expression environment. Cell errors become their code string.
func ToAny(v Value) any {
	switch v := v.(type) {
	case nil:
		return nil
	case Number:
		return float64(v)
	case Text:
		return string(v)
	case Boolean:
		return bool(v)
	case CellError:
		return string(v)
	case Range:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ToAny(item)
		}
		return out
	}
	return v
}

// equalValues implements the structural equality behind "=" and "<>".
// Values of different variants are never equal.
func equalValues(a, b Value) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case Number:
		bn, ok := b.(Number)
		return ok && a == bn
	case Text:
		bt, ok := b.(Text)
		return ok && a == bt
	case Boolean:
		bb, ok := b.(Boolean)
		return ok && a == bb
	case CellError:
		be, ok := b.(CellError)
		return ok && a == be
	}
	return false
}

// isTruthy converts a value to a condition result for IF/AND/OR/NOT.
func isTruthy(v Value) bool {
	switch v := v.(type) {
	case nil:
		return false
	case Boolean:
		return bool(v)
	case Number:
		return v != 0
	case Text:
		return v != ""
	}
	return false
}

// arithmeticOps and comparisonOps are the operator subsets with dedicated
// coercion rules in applyBinary.
var arithmeticOps = map[string]bool{"+": true, "-": true, "*": true, "/": true}
var comparisonOps = map[string]bool{">": true, "<": true, ">=": true, "<=": true}

// applyBinary applies a binary operator with Excel semantics. Errors in either
// operand short-circuit before any other rule. An unknown operator or a Range
// operand is a hard error, not a cell error.
func applyBinary(op string, left, right Value) (Value, error) {
	if e, ok := left.(CellError); ok {
		return e, nil
	}
	if e, ok := right.(CellError); ok {
		return e, nil
	}
	if _, ok := left.(Range); ok {
		return nil, fmt.Errorf("operator %q: left operand is a range", op)
	}
	if _, ok := right.(Range); ok {
		return nil, fmt.Errorf("operator %q: right operand is a range", op)
	}

	switch {
	case arithmeticOps[op]:
		if IsBlank(left) || IsBlank(right) {
			return ErrValue, nil
		}
		a, aok := coerceNumber(left)
		b, bok := coerceNumber(right)
		if !aok || !bok {
			return ErrValue, nil
		}
		switch op {
		case "+":
			return Number(a + b), nil
		case "-":
			return Number(a - b), nil
		case "*":
			return Number(a * b), nil
		case "/":
			if b == 0 {
				return ErrDiv0, nil
			}
			return Number(a / b), nil
		}

	case comparisonOps[op]:
		return Boolean(compareValues(op, left, right)), nil

	case op == "=":
		return Boolean(equalValues(left, right)), nil

	case op == "<>":
		return Boolean(!equalValues(left, right)), nil

	case op == "&":
		return Text(ValueString(left) + ValueString(right)), nil
	}

	return nil, fmt.Errorf("unknown operator: %q", op)
}

// compareValues implements Excel's cross-type ordering for > < >= <=:
// blanks never compare true; two numeric (or numeric-text) operands compare
// numerically; a number always ranks below non-numeric text; two non-numeric
// operands compare as strings.
func compareValues(op string, left, right Value) bool {
	if IsBlank(left) || IsBlank(right) {
		return false
	}

	a, aok := coerceNumber(left)
	b, bok := coerceNumber(right)

	switch {
	case aok && bok:
		return compareFloat(op, a, b)
	case aok && !bok:
		// number vs text: number is smaller
		return op == "<" || op == "<="
	case !aok && bok:
		return op == ">" || op == ">="
	}
	return compareString(op, ValueString(left), ValueString(right))
}

func compareFloat(op string, a, b float64) bool {
	switch op {
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	}
	return false
}

func compareString(op string, a, b string) bool {
	switch op {
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	}
	return false
}
