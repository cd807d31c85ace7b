package sheetops

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Aggregate reductions. SUM/COUNT/AVERAGE/MIN/MAX/MEDIAN silently skip
// blanks and non-numeric cells; COUNTA counts every non-blank cell.

func aggSum(values Range) Value {
	total := 0.0
	for _, v := range values {
		if n, ok := v.(Number); ok {
			total += float64(n)
		}
	}
	return Number(total)
}

func aggCount(values Range) Value {
	count := 0
	for _, v := range values {
		if _, ok := v.(Number); ok {
			count++
		}
	}
	return Number(count)
}

func aggCountA(values Range) Value {
	count := 0
	for _, v := range values {
		if !IsBlank(v) {
			count++
		}
	}
	return Number(count)
}

func aggAverage(values Range) Value {
	total, count := 0.0, 0
	for _, v := range values {
		if n, ok := v.(Number); ok {
			total += float64(n)
			count++
		}
	}
	if count == 0 {
		return ErrDiv0
	}
	return Number(total / float64(count))
}

func aggMin(values Range) Value {
	nums := validNumbers(values)
	if len(nums) == 0 {
		return ErrValue
	}
	min := nums[0]
	for _, n := range nums[1:] {
		if n < min {
			min = n
		}
	}
	return Number(min)
}

func aggMax(values Range) Value {
	nums := validNumbers(values)
	if len(nums) == 0 {
		return ErrValue
	}
	max := nums[0]
	for _, n := range nums[1:] {
		if n > max {
			max = n
		}
	}
	return Number(max)
}

func aggMedian(values Range) Value {
	nums := validNumbers(values)
	if len(nums) == 0 {
		return ErrValue
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 0 {
		return Number((nums[mid-1] + nums[mid]) / 2)
	}
	return Number(nums[mid])
}

func validNumbers(values Range) []float64 {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if n, ok := v.(Number); ok {
			nums = append(nums, float64(n))
		}
	}
	return nums
}

// simpleAggregates maps names to single-column reductions.
var simpleAggregates = map[string]func(Range) Value{
	"SUM":     aggSum,
	"COUNT":   aggCount,
	"COUNTA":  aggCountA,
	"AVERAGE": aggAverage,
	"MIN":     aggMin,
	"MAX":     aggMax,
	"MEDIAN":  aggMedian,
}

// MatchCriterion implements the *IF/*IFS criterion matcher: an exact match
// (numeric, boolean, or string) or a comparison-prefixed string such as
// ">100", "<=0", "<>x". A comparison whose operand does not parse as a number
// never matches.
func MatchCriterion(v Value, criterion Value) bool {
	switch c := criterion.(type) {
	case Number, Boolean:
		return equalValues(v, c)
	case Text:
		cond := strings.TrimSpace(string(c))
		for _, prefix := range []string{">=", "<=", "<>", ">", "<"} {
			if !strings.HasPrefix(cond, prefix) {
				continue
			}
			operand := cond[len(prefix):]
			if prefix == "<>" {
				if num, ok := coerceNumber(Text(operand)); ok {
					if n, isNum := v.(Number); isNum {
						return float64(n) != num
					}
					return true
				}
				return ValueString(v) != operand
			}
			num, ok := coerceNumber(Text(operand))
			if !ok {
				return false
			}
			n, isNum := v.(Number)
			if !isNum {
				return false
			}
			return compareFloat(prefix, float64(n), num)
		}
		return ValueString(v) == cond
	}
	return false
}

func aggSumIf(sumRange, criteriaRange Range, criterion Value) (Value, error) {
	if len(sumRange) != len(criteriaRange) {
		return nil, fmt.Errorf("SUMIF: sum range has %d values, criteria range has %d", len(sumRange), len(criteriaRange))
	}
	total := 0.0
	for i, check := range criteriaRange {
		if !MatchCriterion(check, criterion) {
			continue
		}
		if n, ok := sumRange[i].(Number); ok {
			total += float64(n)
		}
	}
	return Number(total), nil
}

func aggCountIf(criteriaRange Range, criterion Value) Value {
	count := 0
	for _, check := range criteriaRange {
		if MatchCriterion(check, criterion) {
			count++
		}
	}
	return Number(count)
}

func aggAverageIf(avgRange, criteriaRange Range, criterion Value) (Value, error) {
	if len(avgRange) != len(criteriaRange) {
		return nil, fmt.Errorf("AVERAGEIF: average range has %d values, criteria range has %d", len(avgRange), len(criteriaRange))
	}
	total, count := 0.0, 0
	for i, check := range criteriaRange {
		if !MatchCriterion(check, criterion) {
			continue
		}
		if n, ok := avgRange[i].(Number); ok {
			total += float64(n)
			count++
		}
	}
	if count == 0 {
		return ErrDiv0, nil
	}
	return Number(total / float64(count)), nil
}

// aggCountIfs counts rows where every (range, criterion) pair matches.
// All ranges must have equal length.
func aggCountIfs(ranges []Range, criteria []Value) (Value, error) {
	if len(ranges) == 0 || len(ranges) != len(criteria) {
		return nil, fmt.Errorf("COUNTIFS: arguments must be non-empty (range, criterion) pairs")
	}
	length := len(ranges[0])
	for _, r := range ranges {
		if len(r) != length {
			return nil, fmt.Errorf("COUNTIFS: all ranges must have equal length")
		}
	}
	count := 0
	for row := 0; row < length; row++ {
		all := true
		for i, r := range ranges {
			if !MatchCriterion(r[row], criteria[i]) {
				all = false
				break
			}
		}
		if all {
			count++
		}
	}
	return Number(count), nil
}

// Row-level functions. Each takes already-evaluated arguments. A returned Go
// error is a hard failure (bad arity, uncoercible operand) that the executor
// turns into an #ERROR cell; expected spreadsheet failures come back as
// CellError values.

type builtinFunc func(args []Value) (Value, error)

func arity(name string, min, max int, args []Value) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		if min == max {
			return fmt.Errorf("%s expects %d arguments, got %d", name, min, len(args))
		}
		return fmt.Errorf("%s expects %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

// toInt coerces a value to an integer argument. The second return is non-nil
// when a cell error should be returned instead.
func toInt(v Value) (int, Value) {
	switch v := v.(type) {
	case CellError:
		return 0, v
	case nil:
		return 0, ErrValue
	case Boolean:
		if v {
			return 1, nil
		}
		return 0, nil
	case Number:
		return int(v), nil
	case Text:
		f, ok := coerceNumber(v)
		if !ok {
			return 0, ErrValue
		}
		return int(f), nil
	}
	return 0, ErrValue
}

// toText stringifies a text-function operand, propagating cell errors.
func toText(v Value) (string, Value) {
	if e, ok := v.(CellError); ok {
		return "", e
	}
	return ValueString(v), nil
}

func fnNot(args []Value) (Value, error) {
	if err := arity("NOT", 1, 1, args); err != nil {
		return nil, err
	}
	if e, ok := args[0].(CellError); ok {
		return e, nil
	}
	return Boolean(!isTruthy(args[0])), nil
}

func fnIsBlank(args []Value) (Value, error) {
	if err := arity("ISBLANK", 1, 1, args); err != nil {
		return nil, err
	}
	return Boolean(IsBlank(args[0])), nil
}

func fnIsNA(args []Value) (Value, error) {
	if err := arity("ISNA", 1, 1, args); err != nil {
		return nil, err
	}
	e, ok := args[0].(CellError)
	return Boolean(ok && e == ErrNA), nil
}

func fnIsNumber(args []Value) (Value, error) {
	if err := arity("ISNUMBER", 1, 1, args); err != nil {
		return nil, err
	}
	return Boolean(isNumber(args[0])), nil
}

func fnIsError(args []Value) (Value, error) {
	if err := arity("ISERROR", 1, 1, args); err != nil {
		return nil, err
	}
	return Boolean(IsError(args[0])), nil
}

func fnIfError(args []Value) (Value, error) {
	if err := arity("IFERROR", 2, 2, args); err != nil {
		return nil, err
	}
	if IsError(args[0]) {
		return args[1], nil
	}
	return args[0], nil
}

func fnRound(args []Value) (Value, error) {
	if err := arity("ROUND", 2, 2, args); err != nil {
		return nil, err
	}
	if e, ok := args[0].(CellError); ok {
		return e, nil
	}
	f, ok := coerceNumber(args[0])
	if !ok {
		return nil, fmt.Errorf("ROUND: cannot convert %v to a number", ValueString(args[0]))
	}
	digits, errv := toInt(args[1])
	if errv != nil {
		return errv, nil
	}
	p := math.Pow(10, float64(digits))
	return Number(math.Round(f*p) / p), nil
}

func fnAbs(args []Value) (Value, error) {
	if err := arity("ABS", 1, 1, args); err != nil {
		return nil, err
	}
	if e, ok := args[0].(CellError); ok {
		return e, nil
	}
	f, ok := coerceNumber(args[0])
	if !ok {
		return nil, fmt.Errorf("ABS: cannot convert %v to a number", ValueString(args[0]))
	}
	return Number(math.Abs(f)), nil
}

func fnLeft(args []Value) (Value, error) {
	if err := arity("LEFT", 2, 2, args); err != nil {
		return nil, err
	}
	text, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	n, errv := toInt(args[1])
	if errv != nil {
		return errv, nil
	}
	if n < 0 {
		return ErrValue, nil
	}
	runes := []rune(text)
	if n > len(runes) {
		n = len(runes)
	}
	return Text(runes[:n]), nil
}

func fnRight(args []Value) (Value, error) {
	if err := arity("RIGHT", 2, 2, args); err != nil {
		return nil, err
	}
	text, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	n, errv := toInt(args[1])
	if errv != nil {
		return errv, nil
	}
	if n < 0 {
		return ErrValue, nil
	}
	runes := []rune(text)
	if n > len(runes) {
		n = len(runes)
	}
	return Text(runes[len(runes)-n:]), nil
}

func fnMid(args []Value) (Value, error) {
	if err := arity("MID", 3, 3, args); err != nil {
		return nil, err
	}
	text, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	start, errv := toInt(args[1])
	if errv != nil {
		return errv, nil
	}
	n, errv := toInt(args[2])
	if errv != nil {
		return errv, nil
	}
	if start < 1 || n < 0 {
		return ErrValue, nil
	}
	runes := []rune(text)
	from := start - 1
	if from >= len(runes) {
		return Text(""), nil
	}
	to := from + n
	if to > len(runes) {
		to = len(runes)
	}
	return Text(runes[from:to]), nil
}

func fnLen(args []Value) (Value, error) {
	if err := arity("LEN", 1, 1, args); err != nil {
		return nil, err
	}
	text, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	return Number(len([]rune(text))), nil
}

func fnTrim(args []Value) (Value, error) {
	if err := arity("TRIM", 1, 1, args); err != nil {
		return nil, err
	}
	text, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	return Text(strings.TrimSpace(text)), nil
}

func fnUpper(args []Value) (Value, error) {
	if err := arity("UPPER", 1, 1, args); err != nil {
		return nil, err
	}
	text, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	return Text(strings.ToUpper(text)), nil
}

func fnLower(args []Value) (Value, error) {
	if err := arity("LOWER", 1, 1, args); err != nil {
		return nil, err
	}
	text, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	return Text(strings.ToLower(text)), nil
}

func fnProper(args []Value) (Value, error) {
	if err := arity("PROPER", 1, 1, args); err != nil {
		return nil, err
	}
	text, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	return Text(properCase(text)), nil
}

// properCase upper-cases the first letter of every word and lower-cases the
// rest, with any non-letter acting as a word boundary.
func properCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}

func fnConcat(args []Value) (Value, error) {
	var b strings.Builder
	for _, arg := range args {
		text, errv := toText(arg)
		if errv != nil {
			return errv, nil
		}
		b.WriteString(text)
	}
	return Text(b.String()), nil
}

func fnText(args []Value) (Value, error) {
	if err := arity("TEXT", 2, 2, args); err != nil {
		return nil, err
	}
	format, errv := toText(args[1])
	if errv != nil {
		return errv, nil
	}
	f, ok := coerceNumber(args[0])
	if !ok {
		return Text(ValueString(args[0])), nil
	}
	if dot := strings.LastIndex(format, "."); dot >= 0 {
		decimals := len(format) - dot - 1
		return Text(fmt.Sprintf("%.*f", decimals, f)), nil
	}
	return Text(FormatNumber(math.Trunc(f))), nil
}

func fnValue(args []Value) (Value, error) {
	if err := arity("VALUE", 1, 1, args); err != nil {
		return nil, err
	}
	if e, ok := args[0].(CellError); ok {
		return e, nil
	}
	f, ok := coerceNumber(args[0])
	if !ok {
		return ErrValue, nil
	}
	return Number(f), nil
}

// findIn returns the 1-based rune position of find within text starting at
// startNum, or #VALUE! when absent. Case folding is applied by SEARCH.
func findIn(find, within string, startNum int) Value {
	if startNum < 1 {
		return ErrValue
	}
	withinRunes := []rune(within)
	if startNum-1 > len(withinRunes) {
		return ErrValue
	}
	idx := strings.Index(string(withinRunes[startNum-1:]), find)
	if idx < 0 {
		return ErrValue
	}
	prefix := string(withinRunes[startNum-1:])[:idx]
	return Number(startNum + len([]rune(prefix)))
}

func fnFind(args []Value) (Value, error) {
	if err := arity("FIND", 2, 3, args); err != nil {
		return nil, err
	}
	find, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	within, errv := toText(args[1])
	if errv != nil {
		return errv, nil
	}
	start := 1
	if len(args) == 3 {
		var e Value
		start, e = toInt(args[2])
		if e != nil {
			return e, nil
		}
	}
	return findIn(find, within, start), nil
}

func fnSearch(args []Value) (Value, error) {
	if err := arity("SEARCH", 2, 3, args); err != nil {
		return nil, err
	}
	find, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	within, errv := toText(args[1])
	if errv != nil {
		return errv, nil
	}
	start := 1
	if len(args) == 3 {
		var e Value
		start, e = toInt(args[2])
		if e != nil {
			return e, nil
		}
	}
	return findIn(strings.ToLower(find), strings.ToLower(within), start), nil
}

func fnSubstitute(args []Value) (Value, error) {
	if err := arity("SUBSTITUTE", 3, 4, args); err != nil {
		return nil, err
	}
	text, errv := toText(args[0])
	if errv != nil {
		return errv, nil
	}
	oldText, errv := toText(args[1])
	if errv != nil {
		return errv, nil
	}
	newText, errv := toText(args[2])
	if errv != nil {
		return errv, nil
	}
	if oldText == "" {
		return Text(text), nil
	}
	if len(args) < 4 {
		return Text(strings.ReplaceAll(text, oldText, newText)), nil
	}
	instance, e := toInt(args[3])
	if e != nil {
		return e, nil
	}
	if instance < 1 {
		return Text(text), nil
	}
	count, from := 0, 0
	for {
		idx := strings.Index(text[from:], oldText)
		if idx < 0 {
			return Text(text), nil
		}
		pos := from + idx
		count++
		if count == instance {
			return Text(text[:pos] + newText + text[pos+len(oldText):]), nil
		}
		from = pos + 1
	}
}

// rowFuncs are the functions usable in per-row formulas. IF, AND, OR,
// COUNTIFS, and VLOOKUP are handled by the evaluator itself (short-circuiting
// and range access).
var rowFuncs = map[string]builtinFunc{
	"NOT":        fnNot,
	"ISBLANK":    fnIsBlank,
	"ISNA":       fnIsNA,
	"ISNUMBER":   fnIsNumber,
	"ISERROR":    fnIsError,
	"IFERROR":    fnIfError,
	"ROUND":      fnRound,
	"ABS":        fnAbs,
	"LEFT":       fnLeft,
	"RIGHT":      fnRight,
	"MID":        fnMid,
	"LEN":        fnLen,
	"TRIM":       fnTrim,
	"UPPER":      fnUpper,
	"LOWER":      fnLower,
	"PROPER":     fnProper,
	"CONCAT":     fnConcat,
	"TEXT":       fnText,
	"VALUE":      fnValue,
	"FIND":       fnFind,
	"SEARCH":     fnSearch,
	"SUBSTITUTE": fnSubstitute,
}

func fnScalarMax(args []Value) (Value, error) {
	if err := arity("MAX", 2, 2, args); err != nil {
		return nil, err
	}
	return scalarExtreme("MAX", args)
}

func fnScalarMin(args []Value) (Value, error) {
	if err := arity("MIN", 2, 2, args); err != nil {
		return nil, err
	}
	return scalarExtreme("MIN", args)
}

func scalarExtreme(name string, args []Value) (Value, error) {
	for _, arg := range args {
		if e, ok := arg.(CellError); ok {
			return e, nil
		}
	}
	a, aok := coerceNumber(args[0])
	b, bok := coerceNumber(args[1])
	if !aok || !bok {
		return nil, fmt.Errorf("%s: both arguments must be numbers", name)
	}
	if (name == "MAX") == (a > b) {
		return Number(a), nil
	}
	return Number(b), nil
}

// scalarFuncs are the functions usable in compute expressions.
var scalarFuncs = map[string]builtinFunc{
	"ROUND": fnRound,
	"ABS":   fnAbs,
	"MAX":   fnScalarMax,
	"MIN":   fnScalarMin,
}
