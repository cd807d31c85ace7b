package sheetops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregates_SkipNonNumeric(t *testing.T) {
	values := Range{Number(1), Text("x"), Number(3), nil, Boolean(true)}

	assert.Equal(t, Number(4), aggSum(values))
	assert.Equal(t, Number(2), aggCount(values))
	assert.Equal(t, Number(4), aggCountA(values))
	assert.Equal(t, Number(2), aggAverage(values))
	assert.Equal(t, Number(1), aggMin(values))
	assert.Equal(t, Number(3), aggMax(values))
	assert.Equal(t, Number(2), aggMedian(values))
}

func TestAggregates_EmptyInput(t *testing.T) {
	empty := Range{Text("x"), nil}

	assert.Equal(t, Number(0), aggSum(empty))
	assert.Equal(t, Number(0), aggCount(empty))
	assert.Equal(t, ErrDiv0, aggAverage(empty))
	assert.Equal(t, ErrValue, aggMin(empty))
	assert.Equal(t, ErrValue, aggMax(empty))
	assert.Equal(t, ErrValue, aggMedian(empty))
}

func TestAggMedian_EvenCount(t *testing.T) {
	assert.Equal(t, Number(2.5), aggMedian(Range{Number(4), Number(1), Number(2), Number(3)}))
}

func TestMatchCriterion_Exact(t *testing.T) {
	assert.True(t, MatchCriterion(Number(5), Number(5)))
	assert.False(t, MatchCriterion(Number(5), Number(6)))
	assert.True(t, MatchCriterion(Boolean(true), Boolean(true)))
	assert.True(t, MatchCriterion(Text("East"), Text("East")))
	assert.False(t, MatchCriterion(Text("East"), Text("West")))
	// Number values stringify for plain text criteria.
	assert.True(t, MatchCriterion(Number(5), Text("5")))
}

func TestMatchCriterion_Comparisons(t *testing.T) {
	assert.True(t, MatchCriterion(Number(150), Text(">100")))
	assert.False(t, MatchCriterion(Number(100), Text(">100")))
	assert.True(t, MatchCriterion(Number(100), Text(">=100")))
	assert.True(t, MatchCriterion(Number(-1), Text("<0")))
	assert.True(t, MatchCriterion(Number(0), Text("<=0")))

	// Comparisons only match numeric values.
	assert.False(t, MatchCriterion(Text("150"), Text(">100")))
	// A comparison operand that is not a number never matches.
	assert.False(t, MatchCriterion(Number(5), Text(">abc")))
}

func TestMatchCriterion_NotEqual(t *testing.T) {
	assert.True(t, MatchCriterion(Number(5), Text("<>3")))
	assert.False(t, MatchCriterion(Number(3), Text("<>3")))
	// Non-numeric values always differ from a numeric operand.
	assert.True(t, MatchCriterion(Text("x"), Text("<>3")))
	// Text operand compares by string form.
	assert.True(t, MatchCriterion(Text("a"), Text("<>b")))
	assert.False(t, MatchCriterion(Text("b"), Text("<>b")))
}

func TestAggSumIf(t *testing.T) {
	sums := Range{Number(10), Number(20), Number(30)}
	crit := Range{Text("A"), Text("B"), Text("A")}

	v, err := aggSumIf(sums, crit, Text("A"))
	require.NoError(t, err)
	assert.Equal(t, Number(40), v)

	_, err = aggSumIf(sums, crit[:2], Text("A"))
	assert.Error(t, err)
}

func TestAggCountIf(t *testing.T) {
	crit := Range{Number(5), Number(15), Number(25)}
	assert.Equal(t, Number(2), aggCountIf(crit, Text(">10")))
}

func TestAggAverageIf(t *testing.T) {
	avg := Range{Number(10), Number(20), Number(30)}
	crit := Range{Text("A"), Text("A"), Text("B")}

	v, err := aggAverageIf(avg, crit, Text("A"))
	require.NoError(t, err)
	assert.Equal(t, Number(15), v)

	v, err = aggAverageIf(avg, crit, Text("C"))
	require.NoError(t, err)
	assert.Equal(t, ErrDiv0, v)
}

func TestAggCountIfs(t *testing.T) {
	region := Range{Text("A"), Text("A"), Text("B")}
	amount := Range{Number(5), Number(50), Number(50)}

	v, err := aggCountIfs([]Range{region}, []Value{Text("A")})
	require.NoError(t, err)
	assert.Equal(t, Number(2), v)

	v, err = aggCountIfs([]Range{region, amount}, []Value{Text("A"), Text(">10")})
	require.NoError(t, err)
	assert.Equal(t, Number(1), v)

	_, err = aggCountIfs([]Range{region, amount[:2]}, []Value{Text("A"), Text(">10")})
	assert.Error(t, err)
	_, err = aggCountIfs(nil, nil)
	assert.Error(t, err)
}

func TestFnRound(t *testing.T) {
	v, err := fnRound([]Value{Number(2.345), Number(2)})
	require.NoError(t, err)
	assert.Equal(t, Number(2.35), v)

	// Halves round away from zero.
	v, err = fnRound([]Value{Number(2.5), Number(0)})
	require.NoError(t, err)
	assert.Equal(t, Number(3), v)
	v, err = fnRound([]Value{Number(-2.5), Number(0)})
	require.NoError(t, err)
	assert.Equal(t, Number(-3), v)

	v, err = fnRound([]Value{ErrNA, Number(0)})
	require.NoError(t, err)
	assert.Equal(t, ErrNA, v)

	_, err = fnRound([]Value{Text("abc"), Number(0)})
	assert.Error(t, err)
	_, err = fnRound([]Value{Number(1)})
	assert.Error(t, err)
}

func TestFnAbs(t *testing.T) {
	v, err := fnAbs([]Value{Number(-3)})
	require.NoError(t, err)
	assert.Equal(t, Number(3), v)
}

func TestTextFunctions(t *testing.T) {
	v, err := fnLeft([]Value{Text("hello"), Number(2)})
	require.NoError(t, err)
	assert.Equal(t, Text("he"), v)

	v, err = fnRight([]Value{Text("hello"), Number(3)})
	require.NoError(t, err)
	assert.Equal(t, Text("llo"), v)

	v, err = fnMid([]Value{Text("hello"), Number(2), Number(3)})
	require.NoError(t, err)
	assert.Equal(t, Text("ell"), v)

	v, err = fnLen([]Value{Text("héllo")})
	require.NoError(t, err)
	assert.Equal(t, Number(5), v)

	v, err = fnTrim([]Value{Text("  x  ")})
	require.NoError(t, err)
	assert.Equal(t, Text("x"), v)

	v, err = fnUpper([]Value{Text("abc")})
	require.NoError(t, err)
	assert.Equal(t, Text("ABC"), v)

	v, err = fnLower([]Value{Text("ABC")})
	require.NoError(t, err)
	assert.Equal(t, Text("abc"), v)

	v, err = fnProper([]Value{Text("john o'neil-smith")})
	require.NoError(t, err)
	assert.Equal(t, Text("John O'Neil-Smith"), v)
}

func TestTextFunctions_EdgeCases(t *testing.T) {
	// Counts beyond the string clamp.
	v, err := fnLeft([]Value{Text("ab"), Number(10)})
	require.NoError(t, err)
	assert.Equal(t, Text("ab"), v)

	// Negative counts are a value error.
	v, err = fnLeft([]Value{Text("ab"), Number(-1)})
	require.NoError(t, err)
	assert.Equal(t, ErrValue, v)

	v, err = fnMid([]Value{Text("ab"), Number(9), Number(2)})
	require.NoError(t, err)
	assert.Equal(t, Text(""), v)

	// Numbers stringify before slicing.
	v, err = fnLeft([]Value{Number(12345), Number(2)})
	require.NoError(t, err)
	assert.Equal(t, Text("12"), v)

	// Errors propagate through text operands.
	v, err = fnUpper([]Value{ErrNA})
	require.NoError(t, err)
	assert.Equal(t, ErrNA, v)
}

func TestFnConcat(t *testing.T) {
	v, err := fnConcat([]Value{Text("a"), Number(1), nil, Boolean(false)})
	require.NoError(t, err)
	assert.Equal(t, Text("a1FALSE"), v)

	v, err = fnConcat([]Value{Text("a"), ErrDiv0})
	require.NoError(t, err)
	assert.Equal(t, ErrDiv0, v)
}

func TestFnText(t *testing.T) {
	v, err := fnText([]Value{Number(3.14159), Text("0.00")})
	require.NoError(t, err)
	assert.Equal(t, Text("3.14"), v)

	v, err = fnText([]Value{Number(3.7), Text("0")})
	require.NoError(t, err)
	assert.Equal(t, Text("3"), v)

	// Non-numeric input falls back to its string form.
	v, err = fnText([]Value{Text("x"), Text("0.00")})
	require.NoError(t, err)
	assert.Equal(t, Text("x"), v)
}

func TestFnValue(t *testing.T) {
	v, err := fnValue([]Value{Text(" 42 ")})
	require.NoError(t, err)
	assert.Equal(t, Number(42), v)

	v, err = fnValue([]Value{Text("abc")})
	require.NoError(t, err)
	assert.Equal(t, ErrValue, v)
}

func TestFnFindAndSearch(t *testing.T) {
	v, err := fnFind([]Value{Text("lo"), Text("hello")})
	require.NoError(t, err)
	assert.Equal(t, Number(4), v)

	// FIND is case-sensitive, SEARCH is not.
	v, err = fnFind([]Value{Text("LO"), Text("hello")})
	require.NoError(t, err)
	assert.Equal(t, ErrValue, v)

	v, err = fnSearch([]Value{Text("LO"), Text("hello")})
	require.NoError(t, err)
	assert.Equal(t, Number(4), v)

	// Start position offsets the scan.
	v, err = fnFind([]Value{Text("l"), Text("hello"), Number(4)})
	require.NoError(t, err)
	assert.Equal(t, Number(4), v)
}

func TestFnSubstitute(t *testing.T) {
	v, err := fnSubstitute([]Value{Text("a-b-c"), Text("-"), Text("+")})
	require.NoError(t, err)
	assert.Equal(t, Text("a+b+c"), v)

	v, err = fnSubstitute([]Value{Text("a-b-c"), Text("-"), Text("+"), Number(2)})
	require.NoError(t, err)
	assert.Equal(t, Text("a-b+c"), v)

	// A missing instance leaves the text untouched.
	v, err = fnSubstitute([]Value{Text("a-b"), Text("-"), Text("+"), Number(5)})
	require.NoError(t, err)
	assert.Equal(t, Text("a-b"), v)
}

func TestPredicateFunctions(t *testing.T) {
	v, err := fnIsBlank([]Value{nil})
	require.NoError(t, err)
	assert.Equal(t, Boolean(true), v)

	v, err = fnIsNA([]Value{ErrNA})
	require.NoError(t, err)
	assert.Equal(t, Boolean(true), v)
	v, err = fnIsNA([]Value{ErrDiv0})
	require.NoError(t, err)
	assert.Equal(t, Boolean(false), v)

	v, err = fnIsNumber([]Value{Number(1)})
	require.NoError(t, err)
	assert.Equal(t, Boolean(true), v)
	v, err = fnIsNumber([]Value{Text("1")})
	require.NoError(t, err)
	assert.Equal(t, Boolean(false), v)

	v, err = fnIsError([]Value{ErrValue})
	require.NoError(t, err)
	assert.Equal(t, Boolean(true), v)

	v, err = fnIfError([]Value{ErrNA, Number(0)})
	require.NoError(t, err)
	assert.Equal(t, Number(0), v)
	v, err = fnIfError([]Value{Number(7), Number(0)})
	require.NoError(t, err)
	assert.Equal(t, Number(7), v)

	v, err = fnNot([]Value{Boolean(false)})
	require.NoError(t, err)
	assert.Equal(t, Boolean(true), v)
	v, err = fnNot([]Value{ErrNA})
	require.NoError(t, err)
	assert.Equal(t, ErrNA, v)
}

func TestScalarMinMax(t *testing.T) {
	v, err := fnScalarMax([]Value{Number(3), Number(7)})
	require.NoError(t, err)
	assert.Equal(t, Number(7), v)

	v, err = fnScalarMin([]Value{Number(3), Number(7)})
	require.NoError(t, err)
	assert.Equal(t, Number(3), v)

	v, err = fnScalarMax([]Value{ErrNA, Number(1)})
	require.NoError(t, err)
	assert.Equal(t, ErrNA, v)

	_, err = fnScalarMax([]Value{Text("x"), Number(1)})
	assert.Error(t, err)
}
