package sheetops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// salesCollection builds the two-file fixture most tests run against:
// "orders" with an Orders sheet and "customers" with a Customers sheet.
func salesCollection(t *testing.T) *FileCollection {
	t.Helper()

	orders := NewTable("Orders", "product", "region", "amount")
	mustAppend(t, orders,
		[]Value{Text("apple"), Text("East"), Number(100)},
		[]Value{Text("pear"), Text("West"), Number(200)},
		[]Value{Text("plum"), Text("East"), Number(50)},
		[]Value{Text("fig"), Text("North"), Number(300)},
	)
	ordersFile := NewExcelFile("orders", "orders.xlsx")
	ordersFile.AddSheet(orders)

	customers := NewTable("Customers", "name", "discount")
	mustAppend(t, customers,
		[]Value{Text("apple"), Number(0.1)},
		[]Value{Text("pear"), Number(0.2)},
	)
	customersFile := NewExcelFile("customers", "customers.xlsx")
	customersFile.AddSheet(customers)

	collection := NewFileCollection()
	collection.AddFile(ordersFile)
	collection.AddFile(customersFile)
	return collection
}

func evalRow(t *testing.T, collection *FileCollection, vars map[string]Value, row map[string]Value, src string) (Value, error) {
	t.Helper()
	evaluator := NewRowEvaluator(collection, vars)
	evaluator.SetRow(row)
	return evaluator.Eval(decode(t, src))
}

func TestEvaluator_ColumnRef(t *testing.T) {
	collection := salesCollection(t)
	row := map[string]Value{"amount": Number(100)}

	v, err := evalRow(t, collection, nil, row, `{"col": "amount"}`)
	require.NoError(t, err)
	assert.Equal(t, Number(100), v)

	_, err = evalRow(t, collection, nil, row, `{"col": "missing"}`)
	assert.ErrorContains(t, err, "unknown column")
}

func TestEvaluator_VarRef(t *testing.T) {
	collection := salesCollection(t)
	vars := map[string]Value{"total": Number(650)}

	v, err := evalRow(t, collection, vars, nil, `{"var": "total"}`)
	require.NoError(t, err)
	assert.Equal(t, Number(650), v)

	_, err = evalRow(t, collection, vars, nil, `{"var": "missing"}`)
	assert.ErrorContains(t, err, "undefined variable")
}

func TestEvaluator_CrossRef(t *testing.T) {
	collection := salesCollection(t)

	v, err := evalRow(t, collection, nil, nil, `{"ref": "customers.Customers.discount"}`)
	require.NoError(t, err)
	assert.Equal(t, Range{Number(0.1), Number(0.2)}, v)

	_, err = evalRow(t, collection, nil, nil, `{"ref": "customers.Missing.discount"}`)
	assert.Error(t, err)
}

func TestEvaluator_BinaryOp(t *testing.T) {
	collection := salesCollection(t)
	row := map[string]Value{"amount": Number(200)}

	v, err := evalRow(t, collection, nil, row,
		`{"op": "*", "left": {"col": "amount"}, "right": {"value": 0.9}}`)
	require.NoError(t, err)
	assert.Equal(t, Number(180), v)
}

func TestEvaluator_IfShortCircuits(t *testing.T) {
	collection := salesCollection(t)

	// The untaken branch may reference a missing column without failing.
	v, err := evalRow(t, collection, nil, map[string]Value{"x": Number(1)},
		`{"func": "IF", "args": [{"value": true}, {"col": "x"}, {"col": "missing"}]}`)
	require.NoError(t, err)
	assert.Equal(t, Number(1), v)

	// An error condition propagates instead of selecting a branch.
	v, err = evalRow(t, collection, nil, map[string]Value{"e": ErrNA},
		`{"func": "IF", "args": [{"col": "e"}, {"value": 1}, {"value": 2}]}`)
	require.NoError(t, err)
	assert.Equal(t, ErrNA, v)
}

func TestEvaluator_AndOr(t *testing.T) {
	collection := salesCollection(t)

	v, err := evalRow(t, collection, nil, nil,
		`{"func": "AND", "args": [{"value": true}, {"value": 0}]}`)
	require.NoError(t, err)
	assert.Equal(t, Boolean(false), v)

	// AND short-circuits on the first falsy argument.
	v, err = evalRow(t, collection, nil, nil,
		`{"func": "AND", "args": [{"value": false}, {"col": "missing"}]}`)
	require.NoError(t, err)
	assert.Equal(t, Boolean(false), v)

	v, err = evalRow(t, collection, nil, nil,
		`{"func": "OR", "args": [{"value": 0}, {"value": "x"}]}`)
	require.NoError(t, err)
	assert.Equal(t, Boolean(true), v)

	v, err = evalRow(t, collection, nil, map[string]Value{"e": ErrDiv0},
		`{"func": "OR", "args": [{"col": "e"}, {"value": true}]}`)
	require.NoError(t, err)
	assert.Equal(t, ErrDiv0, v)
}

func TestEvaluator_Vlookup(t *testing.T) {
	collection := salesCollection(t)
	row := map[string]Value{"product": Text("pear")}

	v, err := evalRow(t, collection, nil, row,
		`{"func": "VLOOKUP", "args": [{"col": "product"}, {"value": "customers.Customers"}, {"value": "name"}, {"value": "discount"}]}`)
	require.NoError(t, err)
	assert.Equal(t, Number(0.2), v)
}

func TestEvaluator_VlookupMissReturnsNA(t *testing.T) {
	collection := salesCollection(t)

	cases := []string{
		// no matching key
		`{"func": "VLOOKUP", "args": [{"value": "nope"}, {"value": "customers.Customers"}, {"value": "name"}, {"value": "discount"}]}`,
		// unknown sheet
		`{"func": "VLOOKUP", "args": [{"value": "apple"}, {"value": "customers.Missing"}, {"value": "name"}, {"value": "discount"}]}`,
		// unknown value column
		`{"func": "VLOOKUP", "args": [{"value": "apple"}, {"value": "customers.Customers"}, {"value": "name"}, {"value": "missing"}]}`,
		// malformed table reference
		`{"func": "VLOOKUP", "args": [{"value": "apple"}, {"value": "not-dotted"}, {"value": "name"}, {"value": "discount"}]}`,
	}
	for _, src := range cases {
		v, err := evalRow(t, collection, nil, nil, src)
		require.NoError(t, err, src)
		assert.Equal(t, ErrNA, v, src)
	}
}

func TestEvaluator_CountIfs(t *testing.T) {
	collection := salesCollection(t)

	v, err := evalRow(t, collection, nil, nil,
		`{"func": "COUNTIFS", "args": [{"ref": "orders.Orders.region"}, {"value": "East"}]}`)
	require.NoError(t, err)
	assert.Equal(t, Number(2), v)

	v, err = evalRow(t, collection, nil, nil,
		`{"func": "COUNTIFS", "args": [{"ref": "orders.Orders.region"}, {"value": "East"}, {"ref": "orders.Orders.amount"}, {"value": ">60"}]}`)
	require.NoError(t, err)
	assert.Equal(t, Number(1), v)

	// A scalar where a range is required is a hard error.
	_, err = evalRow(t, collection, nil, nil,
		`{"func": "COUNTIFS", "args": [{"value": 1}, {"value": "East"}]}`)
	assert.Error(t, err)
}

func TestEvaluator_UnknownFunction(t *testing.T) {
	collection := salesCollection(t)
	_, err := evalRow(t, collection, nil, nil, `{"func": "EXPLODE", "args": []}`)
	assert.ErrorContains(t, err, "unknown function")
}

func TestScalarEvaluator_UsesScalarFunctions(t *testing.T) {
	collection := salesCollection(t)
	vars := map[string]Value{"a": Number(3), "b": Number(8)}
	evaluator := NewScalarEvaluator(collection, vars)

	v, err := evaluator.Eval(decode(t, `{"func": "MAX", "args": [{"var": "a"}, {"var": "b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, Number(8), v)

	// Row-only functions are not visible to compute expressions.
	_, err = evaluator.Eval(decode(t, `{"func": "UPPER", "args": [{"value": "x"}]}`))
	assert.ErrorContains(t, err, "unknown function")
}
