package sheetops

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Expr is a node of the JSON formula grammar. Exactly one variant matches
// each recognized JSON shape: Literal {"value": ...}, ColumnRef {"col": ...},
// VarRef {"var": ...}, CrossRef {"ref": "file.sheet.column"}, FuncCall
// {"func": ..., "args": [...]}, BinaryOp {"op": ..., "left": ..., "right": ...}.
// Anything else is rejected at parse time.
type Expr interface {
	isExpr()
	json.Marshaler
}

// Literal is a constant value.
type Literal struct {
	Value Value
}

// ColumnRef references the current row's value in a named column.
type ColumnRef struct {
	Name string
}

// VarRef references a variable bound by an earlier aggregate or compute
// operation.
type VarRef struct {
	Name string
}

// CrossRef references a whole column in another sheet, addressed as
// "file_id.sheet.column".
type CrossRef struct {
	FileID string
	Sheet  string
	Column string
}

// FuncCall is a call to a whitelisted function.
type FuncCall struct {
	Name string
	Args []Expr
}

// BinaryOp applies one of the operators + - * / > < >= <= = <> &.
type BinaryOp struct {
	Op    string
	Left  Expr
	Right Expr
}

func (*Literal) isExpr()   {}
func (*ColumnRef) isExpr() {}
func (*VarRef) isExpr()    {}
func (*CrossRef) isExpr()  {}
func (*FuncCall) isExpr()  {}
func (*BinaryOp) isExpr()  {}

// Ref returns the dotted three-part form of the reference.
func (c *CrossRef) Ref() string {
	return c.FileID + "." + c.Sheet + "." + c.Column
}

// DecodeExpr maps a decoded JSON value onto exactly one Expr variant.
// Bare scalars decode as literals, so argument lists may mix raw values with
// expression objects.
func DecodeExpr(raw any) (Expr, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid expression: %w", err)
		}
		return &Literal{Value: v}, nil
	}

	if raw, ok := m["value"]; ok {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid literal: %w", err)
		}
		return &Literal{Value: v}, nil
	}

	if raw, ok := m["col"]; ok {
		name, ok := raw.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("column reference must be a non-empty string, got %v", raw)
		}
		return &ColumnRef{Name: name}, nil
	}

	if raw, ok := m["var"]; ok {
		name, ok := raw.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("variable reference must be a non-empty string, got %v", raw)
		}
		return &VarRef{Name: name}, nil
	}

	if raw, ok := m["ref"]; ok {
		ref, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("cross reference must be a string, got %v", raw)
		}
		return parseCrossRef(ref)
	}

	if raw, ok := m["func"]; ok {
		name, ok := raw.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("function name must be a non-empty string, got %v", raw)
		}
		var args []Expr
		if rawArgs, ok := m["args"]; ok {
			list, ok := rawArgs.([]any)
			if !ok {
				return nil, fmt.Errorf("function %q: args must be an array", name)
			}
			args = make([]Expr, 0, len(list))
			for i, rawArg := range list {
				arg, err := DecodeExpr(rawArg)
				if err != nil {
					return nil, fmt.Errorf("function %q argument %d: %w", name, i+1, err)
				}
				args = append(args, arg)
			}
		}
		return &FuncCall{Name: name, Args: args}, nil
	}

	if raw, ok := m["op"]; ok {
		op, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("operator must be a string, got %v", raw)
		}
		rawLeft, ok := m["left"]
		if !ok {
			return nil, fmt.Errorf("operator %q: missing left operand", op)
		}
		rawRight, ok := m["right"]
		if !ok {
			return nil, fmt.Errorf("operator %q: missing right operand", op)
		}
		left, err := DecodeExpr(rawLeft)
		if err != nil {
			return nil, fmt.Errorf("operator %q left operand: %w", op, err)
		}
		right, err := DecodeExpr(rawRight)
		if err != nil {
			return nil, fmt.Errorf("operator %q right operand: %w", op, err)
		}
		return &BinaryOp{Op: op, Left: left, Right: right}, nil
	}

	return nil, fmt.Errorf("unrecognized expression shape: %v", m)
}

// parseCrossRef splits a "file_id.sheet.column" reference.
func parseCrossRef(ref string) (*CrossRef, error) {
	parts := strings.Split(ref, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid cross reference %q: expected \"file_id.sheet.column\"", ref)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid cross reference %q: empty segment", ref)
		}
	}
	return &CrossRef{FileID: parts[0], Sheet: parts[1], Column: parts[2]}, nil
}

// MarshalJSON renders the node back into its JSON grammar shape, so parsing
// then re-serializing an operation list is lossless.

func (l *Literal) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"value": ToAny(l.Value)})
}

func (c *ColumnRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"col": c.Name})
}

func (v *VarRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"var": v.Name})
}

func (c *CrossRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"ref": c.Ref()})
}

func (f *FuncCall) MarshalJSON() ([]byte, error) {
	out := map[string]any{"func": f.Name}
	if f.Args != nil {
		out["args"] = f.Args
	}
	return json.Marshal(out)
}

func (b *BinaryOp) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"op": b.Op, "left": b.Left, "right": b.Right})
}
