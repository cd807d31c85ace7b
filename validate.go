package sheetops

import (
	"fmt"
	"strings"
)

// KnownSheets is the registry semantic validation runs against: the (file,
// sheet) pairs that exist before the program runs, plus sheets the program
// itself declares. It never retains the collection it was seeded from.
type KnownSheets struct {
	sheets map[string]map[string]bool
}

// NewKnownSheets builds an empty registry.
func NewKnownSheets() *KnownSheets {
	return &KnownSheets{sheets: make(map[string]map[string]bool)}
}

// KnownSheetsFrom seeds a registry from a live collection.
func KnownSheetsFrom(collection *FileCollection) *KnownSheets {
	known := NewKnownSheets()
	for _, fileID := range collection.FileIDs() {
		f, err := collection.File(fileID)
		if err != nil {
			continue
		}
		for _, sheet := range f.SheetNames() {
			known.Register(fileID, sheet)
		}
	}
	return known
}

// Register adds a (file, sheet) pair.
func (k *KnownSheets) Register(fileID, sheet string) {
	if k.sheets[fileID] == nil {
		k.sheets[fileID] = make(map[string]bool)
	}
	k.sheets[fileID][sheet] = true
}

// HasFile reports whether any sheet is registered under fileID.
func (k *KnownSheets) HasFile(fileID string) bool {
	return len(k.sheets[fileID]) > 0
}

// Has reports whether the (file, sheet) pair is registered.
func (k *KnownSheets) Has(fileID, sheet string) bool {
	return k.sheets[fileID][sheet]
}

// ValidateOperations checks parsed operations against the registry. Sheets
// produced by earlier operations in the batch are registered as the walk
// proceeds, so a later operation may reference them: forward-declared,
// backward-referenced only. Errors carry the 1-based operation index.
//
// The registry is mutated during the walk; seed a fresh one per call.
func ValidateOperations(operations []Operation, known *KnownSheets) []string {
	var errors []string

	check := func(fileID, sheet, prefix string) {
		if !known.HasFile(fileID) {
			errors = append(errors, fmt.Sprintf("%s: file %q does not exist", prefix, fileID))
			return
		}
		if !known.Has(fileID, sheet) {
			errors = append(errors, fmt.Sprintf("%s: sheet %q does not exist in file %q", prefix, sheet, fileID))
		}
	}

	registerOutput := func(fileID string, output OutputTarget) {
		if output.Type == "new_sheet" {
			known.Register(fileID, output.Name)
		}
	}

	// checkExpr walks a formula for references into other sheets. A cross
	// reference names its target directly; VLOOKUP carries its table as a
	// literal "file_id.sheet" string. Either kind pointing at a sheet that
	// does not exist yet at this point in the batch is a validation error,
	// not something to discover row by row at execution time.
	var checkExpr func(e Expr, prefix string)
	checkExpr = func(e Expr, prefix string) {
		switch n := e.(type) {
		case *CrossRef:
			check(n.FileID, n.Sheet, prefix)
		case *FuncCall:
			if strings.EqualFold(n.Name, "VLOOKUP") && len(n.Args) >= 2 {
				if lit, ok := n.Args[1].(*Literal); ok {
					if ref, ok := lit.Value.(Text); ok {
						if parts := strings.Split(string(ref), "."); len(parts) == 2 {
							check(parts[0], parts[1], prefix)
						}
					}
				}
			}
			for _, arg := range n.Args {
				checkExpr(arg, prefix)
			}
		case *BinaryOp:
			checkExpr(n.Left, prefix)
			checkExpr(n.Right, prefix)
		}
	}

	for i, op := range operations {
		prefix := fmt.Sprintf("operation #%d", i+1)

		switch op := op.(type) {
		case *AggregateOp:
			check(op.FileID, op.Table, prefix)
		case *AddColumnOp:
			check(op.FileID, op.Table, prefix)
			if op.Formula != nil {
				checkExpr(op.Formula, prefix)
			}
		case *UpdateColumnOp:
			check(op.FileID, op.Table, prefix)
			if op.Formula != nil {
				checkExpr(op.Formula, prefix)
			}
		case *ComputeOp:
			// The operation itself is file-agnostic; its expression may
			// still reach into sheets.
			if op.Expression != nil {
				checkExpr(op.Expression, prefix)
			}
		case *FilterOp:
			check(op.FileID, op.Table, prefix)
			registerOutput(op.FileID, op.Output)
		case *SortOp:
			check(op.FileID, op.Table, prefix)
			registerOutput(op.FileID, op.Output)
		case *GroupByOp:
			check(op.FileID, op.Table, prefix)
			known.Register(op.FileID, op.Output.Name)
		case *CreateSheetOp:
			if !known.HasFile(op.FileID) {
				errors = append(errors, fmt.Sprintf("%s: file %q does not exist", prefix, op.FileID))
			}
			if op.Source.Type == "copy" || op.Source.Type == "reference" {
				check(op.FileID, op.Source.Table, prefix)
			}
			known.Register(op.FileID, op.Name)
		case *TakeOp:
			check(op.FileID, op.Table, prefix)
			registerOutput(op.FileID, op.Output)
		}
	}
	return errors
}

// ParseAndValidate parses a program document and, when parsing is clean,
// validates it against the sheets of the given collection.
func ParseAndValidate(jsonText string, collection *FileCollection) ([]Operation, []string) {
	operations, errors := ParseOperations(jsonText)
	if len(errors) > 0 {
		return operations, errors
	}
	return operations, ValidateOperations(operations, KnownSheetsFrom(collection))
}
