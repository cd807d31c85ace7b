package sheetops

// RunResult bundles the outcome of a full pipeline run.
type RunResult struct {
	Operations []Operation
	Execution  *ExecutionResult
	Formulas   []FormulaRecord
	Report     string
	Errors     []string
	// Collection is the executor's working copy after the run, ready for
	// export. The input collection is never mutated.
	Collection *FileCollection
}

// Run parses, validates, executes, and renders formulas for one program
// document. Parse or validation failures reject the batch before anything
// executes. Data-dependent failures during execution are collected in
// Errors without stopping the remaining operations.
func Run(jsonText string, collection *FileCollection, opts ...Option) *RunResult {
	operations, errs := ParseAndValidate(jsonText, collection)
	if len(errs) > 0 {
		return &RunResult{Operations: operations, Errors: errs}
	}

	executor := NewExecutor(collection, opts...)
	execution := executor.Execute(operations)

	// Formulas are generated against the working copy so columns and
	// sheets created by the run resolve to real positions.
	records := NewFormulaGenerator(executor.Collection(), opts...).Generate(operations)

	return &RunResult{
		Operations: operations,
		Execution:  execution,
		Formulas:   records,
		Report:     Report(records),
		Errors:     execution.Errors,
		Collection: executor.Collection(),
	}
}

// Describe summarizes every sheet of a collection: per-column name, inferred
// type, and sample values. WithSampleCount caps the samples per column.
func Describe(collection *FileCollection, opts ...Option) map[string]map[string][]ColumnSchema {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return collection.Schemas(o.sampleCount)
}
