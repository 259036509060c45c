package risk

// Source tells how the labels of an Extraction were produced.
type Source int

const (
	// SourceEmpty is an input without statements.
	SourceEmpty Source = iota
	// SourceParser labels come from the engine's grammar parser.
	SourceParser
	// SourceFallback labels are first keywords, used when parsing failed.
	SourceFallback
)

// String returns the name of the source.
func (s Source) String() string {
	switch s {
	case SourceEmpty:
		return "empty"
	case SourceParser:
		return "parser"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Extraction is the set of statement-kind labels found in one SQL text.
type Extraction struct {
	Source Source
	// Statements holds one label per top-level statement, in source order.
	Statements []string
	// Nested holds the labels of statements found below a top-level
	// statement: CTE bodies, EXPLAIN targets, INSERT ... SELECT sources,
	// routine and trigger bodies.
	Nested []string
	// Err is the parse failure behind a fallback extraction.
	Err error
}

// Labels returns Statements followed by Nested.
func (e Extraction) Labels() []string {
	labels := make([]string, 0, len(e.Statements)+len(e.Nested))
	labels = append(labels, e.Statements...)
	return append(labels, e.Nested...)
}

// Tier returns the aggregate tier of every label of the extraction.
func (e Extraction) Tier() Tier {
	return Aggregate(e.Labels()...)
}
