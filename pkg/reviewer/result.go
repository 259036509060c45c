package reviewer

import (
	"fmt"

	"github.com/nsxbet/sqlguard/pkg/risk"
)

// ReviewResult contains the results of a script review.
type ReviewResult struct {
	// Overall is the classification of the whole script.
	// It is computed independently of the per-statement results.
	Overall risk.Classification

	// Statements contains one entry per reviewed statement in source order.
	Statements []*StatementResult

	// Summary provides aggregate statistics about the statements.
	Summary Summary
}

// StatementResult is the classification of a single statement.
type StatementResult struct {
	// Index is the 0-based position of the statement in the script.
	Index int

	// Line is the 1-based line the statement starts on.
	Line int

	// Text is the statement text with surrounding whitespace removed.
	Text string

	Classification risk.Classification
}

// Summary provides aggregate statistics about reviewed statements.
type Summary struct {
	// Total number of statements (readonly + safe modify + dangerous)
	Total int

	Readonly   int
	SafeModify int
	Dangerous  int

	// Fallback is the count of statements classified by the heuristic
	// fallback because the parser rejected them.
	Fallback int
}

// HasDangerous returns true if the script as a whole is dangerous.
//
// This is useful for CI/CD pipelines that should stop destructive
// migrations:
//
//	if result.HasDangerous() {
//	    os.Exit(1)
//	}
func (r *ReviewResult) HasDangerous() bool {
	return r.Overall.Dangerous
}

// IsReadonly returns true if the script as a whole is read-only.
func (r *ReviewResult) IsReadonly() bool {
	return r.Overall.Readonly
}

// String returns a human-readable summary of the review results.
//
// Example output:
//
//	Review Results: DANGEROUS, 3 statements (1 readonly, 1 safe modify, 1 dangerous)
func (r *ReviewResult) String() string {
	return fmt.Sprintf(
		"Review Results: %s, %d statements (%d readonly, %d safe modify, %d dangerous)",
		r.Overall.Tier,
		r.Summary.Total,
		r.Summary.Readonly,
		r.Summary.SafeModify,
		r.Summary.Dangerous,
	)
}

// FilterByTier returns a new slice containing only statements with the
// specified tier.
//
//	for _, stmt := range result.FilterByTier(risk.Dangerous) {
//	    fmt.Printf("line %d: %s\n", stmt.Line, stmt.Text)
//	}
func (r *ReviewResult) FilterByTier(tier risk.Tier) []*StatementResult {
	filtered := make([]*StatementResult, 0)
	for _, stmt := range r.Statements {
		if stmt.Classification.Tier == tier {
			filtered = append(filtered, stmt)
		}
	}
	return filtered
}

// FilterBySource returns a new slice containing only statements whose
// labels came from the given extraction source.
func (r *ReviewResult) FilterBySource(source risk.Source) []*StatementResult {
	filtered := make([]*StatementResult, 0)
	for _, stmt := range r.Statements {
		if stmt.Classification.Extraction.Source == source {
			filtered = append(filtered, stmt)
		}
	}
	return filtered
}
