// Package reviewer provides a high-level API for reviewing the risk of a SQL
// script statement by statement.
//
// A script is split into statements, every statement is classified on its
// own and the script as a whole is classified once more. The whole-script
// classification is authoritative; the per-statement breakdown shows which
// statements drive it.
//
// # Quick Start
//
//	// Create a reviewer for PostgreSQL
//	r := reviewer.New(types.Engine_POSTGRES)
//
//	// Review a migration script
//	result, err := r.Review(context.Background(), script)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println(result)
//	for _, stmt := range result.FilterByTier(risk.Dangerous) {
//	    fmt.Printf("line %d: %s\n", stmt.Line, stmt.Text)
//	}
//
// # Using Custom Configuration
//
//	r := reviewer.New(types.Engine_MYSQL)
//	if err := r.WithConfig(".sqlguard.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	result, err := r.Review(ctx, script)
package reviewer

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/nsxbet/sqlguard/pkg/config"
	"github.com/nsxbet/sqlguard/pkg/logger"
	"github.com/nsxbet/sqlguard/pkg/mysqlparser"
	"github.com/nsxbet/sqlguard/pkg/risk"
	"github.com/nsxbet/sqlguard/pkg/types"
)

// Reviewer provides a high-level API for script review.
//
// Reviewer is safe for concurrent use by multiple goroutines.
type Reviewer struct {
	classifier *risk.Classifier
	engine     types.Engine
}

// New creates a new Reviewer for the specified database engine. The options
// are passed through to the underlying classifier.
//
// Example:
//
//	r := reviewer.New(types.Engine_SQLITE, risk.WithStrictFallback(true))
//	result, err := r.Review(ctx, "PRAGMA user_version; DROP TABLE users;")
func New(engine types.Engine, opts ...risk.Option) *Reviewer {
	c := risk.New(engine, opts...)
	return &Reviewer{
		classifier: c,
		engine:     c.Engine(),
	}
}

// WithConfig loads classifier settings from a YAML or JSON file.
// The engine given to New is kept.
//
// Returns an error if the file cannot be read or parsed.
func (r *Reviewer) WithConfig(filename string) error {
	cfg, err := config.LoadFromFile(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to load config from %s", filename)
	}
	r.WithConfigObject(cfg)
	return nil
}

// WithConfigObject applies classifier settings from cfg directly.
// The engine given to New is kept.
//
// Returns the Reviewer for method chaining.
func (r *Reviewer) WithConfigObject(cfg *config.Config) *Reviewer {
	r.classifier = risk.New(r.engine, cfg.ClassifierOptions(logger.Default())...)
	return r
}

// Engine returns the engine the reviewer classifies for.
func (r *Reviewer) Engine() types.Engine {
	return r.engine
}

// Review classifies every statement of script and the script as a whole.
//
// The context parameter supports cancellation and timeouts. When the context
// is cancelled the statements reviewed so far are returned together with the
// context error.
//
// Optional ReviewOption parameters can customize the result:
//
//	result, err := r.Review(ctx, script, WithMinimumTier(risk.SafeModify))
func (r *Reviewer) Review(ctx context.Context, script string, opts ...ReviewOption) (*ReviewResult, error) {
	options := &reviewOptions{minimumTier: risk.Readonly}
	for _, opt := range opts {
		opt(options)
	}

	result := &ReviewResult{
		Overall:    r.classifier.Classify(script),
		Statements: make([]*StatementResult, 0),
	}

	for i, piece := range splitStatements(script) {
		select {
		case <-ctx.Done():
			result.Summary = calculateSummary(result.Statements)
			return result, ctx.Err()
		default:
		}

		classification := r.classifier.Classify(piece.text)
		if classification.Tier < options.minimumTier {
			continue
		}
		result.Statements = append(result.Statements, &StatementResult{
			Index:          i,
			Line:           piece.line,
			Text:           piece.text,
			Classification: classification,
		})
	}

	result.Summary = calculateSummary(result.Statements)
	return result, nil
}

type statementText struct {
	text string
	line int
}

// splitStatements splits script into its non-empty statements with their
// 1-based start lines. The MySQL lexer is used for every engine; when it
// rejects the script, the whole script is a single statement.
func splitStatements(script string) []statementText {
	if strings.TrimSpace(script) == "" {
		return nil
	}

	list, err := mysqlparser.SplitSQL(script)
	if err != nil {
		return []statementText{{text: strings.TrimSpace(script), line: lineOf(script)}}
	}

	var result []statementText
	for _, single := range list {
		text := strings.TrimSpace(single.Text)
		if single.Empty || text == "" || text == ";" {
			continue
		}
		line := 1
		if single.Start != nil {
			line = int(single.Start.Line) + 1
		}
		result = append(result, statementText{text: text, line: line})
	}
	return result
}

// lineOf returns the 1-based line of the first non-blank character of script.
func lineOf(script string) int {
	trimmed := strings.TrimLeft(script, " \t\r\n")
	return strings.Count(script[:len(script)-len(trimmed)], "\n") + 1
}

func calculateSummary(statements []*StatementResult) Summary {
	summary := Summary{Total: len(statements)}
	for _, stmt := range statements {
		switch stmt.Classification.Tier {
		case risk.Readonly:
			summary.Readonly++
		case risk.SafeModify:
			summary.SafeModify++
		default:
			summary.Dangerous++
		}
		if stmt.Classification.Extraction.Source == risk.SourceFallback {
			summary.Fallback++
		}
	}
	return summary
}
