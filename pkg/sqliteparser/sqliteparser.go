// Package sqliteparser parses SQLite scripts with the rqlite/sql parser.
package sqliteparser

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rqlite/sql"
)

// ParseSQLite parses every statement of the script in order. An empty or
// whitespace-only script yields no statements and no error.
func ParseSQLite(statement string) ([]sql.Statement, error) {
	p := sql.NewParser(strings.NewReader(statement))

	var result []sql.Statement
	for {
		stmt, err := p.ParseStatement()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse statement %d", len(result)+1)
		}
		result = append(result, stmt)
	}
}

// Visitor is called for every statement node found while walking a parsed
// statement, including the root. depth is 0 for the root.
type Visitor func(stmt sql.Statement, depth int)

// WalkStatements walks stmt and reports every statement node found at any
// depth: CTE bodies, EXPLAIN targets, INSERT ... SELECT sources, subqueries
// and trigger bodies.
func WalkStatements(stmt sql.Statement, fn Visitor) {
	w := &statementWalker{fn: fn}
	sql.Walk(w, stmt)
}

type statementWalker struct {
	fn    Visitor
	depth int
}

func (w *statementWalker) Visit(node sql.Node) (sql.Visitor, sql.Node, error) {
	// A subquery expression embeds its SELECT and so is a Statement too, but
	// Walk does not descend into it. Report the SELECT itself and walk it.
	if sub := subquery(node); sub != nil {
		if _, err := sql.Walk(w, sub); err != nil {
			return nil, node, err
		}
		return nil, node, nil
	}
	if stmt, ok := node.(sql.Statement); ok {
		w.fn(stmt, w.depth)
		w.depth++
	}
	return w, node, nil
}

func (w *statementWalker) VisitEnd(node sql.Node) (sql.Node, error) {
	if subquery(node) != nil {
		return node, nil
	}
	if _, ok := node.(sql.Statement); ok {
		w.depth--
	}
	return node, nil
}

func subquery(node sql.Node) *sql.SelectStatement {
	switch n := node.(type) {
	case sql.SelectExpr:
		return n.SelectStatement
	case *sql.SelectExpr:
		if n != nil {
			return n.SelectStatement
		}
	}
	return nil
}
