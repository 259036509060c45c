// Package pgparser parses PostgreSQL scripts with the Bytebase ANTLR grammar.
//
// A whole script is parsed at once; the resulting tree holds one stmt node
// per statement, with statements nested in CTEs, EXPLAIN and rule bodies
// below their parent.
package pgparser

import (
	"github.com/antlr4-go/antlr/v4"
	parser "github.com/bytebase/parser/postgresql"

	"github.com/nsxbet/sqlguard/pkg/mysqlparser"
)

// SyntaxError is returned for SQL the grammar rejects. It carries the same
// position and related text as MySQL syntax errors.
type SyntaxError = mysqlparser.SyntaxError

// ParseResult is a parsed script.
type ParseResult struct {
	Tree   antlr.Tree
	Tokens *antlr.CommonTokenStream
}

// ParsePostgreSQL parses a PostgreSQL script. The first lexer or parser
// error is returned as a *SyntaxError.
//
//	result, err := pgparser.ParsePostgreSQL("SELECT 1; DELETE FROM users;")
//	if err != nil {
//	    // Handle syntax error
//	}
//	antlr.ParseTreeWalkerDefault.Walk(listener, result.Tree)
func ParsePostgreSQL(sql string) (*ParseResult, error) {
	errorListener := &mysqlparser.ParseErrorListener{Statement: sql}

	lexer := parser.NewPostgreSQLLexer(antlr.NewInputStream(sql))
	lexer.RemoveErrorListeners()
	lexer.AddErrorListener(errorListener)
	stream := antlr.NewCommonTokenStream(lexer, antlr.TokenDefaultChannel)

	p := parser.NewPostgreSQLParser(stream)
	p.BuildParseTrees = true
	p.RemoveErrorListeners()
	p.AddErrorListener(errorListener)

	tree := p.Root()
	if errorListener.Err != nil {
		return nil, errorListener.Err
	}
	if tree == nil {
		return nil, &SyntaxError{
			Message:    "failed to parse PostgreSQL statement",
			RawMessage: "empty parse tree",
		}
	}
	return &ParseResult{Tree: tree, Tokens: stream}, nil
}
