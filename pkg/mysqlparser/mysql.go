// Package mysqlparser wraps the ANTLR MySQL grammar.
//
// Statements are split with the MySQL lexer first, so that compound bodies
// (BEGIN ... END, IF ... END IF) and DELIMITER blocks stay in one piece, and
// each piece is then parsed on its own.
package mysqlparser

import (
	"log/slog"
	"regexp"

	"github.com/antlr4-go/antlr/v4"
	parser "github.com/gedhean/mysql-parser"
	"github.com/pkg/errors"

	"github.com/nsxbet/sqlguard/pkg/logger"
	"github.com/nsxbet/sqlguard/pkg/types"
)

var (
	delimiterRegex        = regexp.MustCompile(`(?i)^\s*DELIMITER\s+`)
	delimiterExtractRegex = regexp.MustCompile(`(?i)^\s*DELIMITER\s+(?P<DELIMITER>[^\s\\]+)\s*`)
)

// ParseResult is the result of parsing a MySQL statement.
type ParseResult struct {
	Tree     antlr.Tree
	Tokens   *antlr.CommonTokenStream
	BaseLine int
}

// SingleSQL represents a single SQL statement with metadata
type SingleSQL struct {
	Text     string
	BaseLine int
	Start    *types.Position
	End      *types.Position
	Empty    bool
}

// ParseMySQL parses the given SQL script and returns one result per
// non-empty statement.
func ParseMySQL(statement string) ([]*ParseResult, error) {
	list, err := SplitSQL(statement)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		last := &list[len(list)-1]
		last.Text = withTrailingSemicolon(last.Text)
	}

	var result []*ParseResult
	for _, s := range list {
		if s.Empty {
			continue
		}
		tree, tokens, err := parseScript(s.Text, s.BaseLine)
		if err != nil {
			return nil, err
		}
		if isEmpty(tokens.GetAllTokens()) {
			continue
		}
		result = append(result, &ParseResult{
			Tree:     tree,
			Tokens:   tokens,
			BaseLine: s.BaseLine,
		})
	}
	return result, nil
}

// SplitSQL splits a script into statements using the MySQL lexer. When the
// lexer-level splitter cannot match compound blocks it falls back to the
// parser, which fails on syntax errors.
func SplitSQL(statement string) ([]SingleSQL, error) {
	stream, listener := newTokenStream(statement, 0)
	list, err := splitTokens(stream)
	if err == nil && listener.Err != nil {
		err = listener.Err
	}
	if err != nil {
		slog.Debug("failed to split MySQL statement, use parser instead", logger.Error(err))
		return splitByParser(statement)
	}
	return list, nil
}

// FirstKeyword returns the text of the first default-channel token of the
// statement, or "" when the statement holds only comments and separators.
func FirstKeyword(statement string) string {
	stream, _ := newTokenStream(statement, 0)
	stream.Fill()
	for _, token := range stream.GetAllTokens() {
		if token.GetChannel() != antlr.TokenDefaultChannel {
			continue
		}
		switch token.GetTokenType() {
		case parser.MySQLLexerSEMICOLON_SYMBOL:
			continue
		case antlr.TokenEOF:
			return ""
		}
		return token.GetText()
	}
	return ""
}

// newTokenStream returns a token stream over statement whose lexer errors
// are recorded by the returned listener. Lines in errors are shifted by
// baseLine.
func newTokenStream(statement string, baseLine int) (*antlr.CommonTokenStream, *ParseErrorListener) {
	listener := &ParseErrorListener{
		BaseLine:  baseLine,
		Statement: statement,
	}
	lexer := parser.NewMySQLLexer(antlr.NewInputStream(statement))
	lexer.RemoveErrorListeners()
	lexer.AddErrorListener(listener)
	return antlr.NewCommonTokenStream(lexer, antlr.TokenDefaultChannel), listener
}

// parseScript parses statement with the full grammar. The first lexer or
// parser error is returned.
func parseScript(statement string, baseLine int) (parser.IScriptContext, *antlr.CommonTokenStream, error) {
	stream, lexerErrorListener := newTokenStream(statement, baseLine)
	parserErrorListener := &ParseErrorListener{
		BaseLine:  baseLine,
		Statement: statement,
	}
	p := parser.NewMySQLParser(stream)
	p.RemoveErrorListeners()
	p.AddErrorListener(parserErrorListener)
	p.BuildParseTrees = true

	tree := p.Script()
	if lexerErrorListener.Err != nil {
		return nil, nil, lexerErrorListener.Err
	}
	if parserErrorListener.Err != nil {
		return nil, nil, parserErrorListener.Err
	}
	return tree, stream, nil
}

// withTrailingSemicolon appends a semicolon after the last token of sql
// unless that token already is one. Hidden tokens after it are kept.
func withTrailingSemicolon(sql string) string {
	stream, listener := newTokenStream(sql, 0)
	stream.Fill()
	if listener.Err != nil {
		return sql
	}

	tokens := stream.GetAllTokens()
	for i := len(tokens) - 1; i >= 0; i-- {
		token := tokens[i]
		if token.GetChannel() != antlr.TokenDefaultChannel || token.GetTokenType() == antlr.TokenEOF {
			continue
		}
		if token.GetTokenType() == parser.MySQLLexerSEMICOLON_SYMBOL {
			return sql
		}
		head := stream.GetTextFromInterval(antlr.NewInterval(0, i))
		tail := stream.GetTextFromInterval(antlr.NewInterval(i+1, len(tokens)-1))
		return head + ";" + tail
	}
	return sql
}

// IsDelimiter returns true if the statement is a delimiter statement.
func IsDelimiter(stmt string) bool {
	return delimiterRegex.MatchString(stmt)
}

// ExtractDelimiter extracts the delimiter from the delimiter statement.
func ExtractDelimiter(stmt string) (string, error) {
	matchList := delimiterExtractRegex.FindStringSubmatch(stmt)
	index := delimiterExtractRegex.SubexpIndex("DELIMITER")
	if index >= 0 && index < len(matchList) {
		return matchList[index], nil
	}
	return "", errors.Errorf("cannot extract delimiter from %q", stmt)
}
