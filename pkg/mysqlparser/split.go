package mysqlparser

import (
	"github.com/antlr4-go/antlr/v4"
	parser "github.com/gedhean/mysql-parser"
	"github.com/nsxbet/sqlguard/pkg/types"
	"github.com/pkg/errors"
)

var errSplitFailed = errors.New("invalid statement: failed to split multiple statements")

// blockKinds maps the keywords that open a compound statement body to the
// kind of block they open. A block is closed by END followed by its kind;
// BEGIN and CASE blocks may also close with a bare END.
var blockKinds = map[int]int{
	parser.MySQLParserBEGIN_SYMBOL:  parser.MySQLParserBEGIN_SYMBOL,
	parser.MySQLParserCASE_SYMBOL:   parser.MySQLParserBEGIN_SYMBOL,
	parser.MySQLParserIF_SYMBOL:     parser.MySQLParserIF_SYMBOL,
	parser.MySQLParserLOOP_SYMBOL:   parser.MySQLParserLOOP_SYMBOL,
	parser.MySQLParserWHILE_SYMBOL:  parser.MySQLParserWHILE_SYMBOL,
	parser.MySQLParserREPEAT_SYMBOL: parser.MySQLParserREPEAT_SYMBOL,
}

// statementCutter cuts statements out of a filled token stream.
type statementCutter struct {
	stream *antlr.CommonTokenStream
	tokens []antlr.Token
}

func newStatementCutter(stream *antlr.CommonTokenStream) *statementCutter {
	stream.Fill()
	return &statementCutter{
		stream: stream,
		tokens: stream.GetAllTokens(),
	}
}

// splitTokens splits on top-level semicolons, or on the active delimiter
// when the script contains DELIMITER statements.
func splitTokens(stream *antlr.CommonTokenStream) ([]SingleSQL, error) {
	c := newStatementCutter(stream)
	for _, token := range c.tokens {
		if token.GetChannel() == antlr.TokenDefaultChannel && token.GetTokenType() == parser.MySQLLexerDELIMITER_SYMBOL {
			return c.splitDelimiterMode()
		}
	}
	return c.splitCompound()
}

// cut returns the statement made of tokens[start] through tokens[stop].
func (c *statementCutter) cut(start, stop int, suffix string) SingleSQL {
	// ANTLR lines are 1-based; positions are 0-based.
	return SingleSQL{
		Text:     c.stream.GetTextFromTokens(c.tokens[start], c.tokens[stop]) + suffix,
		BaseLine: c.tokens[start].GetLine() - 1,
		Start:    firstDefaultChannelTokenPosition(c.tokens[start : stop+1]),
		End: &types.Position{
			Line:   int32(c.tokens[stop].GetLine() - 1),
			Column: int32(c.tokens[stop].GetColumn()),
		},
		Empty: isEmpty(c.tokens[start : stop+1]),
	}
}

// cutAt cuts a statement after every token index in ends. Tokens after the
// last end form one more statement unless only EOF is left.
func (c *statementCutter) cutAt(ends []int) []SingleSQL {
	var result []SingleSQL
	start := 0
	for _, end := range ends {
		result = append(result, c.cut(start, end, ""))
		start = end + 1
	}
	return c.appendTail(result, start)
}

func (c *statementCutter) appendTail(result []SingleSQL, start int) []SingleSQL {
	if eof := len(c.tokens) - 1; start < eof {
		result = append(result, c.cut(start, eof-1, ""))
	}
	return result
}

// splitCompound splits on semicolons that are not inside a BEGIN ... END,
// CASE, IF, LOOP, WHILE or REPEAT body.
func (c *statementCutter) splitCompound() ([]SingleSQL, error) {
	open := make(map[int][]int)
	var ends []int

	for i, token := range c.tokens {
		switch token.GetTokenType() {
		case parser.MySQLParserSEMICOLON_SYMBOL:
			ends = append(ends, i)
		case parser.MySQLParserEND_SYMBOL:
			if c.neighbor(i, -1) == parser.MySQLParserXA_SYMBOL {
				continue
			}
			kind := parser.MySQLParserBEGIN_SYMBOL
			if k, ok := blockKinds[c.neighbor(i, 1)]; ok {
				kind = k
			}
			positions := open[kind]
			if len(positions) == 0 {
				return nil, errSplitFailed
			}
			// IF(expr, a, b) and REPEAT(str, n) are also functions that
			// never close, so the oldest opener bounds the block.
			bound := positions[len(positions)-1]
			if kind == parser.MySQLParserIF_SYMBOL || kind == parser.MySQLParserREPEAT_SYMBOL {
				bound = positions[0]
			}
			ends = dropEndsAfter(ends, bound)
			open[kind] = positions[:len(positions)-1]
		default:
			if kind, ok := c.opensBlock(i); ok {
				open[kind] = append(open[kind], i)
			}
		}
	}

	return c.cutAt(ends), nil
}

// opensBlock reports whether tokens[i] opens a compound statement body and
// the kind of block it opens.
func (c *statementCutter) opensBlock(i int) (int, bool) {
	tokenType := c.tokens[i].GetTokenType()
	kind, ok := blockKinds[tokenType]
	if !ok {
		return 0, false
	}

	prev, next := c.neighbor(i, -1), c.neighbor(i, 1)
	switch tokenType {
	case parser.MySQLParserBEGIN_SYMBOL:
		// BEGIN [WORK] and XA BEGIN start transactions.
		if next == parser.MySQLParserWORK_SYMBOL || next == parser.MySQLParserSEMICOLON_SYMBOL ||
			next == parser.MySQLParserEOF || prev == parser.MySQLParserXA_SYMBOL {
			return 0, false
		}
		return kind, true
	case parser.MySQLParserIF_SYMBOL:
		if next == parser.MySQLParserEXISTS_SYMBOL {
			return 0, false
		}
	}
	if prev == parser.MySQLParserEND_SYMBOL {
		return 0, false
	}
	return kind, true
}

func dropEndsAfter(ends []int, pos int) []int {
	for i := len(ends) - 1; i >= 0; i-- {
		if ends[i] < pos {
			return ends[:i+1]
		}
	}
	return ends[:0]
}

// splitDelimiterMode splits a script that switches the statement delimiter
// with DELIMITER statements. Statements ended by a custom delimiter get a
// semicolon instead.
func (c *statementCutter) splitDelimiterMode() ([]SingleSQL, error) {
	var result []SingleSQL
	delimiter := ";"
	start := 0

	for i := 0; i < len(c.tokens); {
		token := c.tokens[i]
		switch {
		case token.GetChannel() == antlr.TokenDefaultChannel && token.GetTokenType() == parser.MySQLLexerDELIMITER_SYMBOL:
			next, text := c.delimiterStatement(i)
			d, err := ExtractDelimiter(text)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to extract delimiter from statement: %s", text)
			}
			delimiter = d
			start, i = next, next
		case delimiter == ";" && token.GetTokenType() == parser.MySQLLexerSEMICOLON_SYMBOL:
			result = append(result, c.cut(start, i, ""))
			i++
			start = i
		case token.GetChannel() != antlr.TokenDefaultChannel:
			i++
		default:
			next, ok := c.matchDelimiter(i, delimiter)
			if !ok {
				i++
				continue
			}
			if i > start {
				result = append(result, c.cut(start, i-1, ";"))
			}
			start, i = next, next
		}
	}

	return c.appendTail(result, start), nil
}

// delimiterStatement returns the text of the DELIMITER statement at pos,
// which runs to the end of its line, and the index after it.
func (c *statementCutter) delimiterStatement(pos int) (int, string) {
	for i := pos; i < len(c.tokens); i++ {
		token := c.tokens[i]
		if token.GetTokenType() == antlr.TokenEOF ||
			(token.GetTokenType() == parser.MySQLLexerWHITESPACE && token.GetText() == "\n") {
			return i + 1, c.stream.GetTextFromTokens(c.tokens[pos], c.tokens[i-1])
		}
	}
	last := len(c.tokens) - 1
	return len(c.tokens), c.stream.GetTextFromTokens(c.tokens[pos], c.tokens[last])
}

// matchDelimiter reports whether the tokens from pos spell delimiter and
// returns the index after its last token.
func (c *statementCutter) matchDelimiter(pos int, delimiter string) (int, bool) {
	matched := 0
	for i := pos; i < len(c.tokens); i++ {
		if c.tokens[i].GetTokenType() == antlr.TokenEOF {
			return 0, false
		}
		text := c.tokens[i].GetText()
		for j := 0; j < len(text); j++ {
			if matched == len(delimiter) || text[j] != delimiter[matched] {
				return 0, false
			}
			matched++
		}
		if matched == len(delimiter) {
			return i + 1, true
		}
	}
	return 0, false
}

// splitByParser splits with the full grammar. It is slower than the lexer
// splitters and used when they fail.
func splitByParser(statement string) ([]SingleSQL, error) {
	tree, stream, err := parseScript(statement, 0)
	if err != nil {
		return nil, err
	}

	var ends []int
	for _, semicolon := range tree.AllSEMICOLON_SYMBOL() {
		ends = append(ends, semicolon.GetSymbol().GetTokenIndex())
	}
	return newStatementCutter(stream).cutAt(ends), nil
}

// neighbor returns the type of the default-channel token offset steps away
// from tokens[base], or EOF past either end.
func (c *statementCutter) neighbor(base, offset int) int {
	step := 1
	if offset < 0 {
		step, offset = -1, -offset
	}
	current := base
	for offset > 0 {
		current += step
		if current < 0 || current >= len(c.tokens) {
			return antlr.TokenEOF
		}
		if c.tokens[current].GetChannel() == antlr.TokenDefaultChannel {
			offset--
		}
	}
	return c.tokens[current].GetTokenType()
}

func firstDefaultChannelTokenPosition(tokens []antlr.Token) *types.Position {
	for _, token := range tokens {
		if token.GetChannel() == antlr.TokenDefaultChannel {
			return &types.Position{
				Line:   int32(token.GetLine() - 1),
				Column: int32(token.GetColumn()),
			}
		}
	}
	return &types.Position{}
}

// isEmpty reports whether tokens hold nothing but semicolons, EOF and
// hidden-channel tokens.
func isEmpty(tokens []antlr.Token) bool {
	for _, token := range tokens {
		if token.GetChannel() != antlr.TokenDefaultChannel {
			continue
		}
		switch token.GetTokenType() {
		case parser.MySQLLexerSEMICOLON_SYMBOL, parser.MySQLParserEOF:
		default:
			return false
		}
	}
	return true
}
