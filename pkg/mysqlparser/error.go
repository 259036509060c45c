package mysqlparser

import (
	"fmt"

	"github.com/antlr4-go/antlr/v4"
	"github.com/nsxbet/sqlguard/pkg/types"
)

// relatedTextWindow is how many characters before the offending token are
// quoted in a syntax error message.
const relatedTextWindow = 40

// SyntaxError is a syntax error.
type SyntaxError struct {
	Position   *types.Position
	Message    string
	RawMessage string
}

// Error returns the error message.
func (e *SyntaxError) Error() string {
	return e.Message
}

// ParseErrorListener records the first lexer or parser error it sees.
// Ambiguity reports are ignored through the embedded DefaultErrorListener.
type ParseErrorListener struct {
	*antlr.DefaultErrorListener
	BaseLine  int
	Err       *SyntaxError
	Statement string
}

// SyntaxError records the error unless one was already recorded.
func (l *ParseErrorListener) SyntaxError(
	_ antlr.Recognizer,
	token any,
	line, column int,
	message string,
	_ antlr.RecognitionException,
) {
	if l.Err != nil {
		return
	}

	related := ""
	if token, ok := token.(*antlr.CommonToken); ok {
		stream := token.GetInputStream()
		start := token.GetStart() - relatedTextWindow
		if start < 0 {
			start = 0
		}
		stop := token.GetStop()
		if stop >= stream.Size() {
			stop = stream.Size() - 1
		}
		if stop >= start {
			related = fmt.Sprintf("related text: %s", stream.GetTextFromInterval(antlr.NewInterval(start, stop)))
		}
	}

	l.Err = &SyntaxError{
		Position: &types.Position{
			Line:   int32(line + l.BaseLine),
			Column: int32(column),
		},
		RawMessage: message,
		Message:    fmt.Sprintf("Syntax error at line %d:%d \n%s", line+l.BaseLine, column, related),
	}
}
