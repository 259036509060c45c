package risk

import (
	"reflect"
	"strings"

	"github.com/antlr4-go/antlr/v4"
	pg "github.com/bytebase/parser/postgresql"
	mysql "github.com/gedhean/mysql-parser"
	"github.com/pkg/errors"
	"github.com/rqlite/sql"

	"github.com/nsxbet/sqlguard/pkg/mysqlparser"
	"github.com/nsxbet/sqlguard/pkg/pgparser"
	"github.com/nsxbet/sqlguard/pkg/sqliteparser"
	"github.com/nsxbet/sqlguard/pkg/types"
)

// Parse tree node names are the context type names without the
// "Context" suffix.
const (
	nodeTypeMySQLSimpleStatement = "SimpleStatement"
	nodeTypePostgreSQLStmt       = "Stmt"
)

// mysqlStatementKinds maps MySQL parse tree nodes to statement-kind labels.
var mysqlStatementKinds = map[string]string{
	"SelectStatement":        "SELECT",
	"InsertStatement":        "INSERT",
	"ReplaceStatement":       "REPLACE",
	"UpdateStatement":        "UPDATE",
	"DeleteStatement":        "DELETE",
	"CreateStatement":        "CREATE",
	"DropStatement":          "DROP",
	"AlterStatement":         "ALTER",
	"TruncateTableStatement": "TRUNCATE",
	"RenameTableStatement":   "RENAME",
	"GrantStatement":         "GRANT",
	"RevokeStatement":        "REVOKE",
	"ExplainStatement":       "EXPLAIN",
	"LoadStatement":          "LOAD",
	"CallStatement":          "CALL",
	"SetStatement":           "SET",
	"BeginWork":              "BEGIN",
	// SELECT ... INTO OUTFILE/DUMPFILE/@var
	"IntoClause": "INTO",
}

// postgresStatementKinds maps PostgreSQL parse tree nodes to statement-kind
// labels.
var postgresStatementKinds = map[string]string{
	"Selectstmt":          "SELECT",
	"Insertstmt":          "INSERT",
	"Updatestmt":          "UPDATE",
	"Deletestmt":          "DELETE",
	"Mergestmt":           "MERGE",
	"Createstmt":          "CREATE",
	"Createasstmt":        "CREATE",
	"Indexstmt":           "CREATE",
	"Viewstmt":            "CREATE",
	"Createseqstmt":       "CREATE",
	"Createschemastmt":    "CREATE",
	"Createfunctionstmt":  "CREATE",
	"Createdbstmt":        "CREATE",
	"Creatematviewstmt":   "CREATE",
	"Createtrigstmt":      "CREATE",
	"Createextensionstmt": "CREATE",
	"Dropstmt":            "DROP",
	"Dropdbstmt":          "DROP",
	"Truncatestmt":        "TRUNCATE",
	"Altertablestmt":      "ALTER",
	"Renamestmt":          "ALTER",
	"Grantstmt":           "GRANT",
	"Revokestmt":          "REVOKE",
	"Explainstmt":         "EXPLAIN",
	"Copystmt":            "COPY",
	// SELECT ... INTO new_table
	"Into_clause": "CREATE",
}

// extractor parses a script into statement-kind labels.
type extractor func(statement string) (Extraction, error)

func extractorFor(engine types.Engine) (extractor, error) {
	switch engine {
	case types.Engine_MYSQL:
		return extractMySQL, nil
	case types.Engine_POSTGRES:
		return extractPostgreSQL, nil
	case types.Engine_SQLITE:
		return extractSQLite, nil
	default:
		return nil, errors.Errorf("unsupported database engine: %s", engine)
	}
}

func extractMySQL(statement string) (Extraction, error) {
	results, err := mysqlparser.ParseMySQL(statement)
	if err != nil {
		return Extraction{}, err
	}

	c := newTreeCollector(nodeTypeMySQLSimpleStatement, mysqlStatementKinds)
	listener := &mysqlStatementListener{collector: c}
	for _, result := range results {
		antlr.ParseTreeWalkerDefault.Walk(listener, result.Tree)
	}
	return c.extraction, nil
}

func extractPostgreSQL(statement string) (Extraction, error) {
	result, err := pgparser.ParsePostgreSQL(statement)
	if err != nil {
		return Extraction{}, err
	}

	c := newTreeCollector(nodeTypePostgreSQLStmt, postgresStatementKinds)
	antlr.ParseTreeWalkerDefault.Walk(&postgresStatementListener{collector: c}, result.Tree)
	return c.extraction, nil
}

func extractSQLite(statement string) (Extraction, error) {
	stmts, err := sqliteparser.ParseSQLite(statement)
	if err != nil {
		return Extraction{}, err
	}

	var e Extraction
	for _, stmt := range stmts {
		sqliteparser.WalkStatements(stmt, func(s sql.Statement, depth int) {
			if depth == 0 {
				e.Statements = append(e.Statements, sqliteStatementKind(s))
			} else {
				e.Nested = append(e.Nested, sqliteStatementKind(s))
			}
		})
	}
	return e, nil
}

// unknownStatementKind labels a parsed statement whose kind has no entry of
// its own. It is not in the classification table.
const unknownStatementKind = "UNKNOWN"

func sqliteStatementKind(stmt sql.Statement) string {
	switch s := stmt.(type) {
	case *sql.SelectStatement:
		return "SELECT"
	case *sql.InsertStatement:
		if s != nil && (s.Replace.IsValid() || s.InsertOrReplace.IsValid()) {
			return "REPLACE"
		}
		return "INSERT"
	case *sql.UpdateStatement:
		return "UPDATE"
	case *sql.DeleteStatement:
		return "DELETE"
	case *sql.CreateTableStatement, *sql.CreateIndexStatement, *sql.CreateViewStatement, *sql.CreateTriggerStatement:
		return "CREATE"
	case *sql.DropTableStatement, *sql.DropIndexStatement, *sql.DropViewStatement, *sql.DropTriggerStatement:
		return "DROP"
	case *sql.AlterTableStatement:
		return "ALTER"
	case *sql.ExplainStatement:
		return "EXPLAIN"
	case *sql.AnalyzeStatement:
		return "ANALYZE"
	case *sql.BeginStatement:
		return "BEGIN"
	case *sql.CommitStatement:
		return "COMMIT"
	case *sql.RollbackStatement:
		return "ROLLBACK"
	case *sql.SavepointStatement:
		return "SAVEPOINT"
	case *sql.ReleaseStatement:
		return "RELEASE"
	default:
		// Any statement type added to the parser later stays unknown, and
		// unknown is dangerous.
		return unknownStatementKind
	}
}

// treeCollector records statement-kind labels while an ANTLR parse tree is
// walked. Statements are the unit nodes; the first rule child of a unit
// names its kind, falling back to the unit's leading keyword when the child
// is not in the kind table. Units and kind nodes found inside another unit
// are nested statements.
type treeCollector struct {
	unit       string
	kinds      map[string]string
	frames     []*unitFrame
	extraction Extraction
}

type unitFrame struct {
	node     antlr.Tree
	labelled bool
}

func newTreeCollector(unit string, kinds map[string]string) *treeCollector {
	return &treeCollector{
		unit:  unit,
		kinds: kinds,
	}
}

func (c *treeCollector) enter(ctx antlr.ParserRuleContext) {
	nodeType := getNodeType(ctx)
	if nodeType == c.unit {
		c.frames = append(c.frames, &unitFrame{node: ctx})
		return
	}

	label, known := c.kinds[nodeType]
	if n := len(c.frames); n > 0 {
		frame := c.frames[n-1]
		if !frame.labelled && ctx.GetParent() == frame.node {
			frame.labelled = true
			if !known {
				label = leadingKeyword(ctx)
			}
			c.add(label, n == 1)
			return
		}
	}
	if known {
		c.add(label, len(c.frames) == 0)
	}
}

func (c *treeCollector) exit(ctx antlr.ParserRuleContext) {
	if getNodeType(ctx) != c.unit || len(c.frames) == 0 {
		return
	}
	frame := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	if !frame.labelled {
		c.add(leadingKeyword(ctx), len(c.frames) == 0)
	}
}

func (c *treeCollector) add(label string, topLevel bool) {
	if label == "" {
		return
	}
	if topLevel {
		c.extraction.Statements = append(c.extraction.Statements, label)
	} else {
		c.extraction.Nested = append(c.extraction.Nested, label)
	}
}

type mysqlStatementListener struct {
	*mysql.BaseMySQLParserListener

	collector *treeCollector
}

// EnterEveryRule is called when any rule is entered.
func (l *mysqlStatementListener) EnterEveryRule(ctx antlr.ParserRuleContext) {
	l.collector.enter(ctx)
}

// ExitEveryRule is called when any rule is exited.
func (l *mysqlStatementListener) ExitEveryRule(ctx antlr.ParserRuleContext) {
	l.collector.exit(ctx)
}

type postgresStatementListener struct {
	*pg.BasePostgreSQLParserListener

	collector *treeCollector
}

// EnterEveryRule is called when any rule is entered.
func (l *postgresStatementListener) EnterEveryRule(ctx antlr.ParserRuleContext) {
	l.collector.enter(ctx)
}

// ExitEveryRule is called when any rule is exited.
func (l *postgresStatementListener) ExitEveryRule(ctx antlr.ParserRuleContext) {
	l.collector.exit(ctx)
}

// getNodeType returns the type name of the parse tree node.
func getNodeType(ctx antlr.ParserRuleContext) string {
	return strings.TrimSuffix(typeName(ctx), "Context")
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// leadingKeyword returns the uppercased first token of ctx, or "" when the
// rule matched no tokens.
func leadingKeyword(ctx antlr.ParserRuleContext) string {
	start, stop := ctx.GetStart(), ctx.GetStop()
	if start == nil || stop == nil || start.GetTokenType() == antlr.TokenEOF {
		return ""
	}
	if stop.GetTokenIndex() < start.GetTokenIndex() {
		return ""
	}
	return strings.ToUpper(start.GetText())
}

// fallbackStatementKinds labels each statement of an unparseable script by
// its first keyword. The script is split with the MySQL lexer, which keeps
// quoted text and comments intact; when that fails it is split on every
// semicolon, so that a benign first statement cannot hide the ones after it.
// Separators and comments alone yield no labels.
func fallbackStatementKinds(statement string) []string {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return nil
	}

	var labels []string
	if list, err := mysqlparser.SplitSQL(trimmed); err == nil {
		for _, s := range list {
			if s.Empty {
				continue
			}
			if keyword := mysqlparser.FirstKeyword(s.Text); keyword != "" {
				labels = append(labels, strings.ToUpper(keyword))
			}
		}
		return labels
	}

	for _, piece := range strings.Split(trimmed, ";") {
		if fields := strings.Fields(piece); len(fields) > 0 {
			labels = append(labels, strings.ToUpper(fields[0]))
		}
	}
	return labels
}
