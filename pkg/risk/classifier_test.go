package risk

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsxbet/sqlguard/pkg/logger"
	"github.com/nsxbet/sqlguard/pkg/types"
)

var engines = []types.Engine{types.Engine_SQLITE, types.Engine_MYSQL, types.Engine_POSTGRES}

func newTestClassifier(engine types.Engine, opts ...Option) *Classifier {
	opts = append([]Option{WithLogger(logger.NewWithWriter(io.Discard, slog.LevelDebug))}, opts...)
	return New(engine, opts...)
}

type classifierTestCase struct {
	name      string
	sql       string
	readonly  bool
	dangerous bool
}

var classifierTestCases = []classifierTestCase{
	{name: "select", sql: "SELECT * FROM users", readonly: true},
	{name: "insert", sql: "INSERT INTO users (id) VALUES (1)"},
	{name: "update", sql: "UPDATE users SET name='a' WHERE id=1", dangerous: true},
	{name: "select then delete", sql: "SELECT * FROM users; DELETE FROM users WHERE id=3;", dangerous: true},
	{name: "cte select", sql: "WITH cte AS (SELECT * FROM users) SELECT id FROM cte", readonly: true},
	{name: "delete in cte", sql: "WITH delete_cte AS (DELETE FROM users WHERE id=1) DELETE FROM users WHERE id=2", dangerous: true},
	{name: "malformed", sql: "FOOBAR", dangerous: true},
	{name: "drop", sql: "DROP TABLE users", dangerous: true},
	{name: "truncate", sql: "TRUNCATE TABLE users", dangerous: true},
	{name: "alter", sql: "ALTER TABLE users ADD COLUMN age INT", dangerous: true},
	{name: "grant", sql: "GRANT SELECT ON users TO bob", dangerous: true},
	{name: "revoke", sql: "REVOKE SELECT ON users FROM bob", dangerous: true},
	{name: "create table", sql: "CREATE TABLE accounts (id INT)"},
	{name: "lowercase select", sql: "select * from users", readonly: true},
	{name: "lowercase delete", sql: "delete from users where id = 1", dangerous: true},
	{name: "cte update", sql: "WITH cte AS (SELECT id FROM users) UPDATE users SET name='x' WHERE id IN (SELECT id FROM cte)", dangerous: true},
	{name: "cte select then delete", sql: "WITH cte AS (SELECT * FROM users) SELECT id FROM cte; DELETE FROM users", dangerous: true},
	{name: "insert select", sql: "INSERT INTO archive SELECT * FROM users"},
	{name: "explain select", sql: "EXPLAIN SELECT * FROM users", readonly: true},
	{name: "explain delete", sql: "EXPLAIN DELETE FROM users WHERE id=1", dangerous: true},
	{name: "pragma", sql: "PRAGMA table_info(users)", readonly: true},
	{name: "replace", sql: "REPLACE INTO users (id) VALUES (1)"},
	{name: "select then unknown", sql: "SELECT 1; FOOBAR", dangerous: true},
	{name: "insert then select", sql: "INSERT INTO users (id) VALUES (1); SELECT * FROM users"},
	{name: "in subquery", sql: "SELECT * FROM users WHERE id IN (SELECT user_id FROM orders)", readonly: true},
	{name: "scalar subquery", sql: "SELECT (SELECT max(id) FROM users) AS m", readonly: true},
	{name: "nested subqueries", sql: "SELECT id FROM orders WHERE total > (SELECT avg(total) FROM orders WHERE user_id IN (SELECT id FROM users))", readonly: true},
	{name: "exists subquery", sql: "SELECT id FROM users u WHERE EXISTS (SELECT 1 FROM orders o WHERE o.user_id = u.id)", readonly: true},
	{name: "insert scalar subquery", sql: "INSERT INTO users (id) VALUES ((SELECT 1))"},
	{name: "delete with subquery", sql: "DELETE FROM users WHERE id IN (SELECT user_id FROM orders)", dangerous: true},
	{name: "empty", sql: "", readonly: true},
	{name: "whitespace", sql: " \n\t ", readonly: true},
}

func TestClassifier(t *testing.T) {
	for _, engine := range engines {
		c := newTestClassifier(engine)
		for _, tt := range classifierTestCases {
			t.Run(fmt.Sprintf("%s/%s", engine, tt.name), func(t *testing.T) {
				assert.Equal(t, tt.readonly, c.IsReadonly(tt.sql), "readonly")
				assert.Equal(t, !tt.readonly, c.IsModify(tt.sql), "modify")
				assert.Equal(t, tt.dangerous, c.IsDangerous(tt.sql), "dangerous")
			})
		}
	}
}

func TestPackagePredicates(t *testing.T) {
	for _, tt := range classifierTestCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.readonly, IsReadonly(tt.sql))
			assert.Equal(t, !tt.readonly, IsModify(tt.sql))
			assert.Equal(t, tt.dangerous, IsDangerous(tt.sql))
		})
	}
}

func TestClassify(t *testing.T) {
	c := newTestClassifier(types.Engine_SQLITE)

	got := c.Classify("SELECT * FROM users; DELETE FROM users WHERE id=3;")
	assert.Equal(t, types.Engine_SQLITE, got.Engine)
	assert.Equal(t, Dangerous, got.Tier)
	assert.False(t, got.Readonly)
	assert.True(t, got.Modify)
	assert.True(t, got.Dangerous)
	assert.False(t, got.IsEmpty())
	assert.Equal(t, SourceParser, got.Extraction.Source)
	assert.Equal(t, []string{"SELECT", "DELETE"}, got.Extraction.Statements)
	assert.NoError(t, got.Extraction.Err)

	got = c.Classify("INSERT INTO users (id) VALUES (1)")
	assert.Equal(t, SafeModify, got.Tier)
	assert.True(t, got.Modify)
	assert.False(t, got.Dangerous)

	got = c.Classify("  ")
	assert.True(t, got.IsEmpty())
	assert.Equal(t, Readonly, got.Tier)
}

func TestExtractTopLevelStatements(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"SELECT * FROM users", []string{"SELECT"}},
		{"SELECT * FROM users; DELETE FROM users WHERE id=3;", []string{"SELECT", "DELETE"}},
		{"WITH cte AS (SELECT * FROM users) SELECT id FROM cte", []string{"SELECT"}},
		{"INSERT INTO users (id) VALUES (1); UPDATE users SET id = 2; DROP TABLE users", []string{"INSERT", "UPDATE", "DROP"}},
		{"CREATE TABLE accounts (id INT); CREATE INDEX idx_id ON accounts (id)", []string{"CREATE", "CREATE"}},
	}

	for _, engine := range engines {
		c := newTestClassifier(engine)
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s/%s", engine, tt.sql), func(t *testing.T) {
				got := c.Extract(tt.sql)
				require.Equal(t, SourceParser, got.Source, "parse error: %v", got.Err)
				assert.Equal(t, tt.want, got.Statements)
			})
		}
	}
}

func TestExtractNestedStatements(t *testing.T) {
	tests := []struct {
		name       string
		engine     types.Engine
		sql        string
		statements []string
		nested     string
		tier       Tier
	}{
		{
			name:       "delete in cte body",
			engine:     types.Engine_POSTGRES,
			sql:        "WITH d AS (DELETE FROM users WHERE id=1 RETURNING *) SELECT * FROM d",
			statements: []string{"SELECT"},
			nested:     "DELETE",
			tier:       Dangerous,
		},
		{
			name:       "delete in cte of delete",
			engine:     types.Engine_POSTGRES,
			sql:        "WITH delete_cte AS (DELETE FROM users WHERE id=1) DELETE FROM users WHERE id=2",
			statements: []string{"DELETE"},
			nested:     "DELETE",
			tier:       Dangerous,
		},
		{
			name:       "insert in cte body",
			engine:     types.Engine_POSTGRES,
			sql:        "WITH i AS (INSERT INTO audit (id) VALUES (1) RETURNING id) SELECT * FROM i",
			statements: []string{"SELECT"},
			nested:     "INSERT",
			tier:       SafeModify,
		},
		{
			name:       "explain target",
			engine:     types.Engine_POSTGRES,
			sql:        "EXPLAIN DELETE FROM users",
			statements: []string{"EXPLAIN"},
			nested:     "DELETE",
			tier:       Dangerous,
		},
		{
			name:       "explain target",
			engine:     types.Engine_SQLITE,
			sql:        "EXPLAIN DELETE FROM users",
			statements: []string{"EXPLAIN"},
			nested:     "DELETE",
			tier:       Dangerous,
		},
		{
			name:       "insert select source",
			engine:     types.Engine_SQLITE,
			sql:        "INSERT INTO archive SELECT * FROM users",
			statements: []string{"INSERT"},
			nested:     "SELECT",
			tier:       SafeModify,
		},
		{
			name:       "in subquery",
			engine:     types.Engine_SQLITE,
			sql:        "SELECT * FROM users WHERE id IN (SELECT user_id FROM orders)",
			statements: []string{"SELECT"},
			nested:     "SELECT",
			tier:       Readonly,
		},
		{
			name:       "scalar subquery in values",
			engine:     types.Engine_SQLITE,
			sql:        "INSERT INTO users (id) VALUES ((SELECT max(id) + 1 FROM users))",
			statements: []string{"INSERT"},
			nested:     "SELECT",
			tier:       SafeModify,
		},
		{
			name:       "trigger body",
			engine:     types.Engine_SQLITE,
			sql:        "CREATE TRIGGER cleanup_archive AFTER INSERT ON users BEGIN DELETE FROM archive; END",
			statements: []string{"CREATE"},
			nested:     "DELETE",
			tier:       Dangerous,
		},
		{
			name:       "procedure body",
			engine:     types.Engine_MYSQL,
			sql:        "CREATE PROCEDURE cleanup_users() BEGIN DELETE FROM users; END",
			statements: []string{"CREATE"},
			nested:     "DELETE",
			tier:       Dangerous,
		},
		{
			name:       "select into outfile",
			engine:     types.Engine_MYSQL,
			sql:        "SELECT * FROM users INTO OUTFILE '/tmp/users.csv'",
			statements: []string{"SELECT"},
			nested:     "INTO",
			tier:       Dangerous,
		},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.engine, tt.name), func(t *testing.T) {
			got := newTestClassifier(tt.engine).Extract(tt.sql)
			require.Equal(t, SourceParser, got.Source, "parse error: %v", got.Err)
			assert.Equal(t, tt.statements, got.Statements)
			assert.Contains(t, got.Nested, tt.nested)
			assert.Equal(t, tt.tier, got.Tier())
		})
	}
}

func TestExtractFallback(t *testing.T) {
	tests := []struct {
		name   string
		engine types.Engine
		sql    string
		want   []string
	}{
		{name: "unknown word", engine: types.Engine_SQLITE, sql: "FOOBAR", want: []string{"FOOBAR"}},
		{name: "unknown word", engine: types.Engine_MYSQL, sql: "  foobar  ", want: []string{"FOOBAR"}},
		{name: "unknown word", engine: types.Engine_POSTGRES, sql: "FOOBAR", want: []string{"FOOBAR"}},
		{name: "pragma", engine: types.Engine_MYSQL, sql: "PRAGMA table_info(users)", want: []string{"PRAGMA"}},
		{name: "benign first statement", engine: types.Engine_SQLITE, sql: "SELECT 1; DELET FROM users", want: []string{"SELECT", "DELET"}},
		{name: "data modifying cte", engine: types.Engine_SQLITE, sql: "WITH d AS (DELETE FROM users) SELECT * FROM d", want: []string{"WITH"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.engine, tt.name), func(t *testing.T) {
			got := newTestClassifier(tt.engine).Extract(tt.sql)
			assert.Equal(t, SourceFallback, got.Source)
			assert.Equal(t, tt.want, got.Statements)
			assert.Empty(t, got.Nested)
			assert.Error(t, got.Err)
		})
	}
}

func TestFallbackStatementKinds(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"FOOBAR", []string{"FOOBAR"}},
		{"select 1; drop table users", []string{"SELECT", "DROP"}},
		{"SELECT ';' FROM t; DELETE FROM t", []string{"SELECT", "DELETE"}},
		{"/* comment */ UPDATE t SET a = 1", []string{"UPDATE"}},
		{";", nil},
		{" ; ;\n;", nil},
		{"-- nothing here\n;", nil},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, fallbackStatementKinds(tt.sql))
		})
	}
}

func TestExtractEmpty(t *testing.T) {
	for _, engine := range engines {
		c := newTestClassifier(engine)
		for _, sql := range []string{"", "   ", "\n\t", ";", " ; ; ", "/* note */ ;"} {
			got := c.Extract(sql)
			assert.Equal(t, SourceEmpty, got.Source)
			assert.Empty(t, got.Statements)
			assert.Empty(t, got.Nested)
			assert.NoError(t, got.Err)
			assert.True(t, c.IsReadonly(sql))
		}
	}
}

func TestExtractNeverEmptyOnStatements(t *testing.T) {
	inputs := []string{"FOOBAR", "SELECT", "((", "'unterminated", "DELETE", "x;y;z", "@@@"}
	for _, engine := range engines {
		c := newTestClassifier(engine)
		for _, sql := range inputs {
			got := c.Extract(sql)
			assert.NotEmpty(t, got.Labels(), "%s: %q", engine, sql)
		}
	}
}

func TestStrictFallback(t *testing.T) {
	lenient := newTestClassifier(types.Engine_MYSQL)
	strict := newTestClassifier(types.Engine_MYSQL, WithStrictFallback(true))

	pragma := "PRAGMA table_info(users)"
	assert.True(t, lenient.IsReadonly(pragma))
	assert.False(t, strict.IsReadonly(pragma))
	assert.True(t, strict.IsDangerous(pragma))

	// Parsed statements are not affected.
	assert.True(t, strict.IsReadonly("SELECT * FROM users"))
	assert.False(t, strict.IsDangerous("INSERT INTO users (id) VALUES (1)"))
	assert.True(t, strict.IsReadonly(""))
}

func TestMaxParseLength(t *testing.T) {
	c := newTestClassifier(types.Engine_SQLITE, WithMaxParseLength(10))

	got := c.Classify("SELECT * FROM users")
	assert.Equal(t, SourceFallback, got.Extraction.Source)
	assert.ErrorContains(t, got.Extraction.Err, "maximum parse length")
	assert.True(t, got.Readonly)

	got = c.Classify("SELECT * FROM users; DROP TABLE users")
	assert.Equal(t, SourceFallback, got.Extraction.Source)
	assert.True(t, got.Dangerous)

	unlimited := newTestClassifier(types.Engine_SQLITE, WithMaxParseLength(0))
	assert.Equal(t, SourceParser, unlimited.Extract("SELECT * FROM users").Source)
}

func TestLargeStatement(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO users (id) VALUES (0)")
	for i := 1; i < 20000; i++ {
		fmt.Fprintf(&sb, ", (%d)", i)
	}
	statement := sb.String()

	c := newTestClassifier(types.Engine_SQLITE)
	got := c.Classify(statement)
	assert.Equal(t, SafeModify, got.Tier)

	got = c.Classify(statement + "; DELETE FROM users")
	assert.Equal(t, Dangerous, got.Tier)
}

func TestCaseInsensitive(t *testing.T) {
	pairs := [][2]string{
		{"SELECT * FROM users", "select * from users"},
		{"INSERT INTO users (id) VALUES (1)", "insert into users (id) values (1)"},
		{"DELETE FROM users", "Delete From users"},
		{"PRAGMA table_info(users)", "pragma table_info(users)"},
		{"FOOBAR", "foobar"},
		{"WITH cte AS (SELECT * FROM users) SELECT id FROM cte", "with cte as (select * from users) select id from cte"},
	}

	for _, engine := range engines {
		c := newTestClassifier(engine)
		for _, pair := range pairs {
			upper, lower := c.Classify(pair[0]), c.Classify(pair[1])
			assert.Equal(t, upper.Tier, lower.Tier, "%s: %q", engine, pair[1])
			assert.Equal(t, upper.Extraction.Statements, lower.Extraction.Statements, "%s: %q", engine, pair[1])
		}
	}
}

func TestMultiStatementIsWorstCase(t *testing.T) {
	statements := []string{
		"SELECT * FROM users",
		"PRAGMA table_info(users)",
		"INSERT INTO users (id) VALUES (1)",
		"CREATE TABLE accounts (id INT)",
		"UPDATE users SET name = 'a'",
		"DELETE FROM users",
		"DROP TABLE users",
		"FOOBAR",
	}

	for _, engine := range engines {
		c := newTestClassifier(engine)
		for _, a := range statements {
			for _, b := range statements {
				combined := a + "; " + b
				want := max(c.Classify(a).Tier, c.Classify(b).Tier)
				assert.Equal(t, want, c.Classify(combined).Tier, "%s: %q", engine, combined)
			}
		}
	}
}

func TestNeverPanics(t *testing.T) {
	inputs := []string{
		"SELECT ((((",
		"'unterminated",
		"/* unterminated",
		";;;",
		"\x00\xff\xfe",
		"DELIMITER $$",
		"BEGIN",
		"END",
		"WITH",
		"SELECT * FROM users WHERE name = 'it''s'",
		strings.Repeat("(", 500),
	}

	for _, engine := range engines {
		c := newTestClassifier(engine)
		for _, sql := range inputs {
			assert.NotPanics(t, func() {
				got := c.Classify(sql)
				assert.Equal(t, !got.Readonly, got.Modify)
				assert.Equal(t, got.Tier == Dangerous, got.Dangerous)
			}, "%s: %q", engine, sql)
		}
	}
}

func TestCache(t *testing.T) {
	c := newTestClassifier(types.Engine_SQLITE, WithCacheSize(2))
	require.NotNil(t, c.cache)

	first := c.Classify("SELECT * FROM users")
	second := c.Classify("SELECT * FROM users")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.cache.Len())

	c.Classify("DELETE FROM users")
	c.Classify("INSERT INTO users (id) VALUES (1)")
	assert.Equal(t, 2, c.cache.Len())
	assert.True(t, c.IsDangerous("DELETE FROM users"))

	assert.Nil(t, newTestClassifier(types.Engine_SQLITE).cache)
}

func TestUnsupportedEngine(t *testing.T) {
	c := newTestClassifier(types.Engine_ENGINE_UNSPECIFIED)
	assert.Equal(t, DefaultEngine, c.Engine())
	assert.True(t, c.IsReadonly("SELECT * FROM users"))
}

func TestClassifierConcurrentUse(t *testing.T) {
	for _, engine := range engines {
		c := newTestClassifier(engine, WithCacheSize(8))
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tt := classifierTestCases[i%len(classifierTestCases)]
				assert.Equal(t, tt.readonly, c.IsReadonly(tt.sql), "%s: %s", engine, tt.name)
				assert.Equal(t, tt.dangerous, c.IsDangerous(tt.sql), "%s: %s", engine, tt.name)
			}(i)
		}
		wg.Wait()
	}
}
