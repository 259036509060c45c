// Package gate runs SQL against named databases after checking it with the
// risk classifier.
//
// Every call names a database and a Mode. The statement is classified with
// the database's classifier and denied unless the mode admits its tier.
// Each decision is written to the audit log with the raw statement and
// counted in the gate metrics.
package gate

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nsxbet/sqlguard/pkg/dbms"
	"github.com/nsxbet/sqlguard/pkg/logger"
	"github.com/nsxbet/sqlguard/pkg/risk"
)

var (
	// ErrUnknownDatabase is returned for a database name without a handle.
	ErrUnknownDatabase = errors.New("unknown database")
	// ErrEmptyStatement is returned for SQL without any statement.
	ErrEmptyStatement = errors.New("empty statement")
	// ErrDenied is returned when the mode does not admit the statement.
	ErrDenied = errors.New("statement denied")
)

const (
	decisionAllow = "allow"
	decisionDeny  = "deny"
)

// Gate checks SQL before running it against a fixed set of databases. It is
// safe for concurrent use.
type Gate struct {
	handles     map[string]dbms.Handle
	classifiers map[string]*risk.Classifier
	classifier  *risk.Classifier
	logger      logger.Interface
	metrics     *Metrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithClassifier sets the classifier for databases without their own.
func WithClassifier(c *risk.Classifier) Option {
	return func(g *Gate) {
		if c != nil {
			g.classifier = c
		}
	}
}

// WithDatabaseClassifier sets the classifier of one database, typically
// one for the database's engine.
func WithDatabaseClassifier(name string, c *risk.Classifier) Option {
	return func(g *Gate) {
		if c != nil {
			g.classifiers[name] = c
		}
	}
}

// WithLogger sets the audit logger.
func WithLogger(l logger.Interface) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics sets the metrics the gate records into.
func WithMetrics(m *Metrics) Option {
	return func(g *Gate) {
		if m != nil {
			g.metrics = m
		}
	}
}

// New creates a gate over handles. The map is copied.
func New(handles map[string]dbms.Handle, opts ...Option) *Gate {
	g := &Gate{
		handles:     make(map[string]dbms.Handle, len(handles)),
		classifiers: make(map[string]*risk.Classifier),
		classifier:  risk.New(risk.DefaultEngine),
		logger:      logger.Default(),
		metrics:     NewMetrics(nil),
	}
	for name, handle := range handles {
		g.handles[name] = handle
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Databases returns the sorted names of the gate's databases.
func (g *Gate) Databases() []string {
	return dbms.Names(g.handles)
}

// Authorize classifies statement for database name and checks it against
// mode. The classification is returned even when the statement is denied.
func (g *Gate) Authorize(name, statement string, mode Mode) (risk.Classification, error) {
	_, classification, err := g.authorize(name, statement, mode)
	return classification, err
}

func (g *Gate) authorize(name, statement string, mode Mode) (dbms.Handle, risk.Classification, error) {
	handle, ok := g.handles[name]
	if !ok {
		g.deny(name, statement, mode, nil, "unknown database")
		return nil, risk.Classification{}, errors.Wrapf(ErrUnknownDatabase, "database %q", name)
	}

	classification := g.classifierFor(name).Classify(statement)
	if classification.IsEmpty() {
		g.deny(name, statement, mode, &classification, "empty statement")
		return nil, classification, errors.Wrapf(ErrEmptyStatement, "database %q", name)
	}
	if !mode.Allows(classification) {
		g.deny(name, statement, mode, &classification, "mode does not allow tier")
		return nil, classification, errors.Wrapf(ErrDenied, "%s statement in %s mode", classification.Tier, mode)
	}

	g.logger.Info("SQL allowed",
		"database", name,
		"mode", mode.String(),
		"sql", statement,
		"tier", classification.Tier.String(),
		"readonly", classification.Readonly,
		"dangerous", classification.Dangerous,
		"decision", decisionAllow)
	g.metrics.observeDecision(name, mode, classification.Tier.String(), decisionAllow)
	return handle, classification, nil
}

func (g *Gate) deny(name, statement string, mode Mode, c *risk.Classification, reason string) {
	tier := "none"
	args := []any{
		"database", name,
		"mode", mode.String(),
		"sql", statement,
	}
	if c != nil {
		tier = c.Tier.String()
		args = append(args,
			"tier", tier,
			"readonly", c.Readonly,
			"dangerous", c.Dangerous,
			"source", c.Extraction.Source.String())
	}
	args = append(args, "decision", decisionDeny, "reason", reason)
	g.logger.Warn("SQL denied", args...)
	g.metrics.observeDecision(name, mode, tier, decisionDeny)
}

func (g *Gate) classifierFor(name string) *risk.Classifier {
	if c, ok := g.classifiers[name]; ok {
		return c
	}
	return g.classifier
}

// Result holds the rows returned by a query.
type Result struct {
	Columns []string `json:"columns" yaml:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows"`
}

// Query runs statement against database name and reads every row.
func (g *Gate) Query(ctx context.Context, name string, mode Mode, statement string, args ...any) (*Result, error) {
	handle, _, err := g.authorize(name, statement, mode)
	if err != nil {
		return nil, err
	}
	return g.query(ctx, handle, name, statement, args...)
}

// Exec runs statement against database name and returns the number of
// rows affected.
func (g *Gate) Exec(ctx context.Context, name string, mode Mode, statement string, args ...any) (int64, error) {
	handle, _, err := g.authorize(name, statement, mode)
	if err != nil {
		return 0, err
	}
	return g.exec(ctx, handle, name, statement, args...)
}

// Outcome is the result of Run.
type Outcome struct {
	Classification risk.Classification
	// Result holds the rows of a read-only statement.
	Result *Result
	// RowsAffected is set for every other statement.
	RowsAffected int64
}

// Run authorizes statement once and then queries it when it is read-only
// or executes it otherwise. The classification is set even when the
// statement is denied.
func (g *Gate) Run(ctx context.Context, name string, mode Mode, statement string, args ...any) (*Outcome, error) {
	handle, classification, err := g.authorize(name, statement, mode)
	outcome := &Outcome{Classification: classification}
	if err != nil {
		return outcome, err
	}

	if classification.Readonly {
		outcome.Result, err = g.query(ctx, handle, name, statement, args...)
	} else {
		outcome.RowsAffected, err = g.exec(ctx, handle, name, statement, args...)
	}
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (g *Gate) query(ctx context.Context, handle dbms.Handle, name, statement string, args ...any) (*Result, error) {
	defer g.timer(name, "query")()

	stmt, err := handle.PrepareContext(ctx, statement)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare statement")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get columns")
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read rows")
	}
	return result, nil
}

func (g *Gate) exec(ctx context.Context, handle dbms.Handle, name, statement string, args ...any) (int64, error) {
	defer g.timer(name, "exec")()

	stmt, err := handle.PrepareContext(ctx, statement)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prepare statement")
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to execute statement")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return affected, nil
}

func (g *Gate) timer(name, operation string) func() {
	start := time.Now()
	return func() {
		g.metrics.observeDuration(name, operation, time.Since(start).Seconds())
	}
}

// IsDenied reports whether err is a gate refusal rather than a database
// failure.
func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied) || errors.Is(err, ErrEmptyStatement) || errors.Is(err, ErrUnknownDatabase)
}

// Describe returns a one-line summary of a classification for messages.
func Describe(c risk.Classification) string {
	labels := c.Extraction.Labels()
	if len(labels) == 0 {
		return c.Tier.String()
	}
	return c.Tier.String() + " (" + strings.Join(labels, ", ") + ")"
}
