package dbms

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"strings"

	// Drivers for Binding.Driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/nsxbet/sqlguard/pkg/types"
)

// Binding describes one environment entry. A binding with a driver is a
// database opened with sql.Open(Driver, DSN); a binding without one is the
// plain string Value.
type Binding struct {
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Value  string `yaml:"value,omitempty" json:"value,omitempty"`
}

// IsDatabase reports whether the binding opens a database.
func (b Binding) IsDatabase() bool {
	return b.Driver != ""
}

// Env is a runtime environment of named bindings.
type Env map[string]any

// Open opens every database binding in bindings and checks that it is
// reachable. Plain bindings are passed through as strings. On error every
// database opened so far is closed.
func Open(ctx context.Context, bindings map[string]Binding) (Env, error) {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	env := make(Env, len(bindings))
	for _, name := range names {
		binding := bindings[name]
		if !binding.IsDatabase() {
			env[name] = binding.Value
			continue
		}

		db, err := openDatabase(ctx, binding)
		if err != nil {
			_ = env.Close()
			return nil, errors.Wrapf(err, "failed to open binding %s", name)
		}
		env[name] = db
	}
	return env, nil
}

func openDatabase(ctx context.Context, binding Binding) (*sql.DB, error) {
	if _, err := EngineForDriver(binding.Driver); err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverName(binding.Driver), binding.DSN)
	if err != nil {
		return nil, err
	}
	if isMemoryDSN(binding.DSN) {
		// Every connection to an in-memory database is a new database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Close closes every binding of env that can be closed and returns the
// first error.
func (e Env) Close() error {
	var first error
	for name, value := range e {
		closer, ok := value.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "failed to close binding %s", name)
		}
	}
	return first
}

// driverNames maps driver aliases to the names the drivers register.
var driverNames = map[string]string{
	"sqlite3":    "sqlite",
	"postgres":   "pgx",
	"postgresql": "pgx",
}

// DriverName returns the registered database/sql driver for driver.
func DriverName(driver string) string {
	driver = strings.ToLower(driver)
	if name, ok := driverNames[driver]; ok {
		return name
	}
	return driver
}

// EngineForDriver returns the SQL dialect spoken through a database/sql
// driver.
func EngineForDriver(driver string) (types.Engine, error) {
	switch DriverName(driver) {
	case "sqlite":
		return types.Engine_SQLITE, nil
	case "mysql":
		return types.Engine_MYSQL, nil
	case "pgx":
		return types.Engine_POSTGRES, nil
	default:
		return types.Engine_ENGINE_UNSPECIFIED, errors.Errorf("unsupported driver: %s", driver)
	}
}
