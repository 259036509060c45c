package dbms

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsxbet/sqlguard/pkg/types"
)

type fetcher struct{}

func (fetcher) Fetch(string) error { return nil }

func TestResolve(t *testing.T) {
	users, _, err := sqlmock.New()
	require.NoError(t, err)
	defer users.Close()
	orders, _, err := sqlmock.New()
	require.NoError(t, err)
	defer orders.Close()
	primary, _, err := sqlmock.New()
	require.NoError(t, err)
	defer primary.Close()

	env := map[string]any{
		"DB":          primary,
		"DB_USERS":    users,
		"DBORDERS":    orders,
		"DB_URL":      "postgres://localhost/app",
		"DB_SERVICE":  fetcher{},
		"DB_NIL":      nil,
		"DB_NIL_DB":   (*sql.DB)(nil),
		"DB_NIL_TX":   (*sql.Tx)(nil),
		"API_TOKEN":   "secret",
		"CACHE":       users,
		"db_lower":    users,
		"SESSION_KEY": 42,
	}

	got := Resolve(env)
	assert.Equal(t, []string{"ORDERS", "USERS", "default"}, Names(got))
	assert.Same(t, primary, got["default"])
	assert.Same(t, users, got["USERS"])
	assert.Same(t, orders, got["ORDERS"])
}

func TestResolveEmpty(t *testing.T) {
	assert.Empty(t, Resolve(nil))
	assert.Empty(t, Resolve(map[string]any{"DB_URL": "sqlite://x"}))
}

func TestResolveAcceptsConnAndTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()

	ctx := context.Background()
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	got := Resolve(map[string]any{"DB_CONN": conn, "DB_TX": tx})
	assert.Equal(t, []string{"CONN", "TX"}, Names(got))
}

func TestBindingName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"DB", "default"},
		{"DB_", "default"},
		{"DB_USERS", "USERS"},
		{"DBUSERS", "USERS"},
		{"DB__X", "_X"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, BindingName(tt.key))
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	env, err := Open(ctx, map[string]Binding{
		"DB_MAIN": {Driver: "sqlite", DSN: ":memory:"},
		"DB_URL":  {Value: "file:other.db"},
	})
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, "file:other.db", env["DB_URL"])
	db, ok := env["DB_MAIN"].(*sql.DB)
	require.True(t, ok)

	_, err = db.ExecContext(ctx, "CREATE TABLE users (id INTEGER)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO users (id) VALUES (1)")
	require.NoError(t, err)
	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)

	handles := Resolve(env)
	assert.Equal(t, []string{"MAIN"}, Names(handles))
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, map[string]Binding{"DB": {Driver: "oracle", DSN: "x"}})
	assert.ErrorContains(t, err, "unsupported driver: oracle")

	_, err = Open(ctx, map[string]Binding{"DB": {Driver: "mysql", DSN: "not a dsn"}})
	assert.ErrorContains(t, err, "failed to open binding DB")
}

func TestEnvClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	env := Env{"DB": db, "TOKEN": "x"}
	assert.NoError(t, env.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineForDriver(t *testing.T) {
	tests := []struct {
		driver  string
		want    types.Engine
		wantErr bool
	}{
		{driver: "sqlite", want: types.Engine_SQLITE},
		{driver: "sqlite3", want: types.Engine_SQLITE},
		{driver: "mysql", want: types.Engine_MYSQL},
		{driver: "pgx", want: types.Engine_POSTGRES},
		{driver: "Postgres", want: types.Engine_POSTGRES},
		{driver: "oracle", want: types.Engine_ENGINE_UNSPECIFIED, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := EngineForDriver(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "sqlite", DriverName("sqlite3"))
	assert.Equal(t, "pgx", DriverName("postgresql"))
	assert.Equal(t, "mysql", DriverName("MySQL"))
}
