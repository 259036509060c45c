// Package dbms resolves the database handles of a runtime environment.
//
// An environment is a map of named bindings. Database bindings are the
// entries whose name starts with "DB" and whose value can prepare
// statements; other bindings, such as plain configuration strings, are
// skipped.
package dbms

import (
	"context"
	"database/sql"
	"log/slog"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// BindingPrefix marks the environment entries that may be databases.
const BindingPrefix = "DB"

// DefaultName is the name of a binding called exactly BindingPrefix.
const DefaultName = "default"

var bindingPrefixRegex = regexp.MustCompile(`^DB_?`)

// Handle is a database handle that can prepare statements. *sql.DB,
// *sql.Conn and *sql.Tx are handles.
type Handle interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Resolve returns the database handles of env by binding name. The name is
// the key with the "DB" prefix and an optional "_" stripped, so DB_USERS
// and DBUSERS are both "USERS" and DB alone is "default".
func Resolve(env map[string]any) map[string]Handle {
	var keys []string
	for key := range env {
		if strings.HasPrefix(key, BindingPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	slog.Debug("Database bindings", "bindings", strings.Join(keys, ", "))

	result := make(map[string]Handle, len(keys))
	for _, key := range keys {
		value := env[key]
		if _, ok := value.(string); ok {
			continue
		}
		handle, ok := value.(Handle)
		if !ok || isNil(handle) {
			continue
		}
		result[BindingName(key)] = handle
	}
	return result
}

// isNil reports whether h is nil or holds a nil pointer, such as a
// (*sql.DB)(nil) stored in the environment.
func isNil(h Handle) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

// BindingName returns the database name for an environment key.
func BindingName(key string) string {
	if name := bindingPrefixRegex.ReplaceAllString(key, ""); name != "" {
		return name
	}
	return DefaultName
}

// Names returns the sorted names of handles.
func Names(handles map[string]Handle) []string {
	names := make([]string, 0, len(handles))
	for name := range handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
