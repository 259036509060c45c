// Package pkg provides SQL risk classification and gated SQL execution for Go
// applications.
//
// sqlguard decides whether running a piece of SQL is read-only, a safe
// modification, or dangerous, for MySQL, PostgreSQL and SQLite, and can put
// that decision in front of real database connections.
//
// # Package Structure
//
// The pkg directory contains several specialized packages:
//
//   - risk: Classifier, risk tiers and the package-level predicates (recommended starting point)
//   - reviewer: High-level API for per-statement review of scripts
//   - gate: Mode-based access layer over database handles, with audit log and metrics
//   - dbms: Database bindings, SQL drivers and the environment resolver
//   - config: Configuration loading and management
//   - types: Core type definitions (Engine, Position)
//   - mysqlparser, pgparser, sqliteparser: Engine grammars
//   - logger: Logging abstraction layer
//
// # Getting Started
//
// For most use cases, start with the risk package:
//
//	import "github.com/nsxbet/sqlguard/pkg/risk"
//
//	func main() {
//	    if risk.IsDangerous(sql) {
//	        // Ask for confirmation...
//	    }
//	}
//
// # Risk Tiers
//
// Every statement is labelled by its kind and the label is mapped to a tier:
//
// READONLY: SELECT, PRAGMA, EXPLAIN
//
// SAFE_MODIFY: CREATE, INSERT, REPLACE, UPSERT, MERGE
//
// DANGEROUS: everything else, including UPDATE, DELETE, DROP, ALTER,
// TRUNCATE, GRANT, REVOKE and any statement kind that is not recognized
//
// A script gets the highest tier of all its statements, including statements
// nested in CTEs, EXPLAIN targets, trigger bodies and procedure bodies.
//
// # Configuration
//
// Classifiers can be configured via YAML/JSON files or programmatically:
//
//	cfg, err := config.LoadFromFile(".sqlguard.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c := cfg.Classifier(logger.Default())
//
// # Gated Execution
//
//	env, err := dbms.Open(ctx, cfg.Bindings)
//	g := gate.New(dbms.Resolve(env), gate.WithClassifier(c))
//	result, err := g.Query(ctx, "main", gate.ModeReadonly, "SELECT * FROM users")
//
// # Thread Safety
//
// All public APIs are safe for concurrent use by multiple goroutines.
// Classifier, Reviewer and Gate instances can be reused.
//
// # Error Handling
//
// Classification never fails: SQL the grammar rejects is labelled by its first
// keywords and the parse error is kept in the Extraction. Errors are returned
// only by operations that touch files or databases, and by the gate when a
// statement is denied.
//
// # Documentation
//
// Examples: examples/library-usage/
package pkg
