package types

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Engine represents the database engine type
type Engine int32

const (
	Engine_ENGINE_UNSPECIFIED Engine = 0
	Engine_MYSQL              Engine = 1
	Engine_POSTGRES           Engine = 2
	Engine_SQLITE             Engine = 5
)

func (e Engine) String() string {
	switch e {
	case Engine_ENGINE_UNSPECIFIED:
		return "ENGINE_UNSPECIFIED"
	case Engine_MYSQL:
		return "MYSQL"
	case Engine_POSTGRES:
		return "POSTGRES"
	case Engine_SQLITE:
		return "SQLITE"
	default:
		return "UNKNOWN"
	}
}

// ParseEngine converts a user supplied engine name into an Engine.
// Matching is case-insensitive and accepts the common aliases.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MYSQL", "MARIADB", "TIDB":
		return Engine_MYSQL, nil
	case "POSTGRES", "POSTGRESQL", "PG":
		return Engine_POSTGRES, nil
	case "SQLITE", "SQLITE3", "D1":
		return Engine_SQLITE, nil
	default:
		return Engine_ENGINE_UNSPECIFIED, errors.Errorf("unsupported database engine: %s", s)
	}
}

// MarshalText implements encoding.TextMarshaler for Engine
func (e Engine) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for Engine
func (e *Engine) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	engine, err := ParseEngine(s)
	if err != nil {
		return err
	}
	*e = engine
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Engine
func (e *Engine) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	engine, err := ParseEngine(s)
	if err != nil {
		return err
	}
	*e = engine
	return nil
}

// Position represents a position in the source code
type Position struct {
	Line   int32 `json:"line" yaml:"line"`
	Column int32 `json:"column" yaml:"column"`
}
