package gate

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/nsxbet/sqlguard/pkg/risk"
)

// Mode is the kind of SQL a caller is allowed to run.
type Mode int

const (
	// ModeReadonly allows only read-only SQL.
	ModeReadonly Mode = iota
	// ModeSafe allows read-only SQL and safe modifications.
	ModeSafe
	// ModeUnrestricted allows any SQL.
	ModeUnrestricted
)

// String returns the name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeReadonly:
		return "readonly"
	case ModeSafe:
		return "safe"
	case ModeUnrestricted:
		return "unrestricted"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name as returned by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "readonly", "read-only", "ro":
		return ModeReadonly, nil
	case "safe":
		return ModeSafe, nil
	case "unrestricted", "all":
		return ModeUnrestricted, nil
	default:
		return ModeReadonly, errors.Errorf("unknown mode: %s", s)
	}
}

// Allows reports whether the mode admits SQL with classification c.
func (m Mode) Allows(c risk.Classification) bool {
	switch m {
	case ModeReadonly:
		return c.Readonly
	case ModeSafe:
		return !c.Dangerous
	case ModeUnrestricted:
		return true
	default:
		return false
	}
}
