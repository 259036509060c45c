package risk

import (
	"strings"

	"github.com/pkg/errors"
)

// Tier is the risk of executing a statement. Tiers are totally ordered so
// that Readonly < SafeModify < Dangerous.
type Tier int

const (
	// Readonly statements do not change any state.
	Readonly Tier = iota
	// SafeModify statements create or insert without destroying existing
	// data or changing permissions.
	SafeModify
	// Dangerous is every other statement, including unknown ones.
	Dangerous
)

// String returns the name of the tier.
func (t Tier) String() string {
	switch t {
	case Readonly:
		return "READONLY"
	case SafeModify:
		return "SAFE_MODIFY"
	case Dangerous:
		return "DANGEROUS"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseTier parses a tier name as returned by String.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "READONLY":
		return Readonly, nil
	case "SAFE_MODIFY":
		return SafeModify, nil
	case "DANGEROUS":
		return Dangerous, nil
	default:
		return Dangerous, errors.Errorf("unknown risk tier: %s", s)
	}
}

// classificationTable lists every label that is not Dangerous.
var classificationTable = map[string]Tier{
	"SELECT":  Readonly,
	"PRAGMA":  Readonly,
	"EXPLAIN": Readonly,

	"CREATE":  SafeModify,
	"INSERT":  SafeModify,
	"REPLACE": SafeModify,
	"UPSERT":  SafeModify,
	"MERGE":   SafeModify,
}

// TierOf returns the tier of a statement-kind label. Labels are matched case
// insensitively and any label missing from the table is Dangerous.
func TierOf(label string) Tier {
	if tier, ok := classificationTable[strings.ToUpper(label)]; ok {
		return tier
	}
	return Dangerous
}

// Aggregate returns the highest tier among labels. No labels aggregate to
// Readonly.
func Aggregate(labels ...string) Tier {
	tier := Readonly
	for _, label := range labels {
		if t := TierOf(label); t > tier {
			tier = t
		}
		if tier == Dangerous {
			break
		}
	}
	return tier
}
