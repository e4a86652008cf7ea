// Package rules implements the keyword-driven requirement matcher: a map of
// keyword rules is scanned against the free-text access requirements of each
// policy, and every rule that fires is evaluated against the citizen profile.
package rules

import (
	"strconv"

	"github.com/redecaete/matupiri/internal/textnorm"
)

// Type identifies the condition variant a rule carries.
type Type string

const (
	TypeBool     Type = "bool"
	TypeNumber   Type = "number"
	TypeSelectIn Type = "select_in"
	TypeText     Type = "text"
)

// Op is the comparison operator for number rules.
type Op string

const (
	OpLE Op = "<="
	OpGE Op = ">="
	OpEQ Op = "=="
)

// Profile maps profile field names to their scalar values (string, number,
// or bool). Absent fields evaluate as nil, which fails every rule variant
// except a bool rule expecting false.
type Profile map[string]any

// Rule is one keyword condition, validated at load time. Key is matched as a
// literal substring of the normalized requirement text; the typed payload
// fields are populated according to Type.
type Rule struct {
	Key   string
	Field string
	Type  Type
	Op    Op
	Label string

	boolValue   bool
	numValue    float64
	selectSet   map[string]struct{}
	textValue   string // pre-normalized
}

// Evaluate checks a profile value against the rule condition. It is total:
// coercion failures and unknown variants resolve to false, never an error.
func (r *Rule) Evaluate(userValue any) bool {
	switch r.Type {
	case TypeBool:
		return coerceBool(userValue) == r.boolValue
	case TypeNumber:
		v, ok := coerceFloat(userValue)
		if !ok {
			return false
		}
		switch r.Op {
		case OpLE:
			return v <= r.numValue
		case OpGE:
			return v >= r.numValue
		case OpEQ:
			return v == r.numValue
		}
		return false
	case TypeSelectIn:
		_, ok := r.selectSet[coerceString(userValue)]
		return ok
	case TypeText:
		return textnorm.Normalize(coerceString(userValue)) == r.textValue
	}
	// Unknown variants fail closed.
	return false
}

func coerceBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	}
	return true
}

func coerceFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func coerceString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}
