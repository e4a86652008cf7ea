package rules

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/redecaete/matupiri/internal/textnorm"
)

// Map holds the keyword rules in file order. Order matters for display only:
// met/missing labels are appended in the order rules appear in the file.
type Map struct {
	rules []Rule
}

// Rules returns the rules in file order.
func (m *Map) Rules() []Rule { return m.rules }

// Len returns the number of rules.
func (m *Map) Len() int { return len(m.rules) }

// rawRule is the on-disk shape of one rule object.
type rawRule struct {
	Field string          `json:"field"`
	Type  string          `json:"type"`
	Op    string          `json:"op"`
	Value json.RawMessage `json:"value"`
	Label string          `json:"label"`
}

// LoadKeywordMap reads a keyword→rule JSON object and validates every rule.
// Malformed rules surface here as a single load-time error instead of a
// silent per-evaluation false. Key order in the file is preserved.
func LoadKeywordMap(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "rules: open keyword map")
	}
	defer f.Close() //nolint:errcheck

	dec := json.NewDecoder(f)

	// A plain json.Unmarshal into a map would lose key order, so walk the
	// object token by token.
	tok, err := dec.Token()
	if err != nil {
		return nil, eris.Wrap(err, "rules: read keyword map")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, eris.New("rules: keyword map must be a JSON object")
	}

	m := &Map{}
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, eris.Wrap(err, "rules: read keyword map key")
		}
		key := tok.(string)
		if _, dup := seen[key]; dup {
			return nil, eris.Errorf("rules: duplicate keyword %q", key)
		}
		seen[key] = struct{}{}

		var raw rawRule
		if err := dec.Decode(&raw); err != nil {
			return nil, eris.Wrapf(err, "rules: decode rule %q", key)
		}
		rule, err := buildRule(key, raw)
		if err != nil {
			return nil, err
		}
		m.rules = append(m.rules, rule)
	}
	return m, nil
}

func buildRule(key string, raw rawRule) (Rule, error) {
	r := Rule{
		Key:   key,
		Field: raw.Field,
		Type:  Type(raw.Type),
		Op:    Op(raw.Op),
		Label: raw.Label,
	}
	if r.Field == "" {
		return r, eris.Errorf("rules: rule %q has no field", key)
	}
	if r.Label == "" {
		r.Label = key
	}

	switch r.Type {
	case TypeBool:
		// Absent value defaults to true ("the requirement must hold").
		r.boolValue = true
		if len(raw.Value) > 0 {
			if err := json.Unmarshal(raw.Value, &r.boolValue); err != nil {
				return r, eris.Wrapf(err, "rules: rule %q bool value", key)
			}
		}
	case TypeNumber:
		switch r.Op {
		case OpLE, OpGE, OpEQ:
		default:
			return r, eris.Errorf("rules: rule %q has unsupported op %q", key, raw.Op)
		}
		if err := json.Unmarshal(raw.Value, &r.numValue); err != nil {
			return r, eris.Wrapf(err, "rules: rule %q numeric value", key)
		}
	case TypeSelectIn:
		var list []any
		if err := json.Unmarshal(raw.Value, &list); err != nil {
			// Scalars are wrapped into a singleton set.
			var scalar any
			if err := json.Unmarshal(raw.Value, &scalar); err != nil {
				return r, eris.Wrapf(err, "rules: rule %q select value", key)
			}
			list = []any{scalar}
		}
		r.selectSet = make(map[string]struct{}, len(list))
		for _, v := range list {
			r.selectSet[coerceString(v)] = struct{}{}
		}
	case TypeText:
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return r, eris.Wrapf(err, "rules: rule %q text value", key)
		}
		r.textValue = textnorm.Normalize(s)
	default:
		return r, eris.Errorf("rules: rule %q has unknown type %q", key, raw.Type)
	}
	return r, nil
}

// FieldSpec describes one profile field in the schema file. Only the type
// semantics matter to the evaluator; label and options drive external form
// generation.
type FieldSpec struct {
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
}

// LoadProfileSchema reads the field→spec JSON map.
func LoadProfileSchema(path string) (map[string]FieldSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "rules: read profile schema")
	}
	var schema map[string]FieldSpec
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, eris.Wrap(err, "rules: decode profile schema")
	}
	for field, spec := range schema {
		switch spec.Type {
		case "text", "number", "bool", "select":
		default:
			return nil, eris.Errorf("rules: schema field %q has unknown type %q", field, spec.Type)
		}
	}
	return schema, nil
}
