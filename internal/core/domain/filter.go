package domain

import "fmt"

// FilterClause is a boolean predicate tree over metadata equality. It is a
// hard pre-filter: records that do not match are excluded from retrieval,
// never merely down-ranked.
type FilterClause interface {
	Matches(meta map[string]any) bool
	Validate(knownKeys map[string]struct{}) error
}

// MatchAll is the default filter.
func MatchAll() FilterClause { return And{} }

type Equals struct {
	Key   string
	Value any
}

func (e Equals) Matches(meta map[string]any) bool {
	v, ok := meta[e.Key]
	if !ok {
		return false
	}
	return scalarEqual(v, e.Value)
}

func (e Equals) Validate(knownKeys map[string]struct{}) error {
	if e.Key == "" {
		return WrapError(ErrInvalidRequest, "validate filter", fmt.Errorf("filter clause key is empty"))
	}
	if len(knownKeys) > 0 {
		if _, ok := knownKeys[e.Key]; !ok {
			return WrapError(ErrInvalidRequest, "validate filter", fmt.Errorf("unknown filter key %q", e.Key))
		}
	}
	if !isScalar(e.Value) {
		return WrapError(ErrInvalidRequest, "validate filter", fmt.Errorf("filter value for %q is not a scalar", e.Key))
	}
	return nil
}

type And struct {
	Clauses []FilterClause
}

func (a And) Matches(meta map[string]any) bool {
	for _, c := range a.Clauses {
		if !c.Matches(meta) {
			return false
		}
	}
	return true
}

func (a And) Validate(knownKeys map[string]struct{}) error {
	for _, c := range a.Clauses {
		if err := c.Validate(knownKeys); err != nil {
			return err
		}
	}
	return nil
}

type Or struct {
	Clauses []FilterClause
}

func (o Or) Matches(meta map[string]any) bool {
	if len(o.Clauses) == 0 {
		return true
	}
	for _, c := range o.Clauses {
		if c.Matches(meta) {
			return true
		}
	}
	return false
}

func (o Or) Validate(knownKeys map[string]struct{}) error {
	for _, c := range o.Clauses {
		if err := c.Validate(knownKeys); err != nil {
			return err
		}
	}
	return nil
}

// canonicalizeFilter rewrites filter keys to their metadata names. The
// upstream views call a record's origin "table_name"; it is stored as the
// source_table metadata key.
func canonicalizeFilter(f FilterClause) FilterClause {
	switch c := f.(type) {
	case Equals:
		if c.Key == "table_name" {
			c.Key = "source_table"
		}
		return c
	case And:
		out := And{Clauses: make([]FilterClause, len(c.Clauses))}
		for i, sub := range c.Clauses {
			out.Clauses[i] = canonicalizeFilter(sub)
		}
		return out
	case Or:
		out := Or{Clauses: make([]FilterClause, len(c.Clauses))}
		for i, sub := range c.Clauses {
			out.Clauses[i] = canonicalizeFilter(sub)
		}
		return out
	default:
		return f
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

// scalarEqual compares metadata values across the numeric representations
// JSON decoding produces (all numbers arrive as float64).
func scalarEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
