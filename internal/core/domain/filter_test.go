package domain

import "testing"

func TestFilterMatchesEqualityTree(t *testing.T) {
	meta := map[string]any{
		"source_table": "employees",
		"status":       "active",
		"priority":     float64(2),
	}

	filter := And{Clauses: []FilterClause{
		Equals{Key: "source_table", Value: "employees"},
		Or{Clauses: []FilterClause{
			Equals{Key: "status", Value: "archived"},
			Equals{Key: "priority", Value: 2},
		}},
	}}

	if !filter.Matches(meta) {
		t.Fatalf("expected filter to match")
	}

	miss := And{Clauses: []FilterClause{Equals{Key: "status", Value: "archived"}}}
	if miss.Matches(meta) {
		t.Fatalf("expected filter to reject non-matching status")
	}
}

func TestFilterNumericEqualityAcrossJSONTypes(t *testing.T) {
	// JSON decoding yields float64; typed writers may hold ints.
	if !(Equals{Key: "n", Value: 5}).Matches(map[string]any{"n": float64(5)}) {
		t.Fatalf("expected int 5 to equal float64 5")
	}
	if (Equals{Key: "n", Value: 5}).Matches(map[string]any{"n": "5"}) {
		t.Fatalf("number must not equal string")
	}
}

func TestFilterMissingKeyNeverMatches(t *testing.T) {
	if (Equals{Key: "absent", Value: "x"}).Matches(map[string]any{"present": "x"}) {
		t.Fatalf("missing key must exclude the record, not down-rank it")
	}
}

func TestFilterValidateRejectsUnknownKeyAndNonScalar(t *testing.T) {
	known := map[string]struct{}{"status": {}}

	if err := (Equals{Key: "bogus", Value: "x"}).Validate(known); !IsKind(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for unknown key, got %v", err)
	}
	if err := (Equals{Key: "status", Value: map[string]any{}}).Validate(known); !IsKind(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for non-scalar value, got %v", err)
	}
	if err := (And{Clauses: []FilterClause{Equals{Key: "status", Value: "ok"}}}).Validate(known); err != nil {
		t.Fatalf("expected valid filter, got %v", err)
	}
}

func TestMatchAllMatchesEverything(t *testing.T) {
	if !MatchAll().Matches(nil) {
		t.Fatalf("match-all must match empty metadata")
	}
	if err := MatchAll().Validate(nil); err != nil {
		t.Fatalf("match-all must validate, got %v", err)
	}
}
