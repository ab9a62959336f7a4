package qdrant

import "testing"

func TestEncodeSparseQueryDeterministic(t *testing.T) {
	v1 := encodeSparseQuery("Which employee has the highest rate?")
	v2 := encodeSparseQuery("Which employee has the highest rate?")
	if len(v1.Indices) != len(v2.Indices) || len(v1.Values) != len(v2.Values) {
		t.Fatalf("vector sizes mismatch: v1=%d/%d v2=%d/%d", len(v1.Indices), len(v1.Values), len(v2.Indices), len(v2.Values))
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] || v1.Values[i] != v2.Values[i] {
			t.Fatalf("encoding not deterministic at %d", i)
		}
	}
}

func TestEncodeSparseQuerySortsIndices(t *testing.T) {
	v := encodeSparseQuery("zulu alpha beta gamma")
	if len(v.Indices) == 0 {
		t.Fatalf("expected non-empty sparse vector")
	}
	for i := 1; i < len(v.Indices); i++ {
		if v.Indices[i-1] > v.Indices[i] {
			t.Fatalf("indices not sorted at %d", i)
		}
	}
}

func TestEncodeSparseQueryNoiseOnlyInput(t *testing.T) {
	v := encodeSparseQuery("___---!!!")
	if len(v.Indices) != 0 || len(v.Values) != 0 {
		t.Fatalf("expected empty sparse vector, got %+v", v)
	}
}

func TestEncodeSparseRecordBoostsSourceTable(t *testing.T) {
	with := encodeSparseRecord("rate 30.0", "employees")
	without := encodeSparseRecord("rate 30.0", "")
	if len(with.Indices) <= len(without.Indices) {
		t.Fatalf("expected source table terms in record encoding")
	}

	query := encodeSparseQuery("employees")
	if sparseDot(query, with) <= 0 {
		t.Fatalf("expected query on table name to overlap with record encoding")
	}
	if sparseDot(query, without) != 0 {
		t.Fatalf("expected no overlap without table terms")
	}
}
