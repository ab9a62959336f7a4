package domain

import "time"

// Record is one indexed unit: a row-level snapshot materialized from a source
// view. ID is stable and globally unique within an index generation; it is the
// dedupe and citation key.
type Record struct {
	ID             string         `json:"id"`
	SourceTable    string         `json:"source_table"`
	EmbeddableText string         `json:"embeddable_text"`
	DisplayText    string         `json:"display_text,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// FilterableMetadata returns the flat key set the record can be filtered on.
// source_table is always addressable even though it is a top-level column.
func (r Record) FilterableMetadata() map[string]any {
	out := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		out[k] = v
	}
	out["source_table"] = r.SourceTable
	return out
}
