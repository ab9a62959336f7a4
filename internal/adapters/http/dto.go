package httpadapter

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

type searchRequestDTO struct {
	Query             string          `json:"query"`
	Strategy          string          `json:"retrieval_strategy,omitempty"`
	Filter            json.RawMessage `json:"filter,omitempty"`
	GenerateAnswer    *bool           `json:"generate_answer,omitempty"`
	Rerank            bool            `json:"rerank,omitempty"`
	TemporalRelevance float64         `json:"temporal_relevance,omitempty"`
	TopK              int             `json:"top_k,omitempty"`
	ExpandQuery       bool            `json:"expand_query,omitempty"`
	InterpretFilters  bool            `json:"interpret_filters,omitempty"`
}

func (dto searchRequestDTO) toDomain() (domain.SearchRequest, error) {
	filter, err := decodeFilter(dto.Filter)
	if err != nil {
		return domain.SearchRequest{}, err
	}

	generate := true
	if dto.GenerateAnswer != nil {
		generate = *dto.GenerateAnswer
	}

	return domain.SearchRequest{
		Query:             dto.Query,
		Strategy:          domain.RetrievalStrategy(dto.Strategy),
		Filter:            filter,
		GenerateAnswer:    generate,
		Rerank:            dto.Rerank,
		TemporalRelevance: dto.TemporalRelevance,
		TopK:              dto.TopK,
		ExpandQuery:       dto.ExpandQuery,
		InterpretFilters:  dto.InterpretFilters,
	}, nil
}

type filterNodeDTO struct {
	Op      string            `json:"op"`
	Key     string            `json:"key,omitempty"`
	Value   any               `json:"value,omitempty"`
	Clauses []json.RawMessage `json:"clauses,omitempty"`
}

// decodeFilter accepts three encodings: the grouped condition form
// ({"must":[{"key":...,"match":{"value":...}}]}), an explicit clause tree
// ({"op":"and","clauses":[...]}), or the flat shorthand
// ({"status":"active"}) which reads as an AND of equality clauses.
func decodeFilter(raw json.RawMessage) (domain.FilterClause, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidRequest, "decode filter", fmt.Errorf("filter must be a JSON object"))
	}
	if _, hasOp := probe["op"]; hasOp {
		return decodeFilterNode(raw)
	}
	_, hasMust := probe["must"]
	_, hasShould := probe["should"]
	if hasMust || hasShould {
		return decodeGroupedFilter(raw)
	}

	keys := make([]string, 0, len(probe))
	for k := range probe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	and := domain.And{}
	for _, k := range keys {
		var value any
		if err := json.Unmarshal(probe[k], &value); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidRequest, "decode filter", fmt.Errorf("filter value for %q: %v", k, err))
		}
		and.Clauses = append(and.Clauses, domain.Equals{Key: k, Value: value})
	}
	return and, nil
}

type groupedFilterDTO struct {
	Key    string            `json:"key,omitempty"`
	Match  *filterMatchDTO   `json:"match,omitempty"`
	Must   []json.RawMessage `json:"must,omitempty"`
	Should []json.RawMessage `json:"should,omitempty"`
}

type filterMatchDTO struct {
	Value any `json:"value"`
}

// decodeGroupedFilter reads the qdrant-style condition form: groups carry
// "must" (AND) and/or "should" (OR) lists, leaves carry "key" plus
// "match.value". Groups nest.
func decodeGroupedFilter(raw json.RawMessage) (domain.FilterClause, error) {
	var node groupedFilterDTO
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidRequest, "decode filter", fmt.Errorf("malformed filter condition: %v", err))
	}

	if node.Key != "" || node.Match != nil {
		if node.Key == "" || node.Match == nil {
			return nil, domain.WrapError(domain.ErrInvalidRequest, "decode filter", fmt.Errorf("filter condition needs both key and match.value"))
		}
		return domain.Equals{Key: node.Key, Value: node.Match.Value}, nil
	}
	if len(node.Must) == 0 && len(node.Should) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidRequest, "decode filter", fmt.Errorf("filter condition needs key/match or must/should"))
	}

	and := domain.And{}
	for _, rawClause := range node.Must {
		clause, err := decodeGroupedFilter(rawClause)
		if err != nil {
			return nil, err
		}
		and.Clauses = append(and.Clauses, clause)
	}
	if len(node.Should) > 0 {
		or := domain.Or{}
		for _, rawClause := range node.Should {
			clause, err := decodeGroupedFilter(rawClause)
			if err != nil {
				return nil, err
			}
			or.Clauses = append(or.Clauses, clause)
		}
		if len(and.Clauses) == 0 {
			return or, nil
		}
		and.Clauses = append(and.Clauses, or)
	}
	return and, nil
}

func decodeFilterNode(raw json.RawMessage) (domain.FilterClause, error) {
	var node filterNodeDTO
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidRequest, "decode filter", fmt.Errorf("malformed filter clause: %v", err))
	}

	switch node.Op {
	case "eq":
		return domain.Equals{Key: node.Key, Value: node.Value}, nil
	case "and", "or":
		clauses := make([]domain.FilterClause, 0, len(node.Clauses))
		for _, rawClause := range node.Clauses {
			clause, err := decodeFilterNode(rawClause)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
		}
		if node.Op == "and" {
			return domain.And{Clauses: clauses}, nil
		}
		return domain.Or{Clauses: clauses}, nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidRequest, "decode filter", fmt.Errorf("unknown filter op %q", node.Op))
	}
}
