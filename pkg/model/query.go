package model

import (
	"encoding/json"
	"fmt"
)

// Query represents a database query
type Query struct {
	Collection  string  `json:"collection"`
	Filters     Filters `json:"filters"`
	OrderBy     []Order `json:"orderBy"`
	Limit       int     `json:"limit"`
	ShowDeleted bool    `json:"showDeleted"`
}

// Key returns a canonical identity for the query, used to share one watch
// target between listeners of equivalent queries.
func (q Query) Key() string {
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Sprintf("%s|%v|%v|%d", q.Collection, q.Filters, q.OrderBy, q.Limit)
	}
	return string(b)
}

// Validate checks the query shape before it is handed to a watch target.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual, OpIn, OpArrayContains:
		default:
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}
	for _, o := range q.OrderBy {
		if o.Direction != "asc" && o.Direction != "desc" && o.Direction != "" {
			return fmt.Errorf("%w: unsupported direction %q", ErrInvalidQuery, o.Direction)
		}
	}
	return nil
}
