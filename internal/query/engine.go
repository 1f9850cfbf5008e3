// Package query runs structured, read-only queries over the state database.
//
// A query is a JSON object:
//
//	{"collection": "memories", "where": {"tag": "design"}, "limit": 20, "order": "desc"}
//
// An empty query returns row counts per collection. Only whitelisted
// collections and filters are accepted; values are always bound as
// parameters.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Result is the answer to a collection query.
type Result struct {
	Collection string           `json:"collection"`
	Rows       []map[string]any `json:"rows"`
	Count      int              `json:"count"`
}

// Summary is the answer to an empty query.
type Summary struct {
	Collections map[string]int `json:"collections"`
}

// Engine executes queries against the state database.
type Engine struct {
	db          *sql.DB
	collections map[string]collection
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db, collections: builtinCollections()}
}

// Request is a parsed query object.
type Request struct {
	Collection string
	Where      map[string]string
	Limit      int
	Descending bool
}

// Execute parses query and runs it.
func (e *Engine) Execute(ctx context.Context, query map[string]any) (any, error) {
	req, err := ParseRequest(query)
	if err != nil {
		return nil, err
	}
	if req.Collection == "" {
		return e.summary(ctx)
	}
	return e.run(ctx, req)
}

// ParseRequest validates the shape of a query object.
func ParseRequest(query map[string]any) (Request, error) {
	req := Request{Limit: DefaultLimit, Descending: true, Where: map[string]string{}}

	for key, v := range query {
		switch key {
		case "collection":
			s, ok := v.(string)
			if !ok {
				return Request{}, fmt.Errorf("query.collection must be a string")
			}
			req.Collection = strings.TrimSpace(s)

		case "where":
			if v == nil {
				continue
			}
			obj, ok := v.(map[string]any)
			if !ok {
				return Request{}, fmt.Errorf("query.where must be an object")
			}
			for field, fv := range obj {
				s, err := scalarString(fv)
				if err != nil {
					return Request{}, fmt.Errorf("query.where.%s: %w", field, err)
				}
				req.Where[field] = s
			}

		case "limit":
			n, ok := v.(float64)
			if !ok {
				if i, isInt := v.(int); isInt {
					n, ok = float64(i), true
				}
			}
			if !ok || n != float64(int(n)) || n < 1 {
				return Request{}, fmt.Errorf("query.limit must be a positive integer")
			}
			req.Limit = min(int(n), MaxLimit)

		case "order":
			s, _ := v.(string)
			switch strings.ToLower(s) {
			case "asc":
				req.Descending = false
			case "desc":
				req.Descending = true
			default:
				return Request{}, fmt.Errorf("query.order must be \"asc\" or \"desc\"")
			}

		default:
			return Request{}, fmt.Errorf("unknown query field %q", key)
		}
	}

	if req.Collection == "" && len(req.Where) > 0 {
		return Request{}, fmt.Errorf("query.where requires query.collection")
	}
	return req, nil
}

func (e *Engine) summary(ctx context.Context) (*Summary, error) {
	out := &Summary{Collections: make(map[string]int, len(e.collections))}
	for _, name := range e.collectionNames() {
		var n int
		if err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+e.collections[name].table+";").Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		out.Collections[name] = n
	}
	return out, nil
}

func (e *Engine) run(ctx context.Context, req Request) (*Result, error) {
	coll, ok := e.collections[req.Collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q (known: %s)", req.Collection, strings.Join(e.collectionNames(), ", "))
	}

	fields := make([]string, 0, len(req.Where))
	for field := range req.Where {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var (
		clauses []string
		args    []any
	)
	for _, field := range fields {
		clause, ok := coll.filters[field]
		if !ok {
			return nil, fmt.Errorf("collection %q cannot be filtered by %q", req.Collection, field)
		}
		clauses = append(clauses, clause)
		args = append(args, req.Where[field])
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(coll.selectList())
	b.WriteString(" FROM ")
	b.WriteString(coll.table)
	b.WriteString(" AS ")
	b.WriteString(coll.alias)
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(coll.alias + "." + coll.orderColumn)
	if req.Descending {
		b.WriteString(" DESC")
	} else {
		b.WriteString(" ASC")
	}
	b.WriteString(" LIMIT ?;")
	args = append(args, req.Limit)

	rows, err := e.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", req.Collection, err)
	}
	defer rows.Close()

	result := &Result{Collection: req.Collection, Rows: []map[string]any{}}
	for rows.Next() {
		row, err := coll.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", req.Collection, err)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", req.Collection, err)
	}
	result.Count = len(result.Rows)
	return result, nil
}

func (e *Engine) collectionNames() []string {
	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return fmt.Sprintf("%g", t), nil
	case bool:
		return fmt.Sprintf("%t", t), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("filter values must be scalars")
	}
}
