package query

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

type columnKind int

const (
	textColumn columnKind = iota
	nullTextColumn
	jsonColumn
	realColumn
	intColumn
)

type column struct {
	name string
	kind columnKind
}

type collection struct {
	table       string
	alias       string
	columns     []column
	filters     map[string]string
	orderColumn string
}

func builtinCollections() map[string]collection {
	return map[string]collection{
		"memories": {
			table: "memories",
			alias: "m",
			columns: []column{
				{"id", textColumn},
				{"context", textColumn},
				{"data", jsonColumn},
				{"tags", jsonColumn},
				{"created_at", textColumn},
			},
			filters: map[string]string{
				"id":      "m.id = ?",
				"context": "m.context = ?",
				"tag":     "EXISTS (SELECT 1 FROM memory_tags t WHERE t.memory_id = m.id AND t.tag = ?)",
			},
			orderColumn: "created_at",
		},
		// password_hash is deliberately absent from the column list.
		"users": {
			table: "users",
			alias: "u",
			columns: []column{
				{"username", textColumn},
				{"roles", jsonColumn},
				{"created_at", textColumn},
				{"last_login_at", nullTextColumn},
			},
			filters: map[string]string{
				"username": "u.username = ?",
				"role":     "EXISTS (SELECT 1 FROM json_each(u.roles) r WHERE r.value = ?)",
			},
			orderColumn: "created_at",
		},
		"allocations": {
			table: "resource_allocations",
			alias: "a",
			columns: []column{
				{"id", textColumn},
				{"owner", textColumn},
				{"cpu_cores", realColumn},
				{"memory_mb", intColumn},
				{"disk_mb", intColumn},
				{"status", textColumn},
				{"reason", nullTextColumn},
				{"created_at", textColumn},
				{"expires_at", textColumn},
			},
			filters: map[string]string{
				"id":     "a.id = ?",
				"owner":  "a.owner = ?",
				"status": "a.status = ?",
			},
			orderColumn: "created_at",
		},
	}
}

func (c collection) selectList() string {
	cols := make([]string, len(c.columns))
	for i, col := range c.columns {
		cols[i] = c.alias + "." + col.name
	}
	return strings.Join(cols, ", ")
}

func (c collection) scan(rows *sql.Rows) (map[string]any, error) {
	dest := make([]any, len(c.columns))
	for i, col := range c.columns {
		switch col.kind {
		case textColumn, jsonColumn:
			dest[i] = new(string)
		case nullTextColumn:
			dest[i] = new(sql.NullString)
		case realColumn:
			dest[i] = new(float64)
		case intColumn:
			dest[i] = new(int64)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	row := make(map[string]any, len(c.columns))
	for i, col := range c.columns {
		switch col.kind {
		case textColumn:
			row[col.name] = *dest[i].(*string)
		case nullTextColumn:
			ns := *dest[i].(*sql.NullString)
			if ns.Valid {
				row[col.name] = ns.String
			} else {
				row[col.name] = nil
			}
		case jsonColumn:
			raw := *dest[i].(*string)
			if !json.Valid([]byte(raw)) {
				return nil, fmt.Errorf("column %s holds invalid JSON", col.name)
			}
			row[col.name] = json.RawMessage(raw)
		case realColumn:
			row[col.name] = *dest[i].(*float64)
		case intColumn:
			row[col.name] = *dest[i].(*int64)
		}
	}
	return row, nil
}
