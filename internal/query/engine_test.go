package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/windsurf-mcp/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewEngine(db), db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO memories(id, context, data, tags, created_at) VALUES
		   ('m1', 'alpha', '{"n":1}', '["x"]', '2026-01-01T00:00:01.000000000Z'),
		   ('m2', 'alpha', '"two"', '["x","y"]', '2026-01-01T00:00:02.000000000Z'),
		   ('m3', 'beta', '3', '[]', '2026-01-01T00:00:03.000000000Z');`,
		`INSERT INTO memory_tags(memory_id, tag) VALUES ('m1','x'), ('m2','x'), ('m2','y');`,
		`INSERT INTO users(username, password_hash, roles, created_at) VALUES
		   ('ada', '$2a$04$secret', '["admin","user"]', '2026-01-01T00:00:01.000000000Z'),
		   ('bob', '$2a$04$secret', '["user"]', '2026-01-01T00:00:02.000000000Z');`,
		`INSERT INTO resource_allocations(id, owner, cpu_cores, memory_mb, disk_mb, status, reason, created_at, expires_at) VALUES
		   ('a1', 'indexer', 1.5, 256, 0, 'granted', NULL, '2026-01-01T00:00:01.000000000Z', '2026-01-01T01:00:01.000000000Z'),
		   ('a2', 'indexer', 8, 0, 0, 'denied', 'insufficient cpu_cores', '2026-01-01T00:00:02.000000000Z', '2026-01-01T01:00:02.000000000Z');`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestEmptyQueryReturnsCounts(t *testing.T) {
	e, db := newTestEngine(t)
	seed(t, db)

	got, err := e.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, &Summary{Collections: map[string]int{"memories": 3, "users": 2, "allocations": 2}}, got)
}

func TestMemoriesNewestFirstByDefault(t *testing.T) {
	e, db := newTestEngine(t)
	seed(t, db)

	got, err := e.Execute(context.Background(), map[string]any{"collection": "memories"})
	require.NoError(t, err)
	res := got.(*Result)
	require.Equal(t, 3, res.Count)
	assert.Equal(t, "m3", res.Rows[0]["id"])
	assert.Equal(t, "m1", res.Rows[2]["id"])
	assert.JSONEq(t, `{"n":1}`, string(res.Rows[2]["data"].(json.RawMessage)))
}

func TestMemoriesFilterByTagAscending(t *testing.T) {
	e, db := newTestEngine(t)
	seed(t, db)

	got, err := e.Execute(context.Background(), map[string]any{
		"collection": "memories",
		"where":      map[string]any{"tag": "x", "context": "alpha"},
		"order":      "asc",
	})
	require.NoError(t, err)
	res := got.(*Result)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "m1", res.Rows[0]["id"])
	assert.Equal(t, "m2", res.Rows[1]["id"])
}

func TestLimitIsApplied(t *testing.T) {
	e, db := newTestEngine(t)
	seed(t, db)

	got, err := e.Execute(context.Background(), map[string]any{"collection": "memories", "limit": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, got.(*Result).Count)
}

func TestUsersNeverExposePasswordHash(t *testing.T) {
	e, db := newTestEngine(t)
	seed(t, db)

	got, err := e.Execute(context.Background(), map[string]any{
		"collection": "users",
		"where":      map[string]any{"role": "admin"},
	})
	require.NoError(t, err)
	res := got.(*Result)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "ada", res.Rows[0]["username"])
	assert.Nil(t, res.Rows[0]["last_login_at"])
	assert.NotContains(t, res.Rows[0], "password_hash")

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestAllocationsByStatus(t *testing.T) {
	e, db := newTestEngine(t)
	seed(t, db)

	got, err := e.Execute(context.Background(), map[string]any{
		"collection": "allocations",
		"where":      map[string]any{"status": "denied"},
	})
	require.NoError(t, err)
	res := got.(*Result)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "a2", res.Rows[0]["id"])
	assert.Equal(t, float64(8), res.Rows[0]["cpu_cores"])
	assert.Equal(t, "insufficient cpu_cores", res.Rows[0]["reason"])
}

func TestNoRowsYieldsEmptySlice(t *testing.T) {
	e, _ := newTestEngine(t)

	got, err := e.Execute(context.Background(), map[string]any{"collection": "users"})
	require.NoError(t, err)
	res := got.(*Result)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Rows)
}

func TestRejectsInvalidQueries(t *testing.T) {
	e, _ := newTestEngine(t)

	tests := []struct {
		name  string
		query map[string]any
		want  string
	}{
		{"unknown collection", map[string]any{"collection": "secrets"}, "unknown collection"},
		{"unknown filter", map[string]any{"collection": "users", "where": map[string]any{"password_hash": "x"}}, "cannot be filtered"},
		{"unknown field", map[string]any{"select": "*"}, "unknown query field"},
		{"bad limit", map[string]any{"collection": "users", "limit": float64(0)}, "positive integer"},
		{"fractional limit", map[string]any{"collection": "users", "limit": 1.5}, "positive integer"},
		{"bad order", map[string]any{"collection": "users", "order": "sideways"}, "query.order"},
		{"where without collection", map[string]any{"where": map[string]any{"id": "x"}}, "requires query.collection"},
		{"non-scalar filter", map[string]any{"collection": "users", "where": map[string]any{"username": []any{"a"}}}, "scalars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), tt.query)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRequestClampsLimit(t *testing.T) {
	req, err := ParseRequest(map[string]any{"collection": "memories", "limit": float64(5000)})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, req.Limit)
	assert.True(t, req.Descending)
}
