package builtin

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO users (name) VALUES ('ada'), ('grace')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func TestDatabaseQuery_Select(t *testing.T) {
	tool := NewDatabaseQuery(openTestDB(t))

	out, err := tool.Execute(context.Background(), map[string]any{"query": "SELECT id, name FROM users ORDER BY id"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := out.(map[string]any)
	if result["count"].(int) != 2 {
		t.Fatalf("count = %v, want 2", result["count"])
	}
	rows := result["rows"].([]map[string]any)
	if rows[0]["name"] != "ada" || rows[1]["name"] != "grace" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestDatabaseQuery_RejectsNonSelect(t *testing.T) {
	tool := NewDatabaseQuery(openTestDB(t))

	for _, query := range []string{
		"DELETE FROM users",
		"UPDATE users SET name = 'x'",
		"DROP TABLE users",
		"INSERT INTO users (name) VALUES ('eve')",
	} {
		if _, err := tool.Execute(context.Background(), map[string]any{"query": query}); err == nil {
			t.Errorf("non-SELECT accepted: %q", query)
		}
	}
}

func TestDatabaseQuery_ValidateParams(t *testing.T) {
	tool := NewDatabaseQuery(openTestDB(t))
	if tool.ValidateParams(map[string]any{"query": "DELETE FROM users"}) {
		t.Error("non-SELECT passed validation")
	}
	if !tool.ValidateParams(map[string]any{"query": "select * from users"}) {
		t.Error("lowercase select rejected")
	}
}

func TestDatabaseQuery_RowLimit(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 150; i++ {
		if _, err := db.Exec(`INSERT INTO users (name) VALUES ('bulk')`); err != nil {
			t.Fatalf("seed bulk: %v", err)
		}
	}
	tool := NewDatabaseQuery(db)

	out, err := tool.Execute(context.Background(), map[string]any{"query": "SELECT id FROM users"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.(map[string]any)["count"].(int) != 100 {
		t.Errorf("row cap not applied: %v", out.(map[string]any)["count"])
	}
}
