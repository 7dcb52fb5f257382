package builtin

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

const maxQueryRows = 100

// databaseQueryTool runs read-only SELECT statements against the process
// database. Anything that could mutate state is rejected before execution.
type databaseQueryTool struct {
	db *sql.DB
}

// NewDatabaseQuery constructs the database_query tool over db.
func NewDatabaseQuery(db *sql.DB) ports.Tool {
	return &databaseQueryTool{db: db}
}

func (t *databaseQueryTool) Type() ports.ToolType {
	return ports.ToolTypeDatabaseQuery
}

func (t *databaseQueryTool) Name() string {
	return "database_query"
}

func (t *databaseQueryTool) Description() string {
	return "Run a read-only SQL SELECT against the task database. Parameters: query (SELECT statement)."
}

func (t *databaseQueryTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "SELECT statement to execute",
			},
		},
		"required": []string{"query"},
	}
}

func (t *databaseQueryTool) ValidateParams(params map[string]any) bool {
	query, ok := stringParam(params, "query")
	if !ok {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(query)), "select")
}

func (t *databaseQueryTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	query, err := requireString(params, "query")
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(query)), "select") {
		return nil, fmt.Errorf("only SELECT statements are allowed")
	}

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		if len(results) >= maxQueryRows {
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[col] = string(raw)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return map[string]any{
		"columns": columns,
		"rows":    results,
		"count":   len(results),
	}, nil
}
