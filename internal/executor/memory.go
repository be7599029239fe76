package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/tools"
	_ "modernc.org/sqlite"
)

// MemoryStore backs mem_search/mem_save/mem_update/mem_load_checkpoint on a
// sqlite table, mirroring the teacher's store/file persistence discipline
// (durable, single-writer-friendly) but exercising modernc.org/sqlite
// instead of the teacher's flat JSON files, per the DOMAIN STACK wiring.
type MemoryStore struct {
	db *sql.DB
}

func NewMemoryStore(db *sql.DB) *MemoryStore { return &MemoryStore{db: db} }

// EnsureSchema creates the memory table if absent. It is the only schema
// setup the module has; there is no separate migration step.
func (m *MemoryStore) EnsureSchema(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS memory_entries (
	id TEXT PRIMARY KEY,
	channel_key TEXT NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`)
	return err
}

// MemSearchTool implements mem_search: keyword LIKE search scoped to the
// calling channel, capped at 10 results unless the call passes a positive
// "limit".
type MemSearchTool struct{ store *MemoryStore }

func NewMemSearchTool(store *MemoryStore) *MemSearchTool { return &MemSearchTool{store: store} }
func (t *MemSearchTool) Name() string                    { return "mem_search" }

func (t *MemSearchTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	query, _ := args["query"].(string)
	channelKey, _ := args["channel_key"].(string)
	limit := 10
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	if query == "" {
		return tools.ErrorResult("mem_search requires a query")
	}

	rows, err := t.store.db.QueryContext(ctx,
		`SELECT content FROM memory_entries WHERE channel_key = ? AND content LIKE ? ORDER BY created_at DESC LIMIT ?`,
		channelKey, "%"+query+"%", limit)
	if err != nil {
		return tools.ErrorResult("mem_search failed").WithError(err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			continue
		}
		results = append(results, content)
	}
	if len(results) == 0 {
		return tools.NewResult("no matching memories found")
	}
	return tools.NewResult(strings.Join(results, "\n---\n"))
}

// MemSaveTool implements mem_save: append a new memory entry.
type MemSaveTool struct{ store *MemoryStore }

func NewMemSaveTool(store *MemoryStore) *MemSaveTool { return &MemSaveTool{store: store} }
func (t *MemSaveTool) Name() string                  { return "mem_save" }

func (t *MemSaveTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	channelKey, _ := args["channel_key"].(string)
	content, _ := args["content"].(string)
	kind, _ := args["kind"].(string)
	if kind == "" {
		kind = "note"
	}
	if content == "" {
		return tools.ErrorResult("mem_save requires content")
	}

	id := uuid.NewString()
	_, err := t.store.db.ExecContext(ctx,
		`INSERT INTO memory_entries (id, channel_key, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, channelKey, kind, content, nowFunc())
	if err != nil {
		return tools.ErrorResult("mem_save failed").WithError(err)
	}
	return tools.SilentResult(fmt.Sprintf("saved memory %s", id))
}

// MemUpdateTool implements mem_update: overwrite an existing entry by id.
type MemUpdateTool struct{ store *MemoryStore }

func NewMemUpdateTool(store *MemoryStore) *MemUpdateTool { return &MemUpdateTool{store: store} }
func (t *MemUpdateTool) Name() string                    { return "mem_update" }

func (t *MemUpdateTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	id, _ := args["id"].(string)
	content, _ := args["content"].(string)
	if id == "" || content == "" {
		return tools.ErrorResult("mem_update requires id and content")
	}

	res, err := t.store.db.ExecContext(ctx,
		`UPDATE memory_entries SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return tools.ErrorResult("mem_update failed").WithError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return tools.ErrorResult(fmt.Sprintf("no memory entry with id %s", id))
	}
	return tools.SilentResult(fmt.Sprintf("updated memory %s", id))
}

// MemLoadCheckpointTool implements mem_load_checkpoint: the most recent
// "checkpoint"-kind entry for a channel, used to resume a prior session's
// context after a fresh session is minted.
type MemLoadCheckpointTool struct{ store *MemoryStore }

func NewMemLoadCheckpointTool(store *MemoryStore) *MemLoadCheckpointTool {
	return &MemLoadCheckpointTool{store: store}
}
func (t *MemLoadCheckpointTool) Name() string { return "mem_load_checkpoint" }

func (t *MemLoadCheckpointTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	channelKey, _ := args["channel_key"].(string)

	row := t.store.db.QueryRowContext(ctx,
		`SELECT content FROM memory_entries WHERE channel_key = ? AND kind = 'checkpoint' ORDER BY created_at DESC LIMIT 1`,
		channelKey)
	var content string
	if err := row.Scan(&content); err != nil {
		if err == sql.ErrNoRows {
			return tools.NewResult("no checkpoint found")
		}
		return tools.ErrorResult("mem_load_checkpoint failed").WithError(err)
	}
	return tools.NewResult(content)
}

var nowFunc = time.Now
