package executor

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// ContractStore adapts MemoryStore to hooks.MemorySearcher/MemorySaver,
// giving C5's pre-tool contract lookup and post-tool extractor a concrete
// backend without the hooks package depending on executor's sqlite schema.
type ContractStore struct {
	store *MemoryStore
}

func NewContractStore(store *MemoryStore) *ContractStore { return &ContractStore{store: store} }

func (c *ContractStore) SearchContract(ctx context.Context, channelKey, filename string) ([]string, error) {
	rows, err := c.store.db.QueryContext(ctx,
		`SELECT content FROM memory_entries WHERE channel_key = ? AND kind = 'contract' AND content LIKE ? ORDER BY created_at DESC LIMIT ?`,
		channelKey, "%"+filename+"%", contractSearchResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			continue
		}
		out = append(out, content)
	}
	return out, nil
}

func (c *ContractStore) SaveContract(ctx context.Context, channelKey, contract string) error {
	_, err := c.store.db.ExecContext(ctx,
		`INSERT INTO memory_entries (id, channel_key, kind, content, created_at) VALUES (?, ?, 'contract', ?, ?)`,
		uuid.NewString(), channelKey, contract, nowFunc())
	return err
}

func (c *ContractStore) HasSimilarContract(ctx context.Context, channelKey, contract string) (bool, error) {
	needle := strings.TrimSpace(contract)
	if needle == "" {
		return false, nil
	}
	row := c.store.db.QueryRowContext(ctx,
		`SELECT 1 FROM memory_entries WHERE channel_key = ? AND kind = 'contract' AND content = ? LIMIT 1`,
		channelKey, needle)
	var hit int
	if err := row.Scan(&hit); err != nil {
		return false, nil
	}
	return hit == 1, nil
}

const contractSearchResultLimit = 3
