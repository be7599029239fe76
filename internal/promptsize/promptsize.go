// Package promptsize implements the prompt size monitor: measuring and
// truncating a layered prompt by priority and size budget.
package promptsize

import (
	"fmt"
	"sort"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/content"
)

const (
	WarnChars     = 15000
	TruncateChars = 25000
	HardChars     = 40000
)

// EstimateTokens approximates token count from character count.
func EstimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

// CheckResult reports totals and a warning level for a layer set.
type CheckResult struct {
	TotalChars  int
	TotalTokens int
	Warn        bool
	Truncate    bool
	Hard        bool
}

// Check reports totals and warning levels for the given layers. Boundaries
// are strict: exactly at a threshold does not yet trip it.
func Check(layers []content.PromptLayer) CheckResult {
	total := totalChars(layers)
	return CheckResult{
		TotalChars:  total,
		TotalTokens: EstimateTokens(total),
		Warn:        total > WarnChars,
		Truncate:    total > TruncateChars,
		Hard:        total > HardChars,
	}
}

func totalChars(layers []content.PromptLayer) int {
	n := 0
	for _, l := range layers {
		n += len(l.Content)
	}
	return n
}

// EnforceResult is the outcome of Enforce.
type EnforceResult struct {
	Layers      []content.PromptLayer
	TotalChars  int
	TotalTokens int
	Touched     []string
}

// Enforce shrinks layers deterministically to fit within limit (default
// TruncateChars when limit<=0). Priority-1 layers are never touched.
func Enforce(layers []content.PromptLayer, limit int) EnforceResult {
	if limit <= 0 {
		limit = TruncateChars
	}

	out := make([]content.PromptLayer, len(layers))
	copy(out, layers)

	total := totalChars(out)
	if total <= limit {
		return EnforceResult{Layers: out, TotalChars: total, TotalTokens: EstimateTokens(total)}
	}

	excess := total - limit

	type candidate struct {
		idx      int
		priority int
		length   int
	}
	var candidates []candidate
	for i, l := range out {
		if l.Priority > 1 {
			candidates = append(candidates, candidate{idx: i, priority: l.Priority, length: len(l.Content)})
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].priority != candidates[b].priority {
			return candidates[a].priority > candidates[b].priority
		}
		return candidates[a].length > candidates[b].length
	})

	var touched []string
	for _, c := range candidates {
		if excess <= 0 {
			break
		}
		layer := out[c.idx]
		if len(layer.Content) <= excess {
			excess -= len(layer.Content)
			out[c.idx].Content = ""
			touched = append(touched, layer.Name)
			continue
		}

		// The marker counts against the limit too, so remove enough extra
		// characters to make room for it.
		removed := excess
		var marker string
		for {
			marker = fmt.Sprintf("[... %s truncated: %d chars removed ...]", layer.Name, removed)
			if excess+len(marker) == removed {
				break
			}
			removed = excess + len(marker)
		}
		keep := len(layer.Content) - removed
		if keep <= 0 {
			excess -= len(layer.Content)
			out[c.idx].Content = ""
			touched = append(touched, layer.Name)
			continue
		}
		out[c.idx].Content = layer.Content[:keep] + marker
		touched = append(touched, layer.Name)
		excess = 0
		break
	}

	var filtered []content.PromptLayer
	for _, l := range out {
		if l.Content == "" {
			continue
		}
		filtered = append(filtered, l)
	}

	finalTotal := totalChars(filtered)
	return EnforceResult{
		Layers:      filtered,
		TotalChars:  finalTotal,
		TotalTokens: EstimateTokens(finalTotal),
		Touched:     touched,
	}
}
