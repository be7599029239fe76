// Package cliproc adapts the stream-json subprocess (C8) to the
// agentloop.Subprocess interface, so the loop never has to know about
// ResultEvent/ToolUseBlock wire types directly.
package cliproc

import (
	"context"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/apierr"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/content"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/subprocess/streamjson"
)

// StreamJSON wraps a streamjson.Process so it satisfies agentloop.Subprocess.
type StreamJSON struct {
	Proc *streamjson.Process
}

func NewStreamJSON(proc *streamjson.Process) *StreamJSON {
	return &StreamJSON{Proc: proc}
}

func (s *StreamJSON) SendMessage(ctx context.Context, text string) (content.Message, []content.Block, error) {
	ev, err := s.Proc.SendMessage(ctx, text)
	if err != nil {
		return content.Message{}, nil, classifyErr(err)
	}
	return toMessage(ev), toToolUses(ev), nil
}

func (s *StreamJSON) SendToolResults(ctx context.Context, results []content.Block) (content.Message, []content.Block, error) {
	batch := make([]streamjson.ToolResultContent, len(results))
	for i, r := range results {
		batch[i] = streamjson.ToolResultContent{
			ToolUseID: r.ToolResultForID,
			Content:   r.ToolResultText,
			IsError:   r.IsError,
		}
	}
	ev, err := s.Proc.SendToolResults(ctx, batch)
	if err != nil {
		return content.Message{}, nil, classifyErr(err)
	}
	return toMessage(ev), toToolUses(ev), nil
}

func toMessage(ev streamjson.ResultEvent) content.Message {
	return content.Message{Role: content.RoleAssistant, Text: ev.Response}
}

func toToolUses(ev streamjson.ResultEvent) []content.Block {
	if !ev.HasToolUse {
		return nil
	}
	blocks := make([]content.Block, len(ev.ToolUseBlocks))
	for i, b := range ev.ToolUseBlocks {
		blocks[i] = content.ToolUse(b.ID, b.Name, b.Input)
	}
	return blocks
}

func classifyErr(err error) *apierr.Error {
	if e, ok := err.(*apierr.Error); ok {
		return e
	}
	return apierr.Wrap(apierr.CodeCLIError, "stream-json subprocess failed", err)
}
