// Package rules implements the frontmatter/rules filter: parsing a
// "---"-delimited header from a text fragment and matching it against a
// runtime context (agent id, tier, channel, active keywords).
package rules

import (
	"log/slog"
	"strings"

	"github.com/titanous/json5"
)

// AppliesTo is the optional applicability predicate parsed from a header.
// Each present field is matched with OR-within-field semantics; fields
// present are combined with AND-across-field semantics.
type AppliesTo struct {
	AgentID  []string `json:"agent_id,omitempty"`
	Tier     []string `json:"tier,omitempty"`
	Channel  []string `json:"channel,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Header is the parsed frontmatter metadata.
type Header struct {
	AppliesTo *AppliesTo `json:"applies_to,omitempty"`
}

// Context is the runtime context a fragment is matched against.
type Context struct {
	AgentID      string
	Tier         string
	Channel      string
	ActiveKeywords []string
}

// Fragment is a parsed text fragment: header (possibly nil/universal)
// plus the remaining body text.
type Fragment struct {
	Header *Header
	Body   string
}

const delimiter = "---"

// Parse splits an optional "---"-delimited header block from the start of
// content. A malformed header (present-looking but unparsable) is treated
// as "always matches" and the full original text is returned as the body,
// with a logged warning.
func Parse(raw string) Fragment {
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delimiter {
		return Fragment{Header: nil, Body: raw}
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			end = i
			break
		}
	}
	if end == -1 {
		slog.Warn("rules.frontmatter.malformed", "reason", "no closing delimiter")
		return Fragment{Header: nil, Body: raw}
	}

	metaText := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")
	body = strings.TrimPrefix(body, "\n")

	var header Header
	if err := json5.Unmarshal([]byte(metaText), &header); err != nil {
		slog.Warn("rules.frontmatter.malformed", "error", err)
		return Fragment{Header: nil, Body: raw}
	}

	return Fragment{Header: &header, Body: body}
}

// MatchesContext reports whether appliesTo matches ctx per the OR-within
// field / AND-across-field rule. A nil appliesTo always matches.
func MatchesContext(appliesTo *AppliesTo, ctx Context) bool {
	if appliesTo == nil {
		return true
	}

	if len(appliesTo.AgentID) > 0 && !containsFold(appliesTo.AgentID, ctx.AgentID) {
		return false
	}
	if len(appliesTo.Tier) > 0 && !containsFold(appliesTo.Tier, ctx.Tier) {
		return false
	}
	if len(appliesTo.Channel) > 0 && !containsFold(appliesTo.Channel, ctx.Channel) {
		return false
	}
	if len(appliesTo.Keywords) > 0 && !anyOverlap(appliesTo.Keywords, ctx.ActiveKeywords) {
		return false
	}
	return true
}

func containsFold(set []string, value string) bool {
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

func anyOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}
