// Package prompt implements the prompt composer and keyword
// detector (C12): seven ordered, priority-tagged layers assembled into a
// single prompt, empty layers dropped, C3 enforcement applied before
// send, and a multilingual keyword scan with a OnceGate for
// once-per-thread behaviors.
//
// Grounded on the teacher's bootstrap/seed.go template-loading discipline
// (named, ordered content sources assembled before the first turn). The
// keyword scan strips code fences first so a keyword mentioned inside a
// code block never triggers a false positive.
package prompt

import (
	"regexp"
	"strings"
	"sync"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/content"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/promptsize"
)

// Layer names in fixed priority order, matching spec.md §4.12. Priority 1
// is never touched by C3 enforcement; the rest are eligible for
// truncation or dropping, highest priority protected longest.
const (
	LayerSystemIdentity = "system_identity"
	LayerToolContracts   = "tool_contracts"
	LayerActiveRules     = "active_rules"
	LayerSessionSummary  = "session_summary"
	LayerRecentHistory   = "recent_history"
	LayerPendingContext  = "pending_context"
	LayerUserMessage     = "user_message"
)

var layerPriority = map[string]int{
	LayerSystemIdentity: 1,
	LayerToolContracts:  2,
	LayerActiveRules:    2,
	LayerSessionSummary: 3,
	LayerRecentHistory:  4,
	LayerPendingContext: 5,
	LayerUserMessage:    6,
}

var layerOrder = []string{
	LayerSystemIdentity,
	LayerToolContracts,
	LayerActiveRules,
	LayerSessionSummary,
	LayerRecentHistory,
	LayerPendingContext,
	LayerUserMessage,
}

// Input supplies the raw text for each named layer. A missing or
// empty-string entry drops that layer from the composed prompt entirely.
type Input map[string]string

// Compose builds the ordered, priority-tagged layer list from Input,
// dropping empty layers, then runs C3's Enforce against limit so the
// final result always respects the prompt size budget.
func Compose(in Input, limit int) promptsize.EnforceResult {
	layers := make([]content.PromptLayer, 0, len(layerOrder))
	for _, name := range layerOrder {
		text := in[name]
		if strings.TrimSpace(text) == "" {
			continue
		}
		layers = append(layers, content.PromptLayer{
			Name:     name,
			Content:  text,
			Priority: layerPriority[name],
		})
	}
	return promptsize.Enforce(layers, limit)
}

// Render concatenates enforced layers back into a single prompt string,
// in priority order as laid out by Compose (system identity first,
// user message last).
func Render(result promptsize.EnforceResult) string {
	var b strings.Builder
	for i, l := range result.Layers {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(l.Content)
	}
	return b.String()
}

// codeFence matches a fenced code block so keyword detection can strip it
// before scanning — a keyword mentioned only inside sample code should
// not count as the user invoking it.
var codeFence = regexp.MustCompile("(?s)```.*?```")

func stripCodeFences(text string) string {
	return codeFence.ReplaceAllString(text, "")
}

// KeywordSet maps a canonical keyword to every language variant that
// should trigger it. Matching is case-insensitive and word-bounded where
// the script supports word boundaries (Latin scripts); CJK variants are
// matched as plain substrings since \b does not delimit them usefully.
type KeywordSet map[string][]string

// DefaultKeywords are the multilingual triggers spec.md §4.12 names:
// a request to save/remember something, and an explicit compaction ask.
var DefaultKeywords = KeywordSet{
	"remember": {"remember", "記住", "记住", "기억해", "覚えて"},
	"summarize": {"summarize", "summary", "요약", "总结", "摘要", "まとめ"},
}

// Detector scans text for configured keywords, stripping code fences
// first.
type Detector struct {
	mu       sync.RWMutex
	patterns map[string][]*regexp.Regexp
}

func NewDetector(set KeywordSet) *Detector {
	d := &Detector{patterns: make(map[string][]*regexp.Regexp, len(set))}
	for canonical, variants := range set {
		for _, v := range variants {
			d.patterns[canonical] = append(d.patterns[canonical], compileVariant(v))
		}
	}
	return d
}

func compileVariant(variant string) *regexp.Regexp {
	if isASCIIWord(variant) {
		return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(variant) + `\b`)
	}
	return regexp.MustCompile(regexp.QuoteMeta(variant))
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

// Detect returns the set of canonical keywords found in text, scanning
// outside of code fences only.
func (d *Detector) Detect(text string) []string {
	scan := stripCodeFences(text)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var found []string
	for canonical, patterns := range d.patterns {
		for _, re := range patterns {
			if re.MatchString(scan) {
				found = append(found, canonical)
				break
			}
		}
	}
	return found
}

// OnceGate tracks which (channelKey, event) pairs have already fired, so
// a behavior like a once-per-thread keyword response never repeats for
// the life of a session.
type OnceGate struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewOnceGate() *OnceGate { return &OnceGate{seen: make(map[string]bool)} }

// Fire returns true the first time it is called for a given key, and
// false every time after, until Reset is called for that key.
func (g *OnceGate) Fire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[key] {
		return false
	}
	g.seen[key] = true
	return true
}

// Reset clears a key so it can fire again, called when a fresh session
// begins for that channel.
func (g *OnceGate) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
}
