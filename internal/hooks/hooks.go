// Package hooks implements the cross-cutting handlers (C5): small pieces
// of behavior that wrap tool calls and loop transitions without being
// tools or loop steps themselves — contract lookup before a Write,
// contract extraction after any tool, a pre-compaction summary nudge, and
// a stop-continuation heuristic that catches a model stopping mid-answer.
//
// Grounded on the teacher's internal/agent/loop.go hook points (tool
// pre/post dispatch inside runLoop, the compaction-threshold check driven
// by CompactionCfg) and internal/tools/context_file_interceptor.go's
// pattern of a side-channel interceptor that inspects tool calls without
// becoming a tool itself.
package hooks

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/content"
)

// MemorySearcher is the subset of the C4 memory tool the pre-tool hook
// needs to look up a contract by filename.
type MemorySearcher interface {
	SearchContract(ctx context.Context, channelKey, filename string) ([]string, error)
}

// MemorySaver is the subset of the C4 memory tool the post-tool hook needs
// to persist an extracted contract.
type MemorySaver interface {
	SaveContract(ctx context.Context, channelKey, contract string) error
	HasSimilarContract(ctx context.Context, channelKey, contract string) (bool, error)
}

const contractSearchLimit = 3

// PreToolContractLookup runs before a Write tool call: it searches memory
// for "contract <filename>" and, if any hits are found, prepends a
// structured block to the tool's input content so the model sees prior
// agreed-upon shapes before it writes new code. Only Write triggers a
// lookup; every other tool is a no-op pass-through.
func PreToolContractLookup(ctx context.Context, mem MemorySearcher, channelKey, toolName string, args map[string]interface{}) map[string]interface{} {
	if toolName != "Write" || mem == nil {
		return args
	}
	path, _ := args["path"].(string)
	if path == "" {
		return args
	}
	filename := baseName(path)

	hits, err := mem.SearchContract(ctx, channelKey, "contract "+filename)
	if err != nil || len(hits) == 0 {
		return args
	}
	if len(hits) > contractSearchLimit {
		hits = hits[:contractSearchLimit]
	}

	block := "[known contracts for " + filename + "]\n" + strings.Join(hits, "\n---\n") + "\n[/known contracts]\n\n"
	content, _ := args["content"].(string)
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	out["content"] = block + content
	return out
}

func baseName(path string) string {
	idx := strings.LastIndexAny(path, "/\\")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// Contract detector patterns. Each captures one plausible "contract" a
// later Write might need to respect: a function signature, a type
// definition, a REST route, a SQL DDL statement, or a GraphQL schema
// fragment.
var contractDetectors = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^func\s+\w+(\([^)]*\)\s*)?\([^)]*\)\s*[\w\[\]\*\.]*\s*\{?`),
	regexp.MustCompile(`(?m)^type\s+\w+\s+(struct|interface)\s*\{`),
	regexp.MustCompile(`(?m)(GET|POST|PUT|PATCH|DELETE)\s+/[\w\-/{}:]+`),
	regexp.MustCompile(`(?mi)^CREATE\s+TABLE\s+[\w."]+\s*\(`),
	regexp.MustCompile(`(?m)^(type|input|schema)\s+\w+\s*\{`), // GraphQL schema fragments
}

// lowPriorityPathPatterns are paths whose writes are never worth mining
// for contracts: scratch output, vendored/generated code, build caches.
var lowPriorityPathPatterns = []string{
	"/tmp/", "/node_modules/", "/vendor/", "/.git/", "/dist/", "/build/",
}

func isLowPriorityPath(path string) bool {
	for _, p := range lowPriorityPathPatterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// PostToolExtractor runs contract extraction after every tool call,
// fire-and-forget: callers should invoke Extract in its own goroutine and
// never let its errors surface to the turn.
type PostToolExtractor struct {
	mem       MemorySaver
	saveLimit int

	mu    sync.Mutex
	saved map[string]int // channelKey -> contracts saved this loop
}

func NewPostToolExtractor(mem MemorySaver, saveLimit int) *PostToolExtractor {
	if saveLimit <= 0 {
		saveLimit = 5
	}
	return &PostToolExtractor{mem: mem, saveLimit: saveLimit, saved: make(map[string]int)}
}

// Extract scans a tool's output text for contract-shaped fragments and
// saves any new ones to memory, deduping against what is already stored
// and capping at contract_save_limit per channel per loop. Errors are
// swallowed: a failed save must never fail the turn that triggered it.
func (e *PostToolExtractor) Extract(ctx context.Context, channelKey, toolName, path, outputText string) {
	if e.mem == nil || outputText == "" {
		return
	}
	if path != "" && isLowPriorityPath(path) {
		return
	}

	e.mu.Lock()
	remaining := e.saveLimit - e.saved[channelKey]
	e.mu.Unlock()
	if remaining <= 0 {
		return
	}

	for _, re := range contractDetectors {
		matches := re.FindAllString(outputText, -1)
		for _, m := range matches {
			if remaining <= 0 {
				return
			}
			dup, err := e.mem.HasSimilarContract(ctx, channelKey, m)
			if err != nil || dup {
				continue
			}
			if err := e.mem.SaveContract(ctx, channelKey, m); err != nil {
				continue
			}
			e.mu.Lock()
			e.saved[channelKey]++
			e.mu.Unlock()
			remaining--
		}
	}
}

// ResetLoop clears the per-loop save counter for a channel, called at the
// start of a new agent loop iteration over that channel.
func (e *PostToolExtractor) ResetLoop(channelKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.saved, channelKey)
}

const (
	// CompactionTokenThreshold mirrors the agent loop's context window
	// budget before a summary is forced.
	CompactionTokenThreshold = 160000
	compactionWarnFraction   = 0.9
)

// summaryPrompt is injected once per loop when the running token count
// crosses 90% of CompactionTokenThreshold, asking the model to produce a
// structured handoff before history is truncated.
const summaryPrompt = `Context is approaching its limit. Before continuing, write a concise summary covering:
1. Goal — what the user asked for.
2. Progress — what has been done so far.
3. Decisions — choices made and why, especially ones not yet persisted anywhere else.
4. Open items — what remains.
5. Blockers — anything preventing progress.
6. Files touched — paths created or modified.
7. Next step — the single next action to take.`

// unsavedDecisionMarkers are phrases that, if present in recent assistant
// text without a corresponding mem_save call, suggest a decision was made
// but never persisted — worth calling out explicitly in the summary nudge.
var unsavedDecisionMarkers = []string{
	"we decided", "i'll go with", "let's use", "the plan is to", "agreed to",
}

// PreCompactionHook tracks whether the one-time summary nudge has fired
// for a given loop and detects likely-unsaved decisions in recent text.
type PreCompactionHook struct {
	mu      sync.Mutex
	injected map[string]bool
}

func NewPreCompactionHook() *PreCompactionHook {
	return &PreCompactionHook{injected: make(map[string]bool)}
}

// ShouldInject reports whether the summary prompt should be added this
// turn: token usage has crossed the warn fraction, and it hasn't already
// fired once for this channel's current loop.
func (h *PreCompactionHook) ShouldInject(channelKey string, totalTokens int) (string, bool) {
	if float64(totalTokens) < compactionWarnFraction*CompactionTokenThreshold {
		return "", false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.injected[channelKey] {
		return "", false
	}
	h.injected[channelKey] = true
	return summaryPrompt, true
}

// ResetLoop clears the injection flag, called at the start of each loop run.
func (h *PreCompactionHook) ResetLoop(channelKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.injected, channelKey)
}

// HasUnsavedDecisions scans recent assistant text for decision language
// unaccompanied by any mem_save call in the same turn.
func HasUnsavedDecisions(recentText string, toolsCalledThisTurn []string) bool {
	lower := strings.ToLower(recentText)
	found := false
	for _, marker := range unsavedDecisionMarkers {
		if strings.Contains(lower, marker) {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	for _, t := range toolsCalledThisTurn {
		if t == "mem_save" {
			return false
		}
	}
	return true
}

const (
	DefaultMaxRetries          = 3
	incompleteLengthThreshold  = 1800
)

var completionMarkers = []string{"DONE", "TASK_COMPLETE", "완료"}

// incompletePatterns catch an assistant response that trails off mid
// thought: a dangling conjunction, an unterminated list item, a colon
// promising content that never arrived.
var incompletePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(and|but|so|because|however)\s*$`),
	regexp.MustCompile(`:\s*$`),
	regexp.MustCompile(`(?m)^[\d\-\*]+\.?\s*$`),
}

// terminalPunctuation matches a response that ends with sentence-final
// punctuation, closing code fence, or closing structural character.
var terminalPunctuation = regexp.MustCompile(`[.!?"')\]\x60}]\s*$`)

// StopDecision is the outcome of evaluating whether to force a
// continuation turn after the model appears to stop mid-task.
type StopDecision struct {
	ShouldContinue bool
	Reason         string
}

// StopContinuationHook decides whether the loop should force one more
// turn because the model's last response looks cut off rather than
// genuinely finished, bounded by max_retries and a manual-stop veto.
type StopContinuationHook struct {
	maxRetries int

	mu      sync.Mutex
	retries map[string]int
}

func NewStopContinuationHook(maxRetries int) *StopContinuationHook {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &StopContinuationHook{maxRetries: maxRetries, retries: make(map[string]int)}
}

// Evaluate inspects the assistant's last turn and decides whether to
// force another turn. manualStop, when true, always wins: the user (or
// an operator) asked for the loop to end and that is never overridden.
func (h *StopContinuationHook) Evaluate(channelKey string, lastTurn content.Turn, manualStop bool) StopDecision {
	if manualStop {
		h.mu.Lock()
		delete(h.retries, channelKey)
		h.mu.Unlock()
		return StopDecision{ShouldContinue: false, Reason: "manual stop"}
	}

	text := strings.TrimSpace(lastTurn.Content)
	upper := strings.ToUpper(text)
	for _, marker := range completionMarkers {
		if strings.Contains(upper, marker) {
			h.mu.Lock()
			delete(h.retries, channelKey)
			h.mu.Unlock()
			return StopDecision{ShouldContinue: false, Reason: "completion marker"}
		}
	}

	looksIncomplete := false
	for _, re := range incompletePatterns {
		if re.MatchString(text) {
			looksIncomplete = true
			break
		}
	}
	if !looksIncomplete && len(text) >= incompleteLengthThreshold && !terminalPunctuation.MatchString(text) {
		looksIncomplete = true
	}
	if !looksIncomplete {
		h.mu.Lock()
		delete(h.retries, channelKey)
		h.mu.Unlock()
		return StopDecision{ShouldContinue: false, Reason: "looks complete"}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.retries[channelKey] >= h.maxRetries {
		delete(h.retries, channelKey)
		return StopDecision{ShouldContinue: false, Reason: fmt.Sprintf("max_retries (%d) exhausted", h.maxRetries)}
	}
	h.retries[channelKey]++
	return StopDecision{ShouldContinue: true, Reason: "response appears cut off"}
}

// ResetLoop clears retry state for a channel, called when a new loop run
// begins independently of the previous one's outcome.
func (h *StopContinuationHook) ResetLoop(channelKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.retries, channelKey)
}
