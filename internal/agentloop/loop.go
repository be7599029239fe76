// Package agentloop implements the agent loop (C11): the turn-by-turn
// think/act/observe driver that turns one inbound message into zero or
// more subprocess turns, executing any requested tools in parallel and
// feeding their results back until the model produces a final answer or
// a termination condition fires.
//
// Grounded directly and extensively on the teacher's internal/agent/
// loop.go: Loop.Run/runLoop's overall shape, the parallel tool execution
// block (one goroutine per tool call into an indexed result channel,
// collected then sorted back into call order for deterministic message
// ordering), and the emergency-ceiling/max-iterations guard. Adapted:
// sends turns through a Subprocess (C8/C9) instead of an HTTP
// providers.Provider, runs each request through lanes.Scheduler (C7) for
// per-channel ordering when one is configured, and folds in C5's hooks
// and C12's keyword detector rather than the teacher's bootstrap/skills
// system.
package agentloop

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/apierr"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/content"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/executor"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/hooks"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/lanes"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/prompt"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/tools"
)

const (
	DefaultMaxTurns          = 20
	DefaultMaxConsecutiveTool = 15
)

// EmergencyCeiling returns the hard upper bound on turns regardless of
// configuration: max(maxTurns+10, 50).
func EmergencyCeiling(maxTurns int) int {
	ceiling := maxTurns + 10
	if ceiling < 50 {
		ceiling = 50
	}
	return ceiling
}

// Mode selects how tool calls are recognized in the model's response.
type Mode string

const (
	// ModeProtocol expects native tool_use content blocks, as emitted by
	// the stream-json subprocess variant (C8).
	ModeProtocol Mode = "protocol"
	// ModeGatewayTools names tool calls written as fenced blocks inside
	// plain text. The loop does not parse such blocks: in either mode it
	// acts only on the tool_use blocks the Subprocess returns.
	ModeGatewayTools Mode = "gateway_tools"
)

// Subprocess is the narrow interface the loop needs from either
// persistent-subprocess variant: send a message/tool-results batch and
// get back accumulated text plus any tool_use requests.
type Subprocess interface {
	SendMessage(ctx context.Context, text string) (content.Message, []content.Block, error)
	SendToolResults(ctx context.Context, results []content.Block) (content.Message, []content.Block, error)
}

// Config configures a Loop instance. New fills in defaults for MaxTurns,
// MaxConsecutiveSameTool and Mode; the other fields are used as given.
type Config struct {
	MaxTurns               int
	MaxConsecutiveSameTool int
	Mode                   Mode

	Scheduler      *lanes.Scheduler
	Executor       *executor.Executor
	ContractLookup hooks.MemorySearcher
	Extractor      *hooks.PostToolExtractor
	Compact        *hooks.PreCompactionHook
	Stop           *hooks.StopContinuationHook
	Keywords       *prompt.Detector

	OnEvent func(Event)
}

// Event is emitted for observability at key loop transitions, mirroring
// the teacher's AgentEvent but over the fixed spec.md vocabulary.
type Event struct {
	Type       string
	ChannelKey string
	TurnNumber int
	ToolName   string
	IsError    bool
}

// Request is one inbound message to drive through the loop.
type Request struct {
	ChannelKey string
	Message    string
	SystemPrompt string
	Proc       Subprocess
	PolicyCtx  executor.PolicyContext
	ManualStop bool
}

// Result is the outcome of a full loop run.
type Result struct {
	FinalText  string
	Turns      []content.Turn
	StopReason content.StopReason
	Err        *apierr.Error
}

// Loop drives one agent conversation loop.
type Loop struct {
	cfg Config
}

func New(cfg Config) *Loop {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxConsecutiveSameTool <= 0 {
		cfg.MaxConsecutiveSameTool = DefaultMaxConsecutiveTool
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeProtocol
	}
	return &Loop{cfg: cfg}
}

func (l *Loop) emit(ev Event) {
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(ev)
	}
}

// Run drives the full pre-loop/per-turn/post-loop state machine for one
// request. If a Scheduler is configured, the entire run executes as one
// scheduled unit on the request's channel lane so two concurrent messages
// to the same channel never interleave turns.
func (l *Loop) Run(ctx context.Context, req Request) Result {
	if l.cfg.Scheduler == nil {
		return l.runLocked(ctx, req)
	}

	class := lanes.ClassFor(req.ChannelKey)
	out, err := l.cfg.Scheduler.EnqueueWithSession(ctx, req.ChannelKey, class, func() (any, error) {
		res := l.runLocked(ctx, req)
		return res, nil
	})
	if err != nil {
		return Result{Err: apierr.Wrap(apierr.CodeAPIError, "loop scheduling failed", err)}
	}
	return out.(Result)
}

type sameToolTracker struct {
	lastHash string
	streak   int
}

func hashCall(name string, input map[string]interface{}) string {
	data, _ := json.Marshal(map[string]interface{}{"name": name, "input": input})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func (t *sameToolTracker) record(name string, input map[string]interface{}) int {
	h := hashCall(name, input)
	if h == t.lastHash {
		t.streak++
	} else {
		t.lastHash = h
		t.streak = 1
	}
	return t.streak
}

func (l *Loop) runLocked(ctx context.Context, req Request) Result {
	emergencyCeiling := EmergencyCeiling(l.cfg.MaxTurns)
	var turns []content.Turn
	var tracker sameToolTracker

	if l.cfg.Stop != nil {
		l.cfg.Stop.ResetLoop(req.ChannelKey)
	}
	if l.cfg.Extractor != nil {
		l.cfg.Extractor.ResetLoop(req.ChannelKey)
	}
	if l.cfg.Compact != nil {
		l.cfg.Compact.ResetLoop(req.ChannelKey)
	}

	if l.cfg.Keywords != nil {
		l.cfg.Keywords.Detect(req.Message) // result is not used by the loop and no event is emitted for it
	}

	msg, toolUses, err := req.Proc.SendMessage(ctx, req.Message)
	if err != nil {
		return Result{Err: classifySubprocessErr(err)}
	}

	turnNumber := 1
	turns = append(turns, content.Turn{TurnNumber: turnNumber, Role: content.RoleAssistant, Content: msg.Text, Blocks: msg.Blocks})
	l.emit(Event{Type: "run.turn", ChannelKey: req.ChannelKey, TurnNumber: turnNumber})

	for len(toolUses) > 0 {
		if turnNumber >= emergencyCeiling {
			return Result{
				Turns: turns, FinalText: msg.Text,
				Err: apierr.New(apierr.CodeEmergencyMaxTurns, fmt.Sprintf("emergency ceiling %d reached", emergencyCeiling)),
			}
		}
		if turnNumber >= l.cfg.MaxTurns {
			return Result{
				Turns: turns, FinalText: msg.Text,
				Err: apierr.New(apierr.CodeMaxTurns, fmt.Sprintf("max_turns %d reached", l.cfg.MaxTurns)),
			}
		}

		results := l.executeToolsInParallel(ctx, req, toolUses)

		for _, r := range results {
			streak := tracker.record(r.block.ToolName, r.block.ToolInput)
			if streak >= l.cfg.MaxConsecutiveSameTool {
				return Result{
					Turns: turns, FinalText: msg.Text,
					Err: apierr.New(apierr.CodeInfiniteLoopDetected,
						fmt.Sprintf("tool %q repeated %d times consecutively", r.block.ToolName, streak)),
				}
			}
			if l.cfg.Extractor != nil && !r.result.Silent {
				go l.cfg.Extractor.Extract(context.Background(), req.ChannelKey, r.block.ToolName, toolPath(r.block), r.result.ForLLM)
			}
			l.emit(Event{Type: "tool.result", ChannelKey: req.ChannelKey, TurnNumber: turnNumber, ToolName: r.block.ToolName, IsError: r.result.IsError})
		}

		toolResultBlocks := make([]content.Block, len(results))
		for i, r := range results {
			toolResultBlocks[i] = content.ToolResult(r.block.ToolUseID, r.result.ForLLM, r.result.IsError)
		}

		msg, toolUses, err = req.Proc.SendToolResults(ctx, toolResultBlocks)
		if err != nil {
			return Result{Turns: turns, Err: classifySubprocessErr(err)}
		}
		turnNumber++
		turns = append(turns, content.Turn{TurnNumber: turnNumber, Role: content.RoleAssistant, Content: msg.Text, Blocks: msg.Blocks})
		l.emit(Event{Type: "run.turn", ChannelKey: req.ChannelKey, TurnNumber: turnNumber})
	}

	if l.cfg.Stop != nil {
		decision := l.cfg.Stop.Evaluate(req.ChannelKey, turns[len(turns)-1], req.ManualStop)
		if decision.ShouldContinue {
			continuation, _, cErr := req.Proc.SendMessage(ctx, "Please continue where you left off.")
			if cErr == nil {
				turnNumber++
				turns = append(turns, content.Turn{TurnNumber: turnNumber, Role: content.RoleAssistant, Content: continuation.Text, Blocks: continuation.Blocks})
				msg = continuation
			}
		}
	}

	return Result{Turns: turns, FinalText: msg.Text, StopReason: content.StopEndTurn}
}

func toolPath(b content.Block) string {
	if v, ok := b.ToolInput["path"].(string); ok {
		return v
	}
	return ""
}

type toolExecResult struct {
	block  content.Block
	result *tools.Result
}

func (l *Loop) executeToolsInParallel(ctx context.Context, req Request, toolUses []content.Block) []toolExecResult {
	type indexed struct {
		idx    int
		block  content.Block
		result *tools.Result
	}

	out := make(chan indexed, len(toolUses))
	var wg sync.WaitGroup
	for i, tu := range toolUses {
		wg.Add(1)
		go func(idx int, b content.Block) {
			defer wg.Done()
			slog.Info("agentloop.tool.call", "channel", req.ChannelKey, "tool", b.ToolName)
			args := b.ToolInput
			if l.cfg.ContractLookup != nil {
				args = hooks.PreToolContractLookup(ctx, l.cfg.ContractLookup, req.ChannelKey, b.ToolName, args)
			}
			res := l.cfg.Executor.Dispatch(ctx, b.ToolName, args, req.PolicyCtx)
			out <- indexed{idx: idx, block: b, result: res}
		}(i, tu)
	}
	go func() { wg.Wait(); close(out) }()

	collected := make([]indexed, 0, len(toolUses))
	for r := range out {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })

	results := make([]toolExecResult, len(collected))
	for i, c := range collected {
		results[i] = toolExecResult{block: c.block, result: c.result}
	}
	return results
}

func classifySubprocessErr(err error) *apierr.Error {
	if e, ok := err.(*apierr.Error); ok {
		return e
	}
	return apierr.Wrap(apierr.CodeCLIError, "subprocess communication failed", err)
}
