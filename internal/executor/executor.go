// Package executor implements the tool executor (C4): dispatch of the
// fixed VALID_TOOLS set to concrete handlers, producing a tools.Result
// for every call and an UnknownTool apierr.Error for anything else.
//
// Grounded on the teacher's internal/tools dispatch shape (one handler
// type per tool implementing Name()/Execute(ctx, args) *tools.Result) and
// the allow-list gate the teacher's deleted internal/tools/policy.go
// computed once per turn; PolicyContext.Allowed here is populated
// directly by the caller rather than through that package.
package executor

import (
	"context"
	"fmt"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/apierr"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/tools"
)

// Handler is one dispatchable tool.
type Handler interface {
	Name() string
	Execute(ctx context.Context, args map[string]interface{}) *tools.Result
}

// ValidTools is the fixed set of tool names the executor will dispatch.
// Anything outside this set is rejected with apierr.CodeUnknownTool before a
// handler is even looked up.
var ValidTools = map[string]bool{
	"mem_search":             true,
	"mem_save":                true,
	"mem_update":              true,
	"mem_load_checkpoint":     true,
	"Read":                    true,
	"Write":                   true,
	"Bash":                    true,
	"discord_send":            true,
	"browser_navigate":        true,
	"browser_screenshot":      true,
	"browser_click":           true,
	"browser_type":            true,
	"browser_get_text":        true,
	"browser_scroll":          true,
	"browser_wait_for":        true,
	"browser_evaluate":        true,
	"browser_pdf":             true,
	"browser_close":           true,
}

// Executor dispatches validated tool calls to registered handlers.
type Executor struct {
	handlers map[string]Handler
}

// New constructs an Executor. handlers must cover exactly the tools this
// deployment supports.
func New(handlers ...Handler) *Executor {
	e := &Executor{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		e.handlers[h.Name()] = h
	}
	return e
}

// PolicyContext carries the set of tools already allowed for this call
// (computed once per turn, upstream of Dispatch) plus the agent identity
// for logging.
type PolicyContext struct {
	AgentID string
	Allowed map[string]bool // nil = no restriction beyond ValidTools
}

// Dispatch runs the fixed-set, policy, and handler-lookup gates in order,
// then executes the tool. Any outcome funnels through tools.Result so a
// single code path formats what goes back to the model and to the user.
func (e *Executor) Dispatch(ctx context.Context, toolName string, args map[string]interface{}, pc PolicyContext) (res *tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = tools.ErrorResult(fmt.Sprintf("tool %s failed: %v", toolName, r)).
				WithError(apierr.New(apierr.CodeToolError, fmt.Sprintf("panic in %s: %v", toolName, r)))
		}
	}()

	if !ValidTools[toolName] {
		return tools.ErrorResult(fmt.Sprintf("unknown tool: %s", toolName)).
			WithError(apierr.New(apierr.CodeUnknownTool, "tool not in VALID_TOOLS: "+toolName))
	}

	if pc.Allowed != nil && !pc.Allowed[toolName] {
		return tools.ErrorResult(fmt.Sprintf("tool not permitted for this agent: %s", toolName)).
			WithError(apierr.New(apierr.CodeToolError, "denied by policy: "+toolName))
	}

	h, ok := e.handlers[toolName]
	if !ok {
		return tools.ErrorResult(fmt.Sprintf("tool not configured: %s", toolName)).
			WithError(apierr.New(apierr.CodeUnknownTool, "no handler registered: "+toolName))
	}

	res = h.Execute(ctx, args)
	if res == nil {
		res = tools.ErrorResult("tool returned no result")
	}
	return res
}
