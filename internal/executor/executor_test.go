package executor

import (
	"context"
	"testing"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/apierr"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/tools"
)

type fakeHandler struct {
	name  string
	calls int
	out   *tools.Result
}

func (h *fakeHandler) Name() string { return h.name }
func (h *fakeHandler) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	h.calls++
	return h.out
}

func TestDispatchRejectsNamesOutsideValidTools(t *testing.T) {
	e := New()
	res := e.Dispatch(context.Background(), "rm_rf_slash", nil, PolicyContext{})
	if !res.IsError {
		t.Fatalf("expected error result for invalid tool name")
	}
	if apierr.CodeOf(res.Err) != apierr.CodeUnknownTool {
		t.Fatalf("expected CodeUnknownTool, got %v", apierr.CodeOf(res.Err))
	}
}

func TestDispatchRejectsValidNameWithNoHandlerRegistered(t *testing.T) {
	e := New()
	res := e.Dispatch(context.Background(), "Bash", nil, PolicyContext{})
	if !res.IsError {
		t.Fatalf("expected error for unconfigured handler")
	}
	if apierr.CodeOf(res.Err) != apierr.CodeUnknownTool {
		t.Fatalf("expected CodeUnknownTool for missing handler, got %v", apierr.CodeOf(res.Err))
	}
}

func TestDispatchDeniesToolNotInAllowedSet(t *testing.T) {
	h := &fakeHandler{name: "Bash", out: tools.NewResult("ran")}
	e := New(h)

	res := e.Dispatch(context.Background(), "Bash", nil, PolicyContext{Allowed: map[string]bool{"Read": true}})
	if !res.IsError {
		t.Fatalf("expected denial when tool is not in Allowed set")
	}
	if h.calls != 0 {
		t.Fatalf("expected handler not invoked when denied")
	}
}

func TestDispatchRunsHandlerWhenAllowedNilMeansUnrestricted(t *testing.T) {
	h := &fakeHandler{name: "Bash", out: tools.NewResult("ran")}
	e := New(h)

	res := e.Dispatch(context.Background(), "Bash", nil, PolicyContext{})
	if res.IsError {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if h.calls != 1 {
		t.Fatalf("expected handler invoked once")
	}
}

func TestDispatchRunsHandlerWhenExplicitlyAllowed(t *testing.T) {
	h := &fakeHandler{name: "Read", out: tools.NewResult("contents")}
	e := New(h)

	res := e.Dispatch(context.Background(), "Read", nil, PolicyContext{Allowed: map[string]bool{"Read": true}})
	if res.IsError {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.ForLLM != "contents" {
		t.Fatalf("expected handler result passed through, got %q", res.ForLLM)
	}
}

func TestDispatchHandlesNilResultFromHandler(t *testing.T) {
	h := &fakeHandler{name: "Read", out: nil}
	e := New(h)

	res := e.Dispatch(context.Background(), "Read", nil, PolicyContext{})
	if !res.IsError {
		t.Fatalf("expected a synthesized error result when handler returns nil")
	}
}
