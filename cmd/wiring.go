package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/agentloop"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/cliproc"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/dedup"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/executor"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/hooks"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/lanes"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/prompt"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/promptsize"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/rules"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/sessions"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/subprocess/streamjson"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/tools"

	_ "modernc.org/sqlite"
)

// App bundles every component C1-C12 wires into, constructed once per
// process and reused across channel keys.
type App struct {
	Loop      *agentloop.Loop
	Sessions  *sessions.Manager
	Detector  *prompt.Detector
	RulesDir  string
	Workspace string
}

// buildApp constructs the full agent loop stack: C4 tool executor, C5
// hooks, C6 session pool, C7 lane scheduler, C12 prompt composer, wired
// into the C11 loop.
func buildApp() (*App, error) {
	ws, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	readTool := tools.NewReadFileTool(ws, true)
	readTool.DenyPaths(".git", ".env")
	writeTool := executor.NewWriteFileTool(ws, true)
	execTool := tools.NewExecTool(ws, true)

	memDB, err := sql.Open("sqlite", filepath.Join(ws, "memory.db"))
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	memStore := executor.NewMemoryStore(memDB)
	if err := memStore.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate memory store: %w", err)
	}
	contracts := executor.NewContractStore(memStore)

	exec := executor.New(
		executor.NewReadHandler(readTool),
		writeTool,
		executor.NewBashHandler(execTool),
		executor.NewMemSearchTool(memStore),
		executor.NewMemSaveTool(memStore),
		executor.NewMemUpdateTool(memStore),
		executor.NewMemLoadCheckpointTool(memStore),
	)

	sessionStore := filepath.Join(ws, "sessions")
	sessMgr := sessions.NewManager(sessionStore)

	sched := lanes.New(nil)

	loop := agentloop.New(agentloop.Config{
		MaxTurns:       maxTurns,
		Scheduler:      sched,
		Executor:       exec,
		ContractLookup: contracts,
		Extractor:      hooks.NewPostToolExtractor(contracts, 3),
		Compact:        hooks.NewPreCompactionHook(),
		Stop:           hooks.NewStopContinuationHook(3),
		Keywords:       prompt.NewDetector(prompt.DefaultKeywords),
		OnEvent: func(ev agentloop.Event) {
			slog.Debug("agentloop.event", "type", ev.Type, "channel", ev.ChannelKey, "turn", ev.TurnNumber, "tool", ev.ToolName)
		},
	})

	return &App{
		Loop:      loop,
		Sessions:  sessMgr,
		Detector:  prompt.NewDetector(prompt.DefaultKeywords),
		RulesDir:  filepath.Join(ws, "rules"),
		Workspace: ws,
	}, nil
}

// newSubprocess spawns a fresh stream-json CLI subprocess and wraps it as
// an agentloop.Subprocess, per spec.md §6's fixed-argv persistent child
// discipline. systemPrompt is appended as a CLI argument since the
// persistent child is started once per channel, not once per message.
func newSubprocess(ctx context.Context, ws, systemPrompt string) (*cliproc.StreamJSON, error) {
	fields := strings.Fields(streamCmd)
	if len(fields) == 0 {
		return nil, fmt.Errorf("--stream-json-cmd must not be empty")
	}
	if systemPrompt != "" {
		fields = append(fields, "--append-system-prompt", systemPrompt)
	}
	proc := streamjson.New(streamjson.Options{
		Command: fields,
		Dir:     ws,
	})
	if err := proc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start stream-json subprocess: %w", err)
	}
	return cliproc.NewStreamJSON(proc), nil
}

// composeSystemPrompt builds the active_rules layer from every *.md
// fragment under rulesDir (C2's frontmatter filter), deduplicated by
// content/real-path identity (C1), then runs the full seven-layer
// composition through C3's size enforcement (C12's Compose/Render).
func composeSystemPrompt(rulesDir, userMessage string, activeKeywords []string) string {
	dd := dedup.New()
	ctx := rules.Context{Channel: channelKey, ActiveKeywords: activeKeywords}

	var matched []string
	_ = filepath.WalkDir(rulesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		frag := rules.Parse(string(raw))
		if frag.Header != nil && !rules.MatchesContext(frag.Header.AppliesTo, ctx) {
			return nil
		}
		depth := strings.Count(strings.TrimPrefix(path, rulesDir), string(filepath.Separator))
		if dd.Add(path, frag.Body, depth) {
			matched = append(matched, frag.Body)
		}
		return nil
	})

	result := prompt.Compose(prompt.Input{
		prompt.LayerSystemIdentity: "You are mama-sub, an agent-loop orchestrator driving one tool-using conversation per channel.",
		prompt.LayerActiveRules:    strings.Join(matched, "\n\n"),
		prompt.LayerUserMessage:    userMessage,
	}, promptsize.TruncateChars)

	return prompt.Render(result)
}

func newLoopRequest(chKey, message, systemPrompt string, proc agentloop.Subprocess) agentloop.Request {
	return agentloop.Request{
		ChannelKey:   chKey,
		Message:      message,
		SystemPrompt: systemPrompt,
		Proc:         proc,
		PolicyCtx:    executor.PolicyContext{AgentID: chKey},
	}
}
