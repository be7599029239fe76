package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/tools"
)

// ReadHandler adapts tools.ReadFileTool (named "read_file" in the teacher's
// own tool set) to the fixed VALID_TOOLS name "Read".
type ReadHandler struct{ inner *tools.ReadFileTool }

func NewReadHandler(inner *tools.ReadFileTool) *ReadHandler { return &ReadHandler{inner: inner} }
func (h *ReadHandler) Name() string                         { return "Read" }
func (h *ReadHandler) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	return h.inner.Execute(ctx, args)
}

// WriteFileTool writes a file under a workspace root, restricted the same
// way tools.ReadFileTool restricts reads: resolved-path containment check
// against workspace unless restrict is false. The teacher's filesystem.go
// never grew a write counterpart (read-only agent by default); this is
// grounded on its resolvePathWithAllowed/checkDeniedPath discipline,
// extended to the write path spec.md's Write tool requires.
type WriteFileTool struct {
	workspace string
	restrict  bool
}

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{workspace: workspace, restrict: restrict}
}

func (t *WriteFileTool) Name() string { return "Write" }

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return tools.ErrorResult("path is required")
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(t.workspace, resolved)
	}
	resolved = filepath.Clean(resolved)

	if t.restrict {
		rel, err := filepath.Rel(t.workspace, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return tools.ErrorResult(fmt.Sprintf("path escapes workspace: %s", path))
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return tools.ErrorResult(fmt.Sprintf("failed to create directory: %v", err))
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return tools.ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}
	return tools.SilentResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// BashHandler adapts tools.ExecTool (named "exec" in the teacher's tool set)
// to the fixed VALID_TOOLS name "Bash".
type BashHandler struct{ inner *tools.ExecTool }

func NewBashHandler(inner *tools.ExecTool) *BashHandler { return &BashHandler{inner: inner} }
func (h *BashHandler) Name() string                     { return "Bash" }
func (h *BashHandler) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	return h.inner.Execute(ctx, args)
}
