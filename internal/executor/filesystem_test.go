package executor

import (
	"os"
	"path/filepath"
	"testing"

	"context"
)

func TestWriteFileToolWritesWithinWorkspace(t *testing.T) {
	dir := t.TempDir()
	tool := NewWriteFileTool(dir, true)

	res := tool.Execute(context.Background(), map[string]interface{}{
		"path":    "notes/todo.txt",
		"content": "finish the writeup",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %v", res.Err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "notes/todo.txt"))
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	if string(data) != "finish the writeup" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestWriteFileToolRejectsEscapingWorkspace(t *testing.T) {
	dir := t.TempDir()
	tool := NewWriteFileTool(dir, true)

	res := tool.Execute(context.Background(), map[string]interface{}{
		"path":    "../outside.txt",
		"content": "should not land here",
	})
	if !res.IsError {
		t.Fatalf("expected error for path escaping workspace")
	}
}

func TestWriteFileToolAllowsEscapeWhenUnrestricted(t *testing.T) {
	dir := t.TempDir()
	outer := t.TempDir()
	tool := NewWriteFileTool(dir, false)

	target := filepath.Join(outer, "file.txt")
	res := tool.Execute(context.Background(), map[string]interface{}{
		"path":    target,
		"content": "ok",
	})
	if res.IsError {
		t.Fatalf("unexpected error with restrict=false: %v", res.Err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected file written outside workspace: %v", err)
	}
}

func TestWriteFileToolRequiresPath(t *testing.T) {
	tool := NewWriteFileTool(t.TempDir(), true)
	res := tool.Execute(context.Background(), map[string]interface{}{"content": "x"})
	if !res.IsError {
		t.Fatalf("expected error when path is missing")
	}
}
