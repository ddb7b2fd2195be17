package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ntars/tars/internal/safety"
)

const maxFileReadBytes = 200_000

// ReadFileTool reads a text file, refusing any path outside allowedPaths.
type ReadFileTool struct{ allowedPaths []string }

func NewReadFileTool(allowedPaths []string) *ReadFileTool { return &ReadFileTool{allowedPaths} }

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a text file" }
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []string{"path"},
	}
}
func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("ERROR: path is required")
	}
	if !safety.IsPathAllowed(path, t.allowedPaths) {
		return ErrorResult(fmt.Sprintf("ERROR: path %q is outside the allowed paths", path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult("ERROR: " + err.Error())
	}
	if len(data) > maxFileReadBytes {
		data = data[:maxFileReadBytes]
	}
	return NewResult(string(data))
}

// WriteFileTool writes (overwriting) a text file, refusing any path outside
// allowedPaths (checked by the Safety Gate's IsPathAllowed).
type WriteFileTool struct{ allowedPaths []string }

func NewWriteFileTool(allowedPaths []string) *WriteFileTool { return &WriteFileTool{allowedPaths} }

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write text content to a file, creating or overwriting it" }
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}
func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult("ERROR: path is required")
	}
	if !safety.IsPathAllowed(path, t.allowedPaths) {
		return ErrorResult(fmt.Sprintf("ERROR: path %q is outside the allowed paths", path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult("ERROR: " + err.Error())
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ErrorResult("ERROR: " + err.Error())
	}
	return SilentResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// ListDirTool lists the immediate children of a directory.
type ListDirTool struct{ allowedPaths []string }

func NewListDirTool(allowedPaths []string) *ListDirTool { return &ListDirTool{allowedPaths} }

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List the files and directories inside a directory" }
func (t *ListDirTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []string{"path"},
	}
}
func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	if !safety.IsPathAllowed(path, t.allowedPaths) {
		return ErrorResult(fmt.Sprintf("ERROR: path %q is outside the allowed paths", path))
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return ErrorResult("ERROR: " + err.Error())
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		} else {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := ""
	for _, n := range names {
		out += n + "\n"
	}
	if out == "" {
		out = "(empty directory)"
	}
	return NewResult(out)
}
