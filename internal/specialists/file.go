package specialists

import "github.com/ntars/tars/internal/tools"

// NewFileSpec builds the File specialist: read/write/list only, no shell —
// for tasks that should never be able to run arbitrary commands (e.g.
// organizing documents, searching file contents by reading candidates).
func NewFileSpec(allowedPaths []string) *Spec {
	reg := tools.NewRegistry()
	reg.Register(tools.NewDoneTool())
	reg.Register(tools.NewStuckTool())
	reg.Register(tools.NewReadFileTool(allowedPaths))
	reg.Register(tools.NewWriteFileTool(allowedPaths))
	reg.Register(tools.NewListDirTool(allowedPaths))

	return &Spec{
		Name:  "file",
		Emoji: "🗂️",
		SystemPrompt: "You are the File specialist. You read, write, and list files within the " +
			"allowed paths only — you have no shell access. Call done with a summary, or stuck if " +
			"the task needs a path outside what's allowed.",
		Tools:    reg,
		MaxSteps: 15,
	}
}
