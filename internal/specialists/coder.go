package specialists

import "github.com/ntars/tars/internal/tools"

// NewCoderSpec builds the Coder specialist: shell + file read/write/list,
// scoped to allowedPaths, for small code-change tasks (including the
// dev-agent dispatched by Self-Heal on an approved healing proposal).
func NewCoderSpec(workingDir string, allowedPaths []string) *Spec {
	reg := tools.NewRegistry()
	reg.Register(tools.NewDoneTool())
	reg.Register(tools.NewStuckTool())
	reg.Register(tools.NewExecTool(workingDir))
	reg.Register(tools.NewReadFileTool(allowedPaths))
	reg.Register(tools.NewWriteFileTool(allowedPaths))
	reg.Register(tools.NewListDirTool(allowedPaths))

	return &Spec{
		Name:  "coder",
		Emoji: "🧑‍💻",
		SystemPrompt: "You are the Coder specialist. You read, write, and list files and run shell " +
			"commands to make small, focused code changes. Destructive commands are blocked by a " +
			"safety gate; if one is blocked, explain that to the user instead of retrying it. Call " +
			"done with a summary once the change is made, or stuck if you need clarification.",
		Tools:    reg,
		MaxSteps: 30,
	}
}
