package specialists

import "github.com/ntars/tars/internal/tools"

// NewSystemSpec builds the System specialist: shell access plus open_url,
// for host-level checks and actions (disk space, processes, launching a
// URL/app) that don't need the full Browser driver.
func NewSystemSpec(workingDir string) *Spec {
	reg := tools.NewRegistry()
	reg.Register(tools.NewDoneTool())
	reg.Register(tools.NewStuckTool())
	reg.Register(tools.NewExecTool(workingDir))
	reg.Register(tools.NewOpenURLTool())

	return &Spec{
		Name:  "system",
		Emoji: "🖥️",
		SystemPrompt: "You are the System specialist. You run shell commands to inspect or control the " +
			"host machine (processes, disk, network, installed apps) and can open URLs. Destructive " +
			"commands are blocked by a safety gate. Call done with a summary, or stuck if blocked.",
		Tools:    reg,
		MaxSteps: 15,
	}
}
