package specialists

import "github.com/ntars/tars/internal/tools"

// NewResearchSpec builds the Research specialist: web search over
// DuckDuckGo, for information-gathering tasks that don't need a live
// browser session.
func NewResearchSpec() *Spec {
	reg := tools.NewRegistry()
	reg.Register(tools.NewDoneTool())
	reg.Register(tools.NewStuckTool())
	reg.Register(tools.NewWebSearchTool())

	return &Spec{
		Name:  "research",
		Emoji: "🔎",
		SystemPrompt: "You are the Research specialist. You search the web to answer questions, " +
			"gather facts, and summarize findings with sources. Call done with a concise, well-cited " +
			"summary, or stuck if the question cannot be answered from search results.",
		Tools:    reg,
		MaxSteps: 12,
	}
}
