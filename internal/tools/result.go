package tools

import "github.com/ntars/tars/internal/providers"

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM   string `json:"for_llm"`            // content sent to the LLM
	ForUser  string `json:"for_user,omitempty"`  // content shown to the user
	Silent   bool   `json:"silent"`              // suppress user message
	IsError  bool   `json:"is_error"`            // marks error
	Async    bool   `json:"async"`               // running asynchronously
	Panicked bool   `json:"-"`                   // tool execution recovered from a panic
	Err      error  `json:"-"`                   // internal error (not serialized)

	// Usage holds token usage from tools that make internal LLM calls (e.g. read_image).
	// When set, the agent loop records these on the tool span for tracing.
	Usage    *providers.Usage `json:"-"`
	Provider string           `json:"-"` // provider name (for tool span metadata)
	Model    string           `json:"-"` // model used (for tool span metadata)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func AsyncResult(message string) *Result {
	return &Result{ForLLM: message, Async: true}
}

// PanicResult wraps a recovered tool panic. It marks IsError so any caller
// that only checks IsError still behaves correctly, and Panicked so the
// agent loop can distinguish it from an ordinary tool error and terminate
// the run as stuck instead of feeding the failure back to the LLM.
func PanicResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true, Panicked: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
