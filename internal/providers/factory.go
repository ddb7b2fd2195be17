package providers

// baseURLs holds the default API base for well-known provider names;
// anthropic's Claude endpoints expose an OpenAI-compatible /v1 shim, so a
// single OpenAIProvider client covers all three without per-vendor code.
var baseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"anthropic":  "https://api.anthropic.com/v1",
}

// New resolves a Provider by name. baseURL overrides the provider's
// default endpoint when non-empty (e.g. a local vLLM/Ollama server).
func New(name, model, baseURL, apiKey string) Provider {
	if baseURL == "" {
		baseURL = baseURLs[name]
	}
	return NewOpenAIProvider(name, apiKey, baseURL, model)
}
