package protocol

// ChatMessage is one turn sent to a model. Role is "system", "user" or "assistant".
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest holds parameters for a single completion.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"` // provider default when empty
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	// JSON asks the model to answer with a single JSON object.
	JSON bool `json:"json,omitempty"`
}

// ChatResponse is the model's answer.
type ChatResponse struct {
	Content    string `json:"content"`
	Model      string `json:"model,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// Usage counts tokens for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (u Usage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}
