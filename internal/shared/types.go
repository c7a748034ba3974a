package shared

// Chat roles accepted by the backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type SynthesisRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

type TextBody struct {
	Text string `json:"text"`
}

type ErrorBody struct {
	Error string `json:"error"`
}
