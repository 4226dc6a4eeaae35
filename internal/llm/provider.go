package llm

import (
	"context"
	"strings"
	"time"
)

// Provider defines the interface for oracle backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs a single chat completion. One call is one attempt;
	// retries belong to the Gateway.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part types for multi-part user messages
const (
	PartText  = "text"
	PartVideo = "video_url"
)

// Part is one piece of a multi-part message. Video parts carry a data URL.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// TextPart builds a text part
func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

// VideoPart builds a video part from a URL or data URL
func VideoPart(url string) Part { return Part{Type: PartVideo, URL: url} }

// Message is a chat message. When Parts is set it replaces Content.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// UserMessage builds a plain-text user message
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// SystemMessage builds a system message
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// HasVideo reports whether any part of the message is a video
func (m Message) HasVideo() bool {
	for _, p := range m.Parts {
		if p.Type == PartVideo {
			return true
		}
	}
	return false
}

// Text flattens the message into plain text, dropping non-text parts
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type != PartText {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// CompletionRequest is the provider-neutral request
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int

	// JSONMode asks the backend to constrain output to a JSON object, where supported
	JSONMode bool
}

// CompletionResponse contains the oracle's raw text output
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "openai-compatible"
	Provider string

	// APIKey for hosted backends
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for the underlying HTTP client; the Gateway applies its own per-call deadline
	Timeout time.Duration

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// splitSystem separates system messages from the conversation for backends
// that take the system prompt out of band.
func splitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Text())
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
