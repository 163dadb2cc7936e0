package ai

import (
	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/gpt-vpn-tgbot-go/internal/models"
)

// Payload is the JSON body of a streaming chat completion request
type Payload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// Message is one chat message. Content is either a string or []ContentPart.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ContentPart is an element of structured text+image content
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// PayloadOptions holds the sampling settings copied into each payload
type PayloadOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// OptionsFromConfig extracts payload options from provider settings
func OptionsFromConfig(cfg *config.ProviderConfig) PayloadOptions {
	return PayloadOptions{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

// BuildPayload maps the conversation to provider messages. When turns is
// empty the request carries only current.
func BuildPayload(opts PayloadOptions, turns []models.Turn, current models.Turn) Payload {
	if len(turns) == 0 {
		turns = []models.Turn{current}
	}

	messages := make([]Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, toMessage(t))
	}

	return Payload{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	}
}

func toMessage(t models.Turn) Message {
	if !t.HasImage() {
		return Message{Role: string(t.Role), Content: t.Text}
	}
	return Message{
		Role: string(t.Role),
		Content: []ContentPart{
			{Type: "text", Text: t.Text},
			{Type: "image_url", ImageURL: &ImageURL{URL: t.ImageURL}},
		},
	}
}
