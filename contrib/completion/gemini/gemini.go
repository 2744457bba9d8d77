// Package gemini adapts the Google generative AI SDK to the llm.Client
// interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/deliberate/llm"
	"github.com/sweetpotato0/deliberate/message"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// Provider implements llm.Client for Google Gemini
type Provider struct {
	config *Config
	client *genai.Client
}

var _ llm.Client = (*Provider)(nil)

// New creates a new Gemini provider using the official SDK
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the underlying connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Generate implements llm.Client
func (p *Provider) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	model := p.client.GenerativeModel(p.config.Model)
	model.SetTemperature(p.config.Temperature)
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.config.MaxTokens)
	}

	// Gemini takes the system prompt as a model-level instruction.
	var userParts []genai.Part
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(msg.Content)},
			}
		case message.RoleUser, message.RoleAssistant:
			userParts = append(userParts, genai.Text(msg.Content))
		}
	}
	if len(userParts) == 0 {
		return nil, llm.Permanent("gemini.generate", fmt.Errorf("no user content to send"))
	}

	resp, err := model.GenerateContent(ctx, userParts...)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, llm.Permanent("gemini.generate", fmt.Errorf("response contained no candidates"))
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return message.NewMessage(message.RoleAssistant, text.String()), nil
}

func classify(err error) error {
	var apierr *googleapi.Error
	if errors.As(err, &apierr) {
		return llm.FromStatus("gemini.generate", apierr.Code, err)
	}
	return llm.Transient("gemini.generate", err)
}
