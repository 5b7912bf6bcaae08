package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ops-online-support/chattia-gateway/internal/session"
)

const geminiTarget = "gemini"

// GeminiClient answers escalations with Google's Gemini API. Responses are
// generated in one shot and delivered as a single cumulative chunk.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("escalation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("escalation: failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelID: modelID}, nil
}

func (c *GeminiClient) Target() string { return geminiTarget }

func (c *GeminiClient) Stream(ctx context.Context, history []session.Interaction, message string, onChunk func(string)) error {
	model := c.client.GenerativeModel(c.modelID)
	model.SystemInstruction = genai.NewUserContent(genai.Text(openAISystemPrompt))

	cs := model.StartChat()
	for _, interaction := range history {
		content := strings.TrimSpace(interaction.Text)
		if content == "" || interaction.Role == session.RoleSystem {
			continue
		}
		role := "user"
		if interaction.Role == session.RoleBot {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return fmt.Errorf("escalation: gemini request failed: %w", err)
	}

	var answer strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				answer.WriteString(string(text))
			}
		}
		break
	}
	if answer.Len() == 0 {
		return errors.New("escalation: gemini returned an empty response")
	}
	onChunk(answer.String())
	return nil
}

// Close releases the underlying API connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}
