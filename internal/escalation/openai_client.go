package escalation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ops-online-support/chattia-gateway/internal/session"
)

const openAITarget = "openai"

const openAISystemPrompt = "You are Chattia, the OPS Online Support assistant. Answer only questions about OPS services: Business Operations, Contact Center, IT Support, and Professional Services. Keep responses short and professional. If the question is outside OPS services, say you can only discuss OPS site content."

type openAIStreamer interface {
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// OpenAIClient streams escalated answers from the OpenAI chat API.
type OpenAIClient struct {
	client openAIStreamer
	model  string
}

func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("escalation: openai api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}, nil
}

func (c *OpenAIClient) Target() string { return openAITarget }

func (c *OpenAIClient) Stream(ctx context.Context, history []session.Interaction, message string, onChunk func(string)) error {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: openAISystemPrompt,
	})
	for _, interaction := range history {
		content := strings.TrimSpace(interaction.Text)
		if content == "" || interaction.Role == session.RoleSystem {
			continue
		}
		role := openai.ChatMessageRoleUser
		if interaction.Role == session.RoleBot {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return fmt.Errorf("escalation: failed to open openai stream: %w", err)
	}
	defer stream.Close()

	var accumulated strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("escalation: openai stream failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		accumulated.WriteString(delta)
		onChunk(accumulated.String())
	}
	if accumulated.Len() == 0 {
		return errors.New("escalation: openai returned an empty response")
	}
	return nil
}
