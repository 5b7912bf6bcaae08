package escalation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ops-online-support/chattia-gateway/internal/session"
)

const workerTarget = "cloudflare-worker"

// WorkerClient proxies escalations through a Cloudflare Worker that fronts
// Workers AI. The worker either streams server-sent events or returns a
// single JSON body, depending on its deployment.
type WorkerClient struct {
	url       string
	authToken string
	client    *http.Client
}

type workerRequest struct {
	History    []workerMessage `json:"history"`
	NewMessage string          `json:"newMessage"`
}

type workerMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type workerResponse struct {
	Response string `json:"response"`
}

func NewWorkerClient(url, authToken string, client *http.Client) *WorkerClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &WorkerClient{url: url, authToken: authToken, client: client}
}

func (c *WorkerClient) Target() string { return workerTarget }

func (c *WorkerClient) Stream(ctx context.Context, history []session.Interaction, message string, onChunk func(string)) error {
	if c.url == "" {
		return fmt.Errorf("escalation: worker url is not configured")
	}

	payload := workerRequest{NewMessage: message, History: make([]workerMessage, 0, len(history))}
	for _, interaction := range history {
		payload.History = append(payload.History, workerMessage{Role: interaction.Role, Text: interaction.Text})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("escalation: failed to encode worker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("escalation: failed to build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("escalation: worker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
		return fmt.Errorf("escalation: worker responded with status %d: %s", resp.StatusCode, string(snippet))
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return c.consumeEventStream(resp.Body, onChunk)
	}
	return c.consumeSingleShot(resp.Body, onChunk)
}

// consumeEventStream reads "data:" lines carrying {"response": "<delta>"}
// payloads and reports the accumulated text after each delta.
func (c *WorkerClient) consumeEventStream(body io.Reader, onChunk func(string)) error {
	var accumulated strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var event workerResponse
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		if event.Response == "" {
			continue
		}
		accumulated.WriteString(event.Response)
		onChunk(accumulated.String())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("escalation: failed to read worker stream: %w", err)
	}
	if accumulated.Len() == 0 {
		return fmt.Errorf("escalation: worker stream contained no response")
	}
	return nil
}

func (c *WorkerClient) consumeSingleShot(body io.Reader, onChunk func(string)) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("escalation: failed to read worker response: %w", err)
	}
	var parsed workerResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("escalation: failed to decode worker response: %w", err)
	}
	if parsed.Response == "" {
		return fmt.Errorf("escalation: worker returned an empty response")
	}
	onChunk(parsed.Response)
	return nil
}
