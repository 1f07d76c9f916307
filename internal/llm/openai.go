// Package llm generates assistant replies via the OpenAI chat API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/chadiek/callbridge/internal/session"
)

// FallbackReply is returned whenever generation fails. The pipeline keeps
// going with this text so the caller always hears something.
const FallbackReply = "[Error generating response]"

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

// replyTemperature matches the deployment's fixed sampling temperature.
const replyTemperature = 0.7

// OpenAIClient talks to the chat-completions endpoint.
type OpenAIClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	AgentName  string
	Endpoint   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// NewOpenAIClient builds a reply generator identifying itself as agentName.
func NewOpenAIClient(apiKey, model, agentName string) *OpenAIClient {
	return &OpenAIClient{
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		AgentName:  agentName,
		Endpoint:   defaultEndpoint,
	}
}

// Reply implements session.Generator. It never returns an error: failures
// are logged and replaced by FallbackReply.
func (c *OpenAIClient) Reply(ctx context.Context, userText string, history []session.Turn) string {
	reply, err := c.Generate(ctx, userText, history)
	if err != nil {
		log.Printf("llm: generation failed, using fallback: %v", err)
		return FallbackReply
	}
	return reply
}

// Generate builds system + history + new user turn and returns the
// assistant text or an error.
func (c *OpenAIClient) Generate(ctx context.Context, userText string, history []session.Turn) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("openai api key missing")
	}

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: c.systemPrompt()})
	for _, t := range history {
		messages = append(messages, chatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	reqBody, _ := json.Marshal(chatCompletionsRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: replyTemperature,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	answer := strings.TrimSpace(cr.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("openai: empty reply")
	}
	return answer, nil
}

func (c *OpenAIClient) systemPrompt() string {
	name := c.AgentName
	if name == "" {
		name = "the assistant"
	}
	return fmt.Sprintf("You are %s, a concise and professional voice assistant answering a phone call. Keep replies short, clear and natural to speak aloud.", name)
}
