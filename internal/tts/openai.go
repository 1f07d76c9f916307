// Package tts synthesizes reply text into complete playable audio clips.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSynthesis marks a failed speech synthesis. The pipeline run aborts
// and nothing is published for that turn.
var ErrSynthesis = errors.New("synthesis failed")

const openAIEndpoint = "https://api.openai.com/v1/audio/speech"

// OpenAIClient synthesizes MP3 clips via the OpenAI speech API.
type OpenAIClient struct {
	HTTPClient *http.Client
	APIKey     string
	Voice      string
	Endpoint   string
}

type speechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

// NewOpenAIClient builds a synthesizer with a fixed narrator voice.
func NewOpenAIClient(apiKey, voice string) *OpenAIClient {
	if voice == "" {
		voice = "onyx"
	}
	return &OpenAIClient{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		APIKey:     apiKey,
		Voice:      voice,
		Endpoint:   openAIEndpoint,
	}
}

// Synthesize returns the complete MP3 clip for text.
func (c *OpenAIClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key missing", ErrSynthesis)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrSynthesis)
	}

	reqBody, _ := json.Marshal(speechRequest{Model: "tts-1", Voice: c.Voice, Input: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrSynthesis, resp.StatusCode, string(b))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", ErrSynthesis, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrSynthesis)
	}
	return audio, nil
}
