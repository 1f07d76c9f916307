// Package transcribe sends finished audio artifacts to OpenAI Whisper.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTranscription marks a transcription service or network failure.
// Transient by nature; callers may retry once.
var ErrTranscription = errors.New("transcription failed")

const defaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// WhisperClient transcribes WAV artifacts via the OpenAI audio API.
type WhisperClient struct {
	HTTPClient *http.Client
	APIKey     string
	Language   string
	Endpoint   string
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// NewWhisperClient builds a client with the deployment's language hint.
func NewWhisperClient(apiKey, language string) *WhisperClient {
	return &WhisperClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Language:   language,
		Endpoint:   defaultEndpoint,
	}
}

// Transcribe uploads the WAV at wavPath and returns plain text. An empty
// string means the service detected no speech; that is not an error.
func (c *WhisperClient) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("%w: openai api key missing", ErrTranscription)
	}

	text, err := c.transcribeOnce(ctx, wavPath)
	if err != nil && ctx.Err() == nil {
		// One bounded retry for transient network failures.
		time.Sleep(250 * time.Millisecond)
		text, err = c.transcribeOnce(ctx, wavPath)
	}
	return text, err
}

func (c *WhisperClient) transcribeOnce(ctx context.Context, wavPath string) (string, error) {
	body, contentType, err := c.buildForm(wavPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status=%d body=%s", ErrTranscription, resp.StatusCode, string(b))
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTranscription, err)
	}
	return strings.TrimSpace(tr.Text), nil
}

func (c *WhisperClient) buildForm(wavPath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	_ = w.WriteField("model", "whisper-1")
	if c.Language != "" {
		_ = w.WriteField("language", c.Language)
	}
	_ = w.WriteField("response_format", "json")
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
