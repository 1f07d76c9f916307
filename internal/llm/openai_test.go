package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chadiek/callbridge/internal/session"
)

func TestGenerate_NoKey(t *testing.T) {
	c := NewOpenAIClient("", "model", "Ava")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, "hi", nil); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestGenerate_BuildsSystemHistoryUser(t *testing.T) {
	var got chatCompletionsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Sure thing. "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", "model", "Ava")
	c.Endpoint = srv.URL
	history := []session.Turn{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi, this is Ava"},
	}
	reply, err := c.Generate(context.Background(), "book a table", history)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "Sure thing." {
		t.Fatalf("expected trimmed reply, got %q", reply)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("expected system+2 history+user, got %d messages", len(got.Messages))
	}
	if got.Messages[0].Role != "system" {
		t.Fatalf("expected system message first, got %q", got.Messages[0].Role)
	}
	if got.Messages[3].Role != "user" || got.Messages[3].Content != "book a table" {
		t.Fatalf("expected new user turn last, got %+v", got.Messages[3])
	}
	if got.Temperature != replyTemperature {
		t.Fatalf("expected fixed temperature %v, got %v", replyTemperature, got.Temperature)
	}
}

func TestGenerate_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not-json")) }},
		{"empty_choices", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"choices":[]}`)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewOpenAIClient("key", "model", "Ava")
			c.Endpoint = srv.URL
			if _, err := c.Generate(context.Background(), "hi", nil); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

func TestReply_FallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := NewOpenAIClient("key", "model", "Ava")
	c.Endpoint = srv.URL
	if got := c.Reply(context.Background(), "hi", nil); got != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", got)
	}
}
