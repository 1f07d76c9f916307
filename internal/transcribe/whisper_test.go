package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeTempWAV(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chunk.wav")
	if err := os.WriteFile(p, []byte("RIFFfakewav"), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return p
}

func TestWhisper_NoKey(t *testing.T) {
	c := NewWhisperClient("", "en")
	if _, err := c.Transcribe(context.Background(), "x.wav"); !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription with missing key, got %v", err)
	}
}

func TestWhisper_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected whisper-1 model, got %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("expected language hint, got %q", got)
		}
		_, _ = w.Write([]byte(`{"text":" hello there "}`))
	}))
	defer srv.Close()

	c := NewWhisperClient("key", "en")
	c.Endpoint = srv.URL
	text, err := c.Transcribe(context.Background(), writeTempWAV(t))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("expected trimmed transcript, got %q", text)
	}
}

func TestWhisper_EmptyTextIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	c := NewWhisperClient("key", "en")
	c.Endpoint = srv.URL
	text, err := c.Transcribe(context.Background(), writeTempWAV(t))
	if err != nil {
		t.Fatalf("expected no error for empty transcript, got %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty transcript, got %q", text)
	}
}

func TestWhisper_RetriesOnceThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewWhisperClient("key", "en")
	c.Endpoint = srv.URL
	c.HTTPClient = &http.Client{Timeout: time.Second}
	_, err := c.Transcribe(context.Background(), writeTempWAV(t))
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", got)
	}
}

func TestWhisper_RecoversOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"text":"second time lucky"}`))
	}))
	defer srv.Close()

	c := NewWhisperClient("key", "en")
	c.Endpoint = srv.URL
	text, err := c.Transcribe(context.Background(), writeTempWAV(t))
	if err != nil {
		t.Fatalf("expected success on retry, got %v", err)
	}
	if text != "second time lucky" {
		t.Fatalf("unexpected transcript %q", text)
	}
}
