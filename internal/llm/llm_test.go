package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type mockCreds struct {
	keys map[Provider]string
}

func (m mockCreds) APIKey(p Provider) string { return m.keys[p] }
func (m mockCreds) Hint(p Provider) string   { return "set FIELDMATCH_" + strings.ToUpper(string(p)) + "_API_KEY" }

func TestNew_MissingCredential(t *testing.T) {
	for _, p := range []Provider{ProviderOpenAI, ProviderOpenRouter} {
		t.Run(string(p), func(t *testing.T) {
			_, _, err := New(context.Background(), Config{Provider: p}, mockCreds{})
			if !errors.Is(err, ErrMissingCredential) {
				t.Fatalf("err = %v, want ErrMissingCredential", err)
			}
			var mce *MissingCredentialError
			if !errors.As(err, &mce) {
				t.Fatalf("err = %T, want *MissingCredentialError", err)
			}
			if mce.Provider != p {
				t.Errorf("Provider = %q, want %q", mce.Provider, p)
			}
			msg := err.Error()
			if !strings.Contains(msg, string(p)) || !strings.Contains(msg, "get a key at") {
				t.Errorf("message %q should name the provider and where to get a key", msg)
			}
			if !strings.Contains(msg, "FIELDMATCH_") {
				t.Errorf("message %q should carry the configuration hint", msg)
			}
		})
	}
}

func TestNew_OllamaNeedsNoKey(t *testing.T) {
	c, cfg, err := New(context.Background(), Config{Provider: ProviderOllama}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*Ollama); !ok {
		t.Errorf("chatter = %T, want *Ollama", c)
	}
	if cfg.Model != "llama3.1" || cfg.BaseURL != "http://localhost:11434" {
		t.Errorf("resolved config = %+v, want provider defaults", cfg)
	}
}

func TestNew_OpenRouterWithKey(t *testing.T) {
	c, cfg, err := New(context.Background(), Config{Provider: ProviderOpenRouter, Model: "x/y"}, mockCreds{
		keys: map[Provider]string{ProviderOpenRouter: "k"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*Client); !ok {
		t.Errorf("chatter = %T, want *Client", c)
	}
	if cfg.Model != "x/y" {
		t.Errorf("Model = %q, want x/y", cfg.Model)
	}
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" OpenRouter ")
	if err != nil || p != ProviderOpenRouter {
		t.Errorf("ParseProvider = %q, %v", p, err)
	}
	if _, err := ParseProvider("bard"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestClientChat_ReturnsContent(t *testing.T) {
	var gotAuth string
	var gotReq completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"[]"}}]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	out, err := c.Chat(context.Background(), "m", []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "[]" {
		t.Errorf("content = %q, want []", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q, want Bearer test-key", gotAuth)
	}
	if gotReq.Model != "m" || len(gotReq.Messages) != 2 {
		t.Errorf("request = %+v, want model m with 2 messages", gotReq)
	}
}

func TestClientChat_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	out, err := c.Chat(context.Background(), "m", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "ok" {
		t.Errorf("content = %q, want ok", out)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestClientChat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	_, err := NewClientWithBaseURL("k", srv.URL).Chat(context.Background(), "m", nil)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %v, want status 500 error", err)
	}
}

func TestClientChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	if _, err := NewClientWithBaseURL("k", srv.URL).Chat(context.Background(), "m", nil); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestOllamaChat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[]}`)
		case "/api/chat":
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			json.NewDecoder(r.Body).Decode(&got)
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"hello"}}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOllama(srv.URL)
	out, err := c.Chat(context.Background(), "llama3.1", []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "hello" {
		t.Errorf("content = %q, want hello", out)
	}
	if got.Stream {
		t.Error("stream = true, want false")
	}
	if got.Options.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", got.Options.Temperature)
	}
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestOllamaChat_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'nope' not found"}`)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), "nope", nil)
	if err == nil || !strings.Contains(err.Error(), "model 'nope' not found") {
		t.Errorf("err = %v, want the daemon's message", err)
	}
}

func TestOllamaIsRunning_Down(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if NewOllama(url).IsRunning(context.Background()) {
		t.Error("IsRunning() = true for a closed server")
	}
}

type countingChatter struct{ calls atomic.Int32 }

func (c *countingChatter) Chat(context.Context, string, []Message) (string, error) {
	c.calls.Add(1)
	return "ok", nil
}

func TestLimited_RespectsContext(t *testing.T) {
	next := &countingChatter{}
	l := NewLimited(next, 1) // one call per minute

	if _, err := l.Chat(context.Background(), "m", nil); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Chat(ctx, "m", nil); err == nil {
		t.Error("second call within the window should fail on context deadline")
	}
	if next.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", next.calls.Load())
	}
}

func TestLimited_Unlimited(t *testing.T) {
	next := &countingChatter{}
	l := NewLimited(next, 0)
	for range 5 {
		if _, err := l.Chat(context.Background(), "m", nil); err != nil {
			t.Fatal(err)
		}
	}
	if next.calls.Load() != 5 {
		t.Errorf("calls = %d, want 5", next.calls.Load())
	}
}
