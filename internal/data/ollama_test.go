package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
)

func TestOllamaRepo_Chat(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("Expected /chat, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"message":{"role":"assistant","content":"うん"},"done":true}`)
	}))
	defer server.Close()

	r := NewOllamaRepo(server.URL+"/", "secret", "gemma2:9b", 0.7, nil)
	reply, err := r.Chat(context.Background(), []domain.Turn{
		domain.SystemTurn("persona"),
		domain.HumanTurn("alice: hi"),
		domain.AITurn("hello"),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reply != "うん" {
		t.Errorf("Expected うん, got %q", reply)
	}

	want := []ollamaMessage{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "alice: hi"},
		{Role: "assistant", Content: "hello"},
	}
	if diff := cmp.Diff(want, got.Messages); diff != "" {
		t.Errorf("Messages mismatch (-want +got):\n%s", diff)
	}
	if got.Model != "gemma2:9b" || got.Stream {
		t.Errorf("Unexpected request: %+v", got)
	}
}

func TestOllamaRepo_NonOKIsBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	r := NewOllamaRepo(server.URL, "", "missing", 0.7, nil)
	_, err := r.Chat(context.Background(), []domain.Turn{domain.HumanTurn("x")})

	var be *domain.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Expected BackendError, got %v", err)
	}
	if be.StatusCode != http.StatusNotFound || !strings.Contains(be.Body, "model not found") {
		t.Errorf("Unexpected backend error: %+v", be)
	}
}

func TestOllamaRepo_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	}))
	defer server.Close()

	r := NewOllamaRepo(server.URL, "", "m", 0, nil)
	_, err := r.Generate(context.Background(), "prompt")

	var be *domain.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Expected BackendError, got %v", err)
	}
}

func TestOllamaRepo_StreamChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("Expected stream request")
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"な"},"done":false}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"るほど"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"ignored"},"done":false}`)
	}))
	defer server.Close()

	r := NewOllamaRepo(server.URL, "", "m", 0, nil)
	var parts []string
	for frag, err := range r.StreamChat(context.Background(), []domain.Turn{domain.HumanTurn("x")}) {
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		parts = append(parts, frag)
	}
	if diff := cmp.Diff([]string{"な", "るほど"}, parts); diff != "" {
		t.Errorf("Fragments mismatch (-want +got):\n%s", diff)
	}
}

func TestOllamaRepo_StreamGenerateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("Expected /generate, got %s", r.URL.Path)
		}
		fmt.Fprintln(w, `{"response":"a","done":false}`)
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	}))
	defer server.Close()

	r := NewOllamaRepo(server.URL, "", "m", 0, nil)
	var parts []string
	var streamErr error
	for frag, err := range r.StreamGenerate(context.Background(), "p") {
		if err != nil {
			streamErr = err
			break
		}
		parts = append(parts, frag)
	}
	if len(parts) != 1 || parts[0] != "a" {
		t.Errorf("Expected one fragment before the error, got %v", parts)
	}
	var be *domain.BackendError
	if !errors.As(streamErr, &be) || be.Body != "out of memory" {
		t.Errorf("Expected BackendError with body, got %v", streamErr)
	}
}
