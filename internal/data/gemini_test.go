package data

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
)

// newTestGeminiRepo points a Gemini client at handler
func newTestGeminiRepo(t *testing.T, handler http.HandlerFunc) *GeminiRepo {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: server.URL},
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return newGeminiRepo(client, "", 0.7, nil)
}

func TestGeminiRepo_Chat(t *testing.T) {
	var got struct {
		Contents          []json.RawMessage `json:"contents"`
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
	}
	r := newTestGeminiRepo(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"うん"}]},"finishReason":"STOP"}]}`)
	})

	reply, err := r.Chat(context.Background(), []domain.Turn{
		domain.SystemTurn("persona"),
		domain.HumanTurn("bob: 疲れた"),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reply != "うん" {
		t.Errorf("Expected うん, got %q", reply)
	}
	if len(got.Contents) != 1 {
		t.Errorf("Expected 1 content turn, got %d", len(got.Contents))
	}
	if got.SystemInstruction == nil || len(got.SystemInstruction.Parts) != 1 || got.SystemInstruction.Parts[0].Text != "persona" {
		t.Errorf("Expected system turn as system instruction, got %+v", got.SystemInstruction)
	}
}

func TestGeminiRepo_EmptyResponseIsBackendError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"prompt blocked", `{"promptFeedback":{"blockReason":"SAFETY"}}`, "SAFETY"},
		{"no text", `{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"MAX_TOKENS"}]}`, "MAX_TOKENS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestGeminiRepo(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, tt.body)
			})

			reply, err := r.Chat(context.Background(), []domain.Turn{domain.HumanTurn("x")})
			if reply != "" {
				t.Errorf("Expected no reply, got %q", reply)
			}
			var be *domain.BackendError
			if !errors.As(err, &be) {
				t.Fatalf("Expected BackendError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to mention %s, got %v", tt.want, err)
			}
		})
	}
}

func TestGeminiRepo_APIError(t *testing.T) {
	r := newTestGeminiRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := r.Chat(context.Background(), []domain.Turn{domain.HumanTurn("x")})
	var be *domain.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Expected BackendError, got %v", err)
	}
	if be.Provider != "gemini" {
		t.Errorf("Expected provider gemini, got %s", be.Provider)
	}
}
