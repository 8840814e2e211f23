package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
)

func TestParseJudgment(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   domain.IntentJudgment
		wantOK bool
	}{
		{
			name:   "all labels",
			raw:    "NEEDS_SEARCH: true\nHAS_URL: false\nSEARCH_QUERY: 名古屋 天気 明日",
			want:   domain.IntentJudgment{NeedsSearch: true, SearchQuery: "名古屋 天気 明日"},
			wantOK: true,
		},
		{
			name:   "url only",
			raw:    "NEEDS_SEARCH: false\nHAS_URL: true\nSEARCH_QUERY: none",
			want:   domain.IntentJudgment{HasURL: true},
			wantOK: true,
		},
		{
			name:   "wrapped in prose",
			raw:    "Sure! Here you go:\n```\nNEEDS_SEARCH: true\nHAS_URL: false\nSEARCH_QUERY: \"go 1.24 release\"\n```",
			want:   domain.IntentJudgment{NeedsSearch: true, SearchQuery: "go 1.24 release"},
			wantOK: true,
		},
		{
			name:   "uppercase value is not true",
			raw:    "NEEDS_SEARCH: True\nHAS_URL: FALSE\nSEARCH_QUERY:",
			want:   domain.IntentJudgment{},
			wantOK: true,
		},
		{
			name:   "missing all labels",
			raw:    "I think you should search for it.",
			want:   domain.IntentJudgment{},
			wantOK: false,
		},
		{
			name:   "empty",
			raw:    "",
			want:   domain.IntentJudgment{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseJudgment(tt.raw)
			if ok != tt.wantOK {
				t.Errorf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Judgment mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassify_BuildsSinglePrompt(t *testing.T) {
	gen := &mockGenerationRepo{respond: func(turns []domain.Turn) (string, error) {
		return "NEEDS_SEARCH: true\nHAS_URL: false\nSEARCH_QUERY: weather", nil
	}}
	uc := NewClassifierUsecase(gen, "", nil)

	got := uc.Classify(context.Background(), "明日の天気は？")
	if !got.NeedsSearch || got.SearchQuery != "weather" {
		t.Errorf("Unexpected judgment: %+v", got)
	}
	if len(gen.calls) != 1 || len(gen.calls[0]) != 1 {
		t.Fatalf("Expected one call with one turn, got %v", gen.calls)
	}
	turn := gen.calls[0][0]
	if turn.Role != domain.RoleHuman || !strings.Contains(turn.Content, "明日の天気は？") {
		t.Errorf("Unexpected prompt turn: %+v", turn)
	}
}

func TestClassify_BackendErrorDegrades(t *testing.T) {
	gen := &mockGenerationRepo{respond: func(turns []domain.Turn) (string, error) {
		return "", errBackendDown
	}}
	uc := NewClassifierUsecase(gen, "", nil)

	if got := uc.Classify(context.Background(), "q"); got != (domain.IntentJudgment{}) {
		t.Errorf("Expected zero judgment, got %+v", got)
	}
}
