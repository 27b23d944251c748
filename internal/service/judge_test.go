package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memelab/memeforge/internal/domain"
)

func TestScoreClampsVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{
					"message": map[string]interface{}{
						"content": `{"humor":1.4,"relevance":-0.2,"clarity":0.6,"safety":0.9,"originality":0.5,"explanation":"enthusiastic model"}`,
					},
				},
			},
		})
	}))
	defer srv.Close()

	chat := NewChatService(&ChatConfig{Model: "test-model", APIKey: "test-key", BaseURL: srv.URL})
	svc := NewJudgeService(chat)

	template := &domain.Template{Name: "Drake Approval", Format: domain.FormatTwoPanel}
	scores, explanation, degraded := svc.Score(context.Background(), template, []string{"a", "b"}, &domain.StoryBrief{What: "x"}, "dry")
	if degraded {
		t.Fatal("expected a model verdict, got the heuristic fallback")
	}
	if scores.Humor != 1 {
		t.Errorf("humor = %v, want clamped to 1", scores.Humor)
	}
	if scores.Relevance != 0 {
		t.Errorf("relevance = %v, want clamped to 0", scores.Relevance)
	}
	if explanation != "enthusiastic model" {
		t.Errorf("explanation = %q", explanation)
	}
}

func TestScoreFallsBackToHeuristics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "judge asleep", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	chat := NewChatService(&ChatConfig{Model: "test-model", APIKey: "test-key", BaseURL: srv.URL})
	svc := NewJudgeService(chat)

	template := &domain.Template{Name: "Success Kid", Format: domain.FormatSingle}
	scores, explanation, degraded := svc.Score(context.Background(), template, []string{"short win"}, &domain.StoryBrief{What: "short win story"}, "")
	if !degraded {
		t.Fatal("expected the heuristic fallback")
	}
	if explanation != "" {
		t.Errorf("explanation = %q, want empty for heuristic scores", explanation)
	}
	if scores.Safety != 1.0 {
		t.Errorf("safety = %v, want 1.0 for clean captions", scores.Safety)
	}
}

func TestHeuristicScores(t *testing.T) {
	brief := &domain.StoryBrief{What: "deploy failed during the demo"}

	t.Run("profanity tanks safety", func(t *testing.T) {
		scores := heuristicScores([]string{"well shit"}, brief)
		if scores.Safety != 0.2 {
			t.Errorf("safety = %v, want 0.2", scores.Safety)
		}
	})

	t.Run("short captions read clearly", func(t *testing.T) {
		scores := heuristicScores([]string{"demo time", "it failed"}, brief)
		if scores.Clarity != 0.7 {
			t.Errorf("clarity = %v, want 0.7", scores.Clarity)
		}
		if scores.Safety != 1.0 {
			t.Errorf("safety = %v, want 1.0", scores.Safety)
		}
	})

	t.Run("brief overlap lifts relevance", func(t *testing.T) {
		overlapping := heuristicScores([]string{"the deploy failed again"}, brief)
		unrelated := heuristicScores([]string{"cats are liquid"}, brief)
		if overlapping.Relevance <= unrelated.Relevance {
			t.Errorf("relevance: overlapping %v <= unrelated %v", overlapping.Relevance, unrelated.Relevance)
		}
	})

	t.Run("humor and originality stay neutral", func(t *testing.T) {
		scores := heuristicScores([]string{"anything"}, brief)
		if scores.Humor != 0.5 || scores.Originality != 0.5 {
			t.Errorf("humor = %v, originality = %v, want 0.5 each", scores.Humor, scores.Originality)
		}
	})
}
