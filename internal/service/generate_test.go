package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "memeforge_test.db")), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// fakeLLMServer answers brief, caption, and judge prompts with canned JSON.
// Judge verdicts are keyed by template name; captionFail names a template
// whose caption requests get non-JSON output.
func fakeLLMServer(t *testing.T, verdicts map[string]string, captionFail string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Messages) != 2 {
			http.Error(w, "expected system and user messages", http.StatusBadRequest)
			return
		}
		system, user := req.Messages[0].Content, req.Messages[1].Content

		var content string
		switch {
		case strings.Contains(system, "story analyst"):
			content = `<think>Straightforward release story.</think>
{"who":"the team","what":"shipped the release","when":"today","where":"production","key_events":["deploy went green"],"main_tension":"nobody believed it would work","sentiment":"positive","required_assets":[]}`
		case strings.Contains(system, "caption writer"):
			if captionFail != "" && strings.Contains(user, captionFail) {
				content = "I cannot write captions for this one."
				break
			}
			if strings.Contains(user, "format: two-panel") {
				content = `["nobody believed it","it worked"]`
			} else {
				content = `["it actually worked"]`
			}
		case strings.Contains(system, "meme quality judge"):
			for name, verdict := range verdicts {
				if strings.Contains(user, name) {
					content = verdict
					break
				}
			}
			if content == "" {
				content = `{"humor":0.5,"relevance":0.5,"clarity":0.5,"safety":1.0,"originality":0.5,"explanation":"fine"}`
			}
		default:
			http.Error(w, "unrecognized system prompt", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{
					"message": map[string]interface{}{"content": content},
				},
			},
		})
	}))
}

func newTestGenerateService(t *testing.T, db *gorm.DB, llmURL string) (*GenerateService, *fakeStorage) {
	t.Helper()
	chat := NewChatService(&ChatConfig{Model: "test-model", APIKey: "test-key", BaseURL: llmURL})
	objectStorage := newFakeStorage()
	render, err := NewRenderService(objectStorage)
	if err != nil {
		t.Fatalf("failed to create render service: %v", err)
	}

	svc := NewGenerateService(
		repository.NewTemplateRepository(db),
		repository.NewCandidateRepository(db),
		repository.NewRequestLogRepository(db),
		NewBriefService(chat, 1<<20),
		NewSelectorService(nil, nil, SelectionWeights{Vector: 0.6, Tone: 0.25, Popularity: 0.15}),
		NewCaptionService(chat),
		render,
		NewJudgeService(chat),
		logger.NewDefault(),
		&GenerateConfig{Workers: 2, MaxCandidates: 20},
	)
	return svc, objectStorage
}

func seedTestTemplates(t *testing.T, db *gorm.DB) {
	t.Helper()
	imagePath := writeTestTemplate(t, t.TempDir())
	templates := []*domain.Template{
		{
			TemplateID:   "drake-approval",
			Name:         "Drake Approval",
			Format:       domain.FormatTwoPanel,
			ImagePath:    imagePath,
			TextAreas:    "top panel, bottom panel",
			Tags:         domain.StringArray{"reaction", "comparison"},
			ToneAffinity: domain.StringArray{"dry", "neutral"},
			Popularity:   5,
		},
		{
			TemplateID:   "success-kid",
			Name:         "Success Kid",
			Format:       domain.FormatSingle,
			ImagePath:    imagePath,
			TextAreas:    "bottom",
			Tags:         domain.StringArray{"reaction", "victory"},
			ToneAffinity: domain.StringArray{"wholesome"},
			Popularity:   3,
		},
	}
	for _, tpl := range templates {
		if err := db.Create(tpl).Error; err != nil {
			t.Fatalf("failed to seed template %s: %v", tpl.TemplateID, err)
		}
	}
}

func TestGenerateRanksAndPersists(t *testing.T) {
	db := openTestDB(t)
	seedTestTemplates(t, db)

	verdicts := map[string]string{
		"Drake Approval": `{"humor":0.9,"relevance":0.8,"clarity":0.8,"safety":1.0,"originality":0.7,"explanation":"strong subversion"}`,
		"Success Kid":    `{"humor":0.4,"relevance":0.5,"clarity":0.9,"safety":1.0,"originality":0.3,"explanation":"obvious take"}`,
	}
	srv := fakeLLMServer(t, verdicts, "")
	defer srv.Close()

	svc, objectStorage := newTestGenerateService(t, db, srv.URL)

	resp, err := svc.Generate(context.Background(), "user-1", &domain.MemeGenerateRequest{
		Prompt:        "the deploy finally worked",
		NumCandidates: 2,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.TraceID == "" {
		t.Fatal("expected a trace id")
	}
	if len(resp.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(resp.Candidates))
	}

	// Drake's verdict blends higher, so it must rank first.
	if got := resp.Candidates[0].TemplateName; got != "Drake Approval" {
		t.Errorf("top candidate = %q, want Drake Approval", got)
	}
	for i, c := range resp.Candidates {
		if c.Rank != i+1 {
			t.Errorf("candidate %d: rank = %d, want %d", i, c.Rank, i+1)
		}
		if c.ImageURL == "" {
			t.Errorf("candidate %d: missing image url", i)
		}
		if c.TraceID != resp.TraceID {
			t.Errorf("candidate %d: trace id = %q, want %q", i, c.TraceID, resp.TraceID)
		}
	}
	if got := len(resp.Candidates[0].Captions); got != 2 {
		t.Errorf("two-panel captions = %d, want 2", got)
	}

	// Rendered images landed in object storage under the trace prefix.
	for _, c := range resp.Candidates {
		key := "memes/" + resp.TraceID + "/" + c.CandidateID + ".png"
		if ok, _ := objectStorage.Exists(context.Background(), key); !ok {
			t.Errorf("expected uploaded object %s", key)
		}
	}

	// Candidates persisted under the trace.
	stored, err := repository.NewCandidateRepository(db).ListByTrace(context.Background(), resp.TraceID)
	if err != nil {
		t.Fatalf("ListByTrace failed: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored candidates = %d, want 2", len(stored))
	}

	// Exactly one request log row, status ok.
	logRow, err := repository.NewRequestLogRepository(db).GetByTraceID(context.Background(), resp.TraceID)
	if err != nil {
		t.Fatalf("GetByTraceID failed: %v", err)
	}
	if logRow.Status != domain.RequestStatusOK {
		t.Errorf("request log status = %q, want ok", logRow.Status)
	}
	if logRow.NumReturned != 2 {
		t.Errorf("num_returned = %d, want 2", logRow.NumReturned)
	}

	// Returned templates earned popularity.
	var drake domain.Template
	if err := db.First(&drake, "template_id = ?", "drake-approval").Error; err != nil {
		t.Fatalf("failed to reload template: %v", err)
	}
	if drake.Popularity != 6 {
		t.Errorf("popularity = %v, want 6", drake.Popularity)
	}
}

func TestGenerateNoTemplatesMatch(t *testing.T) {
	db := openTestDB(t)
	seedTestTemplates(t, db)
	srv := fakeLLMServer(t, nil, "")
	defer srv.Close()

	svc, _ := newTestGenerateService(t, db, srv.URL)

	_, err := svc.Generate(context.Background(), "user-1", &domain.MemeGenerateRequest{
		Prompt:          "anything",
		TemplateFilters: &domain.TemplateFilters{Format: domain.FormatFourPanel},
	})
	if !errors.Is(err, ErrNoTemplatesMatch) {
		t.Fatalf("expected ErrNoTemplatesMatch, got %v", err)
	}

	// The rejected request still wrote its request log row.
	var logRow domain.RequestLog
	if err := db.First(&logRow).Error; err != nil {
		t.Fatalf("expected a request log row: %v", err)
	}
	if logRow.Status != domain.RequestStatusFailed {
		t.Errorf("request log status = %q, want failed", logRow.Status)
	}
}

func TestGenerateStrictSafetyDropsAll(t *testing.T) {
	db := openTestDB(t)
	seedTestTemplates(t, db)

	verdicts := map[string]string{
		"Drake Approval": `{"humor":0.9,"relevance":0.8,"clarity":0.8,"safety":0.6,"originality":0.7,"explanation":"edgy"}`,
		"Success Kid":    `{"humor":0.4,"relevance":0.5,"clarity":0.9,"safety":0.7,"originality":0.3,"explanation":"edgy"}`,
	}
	srv := fakeLLMServer(t, verdicts, "")
	defer srv.Close()

	svc, _ := newTestGenerateService(t, db, srv.URL)

	_, err := svc.Generate(context.Background(), "user-1", &domain.MemeGenerateRequest{
		Prompt:        "something spicy",
		NumCandidates: 2,
		SafetyMode:    domain.SafetyStrict,
	})
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}

	// Standard mode keeps the same candidates.
	resp, err := svc.Generate(context.Background(), "user-1", &domain.MemeGenerateRequest{
		Prompt:        "something spicy",
		NumCandidates: 2,
		SafetyMode:    domain.SafetyStandard,
	})
	if err != nil {
		t.Fatalf("Generate failed in standard mode: %v", err)
	}
	if len(resp.Candidates) != 2 {
		t.Errorf("standard mode candidates = %d, want 2", len(resp.Candidates))
	}
}

func TestGeneratePartialOnCaptionFailure(t *testing.T) {
	db := openTestDB(t)
	seedTestTemplates(t, db)

	srv := fakeLLMServer(t, nil, "Success Kid")
	defer srv.Close()

	svc, _ := newTestGenerateService(t, db, srv.URL)

	resp, err := svc.Generate(context.Background(), "user-1", &domain.MemeGenerateRequest{
		Prompt:        "the deploy finally worked",
		NumCandidates: 2,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(resp.Candidates) != 1 {
		t.Fatalf("expected 1 surviving candidate, got %d", len(resp.Candidates))
	}
	if got := resp.Candidates[0].TemplateName; got != "Drake Approval" {
		t.Errorf("surviving candidate = %q, want Drake Approval", got)
	}

	var warned bool
	for _, w := range resp.Warnings {
		if strings.Contains(w, "Success Kid") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a warning naming the dropped template, got %v", resp.Warnings)
	}

	logRow, err := repository.NewRequestLogRepository(db).GetByTraceID(context.Background(), resp.TraceID)
	if err != nil {
		t.Fatalf("GetByTraceID failed: %v", err)
	}
	if logRow.Status != domain.RequestStatusPartial {
		t.Errorf("request log status = %q, want partial", logRow.Status)
	}
}
