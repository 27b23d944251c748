package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/prompts"
)

const (
	briefMaxTokens = 600

	// sourceTextLimit bounds how much fetched article text goes into the
	// LLM prompt, in runes.
	sourceTextLimit = 4000
)

// BriefService turns a prompt (and optionally a fetched source page) into a
// structured story brief. It degrades instead of failing: LLM or fetch
// problems produce a heuristic brief plus warnings.
type BriefService struct {
	chat       *ChatService
	fetcher    *resty.Client
	maxFetched int64
}

// NewBriefService creates a new brief service.
// Parameters:
//   - chat: chat client for the brief model.
//   - maxFetched: byte cap on fetched source pages.
//
// Returns:
//   - *BriefService: initialized brief service.
func NewBriefService(chat *ChatService, maxFetched int64) *BriefService {
	fetcher := resty.New()
	fetcher.SetTimeout(15 * time.Second)
	fetcher.SetHeader("User-Agent", "memeforge/1.0")
	// Stream the body so the size cap applies before reading it all
	fetcher.SetDoNotParseResponse(true)

	return &BriefService{
		chat:       chat,
		fetcher:    fetcher,
		maxFetched: maxFetched,
	}
}

// Generate produces a story brief for the request.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prompt: user prompt text.
//   - sourceURL: optional URL whose readable text is folded into the brief.
//
// Returns:
//   - *domain.StoryBrief: the brief (never nil).
//   - []string: warnings accumulated while degrading.
func (s *BriefService) Generate(ctx context.Context, prompt, sourceURL string) (*domain.StoryBrief, []string) {
	var warnings []string

	sourceText := ""
	if sourceURL != "" {
		text, err := s.fetchSource(ctx, sourceURL)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("source fetch failed: %v", err))
		} else {
			sourceText = text
		}
	}

	user := fmt.Sprintf(prompts.BriefUserPromptFormat, prompt, sourceText)

	var brief domain.StoryBrief
	err := s.chat.CompleteJSON(ctx, prompts.BriefSystemPrompt, user, briefMaxTokens, &brief)
	if err != nil {
		warnings = append(warnings, "story brief degraded: generated heuristically")
		return fallbackBrief(prompt), warnings
	}

	// An empty what/main_tension means the model returned a husk
	if strings.TrimSpace(brief.What) == "" && strings.TrimSpace(brief.MainTension) == "" {
		warnings = append(warnings, "story brief degraded: generated heuristically")
		return fallbackBrief(prompt), warnings
	}

	return &brief, warnings
}

// fetchSource downloads the page and extracts readable text, capped at
// maxFetched bytes on the wire and sourceTextLimit runes after extraction.
func (s *BriefService) fetchSource(ctx context.Context, url string) (string, error) {
	resp, err := s.fetcher.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch source: %w", err)
	}

	raw := resp.RawBody()
	if raw == nil {
		return "", fmt.Errorf("empty response body")
	}
	defer raw.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("source returned HTTP %d", resp.StatusCode())
	}

	body, err := io.ReadAll(io.LimitReader(raw, s.maxFetched))
	if err != nil {
		return "", fmt.Errorf("failed to read source body: %w", err)
	}

	text := ExtractReadableText(string(body))
	if text == "" {
		return "", fmt.Errorf("no readable text in source")
	}

	runes := []rune(text)
	if len(runes) > sourceTextLimit {
		text = string(runes[:sourceTextLimit])
	}

	return text, nil
}

// ExtractReadableText pulls visible text out of an HTML document, skipping
// script/style/head subtrees. Non-HTML input comes back as-is.
func ExtractReadableText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	// Plain text source: nothing to strip
	if !strings.Contains(trimmed, "<") {
		return collapseWhitespace(trimmed)
	}

	tokenizer := html.NewTokenizer(strings.NewReader(input))

	var sb strings.Builder
	skipDepth := 0
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return collapseWhitespace(sb.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text != "" {
				sb.WriteString(text)
				sb.WriteByte(' ')
			}
		}
	}
}

func skippedTag(name string) bool {
	switch name {
	case "script", "style", "head", "noscript", "template", "svg":
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// fallbackBrief builds a minimal brief from the raw prompt when the LLM is
// unavailable.
func fallbackBrief(prompt string) *domain.StoryBrief {
	trimmed := strings.TrimSpace(prompt)

	sentiment := "neutral"
	lower := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lower, "win") || strings.Contains(lower, "finally") || strings.Contains(lower, "launch"):
		sentiment = "positive"
	case strings.Contains(lower, "fail") || strings.Contains(lower, "down") || strings.Contains(lower, "crash") || strings.Contains(lower, "outage"):
		sentiment = "negative"
	}

	return &domain.StoryBrief{
		Who:         "",
		What:        trimmed,
		KeyEvents:   []string{trimmed},
		MainTension: trimmed,
		Sentiment:   sentiment,
	}
}
