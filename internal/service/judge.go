package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/prompts"
)

const judgeMaxTokens = 300

// JudgeService scores finished candidates on the five quality axes.
type JudgeService struct {
	chat *ChatService
}

// NewJudgeService creates a new judge service.
func NewJudgeService(chat *ChatService) *JudgeService {
	return &JudgeService{chat: chat}
}

type judgeVerdict struct {
	Humor       float64 `json:"humor"`
	Relevance   float64 `json:"relevance"`
	Clarity     float64 `json:"clarity"`
	Safety      float64 `json:"safety"`
	Originality float64 `json:"originality"`
	Explanation string  `json:"explanation"`
}

// Score judges one candidate. The judge model failing is not fatal: scores
// fall back to heuristics and degraded reports true so the caller can attach
// a warning.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - template: the captioned template.
//   - captions: final captions in panel order.
//   - brief: story brief the candidate was generated from.
//   - tone: requested tone.
//
// Returns:
//   - domain.MemeScores: five scores, each clamped to [0,1].
//   - string: judge explanation (empty for heuristic scores).
//   - bool: true when the heuristic fallback produced the scores.
func (s *JudgeService) Score(ctx context.Context, template *domain.Template, captions []string, brief *domain.StoryBrief, tone string) (domain.MemeScores, string, bool) {
	user := fmt.Sprintf(prompts.JudgeUserPromptFormat,
		template.Name,
		template.Format,
		strings.Join(captions, " / "),
		brief.Summary(),
		tone,
	)

	var verdict judgeVerdict
	err := s.chat.CompleteJSON(ctx, prompts.JudgeSystemPrompt, user, judgeMaxTokens, &verdict)
	if err != nil {
		return heuristicScores(captions, brief), "", true
	}

	scores := domain.MemeScores{
		Humor:       clampScore(verdict.Humor),
		Relevance:   clampScore(verdict.Relevance),
		Clarity:     clampScore(verdict.Clarity),
		Safety:      clampScore(verdict.Safety),
		Originality: clampScore(verdict.Originality),
	}

	return scores, verdict.Explanation, false
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// heuristicScores is the degraded scoring path: caption length drives
// clarity, token overlap with the brief drives relevance, and a profanity
// screen drives safety.
func heuristicScores(captions []string, brief *domain.StoryBrief) domain.MemeScores {
	joined := strings.ToLower(strings.Join(captions, " "))

	safety := 1.0
	for _, word := range prompts.ProfanityWords {
		if strings.Contains(joined, word) {
			safety = 0.2
			break
		}
	}

	totalLen := 0
	for _, c := range captions {
		totalLen += len([]rune(c))
	}
	avgLen := 0
	if len(captions) > 0 {
		avgLen = totalLen / len(captions)
	}
	clarity := 0.3
	switch {
	case avgLen > 0 && avgLen <= 60:
		clarity = 0.7
	case avgLen <= 90:
		clarity = 0.5
	}

	relevance := 0.3
	briefTokens := tokenize(brief.Summary())
	captionTokens := tokenize(joined)
	if len(briefTokens) > 0 {
		overlap := 0
		for token := range captionTokens {
			if briefTokens[token] {
				overlap++
			}
		}
		relevance = clampScore(0.3 + float64(overlap)*0.1)
	}

	return domain.MemeScores{
		Humor:       0.5,
		Relevance:   relevance,
		Clarity:     clarity,
		Safety:      safety,
		Originality: 0.5,
	}
}
