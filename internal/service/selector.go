package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/repository"
)

// SelectionWeights blends the three template ranking signals.
type SelectionWeights struct {
	Vector     float64
	Tone       float64
	Popularity float64
}

// TemplateRanking is one ranked selection result.
type TemplateRanking struct {
	Template *domain.Template
	Score    float64
}

// vectorSearcher is the slice of the Qdrant repository the selector needs.
type vectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filters *repository.SearchFilters) ([]repository.SearchResult, error)
}

// textEmbedder produces one query-side embedding vector for a text.
type textEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SelectorService filters the template catalog and ranks the survivors
// against a story brief.
type SelectorService struct {
	qdrant   vectorSearcher
	embedder textEmbedder
	weights  SelectionWeights
}

// NewSelectorService creates a new selector service. qdrant and embedder may
// be nil; ranking then falls back to lexical scoring.
func NewSelectorService(qdrant vectorSearcher, embedder textEmbedder, weights SelectionWeights) *SelectorService {
	return &SelectorService{
		qdrant:   qdrant,
		embedder: embedder,
		weights:  weights,
	}
}

// FilterTemplates applies catalog filters: exact format match, keep when the
// template carries ANY include tag, drop when it carries ANY exclude tag,
// and an explicit template id allowlist.
func FilterTemplates(templates []*domain.Template, filters *domain.TemplateFilters) []*domain.Template {
	if filters == nil {
		return templates
	}

	filtered := templates

	if filters.Format != "" {
		var next []*domain.Template
		for _, t := range filtered {
			if t.Format == filters.Format {
				next = append(next, t)
			}
		}
		filtered = next
	}

	if len(filters.TemplateIDs) > 0 {
		allowed := make(map[string]bool, len(filters.TemplateIDs))
		for _, id := range filters.TemplateIDs {
			allowed[id] = true
		}
		var next []*domain.Template
		for _, t := range filtered {
			if allowed[t.TemplateID] {
				next = append(next, t)
			}
		}
		filtered = next
	}

	if len(filters.IncludeTags) > 0 {
		var next []*domain.Template
		for _, t := range filtered {
			if hasAnyTag(t.Tags, filters.IncludeTags) {
				next = append(next, t)
			}
		}
		filtered = next
	}

	if len(filters.ExcludeTags) > 0 {
		var next []*domain.Template
		for _, t := range filtered {
			if !hasAnyTag(t.Tags, filters.ExcludeTags) {
				next = append(next, t)
			}
		}
		filtered = next
	}

	return filtered
}

func hasAnyTag(tags []string, wanted []string) bool {
	for _, tag := range tags {
		for _, w := range wanted {
			if tag == w {
				return true
			}
		}
	}
	return false
}

// Select ranks candidates against the brief and returns the top count.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidates: filtered catalog (non-empty).
//   - brief: story brief driving relevance.
//   - tone: requested tone for affinity boosts.
//   - count: number of templates wanted.
//
// Returns:
//   - []TemplateRanking: ranked selections, best first, at most count.
//   - []string: warnings (vector ranking degraded, etc.).
func (s *SelectorService) Select(ctx context.Context, candidates []*domain.Template, brief *domain.StoryBrief, tone string, count int) ([]TemplateRanking, []string) {
	var warnings []string

	if count > len(candidates) {
		count = len(candidates)
	}
	if count <= 0 {
		return nil, warnings
	}

	vectorScores, err := s.vectorScores(ctx, candidates, brief)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("vector ranking degraded to lexical scoring: %v", err))
		vectorScores = lexicalScores(candidates, brief)
	}

	maxPopularity := 0.0
	for _, t := range candidates {
		if t.Popularity > maxPopularity {
			maxPopularity = t.Popularity
		}
	}

	rankings := make([]TemplateRanking, 0, len(candidates))
	for _, t := range candidates {
		score := s.weights.Vector * vectorScores[t.TemplateID]

		if t.HasTone(tone) {
			score += s.weights.Tone
		}

		if maxPopularity > 0 {
			score += s.weights.Popularity * (t.Popularity / maxPopularity)
		}

		rankings = append(rankings, TemplateRanking{Template: t, Score: score})
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].Score != rankings[j].Score {
			return rankings[i].Score > rankings[j].Score
		}
		return rankings[i].Template.TemplateID < rankings[j].Template.TemplateID
	})

	return rankings[:count], warnings
}

// vectorScores embeds the brief and queries Qdrant restricted to the
// candidate ids. Scores are cosine similarities in [0,1]; absent templates
// score 0.
func (s *SelectorService) vectorScores(ctx context.Context, candidates []*domain.Template, brief *domain.StoryBrief) (map[string]float64, error) {
	if s.qdrant == nil || s.embedder == nil {
		return nil, fmt.Errorf("vector search not configured")
	}

	vector, err := s.embedder.EmbedQuery(ctx, brief.Summary())
	if err != nil {
		return nil, fmt.Errorf("failed to embed brief: %w", err)
	}

	ids := make([]string, len(candidates))
	for i, t := range candidates {
		ids[i] = t.TemplateID
	}

	results, err := s.qdrant.Search(ctx, vector, len(candidates), &repository.SearchFilters{
		TemplateIDs: ids,
	})
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(results))
	for _, r := range results {
		if r.Payload == nil {
			continue
		}
		scores[r.Payload.TemplateID] = float64(r.Score)
	}

	return scores, nil
}

// lexicalScores is the degraded ranking: token overlap between the brief and
// the template's name, tags, and tone affinity.
func lexicalScores(candidates []*domain.Template, brief *domain.StoryBrief) map[string]float64 {
	briefTokens := tokenize(brief.Summary())

	scores := make(map[string]float64, len(candidates))
	for _, t := range candidates {
		templateText := strings.Join(append(append([]string{t.Name}, t.Tags...), t.ToneAffinity...), " ")
		templateTokens := tokenize(templateText)

		overlap := 0
		for token := range briefTokens {
			if templateTokens[token] {
				overlap++
			}
		}

		if len(briefTokens) > 0 {
			scores[t.TemplateID] = float64(overlap) / float64(len(briefTokens))
		}
	}

	return scores
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		token := strings.Trim(field, ".,!?;:\"'()[]")
		if len(token) > 2 {
			tokens[token] = true
		}
	}
	return tokens
}
