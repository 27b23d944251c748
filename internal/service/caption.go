package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/prompts"
)

const captionMaxTokens = 400

// CaptionService writes captions for one template at a time.
type CaptionService struct {
	chat *ChatService
}

// NewCaptionService creates a new caption service.
func NewCaptionService(chat *ChatService) *CaptionService {
	return &CaptionService{chat: chat}
}

// GenerateCaptions produces exactly the template's slot count of captions.
// Malformed model output is retried once; a second failure returns an error
// and the caller drops the template.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - template: the template being captioned.
//   - brief: story brief driving the joke.
//   - req: the generate request (tone, audience, style, language).
//
// Returns:
//   - []string: slot-count captions in panel order.
//   - error: non-nil after two malformed attempts or an API failure.
func (s *CaptionService) GenerateCaptions(ctx context.Context, template *domain.Template, brief *domain.StoryBrief, req *domain.MemeGenerateRequest) ([]string, error) {
	count := template.Format.SlotCount()
	user := s.buildUserPrompt(template, brief, req, count)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var captions []string
		err := s.chat.CompleteJSON(ctx, prompts.CaptionSystemPrompt, user, captionMaxTokens, &captions)
		if err != nil {
			lastErr = err
			continue
		}

		cleaned, err := validateCaptions(captions, count)
		if err != nil {
			lastErr = err
			continue
		}

		return cleaned, nil
	}

	return nil, fmt.Errorf("caption generation failed for template %s: %w", template.TemplateID, lastErr)
}

func (s *CaptionService) buildUserPrompt(template *domain.Template, brief *domain.StoryBrief, req *domain.MemeGenerateRequest, count int) string {
	examples := "none"
	if len(template.ExampleCaptions) > 0 {
		if data, err := json.Marshal(template.ExampleCaptions); err == nil {
			examples = string(data)
		}
	}

	toneGuide := prompts.ToneGuides[string(req.Tone)]
	if toneGuide == "" {
		toneGuide = string(req.Tone)
	}
	audienceGuide := prompts.AudienceGuides[string(req.Audience)]
	if audienceGuide == "" {
		audienceGuide = string(req.Audience)
	}
	style := req.Style
	if style == "" {
		style = "none"
	}

	return fmt.Sprintf(prompts.CaptionUserPromptFormat,
		count,
		template.Name,
		template.Format,
		template.TextAreas,
		examples,
		brief.Summary(),
		toneGuide,
		audienceGuide,
		style,
		req.Language,
	)
}

// validateCaptions trims and checks the model output against the slot count.
// Extra captions are dropped; missing or empty ones fail the attempt.
func validateCaptions(captions []string, count int) ([]string, error) {
	if len(captions) < count {
		return nil, fmt.Errorf("expected %d captions, got %d", count, len(captions))
	}

	cleaned := make([]string, count)
	for i := 0; i < count; i++ {
		c := strings.TrimSpace(captions[i])
		if c == "" {
			return nil, fmt.Errorf("caption %d is empty", i+1)
		}
		cleaned[i] = c
	}

	return cleaned, nil
}
