package domain

import "strings"

// StoryBrief is the structured summary an LLM distills from the user's
// prompt (and optionally a fetched URL). It drives template selection and
// caption writing.
type StoryBrief struct {
	Who            string   `json:"who"`
	What           string   `json:"what"`
	When           string   `json:"when"`
	Where          string   `json:"where"`
	KeyEvents      []string `json:"key_events"`
	MainTension    string   `json:"main_tension"`
	Sentiment      string   `json:"sentiment"`
	RequiredAssets []string `json:"required_assets,omitempty"`
}

// Summary flattens the brief into a single line of text, used as embedding
// input for template selection.
func (b *StoryBrief) Summary() string {
	parts := make([]string, 0, 8)
	for _, p := range []string{b.Who, b.What, b.When, b.Where, b.MainTension, b.Sentiment} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(b.KeyEvents) > 0 {
		parts = append(parts, strings.Join(b.KeyEvents, "; "))
	}
	return strings.Join(parts, ". ")
}
