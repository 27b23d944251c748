package config

import (
	"fmt"
	"regexp"
	"strings"
)

// oSeriesPattern matches OpenAI reasoning models such as o1, o3-mini.
var oSeriesPattern = regexp.MustCompile(`^o(\d+)(-mini)?`)

// APIKey returns the provider API key for the given model name, falling
// back to the default model when model is empty. Provider specific
// substrings are checked before the generic "gpt" catch-all.
func (c *LLMConfig) APIKey(model string) (string, error) {
	if model == "" {
		model = c.Model
	}
	m := strings.ToLower(model)

	switch {
	case strings.Contains(m, "cerebras"):
		return c.Keys.Cerebras, nil
	case strings.Contains(m, "groq"):
		return c.Keys.Groq, nil
	case strings.Contains(m, "perplexity"):
		return c.Keys.Perplexity, nil
	case strings.Contains(m, "gemini"):
		return c.Keys.Gemini, nil
	case strings.Contains(m, "claude"), strings.Contains(m, "anthropic"):
		return c.Keys.Anthropic, nil
	case strings.Contains(m, "gpt"), oSeriesPattern.MatchString(m):
		return c.Keys.OpenAI, nil
	}

	return "", fmt.Errorf("no API key configured for model %q", model)
}

// BaseURL returns the OpenAI-compatible endpoint for the model's provider.
// Providers without one return an empty string.
func (c *LLMConfig) BaseURL(model string) string {
	if model == "" {
		model = c.Model
	}
	m := strings.ToLower(model)

	switch {
	case strings.Contains(m, "cerebras"):
		return "https://api.cerebras.ai/v1"
	case strings.Contains(m, "groq"):
		return "https://api.groq.com/openai/v1"
	case strings.Contains(m, "perplexity"):
		return "https://api.perplexity.ai"
	case strings.Contains(m, "gemini"):
		return "https://generativelanguage.googleapis.com/v1beta/openai"
	case strings.Contains(m, "gpt"), oSeriesPattern.MatchString(m):
		return "https://api.openai.com/v1"
	}

	return ""
}

// CaptionModelName returns the caption model, defaulting to the base model.
func (c *LLMConfig) CaptionModelName() string {
	if c.CaptionModel != "" {
		return c.CaptionModel
	}
	return c.Model
}

// JudgeModelName returns the scoring model, defaulting to the base model.
func (c *LLMConfig) JudgeModelName() string {
	if c.JudgeModel != "" {
		return c.JudgeModel
	}
	return c.Model
}
