package domain

import "fmt"

// Tone steers the voice of generated captions.
type Tone string

const (
	ToneDry       Tone = "dry"
	ToneWholesome Tone = "wholesome"
	ToneSavage    Tone = "savage"
	ToneAbsurdist Tone = "absurdist"
	ToneNeutral   Tone = "neutral"
)

// Audience steers vocabulary and references in generated captions.
type Audience string

const (
	AudienceGeneral Audience = "general"
	AudienceTech    Audience = "tech"
	AudienceFinance Audience = "finance"
	AudienceSports  Audience = "sports"
)

// SafetyMode selects the safety score threshold candidates must clear.
type SafetyMode string

const (
	SafetyStrict   SafetyMode = "strict"
	SafetyStandard SafetyMode = "standard"
)

// Threshold returns the minimum safety score a candidate needs to survive.
func (m SafetyMode) Threshold() float64 {
	if m == SafetyStrict {
		return 0.8
	}
	return 0.5
}

// RenderSpec controls how candidate images are composited and encoded.
type RenderSpec struct {
	Size      int    `json:"size" binding:"omitempty,oneof=512 768 1024"`
	Format    string `json:"format" binding:"omitempty,oneof=png jpg webp"`
	Watermark *bool  `json:"watermark,omitempty"`
}

// WatermarkEnabled defaults to true when the field is omitted.
func (r *RenderSpec) WatermarkEnabled() bool {
	return r.Watermark == nil || *r.Watermark
}

// Request defaults.
const (
	DefaultNumCandidates = 10
	DefaultRenderSize    = 768
	DefaultRenderFormat  = "png"
	DefaultLanguage      = "en"
)

// MemeGenerateRequest is the body of POST /api/v1/memes/generate.
type MemeGenerateRequest struct {
	Prompt          string           `json:"prompt" binding:"required"`
	URL             string           `json:"url" binding:"omitempty,url"`
	NumCandidates   int              `json:"num_candidates"`
	Tone            Tone             `json:"tone" binding:"omitempty,oneof=dry wholesome savage absurdist neutral"`
	Audience        Audience         `json:"audience" binding:"omitempty,oneof=general tech finance sports"`
	Style           string           `json:"style"`
	SafetyMode      SafetyMode       `json:"safety_mode" binding:"omitempty,oneof=strict standard"`
	TemplateFilters *TemplateFilters `json:"template_filters"`
	Render          *RenderSpec      `json:"render"`
	Language        string           `json:"language"`
}

// Normalize fills defaults and clamps num_candidates to maxCandidates.
// Returns warnings for any field it had to adjust.
func (r *MemeGenerateRequest) Normalize(maxCandidates int) []string {
	var warnings []string

	if r.NumCandidates <= 0 {
		r.NumCandidates = DefaultNumCandidates
	}
	if r.NumCandidates > maxCandidates {
		warnings = append(warnings, fmt.Sprintf("num_candidates clamped to %d", maxCandidates))
		r.NumCandidates = maxCandidates
	}
	if r.Tone == "" {
		r.Tone = ToneNeutral
	}
	if r.Audience == "" {
		r.Audience = AudienceGeneral
	}
	if r.SafetyMode == "" {
		r.SafetyMode = SafetyStandard
	}
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.Render == nil {
		r.Render = &RenderSpec{}
	}
	if r.Render.Size == 0 {
		r.Render.Size = DefaultRenderSize
	}
	if r.Render.Format == "" {
		r.Render.Format = DefaultRenderFormat
	}

	return warnings
}

// MemeGenerateResponse is the body returned by POST /api/v1/memes/generate.
type MemeGenerateResponse struct {
	TraceID    string           `json:"trace_id"`
	Candidates []*MemeCandidate `json:"candidates"`
	Warnings   []string         `json:"warnings,omitempty"`
}
