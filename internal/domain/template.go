package domain

import "time"

// TemplateFormat describes the caption layout of a meme template.
type TemplateFormat string

const (
	FormatSingle      TemplateFormat = "single"
	FormatTwoPanel    TemplateFormat = "two-panel"
	FormatFourPanel   TemplateFormat = "four-panel"
	FormatCaptionOnly TemplateFormat = "caption-only"
)

// SlotCount returns the number of caption slots the format expects.
func (f TemplateFormat) SlotCount() int {
	switch f {
	case FormatTwoPanel:
		return 2
	case FormatFourPanel:
		return 4
	default:
		return 1
	}
}

// Valid reports whether the format is one of the known layouts.
func (f TemplateFormat) Valid() bool {
	switch f {
	case FormatSingle, FormatTwoPanel, FormatFourPanel, FormatCaptionOnly:
		return true
	}
	return false
}

// Template represents a meme template: an image skeleton plus the metadata
// the selection and caption stages work from.
type Template struct {
	TemplateID      string         `gorm:"type:text;primaryKey" json:"template_id"`
	Name            string         `gorm:"type:text;not null" json:"name"`
	Format          TemplateFormat `gorm:"type:text;not null;index:idx_templates_format" json:"format"`
	ImagePath       string         `gorm:"type:text" json:"image_path"`
	StorageKey      string         `gorm:"type:text" json:"storage_key,omitempty"`
	TextAreas       string         `gorm:"type:text" json:"text_areas"`
	AspectRatio     string         `gorm:"type:text" json:"aspect_ratio"`
	Tags            StringArray    `gorm:"type:text" json:"tags"`
	ToneAffinity    StringArray    `gorm:"type:text" json:"tone_affinity"`
	ExampleCaptions CaptionSets    `gorm:"type:text" json:"example_captions"`
	Constraints     JSONMap        `gorm:"type:text" json:"constraints,omitempty"`
	ExternalAssets  StringArray    `gorm:"type:text" json:"external_assets,omitempty"`
	Popularity      float64        `gorm:"default:0" json:"popularity"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Template.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Template) TableName() string {
	return "templates"
}

// HasTone reports whether the template's tone affinity includes tone.
func (t *Template) HasTone(tone string) bool {
	for _, a := range t.ToneAffinity {
		if a == tone {
			return true
		}
	}
	return false
}

// TemplateFilters narrows the template pool for a generation request.
type TemplateFilters struct {
	IncludeTags []string       `json:"include_tags,omitempty"`
	ExcludeTags []string       `json:"exclude_tags,omitempty"`
	TemplateIDs []string       `json:"template_ids,omitempty"`
	Format      TemplateFormat `json:"format,omitempty" binding:"omitempty,oneof=single two-panel four-panel caption-only"`
}
