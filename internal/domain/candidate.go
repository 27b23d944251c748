package domain

import "time"

// MemeScores holds the judge's per-dimension ratings, each in [0,1].
type MemeScores struct {
	Humor       float64 `json:"humor"`
	Relevance   float64 `json:"relevance"`
	Clarity     float64 `json:"clarity"`
	Safety      float64 `json:"safety"`
	Originality float64 `json:"originality"`
}

// Final blends the dimensions into a single ranking score. Safety is not
// blended in; it gates candidates instead (see the safety mode thresholds).
func (s MemeScores) Final() float64 {
	return 0.35*s.Humor + 0.35*s.Relevance + 0.15*s.Clarity + 0.15*s.Originality
}

// MemeCandidate represents one generated meme: a template, its captions,
// the rendered image and the judge's scores.
type MemeCandidate struct {
	CandidateID  string      `gorm:"type:text;primaryKey" json:"candidate_id"`
	TraceID      string      `gorm:"type:text;not null;index:idx_candidates_trace" json:"-"`
	TemplateID   string      `gorm:"type:text;not null" json:"template_id"`
	TemplateName string      `gorm:"type:text" json:"template_name"`
	Captions     StringArray `gorm:"type:text" json:"captions"`
	ImageURL     string      `gorm:"type:text" json:"image_url"`
	AltText      string      `gorm:"type:text" json:"alt_text,omitempty"`
	Explanation  string      `gorm:"type:text" json:"explanation,omitempty"`
	Scores       MemeScores  `gorm:"embedded;embeddedPrefix:score_" json:"scores"`
	FinalScore   float64     `gorm:"index:idx_candidates_final_score" json:"-"`
	Rank         int         `json:"rank"`
	Citations    StringArray `gorm:"type:text" json:"citations,omitempty"`
	CreatedAt    time.Time   `json:"-"`
}

// TableName returns the database table name for MemeCandidate.
func (MemeCandidate) TableName() string {
	return "meme_candidates"
}
