package domain

import "time"

// TemplateVector represents the relationship between a template and its
// vector in a specific collection. This allows the same template to be
// embedded with different models, each vector in its own Qdrant collection.
type TemplateVector struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	TemplateID     string    `gorm:"type:text;not null;uniqueIndex:idx_template_vectors_tpl_collection" json:"template_id"`
	Collection     string    `gorm:"type:text;not null;uniqueIndex:idx_template_vectors_tpl_collection" json:"collection"`
	EmbeddingModel string    `gorm:"type:text;not null" json:"embedding_model"`
	QdrantPointID  string    `gorm:"type:text;not null" json:"qdrant_point_id"`
	Status         string    `gorm:"type:text;default:active" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func (TemplateVector) TableName() string {
	return "template_vectors"
}

// TemplateVectorStatus constants
const (
	TemplateVectorStatusActive  = "active"
	TemplateVectorStatusDeleted = "deleted"
)
