package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
	"github.com/memelab/memeforge/internal/storage"
)

// SeedService loads the template catalog into storage, Qdrant, and the
// database
type SeedService struct {
	templateRepo *repository.TemplateRepository
	vectorRepo   *repository.TemplateVectorRepository
	jobRepo      *repository.SeedJobRepository
	qdrantRepo   *repository.QdrantRepository
	storage      storage.ObjectStorage
	embedding    *EmbeddingService
	logger       *logger.Logger
	workers      int
	collection   string
}

// SeedConfig holds configuration for the seed service
type SeedConfig struct {
	Workers    int
	Collection string
}

// NewSeedService creates a new seed service
func NewSeedService(
	templateRepo *repository.TemplateRepository,
	vectorRepo *repository.TemplateVectorRepository,
	jobRepo *repository.SeedJobRepository,
	qdrantRepo *repository.QdrantRepository,
	objectStorage storage.ObjectStorage,
	embedding *EmbeddingService,
	log *logger.Logger,
	cfg *SeedConfig,
) *SeedService {
	return &SeedService{
		templateRepo: templateRepo,
		vectorRepo:   vectorRepo,
		jobRepo:      jobRepo,
		qdrantRepo:   qdrantRepo,
		storage:      objectStorage,
		embedding:    embedding,
		logger:       log,
		workers:      cfg.Workers,
		collection:   cfg.Collection,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *SeedService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// SeedStats holds statistics for a seeding run
type SeedStats struct {
	TotalItems     int64
	ProcessedItems int64
	SkippedItems   int64
	FailedItems    int64
	StartTime      time.Time
	EndTime        time.Time
}

// SeedOptions holds options for seeding
type SeedOptions struct {
	Force bool // If true, re-embed and re-upload templates that are already seeded
	Limit int  // Maximum number of templates to process (0 = all)
}

// templateCatalog is the shape of data/templates.json
type templateCatalog struct {
	Templates []*domain.Template `json:"templates"`
}

// LoadCatalog reads and parses a template catalog file.
// Parameters:
//   - path: catalog JSON path ({"templates": [...]}).
//
// Returns:
//   - []*domain.Template: parsed templates.
//   - error: non-nil if the file is missing or malformed.
func LoadCatalog(path string) ([]*domain.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog templateCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	for _, t := range catalog.Templates {
		if t.TemplateID == "" {
			return nil, fmt.Errorf("catalog contains a template without template_id")
		}
		if !t.Format.Valid() {
			return nil, fmt.Errorf("template %s has unknown format %q", t.TemplateID, t.Format)
		}
	}

	return catalog.Templates, nil
}

// errSkipSeeded is a sentinel error to indicate an already-seeded template skip
var errSkipSeeded = fmt.Errorf("skipped: already seeded")

// Run seeds the catalog at catalogPath.
// Parameters:
//   - ctx: context for cancellation.
//   - catalogPath: path to the catalog JSON.
//   - opts: force/limit options (nil for defaults).
//
// Returns:
//   - *SeedStats: per-run counters.
//   - error: non-nil if the catalog cannot be loaded or the job row fails.
func (s *SeedService) Run(ctx context.Context, catalogPath string, opts *SeedOptions) (*SeedStats, error) {
	if opts == nil {
		opts = &SeedOptions{}
	}

	stats := &SeedStats{
		StartTime: time.Now().UTC(),
	}

	templates, err := LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}

	if opts.Limit > 0 && len(templates) > opts.Limit {
		templates = templates[:opts.Limit]
	}
	stats.TotalItems = int64(len(templates))

	job := &domain.SeedJob{
		ID:          uuid.New().String(),
		CatalogPath: catalogPath,
		Status:      domain.JobStatusRunning,
		TotalItems:  len(templates),
		StartedAt:   &stats.StartTime,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create seed job: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		"job_id":  job.ID,
		"catalog": catalogPath,
		"total":   stats.TotalItems,
		"force":   opts.Force,
	}).Info("Starting template seeding")

	// Create work channel and results channel
	templatesChan := make(chan *domain.Template, s.workers*2)
	resultsChan := make(chan *seedResult, s.workers*2)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID, templatesChan, resultsChan, opts)
		}(i)
	}

	// Start result collector
	var errorLines []string
	var errorMu sync.Mutex
	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			atomic.AddInt64(&stats.ProcessedItems, 1)
			if result.skipped {
				atomic.AddInt64(&stats.SkippedItems, 1)
			} else if result.err != nil {
				atomic.AddInt64(&stats.FailedItems, 1)
				errorMu.Lock()
				errorLines = append(errorLines, fmt.Sprintf("%s: %v", result.templateID, result.err))
				errorMu.Unlock()
				s.log(ctx).WithFields(logger.Fields{
					"template_id": result.templateID,
				}).WithError(result.err).Error("Failed to seed template")
			}
		}
		close(done)
	}()

	// Feed templates to workers
	for _, template := range templates {
		select {
		case templatesChan <- template:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Close work channel and wait for workers
	close(templatesChan)
	wg.Wait()

	// Close results channel and wait for collector
	close(resultsChan)
	<-done

	stats.EndTime = time.Now().UTC()

	// Finalize job row
	job.Status = domain.JobStatusCompleted
	if stats.FailedItems > 0 && stats.FailedItems == stats.TotalItems {
		job.Status = domain.JobStatusFailed
	}
	job.ProcessedItems = int(stats.ProcessedItems)
	job.SkippedItems = int(stats.SkippedItems)
	job.FailedItems = int(stats.FailedItems)
	job.CompletedAt = &stats.EndTime
	job.ErrorLog = strings.Join(errorLines, "\n")
	if err := s.jobRepo.Update(ctx, job); err != nil {
		s.log(ctx).WithError(err).Error("Failed to finalize seed job")
	}

	s.log(ctx).WithFields(logger.Fields{
		"job_id":    job.ID,
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"skipped":   stats.SkippedItems,
		"failed":    stats.FailedItems,
		"duration":  stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Template seeding completed")

	return stats, nil
}

type seedResult struct {
	templateID string
	skipped    bool
	err        error
}

func (s *SeedService) worker(ctx context.Context, workerID int, templates <-chan *domain.Template, results chan<- *seedResult, opts *SeedOptions) {
	for template := range templates {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := &seedResult{templateID: template.TemplateID}

		if err := s.processTemplate(ctx, template, opts); err != nil {
			if err == errSkipSeeded {
				result.skipped = true
			} else {
				result.err = err
			}
		}

		results <- result
	}
}

func (s *SeedService) processTemplate(ctx context.Context, template *domain.Template, opts *SeedOptions) error {
	// Check bookkeeping unless forced
	if !opts.Force {
		seeded, err := s.vectorRepo.ExistsByTemplateAndCollection(ctx, template.TemplateID, s.collection)
		if err != nil {
			return fmt.Errorf("failed to check vector bookkeeping: %w", err)
		}
		if seeded {
			return errSkipSeeded
		}
	}

	// Read template image
	imageData, err := os.ReadFile(template.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to read template image: %w", err)
	}

	ext := strings.TrimPrefix(filepath.Ext(template.ImagePath), ".")
	if ext == "" {
		ext = "png"
	}

	// External APIs first: nothing to roll back if they fail
	description := TemplateDescription(template)
	embedding, err := s.embedding.Embed(ctx, description)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	// Upload image unless it is already in storage
	storageKey := fmt.Sprintf("templates/%s.%s", template.TemplateID, ext)
	contentType := getContentType(ext)

	existsInStorage, err := s.storage.Exists(ctx, storageKey)
	if err != nil {
		return fmt.Errorf("failed to check storage existence: %w", err)
	}

	uploaded := false
	if !existsInStorage || opts.Force {
		if err := s.storage.Upload(ctx, storageKey, bytes.NewReader(imageData), int64(len(imageData)), contentType); err != nil {
			return fmt.Errorf("failed to upload to storage: %w", err)
		}
		uploaded = true
	} else {
		s.log(ctx).WithField("storage_key", storageKey).Debug("Template image already in storage, skipping upload")
	}

	storageURL := s.storage.GetURL(storageKey)

	// Deterministic point id so re-seeding overwrites instead of duplicating
	pointID := TemplatePointID(template.TemplateID, s.collection)

	payload := &repository.TemplatePayload{
		TemplateID:   template.TemplateID,
		Name:         template.Name,
		Format:       string(template.Format),
		Tags:         template.Tags,
		ToneAffinity: template.ToneAffinity,
		Description:  description,
		StorageURL:   storageURL,
	}

	if err := s.qdrantRepo.Upsert(ctx, pointID, embedding, payload); err != nil {
		// Rollback: delete uploaded file ONLY if we uploaded it
		if uploaded {
			if delErr := s.storage.Delete(ctx, storageKey); delErr != nil {
				s.log(ctx).WithFields(logger.Fields{
					"storage_key": storageKey,
				}).WithError(delErr).Error("Failed to rollback storage upload")
			}
		}
		return fmt.Errorf("failed to upsert to Qdrant: %w", err)
	}

	// Record vector bookkeeping
	vector := &domain.TemplateVector{
		ID:             uuid.New().String(),
		TemplateID:     template.TemplateID,
		Collection:     s.collection,
		EmbeddingModel: s.embedding.GetModel(),
		QdrantPointID:  pointID,
		Status:         domain.TemplateVectorStatusActive,
	}
	if err := s.vectorRepo.Upsert(ctx, vector); err != nil {
		return fmt.Errorf("failed to record template vector: %w", err)
	}

	// Upsert catalog row
	template.StorageKey = storageKey
	if err := s.templateRepo.Upsert(ctx, template); err != nil {
		// Rollback: remove the Qdrant point and the uploaded file
		if delErr := s.qdrantRepo.Delete(ctx, pointID); delErr != nil {
			s.log(ctx).WithFields(logger.Fields{
				"template_id": template.TemplateID,
			}).WithError(delErr).Error("Failed to rollback Qdrant upsert")
		}
		if uploaded {
			if delErr := s.storage.Delete(ctx, storageKey); delErr != nil {
				s.log(ctx).WithFields(logger.Fields{
					"storage_key": storageKey,
				}).WithError(delErr).Error("Failed to rollback storage upload")
			}
		}
		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}

// TemplateDescription builds the text that gets embedded for a template:
// name, format, text areas, tags, and tone affinity in one passage.
func TemplateDescription(t *domain.Template) string {
	parts := []string{t.Name, string(t.Format)}
	if t.TextAreas != "" {
		parts = append(parts, t.TextAreas)
	}
	if len(t.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(t.Tags, ", "))
	}
	if len(t.ToneAffinity) > 0 {
		parts = append(parts, "tone: "+strings.Join(t.ToneAffinity, ", "))
	}
	return strings.Join(parts, ". ")
}

// TemplatePointID derives the deterministic Qdrant point id for a template
// in a collection (UUIDv5).
func TemplatePointID(templateID, collection string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(templateID+":"+collection)).String()
}

func getContentType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
