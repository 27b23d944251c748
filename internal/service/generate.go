package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
)

// Pipeline outcome sentinels. Handlers map these onto HTTP statuses.
var (
	// ErrNoTemplatesMatch means the catalog filters left nothing to select from.
	ErrNoTemplatesMatch = errors.New("no templates match the requested filters")
	// ErrNoCandidates means every candidate failed or was dropped by the safety screen.
	ErrNoCandidates = errors.New("no candidates survived generation")
)

// GenerateService runs the meme generation pipeline: brief, selection,
// captioning, rendering, scoring, assembly.
type GenerateService struct {
	templateRepo   *repository.TemplateRepository
	candidateRepo  *repository.CandidateRepository
	requestLogRepo *repository.RequestLogRepository
	brief          *BriefService
	selector       *SelectorService
	caption        *CaptionService
	render         *RenderService
	judge          *JudgeService
	logger         *logger.Logger
	workers        int
	maxCandidates  int
}

// GenerateConfig holds configuration for the generate service
type GenerateConfig struct {
	Workers       int
	MaxCandidates int
}

// NewGenerateService creates a new generate service
func NewGenerateService(
	templateRepo *repository.TemplateRepository,
	candidateRepo *repository.CandidateRepository,
	requestLogRepo *repository.RequestLogRepository,
	brief *BriefService,
	selector *SelectorService,
	caption *CaptionService,
	render *RenderService,
	judge *JudgeService,
	log *logger.Logger,
	cfg *GenerateConfig,
) *GenerateService {
	return &GenerateService{
		templateRepo:   templateRepo,
		candidateRepo:  candidateRepo,
		requestLogRepo: requestLogRepo,
		brief:          brief,
		selector:       selector,
		caption:        caption,
		render:         render,
		judge:          judge,
		logger:         log,
		workers:        cfg.Workers,
		maxCandidates:  cfg.MaxCandidates,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *GenerateService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Generate runs the full pipeline for one admitted request. Exactly one
// request_logs row is written per call, success or failure.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller.
//   - req: generate request (validated by binding; normalized here).
//
// Returns:
//   - *domain.MemeGenerateResponse: trace id, ranked candidates, warnings.
//     Non-nil even on pipeline errors so callers can surface trace id and
//     warnings.
//   - error: ErrNoTemplatesMatch, ErrNoCandidates, or an internal failure.
func (s *GenerateService) Generate(ctx context.Context, userID string, req *domain.MemeGenerateRequest) (*domain.MemeGenerateResponse, error) {
	start := time.Now()
	traceID := uuid.New().String()
	warnings := req.Normalize(s.maxCandidates)

	log := s.log(ctx).WithFields(logger.Fields{
		logger.FieldTraceID: traceID,
		logger.FieldUserID:  userID,
	})

	resp := &domain.MemeGenerateResponse{TraceID: traceID}

	fail := func(err error) (*domain.MemeGenerateResponse, error) {
		resp.Warnings = warnings
		s.writeRequestLog(ctx, userID, traceID, req, domain.RequestStatusFailed, 0, warnings, start)
		return resp, err
	}

	// Catalog
	catalog, err := s.templateRepo.All(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to load template catalog: %w", err))
	}
	templates := make([]*domain.Template, len(catalog))
	for i := range catalog {
		templates[i] = &catalog[i]
	}

	filtered := FilterTemplates(templates, req.TemplateFilters)
	if len(filtered) == 0 {
		return fail(ErrNoTemplatesMatch)
	}

	// Stage 1: story brief
	brief, briefWarnings := s.brief.Generate(ctx, req.Prompt, req.URL)
	warnings = append(warnings, briefWarnings...)

	// Stage 2: template selection
	rankings, selWarnings := s.selector.Select(ctx, filtered, brief, string(req.Tone), req.NumCandidates)
	warnings = append(warnings, selWarnings...)
	if len(rankings) == 0 {
		return fail(ErrNoTemplatesMatch)
	}

	log.WithFields(logger.Fields{
		"templates_selected": len(rankings),
		"num_requested":      req.NumCandidates,
	}).Info("Templates selected")

	// Stages 3-5: caption, render, score per template
	candidates, pipelineWarnings := s.runPipeline(ctx, rankings, brief, req, traceID)
	warnings = append(warnings, pipelineWarnings...)

	// Stage 6: assembly
	threshold := req.SafetyMode.Threshold()
	popularity := make(map[string]float64, len(rankings))
	for _, r := range rankings {
		popularity[r.Template.TemplateID] = r.Template.Popularity
	}

	var kept []*domain.MemeCandidate
	for _, c := range candidates {
		if c.Scores.Safety < threshold {
			warnings = append(warnings, fmt.Sprintf("candidate from template %s dropped by safety screen", c.TemplateName))
			continue
		}
		c.FinalScore = c.Scores.Final()
		kept = append(kept, c)
	}

	if len(kept) == 0 {
		return fail(ErrNoCandidates)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].FinalScore != kept[j].FinalScore {
			return kept[i].FinalScore > kept[j].FinalScore
		}
		return popularity[kept[i].TemplateID] > popularity[kept[j].TemplateID]
	})
	for i, c := range kept {
		c.Rank = i + 1
	}

	if err := s.candidateRepo.CreateBatch(ctx, kept); err != nil {
		log.WithError(err).Error("Failed to persist candidates")
	}

	// Returned templates earn popularity for future selection
	for _, c := range kept {
		if err := s.templateRepo.IncrementPopularity(ctx, c.TemplateID, 1); err != nil {
			log.WithError(err).Warn("Failed to bump template popularity")
		}
	}

	status := domain.RequestStatusOK
	if len(kept) < req.NumCandidates {
		status = domain.RequestStatusPartial
	}
	s.writeRequestLog(ctx, userID, traceID, req, status, len(kept), warnings, start)

	log.WithFields(logger.Fields{
		logger.FieldCount:      len(kept),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldStatus:     string(status),
	}).Info("Meme generation completed")

	resp.Candidates = kept
	resp.Warnings = warnings
	return resp, nil
}

type candidateResult struct {
	candidate *domain.MemeCandidate
	warnings  []string
	err       error
	template  string
}

// runPipeline fans the selected templates out to a bounded worker pool. A
// failed template drops out with a warning; it never fails the request.
func (s *GenerateService) runPipeline(ctx context.Context, rankings []TemplateRanking, brief *domain.StoryBrief, req *domain.MemeGenerateRequest, traceID string) ([]*domain.MemeCandidate, []string) {
	workers := s.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(rankings) {
		workers = len(rankings)
	}

	workChan := make(chan TemplateRanking, len(rankings))
	resultsChan := make(chan *candidateResult, len(rankings))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ranking := range workChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				candidate, warns, err := s.buildCandidate(ctx, ranking.Template, brief, req, traceID)
				resultsChan <- &candidateResult{
					candidate: candidate,
					warnings:  warns,
					err:       err,
					template:  ranking.Template.Name,
				}
			}
		}()
	}

	var candidates []*domain.MemeCandidate
	var warnings []string
	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			warnings = append(warnings, result.warnings...)
			if result.err != nil {
				warnings = append(warnings, fmt.Sprintf("template %s dropped: %v", result.template, result.err))
				s.log(ctx).WithField(logger.FieldTraceID, traceID).WithError(result.err).Warn("Candidate failed")
				continue
			}
			candidates = append(candidates, result.candidate)
		}
		close(done)
	}()

	for _, ranking := range rankings {
		workChan <- ranking
	}
	close(workChan)
	wg.Wait()

	close(resultsChan)
	<-done

	return candidates, warnings
}

// buildCandidate runs stages 3-5 for one template.
func (s *GenerateService) buildCandidate(ctx context.Context, template *domain.Template, brief *domain.StoryBrief, req *domain.MemeGenerateRequest, traceID string) (*domain.MemeCandidate, []string, error) {
	var warnings []string
	candidateID := uuid.New().String()

	captions, err := s.caption.GenerateCaptions(ctx, template, brief, req)
	if err != nil {
		return nil, warnings, err
	}

	rendered, err := s.render.Render(ctx, template, captions, req.Render, traceID, candidateID)
	if err != nil {
		return nil, warnings, err
	}
	warnings = append(warnings, rendered.Warnings...)

	scores, explanation, degraded := s.judge.Score(ctx, template, captions, brief, string(req.Tone))
	if degraded {
		warnings = append(warnings, fmt.Sprintf("scores for template %s are heuristic", template.Name))
	}

	return &domain.MemeCandidate{
		CandidateID:  candidateID,
		TraceID:      traceID,
		TemplateID:   template.TemplateID,
		TemplateName: template.Name,
		Captions:     captions,
		ImageURL:     rendered.ImageURL,
		AltText:      rendered.AltText,
		Explanation:  explanation,
		Scores:       scores,
		CreatedAt:    time.Now().UTC(),
	}, warnings, nil
}

func (s *GenerateService) writeRequestLog(ctx context.Context, userID, traceID string, req *domain.MemeGenerateRequest, status domain.RequestStatus, returned int, warnings []string, start time.Time) {
	entry := &domain.RequestLog{
		ID:           uuid.New().String(),
		TraceID:      traceID,
		UserID:       userID,
		Prompt:       req.Prompt,
		SourceURL:    req.URL,
		Language:     req.Language,
		Tone:         string(req.Tone),
		Audience:     string(req.Audience),
		SafetyMode:   string(req.SafetyMode),
		NumRequested: req.NumCandidates,
		NumReturned:  returned,
		Status:       status,
		Warnings:     warnings,
		DurationMs:   time.Since(start).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.requestLogRepo.Create(ctx, entry); err != nil {
		s.log(ctx).WithField(logger.FieldTraceID, traceID).WithError(err).Error("Failed to write request log")
	}
}
