// Package pipeline orchestrates the free-swim refinement pass: scrape each
// facility's detail page, supplement with OCR where the source publishes
// images, extract structured schedule rows through the LLM client, and
// persist them idempotently. One bad source never aborts the batch.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/poolhopper/freeswim-etl/internal/domain"
	"github.com/poolhopper/freeswim-etl/internal/observability"
)

// Fetcher retrieves a facility detail page as visible text plus candidate
// timetable image URLs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (domain.Page, error)
}

// Recognizer extracts text from one timetable image.
type Recognizer interface {
	Recognize(ctx context.Context, imageURL string) (string, error)
}

// Extractor sends assembled page and OCR text to the model and returns its
// raw reply. It owns its internal rate-limit retry budget.
type Extractor interface {
	Extract(ctx context.Context, pageText, ocrText string) (string, error)
}

// RecordStore is the slice of the entity record store the refiner needs.
type RecordStore interface {
	ListFacilities(ctx context.Context) ([]domain.Facility, error)
	ReplaceSchedules(ctx context.Context, poolCode string, records []domain.ScheduleRecord) error
}

// Publisher announces a successfully refined facility to downstream
// consumers. Optional; a nil Publisher disables publishing.
type Publisher interface {
	PublishRefined(ctx context.Context, poolCode string, records []domain.ScheduleRecord) error
}

// BatchResult is the per-facility outcome tally of one refinement pass.
type BatchResult struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Refiner runs the multi-stage refinement pass over the facility catalog.
type Refiner struct {
	fetcher    Fetcher
	recognizer Recognizer // nil disables the OCR stage
	extractor  Extractor
	store      RecordStore
	publisher  Publisher // nil disables event publishing
	throttle   *rate.Limiter
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
}

// New creates a Refiner. The throttle is the explicit inter-facility
// rate-limit policy; pass rate.NewLimiter(rate.Inf, 1) to disable it.
func New(f Fetcher, r Recognizer, e Extractor, s RecordStore, p Publisher,
	throttle *rate.Limiter, logger *slog.Logger, metrics *observability.Metrics) *Refiner {
	if throttle == nil {
		throttle = rate.NewLimiter(rate.Inf, 1)
	}
	return &Refiner{
		fetcher:    f,
		recognizer: r,
		extractor:  e,
		store:      s,
		publisher:  p,
		throttle:   throttle,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once at least one refinement pass has
// completed, or an error describing why the service is not yet ready.
func (r *Refiner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no refinement pass has completed yet")
	}
	return nil
}

// Run executes refinement passes over the stored catalog every interval
// until the context is cancelled.
func (r *Refiner) Run(ctx context.Context, interval time.Duration) error {
	r.logger.Info("refinement loop started", "interval", interval)

	for {
		facilities, err := r.store.ListFacilities(ctx)
		if err != nil {
			r.logger.Error("list facilities failed", "error", err)
		} else {
			result, err := r.RefineAll(ctx, facilities)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("refinement pass aborted", "error", err)
			}
			r.logger.Info("refinement pass finished",
				"succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
		}

		if !sleepWithContext(ctx, interval) {
			r.logger.Info("refinement loop stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RefineAll processes the facility list sequentially in catalog order.
// Every stage failure is caught here, logged with the facility and stage,
// and converted into an outcome counter; the only way out before the end of
// the list is context cancellation, checked between facilities. In-flight
// network calls are left to their own transport timeouts.
func (r *Refiner) RefineAll(ctx context.Context, facilities []domain.Facility) (BatchResult, error) {
	start := time.Now()
	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)

	var result BatchResult
	for _, facility := range facilities {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.throttle.Wait(ctx); err != nil {
			return result, err
		}

		switch r.refineOne(ctx, facility) {
		case outcomeSucceeded:
			result.Succeeded++
			r.metrics.FacilitiesProcessed.WithLabelValues("succeeded").Inc()
		case outcomeFailed:
			result.Failed++
			r.metrics.FacilitiesProcessed.WithLabelValues("failed").Inc()
		case outcomeSkipped:
			result.Skipped++
			r.metrics.FacilitiesProcessed.WithLabelValues("skipped").Inc()
		}
	}

	r.metrics.PassDuration.Observe(time.Since(start).Seconds())
	r.ready.Store(true)
	return result, nil
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeSkipped
)

// refineOne runs the full stage chain for a single facility.
func (r *Refiner) refineOne(ctx context.Context, facility domain.Facility) outcome {
	log := r.logger.With("pool_code", facility.PoolCode)

	if !facility.HasSource() {
		log.Debug("no usable source, skipping")
		return outcomeSkipped
	}

	page, err := r.fetcher.Fetch(ctx, facility.URL)
	if err != nil {
		log.Error("fetch failed", "stage", domain.StageFetch, "url", facility.URL, "error", err)
		r.metrics.StageErrors.WithLabelValues(string(domain.StageFetch)).Inc()
		return outcomeFailed
	}

	ocrText := r.recognizeImages(ctx, log, facility, page.ImageURLs)

	reply, err := r.extractor.Extract(ctx, page.Text, ocrText)
	if err != nil {
		log.Error("extraction failed", "stage", domain.StageExtract, "error", err)
		r.metrics.StageErrors.WithLabelValues(string(domain.StageExtract)).Inc()
		return outcomeFailed
	}

	parsed, err := domain.ParseReply(reply)
	if err != nil {
		log.Error("reply rejected", "stage", domain.StageParse, "error", err)
		r.metrics.StageErrors.WithLabelValues(string(domain.StageParse)).Inc()
		return outcomeFailed
	}
	if parsed.Kind == domain.ReplyEmpty {
		log.Warn("no schedule data extracted")
		return outcomeSkipped
	}

	records := r.normalize(log, facility.PoolCode, parsed.Records)
	if len(records) == 0 {
		log.Error("every extracted record failed validation", "stage", domain.StageParse)
		r.metrics.StageErrors.WithLabelValues(string(domain.StageParse)).Inc()
		return outcomeFailed
	}

	if err := r.store.ReplaceSchedules(ctx, facility.PoolCode, records); err != nil {
		log.Error("persist failed", "stage", domain.StagePersist, "error", err)
		r.metrics.StageErrors.WithLabelValues(string(domain.StagePersist)).Inc()
		return outcomeFailed
	}
	r.metrics.RecordsPersisted.Add(float64(len(records)))

	if r.publisher != nil {
		if err := r.publisher.PublishRefined(ctx, facility.PoolCode, records); err != nil {
			// Publishing is best-effort; the records are already persisted.
			log.Warn("publish refined event failed", "error", err)
		}
	}

	log.Info("facility refined", "records", len(records))
	return outcomeSucceeded
}

// recognizeImages runs OCR over the page's candidate images for facilities
// whose source kind publishes timetables as pictures. Per-image failures
// drop that image's text and continue; the result is the join of all
// successful recognitions.
func (r *Refiner) recognizeImages(ctx context.Context, log *slog.Logger, facility domain.Facility, imageURLs []string) string {
	if r.recognizer == nil || !facility.WantsOCR() || len(imageURLs) == 0 {
		return ""
	}

	var texts []string
	for _, imageURL := range imageURLs {
		text, err := r.recognizer.Recognize(ctx, imageURL)
		if err != nil {
			log.Warn("ocr failed, dropping image", "stage", domain.StageOCR, "image_url", imageURL, "error", err)
			r.metrics.OcrRequests.WithLabelValues("error").Inc()
			continue
		}
		r.metrics.OcrRequests.WithLabelValues("success").Inc()
		if text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}

// normalize validates parsed candidates and stamps them with the facility
// key and ingestion time. Invalid candidates are dropped individually; the
// model occasionally invents a day string or a lopsided time range, and one
// bad row should not discard its siblings.
func (r *Refiner) normalize(log *slog.Logger, poolCode string, candidates []domain.ScheduleRecord) []domain.ScheduleRecord {
	now := domain.Clock().Now()

	records := make([]domain.ScheduleRecord, 0, len(candidates))
	for _, candidate := range candidates {
		candidate.PoolCode = poolCode
		candidate.CreatedAt = now
		if err := candidate.Validate(); err != nil {
			log.Warn("dropping invalid record", "day", candidate.Day, "time_range", candidate.TimeRange, "error", err)
			continue
		}
		records = append(records, candidate)
	}
	return records
}

// sleepWithContext pauses for d, returning false if ctx is cancelled first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
