package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookholmes/processor/internal/metrics"
)

// Physical books photographed at an angle are often localized as boxes, so
// both labels count as a book sighting.
var bookLabels = []string{"book", "box"}

// Any of these appearing in a catalog category tag marks the work as fiction.
var fictionKeywords = []string{"fiction", "novel", "stories", "fantasy", "sci-fi", "romance"}

// Pipeline sequences the detection stages for one analyze request. A
// Pipeline is stateless and safe for concurrent runs; each run owns its
// Result exclusively.
type Pipeline struct {
	vision    Vision
	title     TitleStrategy
	catalog   Catalog
	scraper   Scraper
	artifacts BlobStore
	logger    *zap.Logger
}

// NewPipeline wires the pipeline's collaborators. artifacts may be nil to
// disable debug archival.
func NewPipeline(
	vision Vision,
	title TitleStrategy,
	catalog Catalog,
	scraper Scraper,
	artifacts BlobStore,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		vision:    vision,
		title:     title,
		catalog:   catalog,
		scraper:   scraper,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Run executes stages S0-S3 in order, emitting an event after each success
// and exactly one terminal event at the end. It never returns an error:
// stage failures short-circuit the remaining stages and land in
// Result.Error while the fields accumulated so far are preserved.
func (p *Pipeline) Run(ctx context.Context, image []byte, emit EmitFunc) Result {
	if emit == nil {
		emit = func(Event) {}
	}
	runID := uuid.NewString()
	log := p.logger.With(zap.String("run_id", runID))
	var res Result

	if err := p.stage("classify", func() error { return p.classify(ctx, image, log) }); err != nil {
		return p.finish(ctx, runID, res, emit, err, log)
	}
	res.IsBook = true
	emit(Event{Type: EventBookDetected, Data: Result{IsBook: true}})

	var title string
	err := p.stage("title", func() error {
		var stageErr error
		title, stageErr = p.title.ExtractTitle(ctx, image)
		return stageErr
	})
	if err != nil {
		return p.finish(ctx, runID, res, emit, err, log)
	}
	res.Title = title
	emit(Event{Type: EventTitleExtracted, Data: Result{Title: title}})

	var record CatalogRecord
	err = p.stage("catalog", func() error {
		var stageErr error
		record, stageErr = p.catalog.LookupByTitle(ctx, title)
		return stageErr
	})
	if err != nil {
		return p.finish(ctx, runID, res, emit, err, log)
	}
	res.Category = classifyCategory(record.Categories)
	emit(Event{Type: EventCategoryResolved, Data: Result{Category: res.Category}})
	if record.Description != "" {
		res.Description = record.Description
		emit(Event{Type: EventDescriptionFound, Data: Result{Description: record.Description}})
	}

	var excerpt Excerpt
	err = p.stage("excerpt", func() error {
		if record.PreviewURL == "" {
			return ErrNoContent
		}
		var stageErr error
		excerpt, stageErr = p.scraper.Scrape(ctx, record.PreviewURL, pageSelector(res.Category))
		if stageErr != nil {
			return stageErr
		}
		if strings.TrimSpace(excerpt.Text) == "" {
			return ErrNoContent
		}
		return nil
	})
	p.archive(ctx, runID, "screenshot.png", "image/png", excerpt.Screenshot, log)
	if err != nil {
		return p.finish(ctx, runID, res, emit, err, log)
	}
	res.Excerpt = excerpt.Text

	return p.finish(ctx, runID, res, emit, nil, log)
}

// stage times one pipeline stage and records its outcome.
func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveStage(name, err == nil, time.Since(start))
	return err
}

func (p *Pipeline) classify(ctx context.Context, image []byte, log *zap.Logger) error {
	objects, err := p.vision.DetectObjects(ctx, image)
	if err != nil {
		log.Warn("object localization failed", zap.Error(err))
		return ErrNotABook
	}
	for _, obj := range objects {
		label := strings.ToLower(obj.Label)
		for _, want := range bookLabels {
			if strings.Contains(label, want) {
				log.Info("book detected",
					zap.String("label", obj.Label),
					zap.Float64("confidence", obj.Confidence),
				)
				return nil
			}
		}
	}
	log.Info("no book label among localized objects", zap.Int("objects", len(objects)))
	return ErrNotABook
}

// finish emits the single terminal event, archives the result snapshot, and
// returns the final Result.
func (p *Pipeline) finish(ctx context.Context, runID string, res Result, emit EmitFunc, err error, log *zap.Logger) Result {
	if err != nil {
		res.Error = err.Error()
		log.Info("pipeline run failed", zap.String("error", res.Error))
		emit(Event{Type: EventError, Data: res})
		metrics.ObservePipeline("error")
	} else {
		log.Info("pipeline run completed", zap.String("title", res.Title))
		emit(Event{Type: EventCompleted, Data: res})
		metrics.ObservePipeline("completed")
	}
	if snapshot, marshalErr := json.Marshal(res); marshalErr == nil {
		p.archive(ctx, runID, "result.json", "application/json", snapshot, log)
	}
	return res
}

// archive writes a debug artifact; failures are logged, never surfaced.
func (p *Pipeline) archive(ctx context.Context, runID, name, contentType string, data []byte, log *zap.Logger) {
	if p.artifacts == nil || len(data) == 0 {
		return
	}
	path := fmt.Sprintf("runs/%s/%s", runID, name)
	uri, err := p.artifacts.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		log.Warn("artifact write failed", zap.String("path", path), zap.Error(err))
		return
	}
	log.Debug("artifact stored", zap.String("uri", uri))
}

// classifyCategory tests catalog tags against the fiction keyword set.
func classifyCategory(categories []string) Category {
	for _, cat := range categories {
		lower := strings.ToLower(cat)
		for _, kw := range fictionKeywords {
			if strings.Contains(lower, kw) {
				return CategoryFiction
			}
		}
	}
	return CategoryNonFiction
}

// pageSelector picks how deep the scraper should capture: fiction works
// bury front matter deeper, so the second visible page is used.
func pageSelector(cat Category) string {
	if cat == CategoryFiction {
		return "2"
	}
	return "1"
}
