package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Poster books documents into the ledger.
type Poster interface {
	Post(ctx context.Context, req accounting.PostingRequest) (accounting.PostingResult, error)
}

// PostDocumentJob drains posting requests queued by upstream modules.
type PostDocumentJob struct {
	Service Poster
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPostDocumentJob constructs the job handler.
func NewPostDocumentJob(service Poster, logger *slog.Logger, metrics *jobmetrics.Metrics) *PostDocumentJob {
	return &PostDocumentJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle posts one document. Conflicts are retried; rule violations are not.
func (j *PostDocumentJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("post document: service not configured")
	}
	var payload PostDocumentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("post document: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics().Track(TaskPostDocument)
	logger := j.log().With(slog.String("document_id", payload.DocumentID.String()))

	result, err := j.Service.Post(ctx, accounting.PostingRequest{
		DocumentID:   payload.DocumentID,
		Event:        payload.Event,
		Applications: payload.Applications,
		ActorID:      payload.ActorID,
	})
	if err != nil {
		tracker.End(err)
		if shared.IsPermanent(err) {
			logger.Warn("posting rejected", slog.Any("error", err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	logger.Debug("document posted", slog.String("reference", result.Document.Number), slog.String("batch_id", result.BatchID.String()))
	return tracker.End(nil)
}

func (j *PostDocumentJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PostDocumentJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPostDocument))
	}
	return slog.Default().With(slog.String("job", TaskPostDocument))
}
