// Package consumer runs the content-processing pipeline: it pulls pending
// submissions off the durable log, drives analysis, embedding, duplicate
// detection, metric recording and the terminal content write, then emits
// the processed event. A single bad message never stalls the group, and the
// log offset is acknowledged only after the terminal write succeeds.
package consumer

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/modpipe/modpipe"
	"github.com/modpipe/modpipe/analyze"
	"github.com/modpipe/modpipe/dedupe"
	"github.com/modpipe/modpipe/embedding"
	"github.com/modpipe/modpipe/events"
	"github.com/modpipe/modpipe/metrics"
	"github.com/modpipe/modpipe/search"
)

// Service wires the pipeline's collaborators together. Construct one per
// process with NewService and run workers with Run or RunWorkers; there is
// no implicit global state.
type Service struct {
	opts modpipe.Options

	stream    modpipe.StreamLog
	docs      modpipe.DocumentStore
	metrics   *metrics.Aggregator
	detector  *dedupe.Detector
	index     *search.Index
	publisher *events.Publisher

	// consumerID is unique per process instance so concurrently running
	// instances sharing the group never collide.
	consumerID string

	// indexReady is false when index creation failed at startup; vector
	// upserts then degrade to best-effort skips instead of failing items.
	indexReady bool
}

// NewService constructs the pipeline service from explicit collaborator
// references.
func NewService(
	opts modpipe.Options,
	stream modpipe.StreamLog,
	docs modpipe.DocumentStore,
	agg *metrics.Aggregator,
	detector *dedupe.Detector,
	index *search.Index,
	publisher *events.Publisher,
) *Service {
	return &Service{
		opts:       opts,
		stream:     stream,
		docs:       docs,
		metrics:    agg,
		detector:   detector,
		index:      index,
		publisher:  publisher,
		consumerID: fmt.Sprintf("consumer-%d-%s", time.Now().UnixNano(), modpipe.NewID()[:8]),
	}
}

// ConsumerID returns the process-unique consumer identity used against the
// group.
func (s *Service) ConsumerID() string {
	return s.consumerID
}

// Setup registers the consumer group, the vector index and the metric
// series. Creation is idempotent; a creation failure other than "already
// exists" is logged and the pipeline continues degraded, since content can
// still be recorded without a working index or series.
func (s *Service) Setup(ctx context.Context) {
	if err := s.stream.CreateGroup(ctx, s.opts.Stream, s.opts.Group); err != nil {
		log.Error("creating consumer group", "stream", s.opts.Stream, "group", s.opts.Group, "error", err)
	}

	s.indexReady = true
	if s.index != nil {
		if err := s.index.Setup(ctx); err != nil {
			log.Error("creating vector index, continuing without similarity indexing", "error", err)
			s.indexReady = false
		}
	} else {
		s.indexReady = false
	}

	if s.metrics != nil {
		if err := s.metrics.Setup(ctx, s.opts.MetricRetention); err != nil {
			log.Error("creating metric series, continuing degraded", "error", err)
		}
	}
}

// Submit validates a submission, creates its pending content record and
// appends it to the durable log. It returns the new content id.
func (s *Service) Submit(ctx context.Context, in modpipe.SubmissionInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}

	item := modpipe.ContentItem{
		ID:          modpipe.NewID(),
		Text:        in.Text,
		Category:    in.Category,
		UserID:      in.UserID,
		Source:      in.Source,
		SubmittedAt: time.Now().UTC(),
		Status:      modpipe.StatusPending,
	}

	if err := s.putItem(ctx, item); err != nil {
		return "", err
	}
	if err := modpipe.Retry(ctx, func(ctx context.Context) error {
		_, err := s.stream.Append(ctx, s.opts.Stream, map[string]any{"content_id": item.ID})
		if modpipe.ShouldRetry(err) {
			return retry.RetryableError(modpipe.Error{Code: modpipe.TransientIO, Err: err})
		}
		return err
	}, nil); err != nil {
		return "", err
	}
	return item.ID, nil
}

// Run is one long-lived sequential worker loop bound to the configured
// group. It blocks pulling batches, processes messages strictly in order,
// and honors cancellation before each pull and between messages; an
// in-flight message always completes before exit.
func (s *Service) Run(ctx context.Context) error {
	return s.runAs(ctx, s.consumerID)
}

// RunWorkers runs n worker loops with distinct consumer identities and
// waits for all of them. Each loop remains strictly sequential internally;
// the shared aggregator and detector are safe for concurrent callers.
func (s *Service) RunWorkers(ctx context.Context, n int) error {
	if n <= 1 {
		return s.Run(ctx)
	}
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		consumer := fmt.Sprintf("%s-%d", s.consumerID, i)
		eg.Go(func() error {
			return s.runAs(ctx, consumer)
		})
	}
	return eg.Wait()
}

func (s *Service) runAs(ctx context.Context, consumer string) error {
	log.Info("pipeline worker started", "consumer", consumer, "stream", s.opts.Stream, "group", s.opts.Group)
	for {
		if ctx.Err() != nil {
			log.Info("pipeline worker stopping", "consumer", consumer)
			return nil
		}

		batch, err := s.stream.ReadGroup(ctx, s.opts.Stream, s.opts.Group, consumer, s.opts.BatchSize, s.opts.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("reading from stream", "consumer", consumer, "error", err)
			if !sleep(ctx, s.opts.IdleSleep) {
				return nil
			}
			continue
		}
		if len(batch) == 0 {
			if !sleep(ctx, s.opts.IdleSleep) {
				return nil
			}
			continue
		}

		for _, msg := range batch {
			s.process(ctx, msg)
			// Finish the in-flight message, then honor cancellation
			// before starting the next one.
			if ctx.Err() != nil {
				log.Info("pipeline worker stopping mid-batch", "consumer", consumer)
				return nil
			}
		}
	}
}

// process runs one message through the state machine:
// Received -> Analyzed -> Enriched -> Recorded -> Published -> Done.
// Every failure is contained here; nothing escapes to crash the worker loop.
func (s *Service) process(ctx context.Context, msg modpipe.StreamMessage) {
	start := time.Now()

	id, ok := msg.Values["content_id"].(string)
	if !ok || id == "" {
		// Malformed entry: nothing to mark, drop it from the group.
		log.Warn("stream entry without content_id", "entry", msg.ID)
		s.ack(ctx, msg.ID)
		return
	}

	item, found, err := s.getItem(ctx, id)
	if err != nil {
		// Store unreachable after retries; leave unacked for redelivery.
		log.Error("loading content item", "content_id", id, "error", err)
		return
	}
	if !found {
		log.Warn("stream entry references missing content item", "content_id", id, "entry", msg.ID)
		s.ack(ctx, msg.ID)
		return
	}
	if item.Status.IsTerminal() {
		// Redelivered after a crash between terminal write and ack; the
		// terminal update happens exactly once, so only re-ack.
		log.Debug("skipping already processed item", "content_id", id, "status", item.Status)
		s.ack(ctx, msg.ID)
		return
	}

	result, isDuplicate, procErr := s.enrich(ctx, &item)

	elapsed := time.Since(start).Milliseconds()
	item.Analysis = &result
	item.ProcessedAt = time.Now().UTC()
	item.ProcessingTimeMs = elapsed
	if procErr != nil {
		item.Status = modpipe.StatusError
		item.Error = procErr.Error()
	} else if result.IsToxic {
		item.Status = modpipe.StatusFlagged
	} else {
		item.Status = modpipe.StatusApproved
	}

	s.recordMetrics(ctx, item)

	if err := s.putItem(ctx, item); err != nil {
		// Terminal write failed after retries: do not ack, so the group
		// redelivers and the (idempotent) processing repeats.
		log.Error("writing terminal content record", "content_id", id, "error", err)
		return
	}
	s.ack(ctx, msg.ID)

	if s.publisher != nil {
		s.publisher.Publish(ctx, modpipe.ProcessedEvent{
			ContentID:        item.ID,
			Status:           item.Status,
			Analysis:         result,
			ProcessingTimeMs: elapsed,
			Timestamp:        item.ProcessedAt,
			IsDuplicate:      isDuplicate,
		})
	}

	log.Info("processed content", "content_id", id, "status", item.Status,
		"sentiment", result.Sentiment, "duplicate", isDuplicate, "elapsed_ms", elapsed)
}

// enrich runs analysis, embedding, the vector upsert and the duplicate
// check. A failure is returned for the caller to fold into an error-status
// terminal write; the analysis result is always usable, degrading to the
// low-confidence neutral fallback at worst.
func (s *Service) enrich(ctx context.Context, item *modpipe.ContentItem) (result modpipe.AnalysisResult, isDuplicate bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = analyze.Fallback(item.Text, item.Category)
			err = modpipe.Error{Code: modpipe.Analysis, Err: fmt.Errorf("panic while processing: %v", r)}
		}
	}()

	result = analyze.Analyze(item.Text, item.Category)
	vector := embedding.Embed(item.Text)

	if s.indexReady && s.index != nil {
		// The projection stored with the vector reflects the verdict the
		// analysis implies, even though the record write happens later.
		projected := *item
		projected.Status = modpipe.StatusApproved
		if result.IsToxic {
			projected.Status = modpipe.StatusFlagged
		}
		projected.Analysis = &result
		projected.ProcessedAt = time.Now().UTC()

		if upErr := modpipe.Retry(ctx, func(ctx context.Context) error {
			e := s.index.UpsertContent(ctx, projected, vector)
			if modpipe.ShouldRetry(e) {
				return retry.RetryableError(modpipe.Error{Code: modpipe.TransientIO, Err: e})
			}
			return e
		}, nil); upErr != nil {
			return result, false, modpipe.Error{Code: modpipe.TransientIO, Err: upErr, UserData: "vector upsert"}
		}
	}

	if s.detector != nil {
		dup, dupErr := s.detector.CheckAndAdd(ctx, embedding.ContentHashString(item.Text))
		if dupErr != nil {
			// Informational signal only; never fails the item.
			log.Warn("duplicate check failed", "content_id", item.ID, "error", dupErr)
		} else {
			isDuplicate = dup
		}
	}

	return result, isDuplicate, nil
}

// recordMetrics emits the per-item metric points, guarded by the
// processed-id suppression key so a redelivered message never double
// counts. Metric failures are logged, not fatal to the item.
func (s *Service) recordMetrics(ctx context.Context, item modpipe.ContentItem) {
	if s.metrics == nil {
		return
	}

	first, err := s.docs.MarkProcessed(ctx, item.ID, s.opts.ProcessedTTL)
	if err != nil {
		log.Warn("marking item processed for metric suppression", "content_id", item.ID, "error", err)
		return
	}
	if !first {
		log.Debug("suppressing metrics for redelivered item", "content_id", item.ID)
		return
	}

	now := item.ProcessedAt
	record := func(series string, value float64) {
		if err := s.metrics.Record(ctx, series, now, value); err != nil {
			log.Warn("recording metric", "series", series, "content_id", item.ID, "error", err)
		}
	}

	record(metrics.SeriesProcessed, 1)
	record(metrics.SeriesProcessingTime, float64(item.ProcessingTimeMs))
	switch item.Status {
	case modpipe.StatusApproved:
		record(metrics.SeriesApproved, 1)
	case modpipe.StatusFlagged:
		record(metrics.SeriesFlagged, 1)
	}
	if item.Analysis != nil {
		record(metrics.SeriesConfidence, item.Analysis.Confidence)
	}
	if err := s.metrics.RecordAuthor(ctx, item.UserID); err != nil {
		log.Warn("recording author", "content_id", item.ID, "error", err)
	}
}

func (s *Service) putItem(ctx context.Context, item modpipe.ContentItem) error {
	return modpipe.Retry(ctx, func(ctx context.Context) error {
		err := s.docs.Put(ctx, modpipe.ContentKey(item.ID), item)
		if modpipe.ShouldRetry(err) {
			return retry.RetryableError(modpipe.Error{Code: modpipe.TransientIO, Err: err})
		}
		return err
	}, nil)
}

func (s *Service) getItem(ctx context.Context, id string) (modpipe.ContentItem, bool, error) {
	var item modpipe.ContentItem
	var found bool
	err := modpipe.Retry(ctx, func(ctx context.Context) error {
		var e error
		found, e = s.docs.Get(ctx, modpipe.ContentKey(id), &item)
		if modpipe.ShouldRetry(e) {
			return retry.RetryableError(modpipe.Error{Code: modpipe.TransientIO, Err: e})
		}
		return e
	}, nil)
	return item, found, err
}

func (s *Service) ack(ctx context.Context, entryID string) {
	if err := s.stream.Ack(ctx, s.opts.Stream, s.opts.Group, entryID); err != nil {
		log.Warn("acking stream entry", "entry", entryID, "error", err)
	}
}

// sleep pauses for d or until ctx is cancelled; it reports false on
// cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
