package consumer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modpipe/modpipe"
	"github.com/modpipe/modpipe/dedupe"
	"github.com/modpipe/modpipe/embedding"
	"github.com/modpipe/modpipe/events"
	"github.com/modpipe/modpipe/metrics"
	"github.com/modpipe/modpipe/mocks"
	"github.com/modpipe/modpipe/search"
)

type fixture struct {
	svc    *Service
	stream *mocks.MockStreamLog
	docs   *mocks.MockDocumentStore
	vi     *mocks.MockVectorIndex
	ts     *mocks.MockTimeSeries
	agg    *metrics.Aggregator
	pubsub *mocks.MockPubSub
	opts   modpipe.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	opts := modpipe.DefaultOptions()
	opts.IdleSleep = time.Millisecond
	opts.BlockTimeout = time.Millisecond

	stream := mocks.NewStreamLog()
	docs := mocks.NewDocumentStore()
	vi := mocks.NewVectorIndex()
	ts := mocks.NewTimeSeries()
	agg := metrics.NewAggregator(ts, mocks.NewCardinality())
	pubsub := mocks.NewPubSub()

	svc := NewService(
		opts,
		stream,
		docs,
		agg,
		dedupe.NewDetector(mocks.NewMembership(), ""),
		search.NewIndex(vi, embedding.Dimension, 0.7),
		events.NewPublisher(pubsub, ""),
	)
	svc.Setup(context.Background())

	return &fixture{
		svc:    svc,
		stream: stream,
		docs:   docs,
		vi:     vi,
		ts:     ts,
		agg:    agg,
		pubsub: pubsub,
		opts:   opts,
	}
}

// drain runs worker iterations until the stream has no undelivered entries
// and everything delivered is acked, bounded by a deadline.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		if f.stream.UndeliveredCount(f.opts.Stream, f.opts.Group) == 0 &&
			f.stream.PendingCount(f.opts.Stream, f.opts.Group) == 0 {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("worker did not drain the stream in time")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("worker returned error: %v", err)
	}
}

func (f *fixture) getItem(t *testing.T, id string) modpipe.ContentItem {
	t.Helper()
	var item modpipe.ContentItem
	found, err := f.docs.Get(context.Background(), modpipe.ContentKey(id), &item)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatalf("content item %s not found", id)
	}
	return item
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, modpipe.SubmissionInput{Text: ""}); err == nil {
		t.Error("empty text accepted")
	}
	var e modpipe.Error
	_, err := f.svc.Submit(ctx, modpipe.SubmissionInput{Text: strings.Repeat("x", 5001)})
	if !errors.As(err, &e) || e.Code != modpipe.Validation {
		t.Errorf("oversized text error = %v, want Validation", err)
	}
	// Nothing entered the pipeline.
	if got := f.stream.PendingCount(f.opts.Stream, f.opts.Group); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestSubmitCreatesPendingItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, modpipe.SubmissionInput{Text: "hello there", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	item := f.getItem(t, id)
	if item.Status != modpipe.StatusPending {
		t.Errorf("status = %s, want pending", item.Status)
	}
	if item.Analysis != nil {
		t.Error("analysis set before processing")
	}
}

// Scenario: a positive review is approved with positive sentiment.
func TestProcessApprovesPositiveReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, modpipe.SubmissionInput{
		Text:     "This product is absolutely amazing! Best purchase ever!",
		Category: "review",
		UserID:   "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	item := f.getItem(t, id)
	if item.Status != modpipe.StatusApproved {
		t.Errorf("status = %s, want approved", item.Status)
	}
	if item.Analysis == nil {
		t.Fatal("analysis missing")
	}
	if item.Analysis.Sentiment != modpipe.SentimentPositive {
		t.Errorf("sentiment = %s, want positive", item.Analysis.Sentiment)
	}
	if item.Analysis.IsToxic {
		t.Error("expected non-toxic")
	}
	if item.Analysis.Confidence < 0.5 || item.Analysis.Confidence > 0.95 {
		t.Errorf("confidence = %v, want within [0.5, 0.95]", item.Analysis.Confidence)
	}
	// Embedding stored alongside the record.
	if f.vi.Len() != 1 {
		t.Errorf("vectors stored = %d, want 1", f.vi.Len())
	}
	// Metrics: processed and approved each counted once.
	if got := f.agg.Stats(metrics.SeriesProcessed).Count; got != 1 {
		t.Errorf("processed count = %d, want 1", got)
	}
	if got := f.agg.Stats(metrics.SeriesApproved).Count; got != 1 {
		t.Errorf("approved count = %d, want 1", got)
	}
	// Event published on the cross-process channel.
	if got := len(f.pubsub.Published(events.DefaultTopic)); got != 1 {
		t.Errorf("published events = %d, want 1", got)
	}
}

// Scenario: a toxic submission is flagged, not approved.
func TestProcessFlagsToxicContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, modpipe.SubmissionInput{
		Text: "I hate this stupid thing, complete waste of money!",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	item := f.getItem(t, id)
	if item.Status != modpipe.StatusFlagged {
		t.Errorf("status = %s, want flagged", item.Status)
	}
	if item.Analysis.ToxicityScore != 0.6 {
		t.Errorf("toxicityScore = %v, want 0.6", item.Analysis.ToxicityScore)
	}
	if !item.Analysis.IsToxic {
		t.Error("expected toxic")
	}
	if got := f.agg.Stats(metrics.SeriesFlagged).Count; got != 1 {
		t.Errorf("flagged count = %d, want 1", got)
	}
}

// Scenario: submitting the same text twice marks only the second event as
// a duplicate.
func TestDuplicateDetection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, unsubscribe := f.svc.publisher.Subscribe(4)
	defer unsubscribe()

	text := "identical text submitted twice"
	if _, err := f.svc.Submit(ctx, modpipe.SubmissionInput{Text: text}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Submit(ctx, modpipe.SubmissionInput{Text: text}); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	var got []bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub:
			got = append(got, ev.IsDuplicate)
		default:
			t.Fatal("missing processed event")
		}
	}
	if got[0] != false || got[1] != true {
		t.Errorf("isDuplicate sequence = %v, want [false true]", got)
	}
}

// A failure while enriching marks the item error and never stalls the
// group: the next message still processes.
func TestProcessingFailureDoesNotStallGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	badID, err := f.svc.Submit(ctx, modpipe.SubmissionInput{Text: "first submission"})
	if err != nil {
		t.Fatal(err)
	}
	goodID, err := f.svc.Submit(ctx, modpipe.SubmissionInput{Text: "second submission"})
	if err != nil {
		t.Fatal(err)
	}

	// Vector upsert fails once: the first item lands in error status.
	f.vi.FailUpserts = 1
	f.drain(t)

	bad := f.getItem(t, badID)
	if bad.Status != modpipe.StatusError {
		t.Errorf("first item status = %s, want error", bad.Status)
	}
	if bad.Error == "" {
		t.Error("error reason missing")
	}
	// Best-effort analysis still recorded on the error path.
	if bad.Analysis == nil {
		t.Error("analysis missing on error path")
	}

	good := f.getItem(t, goodID)
	if good.Status != modpipe.StatusApproved {
		t.Errorf("second item status = %s, want approved", good.Status)
	}
	// Both terminal outcomes counted as processed.
	if got := f.agg.Stats(metrics.SeriesProcessed).Count; got != 2 {
		t.Errorf("processed count = %d, want 2", got)
	}
}

// Redelivery after a crash between terminal write and ack re-acks without
// double counting metrics or re-writing the record.
func TestRedeliverySuppressesDoubleCounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, modpipe.SubmissionInput{Text: "redelivered submission"})
	if err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	first := f.getItem(t, id)
	if !first.Status.IsTerminal() {
		t.Fatalf("status = %s, want terminal", first.Status)
	}

	// Simulate a crash before the ack reached the log: the worker acked in
	// our run, so force the entry back instead.
	if _, err := f.stream.Append(ctx, f.opts.Stream, map[string]any{"content_id": id}); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	if got := f.agg.Stats(metrics.SeriesProcessed).Count; got != 1 {
		t.Errorf("processed count = %d after redelivery, want 1", got)
	}
	second := f.getItem(t, id)
	if second.Status != first.Status || !second.ProcessedAt.Equal(first.ProcessedAt) {
		t.Error("terminal record changed on redelivery")
	}
}

// A malformed or orphaned stream entry is dropped from the group, not
// retried forever.
func TestMalformedEntryAcked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.stream.Append(ctx, f.opts.Stream, map[string]any{"noise": "1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.stream.Append(ctx, f.opts.Stream, map[string]any{"content_id": "missing-item"}); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	if got := f.agg.Stats(metrics.SeriesProcessed).Count; got != 0 {
		t.Errorf("processed count = %d, want 0", got)
	}
}

// Cancellation stops the worker between messages; Run returns nil.
func TestCancellationStopsWorker(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestConsumerIdentityUnique(t *testing.T) {
	f1 := newFixture(t)
	f2 := newFixture(t)
	if f1.svc.ConsumerID() == f2.svc.ConsumerID() {
		t.Error("two service instances share a consumer identity")
	}
}

// Events are best-effort: a failing pub/sub channel never rolls back the
// committed record.
func TestPublishFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.pubsub.FailWith = errors.New("broker unreachable")
	id, err := f.svc.Submit(ctx, modpipe.SubmissionInput{Text: "still recorded"})
	if err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	item := f.getItem(t, id)
	if item.Status != modpipe.StatusApproved {
		t.Errorf("status = %s, want approved despite publish failure", item.Status)
	}
}
