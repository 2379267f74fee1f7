package modpipe

import (
	"fmt"
	"time"
)

// Status is the moderation lifecycle state of a content item.
// An item is created as pending and moves exactly once to one of the
// terminal states; terminal states are never reversed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusFlagged  Status = "flagged"
	StatusError    Status = "error"
)

// IsTerminal reports whether the status is a terminal moderation verdict.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusFlagged || s == StatusError
}

// Sentiment labels produced by the analyzer.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// SubmissionInput is what callers (HTTP layer, CLI, tests) hand to Submit.
type SubmissionInput struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Source   string `json:"source,omitempty"`
}

// MaxTextLength is the upper bound on submission text, in characters.
const MaxTextLength = 5000

// Validate rejects malformed submissions before they enter the pipeline.
func (s SubmissionInput) Validate() error {
	if len(s.Text) == 0 {
		return Error{Code: Validation, Err: fmt.Errorf("text is required")}
	}
	if len([]rune(s.Text)) > MaxTextLength {
		return Error{Code: Validation, Err: fmt.Errorf("text exceeds %d characters", MaxTextLength)}
	}
	return nil
}

// AnalysisResult is the pure output of the content analyzer for a given
// (text, category hint) pair. Immutable once produced; scores are rounded
// to 2 decimal places.
type AnalysisResult struct {
	ToxicityScore float64  `json:"toxicity_score"`
	PositiveScore float64  `json:"positive_score"`
	Sentiment     string   `json:"sentiment"`
	Category      string   `json:"category"`
	IsToxic       bool     `json:"is_toxic"`
	Confidence    float64  `json:"confidence"`
	Keywords      []string `json:"keywords"`
	WordCount     int      `json:"word_count"`
	Language      string   `json:"language"`
}

// ContentItem is the durable record of one submission. The stream consumer
// is the only writer after creation; it applies exactly one terminal update.
type ContentItem struct {
	ID               string          `json:"id"`
	Text             string          `json:"text"`
	Category         string          `json:"category,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
	Source           string          `json:"source,omitempty"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	Status           Status          `json:"status"`
	Analysis         *AnalysisResult `json:"analysis,omitempty"`
	ProcessedAt      time.Time       `json:"processed_at,omitzero"`
	ProcessingTimeMs int64           `json:"processing_time_ms,omitempty"`
	// Error carries the failure reason when Status is StatusError.
	Error string `json:"error,omitempty"`
}

// ContentKey returns the document store key for a content item id.
func ContentKey(id string) string {
	return "content:" + id
}

// ProcessedEvent is the best-effort notification emitted after a content
// item reaches a terminal status. The content record, not the event, is
// the source of truth.
type ProcessedEvent struct {
	ContentID        string         `json:"content_id"`
	Status           Status         `json:"status"`
	Analysis         AnalysisResult `json:"analysis"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Timestamp        time.Time      `json:"timestamp"`
	IsDuplicate      bool           `json:"is_duplicate"`
}

// MetricPoint is one timestamped sample in a metric series.
// Timestamp is in Unix milliseconds.
type MetricPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}
