package analyze

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/modpipe/modpipe"
)

// Covers: analyzer purity - the same inputs always produce identical output.
func TestAnalyzePurity(t *testing.T) {
	texts := []string{
		"This product is absolutely amazing! Best purchase ever!",
		"I hate this stupid thing, complete waste of money!",
		"",
		"neutral words only here",
	}
	for _, text := range texts {
		a := Analyze(text, "review")
		b := Analyze(text, "review")
		if !reflect.DeepEqual(a, b) {
			t.Errorf("Analyze(%q) not pure: %+v vs %+v", text, a, b)
		}
	}
}

func TestAnalyzePositiveReview(t *testing.T) {
	r := Analyze("This product is absolutely amazing! Best purchase ever!", "review")

	if r.Sentiment != modpipe.SentimentPositive {
		t.Errorf("sentiment = %s, want positive", r.Sentiment)
	}
	if r.IsToxic {
		t.Error("expected non-toxic")
	}
	// "amazing" and "best" both match: 2 x 0.2.
	if r.PositiveScore != 0.4 {
		t.Errorf("positiveScore = %v, want 0.4", r.PositiveScore)
	}
	if r.Confidence < 0.5 || r.Confidence > 0.95 {
		t.Errorf("confidence = %v, want within [0.5, 0.95]", r.Confidence)
	}
	// "product" and "purchase" put it in the review category regardless of hint.
	if r.Category != "review" {
		t.Errorf("category = %s, want review", r.Category)
	}
	if r.WordCount != 8 {
		t.Errorf("wordCount = %d, want 8", r.WordCount)
	}
}

func TestAnalyzeToxic(t *testing.T) {
	r := Analyze("I hate this stupid thing, complete waste of money!", "")

	// "hate" and "stupid" both match: 2 x 0.3.
	if r.ToxicityScore != 0.6 {
		t.Errorf("toxicityScore = %v, want 0.6", r.ToxicityScore)
	}
	if !r.IsToxic {
		t.Error("expected toxic")
	}
	if r.Sentiment != modpipe.SentimentNegative {
		t.Errorf("sentiment = %s, want negative", r.Sentiment)
	}
}

// Covers: appending more occurrences of a toxic keyword never decreases the
// score until the cap is reached.
func TestToxicityMonotonic(t *testing.T) {
	words := []string{"hate", "stupid", "idiot", "terrible", "awful", "worst", "dumb"}
	text := "plain start"
	prev := Analyze(text, "").ToxicityScore
	for i := 0; i < 10; i++ {
		text += " " + words[i%len(words)]
		score := Analyze(text, "").ToxicityScore
		if score < prev {
			t.Fatalf("toxicity decreased from %v to %v at round %d", prev, score, i)
		}
		prev = score
	}
	if prev != 1 {
		t.Errorf("toxicity = %v after saturation, want capped at 1", prev)
	}
}

func TestToxicityCapped(t *testing.T) {
	// Every toxic word present: 7 x 0.3 caps at 1.0.
	r := Analyze(strings.Join([]string{"hate", "stupid", "idiot", "terrible", "awful", "worst", "dumb"}, " "), "")
	if r.ToxicityScore != 1 {
		t.Errorf("toxicityScore = %v, want 1", r.ToxicityScore)
	}
}

func TestCategoryResolution(t *testing.T) {
	tests := []struct {
		text string
		hint string
		want string
	}{
		// First table match wins, in table order.
		{"click here to claim, best product quality", "", "spam"},
		{"the product quality is mediocre", "", "review"},
		{"nothing matches here", "comment", "comment"},
		{"nothing matches here", "", "general"},
	}
	for _, tt := range tests {
		if got := Analyze(tt.text, tt.hint).Category; got != tt.want {
			t.Errorf("Analyze(%q, %q).Category = %s, want %s", tt.text, tt.hint, got, tt.want)
		}
	}
}

func TestNeutralSentiment(t *testing.T) {
	r := Analyze("the sky was gray over the harbor this morning", "")
	if r.Sentiment != modpipe.SentimentNeutral {
		t.Errorf("sentiment = %s, want neutral", r.Sentiment)
	}
	if r.ToxicityScore != 0 || r.PositiveScore != 0 {
		t.Errorf("scores = (%v, %v), want zeros", r.ToxicityScore, r.PositiveScore)
	}
}

func TestConfidenceFormula(t *testing.T) {
	// Short neutral text: 0.5 + 0.3*(len/200).
	text := "short note"
	want := math.Round((0.5+0.3*float64(len(text))/200)*100) / 100
	if got := Analyze(text, "").Confidence; got != want {
		t.Errorf("confidence = %v, want %v", got, want)
	}

	// Long text with both signals saturates at the 0.95 cap.
	long := strings.Repeat("hate love filler words ", 20)
	if got := Analyze(long, "").Confidence; got != 0.95 {
		t.Errorf("confidence = %v, want 0.95 cap", got)
	}
}

func TestKeywordExtraction(t *testing.T) {
	// "delivery" x3, "package" x2, then first-seen order for the 1-counts.
	text := "Delivery delayed. The package tracking said delivery soon, then delivery failed and the package vanished. Support unreachable. Refund pending. Patience exhausted."
	got := Analyze(text, "").Keywords

	if len(got) != 5 {
		t.Fatalf("keywords = %v, want 5 entries", got)
	}
	if got[0] != "delivery" || got[1] != "package" {
		t.Errorf("keywords = %v, want delivery then package first", got)
	}
	// Remaining slots keep first-seen order among equal counts.
	want := []string{"delivery", "package", "delayed", "tracking", "said"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("keywords = %v, want %v", got, want)
	}

	// Tokens of length <= 3 never qualify.
	for _, kw := range got {
		if len(kw) <= 3 {
			t.Errorf("keyword %q too short", kw)
		}
	}
}

func TestAnalyzeEmptyText(t *testing.T) {
	r := Analyze("", "")
	if r.WordCount != 0 {
		t.Errorf("wordCount = %d, want 0", r.WordCount)
	}
	if r.Sentiment != modpipe.SentimentNeutral {
		t.Errorf("sentiment = %s, want neutral", r.Sentiment)
	}
	if len(r.Keywords) != 0 {
		t.Errorf("keywords = %v, want empty", r.Keywords)
	}
	if r.Category != "general" {
		t.Errorf("category = %s, want general", r.Category)
	}
}

func TestFallback(t *testing.T) {
	r := Fallback("some words here", "review")
	if r.Sentiment != modpipe.SentimentNeutral || r.Confidence != 0.5 {
		t.Errorf("fallback = %+v, want neutral at 0.5 confidence", r)
	}
	if r.WordCount != 3 {
		t.Errorf("fallback wordCount = %d, want 3", r.WordCount)
	}
	if r.Category != "review" {
		t.Errorf("fallback category = %s, want hint", r.Category)
	}
}
