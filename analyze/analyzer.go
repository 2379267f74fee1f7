// Package analyze scores free-text submissions. Analysis is a pure function
// of (text, category hint): the same inputs always produce the same result,
// which is what makes reprocessing after redelivery safe.
package analyze

import (
	"math"
	"sort"
	"strings"

	"github.com/modpipe/modpipe"
)

// Word lists are fixed; scoring adds a constant per matched word, capped at 1.
var toxicWords = []string{"hate", "stupid", "idiot", "terrible", "awful", "worst", "dumb"}
var positiveWords = []string{"love", "great", "awesome", "excellent", "amazing", "best", "wonderful", "fantastic"}

const (
	toxicWeight    = 0.3
	positiveWeight = 0.2
	toxicThreshold = 0.5
	maxConfidence  = 0.95
	maxKeywords    = 5
)

// categoryTable maps categories to their trigger phrases. Order matters:
// the first category with a substring match wins.
var categoryTable = []struct {
	name     string
	keywords []string
}{
	{"spam", []string{"buy now", "click here", "limited offer", "free money", "winner"}},
	{"review", []string{"product", "purchase", "quality", "price", "recommend"}},
	{"question", []string{"how do", "what is", "can i", "anyone know"}},
	{"complaint", []string{"refund", "broken", "defective", "not working"}},
}

// Analyze scores text and resolves its category. It is total: an internal
// failure degrades to a low-confidence neutral result with the word count
// still computed, never a panic to the caller.
func Analyze(text string, categoryHint string) (result modpipe.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			result = Fallback(text, categoryHint)
		}
	}()

	lower := strings.ToLower(text)

	var toxicity, positive float64
	for _, w := range toxicWords {
		if strings.Contains(lower, w) {
			toxicity = math.Min(toxicity+toxicWeight, 1)
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			positive = math.Min(positive+positiveWeight, 1)
		}
	}

	sentiment := modpipe.SentimentNeutral
	if positive > toxicity && positive > 0.3 {
		sentiment = modpipe.SentimentPositive
	} else if toxicity > positive && toxicity > 0.3 {
		sentiment = modpipe.SentimentNegative
	}

	confidence := 0.5 + 0.3*math.Min(float64(len(text))/200, 1)
	if toxicity > 0 {
		confidence += 0.2
	}
	if positive > 0 {
		confidence += 0.1
	}
	confidence = math.Min(confidence, maxConfidence)

	return modpipe.AnalysisResult{
		ToxicityScore: round2(toxicity),
		PositiveScore: round2(positive),
		Sentiment:     sentiment,
		Category:      resolveCategory(lower, categoryHint),
		IsToxic:       toxicity > toxicThreshold,
		Confidence:    round2(confidence),
		Keywords:      extractKeywords(lower),
		WordCount:     len(strings.Fields(text)),
		Language:      "en",
	}
}

// Fallback is the degraded analysis substituted when scoring fails
// unexpectedly: neutral sentiment at minimum confidence, word count still
// computed from the input.
func Fallback(text string, categoryHint string) modpipe.AnalysisResult {
	category := categoryHint
	if category == "" {
		category = "general"
	}
	return modpipe.AnalysisResult{
		Sentiment:  modpipe.SentimentNeutral,
		Category:   category,
		Confidence: 0.5,
		Keywords:   []string{},
		WordCount:  len(strings.Fields(text)),
		Language:   "en",
	}
}

// resolveCategory returns the first table category with a phrase match in
// the lowercased text, else the hint, else "general".
func resolveCategory(lower string, hint string) string {
	for _, entry := range categoryTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.name
			}
		}
	}
	if hint != "" {
		return hint
	}
	return "general"
}

// extractKeywords tokenizes on non-alphanumeric boundaries, keeps tokens
// longer than 3 characters, and returns the top 5 by descending frequency.
// Ties keep first-seen order (stable sort).
func extractKeywords(lower string) []string {
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	counts := make(map[string]int)
	var order []string
	for _, tok := range tokens {
		if len(tok) <= 3 {
			continue
		}
		if _, seen := counts[tok]; !seen {
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	if order == nil {
		order = []string{}
	}
	return order
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
