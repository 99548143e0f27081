package memory

import (
	"regexp"
	"strings"
)

// Question type labels stored alongside interactions.
const (
	TypeAggregation   = "aggregation"
	TypeComparison    = "comparison"
	TypeTrendAnalysis = "trend_analysis"
	TypeRetrieval     = "retrieval"
	TypeStatistical   = "statistical"
	TypeGeneral       = "general"
)

var temporalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(previous|last|earlier|before)\s+(query|question|analysis)\b`),
	regexp.MustCompile(`\bwe\s+(discussed|analyzed|looked at|found)\b`),
	regexp.MustCompile(`\b(that|this)\s+(data|result|analysis)\b`),
	regexp.MustCompile(`\b(show\s+more|tell\s+me\s+more|expand\s+on)\b`),
	regexp.MustCompile(`\bin\s+the\s+(last|previous)\s+\w+\b`),
}

// HasTemporalReference reports whether a question refers back to earlier
// conversation turns.
func HasTemporalReference(question string) bool {
	lowered := strings.ToLower(question)
	for _, pattern := range temporalPatterns {
		if pattern.MatchString(lowered) {
			return true
		}
	}
	return false
}

// ClassifyQuestion buckets a question by analysis intent. The first matching
// bucket wins; order matters.
func ClassifyQuestion(question string) string {
	lowered := strings.ToLower(question)
	switch {
	case containsAny(lowered, "sum", "total", "aggregate", "count"):
		return TypeAggregation
	case containsAny(lowered, "compare", "vs", "versus", "difference"):
		return TypeComparison
	case containsAny(lowered, "trend", "over time", "monthly", "quarterly"):
		return TypeTrendAnalysis
	case containsAny(lowered, "show", "list", "display", "get"):
		return TypeRetrieval
	case containsAny(lowered, "average", "mean", "median"):
		return TypeStatistical
	default:
		return TypeGeneral
	}
}

func containsAny(value string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}
