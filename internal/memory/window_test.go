package memory

import (
	"fmt"
	"testing"
)

func fillWindow(w *SlidingWindow, n int) {
	for i := 0; i < n; i++ {
		w.Add(Interaction{
			ID:       fmt.Sprintf("i%d", i),
			Question: fmt.Sprintf("question %d", i),
		})
	}
}

func TestSlidingWindowEvictsOldestFirst(t *testing.T) {
	w := NewSlidingWindow(3)
	fillWindow(w, 5)

	if w.Len() != 3 {
		t.Fatalf("Len() = %d", w.Len())
	}
	all := w.All()
	if all[0].ID != "i2" {
		t.Fatalf("oldest = %q, want i2", all[0].ID)
	}
	if all[2].ID != "i4" {
		t.Fatalf("newest = %q, want i4", all[2].ID)
	}
}

func TestRecentDefaultsToTail(t *testing.T) {
	w := NewSlidingWindow(10)
	fillWindow(w, 6)

	recent := w.Recent("what is total revenue", 2)
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d", len(recent))
	}
	if recent[1].ID != "i5" {
		t.Fatalf("recent[1] = %q", recent[1].ID)
	}
}

func TestRecentTemporalSlices(t *testing.T) {
	tests := []struct {
		question string
		filled   int
		want     int
	}{
		{"what did the previous query show", 6, 2},
		{"repeat the last analysis", 6, 3},
		{"tell me more", 6, 1},
		{"show more detail", 6, 1},
		{"expand on the breakdown", 6, 1},
		{"what about that result", 6, 5},
		{"what did the previous query show", 1, 5}, // too few turns for the targeted slice
	}
	for _, tc := range tests {
		w := NewSlidingWindow(10)
		fillWindow(w, tc.filled)
		recent := w.Recent(tc.question, 2)
		want := tc.want
		if want > tc.filled {
			want = tc.filled
		}
		if len(recent) != want {
			t.Fatalf("Recent(%q) returned %d interactions, want %d", tc.question, len(recent), want)
		}
	}
}

func TestRecentOnEmptyWindow(t *testing.T) {
	w := NewSlidingWindow(5)
	if got := w.Recent("show revenue", 3); len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}
