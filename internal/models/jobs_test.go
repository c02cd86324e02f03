package models

import (
	"testing"
	"time"
)

func TestJobIsTerminal(t *testing.T) {
	cases := map[string]bool{
		JobStatusPending:    false,
		JobStatusProcessing: false,
		JobStatusCompleted:  true,
		JobStatusFailed:     true,
	}
	for status, want := range cases {
		job := &Job{Status: status}
		if got := job.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestJobCanDispatch(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	cases := []struct {
		name string
		job  Job
		want bool
	}{
		{"pending no hold", Job{Status: JobStatusPending}, true},
		{"pending hold elapsed", Job{Status: JobStatusPending, NextRetryAt: &past}, true},
		{"pending hold exactly now", Job{Status: JobStatusPending, NextRetryAt: &now}, true},
		{"pending hold in future", Job{Status: JobStatusPending, NextRetryAt: &future}, false},
		{"processing", Job{Status: JobStatusProcessing}, false},
		{"completed", Job{Status: JobStatusCompleted}, false},
		{"failed", Job{Status: JobStatusFailed}, false},
	}
	for _, tc := range cases {
		if got := tc.job.CanDispatch(now); got != tc.want {
			t.Errorf("%s: CanDispatch = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDefaultPriority(t *testing.T) {
	if p := DefaultPriority(JobTypeTreeGeneration); p != PriorityTreeGeneration {
		t.Errorf("tree priority = %d", p)
	}
	if p := DefaultPriority(JobTypeDistractorGeneration); p != PriorityDistractorGeneration {
		t.Errorf("distractor priority = %d", p)
	}
	if p := DefaultPriority(JobTypeFlashcardGeneration); p != PriorityFlashcardGeneration {
		t.Errorf("flashcard priority = %d", p)
	}
	if p := DefaultPriority("unknown"); p != 0 {
		t.Errorf("unknown priority = %d", p)
	}
	// Fan-out order: trees before distractors before flashcards.
	if !(PriorityTreeGeneration > PriorityDistractorGeneration && PriorityDistractorGeneration > PriorityFlashcardGeneration) {
		t.Error("default priority ordering broken")
	}
}
