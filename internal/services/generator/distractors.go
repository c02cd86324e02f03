package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bobmcallan/curio/internal/models"
	"github.com/bobmcallan/curio/internal/services/jobengine"
)

const distractorOptionCount = 3

// DistractorPayload is the expected payload for distractor_generation jobs.
type DistractorPayload struct {
	FlashcardID string `json:"flashcardId"`
}

// DistractorResult is the job result recorded on success.
type DistractorResult struct {
	DistractorID string `json:"distractorId"`
	Options      int    `json:"options"`
}

// HandleDistractorGeneration generates plausible wrong answers for an
// existing flashcard's quiz mode.
func (s *Service) HandleDistractorGeneration(ctx context.Context, payload json.RawMessage, job *models.Job) (json.RawMessage, error) {
	var p DistractorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, jobengine.Permanent(fmt.Errorf("invalid distractor payload: %w", err))
	}
	if p.FlashcardID == "" {
		return nil, jobengine.Permanent(fmt.Errorf("distractor payload requires flashcardId"))
	}

	card, err := s.content.GetFlashcard(ctx, p.FlashcardID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// The card will never appear; retrying cannot help.
			return nil, jobengine.Permanent(fmt.Errorf("flashcard %s not found", p.FlashcardID))
		}
		return nil, fmt.Errorf("failed to load flashcard %s: %w", p.FlashcardID, err)
	}

	prompt := buildDistractorPrompt(card)
	raw, err := s.genai.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("distractor generation call failed: %w", err)
	}

	var options []string
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		return nil, fmt.Errorf("failed to parse distractor output: %w", err)
	}
	cleaned := options[:0]
	for _, o := range options {
		if strings.TrimSpace(o) != "" {
			cleaned = append(cleaned, o)
		}
	}
	if len(cleaned) < distractorOptionCount {
		return nil, fmt.Errorf("model returned %d distractors, need %d", len(cleaned), distractorOptionCount)
	}
	cleaned = cleaned[:distractorOptionCount]

	d := &models.Distractor{
		ID:          fmt.Sprintf("%s-0", job.ID),
		PrincipalID: job.PrincipalID,
		FlashcardID: card.ID,
		Options:     cleaned,
		SourceJobID: job.ID,
		CreatedAt:   job.CreatedAt,
	}
	if err := s.content.SaveDistractor(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save distractor: %w", err)
	}

	return json.Marshal(DistractorResult{DistractorID: d.ID, Options: len(d.Options)})
}

func buildDistractorPrompt(card *models.Flashcard) string {
	return fmt.Sprintf(`A study flashcard asks: %q
The correct answer is: %q

Generate exactly %d plausible but incorrect answers for a multiple-choice quiz.
Each must be clearly wrong to someone who knows the material, yet tempting to a learner.
Respond with a JSON array of %d strings only, no prose.`,
		card.Front, card.Back, distractorOptionCount, distractorOptionCount)
}
