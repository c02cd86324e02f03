package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobmcallan/curio/internal/models"
	"github.com/bobmcallan/curio/internal/services/jobengine"
)

const defaultFlashcardCount = 5

// FlashcardPayload is the expected payload for flashcard_generation jobs.
// Either Topic or Content must be set; Content carries source text inline.
type FlashcardPayload struct {
	Topic               string `json:"topic,omitempty"`
	Content             string `json:"content,omitempty"`
	Count               int    `json:"count,omitempty"`
	TreeID              string `json:"treeId,omitempty"`
	LeafTitle           string `json:"leafTitle,omitempty"`
	GenerateDistractors bool   `json:"generateDistractors,omitempty"`
}

// generatedCard is the shape each array element of the model output must have.
type generatedCard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// FlashcardResult is the job result recorded on success.
type FlashcardResult struct {
	FlashcardIDs []string `json:"flashcardIds"`
	Count        int      `json:"count"`
}

// HandleFlashcardGeneration generates question/answer cards for a topic or
// source text. Optionally cascades one distractor_generation child per card.
func (s *Service) HandleFlashcardGeneration(ctx context.Context, payload json.RawMessage, job *models.Job) (json.RawMessage, error) {
	var p FlashcardPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, jobengine.Permanent(fmt.Errorf("invalid flashcard payload: %w", err))
	}
	if p.Topic == "" && p.Content == "" {
		return nil, jobengine.Permanent(fmt.Errorf("flashcard payload requires topic or content"))
	}
	count := p.Count
	if count <= 0 {
		count = defaultFlashcardCount
	}

	prompt := buildFlashcardPrompt(p, count)
	raw, err := s.genai.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("flashcard generation call failed: %w", err)
	}

	var cards []generatedCard
	if err := json.Unmarshal([]byte(raw), &cards); err != nil {
		// Malformed model output: retryable, the next attempt may parse.
		return nil, fmt.Errorf("failed to parse flashcard output: %w", err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("model returned no flashcards")
	}

	ids := make([]string, 0, len(cards))
	for i, card := range cards {
		if strings.TrimSpace(card.Front) == "" || strings.TrimSpace(card.Back) == "" {
			continue
		}
		fc := &models.Flashcard{
			ID:          fmt.Sprintf("%s-%d", job.ID, i),
			PrincipalID: job.PrincipalID,
			Front:       card.Front,
			Back:        card.Back,
			TreeID:      p.TreeID,
			SourceJobID: job.ID,
			CreatedAt:   job.CreatedAt,
		}
		if err := s.content.SaveFlashcard(ctx, fc); err != nil {
			return nil, fmt.Errorf("failed to save flashcard %s: %w", fc.ID, err)
		}
		ids = append(ids, fc.ID)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("model returned only empty flashcards")
	}

	if p.GenerateDistractors {
		s.cascadeDistractors(ctx, job, ids)
	}

	return json.Marshal(FlashcardResult{FlashcardIDs: ids, Count: len(ids)})
}

// cascadeDistractors enqueues one distractor child per card. Enqueue
// failures and rate denials are logged and skipped — the parent has already
// done its work and must not fail because of them.
func (s *Service) cascadeDistractors(ctx context.Context, job *models.Job, cardIDs []string) {
	for _, cardID := range cardIDs {
		childPayload, err := json.Marshal(map[string]string{"flashcardId": cardID})
		if err != nil {
			continue
		}
		if _, err := s.intake.Enqueue(ctx, job.PrincipalID, models.JobTypeDistractorGeneration, childPayload, nil); err != nil {
			s.logger.Warn().
				Str("parent_job_id", job.ID).
				Str("flashcard_id", cardID).
				Err(err).
				Msg("Distractor cascade enqueue skipped")
		}
	}
}

func buildFlashcardPrompt(p FlashcardPayload, count int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate exactly %d study flashcards", count)
	if p.LeafTitle != "" {
		fmt.Fprintf(&sb, " for the subtopic %q", p.LeafTitle)
	}
	if p.Topic != "" {
		fmt.Fprintf(&sb, " about the topic %q", p.Topic)
	}
	sb.WriteString(".\n")
	if p.Content != "" {
		sb.WriteString("Base the cards strictly on the following source material:\n\n")
		sb.WriteString(p.Content)
		sb.WriteString("\n\n")
	}
	sb.WriteString(`Respond with a JSON array only, no prose. Each element must be an object {"front": "...", "back": "..."} where front is a question and back is the answer.`)
	return sb.String()
}
