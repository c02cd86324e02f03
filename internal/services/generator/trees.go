package generator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bobmcallan/curio/internal/models"
	"github.com/bobmcallan/curio/internal/services/jobengine"
)

const (
	defaultTreeDepth = 2
	maxTreeDepth     = 4
)

// TreePayload is the expected payload for tree_generation jobs.
type TreePayload struct {
	Topic string `json:"topic"`
	Depth int    `json:"depth,omitempty"`
}

// TreeResult is the job result recorded on success.
type TreeResult struct {
	TreeID           string `json:"treeId"`
	NodeCount        int    `json:"nodeCount"`
	LeafCount        int    `json:"leafCount"`
	ChildrenEnqueued int    `json:"childrenEnqueued"`
}

// HandleTreeGeneration generates a hierarchical topic breakdown, persists
// it, and cascades one flashcard_generation child per leaf. The cascade is
// fire-and-forget: a denied or failed child enqueue is logged and skipped,
// and the parent still completes.
func (s *Service) HandleTreeGeneration(ctx context.Context, payload json.RawMessage, job *models.Job) (json.RawMessage, error) {
	var p TreePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, jobengine.Permanent(fmt.Errorf("invalid tree payload: %w", err))
	}
	if p.Topic == "" {
		return nil, jobengine.Permanent(fmt.Errorf("tree payload requires topic"))
	}
	depth := p.Depth
	if depth <= 0 {
		depth = defaultTreeDepth
	}
	if depth > maxTreeDepth {
		depth = maxTreeDepth
	}

	prompt := buildTreePrompt(p.Topic, depth)
	raw, err := s.genai.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("tree generation call failed: %w", err)
	}

	var nodes []models.TreeNode
	if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse tree output: %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("model returned an empty tree")
	}

	tree := &models.LearningTree{
		ID:          job.ID,
		PrincipalID: job.PrincipalID,
		Topic:       p.Topic,
		Nodes:       nodes,
		SourceJobID: job.ID,
		CreatedAt:   job.CreatedAt,
	}
	if err := s.content.SaveTree(ctx, tree); err != nil {
		return nil, fmt.Errorf("failed to save learning tree: %w", err)
	}

	leaves := tree.Leaves()
	enqueued := 0
	for i, leaf := range leaves {
		childPayload, err := json.Marshal(FlashcardPayload{
			Topic:     p.Topic,
			LeafTitle: leaf.Title,
			TreeID:    tree.ID,
		})
		if err != nil {
			continue
		}
		if _, err := s.intake.Enqueue(ctx, job.PrincipalID, models.JobTypeFlashcardGeneration, childPayload, nil); err != nil {
			s.logger.Warn().
				Str("parent_job_id", job.ID).
				Str("tree_id", tree.ID).
				Int("leaf", i).
				Str("leaf_title", leaf.Title).
				Err(err).
				Msg("Flashcard cascade enqueue skipped")
			continue
		}
		enqueued++
	}

	s.logger.Info().
		Str("tree_id", tree.ID).
		Int("nodes", tree.NodeCount()).
		Int("leaves", len(leaves)).
		Int("children_enqueued", enqueued).
		Msg("Learning tree generated")

	return json.Marshal(TreeResult{
		TreeID:           tree.ID,
		NodeCount:        tree.NodeCount(),
		LeafCount:        len(leaves),
		ChildrenEnqueued: enqueued,
	})
}

func buildTreePrompt(topic string, depth int) string {
	return fmt.Sprintf(`Break down the topic %q into a hierarchical learning tree at most %d levels deep.
Order subtopics from foundational to advanced.
Respond with a JSON array only, no prose. Each element must be an object
{"title": "...", "summary": "...", "children": [...]} where children uses the
same shape and is empty or omitted for leaf subtopics.`, topic, depth)
}
