package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ContentStore implements interfaces.ContentStore using SurrealDB. All writes
// are UPSERTs keyed by ids derived from the producing job, so a handler
// re-run after a crash or duplicate dispatch overwrites its own output.
type ContentStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewContentStore creates a new ContentStore.
func NewContentStore(db *surrealdb.DB, logger *common.Logger) *ContentStore {
	return &ContentStore{db: db, logger: logger}
}

func (s *ContentStore) SaveFlashcard(ctx context.Context, card *models.Flashcard) error {
	sql := `UPSERT $rid SET
		card_id = $card_id, principal_id = $principal_id, front = $front, back = $back,
		tree_id = $tree_id, source_job_id = $source_job_id, created_at = $created_at`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("flashcards", card.ID),
		"card_id":       card.ID,
		"principal_id":  card.PrincipalID,
		"front":         card.Front,
		"back":          card.Back,
		"tree_id":       card.TreeID,
		"source_job_id": card.SourceJobID,
		"created_at":    card.CreatedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save flashcard: %w", err)
	}
	return nil
}

// flashcardRecord mirrors the raw flashcards table fields.
type flashcardRecord struct {
	CardID      string    `json:"card_id"`
	PrincipalID string    `json:"principal_id"`
	Front       string    `json:"front"`
	Back        string    `json:"back"`
	TreeID      string    `json:"tree_id"`
	SourceJobID string    `json:"source_job_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *ContentStore) GetFlashcard(ctx context.Context, id string) (*models.Flashcard, error) {
	sql := "SELECT card_id, principal_id, front, back, tree_id, source_job_id, created_at FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("flashcards", id)}

	results, err := surrealdb.Query[[]flashcardRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcard: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, models.ErrNotFound
	}
	r := (*results)[0].Result[0]
	return &models.Flashcard{
		ID:          r.CardID,
		PrincipalID: r.PrincipalID,
		Front:       r.Front,
		Back:        r.Back,
		TreeID:      r.TreeID,
		SourceJobID: r.SourceJobID,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func (s *ContentStore) SaveDistractor(ctx context.Context, d *models.Distractor) error {
	sql := `UPSERT $rid SET
		distractor_id = $distractor_id, principal_id = $principal_id, flashcard_id = $flashcard_id,
		options = $options, source_job_id = $source_job_id, created_at = $created_at`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("distractors", d.ID),
		"distractor_id": d.ID,
		"principal_id":  d.PrincipalID,
		"flashcard_id":  d.FlashcardID,
		"options":       d.Options,
		"source_job_id": d.SourceJobID,
		"created_at":    d.CreatedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save distractor: %w", err)
	}
	return nil
}

func (s *ContentStore) SaveTree(ctx context.Context, tree *models.LearningTree) error {
	sql := `UPSERT $rid SET
		tree_id = $tree_id, principal_id = $principal_id, topic = $topic,
		nodes = $nodes, source_job_id = $source_job_id, created_at = $created_at`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("trees", tree.ID),
		"tree_id":       tree.ID,
		"principal_id":  tree.PrincipalID,
		"topic":         tree.Topic,
		"nodes":         tree.Nodes,
		"source_job_id": tree.SourceJobID,
		"created_at":    tree.CreatedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save tree: %w", err)
	}
	return nil
}

// treeRecord mirrors the raw trees table fields.
type treeRecord struct {
	TreeID      string            `json:"tree_id"`
	PrincipalID string            `json:"principal_id"`
	Topic       string            `json:"topic"`
	Nodes       []models.TreeNode `json:"nodes"`
	SourceJobID string            `json:"source_job_id"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (s *ContentStore) GetTree(ctx context.Context, id string) (*models.LearningTree, error) {
	sql := "SELECT tree_id, principal_id, topic, nodes, source_job_id, created_at FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("trees", id)}

	results, err := surrealdb.Query[[]treeRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, models.ErrNotFound
	}
	r := (*results)[0].Result[0]
	return &models.LearningTree{
		ID:          r.TreeID,
		PrincipalID: r.PrincipalID,
		Topic:       r.Topic,
		Nodes:       r.Nodes,
		SourceJobID: r.SourceJobID,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// Compile-time check
var _ interfaces.ContentStore = (*ContentStore)(nil)
