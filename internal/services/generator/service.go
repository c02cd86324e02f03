// Package generator implements the content-generation job handlers:
// flashcards, distractor answers, and hierarchical learning trees produced
// via Gemini. The handlers are the reference deployment of the engine's
// handler contract — the engine itself knows nothing about them.
package generator

import (
	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/models"
	"github.com/bobmcallan/curio/internal/services/jobengine"
)

// Service holds the handler dependencies. Side-effect writes are keyed by
// the producing job id, so a duplicate dispatch or post-crash re-run
// overwrites its own earlier output instead of duplicating it.
type Service struct {
	genai   interfaces.GenAIClient
	content interfaces.ContentStore
	intake  interfaces.JobIntake
	logger  *common.Logger
}

// NewService creates the generator service. intake is the enqueue-only view
// of the engine used for cascading child jobs.
func NewService(genai interfaces.GenAIClient, content interfaces.ContentStore, intake interfaces.JobIntake, logger *common.Logger) *Service {
	return &Service{
		genai:   genai,
		content: content,
		intake:  intake,
		logger:  logger,
	}
}

// RegisterHandlers binds the generation handlers to their job types.
func (s *Service) RegisterHandlers(registry *jobengine.Registry) {
	registry.Register(models.JobTypeFlashcardGeneration, s.HandleFlashcardGeneration)
	registry.Register(models.JobTypeDistractorGeneration, s.HandleDistractorGeneration)
	registry.Register(models.JobTypeTreeGeneration, s.HandleTreeGeneration)
}
