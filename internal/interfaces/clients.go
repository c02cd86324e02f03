// Package interfaces defines service contracts for Curio
package interfaces

import "context"

// GenAIClient provides access to the Gemini API
type GenAIClient interface {
	// GenerateContent generates AI content from a prompt
	GenerateContent(ctx context.Context, prompt string) (string, error)

	// GenerateJSON generates content expected to be a JSON document and
	// strips any surrounding markdown code fences from the response.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}
