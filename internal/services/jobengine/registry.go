package jobengine

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/bobmcallan/curio/internal/models"
)

// Handler is the user-supplied function for one job type. It receives the
// raw payload and a read-only snapshot of the claimed job, and returns the
// JSON result recorded on success. Errors are retryable unless wrapped with
// Permanent. Handlers may block on I/O; the engine does not time them out
// beyond the processing lease.
type Handler func(ctx context.Context, payload json.RawMessage, job *models.Job) (json.RawMessage, error)

// registration pairs a handler with its retry budget.
type registration struct {
	fn          Handler
	maxAttempts int
}

// Registry maps job-type tags to handlers. It is populated at process start
// and read-only during dispatch; the mutex exists for test harnesses that
// register late.
type Registry struct {
	mu                 sync.RWMutex
	handlers           map[string]registration
	defaultMaxAttempts int
}

// NewRegistry creates an empty registry. defaultMaxAttempts applies to
// registrations without an explicit override.
func NewRegistry(defaultMaxAttempts int) *Registry {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3
	}
	return &Registry{
		handlers:           make(map[string]registration),
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

// Register binds a handler to a job type with the default retry budget.
func (r *Registry) Register(jobType string, fn Handler) {
	r.RegisterWithMaxAttempts(jobType, fn, 0)
}

// RegisterWithMaxAttempts binds a handler with an explicit retry budget.
// maxAttempts <= 0 takes the registry default.
func (r *Registry) RegisterWithMaxAttempts(jobType string, fn Handler, maxAttempts int) {
	if maxAttempts <= 0 {
		maxAttempts = r.defaultMaxAttempts
	}
	r.mu.Lock()
	r.handlers[jobType] = registration{fn: fn, maxAttempts: maxAttempts}
	r.mu.Unlock()
}

// Lookup returns the handler for a job type.
func (r *Registry) Lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	reg, ok := r.handlers[jobType]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return reg.fn, true
}

// MaxAttempts returns the retry budget for a job type. Unregistered types
// get the default, so enqueue-before-register still produces a sane row.
func (r *Registry) MaxAttempts(jobType string) int {
	r.mu.RLock()
	reg, ok := r.handlers[jobType]
	r.mu.RUnlock()
	if !ok {
		return r.defaultMaxAttempts
	}
	return reg.maxAttempts
}

// Known reports whether a handler is registered for the type.
func (r *Registry) Known(jobType string) bool {
	r.mu.RLock()
	_, ok := r.handlers[jobType]
	r.mu.RUnlock()
	return ok
}

// Types returns the registered job types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}
