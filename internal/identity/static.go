package identity

import (
	"context"
	"sync"

	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
)

// Static resolves credentials from a fixed in-memory table. Used by tests
// and local development seeding; credentials are opaque strings.
type Static struct {
	mu      sync.RWMutex
	callers map[string]id.Caller
}

// NewStatic creates an empty static resolver.
func NewStatic() *Static {
	return &Static{callers: make(map[string]id.Caller)}
}

// Register associates a credential with a caller scope.
func (s *Static) Register(credential string, caller id.Caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callers[credential] = caller
}

func (s *Static) ResolveCaller(_ context.Context, credential string) (id.Caller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if caller, ok := s.callers[credential]; ok {
		return caller, nil
	}
	return id.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "unknown credential")
}
