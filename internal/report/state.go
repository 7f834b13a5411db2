package report

import (
	"sync"

	"github.com/zombar/litmatrix/internal/models"
	"github.com/zombar/litmatrix/internal/normalizer"
	"github.com/zombar/litmatrix/internal/store"
)

// Ticket identifies one submission; only the most recently issued ticket may replace the report
type Ticket uint64

// State holds at most one current analysis result, mirrored to the store
type State struct {
	mu      sync.Mutex
	store   *store.Store
	current *models.AnalysisResult
	issued  Ticket
}

// New loads the last known good result from s, if any
func New(s *store.Store) *State {
	st := &State{store: s}
	if r, ok := s.Result(); ok {
		st.current = r
	}
	return st
}

// Current returns the report on display, or nil
func (s *State) Current() *models.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Replace installs r unconditionally and persists it
func (s *State) Replace(r *models.AnalysisResult) {
	r = normalizer.Complete(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = r
	s.store.SaveResult(r)
}

// Clear forgets the report in memory and in the store
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.store.RemoveResult()
}

// Begin issues a ticket for a new submission, superseding any in flight
func (s *State) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// ReplaceIfLatest installs r only when t is still the latest ticket.
// It reports whether r was applied; a stale response is dropped.
func (s *State) ReplaceIfLatest(t Ticket, r *models.AnalysisResult) bool {
	r = normalizer.Complete(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t != s.issued {
		return false
	}
	s.current = r
	s.store.SaveResult(r)
	return true
}

// IsLatest reports whether t has not been superseded
func (s *State) IsLatest(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t == s.issued
}
