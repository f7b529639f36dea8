// Package report stores assembled diagnostic reports for retrieval over
// the API.
package report

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/webdiag-project/webdiag/internal/capture"
)

// Store keeps reports in memory, newest first on List. Reads return copies
// so callers cannot mutate stored state.
type Store struct {
	mu      sync.RWMutex
	reports map[string]capture.Report
	order   []string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{reports: make(map[string]capture.Report)}
}

// Create stores a new report. Duplicate IDs are an error.
func (s *Store) Create(_ context.Context, r capture.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[r.ID]; exists {
		return fmt.Errorf("report %q already exists", r.ID)
	}
	s.reports[r.ID] = cloneReport(r)
	s.order = append(s.order, r.ID)
	return nil
}

// Update replaces an existing report.
func (s *Store) Update(_ context.Context, r capture.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; !ok {
		return fmt.Errorf("report %q not found", r.ID)
	}
	s.reports[r.ID] = cloneReport(r)
	return nil
}

// Get returns the report with the given ID.
func (s *Store) Get(_ context.Context, id string) (capture.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return capture.Report{}, fmt.Errorf("report %q not found", id)
	}
	return cloneReport(r), nil
}

// List returns all reports newest first.
func (s *Store) List(_ context.Context) ([]capture.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]capture.Report, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneReport(s.reports[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	return out, nil
}

func cloneReport(r capture.Report) capture.Report {
	cp := r
	cp.ConsoleEntries = append([]capture.ConsoleEntry(nil), r.ConsoleEntries...)
	cp.NetworkRequests = append([]capture.NetworkRequest(nil), r.NetworkRequests...)
	if r.Screenshot != nil {
		shot := *r.Screenshot
		shot.Annotations = append([]capture.Annotation(nil), r.Screenshot.Annotations...)
		cp.Screenshot = &shot
	}
	if r.Environment != nil {
		env := *r.Environment
		cp.Environment = &env
	}
	if r.PageContext != nil {
		pc := *r.PageContext
		cp.PageContext = &pc
	}
	return cp
}
