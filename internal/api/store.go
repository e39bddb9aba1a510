package api

import "sync"

// DefaultStoreSize bounds the number of completed runs kept for retrieval.
const DefaultStoreSize = 256

// RunStore keeps recent run results by id. When full, the oldest run is
// evicted.
type RunStore struct {
	mu    sync.Mutex
	limit int
	runs  map[string]RunResponse
	order []string
}

func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = DefaultStoreSize
	}
	return &RunStore{
		limit: limit,
		runs:  make(map[string]RunResponse),
	}
}

func (s *RunStore) Put(run RunResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	for len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *RunStore) Get(id string) (RunResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	return run, ok
}

func (s *RunStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return false
	}
	delete(s.runs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *RunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}
