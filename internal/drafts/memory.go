package drafts

import (
	"context"
	"sort"
	"sync"

	"go-playbooks/internal/apperr"
)

// MemoryStore keeps drafts in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]map[string]Draft{}}
}

func (s *MemoryStore) List(_ context.Context, session string) ([]Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Draft, 0, len(s.sessions[session]))
	for _, d := range s.sessions[session] {
		out = append(out, d)
	}
	sortDrafts(out)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, session, id string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.sessions[session][id]
	if !ok {
		return nil, apperr.NotFound("temporary playbook not found")
	}
	return &d, nil
}

func (s *MemoryStore) Put(_ context.Context, session string, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[session] == nil {
		s.sessions[session] = map[string]Draft{}
	}
	s.sessions[session][d.ID] = d
	return nil
}

func (s *MemoryStore) Insert(_ context.Context, session string, d Draft, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions[session]) >= limit {
		return false, nil
	}
	if s.sessions[session] == nil {
		s.sessions[session] = map[string]Draft{}
	}
	s.sessions[session][d.ID] = d
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, session, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions[session], id)
	return nil
}

// sortDrafts orders drafts oldest first.
func sortDrafts(list []Draft) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
