package playbook

import (
	"context"
	"sync"
	"time"

	"go-playbooks/internal/apperr"

	"github.com/google/uuid"
)

type memStore struct {
	mu            sync.Mutex
	playbooks     map[uuid.UUID]*Playbook
	collaborators []Collaborator
	updates       int
	failUpdate    error
}

func newMemStore() *memStore {
	return &memStore{playbooks: map[uuid.UUID]*Playbook{}}
}

func (m *memStore) Create(_ context.Context, p *Playbook, owner Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.playbooks[p.ID] = p.Clone()
	owner.ID = uuid.New()
	m.collaborators = append(m.collaborators, owner)
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*Playbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.playbooks[id]
	if !ok {
		return nil, apperr.NotFound("playbook not found")
	}
	return p.Clone(), nil
}

func (m *memStore) ListForUser(_ context.Context, userID uuid.UUID) ([]*Playbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Playbook{}
	for _, p := range m.playbooks {
		if p.OwnerID == userID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, in UpdateInput) (*Playbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.failUpdate != nil {
		return nil, m.failUpdate
	}
	p, ok := m.playbooks[id]
	if !ok {
		return nil, apperr.NotFound("playbook not found")
	}
	in.Apply(p)
	p.UpdatedAt = time.Now()
	return p.Clone(), nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.playbooks[id]; !ok {
		return apperr.NotFound("playbook not found")
	}
	delete(m.playbooks, id)
	return nil
}

func (m *memStore) Permission(_ context.Context, playbookID, userID uuid.UUID) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.collaborators {
		if c.PlaybookID == playbookID && c.UserID == userID && c.Status == StatusAccepted {
			return c.Permission, nil
		}
	}
	return "", nil
}

func (m *memStore) share(playbookID, userID uuid.UUID, perm Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collaborators = append(m.collaborators, Collaborator{
		ID: uuid.New(), PlaybookID: playbookID, UserID: userID, Permission: perm, Status: StatusAccepted,
	})
}

func (m *memStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}
