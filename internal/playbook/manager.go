package playbook

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/debounce"
	"go-playbooks/internal/shortid"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultAutosaveDelay = 2 * time.Second

// Backend is what the manager calls to persist playbooks. *Service
// satisfies it.
type Backend interface {
	Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*Playbook, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*Playbook, error)
	List(ctx context.Context, userID uuid.UUID) ([]*Playbook, error)
	Update(ctx context.Context, userID, id uuid.UUID, in UpdateInput) (*Playbook, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Duplicate(ctx context.Context, userID, id uuid.UUID) (*Playbook, error)
}

type ManagerOption func(*Manager)

func WithAutosaveDelay(d time.Duration, opts ...debounce.Option) ManagerOption {
	return func(m *Manager) { m.autosave = debounce.New(d, opts...) }
}

func WithSaveTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.saveTimeout = d }
}

// Manager owns the user's current playbook and their playbook list. Content
// edits are persisted by a debounced auto-save; explicit actions report
// errors to the caller and keep the last message in Err.
type Manager struct {
	backend     Backend
	userID      uuid.UUID
	log         zerolog.Logger
	autosave    *debounce.Debouncer
	saveTimeout time.Duration

	mu        sync.Mutex
	current   *Playbook
	playbooks []*Playbook
	err       string
	lastSaved time.Time
}

func NewManager(backend Backend, userID uuid.UUID, log zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:     backend,
		userID:      userID,
		log:         log,
		saveTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.autosave == nil {
		m.autosave = debounce.New(DefaultAutosaveDelay)
	}
	return m
}

// Load makes the playbook with the given full or short id current. Only the
// owner may load a playbook into the editor.
func (m *Manager) Load(ctx context.Context, rawID string) (*Playbook, error) {
	id, err := shortid.EnsureUUID(rawID)
	if err != nil {
		return nil, m.fail(err)
	}
	p, err := m.backend.Get(ctx, m.userID, id)
	if err != nil {
		return nil, m.fail(err)
	}
	if p.OwnerID != m.userID {
		return nil, m.fail(apperr.Forbidden("you do not have permission to edit this playbook"))
	}

	m.autosave.Flush()
	m.mu.Lock()
	m.current = p
	m.err = ""
	m.mu.Unlock()
	return p.Clone(), nil
}

// New starts an unsaved playbook.
func (m *Manager) New(title string) {
	m.autosave.Flush()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &Playbook{Title: title, Content: emptyContent(), Tags: []string{}, OwnerID: m.userID}
	m.err = ""
}

// Edit replaces the current content and schedules an auto-save. Unsaved
// playbooks are only changed locally.
func (m *Manager) Edit(content json.RawMessage) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return
	}
	m.current.Content = append(json.RawMessage(nil), content...)
	saved := m.current.ID != uuid.Nil
	m.mu.Unlock()

	if saved {
		m.autosave.Trigger(m.autoSave)
	}
}

// autoSave persists the latest content. Failures are logged and swallowed so
// that typing is never interrupted.
func (m *Manager) autoSave() {
	m.mu.Lock()
	if m.current == nil || m.current.ID == uuid.Nil {
		m.mu.Unlock()
		return
	}
	id := m.current.ID
	content := append(json.RawMessage(nil), m.current.Content...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.saveTimeout)
	defer cancel()
	p, err := m.backend.Update(ctx, m.userID, id, UpdateInput{Content: &content})
	if err != nil {
		m.log.Warn().Err(err).Str("playbook_id", id.String()).Msg("auto-save failed")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSaved = time.Now()
	if m.current != nil && m.current.ID == id {
		m.current.UpdatedAt = p.UpdatedAt
	}
	m.replaceLocked(p)
}

// Save persists the current playbook, creating it on first save.
func (m *Manager) Save(ctx context.Context) (*Playbook, error) {
	m.autosave.Stop()

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, m.fail(apperr.Validation("no playbook is open"))
	}
	open := m.current
	cur := open.Clone()
	m.mu.Unlock()

	var (
		p   *Playbook
		err error
	)
	if cur.ID == uuid.Nil {
		p, err = m.backend.Create(ctx, m.userID, CreateInput{
			Title:         cur.Title,
			Content:       cur.Content,
			Description:   cur.Description,
			Tags:          cur.Tags,
			Category:      cur.Category,
			IsPublic:      cur.IsPublic,
			IsMarketplace: cur.IsMarketplace,
			Price:         cur.Price,
		})
	} else {
		p, err = m.backend.Update(ctx, m.userID, cur.ID, UpdateInput{
			Title:       &cur.Title,
			Content:     &cur.Content,
			Description: &cur.Description,
			Tags:        &cur.Tags,
			Category:    &cur.Category,
		})
	}
	if err != nil {
		return nil, m.fail(err)
	}

	m.mu.Lock()
	// Edits made while the call was in flight are kept and saved again.
	dirty := false
	if m.current == open {
		next := p.Clone()
		if !bytes.Equal(open.Content, cur.Content) {
			next.Content = append(json.RawMessage(nil), open.Content...)
			dirty = true
		}
		m.current = next
	}
	m.err = ""
	m.lastSaved = time.Now()
	if cur.ID == uuid.Nil {
		m.playbooks = append([]*Playbook{p.Clone()}, m.playbooks...)
	} else {
		m.replaceLocked(p)
	}
	m.mu.Unlock()

	if dirty {
		m.autosave.Trigger(m.autoSave)
	}
	return p.Clone(), nil
}

// Update applies metadata changes to a playbook and syncs the list.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Playbook, error) {
	p, err := m.backend.Update(ctx, m.userID, id, in)
	if err != nil {
		return nil, m.fail(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ID == id {
		m.current = p.Clone()
	}
	m.replaceLocked(p)
	m.err = ""
	return p.Clone(), nil
}

func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.backend.Delete(ctx, m.userID, id); err != nil {
		return m.fail(err)
	}
	m.mu.Lock()
	isCurrent := m.current != nil && m.current.ID == id
	m.mu.Unlock()
	if isCurrent {
		m.autosave.Stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ID == id {
		m.current = nil
	}
	kept := m.playbooks[:0]
	for _, p := range m.playbooks {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	m.playbooks = kept
	m.err = ""
	return nil
}

func (m *Manager) Duplicate(ctx context.Context, id uuid.UUID) (*Playbook, error) {
	p, err := m.backend.Duplicate(ctx, m.userID, id)
	if err != nil {
		return nil, m.fail(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbooks = append([]*Playbook{p.Clone()}, m.playbooks...)
	m.err = ""
	return p.Clone(), nil
}

// Refresh reloads the playbook list.
func (m *Manager) Refresh(ctx context.Context) ([]*Playbook, error) {
	list, err := m.backend.List(ctx, m.userID)
	if err != nil {
		return nil, m.fail(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbooks = list
	m.err = ""
	return cloneAll(list), nil
}

// Flush runs a pending auto-save now.
func (m *Manager) Flush() bool { return m.autosave.Flush() }

// Close drops any pending auto-save.
func (m *Manager) Close() { m.autosave.Stop() }

func (m *Manager) Current() *Playbook {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

func (m *Manager) Playbooks() []*Playbook {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.playbooks)
}

func (m *Manager) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Manager) LastSaved() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSaved
}

func (m *Manager) fail(err error) error {
	m.mu.Lock()
	m.err = err.Error()
	m.mu.Unlock()
	return err
}

func (m *Manager) replaceLocked(p *Playbook) {
	for i, existing := range m.playbooks {
		if existing.ID == p.ID {
			m.playbooks[i] = p.Clone()
			return
		}
	}
}

func cloneAll(list []*Playbook) []*Playbook {
	out := make([]*Playbook, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out
}
