package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/debounce"
	"go-playbooks/internal/drafts"
	"go-playbooks/internal/shortid"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultTypingDelay = 3 * time.Second

// State is where an entry is in the optimistic send cycle.
type State string

const (
	StatePending    State = "pending"
	StateConfirmed  State = "confirmed"
	StateRolledBack State = "rolled_back"
)

// Entry is a message as a client sees it. Pending entries carry a TempID
// until the server assigns the real id.
type Entry struct {
	Message
	TempID string `json:"temp_id,omitempty"`
	State  State  `json:"state"`
}

// Remote is the server side a Session talks to. *Service satisfies it.
type Remote interface {
	List(ctx context.Context, userID uuid.UUID, rawPlaybookID string) ([]*Message, error)
	Send(ctx context.Context, author Author, rawPlaybookID, text string) (*Message, error)
	Edit(ctx context.Context, userID, messageID uuid.UUID, text string) (*Message, error)
	Delete(ctx context.Context, userID, messageID uuid.UUID) error
	Typing(ctx context.Context, author Author, playbookID uuid.UUID) error
}

type SessionOption func(*Session)

func WithTypingDelay(d time.Duration, opts ...debounce.Option) SessionOption {
	return func(s *Session) { s.typing = debounce.New(d, opts...) }
}

// Session holds one user's view of a playbook thread with optimistic
// send, edit and delete. Failed sends are rolled back; failed edits and
// deletes reload the thread.
type Session struct {
	remote     Remote
	author     Author
	playbookID string
	log        zerolog.Logger
	typing     *debounce.Debouncer
	now        func() time.Time

	mu       sync.Mutex
	entries  []*Entry
	err      string
	isTyping bool
	typers   map[uuid.UUID]typer
}

type typer struct {
	username string
	at       time.Time
}

func NewSession(remote Remote, author Author, playbookID string, log zerolog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		remote:     remote,
		author:     author,
		playbookID: playbookID,
		log:        log,
		now:        time.Now,
		typers:     map[uuid.UUID]typer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.typing == nil {
		s.typing = debounce.New(DefaultTypingDelay)
	}
	return s
}

func (s *Session) temporary() error {
	if drafts.IsTemporaryID(s.playbookID) {
		return apperr.Validation("save the playbook before chatting")
	}
	return nil
}

// Load replaces the thread with the server's copy.
func (s *Session) Load(ctx context.Context) error {
	if err := s.temporary(); err != nil {
		return s.fail(err)
	}
	list, err := s.remote.List(ctx, s.author.ID, s.playbookID)
	if err != nil {
		return s.fail(err)
	}
	entries := make([]*Entry, 0, len(list))
	for _, m := range list {
		entries = append(entries, &Entry{Message: *m.clone(), State: StateConfirmed})
	}
	s.mu.Lock()
	s.entries = entries
	s.err = ""
	s.mu.Unlock()
	return nil
}

// Send appends a pending entry, then swaps in the server's message or
// removes the entry if the call fails.
func (s *Session) Send(ctx context.Context, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("message is required")
	}
	if err := s.temporary(); err != nil {
		return nil, s.fail(err)
	}

	pending := &Entry{
		Message: Message{
			UserID:    s.author.ID,
			Username:  s.author.Username,
			Message:   text,
			CreatedAt: s.now(),
		},
		TempID: "tmp-" + uuid.NewString(),
		State:  StatePending,
	}
	s.mu.Lock()
	s.entries = append(s.entries, pending)
	s.mu.Unlock()

	m, err := s.remote.Send(ctx, s.author, s.playbookID, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(func(e *Entry) bool { return e == pending })
	if err != nil {
		pending.State = StateRolledBack
		if idx >= 0 {
			s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		}
		s.err = err.Error()
		return nil, err
	}

	// The realtime event may have delivered the message already.
	if dup := s.indexLocked(func(e *Entry) bool { return e.State == StateConfirmed && e.ID == m.ID }); dup >= 0 {
		if idx >= 0 {
			s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		}
	} else if idx >= 0 {
		s.entries[idx] = &Entry{Message: *m.clone(), State: StateConfirmed}
	} else {
		// A reload replaced the thread while the send was in flight.
		s.entries = append(s.entries, &Entry{Message: *m.clone(), State: StateConfirmed})
	}
	s.err = ""
	return m.clone(), nil
}

// Edit changes the text locally first. If the server rejects it the thread
// is reloaded.
func (s *Session) Edit(ctx context.Context, messageID uuid.UUID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.Validation("message is required")
	}
	s.mu.Lock()
	idx := s.indexLocked(func(e *Entry) bool { return e.State == StateConfirmed && e.ID == messageID })
	if idx < 0 {
		s.mu.Unlock()
		return apperr.NotFound("message not found")
	}
	if s.entries[idx].UserID != s.author.ID {
		s.mu.Unlock()
		return apperr.Forbidden("you can only change your own messages")
	}
	edited := *s.entries[idx]
	now := s.now()
	edited.Message.Message, edited.EditedAt = text, &now
	s.entries[idx] = &edited
	s.mu.Unlock()

	m, err := s.remote.Edit(ctx, s.author.ID, messageID, text)
	if err != nil {
		s.reload(ctx)
		return s.fail(err)
	}
	s.replace(m)
	return nil
}

// Delete removes the message locally first and reloads on failure.
func (s *Session) Delete(ctx context.Context, messageID uuid.UUID) error {
	s.mu.Lock()
	idx := s.indexLocked(func(e *Entry) bool { return e.State == StateConfirmed && e.ID == messageID })
	if idx < 0 {
		s.mu.Unlock()
		return apperr.NotFound("message not found")
	}
	if s.entries[idx].UserID != s.author.ID {
		s.mu.Unlock()
		return apperr.Forbidden("you can only change your own messages")
	}
	s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
	s.mu.Unlock()

	if err := s.remote.Delete(ctx, s.author.ID, messageID); err != nil {
		s.reload(ctx)
		return s.fail(err)
	}
	return nil
}

// NotifyTyping sends one typing signal per burst of keystrokes. The burst
// ends after the typing delay passes without another call.
func (s *Session) NotifyTyping(ctx context.Context) error {
	if err := s.temporary(); err != nil {
		return err
	}
	s.mu.Lock()
	first := !s.isTyping
	s.isTyping = true
	s.mu.Unlock()

	s.typing.Trigger(func() {
		s.mu.Lock()
		s.isTyping = false
		s.mu.Unlock()
	})
	if !first {
		return nil
	}
	id, err := shortid.EnsureUUID(s.playbookID)
	if err != nil {
		return err
	}
	return s.remote.Typing(ctx, s.author, id)
}

// ApplyEvent folds a realtime event from another client into the thread.
func (s *Session) ApplyEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case EventMessageCreated:
		if ev.Message == nil {
			return
		}
		if s.indexLocked(func(e *Entry) bool { return e.State == StateConfirmed && e.ID == ev.Message.ID }) >= 0 {
			return
		}
		s.entries = append(s.entries, &Entry{Message: *ev.Message.clone(), State: StateConfirmed})
		delete(s.typers, ev.Message.UserID)
	case EventMessageUpdated:
		if ev.Message != nil {
			s.replaceLocked(ev.Message)
		}
	case EventMessageDeleted:
		if idx := s.indexLocked(func(e *Entry) bool { return e.State == StateConfirmed && e.ID == ev.MessageID }); idx >= 0 {
			s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
		}
	case EventTyping:
		if ev.UserID != s.author.ID {
			at := ev.At
			if at.IsZero() {
				at = s.now()
			}
			s.typers[ev.UserID] = typer{username: ev.Username, at: at}
		}
	}
}

// Typers lists other users who signalled typing within the typing delay.
func (s *Session) Typers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.typing.Delay())
	var out []string
	for id, t := range s.typers {
		if t.at.Before(cutoff) {
			delete(s.typers, id)
			continue
		}
		out = append(out, t.username)
	}
	return out
}

func (s *Session) IsTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTyping
}

// Messages returns a snapshot of the visible thread in display order.
func (s *Session) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
		out[i].Message = *e.Message.clone()
	}
	return out
}

func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the typing timer.
func (s *Session) Close() {
	s.typing.Stop()
}

func (s *Session) reload(ctx context.Context) {
	if err := s.Load(ctx); err != nil {
		s.log.Warn().Err(err).Str("playbook_id", s.playbookID).Msg("chat reload failed")
	}
}

func (s *Session) replace(m *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(m)
}

func (s *Session) replaceLocked(m *Message) {
	if idx := s.indexLocked(func(e *Entry) bool { return e.State == StateConfirmed && e.ID == m.ID }); idx >= 0 {
		s.entries[idx] = &Entry{Message: *m.clone(), State: StateConfirmed}
	}
}

func (s *Session) indexLocked(match func(*Entry) bool) int {
	for i, e := range s.entries {
		if match(e) {
			return i
		}
	}
	return -1
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.err = err.Error()
	s.mu.Unlock()
	return err
}
