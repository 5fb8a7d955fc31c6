// Package chat is the per-playbook message thread: persistence, realtime
// fan-out over Redis and websockets, and the optimistic client Session.
package chat

import (
	"context"
	"strings"
	"time"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/drafts"
	"go-playbooks/internal/shortid"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxMessageLength = 4000

type Store interface {
	List(ctx context.Context, playbookID uuid.UUID) ([]*Message, error)
	Get(ctx context.Context, id uuid.UUID) (*Message, error)
	Insert(ctx context.Context, m *Message) error
	Update(ctx context.Context, id uuid.UUID, text string) (*Message, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type Playbooks interface {
	CheckAccess(ctx context.Context, userID, playbookID uuid.UUID) error
}

// Publisher fans events out to connected clients. *Hub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Service struct {
	store     Store
	playbooks Playbooks
	pub       Publisher
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(store Store, playbooks Playbooks, pub Publisher, log zerolog.Logger) *Service {
	return &Service{store: store, playbooks: playbooks, pub: pub, log: log, now: time.Now}
}

// Resolve turns a raw playbook id into a UUID the user may chat on.
// Unsaved drafts have no thread.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID, rawPlaybookID string) (uuid.UUID, error) {
	if drafts.IsTemporaryID(rawPlaybookID) {
		return uuid.Nil, apperr.Validation("save the playbook before chatting")
	}
	id, err := shortid.EnsureUUID(rawPlaybookID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.playbooks.CheckAccess(ctx, userID, id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, rawPlaybookID string) ([]*Message, error) {
	id, err := s.Resolve(ctx, userID, rawPlaybookID)
	if err != nil {
		return nil, err
	}
	list, err := s.store.List(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("playbook_id", id.String()).Msg("list messages failed")
		return nil, err
	}
	if list == nil {
		list = []*Message{}
	}
	return list, nil
}

// Send stores a message and pushes it to everyone watching the playbook.
func (s *Service) Send(ctx context.Context, author Author, rawPlaybookID, text string) (*Message, error) {
	text, err := cleanText(text)
	if err != nil {
		return nil, err
	}
	id, err := s.Resolve(ctx, author.ID, rawPlaybookID)
	if err != nil {
		return nil, err
	}
	m := &Message{PlaybookID: id, UserID: author.ID, Username: author.Username, Message: text}
	if err := s.store.Insert(ctx, m); err != nil {
		s.log.Error().Err(err).Str("playbook_id", id.String()).Msg("save message failed")
		return nil, err
	}
	s.publish(ctx, Event{Type: EventMessageCreated, PlaybookID: id, Message: m, UserID: author.ID, Username: author.Username})
	return m, nil
}

// Edit changes the text of the caller's own message.
func (s *Service) Edit(ctx context.Context, userID, messageID uuid.UUID, text string) (*Message, error) {
	text, err := cleanText(text)
	if err != nil {
		return nil, err
	}
	m, err := s.own(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, m.ID, text)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Type: EventMessageUpdated, PlaybookID: m.PlaybookID, Message: updated, UserID: userID})
	return updated, nil
}

// Delete soft-deletes the caller's own message.
func (s *Service) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	m, err := s.own(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if err := s.store.SoftDelete(ctx, m.ID); err != nil {
		return err
	}
	s.publish(ctx, Event{Type: EventMessageDeleted, PlaybookID: m.PlaybookID, MessageID: m.ID, UserID: userID})
	return nil
}

// Typing announces that author is typing on an already resolved playbook.
func (s *Service) Typing(ctx context.Context, author Author, playbookID uuid.UUID) error {
	return s.pub.Publish(ctx, Event{Type: EventTyping, PlaybookID: playbookID, UserID: author.ID, Username: author.Username, At: s.now()})
}

// MessageIn checks that a message belongs to the playbook in the URL.
func (s *Service) MessageIn(ctx context.Context, playbookID, messageID uuid.UUID) error {
	m, err := s.store.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if m.PlaybookID != playbookID {
		return apperr.NotFound("message not found")
	}
	return nil
}

func (s *Service) own(ctx context.Context, userID, messageID uuid.UUID) (*Message, error) {
	m, err := s.store.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, apperr.Forbidden("you can only change your own messages")
	}
	return m, nil
}

// publish failures are logged; the write already succeeded and clients
// catch up on their next load.
func (s *Service) publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", string(ev.Type)).Str("playbook_id", ev.PlaybookID.String()).Msg("publish chat event failed")
	}
}

func cleanText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation("message is required")
	}
	if len(text) > maxMessageLength {
		return "", apperr.Validation("message is too long")
	}
	return text, nil
}
