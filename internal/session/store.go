// Package session owns the current conversation and the bounded history of
// past conversations. The Store is the single source of truth for both: every
// mutation is synchronous and observable, and everything handed out is a
// snapshot copy.
package session

import (
	"slices"
	"sync"
	"time"

	"github.com/whoknows-ai/whoknows-go/internal/chat"
	"github.com/whoknows-ai/whoknows-go/internal/logger"
)

// MaxHistory bounds the session history. New sessions prepend; overflow drops
// the tail.
const MaxHistory = 50

// Persister saves history snapshots durably. The store treats persistence as
// best-effort: failures are logged and never propagated to callers.
type Persister interface {
	Save([]chat.Session) error
}

// Patch is a partial message update. Nil fields are left unchanged.
type Patch struct {
	Content    *string
	Pending    *bool
	Sources    []chat.Source
	Confidence *chat.Confidence
}

// Store holds the current session, the bounded history and the session-level
// error banner. All methods are safe for concurrent use; each mutation runs
// atomically, the Go rendition of the browser client's single UI task queue.
type Store struct {
	mu        sync.RWMutex
	current   *chat.Session
	history   []chat.Session
	errText   string
	persist   Persister
	listeners []func()
	now       func() time.Time
}

// New builds a store seeded with a previously loaded history. persist may be
// nil, in which case the store is memory-only.
func New(initial []chat.Session, persist Persister) *Store {
	s := &Store{persist: persist, now: time.Now}
	for _, sess := range initial {
		s.history = append(s.history, sess.Clone())
	}
	if len(s.history) > MaxHistory {
		s.history = s.history[:MaxHistory]
	}
	return s
}

// Subscribe registers fn to run synchronously after every state change.
// Intended for presentation layers that re-render from snapshots.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// StartNewSession clears the current-session pointer and the error banner.
// History is untouched; the next appended message starts a fresh session.
func (s *Store) StartNewSession() {
	s.mu.Lock()
	s.current = nil
	s.errText = ""
	s.mu.Unlock()
	s.notify()
}

// AppendMessage adds draft to the current session, creating the session first
// when none exists. The store assigns the id and timestamp and returns the id
// so later reconciliation can address this exact message.
func (s *Store) AppendMessage(draft chat.Message) string {
	s.mu.Lock()
	msg := draft.Clone()
	msg.ID = chat.NewID()
	msg.CreatedAt = s.now()

	if s.current == nil {
		s.current = &chat.Session{
			ID:    chat.NewID(),
			Title: chat.DeriveTitle(msg.Content),
		}
		logger.L.Debug("created session", "id", s.current.ID, "title", s.current.Title)
	}
	s.current.Messages = append(s.current.Messages, msg)
	s.refreshDerivedLocked()
	s.upsertHistoryLocked()
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
	return msg.ID
}

// UpdateMessage applies patch to the message with the given id in the current
// session. Unknown ids are a silent no-op. Only patched fields change; sibling
// messages and ordering are untouched.
func (s *Store) UpdateMessage(id string, patch Patch) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	idx := slices.IndexFunc(s.current.Messages, func(m chat.Message) bool { return m.ID == id })
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	m := &s.current.Messages[idx]
	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Pending != nil {
		m.Pending = *patch.Pending
	}
	if patch.Sources != nil {
		m.Sources = slices.Clone(patch.Sources)
	}
	if patch.Confidence != nil {
		c := *patch.Confidence
		m.Confidence = &c
	}
	s.refreshDerivedLocked()
	s.upsertHistoryLocked()
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
}

// DeleteMessage removes exactly one message by id from the current session.
func (s *Store) DeleteMessage(id string) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	idx := slices.IndexFunc(s.current.Messages, func(m chat.Message) bool { return m.ID == id })
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	s.current.Messages = slices.Delete(s.current.Messages, idx, idx+1)
	s.refreshDerivedLocked()
	s.upsertHistoryLocked()
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
}

// LoadSession makes the stored session with the given id current. Absent ids
// change nothing.
func (s *Store) LoadSession(id string) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.history, func(sess chat.Session) bool { return sess.ID == id })
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	sess := s.history[idx].Clone()
	s.current = &sess
	s.mu.Unlock()
	s.notify()
}

// DeleteSession removes the session from history. Deleting the current
// session leaves the store with no current session.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.history, func(sess chat.Session) bool { return sess.ID == id })
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	s.history = slices.Delete(s.history, idx, idx+1)
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
}

// SetError sets the session-level error banner. An empty string clears it.
func (s *Store) SetError(text string) {
	s.mu.Lock()
	s.errText = text
	s.mu.Unlock()
	s.notify()
}

// ClearError removes the error banner.
func (s *Store) ClearError() {
	s.SetError("")
}

// Current returns a snapshot of the current session.
func (s *Store) Current() (chat.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return chat.Session{}, false
	}
	return s.current.Clone(), true
}

// CurrentID returns the current session id, or "" when no session is active.
func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// Message returns a snapshot of one message from the current session.
func (s *Store) Message(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return chat.Message{}, false
	}
	idx := slices.IndexFunc(s.current.Messages, func(m chat.Message) bool { return m.ID == id })
	if idx == -1 {
		return chat.Message{}, false
	}
	return s.current.Messages[idx].Clone(), true
}

// History returns a snapshot of the session history, most recent first.
func (s *Store) History() []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Session, len(s.history))
	for i, sess := range s.history {
		out[i] = sess.Clone()
	}
	return out
}

// Err returns the session-level error banner, or "" when clear.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errText
}

// refreshDerivedLocked recomputes preview and updatedAt from the last message.
func (s *Store) refreshDerivedLocked() {
	if s.current == nil {
		return
	}
	preview := ""
	if n := len(s.current.Messages); n > 0 {
		preview = chat.DerivePreview(s.current.Messages[n-1].Content)
	}
	s.current.Preview = preview
	s.current.UpdatedAt = s.now()
}

// upsertHistoryLocked mirrors the current session into history: in place when
// its id is already present, prepended otherwise. Overflow drops the tail.
func (s *Store) upsertHistoryLocked() {
	if s.current == nil {
		return
	}
	snap := s.current.Clone()
	idx := slices.IndexFunc(s.history, func(sess chat.Session) bool { return sess.ID == snap.ID })
	if idx != -1 {
		s.history[idx] = snap
		return
	}
	s.history = slices.Insert(s.history, 0, snap)
	for _, evicted := range s.history[min(MaxHistory, len(s.history)):] {
		logger.L.Debug("history full, evicting session", "id", evicted.ID, "title", evicted.Title)
	}
	if len(s.history) > MaxHistory {
		s.history = slices.Delete(s.history, MaxHistory, len(s.history))
	}
}

func (s *Store) persistLocked() {
	if s.persist == nil {
		return
	}
	snap := make([]chat.Session, len(s.history))
	for i, sess := range s.history {
		snap[i] = sess.Clone()
	}
	if err := s.persist.Save(snap); err != nil {
		logger.L.Warn("failed to persist session history", "error", err)
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
