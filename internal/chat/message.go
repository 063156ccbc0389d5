package chat

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks an answer (or placeholder) from the answering service.
	RoleAssistant Role = "assistant"
)

// SourceKind identifies where a citation points.
type SourceKind string

const (
	SourceDocument SourceKind = "document"
	SourceURL      SourceKind = "url"
)

// Source is a citation attached to an assistant message. Immutable once attached.
type Source struct {
	Kind    SourceKind `json:"kind"`
	Title   string     `json:"title"`
	Locator string     `json:"locator,omitempty"`
}

// ConfidenceLevel is the coarse bucket the service assigns to an answer.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Confidence describes how sure the answering service is about an answer.
type Confidence struct {
	Level       ConfidenceLevel `json:"level"`
	Score       float64         `json:"score"`
	Explanation string          `json:"explanation,omitempty"`
}

// Message is one turn in a session. ID and CreatedAt are assigned by the
// session store on append and never change afterwards. Pending marks an
// assistant placeholder whose real answer has not arrived yet; it is a
// runtime flag and is deliberately excluded from serialization.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
	Sources    []Source    `json:"sources,omitempty"`
	Confidence *Confidence `json:"confidence,omitempty"`
	Pending    bool        `json:"-"`
}

// NewID returns a fresh identifier. IDs address messages and sessions across
// the whole history, so they must never collide.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a deep copy so callers can hand messages out as read-only
// snapshots.
func (m Message) Clone() Message {
	out := m
	if m.Sources != nil {
		out.Sources = slices.Clone(m.Sources)
	}
	if m.Confidence != nil {
		c := *m.Confidence
		out.Confidence = &c
	}
	return out
}
