package chat

import "time"

// Title and preview are derived from message content with rune-based limits,
// so multi-byte text is never cut mid-character.
const (
	maxTitleRunes   = 50
	titleKeepRunes  = 47
	maxPreviewRunes = 100
)

// Session is a titled, ordered sequence of messages. Title is derived from
// the first message and fixed afterwards; Preview and UpdatedAt follow the
// most recent message.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeriveTitle shortens content to a session title: at most 50 visible
// characters, longer content becomes the first 47 plus an ellipsis.
func DeriveTitle(content string) string {
	r := []rune(content)
	if len(r) <= maxTitleRunes {
		return content
	}
	return string(r[:titleKeepRunes]) + "…"
}

// DerivePreview returns the first 100 visible characters of content.
func DerivePreview(content string) string {
	r := []rune(content)
	if len(r) <= maxPreviewRunes {
		return content
	}
	return string(r[:maxPreviewRunes])
}

// Clone returns a deep copy of the session including its messages.
func (s Session) Clone() Session {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}
