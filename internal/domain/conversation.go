package domain

import (
	"strings"
	"time"
)

// WelcomeMessageID identifies the synthetic introductory assistant message.
const WelcomeMessageID MessageID = "welcome"

// UntitledSession is the title used when the first prompt has no text (image only).
const UntitledSession = "New Inquiry"

// ImagePromptPlaceholder is the user message content for image-only prompts.
const ImagePromptPlaceholder = "(Analyzed Archive Image)"

// VerbatimMarker separates the answer from the quoted archive record in a reply.
const VerbatimMarker = "OFFICIAL VERBATIM RECORD"

const sessionTitleLimit = 40

// Image is an inline attachment, base64 encoded.
type Image struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// Source is a citation attached to an assistant message.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ReplyRef anchors a user message to an earlier message.
type ReplyRef struct {
	ID      MessageID `json:"id"`
	Content string    `json:"content"`
	Role    Role      `json:"role"`
}

// Message represents any message in a conversation (user or assistant)
type Message struct {
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`

	Image   *Image    `json:"image,omitempty"`
	Sources []Source  `json:"sources,omitempty"`
	ReplyTo *ReplyRef `json:"replyTo,omitempty"`
}

// Session is one persisted conversation. Title and CreatedAt never change after creation.
type Session struct {
	ID        SessionID `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Image != nil {
		img := *m.Image
		out.Image = &img
	}
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		out.ReplyTo = &ref
	}
	if m.Sources != nil {
		out.Sources = append([]Source(nil), m.Sources...)
	}
	return out
}

// CloneMessages deep-copies a message list.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.Messages = CloneMessages(s.Messages)
	return out
}

// CloneSessions deep-copies a session list.
func CloneSessions(sessions []Session) []Session {
	out := make([]Session, len(sessions))
	for i, s := range sessions {
		out[i] = s.Clone()
	}
	return out
}

// Ref builds the reply anchor for this message.
func (m Message) Ref() *ReplyRef {
	return &ReplyRef{ID: m.ID, Content: m.Content, Role: m.Role}
}

// IsIntro reports whether m is the synthetic introductory message.
func (m Message) IsIntro() bool {
	return m.ID == WelcomeMessageID && m.Role == RoleAssistant
}

// HasRealMessages reports whether msgs contains anything besides the
// introductory message at position zero.
func HasRealMessages(msgs []Message) bool {
	for i, m := range msgs {
		if i == 0 && m.IsIntro() {
			continue
		}
		return true
	}
	return false
}

// IntroMessage builds the localized introductory assistant message.
func IntroMessage(lang Language, now time.Time) Message {
	return Message{
		ID:        WelcomeMessageID,
		Role:      RoleAssistant,
		Content:   IntroText(lang),
		Timestamp: now,
	}
}

// SessionTitle derives a title from the first prompt.
func SessionTitle(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return UntitledSession
	}
	runes := []rune(prompt)
	if len(runes) > sessionTitleLimit {
		runes = runes[:sessionTitleLimit]
	}
	return string(runes) + "..."
}

// FindMessage returns the index of id in msgs, or -1.
func FindMessage(msgs []Message, id MessageID) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// FindSession returns the index of id in sessions, or -1.
func FindSession(sessions []Session, id SessionID) int {
	for i := range sessions {
		if sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// AnswerText returns the part of a reply before the verbatim record.
func AnswerText(content string) string {
	if i := strings.Index(content, VerbatimMarker); i >= 0 {
		return content[:i]
	}
	return content
}
