package domain

import (
	"context"
	"iter"
)

// Chunk is one increment of a streamed reply. Either field may be empty.
type Chunk struct {
	Text    string   `json:"text,omitempty"`
	Sources []Source `json:"sources,omitempty"`
}

// GenerateRequest is what the generative provider receives for one reply.
type GenerateRequest struct {
	Prompt   string
	History  []Message // prior messages, oldest first
	Thinking bool
	Image    *Image
}

// Generator produces a lazy, finite, non-restartable chunk sequence.
// A non-nil error terminates the sequence.
type Generator interface {
	GenerateStream(ctx context.Context, req GenerateRequest) iter.Seq2[Chunk, error]
}

// Synthesizer turns one text segment into base64 PCM audio.
// An empty payload with a nil error means there is nothing to speak.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) (string, error)
}

// RemoteStore is the row-oriented remote persistence for sessions.
type RemoteStore interface {
	// ListSessions returns every session, most recently created first.
	ListSessions(ctx context.Context) ([]Session, error)
	InsertSession(ctx context.Context, session Session) error
	UpdateMessages(ctx context.Context, id SessionID, messages []Message) error
	DeleteSession(ctx context.Context, id SessionID) error
}

// BlobStore is a durable string-keyed blob store on the client device.
type BlobStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// LocalCache is the typed view of the BlobStore used by the conversation engine.
type LocalCache interface {
	// LoadSessions returns the cached collection. On malformed data it
	// returns an empty collection and an error wrapping ErrLocalParse.
	LoadSessions() ([]Session, error)
	SaveSessions(sessions []Session) error

	ActiveSessionID() SessionID
	SetActiveSessionID(id SessionID) error

	Voice() Voice
	SetVoice(v Voice) error

	Language() Language
	SetLanguage(l Language) error
}
