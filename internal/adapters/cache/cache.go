// Package cache is the typed Local Cache over a device blob store.
package cache

import (
	"encoding/json"
	"fmt"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
	"github.com/PabloGalante/fiqh-assistant/internal/observability"
)

// Persisted keys.
const (
	KeyVoice         = "al_fiqh_selected_voice"
	KeyLanguage      = "al_fiqh_selected_lang"
	KeyActiveSession = "al_fiqh_active_session_id"
	KeySessions      = "al_fiqh_local_sessions"
)

// Cache implements domain.LocalCache on top of a domain.BlobStore.
// Sessions are stored as one JSON document; timestamps are RFC 3339 strings.
type Cache struct {
	store domain.BlobStore
}

func New(store domain.BlobStore) *Cache {
	return &Cache{store: store}
}

func (c *Cache) LoadSessions() ([]domain.Session, error) {
	raw, ok, err := c.store.Get(KeySessions)
	if err != nil {
		return []domain.Session{}, fmt.Errorf("%w: reading sessions: %v", domain.ErrLocalParse, err)
	}
	if !ok || raw == "" {
		return []domain.Session{}, nil
	}

	var sessions []domain.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return []domain.Session{}, fmt.Errorf("%w: %v", domain.ErrLocalParse, err)
	}
	for i := range sessions {
		if sessions[i].Messages == nil {
			sessions[i].Messages = []domain.Message{}
		}
	}
	return sessions, nil
}

func (c *Cache) SaveSessions(sessions []domain.Session) error {
	if sessions == nil {
		sessions = []domain.Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encoding sessions: %w", err)
	}
	if err := c.store.Set(KeySessions, string(data)); err != nil {
		return fmt.Errorf("writing sessions: %w", err)
	}
	return nil
}

func (c *Cache) ActiveSessionID() domain.SessionID {
	return domain.SessionID(c.get(KeyActiveSession))
}

func (c *Cache) SetActiveSessionID(id domain.SessionID) error {
	return c.store.Set(KeyActiveSession, string(id))
}

func (c *Cache) Voice() domain.Voice {
	if v := c.get(KeyVoice); v != "" {
		return domain.ParseVoice(v)
	}
	return domain.DefaultVoice
}

func (c *Cache) SetVoice(v domain.Voice) error {
	return c.store.Set(KeyVoice, string(v))
}

func (c *Cache) Language() domain.Language {
	if v := c.get(KeyLanguage); v != "" {
		return domain.ParseLanguage(v)
	}
	return domain.DefaultLanguage
}

func (c *Cache) SetLanguage(l domain.Language) error {
	return c.store.Set(KeyLanguage, string(l))
}

// get treats read errors as absence; scalar preferences always have a default.
func (c *Cache) get(key string) string {
	v, ok, err := c.store.Get(key)
	if err != nil {
		observability.Logger().Warn("local cache read failed", "key", key, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}
