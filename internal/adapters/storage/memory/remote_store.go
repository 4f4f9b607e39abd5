package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

// Op names a RemoteStore operation, used for failure injection.
type Op string

const (
	OpList   Op = "list"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// RemoteStore is an in-memory domain.RemoteStore.
// It is NOT persistent and is only suitable for development / tests.
type RemoteStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]domain.Session
	failures map[Op]error
	calls    map[Op]int
}

func NewRemoteStore(seed ...domain.Session) *RemoteStore {
	s := &RemoteStore{
		sessions: make(map[domain.SessionID]domain.Session),
		failures: make(map[Op]error),
		calls:    make(map[Op]int),
	}
	for _, sess := range seed {
		s.sessions[sess.ID] = sess.Clone()
	}
	return s
}

// FailWith makes every subsequent call of op return err. A nil err clears it.
func (s *RemoteStore) FailWith(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how many times op was invoked.
func (s *RemoteStore) Calls(op Op) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// Get returns a copy of the stored session.
func (s *RemoteStore) Get(id domain.SessionID) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	return sess.Clone(), ok
}

func (s *RemoteStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	if err := s.begin(OpList); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *RemoteStore) InsertSession(ctx context.Context, session domain.Session) error {
	if err := s.begin(OpInsert); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return errors.New("session already exists")
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *RemoteStore) UpdateMessages(ctx context.Context, id domain.SessionID, messages []domain.Message) error {
	if err := s.begin(OpUpdate); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Like a row update, an unknown id matches nothing and is not an error.
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.Messages = domain.CloneMessages(messages)
	s.sessions[id] = sess
	return nil
}

func (s *RemoteStore) DeleteSession(ctx context.Context, id domain.SessionID) error {
	if err := s.begin(OpDelete); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *RemoteStore) begin(op Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	return s.failures[op]
}
