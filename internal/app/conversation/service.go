package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
	"github.com/PabloGalante/fiqh-assistant/internal/observability"
)

// Service owns the session collection and the visible conversation.
// Every mutation goes through it; the Propagator mirrors the result.
type Service struct {
	gen    domain.Generator
	cache  domain.LocalCache
	remote domain.RemoteStore
	status *domain.StatusTracker
	prop   *Propagator

	now           func() time.Time
	newID         func() string
	remoteTimeout time.Duration

	mu          sync.Mutex
	sessions    []domain.Session
	activeID    domain.SessionID
	messages    []domain.Message
	language    domain.Language
	voice       domain.Voice
	loading     bool
	streaming   domain.MessageID // reply being filled while loading
	reconciling bool
	lastErr     error
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the uuid generator for session and message ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithRemoteTimeout bounds every remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(s *Service) { s.remoteTimeout = d }
}

// WithStatusTracker shares an existing status instead of creating one.
func WithStatusTracker(t *domain.StatusTracker) Option {
	return func(s *Service) { s.status = t }
}

// NewService builds the engine. remote may be nil, which means local-only.
// Call Reconcile before use.
func NewService(gen domain.Generator, cache domain.LocalCache, remote domain.RemoteStore, opts ...Option) *Service {
	s := &Service{
		gen:           gen,
		cache:         cache,
		remote:        remote,
		now:           time.Now,
		newID:         uuid.NewString,
		remoteTimeout: 10 * time.Second,
		language:      domain.DefaultLanguage,
		voice:         domain.DefaultVoice,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.status == nil {
		s.status = domain.NewStatusTracker()
	}
	s.prop = NewPropagator(cache, remote, s.status, s.remoteTimeout)
	s.messages = []domain.Message{domain.IntroMessage(s.language, s.now())}
	return s
}

// View is a consistent copy of the engine state.
type View struct {
	Sessions        []domain.Session          `json:"sessions"`
	ActiveSessionID domain.SessionID          `json:"activeSessionId,omitempty"`
	Messages        []domain.Message          `json:"messages"`
	Status          domain.ConnectivityStatus `json:"status"`
	Loading         bool                      `json:"loading"`
	Error           string                    `json:"error,omitempty"`
	Voice           domain.Voice              `json:"voice"`
	Language        domain.Language           `json:"language"`
}

func (s *Service) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Sessions:        domain.CloneSessions(s.sessions),
		ActiveSessionID: s.activeID,
		Messages:        domain.CloneMessages(s.messages),
		Status:          s.status.Current(),
		Loading:         s.loading,
		Voice:           s.voice,
		Language:        s.language,
	}
	if s.lastErr != nil {
		v.Error = domain.GenerationFailedNotice
	}
	return v
}

func (s *Service) Status() domain.ConnectivityStatus {
	return s.status.Current()
}

// Sessions returns the session collection, most recently created first
// except for local-only sessions, which follow the remote ones.
func (s *Service) Sessions() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneSessions(s.sessions)
}

// Message finds a message in the visible conversation.
func (s *Service) Message(id domain.MessageID) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := domain.FindMessage(s.messages, id)
	if idx < 0 {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	return s.messages[idx].Clone(), nil
}

// LastError is the error of the last failed reply, until ClearError.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Service) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil
}

// Flush waits for queued remote writes.
func (s *Service) Flush(ctx context.Context) error {
	return s.prop.Flush(ctx)
}

// StartNewChat clears the active session and shows the introduction.
func (s *Service) StartNewChat(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyLocked() {
		return domain.ErrBusy
	}
	s.resetLocked(ctx)
	return nil
}

// SwitchSession makes id the active session.
func (s *Service) SwitchSession(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyLocked() {
		return domain.ErrBusy
	}
	idx := domain.FindSession(s.sessions, id)
	if idx < 0 {
		return domain.ErrSessionNotFound
	}
	s.activeID = id
	s.messages = domain.CloneMessages(s.sessions[idx].Messages)
	s.lastErr = nil
	s.persistActiveLocked(ctx)
	return nil
}

// DeleteSession removes id locally at once and remotely in the background.
func (s *Service) DeleteSession(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconciling || (s.loading && id == s.activeID) {
		return domain.ErrBusy
	}
	idx := domain.FindSession(s.sessions, id)
	if idx < 0 {
		return domain.ErrSessionNotFound
	}

	s.sessions = append(s.sessions[:idx:idx], s.sessions[idx+1:]...)
	s.prop.SessionDeleted(ctx, id, domain.CloneSessions(s.sessions))
	observability.LoggerFromContext(ctx).Info("session deleted", "session_id", id)

	if id == s.activeID {
		s.resetLocked(ctx)
	}
	return nil
}

func (s *Service) Voice() domain.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

func (s *Service) SetVoice(ctx context.Context, v domain.Voice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = v
	if err := s.cache.SetVoice(v); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to save voice", "error", err)
	}
}

func (s *Service) Language() domain.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// SetLanguage stores the preference. An untouched introduction is re-rendered
// in the new language.
func (s *Service) SetLanguage(ctx context.Context, l domain.Language) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = l
	if err := s.cache.SetLanguage(l); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to save language", "error", err)
	}
	if s.activeID == "" && !domain.HasRealMessages(s.messages) {
		s.messages = []domain.Message{domain.IntroMessage(l, s.now())}
	}
}

// busyLocked reports whether a reply is streaming or a reconciliation is
// replacing the session collection.
func (s *Service) busyLocked() bool {
	return s.loading || s.reconciling
}

func (s *Service) resetLocked(ctx context.Context) {
	s.activeID = ""
	s.messages = []domain.Message{domain.IntroMessage(s.language, s.now())}
	s.lastErr = nil
	s.persistActiveLocked(ctx)
}

func (s *Service) persistActiveLocked(ctx context.Context) {
	if err := s.cache.SetActiveSessionID(s.activeID); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to save active session", "error", err)
	}
}

// commitLocked copies the visible conversation into the active session and
// hands the collection to the Propagator.
func (s *Service) commitLocked(ctx context.Context) {
	if s.activeID == "" || !domain.HasRealMessages(s.messages) {
		return
	}
	idx := domain.FindSession(s.sessions, s.activeID)
	if idx < 0 {
		return
	}
	s.sessions[idx].Messages = domain.CloneMessages(s.messages)
	s.prop.MessagesChanged(ctx, s.activeID, domain.CloneSessions(s.sessions), s.streaming)
}

// remoteContext bounds a remote call by the configured timeout.
func (s *Service) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.remoteTimeout)
}
