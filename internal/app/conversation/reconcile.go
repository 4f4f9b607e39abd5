package conversation

import (
	"context"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
	"github.com/PabloGalante/fiqh-assistant/internal/observability"
)

// Merge returns every remote session followed by the local sessions whose id
// is not present remotely, each group in its original order.
func Merge(remote, local []domain.Session) []domain.Session {
	seen := make(map[domain.SessionID]struct{}, len(remote))
	out := make([]domain.Session, 0, len(remote)+len(local))
	for _, s := range remote {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s.Clone())
	}
	for _, s := range local {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s.Clone())
	}
	return out
}

// ReconcileResult is the outcome of one reconciliation.
type ReconcileResult struct {
	Sessions []domain.Session
	Status   domain.ConnectivityStatus
}

// Reconcile merges the cached sessions with the remote ones, resolves the
// connectivity status and restores the preferences and the active session.
// Remote and cache failures only lower the status. It returns ErrBusy while
// a reply is streaming or another reconciliation runs; while it runs, every
// operation that changes the session collection returns ErrBusy.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	log := observability.LoggerFromContext(ctx)

	s.mu.Lock()
	if s.busyLocked() {
		s.mu.Unlock()
		return ReconcileResult{}, domain.ErrBusy
	}
	s.reconciling = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.reconciling = false
		s.mu.Unlock()
	}()

	local, err := s.cache.LoadSessions()
	if err != nil {
		log.Warn("local cache unreadable, starting empty", "error", err)
		local = nil
	}

	merged, status := s.fetchRemote(ctx, local)
	s.status.Resolve(status)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = merged
	s.language = s.cache.Language()
	s.voice = s.cache.Voice()
	if len(merged) > 0 {
		s.prop.SaveLocal(ctx, domain.CloneSessions(merged))
	}

	s.activeID = ""
	s.messages = []domain.Message{domain.IntroMessage(s.language, s.now())}
	if id := s.cache.ActiveSessionID(); id != "" {
		if idx := domain.FindSession(merged, id); idx >= 0 {
			s.activeID = id
			s.messages = domain.CloneMessages(merged[idx].Messages)
		}
	}

	log.Info("sessions reconciled",
		"status", status,
		"local_count", len(local),
		"merged_count", len(merged),
		"active_session_id", s.activeID,
	)
	return ReconcileResult{Sessions: domain.CloneSessions(merged), Status: status}, nil
}

func (s *Service) fetchRemote(ctx context.Context, local []domain.Session) ([]domain.Session, domain.ConnectivityStatus) {
	if s.remote == nil {
		return domain.CloneSessions(local), domain.StatusOffline
	}

	rctx, cancel := s.remoteContext(ctx)
	defer cancel()

	remote, err := s.remote.ListSessions(rctx)
	if err != nil {
		status := domain.ClassifyRemoteError(err)
		observability.LoggerFromContext(ctx).Warn("remote sessions unavailable", "status", status, "error", err)
		return domain.CloneSessions(local), status
	}
	return Merge(remote, local), domain.StatusConnected
}
