package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
	"github.com/PabloGalante/fiqh-assistant/internal/observability"
)

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	default:
		return "delete"
	}
}

type remoteOp struct {
	kind     opKind
	session  domain.Session   // insert
	messages []domain.Message // update
}

// Propagator is the only writer to the local cache and the remote store.
//
// Local writes happen synchronously in the caller. Remote writes are queued
// per session id and applied in order by one goroutine per busy session, so
// writes for a session never overlap. A queued update that has not started
// yet is replaced by a newer one for the same session.
type Propagator struct {
	cache   domain.LocalCache
	remote  domain.RemoteStore
	status  *domain.StatusTracker
	timeout time.Duration

	mu      sync.Mutex
	queues  map[domain.SessionID][]remoteOp
	pending int
	idle    chan struct{}
}

func NewPropagator(cache domain.LocalCache, remote domain.RemoteStore, status *domain.StatusTracker, timeout time.Duration) *Propagator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Propagator{
		cache:   cache,
		remote:  remote,
		status:  status,
		timeout: timeout,
		queues:  make(map[domain.SessionID][]remoteOp),
		idle:    make(chan struct{}),
	}
}

// SaveLocal overwrites the cached session collection.
func (p *Propagator) SaveLocal(ctx context.Context, sessions []domain.Session) {
	if err := p.cache.SaveSessions(sessions); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to write local cache", "error", err)
	}
}

// MessagesChanged persists sessions locally and mirrors the messages of id
// remotely. A non-empty inFlight names a reply that is still streaming; it is
// kept out of the remote copy until it is finished or discarded.
func (p *Propagator) MessagesChanged(ctx context.Context, id domain.SessionID, sessions []domain.Session, inFlight domain.MessageID) {
	p.SaveLocal(ctx, sessions)
	idx := domain.FindSession(sessions, id)
	if idx < 0 {
		return
	}
	msgs := make([]domain.Message, 0, len(sessions[idx].Messages))
	for _, m := range sessions[idx].Messages {
		if inFlight != "" && m.ID == inFlight {
			continue
		}
		msgs = append(msgs, m.Clone())
	}
	p.enqueue(ctx, id, remoteOp{kind: opUpdate, messages: msgs})
}

// SessionCreated persists sessions locally and inserts session remotely.
func (p *Propagator) SessionCreated(ctx context.Context, session domain.Session, sessions []domain.Session) {
	p.SaveLocal(ctx, sessions)
	p.enqueue(ctx, session.ID, remoteOp{kind: opInsert, session: session.Clone()})
}

// SessionDeleted persists the remaining sessions and deletes id remotely.
func (p *Propagator) SessionDeleted(ctx context.Context, id domain.SessionID, sessions []domain.Session) {
	p.SaveLocal(ctx, sessions)
	p.enqueue(ctx, id, remoteOp{kind: opDelete})
}

// Flush waits until every queued remote write has been attempted.
func (p *Propagator) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.pending == 0 {
		p.mu.Unlock()
		return nil
	}
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Propagator) enqueue(ctx context.Context, id domain.SessionID, op remoteOp) {
	if p.remote == nil || !p.status.IsConnected() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	q, busy := p.queues[id]
	if n := len(q); op.kind == opUpdate && n > 0 && q[n-1].kind == opUpdate {
		q[n-1] = op
		return
	}
	p.queues[id] = append(q, op)
	p.pending++
	if !busy {
		go p.drain(observability.LoggerFromContext(ctx).With("session_id", id), id)
	}
}

// drain applies the queue of id until it is empty.
func (p *Propagator) drain(log *slog.Logger, id domain.SessionID) {
	for {
		p.mu.Lock()
		q := p.queues[id]
		if len(q) == 0 {
			delete(p.queues, id)
			p.mu.Unlock()
			return
		}
		op := q[0]
		p.queues[id] = q[1:]
		p.mu.Unlock()

		if p.status.IsConnected() {
			if err := p.apply(id, op); err != nil {
				if p.status.Demote() {
					log.Warn("remote write failed, continuing offline", "op", op.kind.String(), "error", err)
				}
			}
		} else {
			log.Debug("remote write skipped while offline", "op", op.kind.String())
		}

		p.mu.Lock()
		p.pending--
		if p.pending == 0 {
			close(p.idle)
			p.idle = make(chan struct{})
		}
		p.mu.Unlock()
	}
}

func (p *Propagator) apply(id domain.SessionID, op remoteOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	switch op.kind {
	case opInsert:
		return p.remote.InsertSession(ctx, op.session)
	case opUpdate:
		return p.remote.UpdateMessages(ctx, id, op.messages)
	default:
		return p.remote.DeleteSession(ctx, id)
	}
}
