package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
	"github.com/PabloGalante/fiqh-assistant/internal/observability"
)

type SendInput struct {
	Prompt string
	Image  *domain.Image
	// ReplyTo anchors the prompt to a message of the visible conversation.
	ReplyTo  domain.MessageID
	Thinking bool
}

// ChunkFunc observes each chunk after it has been applied.
type ChunkFunc func(domain.Chunk)

// Send appends the user message and an empty assistant reply, then fills the
// reply from the generator's stream. A session is created when none is active.
//
// On a stream error or ctx cancellation the reply is removed, the user message
// stays, and the returned error wraps domain.ErrGenerationInterrupted.
func (s *Service) Send(ctx context.Context, in SendInput, onChunk ChunkFunc) (domain.Message, error) {
	begun, err := s.beginReply(ctx, in)
	if err != nil {
		return domain.Message{}, err
	}

	ctx = observability.WithSessionID(ctx, string(begun.sessionID))
	log := observability.LoggerFromContext(ctx)
	log.Info("streaming reply", "thinking", in.Thinking, "has_image", in.Image != nil)

	var streamErr error
	for chunk, err := range s.gen.GenerateStream(ctx, begun.req) {
		if err != nil {
			streamErr = err
			break
		}
		if err := ctx.Err(); err != nil {
			streamErr = err
			break
		}
		s.applyChunk(ctx, begun.replyID, chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	if streamErr != nil {
		s.discardReply(ctx, begun.replyID, streamErr)
		log.Error("reply interrupted", "error", streamErr)
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrGenerationInterrupted, streamErr)
	}

	reply := s.finishReply(ctx, begun.replyID)
	log.Info("reply completed", "chars", len(reply.Content), "sources", len(reply.Sources))
	return reply, nil
}

type begunReply struct {
	sessionID domain.SessionID
	replyID   domain.MessageID
	req       domain.GenerateRequest
}

func (s *Service) beginReply(ctx context.Context, in SendInput) (begunReply, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" && in.Image == nil {
		return begunReply{}, domain.ErrEmptyPrompt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyLocked() {
		return begunReply{}, domain.ErrBusy
	}

	var anchor *domain.ReplyRef
	if in.ReplyTo != "" {
		idx := domain.FindMessage(s.messages, in.ReplyTo)
		if idx < 0 {
			return begunReply{}, domain.ErrMessageNotFound
		}
		anchor = s.messages[idx].Ref()
	}

	if s.activeID == "" {
		s.createSessionLocked(ctx, prompt)
	}

	now := s.now()
	content := prompt
	if content == "" {
		content = domain.ImagePromptPlaceholder
	}
	user := domain.Message{
		ID:        domain.MessageID(s.newID()),
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: now,
		ReplyTo:   anchor,
	}
	if in.Image != nil {
		img := *in.Image
		user.Image = &img
	}
	reply := domain.Message{
		ID:        domain.MessageID(s.newID()),
		Role:      domain.RoleAssistant,
		Timestamp: now,
	}

	history := domain.CloneMessages(s.messages)
	s.messages = append(s.messages, user, reply)
	s.loading = true
	s.streaming = reply.ID
	s.lastErr = nil
	s.commitLocked(ctx)

	return begunReply{
		sessionID: s.activeID,
		replyID:   reply.ID,
		req: domain.GenerateRequest{
			Prompt:   ComposePrompt(s.language, prompt, anchor),
			History:  history,
			Thinking: in.Thinking,
			Image:    user.Image,
		},
	}, nil
}

func (s *Service) createSessionLocked(ctx context.Context, prompt string) {
	now := s.now()
	if len(s.messages) == 0 {
		s.messages = []domain.Message{domain.IntroMessage(s.language, now)}
	}
	session := domain.Session{
		ID:        domain.SessionID(s.newID()),
		Title:     domain.SessionTitle(prompt),
		Messages:  []domain.Message{domain.IntroMessage(s.language, now)},
		CreatedAt: now,
	}
	s.sessions = append([]domain.Session{session}, s.sessions...)
	s.activeID = session.ID
	s.persistActiveLocked(ctx)
	s.prop.SessionCreated(ctx, session, domain.CloneSessions(s.sessions))

	observability.LoggerFromContext(ctx).Info("session created", "session_id", session.ID, "title", session.Title)
}

// applyChunk appends one increment to the streaming reply.
func (s *Service) applyChunk(ctx context.Context, id domain.MessageID, chunk domain.Chunk) {
	if chunk.Text == "" && len(chunk.Sources) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := domain.FindMessage(s.messages, id)
	if idx < 0 {
		return
	}
	m := &s.messages[idx]
	m.Content += chunk.Text
	m.Sources = append(m.Sources, chunk.Sources...)
	s.commitLocked(ctx)
}

func (s *Service) discardReply(ctx context.Context, id domain.MessageID, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := domain.FindMessage(s.messages, id); idx >= 0 {
		s.messages = append(s.messages[:idx:idx], s.messages[idx+1:]...)
	}
	s.loading = false
	s.streaming = ""
	s.lastErr = fmt.Errorf("%w: %v", domain.ErrGenerationInterrupted, cause)
	s.commitLocked(ctx)
}

// finishReply ends the stream and commits once more so the remote copy
// receives the completed reply.
func (s *Service) finishReply(ctx context.Context, id domain.MessageID) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.streaming = ""
	s.commitLocked(ctx)
	if idx := domain.FindMessage(s.messages, id); idx >= 0 {
		return s.messages[idx].Clone()
	}
	return domain.Message{}
}
