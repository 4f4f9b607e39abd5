package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PabloGalante/fiqh-assistant/internal/adapters/audio"
	"github.com/PabloGalante/fiqh-assistant/internal/app/conversation"
	"github.com/PabloGalante/fiqh-assistant/internal/app/speech"
	"github.com/PabloGalante/fiqh-assistant/internal/domain"
	"github.com/PabloGalante/fiqh-assistant/internal/observability"
)

type Server struct {
	svc   *conversation.Service
	synth domain.Synthesizer
}

// NewServer exposes the conversation engine over HTTP. synth may be nil,
// in which case /speech answers 503.
func NewServer(svc *conversation.Service, synth domain.Synthesizer) http.Handler {
	s := &Server{svc: svc, synth: synth}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /reconcile", s.handleReconcile)

	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions/{id}/activate", s.handleActivateSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("GET /conversation", s.handleConversation)
	mux.HandleFunc("POST /conversation/new", s.handleNewConversation)
	mux.HandleFunc("DELETE /conversation/error", s.handleClearError)

	mux.HandleFunc("POST /messages", s.handleSendMessage)
	mux.HandleFunc("PUT /settings", s.handleSettings)
	mux.HandleFunc("POST /speech", s.handleSpeech)

	return chainMiddlewares(mux, withLogging, withCORS, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type sendMessageRequest struct {
	Prompt   string        `json:"prompt"`
	Image    *domain.Image `json:"image,omitempty"`
	ReplyTo  string        `json:"replyTo,omitempty"`
	Thinking bool          `json:"thinking,omitempty"`
}

// streamLine is one NDJSON line of a /messages response.
type streamLine struct {
	Text    string          `json:"text,omitempty"`
	Sources []domain.Source `json:"sources,omitempty"`
	Done    bool            `json:"done,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type settingsRequest struct {
	Voice    *string `json:"voice,omitempty"`
	Language *string `json:"language,omitempty"`
}

type speechRequest struct {
	MessageID string `json:"messageId"`
	Voice     string `json:"voice,omitempty"`
}

type reconcileResponse struct {
	Status   domain.ConnectivityStatus `json:"status"`
	Sessions []domain.Session          `json:"sessions"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]domain.ConnectivityStatus{"status": s.svc.Status()})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Reconcile(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Status: res.Status, Sessions: res.Sessions})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Sessions())
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.SwitchSession(r.Context(), domain.SessionID(r.PathValue("id"))); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSession(r.Context(), domain.SessionID(r.PathValue("id"))); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.StartNewChat(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	s.svc.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage streams the reply as NDJSON. Errors found before the
// first chunk get a plain JSON error response with a matching status code.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	started := false
	send := func(line streamLine) {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		_ = enc.Encode(line)
		_ = rc.Flush()
	}

	msg, err := s.svc.Send(r.Context(), conversation.SendInput{
		Prompt:   req.Prompt,
		Image:    req.Image,
		ReplyTo:  domain.MessageID(req.ReplyTo),
		Thinking: req.Thinking,
	}, func(c domain.Chunk) {
		if c.Text == "" && len(c.Sources) == 0 {
			return
		}
		send(streamLine{Text: c.Text, Sources: c.Sources})
	})

	switch {
	case err != nil && !started:
		writeError(w, r, err)
	case err != nil:
		send(streamLine{Error: domain.GenerationFailedNotice})
	default:
		send(streamLine{Done: true, Message: &msg})
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Voice != nil {
		s.svc.SetVoice(r.Context(), domain.ParseVoice(*req.Voice))
	}
	if req.Language != nil {
		s.svc.SetLanguage(r.Context(), domain.ParseLanguage(*req.Language))
	}
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

// handleSpeech renders the spoken answer of a visible message to a WAV file.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if s.synth == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "speech synthesis is not configured"})
		return
	}

	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	msg, err := s.svc.Message(domain.MessageID(req.MessageID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	voice := s.svc.Voice()
	if req.Voice != "" {
		voice = domain.ParseVoice(req.Voice)
	}

	track := audio.NewTimeline()
	sched := speech.NewScheduler(s.synth, func() (speech.Output, error) { return track, nil })
	if err := sched.Play(r.Context(), speech.SpeakableText(msg.Content), voice); err != nil {
		observability.LoggerFromContext(r.Context()).Warn("speech failed", "message_id", msg.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "speech synthesis failed"})
		return
	}

	var body bytes.Buffer
	if err := audio.WriteWAV(&body, track.Render()); err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = body.WriteTo(w)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// writeError maps engine errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrMessageNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrEmptyPrompt):
		badRequest(w, err.Error())
	case errors.Is(err, domain.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrGenerationInterrupted):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": domain.GenerationFailedNotice})
	default:
		internalError(w, r, err)
	}
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}
