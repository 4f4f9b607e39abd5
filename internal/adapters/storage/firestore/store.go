package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (FIQH_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection(domain.RemoteTable)
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	Title     string       `firestore:"title"`
	Messages  []messageDoc `firestore:"messages"`
	CreatedAt time.Time    `firestore:"created_at"`
}

type messageDoc struct {
	ID        string      `firestore:"id"`
	Role      string      `firestore:"role"`
	Content   string      `firestore:"content"`
	Timestamp time.Time   `firestore:"timestamp"`
	Image     *imageDoc   `firestore:"image,omitempty"`
	Sources   []sourceDoc `firestore:"sources,omitempty"`
	ReplyTo   *replyDoc   `firestore:"reply_to,omitempty"`
}

type imageDoc struct {
	Data     string `firestore:"data"`
	MimeType string `firestore:"mime_type"`
}

type sourceDoc struct {
	URI   string `firestore:"uri"`
	Title string `firestore:"title"`
}

type replyDoc struct {
	ID      string `firestore:"id"`
	Content string `firestore:"content"`
	Role    string `firestore:"role"`
}

// ─────────────────────────────────────────
// RemoteStore implementation
// ─────────────────────────────────────────

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	iter := s.sessionsCol().OrderBy("created_at", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var out []domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, wrap("ListSessions", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}

		out = append(out, domain.Session{
			ID:        domain.SessionID(snap.Ref.ID),
			Title:     doc.Title,
			Messages:  fromMessageDocs(doc.Messages),
			CreatedAt: doc.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) InsertSession(ctx context.Context, session domain.Session) error {
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	doc := sessionDoc{
		Title:     session.Title,
		Messages:  toMessageDocs(session.Messages),
		CreatedAt: createdAt,
	}

	if _, err := s.sessionDoc(session.ID).Create(ctx, doc); err != nil {
		return wrap("InsertSession", err)
	}
	return nil
}

func (s *Store) UpdateMessages(ctx context.Context, id domain.SessionID, messages []domain.Message) error {
	_, err := s.sessionDoc(id).Update(ctx, []firestore.Update{
		{Path: "messages", Value: toMessageDocs(messages)},
	})
	if err != nil {
		return wrap("UpdateMessages", err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	if _, err := s.sessionDoc(id).Delete(ctx); err != nil {
		return wrap("DeleteSession", err)
	}
	return nil
}

// wrap maps "database/collection not provisioned" to domain.ErrSchemaMissing.
// Firestore reports a missing database as NotFound and a missing composite
// index as FailedPrecondition.
func wrap(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound, codes.FailedPrecondition:
		return fmt.Errorf("firestore %s: %w: %v", op, domain.ErrSchemaMissing, err)
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}

func toMessageDocs(msgs []domain.Message) []messageDoc {
	out := make([]messageDoc, 0, len(msgs))
	for _, m := range msgs {
		d := messageDoc{
			ID:        string(m.ID),
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
		if m.Image != nil {
			d.Image = &imageDoc{Data: m.Image.Data, MimeType: m.Image.MimeType}
		}
		for _, src := range m.Sources {
			d.Sources = append(d.Sources, sourceDoc{URI: src.URI, Title: src.Title})
		}
		if m.ReplyTo != nil {
			d.ReplyTo = &replyDoc{ID: string(m.ReplyTo.ID), Content: m.ReplyTo.Content, Role: string(m.ReplyTo.Role)}
		}
		out = append(out, d)
	}
	return out
}

func fromMessageDocs(docs []messageDoc) []domain.Message {
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		m := domain.Message{
			ID:        domain.MessageID(d.ID),
			Role:      domain.Role(d.Role),
			Content:   d.Content,
			Timestamp: d.Timestamp,
		}
		if d.Image != nil {
			m.Image = &domain.Image{Data: d.Image.Data, MimeType: d.Image.MimeType}
		}
		for _, src := range d.Sources {
			m.Sources = append(m.Sources, domain.Source{URI: src.URI, Title: src.Title})
		}
		if d.ReplyTo != nil {
			m.ReplyTo = &domain.ReplyRef{ID: domain.MessageID(d.ReplyTo.ID), Content: d.ReplyTo.Content, Role: domain.Role(d.ReplyTo.Role)}
		}
		out = append(out, m)
	}
	return out
}
