package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

// MockLLM is a scripted generator for development and tests.
type MockLLM struct {
	chunks    []domain.Chunk
	failAfter int
	err       error

	mu       sync.Mutex
	requests []domain.GenerateRequest
}

// NewMockLLM answers every prompt with a canned reply that quotes the query.
func NewMockLLM() *MockLLM {
	return &MockLLM{failAfter: -1}
}

// NewScriptedLLM replays chunks for every request.
func NewScriptedLLM(chunks ...domain.Chunk) *MockLLM {
	return &MockLLM{chunks: chunks, failAfter: -1}
}

// FailingAfter makes the stream yield err after n chunks.
func (m *MockLLM) FailingAfter(n int, err error) *MockLLM {
	m.failAfter = n
	m.err = err
	return m
}

// Requests returns the requests received so far.
func (m *MockLLM) Requests() []domain.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.GenerateRequest(nil), m.requests...)
}

func (m *MockLLM) GenerateStream(ctx context.Context, req domain.GenerateRequest) iter.Seq2[domain.Chunk, error] {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	chunks := m.chunks
	if chunks == nil {
		chunks = cannedReply(req.Prompt)
	}

	return func(yield func(domain.Chunk, error) bool) {
		for i, c := range chunks {
			if i == m.failAfter {
				yield(domain.Chunk{}, m.err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(domain.Chunk{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if m.failAfter >= len(chunks) {
			yield(domain.Chunk{}, m.err)
		}
	}
}

func cannedReply(prompt string) []domain.Chunk {
	// The last line of the composed prompt is the user's query.
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	query := strings.TrimSpace(lines[len(lines)-1])
	query = strings.TrimSpace(strings.TrimPrefix(query, "QUERY:"))

	answer := fmt.Sprintf("The archives hold a published answer on %q. Please consult a local mufti for your specific case. ", query)
	var out []domain.Chunk
	for _, word := range strings.SplitAfter(answer, " ") {
		if word != "" {
			out = append(out, domain.Chunk{Text: word})
		}
	}
	out = append(out,
		domain.Chunk{Text: domain.VerbatimMarker + ": (no record in offline mode)"},
		domain.Chunk{Sources: []domain.Source{{URI: "https://www.banuri.edu.pk/", Title: "Jamia Uloom-ul-Islamia Banuri Town"}}},
	)
	return out
}

// MockSynthesizer returns silence whose length grows with the text.
type MockSynthesizer struct {
	// SamplesPerRune controls the payload length. Zero means 240 (10ms at 24 kHz).
	SamplesPerRune int
	// Err, when set, is returned for every call.
	Err error

	mu    sync.Mutex
	texts []string
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

func (s *MockSynthesizer) Synthesize(ctx context.Context, text string, voice domain.Voice) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.Err != nil {
		return "", s.Err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	per := s.SamplesPerRune
	if per <= 0 {
		per = 240
	}
	// 16-bit samples, all zero.
	pcm := make([]byte, len([]rune(text))*per*2)
	return encodeBase64(pcm), nil
}

// Texts returns the segments received so far.
func (s *MockSynthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}
