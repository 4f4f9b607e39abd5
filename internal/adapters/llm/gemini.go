package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

// ClientOptions selects the Gemini backend. Vertex AI is used when Vertex is
// true, otherwise the Gemini API with APIKey.
type ClientOptions struct {
	APIKey   string
	Vertex   bool
	Project  string
	Location string
}

// NewGeminiClient creates a genai client for either backend.
func NewGeminiClient(ctx context.Context, opts ClientOptions) (*genai.Client, error) {
	cfg := &genai.ClientConfig{}
	if opts.Vertex {
		if opts.Project == "" || opts.Location == "" {
			return nil, fmt.Errorf("project and location are required for Vertex AI")
		}
		cfg.Project = opts.Project
		cfg.Location = opts.Location
		cfg.Backend = genai.BackendVertexAI
	} else {
		if opts.APIKey == "" {
			return nil, fmt.Errorf("an API key is required for the Gemini API")
		}
		cfg.APIKey = opts.APIKey
		cfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return client, nil
}

// GeminiGenerator streams grounded replies from Gemini.
type GeminiGenerator struct {
	client        *genai.Client
	model         string
	thinkingModel string
	historyLimit  int
}

func NewGeminiGenerator(client *genai.Client, model, thinkingModel string, historyLimit int) *GeminiGenerator {
	if thinkingModel == "" {
		thinkingModel = model
	}
	return &GeminiGenerator{
		client:        client,
		model:         model,
		thinkingModel: thinkingModel,
		historyLimit:  historyLimit,
	}
}

const thinkingBudget int32 = 32768

// GenerateStream implements domain.Generator.
func (g *GeminiGenerator) GenerateStream(ctx context.Context, req domain.GenerateRequest) iter.Seq2[domain.Chunk, error] {
	return func(yield func(domain.Chunk, error) bool) {
		contents, err := g.buildContents(req)
		if err != nil {
			yield(domain.Chunk{}, err)
			return
		}

		temp := float32(0.2)
		cfg := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemInstruction(req.Thinking), genai.RoleUser),
			Temperature:       &temp,
			Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		}
		model := g.model
		if req.Thinking {
			model = g.thinkingModel
			cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(thinkingBudget)}
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				yield(domain.Chunk{}, fmt.Errorf("gemini stream: %w", err))
				return
			}
			chunk := domain.Chunk{Text: resp.Text(), Sources: groundingSources(resp)}
			if chunk.Text == "" && len(chunk.Sources) == 0 {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (g *GeminiGenerator) buildContents(req domain.GenerateRequest) ([]*genai.Content, error) {
	var contents []*genai.Content
	for _, m := range historyWindow(req.History, g.historyLimit) {
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Image != nil {
		data, err := base64.StdEncoding.DecodeString(req.Image.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding image attachment: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, req.Image.MimeType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	return contents, nil
}

// groundingSources extracts web citations from a streamed response.
func groundingSources(resp *genai.GenerateContentResponse) []domain.Source {
	var out []domain.Source
	for _, cand := range resp.Candidates {
		if cand == nil || cand.GroundingMetadata == nil {
			continue
		}
		for _, gc := range cand.GroundingMetadata.GroundingChunks {
			if gc == nil || gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			out = append(out, domain.Source{URI: gc.Web.URI, Title: gc.Web.Title})
		}
	}
	return out
}
