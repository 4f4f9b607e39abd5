package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

// GeminiSynthesizer turns text into 24 kHz mono PCM with a Gemini TTS model.
type GeminiSynthesizer struct {
	client *genai.Client
	model  string
}

func NewGeminiSynthesizer(client *genai.Client, model string) *GeminiSynthesizer {
	return &GeminiSynthesizer{client: client, model: model}
}

// Synthesize implements domain.Synthesizer. A response without audio yields "".
func (s *GeminiSynthesizer) Synthesize(ctx context.Context, text string, voice domain.Voice) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice.ProviderVoice()},
			},
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	res, err := s.client.Models.GenerateContent(ctx, s.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, err)
	}

	for _, cand := range res.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return encodeBase64(part.InlineData.Data), nil
			}
		}
	}
	return "", nil
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
