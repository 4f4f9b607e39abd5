package speech

import (
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

// minSegmentRunes: segments this short or shorter are stray punctuation.
const minSegmentRunes = 2

// isBoundary reports sentence-ending marks, including the Urdu full stop,
// question mark and hamza used as a stop in some transcriptions.
func isBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '۔', '؟', 'ء':
		return true
	}
	return false
}

// Split cuts text after every sentence-ending mark. The mark stays with the
// preceding segment; segments are trimmed and empty ones are dropped.
func Split(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if !isBoundary(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		if seg := strings.TrimSpace(text[start:end]); seg != "" {
			out = append(out, seg)
		}
		start = end
	}
	if seg := strings.TrimSpace(text[start:]); seg != "" {
		out = append(out, seg)
	}
	return out
}

// Segments returns the speakable segments of text in order.
func Segments(text string) []string {
	var out []string
	for _, seg := range Split(text) {
		if utf8.RuneCountInString(seg) > minSegmentRunes {
			out = append(out, seg)
		}
	}
	return out
}

// SpeakableText is the part of an assistant reply that is read aloud.
func SpeakableText(content string) string {
	return domain.AnswerText(content)
}
