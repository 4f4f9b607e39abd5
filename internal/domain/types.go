package domain

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type SessionID string
type MessageID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Language is the reply language preference.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageUrdu    Language = "ur"
)

// DefaultLanguage is used when no preference has been stored.
const DefaultLanguage = LanguageEnglish

// ParseLanguage accepts any BCP 47 tag ("ur", "ur-PK", "en-US", ...) and
// narrows it to a supported language. Unknown input falls back to English.
func ParseLanguage(s string) Language {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return DefaultLanguage
	}
	base, _ := tag.Base()
	if base.String() == string(LanguageUrdu) {
		return LanguageUrdu
	}
	return LanguageEnglish
}

// Tag returns the BCP 47 tag used for speech and provider hints.
func (l Language) Tag() language.Tag {
	if l == LanguageUrdu {
		return language.Urdu
	}
	return language.English
}

// EnglishName is the language name as written in English ("Urdu", "English").
func (l Language) EnglishName() string {
	return display.English.Languages().Name(l.Tag())
}

// Voice is the user-facing voice preference.
type Voice string

const (
	VoiceAyesha Voice = "Ayesha"
	VoiceAhmed  Voice = "Ahmed"
)

// DefaultVoice is used when no preference has been stored.
const DefaultVoice = VoiceAyesha

// ParseVoice returns the matching voice or DefaultVoice.
func ParseVoice(s string) Voice {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ahmed", "male":
		return VoiceAhmed
	default:
		return VoiceAyesha
	}
}

// ProviderVoice maps the preference to the synthesis provider's prebuilt voice.
func (v Voice) ProviderVoice() string {
	if v == VoiceAhmed {
		return "Fenrir"
	}
	return "Kore"
}

type Timestamp = time.Time
