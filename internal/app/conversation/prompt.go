package conversation

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

// LanguageDirective is the first line of every prompt sent to the model.
func LanguageDirective(lang domain.Language) string {
	return fmt.Sprintf("Please respond in %s.", lang.EnglishName())
}

const replyQuoteLimit = 100

// ComposePrompt prefixes the language directive and, for replies, a quotation
// of the anchored message.
func ComposePrompt(lang domain.Language, prompt string, replyTo *domain.ReplyRef) string {
	directive := LanguageDirective(lang)
	if replyTo == nil {
		return directive + "\n" + prompt
	}

	quote := []rune(replyTo.Content)
	if len(quote) > replyQuoteLimit {
		quote = quote[:replyQuoteLimit]
	}

	var b strings.Builder
	b.WriteString(directive)
	b.WriteString("\nCONTEXT: Referring to previous message: \"")
	b.WriteString(string(quote))
	b.WriteString("...\" \n\n QUERY: ")
	b.WriteString(prompt)
	return b.String()
}
