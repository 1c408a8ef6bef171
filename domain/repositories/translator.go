package repositories

import "context"

// TranslationStyle selects the register the translator should aim for.
type TranslationStyle string

const (
	StyleDefault    TranslationStyle = "default"
	StyleColloquial TranslationStyle = "colloquial"
	StyleBusiness   TranslationStyle = "business"
	StyleAcademic   TranslationStyle = "academic"
)

// ParseTranslationStyle maps a wire value to a known style, falling back to
// the default for anything unrecognized.
func ParseTranslationStyle(s string) TranslationStyle {
	switch TranslationStyle(s) {
	case StyleColloquial, StyleBusiness, StyleAcademic:
		return TranslationStyle(s)
	default:
		return StyleDefault
	}
}

// Translator abstracts a remote text-translation provider.
type Translator interface {
	// Translate converts text into the target language. Hot words are domain
	// terms the provider should keep intact; style selects the register.
	// Implementations must honor ctx deadlines.
	Translate(ctx context.Context, text string, targetLanguage string, hotWords []string, style TranslationStyle) (string, error)
}
