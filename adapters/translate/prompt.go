package translate

import (
	"fmt"
	"strings"

	"github.com/satriahrh/lisan/server/domain/repositories"
)

// systemPrompt pins the model to translation-only behavior.
const systemPrompt = "You are a professional translator. Translate the text accurately and naturally."

var styleInstructions = map[repositories.TranslationStyle]string{
	repositories.StyleColloquial: "- Use colloquial and conversational language\n" +
		"- Prefer informal expressions and everyday vocabulary\n" +
		"- Make the translation sound natural in spoken language\n",
	repositories.StyleBusiness: "- Use formal and professional business language\n" +
		"- Employ proper business terminology and etiquette\n" +
		"- Maintain a professional and courteous tone\n",
	repositories.StyleAcademic: "- Use formal academic language and terminology\n" +
		"- Employ precise and scholarly expressions\n" +
		"- Maintain objectivity and academic rigor\n",
}

// buildPrompt renders the translation instruction for one utterance. Hot
// words are surfaced so the model keeps domain terms intact; the style block
// is omitted for the default register.
func buildPrompt(text, targetLanguage string, hotWords []string, style repositories.TranslationStyle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a professional translator. Translate the following text from its original language to %s.\n", targetLanguage)

	if len(hotWords) > 0 {
		fmt.Fprintf(&b, "\nDomain terms and hot words: %s\n", strings.Join(hotWords, ", "))
		b.WriteString("Pay special attention to translating these terms accurately.\n")
	}
	if style != repositories.StyleDefault && style != "" {
		fmt.Fprintf(&b, "\nTranslation style: %s\n", style)
	}

	b.WriteString(`
IMPORTANT RULES:
- Output ONLY the translated text
- Do NOT include explanations, notes, or phrases like "The result of X is Y"
- Do NOT add quotation marks around the translation
- Do NOT mention the original text
- Do NOT add any prefixes or suffixes
- Keep the same tone and meaning
- Pay special attention to the professional terms and hot words mentioned above
`)
	if instr, ok := styleInstructions[style]; ok {
		b.WriteString(instr)
	}

	fmt.Fprintf(&b, "Text to translate: %s\n\nTranslation:", text)
	return b.String()
}
