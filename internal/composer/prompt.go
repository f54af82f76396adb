package composer

import (
	"strings"
)

// DefaultLanguage is used when BuildPrompt is given an empty language.
const DefaultLanguage = "English"

// BuildPrompt assembles the generation prompt from the rendered contact
// context, the user's original query and fixed answering instructions.
func BuildPrompt(contactContext, query, language string) string {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}

	var sb strings.Builder
	sb.WriteString("You are an assistant that helps the user navigate their personal contacts. The user has the following contacts:\n\n")
	sb.WriteString(contactContext)
	sb.WriteString("\n\nUser question: ")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\n")
	sb.WriteString("IMPORTANT: if the user only typed a name or a first and last name, or asked to show, open or find someone by name, show the FULL card of that contact with ALL available details.\n\n")
	sb.WriteString("For every contact you mention include:\n")
	sb.WriteString("- Name\n")
	sb.WriteString("- Company and position (if present)\n")
	sb.WriteString("- EVERY available contact channel (Telegram, all emails, all phones)\n")
	sb.WriteString("- Last interaction (if present)\n\n")
	sb.WriteString("Only use the contacts listed above. Answer in ")
	sb.WriteString(language)
	sb.WriteString(", concisely and in a structured way.")
	return sb.String()
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
