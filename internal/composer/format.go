package composer

// ResultBanner prefixes every generated answer.
const ResultBanner = "🤖 **Search results:**"

// FormatResponse wraps generated text into the message shown to the user.
func FormatResponse(text string) string {
	return ResultBanner + "\n\n" + text
}
