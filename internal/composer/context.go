package composer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/rolo/internal/storage"
)

const (
	// DefaultDisplayLimit is how many contacts BuildContext renders when the
	// caller passes a non-positive limit.
	DefaultDisplayLimit = 50

	maxBioRunes = 120
	ellipsis    = "..."
)

// BuildContext renders up to displayLimit contacts as numbered lines, one
// contact per line, in input order. When contacts were left out a final
// summary line says how many.
func BuildContext(contacts []storage.Contact, displayLimit int) string {
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	shown := contacts
	if len(shown) > displayLimit {
		shown = shown[:displayLimit]
	}

	var sb strings.Builder
	for i, c := range shown {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(formatContact(i+1, c))
	}

	if hidden := len(contacts) - len(shown); hidden > 0 {
		fmt.Fprintf(&sb, "\n... and %d more contacts not shown", hidden)
	}
	return sb.String()
}

func formatContact(n int, c storage.Contact) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d. %s", n, singleLine(c.Name))

	var role []string
	if c.Company != "" {
		role = append(role, singleLine(c.Company))
	}
	if c.Position != "" {
		role = append(role, singleLine(c.Position))
	}
	if len(role) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(role, ", "))
	}

	if len(c.Tags) > 0 {
		fmt.Fprintf(&sb, " [Tags: %s]", strings.Join(c.Tags, ", "))
	}
	if bio := TruncateBio(c.Bio); bio != "" {
		fmt.Fprintf(&sb, " | Bio: %s", bio)
	}
	if c.LastInteraction != nil {
		fmt.Fprintf(&sb, " | Last contact: %s", c.LastInteraction.Format("2006-01-02"))
	}
	if channels := contactChannels(c); len(channels) > 0 {
		fmt.Fprintf(&sb, " | %s", strings.Join(channels, ", "))
	}
	return sb.String()
}

func contactChannels(c storage.Contact) []string {
	var out []string
	if h := strings.TrimSpace(c.Telegram); h != "" {
		out = append(out, "TG: @"+strings.TrimPrefix(h, "@"))
	}
	for _, e := range c.Emails {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, "Email: "+e)
		}
	}
	for _, p := range c.Phones {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, "Phone: "+p)
		}
	}
	return out
}

// TruncateBio collapses whitespace in bio and shortens it to at most 120
// runes, ending in "..." when cut.
func TruncateBio(bio string) string {
	bio = singleLine(bio)
	if utf8.RuneCountInString(bio) <= maxBioRunes {
		return bio
	}
	runes := []rune(bio)
	return string(runes[:maxBioRunes-len(ellipsis)]) + ellipsis
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
