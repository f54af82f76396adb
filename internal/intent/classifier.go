package intent

import (
	"regexp"
	"strings"
	"unicode"
)

// Kind is the search strategy chosen for a query.
type Kind string

const (
	KindName     Kind = "name_search"
	KindCompany  Kind = "company_search"
	KindPosition Kind = "position_search"
	KindTag      Kind = "tag_search"
	KindGeneral  Kind = "general"
)

// Kinds lists every Kind Classify can return.
var Kinds = []Kind{KindName, KindCompany, KindPosition, KindTag, KindGeneral}

// Intent is the classified form of a free-text query. Terms are OR-ed by the
// repository; KindGeneral never carries terms.
type Intent struct {
	Kind  Kind     `json:"kind"`
	Terms []string `json:"terms,omitempty"`
}

type token struct {
	text  string // original spelling, punctuation trimmed
	lower string
}

// rule inspects the query and reports whether it produced an intent.
type rule struct {
	name  string
	match func(raw string, tokens []token) (Intent, bool)
}

// rules are tried in order; the first match wins.
var rules = []rule{
	{"hashtag", matchHashtags},
	{"company", matchCompany},
	{"position", matchPosition},
	{"name", matchNames},
}

// Classify maps free text to a search intent. It never fails: text that no
// rule recognises yields KindGeneral.
func Classify(text string) Intent {
	tokens := tokenize(text)
	for _, r := range rules {
		if in, ok := r.match(text, tokens); ok {
			return in
		}
	}
	return Intent{Kind: KindGeneral}
}

var apostrophes = strings.NewReplacer("\u2019", "'", "\u02bc", "'")

func tokenize(text string) []token {
	fields := strings.Fields(text)
	out := make([]token, 0, len(fields))
	for _, f := range fields {
		t := strings.TrimFunc(apostrophes.Replace(f), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		// "Ivan's" and "what's" reduce to their base word.
		if base, ok := strings.CutSuffix(t, "'s"); ok {
			t = base
		}
		if t == "" {
			continue
		}
		out = append(out, token{text: t, lower: strings.ToLower(t)})
	}
	return out
}

var hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)

func matchHashtags(raw string, _ []token) (Intent, bool) {
	found := hashtagRe.FindAllStringSubmatch(raw, -1)
	if len(found) == 0 {
		return Intent{}, false
	}
	terms := make([]string, 0, len(found))
	for _, m := range found {
		terms = append(terms, strings.ToLower(m[1]))
	}
	return Intent{Kind: KindTag, Terms: dedupe(terms)}, true
}

// matchCompany looks for "from X" / "at X" and "X company". The captured name
// is the run of non-stop-word tokens next to the marker.
func matchCompany(_ string, tokens []token) (Intent, bool) {
	for i, tok := range tokens {
		switch {
		case inSet(companyPrefixMarkers, tok.lower):
			if name, ok := captureCompany(tokens[i+1:], false); ok {
				return Intent{Kind: KindCompany, Terms: []string{name}}, true
			}
		case inSet(companySuffixMarkers, tok.lower) && i > 0:
			if name, ok := captureCompany(tokens[:i], true); ok {
				return Intent{Kind: KindCompany, Terms: []string{name}}, true
			}
		}
	}
	return Intent{}, false
}

// captureCompany collects consecutive tokens starting at the marker side.
// With backward set it walks from the end of span towards the start. A capture
// is rejected when the token nearest the marker is a stop-word, or when every
// captured token is a job role ("from HR" asks for a role, not a company).
func captureCompany(span []token, backward bool) (string, bool) {
	var words []string
	allRoles := true
	for k := range span {
		idx := k
		if backward {
			idx = len(span) - 1 - k
		}
		tok := span[idx]
		if inSet(stopWords, tok.lower) || inSet(companyPrefixMarkers, tok.lower) || inSet(companySuffixMarkers, tok.lower) {
			break
		}
		if _, ok := roleStem(tok.lower); !ok {
			allRoles = false
		}
		words = append(words, tok.text)
	}
	if len(words) == 0 || allRoles {
		return "", false
	}
	if backward {
		for l, r := 0, len(words)-1; l < r; l, r = l+1, r-1 {
			words[l], words[r] = words[r], words[l]
		}
	}
	return strings.Join(words, " "), true
}

func matchPosition(_ string, tokens []token) (Intent, bool) {
	var terms []string
	for _, tok := range tokens {
		if stem, ok := roleStem(tok.lower); ok {
			terms = append(terms, stem)
		}
	}
	if len(terms) == 0 {
		return Intent{}, false
	}
	return Intent{Kind: KindPosition, Terms: dedupe(terms)}, true
}

// roleStem reduces w to a role keyword using the fixed suffix table.
func roleStem(w string) (string, bool) {
	if inSet(roleWords, w) {
		return w, true
	}
	for _, suf := range roleSuffixes {
		stem, ok := strings.CutSuffix(w, suf)
		if !ok || stem == "" {
			continue
		}
		if inSet(roleWords, stem) {
			return stem, true
		}
	}
	return "", false
}

// matchNames keeps the tokens that survive stop-word filtering, preferring the
// capitalised ones.
func matchNames(_ string, tokens []token) (Intent, bool) {
	var all, capitalised []string
	for _, tok := range tokens {
		if inSet(stopWords, tok.lower) {
			continue
		}
		all = append(all, tok.text)
		if r := []rune(tok.text)[0]; unicode.IsUpper(r) {
			capitalised = append(capitalised, tok.text)
		}
	}
	switch {
	case len(capitalised) > 0:
		return Intent{Kind: KindName, Terms: dedupe(capitalised)}, true
	case len(all) > 0:
		return Intent{Kind: KindName, Terms: dedupe(all)}, true
	}
	return Intent{}, false
}

// dedupe drops case-insensitive repeats, keeping first-seen spelling.
func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
