package intent

// Word lists are matched against lower-cased tokens. English and Russian are
// both listed because the contact books this runs against are mixed.

var stopWords = toSet(
	// English pronouns, articles and connectives.
	"i", "me", "my", "mine", "we", "us", "our", "you", "your", "he", "him", "his",
	"she", "her", "they", "them", "their", "it", "its", "a", "an", "the", "and",
	"or", "but", "not", "no", "yes", "so", "just", "also", "too", "this", "that",
	"these", "those", "there", "here", "any", "all", "some", "every", "each",
	"other", "one", "many", "much", "more", "most", "please", "hi", "hello",
	// English prepositions.
	"of", "in", "on", "at", "from", "to", "for", "with", "about", "by", "into",
	"near", "like", "as",
	// English question words and auxiliaries.
	"who", "whom", "whose", "what", "which", "where", "when", "why", "how",
	"is", "are", "was", "were", "be", "been", "am", "do", "does", "did", "have",
	"has", "had", "can", "could", "would", "should", "will", "may", "might",
	"i'm", "i've", "i'd", "don't", "doesn't", "didn't", "isn't", "aren't",
	"what're", "who're", "where're", "let",
	// English request verbs.
	"show", "find", "list", "give", "get", "tell", "know", "knows", "search",
	"display", "open", "look", "lookup", "need", "want", "work", "works",
	"working", "worked", "recent", "recently", "latest", "new",
	// English generic nouns.
	"contact", "contacts", "people", "person", "persons", "someone", "somebody",
	"anyone", "anybody", "everyone", "everybody", "guy", "guys", "folks",
	"company", "companies", "info", "details",

	// Russian pronouns and connectives.
	"я", "мне", "меня", "мной", "мой", "моя", "моё", "мое", "мои", "моих", "мы",
	"нас", "нам", "наш", "наши", "ты", "тебя", "вы", "вас", "он", "она", "оно",
	"они", "его", "ее", "её", "их", "им", "и", "или", "а", "но", "не", "ни", "да",
	"нет", "это", "эти", "этот", "эта", "тот", "та", "те", "все", "всех", "всё",
	"весь", "вся", "кто-нибудь", "кто-то", "пожалуйста", "ещё", "еще", "же", "ли",
	// Russian prepositions.
	"у", "в", "во", "на", "из", "с", "со", "к", "ко", "по", "о", "об", "от",
	"для", "до", "за", "при", "про",
	// Russian question words and verbs.
	"кто", "что", "какой", "какая", "какие", "каких", "где", "когда", "как",
	"почему", "сколько", "есть", "был", "была", "были", "будет",
	"покажи", "покажите", "выведи", "открой", "найди", "найдите", "найти",
	"дай", "дайте", "расскажи", "список", "знаю", "знаем", "работает",
	"работают", "работал", "кто-либо",
	// Russian generic nouns.
	"контакт", "контакты", "контакта", "контактов", "люди", "людей", "человек",
	"человека", "компания", "компании", "компанию", "компаний",
)

// companyPrefixMarkers introduce a company name: "people from Acme".
var companyPrefixMarkers = toSet("from", "at", "из", "в", "во")

// companySuffixMarkers follow a company name: "Acme company".
var companySuffixMarkers = toSet("company", "компания", "компании", "компанию")

// roleWords is the job-role vocabulary, keyed by the stem the suffix table
// reduces inflected forms to.
var roleWords = toSet(
	"tester", "qa", "developer", "programmer", "engineer", "devops", "manager",
	"designer", "marketer", "marketing", "hr", "recruiter", "analyst", "founder",
	"cofounder", "co-founder", "ceo", "cto", "cfo", "coo", "director", "lawyer",
	"accountant", "consultant", "architect", "sales", "investor",

	"тестировщик", "разработчик", "программист", "инженер", "девопс",
	"менеджер", "дизайнер", "маркетолог", "эйчар", "рекрутер", "аналитик",
	"основатель", "сооснователь", "директор", "юрист", "бухгалтер",
	"консультант", "архитектор", "инвестор",
)

// roleSuffixes are plural and case endings stripped when looking a token up
// in roleWords. Longer suffixes come first.
var roleSuffixes = []string{
	// Russian.
	"ами", "ями", "ов", "ев", "ей", "ам", "ям", "ах", "ях", "ом", "ем",
	"ы", "и", "а", "я", "у", "ю", "е",
	// English.
	"'s", "es", "s",
}

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func inSet(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}
