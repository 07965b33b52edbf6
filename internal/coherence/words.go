package coherence

// The hundred most common English words, the fixed vocabulary behind the
// language score. Curated: articles, pronouns, common verbs, prepositions.
var commonWords = map[string]struct{}{
	"the": {}, "be": {}, "to": {}, "of": {}, "and": {}, "a": {}, "in": {}, "that": {}, "have": {}, "i": {},
	"it": {}, "for": {}, "not": {}, "on": {}, "with": {}, "he": {}, "as": {}, "you": {}, "do": {}, "at": {},
	"this": {}, "but": {}, "his": {}, "by": {}, "from": {}, "they": {}, "we": {}, "say": {}, "her": {}, "she": {},
	"or": {}, "an": {}, "will": {}, "my": {}, "one": {}, "all": {}, "would": {}, "there": {}, "their": {}, "what": {},
	"so": {}, "up": {}, "out": {}, "if": {}, "about": {}, "who": {}, "get": {}, "which": {}, "go": {}, "me": {},
	"when": {}, "make": {}, "can": {}, "like": {}, "time": {}, "no": {}, "just": {}, "him": {}, "know": {}, "take": {},
	"people": {}, "into": {}, "year": {}, "your": {}, "good": {}, "some": {}, "could": {}, "them": {}, "see": {}, "other": {},
	"than": {}, "then": {}, "now": {}, "look": {}, "only": {}, "come": {}, "its": {}, "over": {}, "think": {}, "also": {},
	"back": {}, "after": {}, "use": {}, "two": {}, "how": {}, "our": {}, "work": {}, "first": {}, "well": {}, "way": {},
	"even": {}, "new": {}, "want": {}, "because": {}, "any": {}, "these": {}, "give": {}, "day": {}, "most": {}, "us": {},
}

// IsCommonWord reports membership in the fixed vocabulary.
func IsCommonWord(w string) bool {
	_, ok := commonWords[w]
	return ok
}

// CommonWordsWithPrefix returns vocabulary words starting with prefix,
// sorted, capped at limit. Drives the suggestions endpoint.
func CommonWordsWithPrefix(prefix string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	var out []string
	for _, w := range commonWordList {
		if len(w) >= len(prefix) && w[:len(prefix)] == prefix {
			out = append(out, w)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// commonWordList is the sorted form of commonWords, kept in sync by hand.
var commonWordList = []string{
	"a", "about", "after", "all", "also", "an", "and", "any", "as", "at",
	"back", "be", "because", "but", "by", "can", "come", "could", "day", "do",
	"even", "first", "for", "from", "get", "give", "go", "good", "have", "he",
	"her", "him", "his", "how", "i", "if", "in", "into", "it", "its",
	"just", "know", "like", "look", "make", "me", "most", "my", "new", "no",
	"not", "now", "of", "on", "one", "only", "or", "other", "our", "out",
	"over", "people", "say", "see", "she", "so", "some", "take", "than", "that",
	"the", "their", "them", "then", "there", "these", "they", "think", "this", "time",
	"to", "two", "up", "us", "use", "want", "way", "we", "well", "what",
	"when", "which", "who", "will", "with", "work", "would", "year", "you", "your",
}
