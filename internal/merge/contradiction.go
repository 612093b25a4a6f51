package merge

import "strings"

// affirmativeMarkers suggest a finding recommends doing something.
var affirmativeMarkers = []string{
	"add", "adopt", "enable", "enforce", "require", "use", "keep", "increase",
}

// negativeMarkers suggest a finding recommends against something.
var negativeMarkers = []string{
	"avoid", "disable", "drop", "remove", "skip", "stop", "unnecessary",
	"don't", "do not", "not needed", "no need", "decrease",
}

// stopwords are too common to count as the subject of a recommendation.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "for": {}, "with": {}, "this": {}, "that": {},
	"is": {}, "are": {}, "be": {}, "here": {}, "it": {}, "its": {},
	"should": {}, "must": {}, "can": {}, "we": {}, "you": {},
}

// OpposingStances is a conservative heuristic ContradictionFunc: it flags
// two findings when one reads as an affirmative recommendation and the
// other as a negative one, and the two share at least one subject word.
// It catches pairs like "enforce strict validation" against "validation is
// unnecessary here" while leaving unrelated findings alone. Callers with
// real domain knowledge should supply their own predicate instead.
func OpposingStances(a, b Finding) bool {
	aText := Signature(a.Text)
	bText := Signature(b.Text)

	aStance := stance(aText)
	bStance := stance(bText)
	if aStance == 0 || bStance == 0 || aStance == bStance {
		return false
	}
	return shareSubject(aText, bText)
}

// stance returns +1 for affirmative, -1 for negative, 0 for neither or
// mixed. Mixed wording is too ambiguous to flag.
func stance(text string) int {
	affirmative := containsAny(text, affirmativeMarkers)
	negative := containsAny(text, negativeMarkers)
	switch {
	case affirmative && !negative:
		return 1
	case negative && !affirmative:
		return -1
	default:
		return 0
	}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(marker, " ") {
			if strings.Contains(text, marker) {
				return true
			}
			continue
		}
		for _, word := range strings.Fields(text) {
			if word == marker {
				return true
			}
		}
	}
	return false
}

// shareSubject reports whether the two texts have a significant word in
// common once stance markers and stopwords are stripped.
func shareSubject(a, b string) bool {
	subjects := subjectWords(a)
	if len(subjects) == 0 {
		return false
	}
	for word := range subjectWords(b) {
		if _, ok := subjects[word]; ok {
			return true
		}
	}
	return false
}

type wordSet map[string]struct{}

func subjectWords(text string) wordSet {
	out := make(wordSet)
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,:;!?\"'()")
		if significant(word) {
			out[word] = struct{}{}
		}
	}
	return out
}

func significant(word string) bool {
	if len(word) < 4 {
		return false
	}
	if _, ok := stopwords[word]; ok {
		return false
	}
	for _, marker := range affirmativeMarkers {
		if word == marker {
			return false
		}
	}
	for _, marker := range negativeMarkers {
		if word == marker {
			return false
		}
	}
	return true
}
