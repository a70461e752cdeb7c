package scoring

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// educationStreams groups previous-education wording into the streams that
// course eligibility text refers to.
var educationStreams = map[string][]string{
	"science":  {"science", "pcm", "pcb", "pcmb", "physics", "chemistry", "biology", "mathematics", "maths", "math"},
	"commerce": {"commerce", "accountancy", "accounts", "accounting", "business studies", "economics"},
	"arts":     {"arts", "humanities", "history", "literature", "political science", "sociology"},
	"12th":     {"12th", "hsc", "higher secondary", "intermediate", "class 12", "xii", "senior secondary"},
}

// courseDomains maps a course domain to the words identifying it, both in
// course names and in an applicant's interests.
var courseDomains = map[string][]string{
	"computer":      {"computer", "computing", "cs", "cse", "software", "programming", "coding", "information technology", "data science", "artificial intelligence", "ai"},
	"mechanical":    {"mechanical", "machines", "automobile", "automotive", "robotics", "manufacturing"},
	"electrical":    {"electrical", "electronics", "circuits", "power systems", "embedded"},
	"civil":         {"civil", "construction", "structural", "infrastructure", "surveying"},
	"chemical":      {"chemical", "chemistry", "process engineering", "petroleum", "polymer"},
	"biotechnology": {"biotechnology", "biotech", "genetics", "microbiology", "life sciences", "bioinformatics"},
}

var thresholdPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)

// tokenize lower-cases text and splits it into runs of letters and runs of
// digits, so a code such as "CS101" yields "cs" and "101".
func tokenize(text string) []string {
	var tokens []string
	var current []rune
	inDigits := false
	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r):
			if inDigits {
				flush()
			}
			inDigits = false
			current = append(current, r)
		case unicode.IsDigit(r):
			if !inDigits {
				flush()
			}
			inDigits = true
			current = append(current, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// containsTerm reports whether term (one or more words) occurs as a whole
// word sequence in tokens.
func containsTerm(tokens []string, term string) bool {
	words := tokenize(term)
	if len(words) == 0 || len(words) > len(tokens) {
		return false
	}
	for i := 0; i+len(words) <= len(tokens); i++ {
		matched := true
		for j, w := range words {
			if tokens[i+j] != w {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func matchGroups(text string, table map[string][]string) map[string]bool {
	tokens := tokenize(text)
	groups := make(map[string]bool)
	if len(tokens) == 0 {
		return groups
	}
	for group, terms := range table {
		for _, term := range terms {
			if containsTerm(tokens, term) {
				groups[group] = true
				break
			}
		}
	}
	return groups
}

// EducationStreams returns the streams mentioned in text.
func EducationStreams(text string) map[string]bool {
	return matchGroups(text, educationStreams)
}

// CourseDomains returns the domains a course name or code belongs to.
func CourseDomains(text string) map[string]bool {
	return matchGroups(text, courseDomains)
}

func sharesGroup(a, b map[string]bool) bool {
	for group := range a {
		if b[group] {
			return true
		}
	}
	return false
}

// percentageThreshold extracts the first "N%" requirement from eligibility text.
func percentageThreshold(text string) (float64, bool) {
	match := thresholdPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil || value > 100 {
		return 0, false
	}
	return value, true
}
