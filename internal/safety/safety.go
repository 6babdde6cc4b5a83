// Package safety contains the rule-based content safety and quality
// evaluators. Both are pure functions of their text input and static rule
// tables: no external calls, no randomness.
package safety

import "strings"

// Verdict is the result of a safety evaluation.
type Verdict struct {
	Passed      bool     `json:"passed"`
	Score       int      `json:"score"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

const categoryPenalty = 20

type categoryRule struct {
	name       string
	terms      []string
	issue      string
	suggestion string
}

var unsafeCategories = []categoryRule{
	{
		name:       "violence",
		terms:      []string{"kill", "blood", "gore", "murder", "slaughter", "behead", "mutilate", "torture", "massacre"},
		issue:      "Scene contains graphic violence",
		suggestion: "Describe the conflict symbolically, as traditional art does",
	},
	{
		name:       "sexual",
		terms:      []string{"nude", "naked", "sexual", "erotic", "seduce", "lust"},
		issue:      "Scene contains sexual content",
		suggestion: "Keep the scene devotional and family-friendly",
	},
	{
		name:       "hateful",
		terms:      []string{"hate", "racist", "slur", "bigot", "supremacy"},
		issue:      "Scene contains hateful content",
		suggestion: "Remove hostile language toward groups of people",
	},
	{
		name:       "substance",
		terms:      []string{"drug", "drugs", "alcohol", "drunk", "cigarette", "intoxicated", "opium"},
		issue:      "Scene references intoxicants",
		suggestion: "Replace intoxicant references with traditional offerings",
	},
}

// domainVocabulary is the curated list of terms that anchor a scene in the
// mythological domain; a scene matching none of them loses 25 points.
var domainVocabulary = []string{
	"krishna", "radha", "gopi", "gopis", "balarama", "yashoda", "arjuna",
	"vrindavan", "gokul", "mathura", "dwarka", "govardhan", "yamuna",
	"flute", "cow", "cows", "butter", "peacock", "lotus", "kaliya",
	"temple", "gita", "divine", "lord",
}

// Evaluator scores raw text against the static rule tables using the
// configured word-count bounds and pass threshold.
type Evaluator struct {
	minWords  int
	maxWords  int
	threshold int
}

// NewEvaluator creates a safety evaluator. Defaults: 3-20 words, threshold 70.
func NewEvaluator(minWords, maxWords, threshold int) *Evaluator {
	if minWords <= 0 {
		minWords = 3
	}
	if maxWords <= 0 {
		maxWords = 20
	}
	if threshold <= 0 {
		threshold = 70
	}
	return &Evaluator{minWords: minWords, maxWords: maxWords, threshold: threshold}
}

// Evaluate scores a piece of text. The score starts at 100 and each matched
// unsafe category deducts a fixed penalty; word-count violations and absence
// of any domain keyword deduct further. passed = score >= threshold.
func (e *Evaluator) Evaluate(text string) Verdict {
	lower := strings.ToLower(text)
	score := 100
	var issues, suggestions []string

	for _, cat := range unsafeCategories {
		if containsAny(lower, cat.terms) {
			score -= categoryPenalty
			issues = append(issues, cat.issue)
			suggestions = append(suggestions, cat.suggestion)
		}
	}

	words := len(strings.Fields(text))
	switch {
	case words < e.minWords:
		score -= 10
		issues = append(issues, "Scene description is too short")
		suggestions = append(suggestions, "Add a few more words describing the moment")
	case words > e.maxWords:
		score -= 15
		issues = append(issues, "Scene description is too long")
		suggestions = append(suggestions, "Trim the description to its essential moment")
	}

	if !containsAny(lower, domainVocabulary) {
		score -= 25
		issues = append(issues, "Scene has no recognizable mythological element")
		suggestions = append(suggestions, "Mention a character or place from Krishna's stories")
	}

	if score < 0 {
		score = 0
	}

	return Verdict{
		Passed:      score >= e.threshold,
		Score:       score,
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
