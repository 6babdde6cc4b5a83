package safety

import (
	"math"
	"strings"

	"comic-server/internal/model"
)

// QualityVerdict is the advisory aggregate over the four scoring dimensions.
// It is attached to responses but never blocks the pipeline.
type QualityVerdict struct {
	Valid       bool           `json:"valid"`
	Score       int            `json:"score"`
	Dimensions  map[string]int `json:"dimensions"`
	Issues      []string       `json:"issues,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Dimension weights; they sum to 1.0 by construction of the table.
const (
	weightMythAccuracy     = 0.30
	weightVisualCoherence  = 0.25
	weightCulturalAuth     = 0.25
	weightNarrativeQuality = 0.20
)

const qualityThreshold = 70

// expectedVisualElements are the nine elements a complete visual description
// is expected to draw from; missing more than three deducts points.
var expectedVisualElements = []string{
	"color", "light", "sky", "tree", "river", "mountain", "village", "garment", "expression",
}

// inconsistencyPairs are term pairs implying contradictory settings. A rule
// fires only when both terms of the same pair co-occur in the description.
var inconsistencyPairs = [][2]string{
	{"night", "bright sun"},
	{"underwater", "dusty"},
	{"desert", "river bank"},
	{"indoors", "open sky"},
}

var characterNames = []string{
	"krishna", "radha", "balarama", "yashoda", "arjuna", "kaliya", "gopi", "gopis", "villagers",
}

var krishnaIconography = []string{"blue", "peacock", "flute", "yellow", "crown"}

var culturalMarkers = []string{
	"dhoti", "sari", "temple", "village", "vrindavan", "ghat", "banyan",
	"lotus", "tilak", "garland", "peacock", "kadamba",
}

var anachronisms = []string{
	"car", "phone", "computer", "gun", "skyscraper", "electric", "neon",
}

// EvaluateQuality scores a generated script across the four dimensions and
// aggregates them with the fixed weights.
func EvaluateQuality(script model.Script) QualityVerdict {
	v := QualityVerdict{Dimensions: make(map[string]int)}

	myth := scoreMythAccuracy(script, &v)
	visual := scoreVisualCoherence(script, &v)
	cultural := scoreCulturalAuthenticity(script, &v)
	narrative := scoreNarrativeQuality(script, &v)

	v.Dimensions["mythologicalAccuracy"] = myth
	v.Dimensions["visualCoherence"] = visual
	v.Dimensions["culturalAuthenticity"] = cultural
	v.Dimensions["narrativeQuality"] = narrative

	aggregate := weightMythAccuracy*float64(myth) +
		weightVisualCoherence*float64(visual) +
		weightCulturalAuth*float64(cultural) +
		weightNarrativeQuality*float64(narrative)

	v.Score = int(math.Round(aggregate))
	v.Valid = v.Score >= qualityThreshold
	return v
}

func scoreMythAccuracy(script model.Script, v *QualityVerdict) int {
	score := 100
	combined := strings.ToLower(script.Narration + " " + script.VisualDescription)

	if !containsAny(combined, characterNames) {
		score -= 40
		v.Issues = append(v.Issues, "No known character appears in the script")
		v.Suggestions = append(v.Suggestions, "Name at least one character from the stories")
	}
	if strings.Contains(combined, "krishna") && !containsAny(combined, krishnaIconography) {
		score -= 20
		v.Issues = append(v.Issues, "Krishna appears without any of his traditional iconography")
		v.Suggestions = append(v.Suggestions, "Include the peacock feather, flute, or blue complexion")
	}
	return clampScore(score)
}

func scoreVisualCoherence(script model.Script, v *QualityVerdict) int {
	score := 100
	visual := strings.ToLower(script.VisualDescription)

	switch n := len(script.VisualDescription); {
	case n < 30:
		score -= 30
		v.Issues = append(v.Issues, "Visual description is too sparse to draw from")
		v.Suggestions = append(v.Suggestions, "Describe the setting, lighting, and composition")
	case n > 100:
		score -= 20
		v.Issues = append(v.Issues, "Visual description is overloaded")
		v.Suggestions = append(v.Suggestions, "Focus the description on a single moment")
	}

	missing := 0
	for _, el := range expectedVisualElements {
		if !strings.Contains(visual, el) {
			missing++
		}
	}
	if missing > 3 {
		score -= 25
		v.Issues = append(v.Issues, "Visual description covers too few visual elements")
		v.Suggestions = append(v.Suggestions, "Mention colors, lighting, and the surrounding landscape")
	}

	for _, pair := range inconsistencyPairs {
		if strings.Contains(visual, pair[0]) && strings.Contains(visual, pair[1]) {
			score -= 15
			v.Issues = append(v.Issues, "Visual description mixes contradictory settings: "+pair[0]+" / "+pair[1])
			v.Suggestions = append(v.Suggestions, "Pick a single consistent setting")
		}
	}
	return clampScore(score)
}

func scoreCulturalAuthenticity(script model.Script, v *QualityVerdict) int {
	score := 100
	combined := strings.ToLower(script.Narration + " " + script.VisualDescription)

	if !containsAny(combined, culturalMarkers) {
		score -= 30
		v.Issues = append(v.Issues, "Script lacks cultural or period detail")
		v.Suggestions = append(v.Suggestions, "Add traditional dress, architecture, or flora")
	}
	if containsAny(combined, anachronisms) {
		score -= 25
		v.Issues = append(v.Issues, "Script contains anachronistic elements")
		v.Suggestions = append(v.Suggestions, "Remove modern objects from the scene")
	}
	return clampScore(score)
}

func scoreNarrativeQuality(script model.Script, v *QualityVerdict) int {
	score := 100
	words := len(strings.Fields(script.Narration))

	switch {
	case words < 5:
		score -= 30
		v.Issues = append(v.Issues, "Narration is too thin to carry the panel")
		v.Suggestions = append(v.Suggestions, "Expand the narration to a full sentence or two")
	case words > 60:
		score -= 15
		v.Issues = append(v.Issues, "Narration is too long for a single panel")
		v.Suggestions = append(v.Suggestions, "Shorten the narration")
	}

	if !containsAny(strings.ToLower(script.Narration), characterNames) {
		score -= 20
		v.Issues = append(v.Issues, "Narration does not name its protagonist")
		v.Suggestions = append(v.Suggestions, "Name the character acting in the scene")
	}
	return clampScore(score)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	return score
}
