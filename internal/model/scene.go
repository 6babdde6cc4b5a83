package model

import "strings"

// SceneCategory classifies the requested scene and selects the prompt framing.
type SceneCategory string

const (
	SceneGeneral   SceneCategory = "general"
	SceneAction    SceneCategory = "action"
	SceneSpiritual SceneCategory = "spiritual"
)

// ParseSceneCategory normalizes a client-supplied category, defaulting to general.
func ParseSceneCategory(s string) SceneCategory {
	switch SceneCategory(strings.ToLower(strings.TrimSpace(s))) {
	case SceneAction:
		return SceneAction
	case SceneSpiritual:
		return SceneSpiritual
	default:
		return SceneGeneral
	}
}

// StyleCategory selects the color palette for image synthesis.
type StyleCategory string

const (
	StyleTraditional StyleCategory = "traditional"
	StyleVibrant     StyleCategory = "vibrant"
	StyleDivine      StyleCategory = "divine"
)

// ParseStyleCategory normalizes a client-supplied style, defaulting to traditional.
func ParseStyleCategory(s string) StyleCategory {
	switch StyleCategory(strings.ToLower(strings.TrimSpace(s))) {
	case StyleVibrant:
		return StyleVibrant
	case StyleDivine:
		return StyleDivine
	default:
		return StyleTraditional
	}
}

// GenerationRequest is the inbound request for the script or combined pipeline.
type GenerationRequest struct {
	Scene         string
	SceneCategory SceneCategory
	StyleCategory StyleCategory
	Identity      string
}

// ImageRequest is the inbound request for the standalone image stage.
type ImageRequest struct {
	VisualDescription string
	SceneCategory     SceneCategory
	StyleCategory     StyleCategory
	Identity          string
}

// Script is the structured three-field result of script generation.
// Dialogue is optional; Narration and VisualDescription are mandatory.
type Script struct {
	Narration         string `json:"narration"`
	Dialogue          string `json:"dialogue,omitempty"`
	VisualDescription string `json:"visualDescription"`
}

// Valid reports structural validity: both mandatory fields non-empty.
func (s Script) Valid() bool {
	return strings.TrimSpace(s.Narration) != "" && strings.TrimSpace(s.VisualDescription) != ""
}

// WordCount counts whitespace-separated words in the scene text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
