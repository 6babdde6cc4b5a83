package pipeline

import (
	"fmt"
	"strings"

	"comic-server/internal/model"
)

// categoryFraming frames the script prompt per scene category.
var categoryFraming = map[model.SceneCategory]string{
	model.SceneGeneral:   "a warm everyday moment from Krishna's life in Vrindavan",
	model.SceneAction:    "a dramatic action moment from Krishna's stories, heroic but never graphic",
	model.SceneSpiritual: "a serene spiritual moment revealing Krishna's divine nature",
}

// characterStyles maps character keywords to their canonical visual styling.
// Matched fragments are appended to the image prompt.
var characterStyles = []struct {
	match    string
	fragment string
}{
	{"krishna", "Krishna with deep blue skin, peacock feather crown, yellow silk dhoti, serene smile"},
	{"radha", "Radha in a flowing red and gold sari with lotus in hand"},
	{"balarama", "Balarama fair-skinned in blue garments carrying his plough"},
	{"yashoda", "Yashoda in traditional village dress with maternal expression"},
	{"kaliya", "the serpent Kaliya with many spread hoods, dark scales over churning water"},
	{"gopi", "gopis in bright traditional lehengas with brass pots"},
	{"cow", "white cows with garlands and painted horns"},
	{"villager", "villagers in simple cotton dhotis and saris"},
}

// qualityFragment is the fixed technical fragment appended to every image prompt.
const qualityFragment = "highly detailed digital painting in classical Indian art style, intricate ornament work, dramatic composition, rich textures"

// paletteFragments select the color treatment per style category.
var paletteFragments = map[model.StyleCategory]string{
	model.StyleTraditional: "earthy pigment palette of ochre, terracotta and indigo, Pattachitra-inspired flat tones",
	model.StyleVibrant:     "saturated festival palette of magenta, turquoise and marigold, high contrast",
	model.StyleDivine:      "luminous palette of gold, deep blue and violet, soft radiant glow",
}

// buildScriptPrompt composes the structured text-completion prompt. It asks
// for strict JSON with exactly the three script fields.
func buildScriptPrompt(scene string, category model.SceneCategory) string {
	framing, ok := categoryFraming[category]
	if !ok {
		framing = categoryFraming[model.SceneGeneral]
	}

	var b strings.Builder
	b.WriteString("You are writing a single comic panel depicting ")
	b.WriteString(framing)
	b.WriteString(" (category: ")
	b.WriteString(string(category))
	b.WriteString(").\n\nScene: ")
	b.WriteString(scene)
	b.WriteString("\n\nRespond with strict JSON only, no prose and no code fences, with exactly these fields:\n")
	b.WriteString(`{"narration": "<2-3 sentence third-person narration>", "dialogue": "<one short spoken line, or empty string>", "visualDescription": "<one detailed sentence describing the panel: setting, characters, lighting, colors>"}`)
	return b.String()
}

// buildImagePrompt concatenates the visual description, matched character
// styling fragments, the fixed technical fragment, and the palette fragment.
func buildImagePrompt(visual string, style model.StyleCategory) string {
	parts := []string{visual}

	lower := strings.ToLower(visual)
	for _, cs := range characterStyles {
		if strings.Contains(lower, cs.match) {
			parts = append(parts, cs.fragment)
		}
	}

	parts = append(parts, qualityFragment)

	palette, ok := paletteFragments[style]
	if !ok {
		palette = paletteFragments[model.StyleTraditional]
	}
	parts = append(parts, palette)

	return strings.Join(parts, ", ")
}

// stageDetail renders a short operator-facing detail string for rejections.
func stageDetail(stage string, err error) string {
	if err == nil {
		return stage
	}
	return fmt.Sprintf("%s: %v", stage, err)
}
