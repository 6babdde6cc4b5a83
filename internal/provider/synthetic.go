package provider

import (
	"context"
	"encoding/json"
	"strings"

	"comic-server/internal/model"
)

// cannedScene is one deterministic degraded-mode result, selected by trigger
// words in the scene text.
type cannedScene struct {
	triggers []string
	script   model.Script
	imageRef string
}

var cannedScenes = []cannedScene{
	{
		triggers: []string{"govardhan", "mountain", "hill", "storm", "rain"},
		script: model.Script{
			Narration:         "Krishna calmly lifts the mighty Govardhan hill on his little finger, sheltering the villagers of Vrindavan from Indra's furious storm.",
			Dialogue:          "Fear not, come under the hill with your cows.",
			VisualDescription: "Govardhan hill held aloft over a village, warm lamp light under the hill, villagers and cows sheltering, dark storm clouds and silver rain above, Krishna smiling in yellow garment against a charged sky",
		},
		imageRef: "/assets/scenes/govardhan-lila.png",
	},
	{
		triggers: []string{"kaliya", "serpent", "snake"},
		script: model.Script{
			Narration:         "Krishna dances upon the hoods of the serpent Kaliya, subduing the poison of the Yamuna with each graceful step.",
			Dialogue:          "Leave these waters, Kaliya, and harm no one again.",
			VisualDescription: "Krishna dancing on the spread hoods of a great serpent in the river, churning dark water, frightened villagers on the bank under a stormy sky, peacock feather crown, determined expression, vivid color contrast",
		},
		imageRef: "/assets/scenes/kaliya-mardan.png",
	},
	{
		triggers: []string{"flute", "music", "dance", "raas"},
		script: model.Script{
			Narration:         "As dusk settles over the Yamuna, Krishna raises his flute and the forest falls silent; gopis and peacocks alike turn toward the melody.",
			Dialogue:          "",
			VisualDescription: "Krishna under a kadamba tree on the river bank, flute at his lips, moonlit sky, peacocks fanned out, gopis in bright garments dancing, soft golden light on the water and every expression serene",
		},
		imageRef: "/assets/scenes/flute-yamuna.png",
	},
	{
		triggers: []string{"butter", "makhan", "pot", "steal"},
		script: model.Script{
			Narration:         "Little Krishna balances on his friends' shoulders, reaching for the butter pot hung high from the rafters while Yashoda looks away.",
			Dialogue:          "Just one more handful before mother turns around!",
			VisualDescription: "A village courtyard, clay pots hanging from the ceiling, Krishna as a child in yellow cloth reaching up, mischievous expression, morning light through the doorway, cows peering in, warm earthy colors",
		},
		imageRef: "/assets/scenes/makhan-chor.png",
	},
}

// categoryDefaults supply a deterministic script when no trigger matches.
var categoryDefaults = map[model.SceneCategory]cannedScene{
	model.SceneGeneral: {
		script: model.Script{
			Narration:         "Krishna walks the lanes of Vrindavan at sunrise, cows trailing behind him and the village slowly waking to his presence.",
			Dialogue:          "",
			VisualDescription: "A village path at dawn, Krishna in yellow garment with a peacock feather, cows and calves following, soft pink sky, banyan tree shading mud houses, gentle light and calm expression",
		},
		imageRef: "/assets/scenes/vrindavan-morning.png",
	},
	model.SceneAction: {
		script: model.Script{
			Narration:         "Krishna springs forward to defend the villagers, his form radiant and swift as the danger closes in.",
			Dialogue:          "Stand behind me!",
			VisualDescription: "Krishna in dynamic motion before a village crowd, swirling dust and dramatic light, yellow garment in the wind, determined expression, stormy sky above the trees",
		},
		imageRef: "/assets/scenes/action-default.png",
	},
	model.SceneSpiritual: {
		script: model.Script{
			Narration:         "In stillness by the river, Krishna reveals a glimpse of the divine to those whose hearts are open.",
			Dialogue:          "Whenever dharma declines, I arise.",
			VisualDescription: "Krishna seated in lotus posture on a river bank, golden halo of light, lotus flowers on the water, devotees with folded hands, twilight sky in violet and gold, serene expression",
		},
		imageRef: "/assets/scenes/spiritual-default.png",
	},
}

// syntheticClient is the degraded-mode adapter. It never fails and always
// returns a structurally valid result, which is why the orchestrator may
// treat a malformed script from a live provider as provider misbehavior.
type syntheticClient struct{}

// NewSynthetic creates the degraded/synthetic adapter.
func NewSynthetic() Client {
	return &syntheticClient{}
}

func (s *syntheticClient) Degraded() bool { return true }

// CompleteText returns a canned script as JSON, matched on trigger words in
// the prompt and falling back to the category default.
func (s *syntheticClient) CompleteText(_ context.Context, prompt, _ string) (string, error) {
	scene := matchScene(prompt)
	payload, err := json.Marshal(scene.script)
	if err != nil {
		// Static data always marshals; keep the error path for the contract.
		return "", &Error{Code: ErrCodeUpstream, err: err}
	}
	return string(payload), nil
}

// SynthesizeImage returns a deterministic placeholder reference selected by
// the same trigger matching.
func (s *syntheticClient) SynthesizeImage(_ context.Context, prompt string, _ model.StyleCategory) (string, error) {
	return matchScene(prompt).imageRef, nil
}

// Moderate always passes in degraded mode.
func (s *syntheticClient) Moderate(_ context.Context, _ string) (Moderation, error) {
	return Moderation{Flagged: false}, nil
}

func matchScene(prompt string) cannedScene {
	lower := strings.ToLower(prompt)
	for _, scene := range cannedScenes {
		for _, trigger := range scene.triggers {
			if strings.Contains(lower, trigger) {
				return scene
			}
		}
	}
	return categoryDefaults[matchCategory(lower)]
}

// matchCategory recovers the scene category from the composed prompt; the
// orchestrator embeds the category name in its framing.
func matchCategory(lower string) model.SceneCategory {
	switch {
	case strings.Contains(lower, string(model.SceneAction)):
		return model.SceneAction
	case strings.Contains(lower, string(model.SceneSpiritual)):
		return model.SceneSpiritual
	default:
		return model.SceneGeneral
	}
}
