package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestEvaluator() *Evaluator {
	return NewEvaluator(3, 20, 70)
}

func TestEvaluate_CleanSceneScoresFull(t *testing.T) {
	v := newTestEvaluator().Evaluate("Krishna plays the flute by the Yamuna")

	assert.True(t, v.Passed)
	assert.Equal(t, 100, v.Score)
	assert.Empty(t, v.Issues)
}

func TestEvaluate_ViolenceTriggerDeducts(t *testing.T) {
	// One category match on an otherwise clean domain scene: 100 - 20 = 80.
	v := newTestEvaluator().Evaluate("Krishna sees blood on the river bank")

	assert.LessOrEqual(t, v.Score, 80)
	assert.True(t, v.Passed, "a single category deduction stays at the threshold")
	assert.Contains(t, v.Issues, "Scene contains graphic violence")
}

func TestEvaluate_CompoundingDeductionsFail(t *testing.T) {
	// Violence (-20) plus no domain keyword (-25): 55, below the threshold.
	v := newTestEvaluator().Evaluate("a man wants to kill his neighbor today")

	assert.False(t, v.Passed)
	assert.Equal(t, 55, v.Score)
}

func TestEvaluate_WordCountDeductions(t *testing.T) {
	e := newTestEvaluator()

	short := e.Evaluate("Krishna dances")
	assert.Equal(t, 90, short.Score)
	assert.Contains(t, short.Issues, "Scene description is too short")

	long := e.Evaluate("Krishna walks through the village and meets every single person there while the sun slowly sets behind the distant blue mountains tonight")
	assert.Equal(t, 85, long.Score)
	assert.Contains(t, long.Issues, "Scene description is too long")
}

func TestEvaluate_MissingDomainKeywordDeducts(t *testing.T) {
	v := newTestEvaluator().Evaluate("a quiet walk in the park")

	assert.Equal(t, 75, v.Score)
	assert.Contains(t, v.Issues, "Scene has no recognizable mythological element")
}

// Adding a matched unsafe phrase to a passing text never increases its score.
func TestEvaluate_Monotonic(t *testing.T) {
	e := newTestEvaluator()
	base := "Krishna lifts the Govardhan hill"

	baseline := e.Evaluate(base)
	assert.True(t, baseline.Passed)

	for _, phrase := range []string{"blood", "naked", "racist", "drunk"} {
		worsened := e.Evaluate(base + " " + phrase)
		assert.LessOrEqual(t, worsened.Score, baseline.Score, "adding %q must not raise the score", phrase)
	}
}

func TestEvaluate_ScoreFlooredAtZero(t *testing.T) {
	v := newTestEvaluator().Evaluate("kill naked racist drunk")

	assert.GreaterOrEqual(t, v.Score, 0)
	assert.False(t, v.Passed)
}

func TestEvaluate_DeterministicForSameInput(t *testing.T) {
	e := newTestEvaluator()
	text := "Krishna steals butter from the pot"

	first := e.Evaluate(text)
	second := e.Evaluate(text)
	assert.Equal(t, first, second)
}
