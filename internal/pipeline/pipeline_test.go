package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comic-server/internal/mocks"
	"comic-server/internal/model"
	"comic-server/internal/provider"
	"comic-server/internal/quota"
	"comic-server/internal/safety"
)

const (
	testIdentity      = "client-1"
	testPrimaryModel  = "primary-model"
	testFallbackModel = "fallback-model"
)

func testOptions() Options {
	return Options{
		Model:         testPrimaryModel,
		FallbackModel: testFallbackModel,
		MinSceneWords: 3,
		MaxSceneWords: 20,
	}
}

func degradedOrchestrator(scriptCeiling, imageCeiling int) *Orchestrator {
	return New(
		zap.NewNop(),
		provider.NewSynthetic(),
		quota.NewMemoryStore(scriptCeiling, time.Minute),
		quota.NewMemoryStore(imageCeiling, time.Minute),
		safety.NewEvaluator(3, 20, 70),
		testOptions(),
	)
}

func mockedOrchestrator(prov *mocks.MockProviderClient) *Orchestrator {
	return New(
		zap.NewNop(),
		prov,
		quota.NewMemoryStore(10, time.Minute),
		quota.NewMemoryStore(10, time.Minute),
		safety.NewEvaluator(3, 20, 70),
		testOptions(),
	)
}

func TestGenerateComic_DegradedGovardhanScene(t *testing.T) {
	orch := degradedOrchestrator(10, 10)

	res, rej := orch.GenerateComic(context.Background(), model.GenerationRequest{
		Scene:         "Krishna lifts the mountain to protect villagers",
		SceneCategory: model.SceneGeneral,
		StyleCategory: model.StyleTraditional,
		Identity:      testIdentity,
	})

	require.Nil(t, rej)
	require.NotNil(t, res)
	assert.Contains(t, res.Script.Narration, "Krishna")
	assert.Contains(t, res.Script.VisualDescription, "Govardhan")
	assert.NotEmpty(t, res.ImageRef)
	assert.True(t, res.Degraded)
	assert.Equal(t, 7, res.WordCount)
	assert.Equal(t, 9, res.ScriptRate.Remaining)
	assert.Equal(t, 9, res.ImageRate.Remaining)
}

func TestGenerateScript_OneWordSceneRejectedBeforeAdmission(t *testing.T) {
	scriptQuota := quota.NewMemoryStore(10, time.Minute)
	orch := New(zap.NewNop(), provider.NewSynthetic(), scriptQuota,
		quota.NewMemoryStore(10, time.Minute), safety.NewEvaluator(3, 20, 70), testOptions())

	res, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "go",
		Identity: testIdentity,
	})

	require.Nil(t, res)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonInvalidRequest, rej.Reason)
	assert.Equal(t, 0, scriptQuota.Len(), "validation must happen before the admission check")
}

func TestGenerateScript_CeilingPlusOneIsRateLimited(t *testing.T) {
	orch := degradedOrchestrator(3, 10)
	ctx := context.Background()
	req := model.GenerationRequest{Scene: "Krishna plays the flute at dusk", Identity: testIdentity}

	before := time.Now()
	for i := 0; i < 3; i++ {
		_, rej := orch.GenerateScript(ctx, req)
		require.Nil(t, rej, "request %d should be admitted", i+1)
	}

	res, rej := orch.GenerateScript(ctx, req)
	require.Nil(t, res)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonRateLimited, rej.Reason)
	require.NotNil(t, rej.ResetAt)
	assert.True(t, rej.ResetAt.After(before), "resetAt must be strictly after the request time")
}

func TestGenerateScript_UnsafeInputRejected(t *testing.T) {
	orch := degradedOrchestrator(10, 10)

	res, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "a man wants to kill his neighbor today",
		Identity: testIdentity,
	})

	require.Nil(t, res)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonUnsafeInput, rej.Reason)
	assert.True(t, rej.UserActionable())
}

func TestGenerateScript_MalformedLiveResponseIsInvalidStructure(t *testing.T) {
	prov := &mocks.MockProviderClient{}
	prov.On("Moderate", mock.Anything, mock.Anything).Return(provider.Moderation{}, nil)
	prov.On("CompleteText", mock.Anything, mock.Anything, testPrimaryModel).Return("this is not json", nil)

	orch := mockedOrchestrator(prov)
	res, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "Krishna plays the flute at dusk",
		Identity: testIdentity,
	})

	require.Nil(t, res)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonInvalidStructure, rej.Reason)
	assert.False(t, rej.UserActionable(), "provider detail must not reach the caller")
}

func TestGenerateScript_MissingMandatoryFieldIsInvalidStructure(t *testing.T) {
	prov := &mocks.MockProviderClient{}
	prov.On("Moderate", mock.Anything, mock.Anything).Return(provider.Moderation{}, nil)
	prov.On("CompleteText", mock.Anything, mock.Anything, testPrimaryModel).
		Return(`{"narration": "", "dialogue": "hi", "visualDescription": "a village"}`, nil)

	orch := mockedOrchestrator(prov)
	_, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "Krishna plays the flute at dusk",
		Identity: testIdentity,
	})

	require.NotNil(t, rej)
	assert.Equal(t, ReasonInvalidStructure, rej.Reason)
}

func TestGenerateScript_FallsBackOnceOnModelNotFound(t *testing.T) {
	prov := &mocks.MockProviderClient{}
	prov.On("Moderate", mock.Anything, mock.Anything).Return(provider.Moderation{}, nil)
	prov.On("CompleteText", mock.Anything, mock.Anything, testPrimaryModel).
		Return("", provider.NewError(provider.ErrCodeModelNotFound, errors.New("no such model")))
	prov.On("CompleteText", mock.Anything, mock.Anything, testFallbackModel).
		Return(`{"narration": "Krishna smiles in the village.", "visualDescription": "Krishna in yellow garment, warm light, village path"}`, nil)

	orch := mockedOrchestrator(prov)
	res, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "Krishna walks through the village",
		Identity: testIdentity,
	})

	require.Nil(t, rej)
	require.NotNil(t, res)
	assert.Equal(t, testFallbackModel, res.ModelUsed)
	prov.AssertNumberOfCalls(t, "CompleteText", 2)
}

func TestGenerateScript_OtherProviderErrorIsTerminal(t *testing.T) {
	prov := &mocks.MockProviderClient{}
	prov.On("Moderate", mock.Anything, mock.Anything).Return(provider.Moderation{}, nil)
	prov.On("CompleteText", mock.Anything, mock.Anything, testPrimaryModel).
		Return("", provider.NewError(provider.ErrCodeUpstream, errors.New("boom")))

	orch := mockedOrchestrator(prov)
	_, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "Krishna walks through the village",
		Identity: testIdentity,
	})

	require.NotNil(t, rej)
	assert.Equal(t, ReasonGenerationFailed, rej.Reason)
	prov.AssertNumberOfCalls(t, "CompleteText", 1)
}

func TestGenerateScript_ModerationFaultFailsOpen(t *testing.T) {
	prov := &mocks.MockProviderClient{}
	prov.On("Moderate", mock.Anything, mock.Anything).
		Return(provider.Moderation{}, provider.NewError(provider.ErrCodeTimeout, errors.New("timeout")))
	prov.On("CompleteText", mock.Anything, mock.Anything, testPrimaryModel).
		Return(`{"narration": "Krishna smiles in the village.", "visualDescription": "Krishna in yellow garment, warm light, village path"}`, nil)

	orch := mockedOrchestrator(prov)
	res, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "Krishna walks through the village",
		Identity: testIdentity,
	})

	require.Nil(t, rej, "a moderation fault must not reject the request")
	require.NotNil(t, res)
}

func TestGenerateScript_ModerationFlagRejects(t *testing.T) {
	prov := &mocks.MockProviderClient{}
	prov.On("Moderate", mock.Anything, mock.Anything).
		Return(provider.Moderation{Flagged: true, Categories: []string{"violence"}}, nil)

	orch := mockedOrchestrator(prov)
	_, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "Krishna walks through the village",
		Identity: testIdentity,
	})

	require.NotNil(t, rej)
	assert.Equal(t, ReasonUnsafeInput, rej.Reason)
	prov.AssertNotCalled(t, "CompleteText", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateScript_DegradedMalformedPayloadUsesDefaultScript(t *testing.T) {
	prov := &mocks.MockProviderClient{DegradedMode: true}
	prov.On("CompleteText", mock.Anything, mock.Anything, testPrimaryModel).Return("garbage", nil)

	orch := mockedOrchestrator(prov)
	res, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "Krishna walks through the village",
		Identity: testIdentity,
	})

	require.Nil(t, rej)
	require.NotNil(t, res)
	assert.Equal(t, defaultScript, res.Script)
}

func TestGenerateImage_QuotaIndependentFromScriptStage(t *testing.T) {
	orch := degradedOrchestrator(1, 2)
	ctx := context.Background()

	_, rej := orch.GenerateScript(ctx, model.GenerationRequest{
		Scene: "Krishna plays the flute at dusk", Identity: testIdentity,
	})
	require.Nil(t, rej)

	// Script quota is exhausted; the image quota still admits.
	for i := 0; i < 2; i++ {
		res, rej := orch.GenerateImage(ctx, model.ImageRequest{
			VisualDescription: "Krishna under a kadamba tree, warm light",
			StyleCategory:     model.StyleVibrant,
			Identity:          testIdentity,
		})
		require.Nil(t, rej)
		require.NotNil(t, res)
	}

	_, rej = orch.GenerateImage(ctx, model.ImageRequest{
		VisualDescription: "Krishna under a kadamba tree, warm light",
		Identity:          testIdentity,
	})
	require.NotNil(t, rej)
	assert.Equal(t, ReasonRateLimited, rej.Reason)
}

func TestGenerateImage_PromptEnhancement(t *testing.T) {
	prov := &mocks.MockProviderClient{}
	prov.On("SynthesizeImage", mock.Anything, mock.Anything, model.StyleDivine).Return("https://img.example/1.png", nil)

	orch := mockedOrchestrator(prov)
	res, rej := orch.GenerateImage(context.Background(), model.ImageRequest{
		VisualDescription: "Krishna and Radha by the river",
		StyleCategory:     model.StyleDivine,
		Identity:          testIdentity,
	})

	require.Nil(t, rej)
	assert.Contains(t, res.Prompt, "Krishna and Radha by the river")
	assert.Contains(t, res.Prompt, "peacock feather crown", "character styling fragment must be appended")
	assert.Contains(t, res.Prompt, "lotus in hand", "all matched characters contribute fragments")
	assert.Contains(t, res.Prompt, qualityFragment)
	assert.Contains(t, res.Prompt, paletteFragments[model.StyleDivine])
}

func TestGenerateComic_ImageStageFailureIsDiscriminated(t *testing.T) {
	prov := &mocks.MockProviderClient{}
	prov.On("Moderate", mock.Anything, mock.Anything).Return(provider.Moderation{}, nil)
	prov.On("CompleteText", mock.Anything, mock.Anything, testPrimaryModel).
		Return(`{"narration": "Krishna smiles in the village.", "visualDescription": "Krishna in yellow garment, warm light, village path"}`, nil)
	prov.On("SynthesizeImage", mock.Anything, mock.Anything, mock.Anything).
		Return("", provider.NewError(provider.ErrCodeUpstream, errors.New("image backend down")))

	orch := mockedOrchestrator(prov)
	res, crej := orch.GenerateComic(context.Background(), model.GenerationRequest{
		Scene:    "Krishna walks through the village",
		Identity: testIdentity,
	})

	require.Nil(t, res)
	require.NotNil(t, crej)
	assert.Equal(t, ErrorTypeImage, crej.Type)
	assert.Equal(t, ReasonImageFailed, crej.Reason)
}

func TestGenerateComic_WordCountErrorIsGeneral(t *testing.T) {
	orch := degradedOrchestrator(10, 10)

	_, crej := orch.GenerateComic(context.Background(), model.GenerationRequest{
		Scene:    "go",
		Identity: testIdentity,
	})

	require.NotNil(t, crej)
	assert.Equal(t, ErrorTypeGeneral, crej.Type)
	assert.Equal(t, ReasonInvalidRequest, crej.Reason)
}

func TestParseScript_ToleratesCodeFences(t *testing.T) {
	fenced := "```json\n{\"narration\": \"n\", \"visualDescription\": \"v\"}\n```"

	script, err := parseScript(fenced)
	require.NoError(t, err)
	assert.Equal(t, "n", script.Narration)
	assert.Equal(t, "v", script.VisualDescription)
}

func TestGenerateScript_QuotaStoreFaultFailsOpen(t *testing.T) {
	scriptQuota := &mocks.MockQuotaStore{}
	scriptQuota.On("Check", mock.Anything, testIdentity).Return(quota.Decision{}, errors.New("redis down"))

	orch := New(zap.NewNop(), provider.NewSynthetic(), scriptQuota,
		quota.NewMemoryStore(10, time.Minute), safety.NewEvaluator(3, 20, 70), testOptions())

	res, rej := orch.GenerateScript(context.Background(), model.GenerationRequest{
		Scene:    "Krishna plays the flute at dusk",
		Identity: testIdentity,
	})

	require.Nil(t, rej)
	require.NotNil(t, res)
}
