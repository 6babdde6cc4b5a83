// Package pipeline contains the generation orchestrator: the admission,
// safety, provider-invocation and validation state machine that turns a scene
// description into a script and an image reference.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"comic-server/internal/model"
	"comic-server/internal/provider"
	"comic-server/internal/quota"
	"comic-server/internal/safety"
)

// Reason is a stable machine-readable rejection code. It never carries raw
// upstream error text.
type Reason string

const (
	ReasonInvalidRequest   Reason = "invalid_request"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonUnsafeInput      Reason = "unsafe_input"
	ReasonGenerationFailed Reason = "generation_failed"
	ReasonInvalidStructure Reason = "invalid_structure"
	ReasonImageFailed      Reason = "image_failed"
)

// ErrorType discriminates the failed stage for the combined pipeline.
type ErrorType string

const (
	ErrorTypeScript  ErrorType = "script_generation_error"
	ErrorTypeImage   ErrorType = "image_generation_error"
	ErrorTypeGeneral ErrorType = "general_error"
)

// Rejection is a terminal pipeline outcome. Detail is user-actionable for
// validation-type reasons and operator-facing otherwise; the HTTP layer only
// forwards it for the former.
type Rejection struct {
	Reason  Reason
	Detail  string
	ResetAt *time.Time
}

// UserActionable reports whether Detail may be shown verbatim to the caller.
func (r *Rejection) UserActionable() bool {
	return r.Reason == ReasonInvalidRequest || r.Reason == ReasonUnsafeInput || r.Reason == ReasonRateLimited
}

// ComicRejection wraps a Rejection with the stage discriminator.
type ComicRejection struct {
	*Rejection
	Type ErrorType
}

// ScriptResult is the successful outcome of the script stage.
type ScriptResult struct {
	Script       model.Script
	WordCount    int
	RateLimit    quota.Decision
	Quality      safety.QualityVerdict
	OutputSafety safety.Verdict
	ModelUsed    string
	Degraded     bool
}

// ImageResult is the successful outcome of the image stage.
type ImageResult struct {
	ImageRef  string
	Prompt    string
	RateLimit quota.Decision
}

// ComicResult is the assembled response of the combined pipeline.
type ComicResult struct {
	Script       model.Script
	ImageRef     string
	ImagePrompt  string
	WordCount    int
	Quality      safety.QualityVerdict
	OutputSafety safety.Verdict
	ScriptRate   quota.Decision
	ImageRate    quota.Decision
	ModelUsed    string
	Degraded     bool
}

// Options are the orchestrator's tunables.
type Options struct {
	Model         string
	FallbackModel string
	MinSceneWords int
	MaxSceneWords int
}

// Orchestrator sequences admission, safety, provider invocation and
// validation. All retry/fallback/degradation policy lives here; the provider
// adapter only does transport-level retries.
type Orchestrator struct {
	logger      *zap.Logger
	provider    provider.Client
	scriptQuota quota.Store
	imageQuota  quota.Store
	safety      *safety.Evaluator
	opts        Options
}

// New creates the orchestrator.
func New(logger *zap.Logger, prov provider.Client, scriptQuota, imageQuota quota.Store, eval *safety.Evaluator, opts Options) *Orchestrator {
	if opts.MinSceneWords <= 0 {
		opts.MinSceneWords = 3
	}
	if opts.MaxSceneWords <= 0 {
		opts.MaxSceneWords = 20
	}
	return &Orchestrator{
		logger:      logger,
		provider:    prov,
		scriptQuota: scriptQuota,
		imageQuota:  imageQuota,
		safety:      eval,
		opts:        opts,
	}
}

// defaultScript is the hardcoded deterministic fallback used only in
// degraded mode when even the synthetic payload cannot be parsed.
var defaultScript = model.Script{
	Narration:         "Krishna stands at the edge of Vrindavan as the morning light spreads over the village.",
	VisualDescription: "Krishna in yellow garment with peacock feather crown on a village path at dawn, cows nearby, soft golden light, calm expression",
}

// GenerateScript runs the script stage: word-count validation, script-quota
// admission, input safety (fail-open on evaluator fault), provider call with
// one fallback-model retry, structural validation, and advisory scoring.
func (o *Orchestrator) GenerateScript(ctx context.Context, req model.GenerationRequest) (*ScriptResult, *Rejection) {
	log := o.logger.With(zap.String("identity", req.Identity), zap.String("category", string(req.SceneCategory)))

	wc := model.WordCount(req.Scene)
	if wc < o.opts.MinSceneWords || wc > o.opts.MaxSceneWords {
		rejections.WithLabelValues(string(ReasonInvalidRequest)).Inc()
		return nil, &Rejection{
			Reason: ReasonInvalidRequest,
			Detail: fmt.Sprintf("scene description must be between %d and %d words (got %d)", o.opts.MinSceneWords, o.opts.MaxSceneWords, wc),
		}
	}

	dec := o.admit(ctx, o.scriptQuota, req.Identity, "script", log)
	if !dec.Allowed {
		rejections.WithLabelValues(string(ReasonRateLimited)).Inc()
		resetAt := dec.ResetAt
		return nil, &Rejection{
			Reason:  ReasonRateLimited,
			Detail:  "script generation limit reached, retry after the window resets",
			ResetAt: &resetAt,
		}
	}

	if rej := o.checkInputSafety(ctx, req.Scene, log); rej != nil {
		rejections.WithLabelValues(string(rej.Reason)).Inc()
		return nil, rej
	}

	prompt := buildScriptPrompt(req.Scene, req.SceneCategory)
	text, usedModel, err := o.completeWithFallback(ctx, prompt, log)
	if err != nil {
		log.Error("Script generation failed", zap.Error(err))
		rejections.WithLabelValues(string(ReasonGenerationFailed)).Inc()
		stageOutcomes.WithLabelValues("script", "error").Inc()
		return nil, &Rejection{Reason: ReasonGenerationFailed, Detail: stageDetail("text completion", err)}
	}

	script, perr := parseScript(text)
	if perr != nil || !script.Valid() {
		if o.provider.Degraded() {
			// Degraded mode is contractually always well-formed; fall back to
			// the deterministic default rather than rejecting.
			log.Warn("Degraded payload invalid, using default script", zap.Error(perr))
			script = defaultScript
		} else {
			log.Error("Provider returned malformed script", zap.Error(perr))
			rejections.WithLabelValues(string(ReasonInvalidStructure)).Inc()
			stageOutcomes.WithLabelValues("script", "invalid_structure").Inc()
			return nil, &Rejection{Reason: ReasonInvalidStructure, Detail: "provider returned a malformed script payload"}
		}
	}

	// Advisory only: never changes the transition outcome.
	quality := safety.EvaluateQuality(script)
	outputSafety := o.safety.Evaluate(script.Narration + " " + script.Dialogue)

	stageOutcomes.WithLabelValues("script", "success").Inc()
	return &ScriptResult{
		Script:       script,
		WordCount:    wc,
		RateLimit:    dec,
		Quality:      quality,
		OutputSafety: outputSafety,
		ModelUsed:    usedModel,
		Degraded:     o.provider.Degraded(),
	}, nil
}

// GenerateImage runs the image stage: image-quota admission, prompt
// enhancement, and the provider's image synthesis capability.
func (o *Orchestrator) GenerateImage(ctx context.Context, req model.ImageRequest) (*ImageResult, *Rejection) {
	log := o.logger.With(zap.String("identity", req.Identity), zap.String("style", string(req.StyleCategory)))

	if strings.TrimSpace(req.VisualDescription) == "" {
		rejections.WithLabelValues(string(ReasonInvalidRequest)).Inc()
		return nil, &Rejection{Reason: ReasonInvalidRequest, Detail: "visualDescription must not be empty"}
	}

	dec := o.admit(ctx, o.imageQuota, req.Identity, "image", log)
	if !dec.Allowed {
		rejections.WithLabelValues(string(ReasonRateLimited)).Inc()
		resetAt := dec.ResetAt
		return nil, &Rejection{
			Reason:  ReasonRateLimited,
			Detail:  "image generation limit reached, retry after the window resets",
			ResetAt: &resetAt,
		}
	}

	prompt := buildImagePrompt(req.VisualDescription, req.StyleCategory)

	start := time.Now()
	ref, err := o.provider.SynthesizeImage(ctx, prompt, req.StyleCategory)
	providerCallDuration.WithLabelValues("image", o.mode()).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("Image synthesis failed", zap.Error(err))
		rejections.WithLabelValues(string(ReasonImageFailed)).Inc()
		stageOutcomes.WithLabelValues("image", "error").Inc()
		return nil, &Rejection{Reason: ReasonImageFailed, Detail: stageDetail("image synthesis", err)}
	}

	stageOutcomes.WithLabelValues("image", "success").Inc()
	return &ImageResult{ImageRef: ref, Prompt: prompt, RateLimit: dec}, nil
}

// GenerateComic runs the full pipeline and assembles the combined response.
func (o *Orchestrator) GenerateComic(ctx context.Context, req model.GenerationRequest) (*ComicResult, *ComicRejection) {
	scriptRes, rej := o.GenerateScript(ctx, req)
	if rej != nil {
		t := ErrorTypeScript
		if rej.Reason == ReasonInvalidRequest {
			t = ErrorTypeGeneral
		}
		return nil, &ComicRejection{Rejection: rej, Type: t}
	}

	imageRes, rej := o.GenerateImage(ctx, model.ImageRequest{
		VisualDescription: scriptRes.Script.VisualDescription,
		SceneCategory:     req.SceneCategory,
		StyleCategory:     req.StyleCategory,
		Identity:          req.Identity,
	})
	if rej != nil {
		return nil, &ComicRejection{Rejection: rej, Type: ErrorTypeImage}
	}

	return &ComicResult{
		Script:       scriptRes.Script,
		ImageRef:     imageRes.ImageRef,
		ImagePrompt:  imageRes.Prompt,
		WordCount:    scriptRes.WordCount,
		Quality:      scriptRes.Quality,
		OutputSafety: scriptRes.OutputSafety,
		ScriptRate:   scriptRes.RateLimit,
		ImageRate:    imageRes.RateLimit,
		ModelUsed:    scriptRes.ModelUsed,
		Degraded:     scriptRes.Degraded,
	}, nil
}

// admit runs an admission check. A store fault fails open: denying
// legitimate traffic on a quota-store outage is judged worse than briefly
// uncounted requests.
func (o *Orchestrator) admit(ctx context.Context, store quota.Store, identity, stage string, log *zap.Logger) quota.Decision {
	dec, err := store.Check(ctx, identity)
	if err != nil {
		log.Error("Quota check failed, failing open", zap.String("stage", stage), zap.Error(err))
		return quota.Decision{Allowed: true, Remaining: 0, ResetAt: time.Now()}
	}
	return dec
}

// checkInputSafety gates raw scene text. The rule-based evaluator always
// runs; in live mode the provider's moderation capability is additionally
// consulted. A moderation transport fault fails open: false rejection of
// legitimate requests is judged worse than an occasional unfiltered prompt.
func (o *Orchestrator) checkInputSafety(ctx context.Context, scene string, log *zap.Logger) *Rejection {
	verdict := o.safety.Evaluate(scene)
	if !verdict.Passed {
		log.Info("Input rejected by safety evaluator", zap.Int("score", verdict.Score), zap.Strings("issues", verdict.Issues))
		return &Rejection{
			Reason: ReasonUnsafeInput,
			Detail: strings.Join(verdict.Issues, "; "),
		}
	}

	if !o.provider.Degraded() {
		mod, err := o.provider.Moderate(ctx, scene)
		if err != nil {
			failOpenEvents.Inc()
			log.Warn("Moderation call failed, failing open", zap.Error(err))
			return nil
		}
		if mod.Flagged {
			log.Info("Input flagged by provider moderation", zap.Strings("categories", mod.Categories))
			return &Rejection{
				Reason: ReasonUnsafeInput,
				Detail: "scene was flagged by content moderation: " + strings.Join(mod.Categories, ", "),
			}
		}
	}
	return nil
}

// completeWithFallback invokes text completion against the primary model and
// retries exactly once against the fallback model when the provider rejects
// the primary as unknown or unavailable.
func (o *Orchestrator) completeWithFallback(ctx context.Context, prompt string, log *zap.Logger) (string, string, error) {
	start := time.Now()
	text, err := o.provider.CompleteText(ctx, prompt, o.opts.Model)
	providerCallDuration.WithLabelValues("text", o.mode()).Observe(time.Since(start).Seconds())
	if err == nil {
		return text, o.opts.Model, nil
	}

	if provider.IsModelNotFound(err) && o.opts.FallbackModel != "" && o.opts.FallbackModel != o.opts.Model {
		fallbackAttempts.Inc()
		log.Warn("Primary model unavailable, retrying with fallback",
			zap.String("primary", o.opts.Model), zap.String("fallback", o.opts.FallbackModel))

		start = time.Now()
		text, ferr := o.provider.CompleteText(ctx, prompt, o.opts.FallbackModel)
		providerCallDuration.WithLabelValues("text", o.mode()).Observe(time.Since(start).Seconds())
		if ferr != nil {
			return "", "", ferr
		}
		return text, o.opts.FallbackModel, nil
	}

	return "", "", err
}

func (o *Orchestrator) mode() string {
	if o.provider.Degraded() {
		return "degraded"
	}
	return "live"
}

// parseScript decodes the provider's JSON payload, tolerating markdown code
// fences around the object.
func parseScript(text string) (model.Script, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var script model.Script
	if err := json.Unmarshal([]byte(trimmed), &script); err != nil {
		return model.Script{}, fmt.Errorf("script payload is not valid JSON: %w", err)
	}
	return script, nil
}
