// Package api exposes the generation pipeline over HTTP (gin).
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"comic-server/internal/config"
	"comic-server/internal/gallery"
	"comic-server/internal/middleware"
	"comic-server/internal/model"
	"comic-server/internal/pipeline"
	"comic-server/internal/quota"
)

// Handler wires the orchestrator and collaborators to the HTTP surface.
type Handler struct {
	logger      *zap.Logger
	orch        *pipeline.Orchestrator
	gallery     gallery.Store
	cfg         *config.Config
	scriptQuota quota.Store
	imageQuota  quota.Store
}

// NewHandler creates the HTTP handler set.
func NewHandler(logger *zap.Logger, orch *pipeline.Orchestrator, store gallery.Store, cfg *config.Config, scriptQuota, imageQuota quota.Store) *Handler {
	return &Handler{
		logger:      logger,
		orch:        orch,
		gallery:     store,
		cfg:         cfg,
		scriptQuota: scriptQuota,
		imageQuota:  imageQuota,
	}
}

// RegisterRoutes attaches all application routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.Use(middleware.ClientIdentity())
	{
		api.POST("/generate-script", h.GenerateScript)
		api.POST("/generate-image", h.GenerateImage)
		api.POST("/generate-comic", h.GenerateComic)

		api.POST("/gallery", h.SaveArtifact)
		api.GET("/gallery", h.ListArtifacts)
		api.DELETE("/gallery/:id", h.DeleteArtifact)
		api.PATCH("/gallery/:id/favorite", h.ToggleFavorite)

		api.POST("/admin/reset-limits", h.ResetLimits)
	}
}

type scriptRequest struct {
	Scene         string `json:"scene" binding:"required"`
	SceneCategory string `json:"sceneCategory"`
}

type imageRequest struct {
	VisualDescription string `json:"visualDescription" binding:"required"`
	SceneCategory     string `json:"sceneCategory"`
	StyleCategory     string `json:"styleCategory"`
}

type comicRequest struct {
	Scene         string `json:"scene" binding:"required"`
	SceneCategory string `json:"sceneCategory"`
	StyleCategory string `json:"styleCategory"`
}

type rateLimitMeta struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

func meta(dec quota.Decision) rateLimitMeta {
	return rateLimitMeta{Remaining: dec.Remaining, ResetAt: dec.ResetAt}
}

// GenerateScript handles the script stage endpoint.
func (h *Handler) GenerateScript(c *gin.Context) {
	var req scriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": string(pipeline.ReasonInvalidRequest), "detail": "scene is required"})
		return
	}

	res, rej := h.orch.GenerateScript(c.Request.Context(), model.GenerationRequest{
		Scene:         req.Scene,
		SceneCategory: model.ParseSceneCategory(req.SceneCategory),
		Identity:      middleware.Identity(c),
	})
	if rej != nil {
		h.reject(c, rej)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"script":  res.Script,
		"quality": res.Quality,
		"metadata": gin.H{
			"wordCount": res.WordCount,
			"rateLimit": meta(res.RateLimit),
			"model":     res.ModelUsed,
			"degraded":  res.Degraded,
			"safety":    res.OutputSafety,
		},
	})
}

// GenerateImage handles the standalone image stage endpoint.
func (h *Handler) GenerateImage(c *gin.Context) {
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": string(pipeline.ReasonInvalidRequest), "detail": "visualDescription is required"})
		return
	}

	res, rej := h.orch.GenerateImage(c.Request.Context(), model.ImageRequest{
		VisualDescription: req.VisualDescription,
		SceneCategory:     model.ParseSceneCategory(req.SceneCategory),
		StyleCategory:     model.ParseStyleCategory(req.StyleCategory),
		Identity:          middleware.Identity(c),
	})
	if rej != nil {
		h.reject(c, rej)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"imageRef": res.ImageRef,
		"prompt":   res.Prompt,
		"metadata": gin.H{"rateLimit": meta(res.RateLimit)},
	})
}

// GenerateComic handles the combined pipeline endpoint.
func (h *Handler) GenerateComic(c *gin.Context) {
	var req comicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":   false,
			"error":     string(pipeline.ReasonInvalidRequest),
			"errorType": string(pipeline.ErrorTypeGeneral),
			"detail":    "scene is required",
		})
		return
	}

	res, crej := h.orch.GenerateComic(c.Request.Context(), model.GenerationRequest{
		Scene:         req.Scene,
		SceneCategory: model.ParseSceneCategory(req.SceneCategory),
		StyleCategory: model.ParseStyleCategory(req.StyleCategory),
		Identity:      middleware.Identity(c),
	})
	if crej != nil {
		body := h.rejectionBody(crej.Rejection)
		body["errorType"] = string(crej.Type)
		c.JSON(reasonStatus(crej.Reason), body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"script":      res.Script,
		"imageRef":    res.ImageRef,
		"imagePrompt": res.ImagePrompt,
		"quality":     res.Quality,
		"metadata": gin.H{
			"wordCount":       res.WordCount,
			"scriptRateLimit": meta(res.ScriptRate),
			"imageRateLimit":  meta(res.ImageRate),
			"model":           res.ModelUsed,
			"degraded":        res.Degraded,
			"safety":          res.OutputSafety,
		},
	})
}

// ResetLimits clears all quota state. Refused in the production profile.
func (h *Handler) ResetLimits(c *gin.Context) {
	if h.cfg.IsProduction() {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden", "detail": "quota reset is disabled in production"})
		return
	}

	ctx := c.Request.Context()
	if err := h.scriptQuota.Reset(ctx); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "reset_failed"})
		return
	}
	if err := h.imageQuota.Reset(ctx); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "reset_failed"})
		return
	}

	h.logger.Info("Quota state reset via admin endpoint", zap.String("identity", middleware.Identity(c)))
	c.JSON(http.StatusOK, gin.H{"success": true, "timestamp": time.Now()})
}

// SaveArtifact stores a finished generation in the gallery.
func (h *Handler) SaveArtifact(c *gin.Context) {
	var req struct {
		Scene    string       `json:"scene" binding:"required"`
		Script   model.Script `json:"script" binding:"required"`
		ImageRef string       `json:"imageRef" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": string(pipeline.ReasonInvalidRequest), "detail": "scene, script and imageRef are required"})
		return
	}

	id, err := h.gallery.Save(c.Request.Context(), gallery.Artifact{
		Scene:    req.Scene,
		Script:   req.Script,
		ImageRef: req.ImageRef,
	})
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "save_failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
}

// ListArtifacts returns all saved artifacts, newest first.
func (h *Handler) ListArtifacts(c *gin.Context) {
	artifacts, err := h.gallery.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "artifacts": artifacts})
}

// DeleteArtifact removes a saved artifact.
func (h *Handler) DeleteArtifact(c *gin.Context) {
	err := h.gallery.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not_found"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "delete_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ToggleFavorite flips an artifact's favorite flag.
func (h *Handler) ToggleFavorite(c *gin.Context) {
	fav, err := h.gallery.ToggleFavorite(c.Request.Context(), c.Param("id"))
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not_found"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "toggle_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "favorite": fav})
}

func (h *Handler) reject(c *gin.Context, rej *pipeline.Rejection) {
	c.JSON(reasonStatus(rej.Reason), h.rejectionBody(rej))
}

// rejectionBody builds the error envelope. Detail is only forwarded for
// validation-type rejections where it is user-actionable; internal detail
// stays in the logs.
func (h *Handler) rejectionBody(rej *pipeline.Rejection) gin.H {
	body := gin.H{"success": false, "error": string(rej.Reason)}
	if rej.UserActionable() && rej.Detail != "" {
		body["detail"] = rej.Detail
	}
	if rej.ResetAt != nil {
		body["resetAt"] = *rej.ResetAt
	}
	return body
}

func reasonStatus(reason pipeline.Reason) int {
	switch reason {
	case pipeline.ReasonInvalidRequest:
		return http.StatusBadRequest
	case pipeline.ReasonUnsafeInput:
		return http.StatusUnprocessableEntity
	case pipeline.ReasonRateLimited:
		return http.StatusTooManyRequests
	case pipeline.ReasonGenerationFailed, pipeline.ReasonInvalidStructure, pipeline.ReasonImageFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
