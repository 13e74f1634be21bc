package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stdin/venezuelawatch-sub000/internal/entity/application"
	"github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/utils"
)

type EntityHandler struct {
	resolver   *application.ResolverService
	recorder   *application.RecorderService
	reconciler *application.ReconcilerService
}

func NewEntityHandler(
	resolver *application.ResolverService,
	recorder *application.RecorderService,
	reconciler *application.ReconcilerService,
) *EntityHandler {
	return &EntityHandler{resolver: resolver, recorder: recorder, reconciler: reconciler}
}

func (h *EntityHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1")
	{
		v1.GET("/entities/:id", h.GetEntity)
		v1.GET("/entities/:id/mentions", h.ListMentions)
		v1.POST("/entities/resolve", h.Resolve)
		v1.POST("/entities/merge", h.Merge)
		v1.POST("/admin/reconcile", h.Reconcile)
	}
}

func (h *EntityHandler) GetEntity(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
		return
	}

	entity, err := h.resolver.GetEntity(c.Request.Context(), id)
	if errors.Is(err, domain.ErrEntityNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (h *EntityHandler) ListMentions(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
		return
	}

	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	pagination := utils.NewPagination(page, pageSize, 0)

	mentions, total, err := h.recorder.ListMentions(c.Request.Context(), id, from, to, pagination)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entity_id":  id,
		"mentions":   mentions,
		"pagination": utils.NewPagination(page, pageSize, total),
	})
}

type resolveRequest struct {
	RawName    string `json:"raw_name" binding:"required"`
	EntityType string `json:"entity_type" binding:"required"`
}

func (h *EntityHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entityType, err := domain.ParseEntityType(req.EntityType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resolution, err := h.resolver.Resolve(c.Request.Context(), req.RawName, entityType)
	if errors.Is(err, domain.ErrEmptyName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, domain.ErrNameKeyConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entity":  resolution.Entity,
		"score":   resolution.Score,
		"created": resolution.Created,
	})
}

type mergeRequest struct {
	WinnerID uint64 `json:"winner_id" binding:"required"`
	LoserID  uint64 `json:"loser_id" binding:"required"`
}

func (h *EntityHandler) Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.reconciler.MergeEntities(c.Request.Context(), req.WinnerID, req.LoserID)
	switch {
	case errors.Is(err, domain.ErrMergeSelf), errors.Is(err, domain.ErrAlreadyMerged), errors.Is(err, domain.ErrUnknownEntityType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrEntityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"winner_id": req.WinnerID, "loser_id": req.LoserID})
	}
}

func (h *EntityHandler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Reconcile(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	var from, to time.Time
	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return from, to, errors.New("invalid from timestamp, want RFC3339")
		}
		from = t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return from, to, errors.New("invalid to timestamp, want RFC3339")
		}
		to = t
	}
	return from, to, nil
}
