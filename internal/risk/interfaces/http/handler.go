package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stdin/venezuelawatch-sub000/internal/risk/application"
	"github.com/stdin/venezuelawatch-sub000/internal/risk/domain"
)

type RiskHandler struct {
	risk *application.RiskService
}

func NewRiskHandler(risk *application.RiskService) *RiskHandler {
	return &RiskHandler{risk: risk}
}

func (h *RiskHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1")
	{
		v1.GET("/assessments/:event_id", h.GetAssessment)
		v1.POST("/assessments/:event_id/recompute", h.Recompute)
	}
}

func (h *RiskHandler) GetAssessment(c *gin.Context) {
	assessment, err := h.risk.GetAssessment(c.Request.Context(), c.Param("event_id"))
	if errors.Is(err, domain.ErrAssessmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "assessment not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (h *RiskHandler) Recompute(c *gin.Context) {
	assessment, err := h.risk.Recompute(c.Request.Context(), c.Param("event_id"))
	if errors.Is(err, domain.ErrAssessmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "assessment not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assessment)
}
