package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stdin/venezuelawatch-sub000/internal/trending/application"
	"github.com/stdin/venezuelawatch-sub000/internal/trending/domain"
)

const defaultRankLimit = 20

type TrendingHandler struct {
	trending *application.TrendingService
}

func NewTrendingHandler(trending *application.TrendingService) *TrendingHandler {
	return &TrendingHandler{trending: trending}
}

func (h *TrendingHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1")
	{
		v1.GET("/trending/:metric", h.RankTop)
	}
}

func (h *TrendingHandler) RankTop(c *gin.Context) {
	metric, err := domain.ParseMetric(c.Param("metric"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := defaultRankLimit
	if s := c.Query("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = l
		}
	}

	if c.Query("source") == "snapshot" {
		entries, err := h.trending.TopSnapshot(c.Request.Context(), metric, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"metric": metric, "source": "snapshot", "entries": entries})
		return
	}

	asOf := time.Now()
	if s := c.Query("as_of"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid as_of timestamp, want RFC3339"})
			return
		}
		asOf = t
	}

	entries := h.trending.RankTop(metric, limit, asOf)
	c.JSON(http.StatusOK, gin.H{
		"metric":  metric,
		"as_of":   asOf,
		"entries": entries,
	})
}
