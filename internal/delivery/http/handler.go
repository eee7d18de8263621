package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kushscan/kushscan/internal/domain"
	"github.com/kushscan/kushscan/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	insightService *usecase.InsightService
	coaService     *usecase.COAService
}

// NewHandler creates a new HTTP handler
func NewHandler(insightService *usecase.InsightService, coaService *usecase.COAService) *Handler {
	return &Handler{
		insightService: insightService,
		coaService:     coaService,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "kushscan-backend",
		"version": "1.0.0",
	})
}

// GetInsight handles product insight requests
func (h *Handler) GetInsight(c *gin.Context) {
	if h.insightService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Insight service not configured"})
		return
	}

	var req domain.InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	response, err := h.insightService.GetInsight(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err, "Missing required fields: product name and installationId are required")
		return
	}

	c.JSON(http.StatusOK, response)
}

// AnalyzeCOA handles lab-report analysis requests
func (h *Handler) AnalyzeCOA(c *gin.Context) {
	if h.coaService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "COA service not configured"})
		return
	}

	var req domain.COARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.coaService.Analyze(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err, "Missing required fields: productName, installationId and exactly one of coaUrl or coaText are required")
		return
	}

	c.JSON(http.StatusOK, result)
}

// writeError maps pipeline errors to HTTP statuses. Every client-visible
// failure carries a human-readable message; the panel only distinguishes
// 429 from everything else. invalidMsg names the endpoint's required
// fields so COA validation failures are not described in insight terms.
func (h *Handler) writeError(c *gin.Context, err error, invalidMsg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": invalidMsg,
		})
	case errors.Is(err, domain.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "Daily limit reached - resets at midnight",
			"remaining": 0,
		})
	case errors.Is(err, domain.ErrBackendUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Generation backend not configured",
		})
	case errors.Is(err, domain.ErrMalformedOutput):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "The analysis service returned an unreadable response - please try again",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Something went wrong generating this insight - please try again",
		})
	}
}
