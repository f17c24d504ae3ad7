package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vmtorres/payables-api/internal/middleware"
	"github.com/vmtorres/payables-api/internal/services"
)

type ClosingHandler struct {
	closingService *services.ClosingService
}

func NewClosingHandler(closingService *services.ClosingService) *ClosingHandler {
	return &ClosingHandler{closingService: closingService}
}

// @Summary List Closings
// @Description Get recent day closings, newest first
// @Tags Closings
// @Produce json
// @Param limit query int false "Max rows" default(30)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /closings [get]
func (h *ClosingHandler) Index(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	closings, err := h.closingService.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closings": closings})
}

// @Summary Get Closing
// @Description Get the closing row for a date, including its snapshot
// @Tags Closings
// @Produce json
// @Param date path string true "Date (yyyy-mm-dd)"
// @Success 200 {object} models.DayClosing
// @Security BearerAuth
// @Router /closings/{date} [get]
func (h *ClosingHandler) Show(c *gin.Context) {
	date, err := parseDate(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data inválida"})
		return
	}
	closing, err := h.closingService.FindByDate(c.Request.Context(), date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closing": closing})
}

// CloseRequest is the request body for closing a date
type CloseRequest struct {
	Date string `json:"date"`
}

// @Summary Close Date
// @Description Lock a date for further ledger mutations (admin)
// @Tags Closings
// @Accept json
// @Produce json
// @Param request body CloseRequest true "Date"
// @Success 200 {object} models.DayClosing
// @Security BearerAuth
// @Router /closings/close [post]
func (h *ClosingHandler) Close(c *gin.Context) {
	var req CloseRequest
	if err := BindNestedOrFlat(c, "closing", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "corpo da requisição inválido"})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data inválida"})
		return
	}

	closing, err := h.closingService.Close(c.Request.Context(), date,
		middleware.GetActor(c), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closing": closing, "message": "Dia fechado"})
}

// @Summary Reopen Date
// @Description Unlock the most recent closed date (admin)
// @Tags Closings
// @Accept json
// @Produce json
// @Param request body CloseRequest true "Date"
// @Success 200 {object} models.DayClosing
// @Security BearerAuth
// @Router /closings/reopen [post]
func (h *ClosingHandler) Reopen(c *gin.Context) {
	var req CloseRequest
	if err := BindNestedOrFlat(c, "closing", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "corpo da requisição inválido"})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data inválida"})
		return
	}

	closing, err := h.closingService.Reopen(c.Request.Context(), date,
		middleware.GetActor(c), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closing": closing, "message": "Dia reaberto"})
}

// @Summary Pending Closure
// @Description Get the most recent past date with movement still open
// @Tags Closings
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /closings/pending [get]
func (h *ClosingHandler) Pending(c *gin.Context) {
	pending, err := h.closingService.PendingClosure(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if pending == nil {
		c.JSON(http.StatusOK, gin.H{"pending": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending.Format("2006-01-02")})
}
