package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vmtorres/payables-api/internal/middleware"
	"github.com/vmtorres/payables-api/internal/repository"
	"github.com/vmtorres/payables-api/internal/services"
)

type ObligationHandler struct {
	ledgerService   *services.LedgerService
	scheduleService *services.ScheduleService
	exportService   *services.ExportService
}

func NewObligationHandler(
	ledgerService *services.LedgerService,
	scheduleService *services.ScheduleService,
	exportService *services.ExportService,
) *ObligationHandler {
	return &ObligationHandler{
		ledgerService:   ledgerService,
		scheduleService: scheduleService,
		exportService:   exportService,
	}
}

// @Summary List Obligations
// @Description Get a paginated list of payable obligations
// @Tags Obligations
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param status query string false "Filter by status"
// @Param creditor query string false "Filter by creditor"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /obligations [get]
func (h *ObligationHandler) Index(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	query.Filters["status"] = c.Query("status")
	query.Filters["origin_type"] = c.Query("origin_type")
	query.Filters["creditor"] = c.Query("creditor")
	query.Filters["start_date"] = c.Query("start_date")
	query.Filters["end_date"] = c.Query("end_date")

	// Parse sort parameter (format: field-direction)
	if sort := c.Query("sort"); sort != "" {
		parts := strings.Split(sort, "-")
		query.SortBy = parts[0]
		if len(parts) > 1 {
			query.SortDir = parts[1]
		}
	}

	obligations, total, err := h.ledgerService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	var responses []interface{}
	for i := range obligations {
		responses = append(responses, obligations[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"obligations": responses,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

// @Summary Get Obligation
// @Description Get an obligation with derived balance columns
// @Tags Obligations
// @Produce json
// @Param obligation_id path string true "Obligation ID"
// @Success 200 {object} models.ObligationResponse
// @Security BearerAuth
// @Router /obligations/{obligation_id} [get]
func (h *ObligationHandler) Show(c *gin.Context) {
	obligation, err := h.ledgerService.FindObligation(c.Request.Context(), c.Param("obligation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"obligation": obligation.ToResponse()})
}

// @Summary Obligation Events
// @Description Get the full ledger event history of an obligation
// @Tags Obligations
// @Produce json
// @Param obligation_id path string true "Obligation ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /obligations/{obligation_id}/events [get]
func (h *ObligationHandler) Events(c *gin.Context) {
	events, err := h.ledgerService.EventsFor(c.Request.Context(), c.Param("obligation_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var responses []interface{}
	for i := range events {
		responses = append(responses, events[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"events": responses})
}

// CreateObligationRequest is the request body for originating an obligation
type CreateObligationRequest struct {
	Creditor         string          `json:"creditor"`
	OriginType       string          `json:"origin_type"`
	InstallmentNo    int             `json:"installment_no"`
	InstallmentCount int             `json:"installment_count"`
	DueDate          string          `json:"due_date"`
	FaceValue        decimal.Decimal `json:"face_value"`
	EffectiveDate    string          `json:"effective_date"`
	IdempotencyKey   string          `json:"idempotency_key"`
}

// @Summary Originate Obligation
// @Description Create a payable obligation and its origination event
// @Tags Obligations
// @Accept json
// @Produce json
// @Param request body CreateObligationRequest true "Obligation"
// @Success 201 {object} models.ObligationResponse
// @Security BearerAuth
// @Router /obligations [post]
func (h *ObligationHandler) Create(c *gin.Context) {
	var req CreateObligationRequest
	if err := BindNestedOrFlat(c, "obligation", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "corpo da requisição inválido"})
		return
	}
	if req.Creditor == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "credor é obrigatório"})
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data de vencimento inválida"})
		return
	}
	effective, err := parseOptionalDate(req.EffectiveDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data do lançamento inválida"})
		return
	}

	if req.InstallmentNo == 0 && req.InstallmentCount == 0 {
		req.InstallmentNo, req.InstallmentCount = 1, 1
	}

	obligation, err := h.ledgerService.Originate(c.Request.Context(), services.OriginationInput{
		Creditor:         req.Creditor,
		OriginType:       req.OriginType,
		InstallmentNo:    req.InstallmentNo,
		InstallmentCount: req.InstallmentCount,
		DueDate:          dueDate,
		FaceValue:        req.FaceValue,
		EffectiveDate:    effective,
		Actor:            middleware.GetActor(c),
		IdempotencyKey:   req.IdempotencyKey,
		IP:               c.ClientIP(),
		UserAgent:        c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"obligation": obligation.ToResponse()})
}

// CreateScheduleRequest is the request body for originating an installment run
type CreateScheduleRequest struct {
	Creditor         string          `json:"creditor"`
	OriginType       string          `json:"origin_type"`
	TotalValue       decimal.Decimal `json:"total_value"`
	InstallmentCount int             `json:"installment_count"`
	FirstDueDate     string          `json:"first_due_date"`
	EffectiveDate    string          `json:"effective_date"`
	IdempotencyKey   string          `json:"idempotency_key"`
}

// @Summary Originate Schedule
// @Description Split a total into monthly installments, one obligation each
// @Tags Obligations
// @Accept json
// @Produce json
// @Param request body CreateScheduleRequest true "Schedule"
// @Success 201 {object} map[string]interface{}
// @Security BearerAuth
// @Router /obligations/schedule [post]
func (h *ObligationHandler) CreateSchedule(c *gin.Context) {
	var req CreateScheduleRequest
	if err := BindNestedOrFlat(c, "schedule", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "corpo da requisição inválido"})
		return
	}
	firstDue, err := parseDate(req.FirstDueDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data do primeiro vencimento inválida"})
		return
	}
	effective, err := parseOptionalDate(req.EffectiveDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data do lançamento inválida"})
		return
	}

	obligations, err := h.scheduleService.OriginateSchedule(c.Request.Context(), services.ScheduleInput{
		Creditor:         req.Creditor,
		OriginType:       req.OriginType,
		TotalValue:       req.TotalValue,
		InstallmentCount: req.InstallmentCount,
		FirstDueDate:     firstDue,
		EffectiveDate:    effective,
		Actor:            middleware.GetActor(c),
		IdempotencyKey:   req.IdempotencyKey,
		IP:               c.ClientIP(),
		UserAgent:        c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	var responses []interface{}
	for _, o := range obligations {
		responses = append(responses, o.ToResponse())
	}
	c.JSON(http.StatusCreated, gin.H{"obligations": responses})
}

// PaymentRequest is the request body for registering a payment
type PaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	EffectiveDate  string          `json:"effective_date"`
	Interest       decimal.Decimal `json:"interest"`
	Penalty        decimal.Decimal `json:"penalty"`
	Discount       decimal.Decimal `json:"discount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// @Summary Register Payment
// @Description Apply a cash payment with an optional interest/penalty/discount breakdown
// @Tags Obligations
// @Accept json
// @Produce json
// @Param obligation_id path string true "Obligation ID"
// @Param request body PaymentRequest true "Payment"
// @Success 201 {object} models.LedgerEventResponse
// @Security BearerAuth
// @Router /obligations/{obligation_id}/payments [post]
func (h *ObligationHandler) Pay(c *gin.Context) {
	var req PaymentRequest
	if err := BindNestedOrFlat(c, "payment", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "corpo da requisição inválido"})
		return
	}
	effective, err := parseOptionalDate(req.EffectiveDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data do lançamento inválida"})
		return
	}

	event, err := h.ledgerService.RegisterPayment(c.Request.Context(), services.PaymentInput{
		ObligationID:  c.Param("obligation_id"),
		Amount:        req.Amount,
		EffectiveDate: effective,
		Breakdown: services.PaymentBreakdown{
			Interest: req.Interest,
			Penalty:  req.Penalty,
			Discount: req.Discount,
		},
		Actor:          middleware.GetActor(c),
		IdempotencyKey: req.IdempotencyKey,
		IP:             c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": event.ToResponse(), "message": "Pagamento registrado"})
}

// AdjustmentRequest is the request body for a standalone adjustment
type AdjustmentRequest struct {
	Kind           string          `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	EffectiveDate  string          `json:"effective_date"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// @Summary Adjust Obligation
// @Description Apply an interest, penalty or discount adjustment without cash movement
// @Tags Obligations
// @Accept json
// @Produce json
// @Param obligation_id path string true "Obligation ID"
// @Param request body AdjustmentRequest true "Adjustment"
// @Success 201 {object} models.LedgerEventResponse
// @Security BearerAuth
// @Router /obligations/{obligation_id}/adjustments [post]
func (h *ObligationHandler) Adjust(c *gin.Context) {
	var req AdjustmentRequest
	if err := BindNestedOrFlat(c, "adjustment", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "corpo da requisição inválido"})
		return
	}
	effective, err := parseOptionalDate(req.EffectiveDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data do lançamento inválida"})
		return
	}

	event, err := h.ledgerService.Adjust(c.Request.Context(), services.AdjustmentInput{
		ObligationID:   c.Param("obligation_id"),
		Kind:           req.Kind,
		Amount:         req.Amount,
		EffectiveDate:  effective,
		Actor:          middleware.GetActor(c),
		IdempotencyKey: req.IdempotencyKey,
		IP:             c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": event.ToResponse(), "message": "Ajuste aplicado"})
}

// CancelRequest is the request body for cancelling an obligation
type CancelRequest struct {
	EffectiveDate  string `json:"effective_date"`
	IdempotencyKey string `json:"idempotency_key"`
}

// @Summary Cancel Obligation
// @Description Cancel an obligation while outstanding is positive
// @Tags Obligations
// @Accept json
// @Produce json
// @Param obligation_id path string true "Obligation ID"
// @Success 200 {object} models.LedgerEventResponse
// @Security BearerAuth
// @Router /obligations/{obligation_id}/cancel [post]
func (h *ObligationHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	c.ShouldBindJSON(&req)

	effective, err := parseOptionalDate(req.EffectiveDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "data do lançamento inválida"})
		return
	}

	event, err := h.ledgerService.Cancel(c.Request.Context(),
		c.Param("obligation_id"),
		effective,
		middleware.GetActor(c),
		req.IdempotencyKey,
		c.ClientIP(),
		c.Request.UserAgent(),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event.ToResponse(), "message": "Obrigação cancelada"})
}

// ReverseRequest is the request body for reversing a payment
type ReverseRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// @Summary Reverse Payment
// @Description Append compensating events undoing a payment and its breakdown
// @Tags Obligations
// @Accept json
// @Produce json
// @Param event_id path string true "Payment Event ID"
// @Success 200 {object} models.LedgerEventResponse
// @Security BearerAuth
// @Router /events/{event_id}/reverse [post]
func (h *ObligationHandler) Reverse(c *gin.Context) {
	var req ReverseRequest
	c.ShouldBindJSON(&req)

	event, err := h.ledgerService.ReversePayment(c.Request.Context(),
		c.Param("event_id"),
		middleware.GetActor(c),
		req.IdempotencyKey,
		c.ClientIP(),
		c.Request.UserAgent(),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event.ToResponse(), "message": "Pagamento estornado"})
}

// @Summary Verify Obligation Integrity
// @Description Check that the accumulators agree with replaying the event stream
// @Tags Obligations
// @Produce json
// @Param obligation_id path string true "Obligation ID"
// @Success 200 {object} map[string]bool
// @Security BearerAuth
// @Router /obligations/{obligation_id}/verify [get]
func (h *ObligationHandler) Verify(c *gin.Context) {
	consistent, err := h.ledgerService.VerifyIntegrity(c.Request.Context(), c.Param("obligation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consistent": consistent})
}

// @Summary Obligation Statement PDF
// @Description Download the obligation's event history as a PDF
// @Tags Obligations
// @Produce application/pdf
// @Param obligation_id path string true "Obligation ID"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /obligations/{obligation_id}/statement_pdf [get]
func (h *ObligationHandler) StatementPDF(c *gin.Context) {
	data, filename, err := h.exportService.ExportStatementPDF(c.Request.Context(), c.Param("obligation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/pdf", data)
}

// parseDate parses a required yyyy-mm-dd value
func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

// parseOptionalDate parses a yyyy-mm-dd value, zero when empty
func parseOptionalDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
