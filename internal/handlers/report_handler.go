package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vmtorres/payables-api/internal/repository"
	"github.com/vmtorres/payables-api/internal/services"
)

type ReportHandler struct {
	reportService *services.ReportService
	exportService *services.ExportService
}

func NewReportHandler(reportService *services.ReportService, exportService *services.ExportService) *ReportHandler {
	return &ReportHandler{reportService: reportService, exportService: exportService}
}

// @Summary Payables Summary
// @Description Aggregate portfolio position: counts and totals
// @Tags Reports
// @Produce json
// @Success 200 {object} models.PayablesSummary
// @Security BearerAuth
// @Router /reports/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	summary, err := h.reportService.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Payables CSV
// @Description Download the filtered portfolio as CSV
// @Tags Reports
// @Produce text/csv
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /reports/payables_csv [get]
func (h *ReportHandler) PayablesCSV(c *gin.Context) {
	query := listQueryFromContext(c)
	buf, err := h.reportService.GeneratePayablesCSV(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	filename := "contas_a_pagar_" + time.Now().Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// @Summary Payables XLSX
// @Description Download the filtered portfolio as a spreadsheet
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /reports/payables_xlsx [get]
func (h *ReportHandler) PayablesXLSX(c *gin.Context) {
	query := listQueryFromContext(c)
	data, filename, err := h.exportService.ExportPayablesXLSX(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// @Summary Overdue CSV
// @Description Download obligations past their due date as CSV
// @Tags Reports
// @Produce text/csv
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /reports/overdue_csv [get]
func (h *ReportHandler) OverdueCSV(c *gin.Context) {
	buf, err := h.reportService.GenerateOverdueCSV(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	filename := "atrasados_" + time.Now().Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func listQueryFromContext(c *gin.Context) *repository.ListQuery {
	query := repository.NewListQuery()
	query.Filters["status"] = c.Query("status")
	query.Filters["origin_type"] = c.Query("origin_type")
	query.Filters["creditor"] = c.Query("creditor")
	query.Filters["start_date"] = c.Query("start_date")
	query.Filters["end_date"] = c.Query("end_date")
	return query
}
