package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/vmtorres/payables-api/internal/models"
	"github.com/vmtorres/payables-api/internal/repository"
)

// originTypeLabels translate origin kinds for reports
var originTypeLabels = map[string]string{
	models.OriginTypePurchase:  "Compra",
	models.OriginTypeLoan:      "Empréstimo",
	models.OriginTypeFinancing: "Financiamento",
	models.OriginTypeRecurring: "Recorrente",
}

// statusLabels translate obligation statuses for reports
var statusLabels = map[string]string{
	models.ObligationStatusOpen:          "Em aberto",
	models.ObligationStatusPartiallyPaid: "Parcial",
	models.ObligationStatusSettled:       "Quitado",
	models.ObligationStatusCancelled:     "Cancelado",
}

type ReportService struct {
	obligationRepo repository.ObligationRepository
	eventRepo      repository.EventRepository
}

func NewReportService(
	obligationRepo repository.ObligationRepository,
	eventRepo repository.EventRepository,
) *ReportService {
	return &ReportService{
		obligationRepo: obligationRepo,
		eventRepo:      eventRepo,
	}
}

// Summary aggregates the full portfolio into position totals. Derived
// columns use the projector so they always match the event stream.
func (s *ReportService) Summary(ctx context.Context) (*models.PayablesSummary, error) {
	query := repository.NewListQuery()
	query.PerPage = 0 // no pagination
	obligations, _, err := s.obligationRepo.List(ctx, query)
	if err != nil {
		return nil, err
	}

	summary := &models.PayablesSummary{
		GeneratedAt: time.Now(),
		TotalCount:  len(obligations),
	}
	for i := range obligations {
		o := &obligations[i]
		switch o.Status {
		case models.ObligationStatusSettled:
			summary.SettledCount++
		case models.ObligationStatusCancelled:
			summary.CancelledCount++
		default:
			summary.OpenCount++
			if o.IsOverdue() {
				summary.OverdueCount++
			}
		}
		if o.Status == models.ObligationStatusCancelled {
			continue
		}

		proj, err := Project(o)
		if err != nil {
			return nil, err
		}
		summary.FaceTotal = summary.FaceTotal.Add(o.FaceValue)
		summary.PaidTotal = summary.PaidTotal.Add(o.PaidTotal)
		summary.InterestTotal = summary.InterestTotal.Add(o.InterestPaid)
		summary.PenaltyTotal = summary.PenaltyTotal.Add(o.PenaltyPaid)
		summary.DiscountTotal = summary.DiscountTotal.Add(o.DiscountApplied)
		summary.OutstandingTotal = summary.OutstandingTotal.Add(proj.Outstanding)
	}

	return summary, nil
}

// GeneratePayablesCSV dumps the filtered portfolio with derived columns
func (s *ReportService) GeneratePayablesCSV(ctx context.Context, query *repository.ListQuery) (*bytes.Buffer, error) {
	if query == nil {
		query = repository.NewListQuery()
	}
	query.PerPage = 0
	obligations, _, err := s.obligationRepo.List(ctx, query)
	if err != nil {
		return nil, err
	}

	b := &bytes.Buffer{}
	w := csv.NewWriter(b)

	header := []string{
		"ID", "Credor", "Origem", "Parcela", "Vencimento",
		"Valor", "Pago", "Juros", "Multa", "Desconto",
		"Principal Coberto", "Saldo", "Situação", "Dias em Atraso",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i := range obligations {
		o := &obligations[i]
		resp := o.ToResponse()

		record := []string{
			o.ID,
			o.Creditor,
			labelOr(originTypeLabels, o.OriginType),
			fmt.Sprintf("%d/%d", o.InstallmentNo, o.InstallmentCount),
			o.DueDate.Format("2006-01-02"),
			resp.FaceValue.StringFixed(2),
			resp.PaidTotal.StringFixed(2),
			resp.InterestPaid.StringFixed(2),
			resp.PenaltyPaid.StringFixed(2),
			resp.DiscountApplied.StringFixed(2),
			resp.PrincipalCovered.StringFixed(2),
			resp.Outstanding.StringFixed(2),
			labelOr(statusLabels, o.Status),
			fmt.Sprintf("%d", resp.OverdueDays),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateOverdueCSV dumps every obligation past its due date
func (s *ReportService) GenerateOverdueCSV(ctx context.Context) (*bytes.Buffer, error) {
	overdue, err := s.obligationRepo.FindOverdue(ctx)
	if err != nil {
		return nil, err
	}

	b := &bytes.Buffer{}
	w := csv.NewWriter(b)

	header := []string{"ID", "Credor", "Parcela", "Vencimento", "Saldo", "Dias em Atraso"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i := range overdue {
		o := &overdue[i]
		resp := o.ToResponse()
		record := []string{
			o.ID,
			o.Creditor,
			fmt.Sprintf("%d/%d", o.InstallmentNo, o.InstallmentCount),
			o.DueDate.Format("2006-01-02"),
			resp.Outstanding.StringFixed(2),
			fmt.Sprintf("%d", resp.OverdueDays),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return b, nil
}

// Overdue returns obligations past their due date
func (s *ReportService) Overdue(ctx context.Context) ([]models.Obligation, error) {
	return s.obligationRepo.FindOverdue(ctx)
}

func labelOr(labels map[string]string, key string) string {
	if label, ok := labels[key]; ok {
		return label
	}
	return key
}
