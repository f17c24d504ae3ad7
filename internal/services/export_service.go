package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/vmtorres/payables-api/internal/models"
	"github.com/vmtorres/payables-api/internal/repository"
	"github.com/vmtorres/payables-api/internal/storage"
)

type ExportService struct {
	obligationRepo repository.ObligationRepository
	eventRepo      repository.EventRepository
	storage        *storage.LocalStorage
}

func NewExportService(
	obligationRepo repository.ObligationRepository,
	eventRepo repository.EventRepository,
	store *storage.LocalStorage,
) *ExportService {
	return &ExportService{
		obligationRepo: obligationRepo,
		eventRepo:      eventRepo,
		storage:        store,
	}
}

// ExportPayablesXLSX renders the filtered portfolio as a spreadsheet
func (s *ExportService) ExportPayablesXLSX(ctx context.Context, query *repository.ListQuery) ([]byte, string, error) {
	if query == nil {
		query = repository.NewListQuery()
	}
	query.PerPage = 0
	obligations, _, err := s.obligationRepo.List(ctx, query)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Contas a Pagar"
	_ = f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	headers := []string{
		"ID", "Credor", "Origem", "Parcela", "Vencimento",
		"Valor", "Pago", "Juros", "Multa", "Desconto", "Saldo", "Situação",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for row, o := range obligations {
		resp := o.ToResponse()
		values := []interface{}{
			o.ID,
			o.Creditor,
			labelOr(originTypeLabels, o.OriginType),
			fmt.Sprintf("%d/%d", o.InstallmentNo, o.InstallmentCount),
			o.DueDate.Format("2006-01-02"),
			resp.FaceValue.InexactFloat64(),
			resp.PaidTotal.InexactFloat64(),
			resp.InterestPaid.InexactFloat64(),
			resp.PenaltyPaid.InexactFloat64(),
			resp.DiscountApplied.InexactFloat64(),
			resp.Outstanding.InexactFloat64(),
			labelOr(statusLabels, o.Status),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("contas_a_pagar_%s.xlsx", time.Now().Format("2006-01-02"))
	return buf.Bytes(), filename, nil
}

// ExportStatementPDF renders an obligation's event history as a PDF
func (s *ExportService) ExportStatementPDF(ctx context.Context, obligationID string) ([]byte, string, error) {
	obligation, err := s.obligationRepo.FindByID(ctx, obligationID)
	if err != nil {
		return nil, "", err
	}
	events, err := s.eventRepo.FindByObligationID(ctx, obligationID)
	if err != nil {
		return nil, "", err
	}
	resp := obligation.ToResponse()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Extrato da Obrigacao")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(60, 8, "Credor:")
	pdf.Cell(80, 8, obligation.Creditor)
	pdf.Ln(6)
	pdf.Cell(60, 8, "Parcela:")
	pdf.Cell(80, 8, fmt.Sprintf("%d de %d", obligation.InstallmentNo, obligation.InstallmentCount))
	pdf.Ln(6)
	pdf.Cell(60, 8, "Vencimento:")
	pdf.Cell(80, 8, obligation.DueDate.Format("2006-01-02"))
	pdf.Ln(6)
	pdf.Cell(60, 8, "Valor:")
	pdf.Cell(80, 8, resp.FaceValue.StringFixed(2))
	pdf.Ln(6)
	pdf.Cell(60, 8, "Saldo em aberto:")
	pdf.Cell(80, 8, resp.Outstanding.StringFixed(2))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 10, "Movimentos")
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.Cell(30, 7, "Data")
	pdf.Cell(45, 7, "Tipo")
	pdf.Cell(30, 7, "Valor")
	pdf.Cell(50, 7, "Autor")
	pdf.Ln(7)

	pdf.SetFont("Arial", "", 9)
	for i := range events {
		e := &events[i]
		pdf.Cell(30, 6, e.EffectiveDate.Format("2006-01-02"))
		pdf.Cell(45, 6, e.Kind)
		pdf.Cell(30, 6, e.Amount.StringFixed(2))
		pdf.Cell(50, 6, e.Actor)
		pdf.Ln(6)
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("extrato_%s.pdf", obligationID)
	return buf.Bytes(), filename, nil
}

// ArchiveClosing renders a closed day's snapshot as a spreadsheet and
// saves it to storage. Archiving the same date again overwrites the
// previous artifact.
func (s *ExportService) ArchiveClosing(ctx context.Context, closing *models.DayClosing) (string, error) {
	var snapshot models.ClosingSnapshot
	if err := json.Unmarshal([]byte(closing.Snapshot), &snapshot); err != nil {
		return "", fmt.Errorf("snapshot inválido para %s: %w", closing.Date.Format("2006-01-02"), err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Fechamento"
	_ = f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Fechamento do dia %s", snapshot.Date))
	_ = f.SetCellStyle(sheet, "A1", "A1", headerStyle)

	rows := [][2]interface{}{
		{"Eventos no dia", snapshot.EventCount},
		{"Total pago", snapshot.PaidTotal},
		{"Juros pagos", snapshot.InterestPaid},
		{"Multas pagas", snapshot.PenaltyPaid},
		{"Descontos aplicados", snapshot.DiscountApplied},
		{"Saldo em aberto (carteira)", snapshot.OutstandingTotal},
		{"Obrigações em aberto", snapshot.OpenObligations},
	}
	for i, row := range rows {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("fechamento_%s.xlsx", closing.Date.Format("2006-01-02"))
	return s.storage.Save(buf.Bytes(), filename, "closings")
}
