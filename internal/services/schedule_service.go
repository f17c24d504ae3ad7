package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vmtorres/payables-api/internal/models"
)

// ScheduleInput describes a multi-installment origination
type ScheduleInput struct {
	Creditor         string          `json:"creditor"`
	OriginType       string          `json:"origin_type"`
	TotalValue       decimal.Decimal `json:"total_value"`
	InstallmentCount int             `json:"installment_count"`
	FirstDueDate     time.Time       `json:"first_due_date"`
	EffectiveDate    time.Time       `json:"effective_date"`
	Actor            string          `json:"-"`
	IdempotencyKey   string          `json:"idempotency_key"`
	IP               string          `json:"-"`
	UserAgent        string          `json:"-"`
}

// ScheduleService originates a run of monthly installments from a total
type ScheduleService struct {
	ledger *LedgerService
}

// NewScheduleService creates a new schedule service
func NewScheduleService(ledger *LedgerService) *ScheduleService {
	return &ScheduleService{ledger: ledger}
}

// OriginateSchedule splits a total into monthly installments and
// originates one obligation per installment. Installments get a
// cent-floored base value; the first one picks up the rounding
// remainder so the run sums exactly to the total.
//
// Each installment commits in its own transaction. A mid-run failure
// returns the installments created so far; retrying with the same
// idempotency key replays the committed ones and resumes from the
// first missing installment, since every installment derives its key
// from the caller's ("<key>/<n>").
func (s *ScheduleService) OriginateSchedule(ctx context.Context, in ScheduleInput) ([]*models.Obligation, error) {
	if !in.TotalValue.IsPositive() {
		return nil, ErrNegativeAmount
	}
	if in.InstallmentCount <= 0 {
		return nil, ErrInvalidSchedule
	}

	n := int64(in.InstallmentCount)
	base := in.TotalValue.Div(decimal.NewFromInt(n)).RoundDown(2)
	first := in.TotalValue.Sub(base.Mul(decimal.NewFromInt(n - 1)))
	if !first.IsPositive() {
		return nil, ErrInvalidSchedule
	}

	obligations := make([]*models.Obligation, 0, in.InstallmentCount)
	for i := 0; i < in.InstallmentCount; i++ {
		amount := base
		if i == 0 {
			amount = first
		}

		key := in.IdempotencyKey
		if key != "" {
			key = fmt.Sprintf("%s/%d", in.IdempotencyKey, i+1)
		}

		obligation, err := s.ledger.Originate(ctx, OriginationInput{
			Creditor:         in.Creditor,
			OriginType:       in.OriginType,
			InstallmentNo:    i + 1,
			InstallmentCount: in.InstallmentCount,
			DueDate:          in.FirstDueDate.AddDate(0, i, 0),
			FaceValue:        amount,
			EffectiveDate:    in.EffectiveDate,
			Actor:            in.Actor,
			IdempotencyKey:   key,
			IP:               in.IP,
			UserAgent:        in.UserAgent,
		})
		if err != nil {
			return obligations, err
		}
		obligations = append(obligations, obligation)
	}

	return obligations, nil
}
