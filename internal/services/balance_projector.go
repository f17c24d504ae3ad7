package services

import (
	"github.com/shopspring/decimal"
	"github.com/vmtorres/payables-api/internal/models"
)

// Projection is the derived balance of an obligation. It is always
// recomputed from state, never stored as its own mutable column.
//
//	principal_covered = paid − interest_paid − penalty_paid + discount_applied
//	outstanding       = face_value − principal_covered
type Projection struct {
	PrincipalCovered decimal.Decimal `json:"principal_covered"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	Status           string          `json:"status"`
}

// Project derives the balance from the obligation's accumulator fields.
// It validates rather than clamps: negative accumulators or a negative
// outstanding are reported as errors.
func Project(o *models.Obligation) (Projection, error) {
	if o.FaceValue.IsNegative() || o.PaidTotal.IsNegative() || o.InterestPaid.IsNegative() ||
		o.PenaltyPaid.IsNegative() || o.DiscountApplied.IsNegative() {
		return Projection{}, ErrNegativeAmount
	}

	principal := o.PaidTotal.Sub(o.InterestPaid).Sub(o.PenaltyPaid).Add(o.DiscountApplied)
	outstanding := o.FaceValue.Sub(principal)
	if outstanding.IsNegative() {
		return Projection{}, ErrOutstandingBelowZero
	}

	return Projection{
		PrincipalCovered: principal,
		Outstanding:      outstanding,
		Status:           deriveStatus(o.Status, principal, outstanding),
	}, nil
}

// ProjectEvents derives the balance by folding the obligation's full
// event sequence in creation order. Used for audit and repair; the test
// suite asserts it always agrees with Project on the accumulators.
func ProjectEvents(events []models.LedgerEvent) (Projection, error) {
	folded, err := FoldEvents(events)
	if err != nil {
		return Projection{}, err
	}
	return Project(folded)
}

// FoldEvents replays an event sequence into a fresh obligation snapshot.
// Reversal events subtract the amount of the event they compensate.
func FoldEvents(events []models.LedgerEvent) (*models.Obligation, error) {
	o := &models.Obligation{
		FaceValue:       decimal.Zero,
		PaidTotal:       decimal.Zero,
		InterestPaid:    decimal.Zero,
		PenaltyPaid:     decimal.Zero,
		DiscountApplied: decimal.Zero,
		Status:          models.ObligationStatusOpen,
	}

	byID := make(map[string]*models.LedgerEvent, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}

	for i := range events {
		e := &events[i]
		if e.Amount.IsNegative() {
			return nil, ErrNegativeAmount
		}

		kind := e.Kind
		sign := decimal.NewFromInt(1)
		if e.Kind == models.EventKindReversal {
			if e.ReversesEventID == nil {
				return nil, ErrEventNotFound
			}
			orig, ok := byID[*e.ReversesEventID]
			if !ok {
				return nil, ErrEventNotFound
			}
			kind = orig.Kind
			sign = decimal.NewFromInt(-1)
		}

		amount := e.Amount.Mul(sign)
		switch kind {
		case models.EventKindOrigination:
			o.FaceValue = o.FaceValue.Add(amount)
			o.ID = e.ObligationID
		case models.EventKindPayment:
			o.PaidTotal = o.PaidTotal.Add(amount)
		case models.EventKindInterestAdjustment:
			o.InterestPaid = o.InterestPaid.Add(amount)
		case models.EventKindPenaltyAdjustment:
			o.PenaltyPaid = o.PenaltyPaid.Add(amount)
		case models.EventKindDiscountAdjustment:
			o.DiscountApplied = o.DiscountApplied.Add(amount)
		case models.EventKindCancellation:
			o.Status = models.ObligationStatusCancelled
		}
	}

	return o, nil
}

// deriveStatus maps a projection onto the status lifecycle. Cancelled is
// terminal and never recomputed from balances.
func deriveStatus(current string, principal, outstanding decimal.Decimal) string {
	if current == models.ObligationStatusCancelled {
		return models.ObligationStatusCancelled
	}
	switch {
	case outstanding.IsZero():
		return models.ObligationStatusSettled
	case principal.IsPositive():
		return models.ObligationStatusPartiallyPaid
	default:
		return models.ObligationStatusOpen
	}
}
