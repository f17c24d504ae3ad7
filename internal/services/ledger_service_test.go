package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmtorres/payables-api/internal/models"
)

func originate(t *testing.T, svc *LedgerService, face string) *models.Obligation {
	t.Helper()
	obligation, err := svc.Originate(context.Background(), OriginationInput{
		Creditor:         "Fornecedor Alfa",
		OriginType:       models.OriginTypePurchase,
		InstallmentNo:    1,
		InstallmentCount: 1,
		DueDate:          time.Now().AddDate(0, 1, 0),
		FaceValue:        dec(face),
	})
	require.NoError(t, err)
	return obligation
}

func TestOriginateValidation(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := svc.Originate(ctx, OriginationInput{
		Creditor: "X", OriginType: models.OriginTypeLoan,
		InstallmentNo: 1, InstallmentCount: 1,
		FaceValue: dec("0"),
	})
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = svc.Originate(ctx, OriginationInput{
		Creditor: "X", OriginType: models.OriginTypeLoan,
		InstallmentNo: 5, InstallmentCount: 3,
		FaceValue: dec("100"),
	})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = svc.Originate(ctx, OriginationInput{
		Creditor: "X", OriginType: "lottery",
		InstallmentNo: 1, InstallmentCount: 1,
		FaceValue: dec("100"),
	})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestOriginateCreatesOriginationEvent(t *testing.T) {
	svc, _ := newTestLedger(t)
	obligation := originate(t, svc, "750.00")

	events, err := svc.EventsFor(context.Background(), obligation.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventKindOrigination, events[0].Kind)
	assert.True(t, events[0].Amount.Equal(dec("750.00")))
	assert.Equal(t, models.ObligationStatusOpen, obligation.Status)
}

func TestPaymentLifecycle(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	_, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("600.00"),
	})
	require.NoError(t, err)

	reloaded, err := repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationStatusPartiallyPaid, reloaded.Status)

	_, err = svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("400.00"),
	})
	require.NoError(t, err)

	reloaded, err = repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationStatusSettled, reloaded.Status)
	proj, err := Project(reloaded)
	require.NoError(t, err)
	assert.True(t, proj.Outstanding.IsZero())

	// Settled obligations reject further cash, they are not cancelled
	_, err = svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("1.00"),
	})
	assert.ErrorIs(t, err, ErrOverPayment)
}

func TestOverPaymentLeavesStateUnchanged(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	_, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("600.00"),
	})
	require.NoError(t, err)

	before, err := repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	eventsBefore, err := repos.Event.FindByObligationID(ctx, obligation.ID)
	require.NoError(t, err)

	_, err = svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("500.00"),
	})
	assert.ErrorIs(t, err, ErrOverPayment)

	after, err := repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.True(t, before.PaidTotal.Equal(after.PaidTotal))
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.LockVersion, after.LockVersion)

	eventsAfter, err := repos.Event.FindByObligationID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.Len(t, eventsAfter, len(eventsBefore))
}

func TestSettledRejectsZeroPrincipalPayment(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "100.00")

	_, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("100.00"),
	})
	require.NoError(t, err)

	// Interest swallows the whole amount, so principal is zero and the
	// over-payment gate alone would let it through.
	_, err = svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("10.00"),
		Breakdown:    PaymentBreakdown{Interest: dec("10.00")},
	})
	assert.ErrorIs(t, err, ErrInvalidState)

	after, err := repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.True(t, after.PaidTotal.Equal(dec("100.00")))
	assert.True(t, after.InterestPaid.IsZero())
	assert.Equal(t, models.ObligationStatusSettled, after.Status)
}

func TestPaymentBreakdownCreatesSubEvents(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	// 500 cash: 40 interest, 10 penalty, 50 discount -> principal 500
	payment, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("500.00"),
		Breakdown: PaymentBreakdown{
			Interest: dec("40.00"),
			Penalty:  dec("10.00"),
			Discount: dec("50.00"),
		},
	})
	require.NoError(t, err)

	children, err := repos.Event.FindChildren(ctx, payment.ID)
	require.NoError(t, err)
	assert.Len(t, children, 3)
	for _, child := range children {
		assert.Equal(t, payment.ID, *child.ParentEventID)
	}

	reloaded, err := repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	proj, err := Project(reloaded)
	require.NoError(t, err)
	// principal = 500 - 40 - 10 + 50 = 500
	assert.True(t, proj.PrincipalCovered.Equal(dec("500.00")), "got %s", proj.PrincipalCovered)
	assert.True(t, proj.Outstanding.Equal(dec("500.00")))
}

func TestPaymentRejectsNegativeBreakdown(t *testing.T) {
	svc, _ := newTestLedger(t)
	obligation := originate(t, svc, "1000.00")

	_, err := svc.RegisterPayment(context.Background(), PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("100.00"),
		Breakdown:    PaymentBreakdown{Interest: dec("-5.00")},
	})
	assert.ErrorIs(t, err, ErrNegativeAmount)

	// Interest larger than the cash amount implies negative principal
	_, err = svc.RegisterPayment(context.Background(), PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("100.00"),
		Breakdown:    PaymentBreakdown{Interest: dec("150.00")},
	})
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestPaymentIdempotentReplay(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	first, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID:   obligation.ID,
		Amount:         dec("300.00"),
		IdempotencyKey: "pgto-2026-0001",
	})
	require.NoError(t, err)

	replay, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID:   obligation.ID,
		Amount:         dec("300.00"),
		IdempotencyKey: "pgto-2026-0001",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	reloaded, err := repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.PaidTotal.Equal(dec("300.00")), "replay must not double-apply, got %s", reloaded.PaidTotal)
}

func TestAdjustments(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	_, err := svc.Adjust(ctx, AdjustmentInput{
		ObligationID: obligation.ID,
		Kind:         "bonus",
		Amount:       dec("10.00"),
	})
	assert.ErrorIs(t, err, ErrInvalidAdjustment)

	_, err = svc.Adjust(ctx, AdjustmentInput{
		ObligationID: obligation.ID,
		Kind:         models.EventKindDiscountAdjustment,
		Amount:       dec("-10.00"),
	})
	assert.ErrorIs(t, err, ErrNegativeAmount)

	// A discount alone raises principal covered
	_, err = svc.Adjust(ctx, AdjustmentInput{
		ObligationID: obligation.ID,
		Kind:         models.EventKindDiscountAdjustment,
		Amount:       dec("200.00"),
	})
	require.NoError(t, err)

	reloaded, err := repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationStatusPartiallyPaid, reloaded.Status)
	proj, err := Project(reloaded)
	require.NoError(t, err)
	assert.True(t, proj.Outstanding.Equal(dec("800.00")))

	// A discount past the outstanding balance would drive it negative
	_, err = svc.Adjust(ctx, AdjustmentInput{
		ObligationID: obligation.ID,
		Kind:         models.EventKindDiscountAdjustment,
		Amount:       dec("900.00"),
	})
	assert.ErrorIs(t, err, ErrOutstandingBelowZero)
}

func TestCancel(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	event, err := svc.Cancel(ctx, obligation.ID, time.Time{}, "maria", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.EventKindCancellation, event.Kind)
	assert.True(t, event.Amount.Equal(dec("1000.00")))

	reloaded, err := repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationStatusCancelled, reloaded.Status)

	// Cancelled obligations accept no further events
	_, err = svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("100.00"),
	})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Cancel(ctx, obligation.ID, time.Time{}, "maria", "", "", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelSettledRejected(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "100.00")

	_, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("100.00"),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, obligation.ID, time.Time{}, "maria", "", "", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReversePayment(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	payment, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("1000.00"),
		Breakdown: PaymentBreakdown{
			Interest: dec("80.00"),
			Discount: dec("80.00"),
		},
	})
	require.NoError(t, err)

	reloaded, err := repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationStatusSettled, reloaded.Status)

	reversal, err := svc.ReversePayment(ctx, payment.ID, "maria", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.EventKindReversal, reversal.Kind)
	assert.Equal(t, payment.ID, *reversal.ReversesEventID)

	reloaded, err = repos.Obligation.FindByID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationStatusOpen, reloaded.Status)
	assert.True(t, reloaded.PaidTotal.IsZero())
	assert.True(t, reloaded.InterestPaid.IsZero())
	assert.True(t, reloaded.DiscountApplied.IsZero())

	// Fold and accumulators must still agree after compensation
	consistent, err := svc.VerifyIntegrity(ctx, obligation.ID)
	require.NoError(t, err)
	assert.True(t, consistent)

	// A payment can only be reversed once
	_, err = svc.ReversePayment(ctx, payment.ID, "maria", "", "", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReverseNonPaymentRejected(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	events, err := repos.Event.FindByObligationID(ctx, obligation.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = svc.ReversePayment(ctx, events[0].ID, "maria", "", "", "")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.ReversePayment(ctx, "missing-id", "maria", "", "", "")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestClosedDateBlocksMutations(t *testing.T) {
	svc, repos := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	yesterday := daysAgo(1)
	now := time.Now()
	closing := &models.DayClosing{
		Date:     yesterday,
		Status:   models.ClosingStatusClosed,
		ClosedAt: &now,
		ClosedBy: "maria",
	}
	require.NoError(t, repos.Closing.Create(ctx, closing))

	_, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID:  obligation.ID,
		Amount:        dec("100.00"),
		EffectiveDate: yesterday,
	})
	assert.ErrorIs(t, err, ErrDateClosed)

	_, err = svc.Adjust(ctx, AdjustmentInput{
		ObligationID:  obligation.ID,
		Kind:          models.EventKindDiscountAdjustment,
		Amount:        dec("10.00"),
		EffectiveDate: yesterday,
	})
	assert.ErrorIs(t, err, ErrDateClosed)

	// Dates after the frontier stay writable
	_, err = svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("100.00"),
	})
	assert.NoError(t, err)
}

func TestVerifyIntegrity(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	obligation := originate(t, svc, "1000.00")

	_, err := svc.RegisterPayment(ctx, PaymentInput{
		ObligationID: obligation.ID,
		Amount:       dec("250.00"),
		Breakdown:    PaymentBreakdown{Penalty: dec("25.00")},
	})
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, AdjustmentInput{
		ObligationID: obligation.ID,
		Kind:         models.EventKindDiscountAdjustment,
		Amount:       dec("75.00"),
	})
	require.NoError(t, err)

	consistent, err := svc.VerifyIntegrity(ctx, obligation.ID)
	require.NoError(t, err)
	assert.True(t, consistent)
}
