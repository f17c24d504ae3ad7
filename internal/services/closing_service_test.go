package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmtorres/payables-api/internal/models"
	"github.com/vmtorres/payables-api/internal/repository"
)

func newTestClosing(t *testing.T) (*ClosingService, *LedgerService, *repository.Repositories) {
	t.Helper()
	repos := repository.NewRepositories(newTestDB(t))
	ledger := NewLedgerService(repos.Obligation, repos.Event, repos.Closing, nil, nil)
	closing := NewClosingService(repos.Obligation, repos.Event, repos.Closing, nil, nil, nil)
	return closing, ledger, repos
}

func originateOn(t *testing.T, svc *LedgerService, face string, effective time.Time) *models.Obligation {
	t.Helper()
	obligation, err := svc.Originate(context.Background(), OriginationInput{
		Creditor:         "Fornecedor Beta",
		OriginType:       models.OriginTypeFinancing,
		InstallmentNo:    1,
		InstallmentCount: 1,
		DueDate:          effective.AddDate(0, 1, 0),
		FaceValue:        dec(face),
		EffectiveDate:    effective,
	})
	require.NoError(t, err)
	return obligation
}

func TestSequentialClosing(t *testing.T) {
	closingSvc, ledgerSvc, _ := newTestClosing(t)
	ctx := context.Background()

	dayOne := daysAgo(2)
	dayTwo := daysAgo(1)

	obligation := originateOn(t, ledgerSvc, "1000.00", dayOne)
	_, err := ledgerSvc.RegisterPayment(ctx, PaymentInput{
		ObligationID:  obligation.ID,
		Amount:        dec("400.00"),
		EffectiveDate: dayTwo,
	})
	require.NoError(t, err)

	// The later day cannot close while the earlier one is open
	_, err = closingSvc.Close(ctx, dayTwo, "maria", "", "")
	assert.ErrorIs(t, err, ErrPriorDatesOpen)

	_, err = closingSvc.Close(ctx, dayOne, "maria", "", "")
	require.NoError(t, err)

	_, err = closingSvc.Close(ctx, dayTwo, "maria", "", "")
	require.NoError(t, err)

	// A closed date is frozen for ledger mutations
	_, err = ledgerSvc.RegisterPayment(ctx, PaymentInput{
		ObligationID:  obligation.ID,
		Amount:        dec("100.00"),
		EffectiveDate: dayTwo,
	})
	assert.ErrorIs(t, err, ErrDateClosed)
}

func TestCloseRejectsFutureDate(t *testing.T) {
	closingSvc, _, _ := newTestClosing(t)

	tomorrow := models.DateOnly(time.Now().AddDate(0, 0, 1))
	_, err := closingSvc.Close(context.Background(), tomorrow, "maria", "", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCloseAlreadyClosedRejected(t *testing.T) {
	closingSvc, ledgerSvc, _ := newTestClosing(t)
	ctx := context.Background()

	day := daysAgo(1)
	originateOn(t, ledgerSvc, "500.00", day)

	_, err := closingSvc.Close(ctx, day, "maria", "", "")
	require.NoError(t, err)

	_, err = closingSvc.Close(ctx, day, "maria", "", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReopenReverseOrder(t *testing.T) {
	closingSvc, ledgerSvc, _ := newTestClosing(t)
	ctx := context.Background()

	dayOne := daysAgo(2)
	dayTwo := daysAgo(1)

	obligation := originateOn(t, ledgerSvc, "1000.00", dayOne)
	_, err := ledgerSvc.RegisterPayment(ctx, PaymentInput{
		ObligationID:  obligation.ID,
		Amount:        dec("250.00"),
		EffectiveDate: dayTwo,
	})
	require.NoError(t, err)

	_, err = closingSvc.Close(ctx, dayOne, "maria", "", "")
	require.NoError(t, err)
	_, err = closingSvc.Close(ctx, dayTwo, "maria", "", "")
	require.NoError(t, err)

	// Only the most recent closed date may reopen
	_, err = closingSvc.Reopen(ctx, dayOne, "maria", "", "")
	assert.ErrorIs(t, err, ErrLaterDatesClosed)

	reopened, err := closingSvc.Reopen(ctx, dayTwo, "maria", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.ClosingStatusOpen, reopened.Status)
	assert.Equal(t, "maria", reopened.ReopenedBy)

	// The reopened day accepts events again
	_, err = ledgerSvc.RegisterPayment(ctx, PaymentInput{
		ObligationID:  obligation.ID,
		Amount:        dec("100.00"),
		EffectiveDate: dayTwo,
	})
	assert.NoError(t, err)

	// And can close again afterwards
	_, err = closingSvc.Close(ctx, dayTwo, "maria", "", "")
	assert.NoError(t, err)
}

func TestReopenUnknownDate(t *testing.T) {
	closingSvc, _, _ := newTestClosing(t)

	_, err := closingSvc.Reopen(context.Background(), daysAgo(3), "maria", "", "")
	assert.ErrorIs(t, err, ErrClosingNotFound)
}

func TestCloseSnapshotTotals(t *testing.T) {
	closingSvc, ledgerSvc, _ := newTestClosing(t)
	ctx := context.Background()

	day := daysAgo(1)
	obligation := originateOn(t, ledgerSvc, "1000.00", day)
	_, err := ledgerSvc.RegisterPayment(ctx, PaymentInput{
		ObligationID:  obligation.ID,
		Amount:        dec("300.00"),
		EffectiveDate: day,
		Breakdown:     PaymentBreakdown{Interest: dec("30.00")},
	})
	require.NoError(t, err)

	closing, err := closingSvc.Close(ctx, day, "maria", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.ClosingStatusClosed, closing.Status)
	assert.Equal(t, "maria", closing.ClosedBy)

	var snapshot models.ClosingSnapshot
	require.NoError(t, json.Unmarshal([]byte(closing.Snapshot), &snapshot))
	// origination + payment + interest sub-event
	assert.Equal(t, 3, snapshot.EventCount)
	assert.Equal(t, "300.00", snapshot.PaidTotal)
	assert.Equal(t, "30.00", snapshot.InterestPaid)
	// outstanding = 1000 - (300 - 30) = 730
	assert.Equal(t, "730.00", snapshot.OutstandingTotal)
	assert.Equal(t, 1, snapshot.OpenObligations)
}

func TestCanWrite(t *testing.T) {
	closingSvc, ledgerSvc, _ := newTestClosing(t)
	ctx := context.Background()

	day := daysAgo(1)
	originateOn(t, ledgerSvc, "100.00", day)

	ok, err := closingSvc.CanWrite(ctx, day)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = closingSvc.Close(ctx, day, "maria", "", "")
	require.NoError(t, err)

	ok, err = closingSvc.CanWrite(ctx, day)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = closingSvc.CanWrite(ctx, models.DateOnly(time.Now()))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPendingClosure(t *testing.T) {
	closingSvc, ledgerSvc, _ := newTestClosing(t)
	ctx := context.Background()

	pending, err := closingSvc.PendingClosure(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)

	day := daysAgo(1)
	originateOn(t, ledgerSvc, "100.00", day)

	pending, err = closingSvc.PendingClosure(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.True(t, pending.Equal(day))

	_, err = closingSvc.Close(ctx, day, "maria", "", "")
	require.NoError(t, err)

	pending, err = closingSvc.PendingClosure(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)
}
