package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vmtorres/payables-api/internal/models"
	"github.com/vmtorres/payables-api/pkg/ids"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Obligation{},
		&models.LedgerEvent{},
		&models.DayClosing{},
	))

	return db
}

func seedObligation(t *testing.T, repo EventRepository, face string) *models.Obligation {
	t.Helper()
	amount, err := decimal.NewFromString(face)
	require.NoError(t, err)

	obligation := &models.Obligation{
		ID:               ids.New(),
		Creditor:         "Fornecedor Gama",
		OriginType:       models.OriginTypePurchase,
		InstallmentNo:    1,
		InstallmentCount: 1,
		DueDate:          models.DateOnly(time.Now()),
		FaceValue:        amount,
		Status:           models.ObligationStatusOpen,
	}
	event := &models.LedgerEvent{
		ID:             ids.New(),
		ObligationID:   obligation.ID,
		Kind:           models.EventKindOrigination,
		Amount:         amount,
		EffectiveDate:  models.DateOnly(time.Now()),
		Actor:          "maria",
		IdempotencyKey: ids.NewKey(),
	}
	require.NoError(t, repo.AppendOrigination(context.Background(), obligation, event, nil))
	return obligation
}

func paymentEvent(obligationID, key string, amount string) models.LedgerEvent {
	d, _ := decimal.NewFromString(amount)
	return models.LedgerEvent{
		ID:             ids.New(),
		ObligationID:   obligationID,
		Kind:           models.EventKindPayment,
		Amount:         d,
		EffectiveDate:  models.DateOnly(time.Now()),
		Actor:          "maria",
		IdempotencyKey: key,
	}
}

func TestAppendDuplicateIdempotencyKey(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))
	ctx := context.Background()
	obligation := seedObligation(t, repo, "1000.00")

	first := paymentEvent(obligation.ID, "chave-1", "100.00")
	obligation.PaidTotal = obligation.PaidTotal.Add(first.Amount)
	require.NoError(t, repo.Append(ctx, obligation, []models.LedgerEvent{first}, nil))

	second := paymentEvent(obligation.ID, "chave-1", "100.00")
	err := repo.Append(ctx, obligation, []models.LedgerEvent{second}, nil)
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	// The failed append must not have advanced the event stream
	events, err := repo.FindByObligationID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestAppendUnknownObligation(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))

	ghost := &models.Obligation{ID: ids.New()}
	event := paymentEvent(ghost.ID, ids.NewKey(), "50.00")
	err := repo.Append(context.Background(), ghost, []models.LedgerEvent{event}, nil)
	assert.ErrorIs(t, err, ErrObligationNotFound)
}

func TestAppendStaleLockVersion(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))
	ctx := context.Background()
	obligation := seedObligation(t, repo, "1000.00")

	stale := *obligation

	obligation.PaidTotal = decimal.RequireFromString("100.00")
	require.NoError(t, repo.Append(ctx, obligation,
		[]models.LedgerEvent{paymentEvent(obligation.ID, ids.NewKey(), "100.00")}, nil))

	// The copy still carries the old lock_version
	stale.PaidTotal = decimal.RequireFromString("200.00")
	err := repo.Append(ctx, &stale,
		[]models.LedgerEvent{paymentEvent(stale.ID, ids.NewKey(), "200.00")}, nil)
	assert.ErrorIs(t, err, ErrStaleObligation)
}

func TestGuardRejectionRollsBack(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))
	ctx := context.Background()
	obligation := seedObligation(t, repo, "1000.00")

	guardErr := fmt.Errorf("frontier moved")
	guard := func(tx *gorm.DB) error { return guardErr }

	err := repo.Append(ctx, obligation,
		[]models.LedgerEvent{paymentEvent(obligation.ID, ids.NewKey(), "100.00")}, guard)
	assert.ErrorIs(t, err, guardErr)

	events, err := repo.FindByObligationID(ctx, obligation.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "only the origination event survives")
}

func TestFindByObligationIDOrdering(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))
	ctx := context.Background()
	obligation := seedObligation(t, repo, "1000.00")

	for i := 0; i < 5; i++ {
		e := paymentEvent(obligation.ID, ids.NewKey(), "10.00")
		obligation.PaidTotal = obligation.PaidTotal.Add(e.Amount)
		require.NoError(t, repo.Append(ctx, obligation, []models.LedgerEvent{e}, nil))
	}

	events, err := repo.FindByObligationID(ctx, obligation.ID)
	require.NoError(t, err)
	require.Len(t, events, 6)
	for i := 1; i < len(events); i++ {
		assert.Less(t, events[i-1].ID, events[i].ID, "events must come back in creation order")
	}
}

func TestFindReversalOf(t *testing.T) {
	repo := NewEventRepository(newTestDB(t))
	ctx := context.Background()
	obligation := seedObligation(t, repo, "1000.00")

	payment := paymentEvent(obligation.ID, ids.NewKey(), "100.00")
	obligation.PaidTotal = obligation.PaidTotal.Add(payment.Amount)
	require.NoError(t, repo.Append(ctx, obligation, []models.LedgerEvent{payment}, nil))

	found, err := repo.FindReversalOf(ctx, payment.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	reversal := models.LedgerEvent{
		ID:              ids.New(),
		ObligationID:    obligation.ID,
		Kind:            models.EventKindReversal,
		Amount:          payment.Amount,
		EffectiveDate:   payment.EffectiveDate,
		Actor:           "maria",
		IdempotencyKey:  ids.NewKey(),
		ReversesEventID: &payment.ID,
	}
	obligation.PaidTotal = obligation.PaidTotal.Sub(payment.Amount)
	require.NoError(t, repo.Append(ctx, obligation, []models.LedgerEvent{reversal}, nil))

	found, err = repo.FindReversalOf(ctx, payment.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, reversal.ID, found.ID)
}

func TestOpenActivityDateBefore(t *testing.T) {
	db := newTestDB(t)
	repo := NewEventRepository(db)
	closings := NewClosingRepository(db)
	ctx := context.Background()

	obligation := seedObligation(t, repo, "1000.00")

	dayOne := models.DateOnly(time.Now().AddDate(0, 0, -3))
	dayTwo := models.DateOnly(time.Now().AddDate(0, 0, -2))
	for _, day := range []time.Time{dayOne, dayTwo} {
		e := paymentEvent(obligation.ID, ids.NewKey(), "10.00")
		e.EffectiveDate = day
		obligation.PaidTotal = obligation.PaidTotal.Add(e.Amount)
		require.NoError(t, repo.Append(ctx, obligation, []models.LedgerEvent{e}, nil))
	}

	today := models.DateOnly(time.Now())
	open, err := repo.OpenActivityDateBefore(ctx, today)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.True(t, open.Equal(dayOne))

	now := time.Now()
	require.NoError(t, closings.Create(ctx, &models.DayClosing{
		Date: dayOne, Status: models.ClosingStatusClosed, ClosedAt: &now, ClosedBy: "maria",
	}))

	open, err = repo.OpenActivityDateBefore(ctx, today)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.True(t, open.Equal(dayTwo))
}
