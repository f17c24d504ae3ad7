package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vmtorres/payables-api/internal/models"
)

func TestFrontierLockDialectGate(t *testing.T) {
	db := newTestDB(t)

	// Dialects without advisory locks skip the lock statements; the
	// transaction itself must still be usable afterwards.
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := LockClosingFrontierShared(tx); err != nil {
			return err
		}
		if err := LockClosingFrontier(tx); err != nil {
			return err
		}
		_, err := LatestClosedDateTx(tx)
		return err
	})
	require.NoError(t, err)
}

func TestClosingCreateUpdateRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewClosingRepository(db)
	ctx := context.Background()

	now := time.Now()
	day := models.DateOnly(now.AddDate(0, 0, -1))
	closing := &models.DayClosing{
		Date:     day,
		Status:   models.ClosingStatusClosed,
		ClosedAt: &now,
		ClosedBy: "maria",
	}
	require.NoError(t, repo.Create(ctx, closing))

	latest, err := repo.LatestClosedDate(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(day))

	closing.Status = models.ClosingStatusOpen
	closing.ReopenedAt = &now
	closing.ReopenedBy = "maria"
	require.NoError(t, repo.Update(ctx, closing))
	assert.Equal(t, int64(1), closing.LockVersion)

	stale := *closing
	stale.LockVersion = 0
	assert.ErrorIs(t, repo.Update(ctx, &stale), ErrStaleClosing)

	latest, err = repo.LatestClosedDate(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "reopened date no longer counts as frontier")
}
