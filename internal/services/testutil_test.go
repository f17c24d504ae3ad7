package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vmtorres/payables-api/internal/models"
	"github.com/vmtorres/payables-api/internal/repository"
)

// newTestDB opens an isolated in-memory database per test. The named
// shared-cache DSN keeps the schema alive across the pool's connections.
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
		&models.AuditLog{},
	))

	return db
}

func newTestLedger(t *testing.T) (*LedgerService, *repository.Repositories) {
	t.Helper()
	repos := repository.NewRepositories(newTestDB(t))
	svc := NewLedgerService(repos.Obligation, repos.Event, repos.Closing, nil, nil)
	return svc, repos
}

func daysAgo(n int) time.Time {
	return models.DateOnly(time.Now().AddDate(0, 0, -n))
}
