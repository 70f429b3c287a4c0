package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-deposit-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedDeposit(t *testing.T, db *gorm.DB, id string, status domain.DepositStatus, amount string, at time.Time) {
	t.Helper()
	d := &domain.Deposit{
		ID: id, Username: "u", Email: "u@example.com", Phone: "5551234567", GameName: "g",
		Amount: decimal.RequireFromString(amount), Currency: "USD", Status: status,
		CreatedAt: at, UpdatedAt: at,
	}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestDepositsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := DepositsStats(context.Background(), db, ""); err == nil {
		t.Fatalf("expected error due to missing deposits table")
	}
}

func TestDepositsStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Deposit{})
	count, maxAt, err := DepositsStats(context.Background(), db, "")
	if err != nil {
		t.Fatalf("DepositsStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestDepositsStats_Success_FilterAndMax(t *testing.T) {
	db := newTestDB(t, &domain.Deposit{})

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max for completed
	t3 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)   // pending, newest overall

	seedDeposit(t, db, "d1", domain.StatusCompleted, "10", t1)
	seedDeposit(t, db, "d2", domain.StatusCompleted, "20", t2)
	seedDeposit(t, db, "d3", domain.StatusPending, "5", t3)

	count, maxAt, err := DepositsStats(context.Background(), db, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("DepositsStats error: %v", err)
	}
	if count != 2 || maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected (2, %v), got (%d, %v)", t2, count, maxAt)
	}

	count, maxAt, err = DepositsStats(context.Background(), db, "")
	if err != nil {
		t.Fatalf("DepositsStats(all) error: %v", err)
	}
	if count != 3 || maxAt == nil || !maxAt.Equal(t3) {
		t.Fatalf("expected (3, %v), got (%d, %v)", t3, count, maxAt)
	}
}

// Force the second query (SELECT updated_at ...) to fail by renaming the column.
func TestDepositsStats_SelectLatest_ErrorPath(t *testing.T) {
	db := newTestDB(t, &domain.Deposit{})
	seedDeposit(t, db, "dx", domain.StatusPending, "1", time.Now().UTC())

	if err := db.Exec(`ALTER TABLE deposits RENAME COLUMN updated_at TO updated_at_old`).Error; err != nil {
		t.Fatalf("rename column: %v", err)
	}
	if _, _, err := DepositsStats(context.Background(), db, ""); err == nil {
		t.Fatalf("expected error from latest-updated select after column rename")
	}
}

func TestDepositTotalsByStatus(t *testing.T) {
	db := newTestDB(t, &domain.Deposit{})
	now := time.Now().UTC()
	seedDeposit(t, db, "a", domain.StatusCompleted, "10.25", now)
	seedDeposit(t, db, "b", domain.StatusCompleted, "4.75", now)
	seedDeposit(t, db, "c", domain.StatusPendingPayment, "3", now)

	totals, err := DepositTotalsByStatus(context.Background(), db)
	if err != nil {
		t.Fatalf("DepositTotalsByStatus: %v", err)
	}
	if len(totals) != 5 {
		t.Fatalf("expected one row per status, got %d", len(totals))
	}
	byStatus := map[domain.DepositStatus]StatusTotal{}
	for _, st := range totals {
		byStatus[st.Status] = st
	}
	if c := byStatus[domain.StatusCompleted]; c.Count != 2 || !c.Amount.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("completed totals unexpected: %+v", c)
	}
	if p := byStatus[domain.StatusPendingPayment]; p.Count != 1 || !p.Amount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("pending_payment totals unexpected: %+v", p)
	}
	if f := byStatus[domain.StatusFailed]; f.Count != 0 || !f.Amount.IsZero() {
		t.Fatalf("failed totals unexpected: %+v", f)
	}
}
