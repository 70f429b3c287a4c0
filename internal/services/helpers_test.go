package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-deposit-backend/internal/domain"
	"github.com/tbourn/go-deposit-backend/internal/payments"
	"github.com/tbourn/go-deposit-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newFileDB serializes all access through one connection so concurrent
// goroutines contend on the same rows without "table is locked" errors.
func newFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

const fakeSigHeader = "X-Fake-Signature"

// fakeProvider scripts CreateSession failures and decodes a tiny webhook
// format: {"type":..,"ref":..,"status":..,"deposit_id":..} signed by setting
// X-Fake-Signature: valid.
type fakeProvider struct {
	name string

	mu       sync.Mutex
	calls    int
	failures []error // returned by the first len(failures) calls
	ref      string  // session ref; "ref-<deposit id>" when empty
	delay    time.Duration
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= len(f.failures) {
		return nil, f.failures[f.calls-1]
	}
	ref := f.ref
	if ref == "" {
		ref = "ref-" + req.DepositID
	}
	return &payments.Session{
		ProviderRef: ref,
		RedirectURL: "https://checkout.example/" + ref,
		Amount:      req.Amount,
		Currency:    req.Currency,
	}, nil
}

func (f *fakeProvider) ParseWebhook(h http.Header, body []byte) (*payments.Event, error) {
	if h.Get(fakeSigHeader) != "valid" {
		return nil, payments.ErrSignature
	}
	var in struct {
		Type      string `json:"type"`
		Ref       string `json:"ref"`
		Status    string `json:"status"`
		DepositID string `json:"deposit_id"`
	}
	if err := json.Unmarshal(body, &in); err != nil || in.Type == "" {
		return nil, fmt.Errorf("%w: fake", payments.ErrMalformed)
	}
	return &payments.Event{
		Provider:    f.name,
		Type:        in.Type,
		ProviderRef: in.Ref,
		DepositID:   in.DepositID,
		Status:      domain.DepositStatus(in.Status),
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func retryable(msg string) error {
	return &payments.ProviderError{Provider: "fake", Retryable: true, StatusCode: 503, Message: msg}
}

func permanent(msg string) error {
	return &payments.ProviderError{Provider: "fake", StatusCode: 200, Message: msg}
}

// recordingNotifier captures settlements.
type recordingNotifier struct {
	mu   sync.Mutex
	got  []domain.Settlement
	fail error
}

func (n *recordingNotifier) DepositSettled(_ context.Context, s domain.Settlement) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, s)
	return n.fail
}

func (n *recordingNotifier) settlements() []domain.Settlement {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Settlement(nil), n.got...)
}

func validInput() CreateDepositInput {
	return CreateDepositInput{
		Username:      "alice",
		Email:         "alice@example.com",
		Phone:         "+15551234567",
		GameName:      "Orion Stars",
		Amount:        decimal.RequireFromString("25.00"),
		Currency:      "usd",
		PaymentMethod: "bitcoin",
	}
}

type harness struct {
	db       *gorm.DB
	provider *fakeProvider
	deposits *DepositService
	recon    *Reconciler
	notifier *recordingNotifier
}

func newHarness(t *testing.T, db *gorm.DB) *harness {
	t.Helper()
	p := &fakeProvider{name: "fake"}
	other := &fakeProvider{name: "other"}
	reg := payments.NewStaticRegistry("fake", p, other)

	ds := NewDepositService(db, reg)
	ds.RetryInitial = time.Millisecond
	n := &recordingNotifier{}
	return &harness{db: db, provider: p, deposits: ds, recon: NewReconciler(db, reg, n), notifier: n}
}

func signed() http.Header {
	h := http.Header{}
	h.Set(fakeSigHeader, "valid")
	return h
}

func webhookBody(typ, ref string, status domain.DepositStatus) []byte {
	return []byte(fmt.Sprintf(`{"type":%q,"ref":%q,"status":%q}`, typ, ref, status))
}

// mustCreate opens a deposit through the service and returns it with its ref.
func (h *harness) mustCreate(t *testing.T) (*domain.Deposit, string) {
	t.Helper()
	res, err := h.deposits.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	d, err := repo.GetDeposit(context.Background(), h.db, res.DepositID)
	if err != nil {
		t.Fatalf("GetDeposit: %v", err)
	}
	return d, *d.ProviderRef
}

func (h *harness) deliver(t *testing.T, provider string, header http.Header, body []byte) *Result {
	t.Helper()
	res, err := h.recon.Handle(context.Background(), provider, header, body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	return res
}

func countLogs(t *testing.T, db *gorm.DB, outcome domain.WebhookOutcome) int64 {
	t.Helper()
	n, err := repo.CountWebhookLogs(context.Background(), db, repo.WebhookLogFilter{Outcome: outcome})
	if err != nil {
		t.Fatalf("CountWebhookLogs: %v", err)
	}
	return n
}
