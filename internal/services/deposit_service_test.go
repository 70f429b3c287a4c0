package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-deposit-backend/internal/domain"
	"github.com/tbourn/go-deposit-backend/internal/repo"
)

func TestDepositService_Create_BindsSession(t *testing.T) {
	h := newHarness(t, newSvcDB(t))

	res, err := h.deposits.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Status != domain.StatusPendingPayment || res.Provider != "fake" || res.Replayed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.RedirectURL != "https://checkout.example/ref-"+res.DepositID {
		t.Fatalf("redirect = %q", res.RedirectURL)
	}

	d, err := repo.GetDeposit(context.Background(), h.db, res.DepositID)
	if err != nil {
		t.Fatalf("GetDeposit: %v", err)
	}
	if d.Status != domain.StatusPendingPayment || !d.HasProviderRef() || d.Provider != "fake" {
		t.Fatalf("deposit not bound: %+v", d)
	}
	if d.Currency != "USD" || !d.Amount.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("amount/currency not stored as normalized: %s %s", d.Amount, d.Currency)
	}
	if d.Metadata["game_name"] != "Orion Stars" || d.Metadata["deposit_id"] != res.DepositID {
		t.Fatalf("metadata = %v", d.Metadata)
	}
}

func TestDepositService_Create_Validation(t *testing.T) {
	cases := []struct {
		name  string
		mod   func(*CreateDepositInput)
		field string
		msg   string
	}{
		{"missing username", func(in *CreateDepositInput) { in.Username = "  " }, "username", "username is required"},
		{"bad email", func(in *CreateDepositInput) { in.Email = "nope" }, "email", "email must be a valid email address"},
		{"short phone", func(in *CreateDepositInput) { in.Phone = "12345" }, "phone", "phone must be at least 10 characters"},
		{"zero amount", func(in *CreateDepositInput) { in.Amount = decimal.Zero }, "amount", "amount must be greater than zero"},
		{"negative amount", func(in *CreateDepositInput) { in.Amount = decimal.NewFromInt(-5) }, "amount", "amount must be greater than zero"},
		{"sub-cent amount", func(in *CreateDepositInput) { in.Amount = decimal.RequireFromString("0.004") }, "amount", "amount must have at most 2 decimal places for USD"},
		{"fractional cent", func(in *CreateDepositInput) { in.Amount = decimal.RequireFromString("25.001") }, "amount", "amount must have at most 2 decimal places for USD"},
		{"fractional yen", func(in *CreateDepositInput) {
			in.Amount = decimal.RequireFromString("100.5")
			in.Currency = "JPY"
		}, "amount", "amount must have at most 0 decimal places for JPY"},
		{"unknown currency", func(in *CreateDepositInput) { in.Currency = "XYZ" }, "currency", "currency must be an ISO 4217 code"},
		{"bad method", func(in *CreateDepositInput) { in.PaymentMethod = "paypal" }, "payment_method", "payment_method must be one of: bitcoin, lightning, card"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, newSvcDB(t))
			in := validInput()
			tc.mod(&in)

			_, err := h.deposits.Create(context.Background(), in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			found := false
			for _, f := range ve.Fields {
				if f.Field == tc.field && f.Message == tc.msg {
					found = true
				}
			}
			if !found {
				t.Fatalf("missing %s=%q in %+v", tc.field, tc.msg, ve.Fields)
			}
			if n, _ := repo.CountDeposits(context.Background(), h.db, ""); n != 0 {
				t.Fatalf("rejected input must not be stored, have %d rows", n)
			}
			if h.provider.callCount() != 0 {
				t.Fatalf("provider called for invalid input")
			}
		})
	}
}

func TestDepositService_Create_TrailingZerosAccepted(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	in := validInput()
	in.Amount = decimal.RequireFromString("25.5000")
	if _, err := h.deposits.Create(context.Background(), in); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestDepositService_Create_MaxAmount(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	h.deposits.MaxAmount = decimal.NewFromInt(10)
	_, err := h.deposits.Create(context.Background(), validInput())
	if !IsValidation(err) || !strings.Contains(err.Error(), "must not exceed 10") {
		t.Fatalf("expected max amount validation error, got %v", err)
	}
}

func TestDepositService_Create_RetriesTransientFailures(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	h.provider.failures = []error{retryable("timeout"), retryable("502")}

	res, err := h.deposits.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := h.provider.callCount(); got != 3 {
		t.Fatalf("calls = %d; want 3", got)
	}
	if res.Status != domain.StatusPendingPayment {
		t.Fatalf("status = %s", res.Status)
	}
}

// Provider outage: every attempt fails, the deposit stays pending without a ref.
func TestDepositService_Create_ProviderOutageLeavesPending(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	h.deposits.SessionAttempts = 2
	h.provider.failures = []error{retryable("down"), retryable("down"), retryable("down")}

	_, err := h.deposits.Create(context.Background(), validInput())
	var pe *ProviderError
	if !errors.As(err, &pe) || !pe.Retryable {
		t.Fatalf("expected retryable *ProviderError, got %v", err)
	}
	if got := h.provider.callCount(); got != 2 {
		t.Fatalf("calls = %d; want 2", got)
	}

	items, err := repo.ListDepositsPage(context.Background(), h.db, "", 0, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("list = (%d, %v)", len(items), err)
	}
	if items[0].Status != domain.StatusPending || items[0].HasProviderRef() {
		t.Fatalf("deposit must remain pending without ref: %+v", items[0])
	}
}

func TestDepositService_Create_NonRetryableStopsImmediately(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	h.provider.failures = []error{permanent("response missing url")}

	_, err := h.deposits.Create(context.Background(), validInput())
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Retryable {
		t.Fatalf("expected non-retryable *ProviderError, got %v", err)
	}
	if got := h.provider.callCount(); got != 1 {
		t.Fatalf("calls = %d; want 1", got)
	}
}

func TestDepositService_Create_CancelledContext(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	h.deposits.RetryInitial = 0
	h.provider.failures = []error{retryable("down"), retryable("down"), retryable("down")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.deposits.Create(ctx, validInput())
	if err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}

func TestDepositService_Create_RefAlreadyBoundElsewhere(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	h.provider.ref = "shared-ref"
	if _, err := h.deposits.Create(context.Background(), validInput()); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := h.deposits.Create(context.Background(), validInput())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDepositService_Create_IdempotentReplay(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	in := validInput()
	in.IdempotencyKey = "key-123"

	first, err := h.deposits.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := h.deposits.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.DepositID != first.DepositID || second.RedirectURL != first.RedirectURL {
		t.Fatalf("replay mismatch: %+v vs %+v", second, first)
	}
	if h.provider.callCount() != 1 {
		t.Fatalf("replay must not open a second session")
	}
	if n, _ := repo.CountDeposits(context.Background(), h.db, ""); n != 1 {
		t.Fatalf("deposits = %d; want 1", n)
	}
}

// Same key sent concurrently: one deposit, one provider session.
func TestDepositService_Create_ConcurrentSameKey(t *testing.T) {
	h := newHarness(t, newFileDB(t))
	h.provider.delay = 50 * time.Millisecond
	in := validInput()
	in.IdempotencyKey = "double-click"

	const n = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = map[string]bool{}
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.deposits.Create(context.Background(), in)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[res.DepositID] = true
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if !errors.Is(err, ErrIdempotencyInProgress) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(ids) != 1 {
		t.Fatalf("distinct deposits returned = %d; want 1", len(ids))
	}
	if got := h.provider.callCount(); got != 1 {
		t.Fatalf("provider calls = %d; want 1", got)
	}
	if cnt, _ := repo.CountDeposits(context.Background(), h.db, ""); cnt != 1 {
		t.Fatalf("deposits = %d; want 1", cnt)
	}
}

func TestDepositService_Create_FailedAttemptFreesKey(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	h.provider.failures = []error{permanent("response missing url")}
	in := validInput()
	in.IdempotencyKey = "retry-me"

	if _, err := h.deposits.Create(context.Background(), in); err == nil {
		t.Fatalf("expected provider error")
	}
	res, err := h.deposits.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("retry with same key: %v", err)
	}
	if res.Replayed || res.Status != domain.StatusPendingPayment {
		t.Fatalf("retry must create a fresh session: %+v", res)
	}
	rec, err := repo.GetIdempotency(context.Background(), h.db, idempotencyScope, "retry-me", time.Now().UTC())
	if err != nil || rec.DepositID != res.DepositID || rec.Status != 201 {
		t.Fatalf("idempotency record = (%+v, %v)", rec, err)
	}
}

func TestDepositService_Create_StaleReservationTakenOver(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	in := validInput()
	in.IdempotencyKey = "crashed"

	// fresh reservation from a request still running
	if _, err := repo.CreateIdempotency(context.Background(), h.db, idempotencyScope, "crashed", "dep-gone", 202, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := h.deposits.Create(context.Background(), in); !errors.Is(err, ErrIdempotencyInProgress) {
		t.Fatalf("expected ErrIdempotencyInProgress, got %v", err)
	}

	// same reservation, but its request died long ago
	if err := h.db.Model(&domain.Idempotency{}).Where("key = ?", "crashed").
		Update("created_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("age reservation: %v", err)
	}
	res, err := h.deposits.Create(context.Background(), in)
	if err != nil || res.Replayed {
		t.Fatalf("takeover = (%+v, %v)", res, err)
	}
	if h.provider.callCount() != 1 {
		t.Fatalf("provider calls = %d; want 1", h.provider.callCount())
	}
}

func TestDepositService_Get(t *testing.T) {
	h := newHarness(t, newSvcDB(t))
	d, _ := h.mustCreate(t)

	got, err := h.deposits.Get(context.Background(), " "+d.ID+" ")
	if err != nil || got.ID != d.ID {
		t.Fatalf("Get = (%v, %v)", got, err)
	}
	if _, err := h.deposits.Get(context.Background(), "missing"); !errors.Is(err, ErrDepositNotFound) {
		t.Fatalf("expected ErrDepositNotFound, got %v", err)
	}
}

func TestNormalizeInput(t *testing.T) {
	in := normalizeInput(CreateDepositInput{
		Username:      "  Café ",
		Email:         " Alice@Example.COM ",
		Currency:      " eur",
		PaymentMethod: "Lightning",
	})
	if in.Username != "Café" {
		t.Fatalf("username not NFC/trimmed: %q", in.Username)
	}
	if in.Email != "alice@example.com" || in.Currency != "EUR" || in.PaymentMethod != "lightning" {
		t.Fatalf("unexpected normalization: %+v", in)
	}
}
