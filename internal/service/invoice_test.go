package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/courtbill/internal/document"
	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/entity"
	"github.com/dukerupert/courtbill/internal/notification"
	"github.com/dukerupert/courtbill/internal/repository"
	"github.com/dukerupert/courtbill/internal/repository/memstore"
	"github.com/dukerupert/courtbill/internal/tax"
)

var testNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

// fakeGateway implements GatewayPublisher for testing
type fakeGateway struct {
	mu      sync.Mutex
	pushed  []uuid.UUID
	voided  []string
	pushErr error
	voidErr error
}

func (g *fakeGateway) Push(ctx context.Context, inv *domain.Invoice, e domain.Invoiceable) (*domain.GatewayReference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	g.pushed = append(g.pushed, inv.ID)
	id := fmt.Sprintf("in_%d", len(g.pushed))
	return &domain.GatewayReference{
		InvoiceID: id,
		HostedURL: "https://pay.example/" + id,
		PDFURL:    "https://pay.example/" + id + ".pdf",
	}, nil
}

func (g *fakeGateway) Void(ctx context.Context, gatewayInvoiceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.voidErr != nil {
		return g.voidErr
	}
	g.voided = append(g.voided, gatewayInvoiceID)
	return nil
}

type harness struct {
	svc      InvoiceService
	store    *memstore.Store
	docs     *document.MockRenderer
	sent     *notification.Recorder
	gateway  *fakeGateway
	tenantID uuid.UUID
	clubID   uuid.UUID
}

type harnessOption func(*InvoiceDeps, *InvoiceConfig)

func withoutGateway() harnessOption {
	return func(d *InvoiceDeps, _ *InvoiceConfig) { d.Gateway = nil }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	store := memstore.New()
	store.Now = func() time.Time { return testNow }
	tenantID, clubID := uuid.New(), uuid.New()
	store.PutTenant(memstore.TenantAccount(tenantID, "Acme Sports"))
	store.PutClub(memstore.ClubAccount(tenantID, clubID, "Riverside TC"))

	h := &harness{
		store:    store,
		docs:     document.NewMockRenderer(),
		sent:     &notification.Recorder{},
		gateway:  &fakeGateway{},
		tenantID: tenantID,
		clubID:   clubID,
	}

	deps := InvoiceDeps{
		Store:      store,
		Strategies: entity.NewDefaultRegistry(store, zerolog.Nop()),
		Tax:        tax.NewMockCalculator(decimal.NewFromInt(19)),
		Documents:  h.docs,
		Notifier:   h.sent,
		Gateway:    h.gateway,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return testNow },
	}
	cfg := InvoiceConfig{Reminders: domain.DefaultReminderPolicy()}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	svc, err := NewInvoiceService(deps, cfg)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) updateClub(t *testing.T, fn func(acc *repository.BillingAccount)) {
	t.Helper()
	acc, ok := h.store.Club(h.clubID)
	require.True(t, ok)
	fn(&acc)
	h.store.PutClub(acc)
}

func clubParams(clubID uuid.UUID) domain.CreateInvoiceParams {
	return domain.CreateInvoiceParams{
		EntityType: domain.EntityClub,
		EntityID:   clubID,
		LineItems: []domain.LineItemInput{
			{Description: "Court hire", Quantity: 2, UnitPrice: decimal.NewFromInt(25)},
		},
	}
}

func (h *harness) draft(t *testing.T) *domain.Invoice {
	t.Helper()
	inv, err := h.svc.Create(context.Background(), clubParams(h.clubID))
	require.NoError(t, err)
	return inv
}

func (h *harness) sentInvoice(t *testing.T) *domain.Invoice {
	t.Helper()
	inv, err := h.svc.Send(context.Background(), h.draft(t).ID, domain.SendOptions{Notify: true})
	require.NoError(t, err)
	return inv
}

func (h *harness) overdueInvoice(t *testing.T) *domain.Invoice {
	t.Helper()
	inv, changed, err := h.svc.MarkOverdue(context.Background(), h.sentInvoice(t).ID)
	require.NoError(t, err)
	require.True(t, changed)
	return inv
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// Create
// =============================================================================

func TestInvoiceService_Create(t *testing.T) {
	rate7 := dec("7")
	net := dec("80")

	tests := []struct {
		name      string
		exempt    bool
		params    func(clubID uuid.UUID) domain.CreateInvoiceParams
		wantNet   string
		wantRate  string
		wantTax   string
		wantGross string
	}{
		{
			name:      "line items with jurisdiction rate",
			params:    clubParams,
			wantNet:   "50.00",
			wantRate:  "19.00",
			wantTax:   "9.50",
			wantGross: "59.50",
		},
		{
			name: "explicit net amount",
			params: func(id uuid.UUID) domain.CreateInvoiceParams {
				return domain.CreateInvoiceParams{EntityType: domain.EntityClub, EntityID: id, NetAmount: &net}
			},
			wantNet:   "80.00",
			wantRate:  "19.00",
			wantTax:   "15.20",
			wantGross: "95.20",
		},
		{
			name: "tax rate override",
			params: func(id uuid.UUID) domain.CreateInvoiceParams {
				p := clubParams(id)
				p.TaxRate = &rate7
				return p
			},
			wantNet:   "50.00",
			wantRate:  "7.00",
			wantTax:   "3.50",
			wantGross: "53.50",
		},
		{
			name:   "tax exempt entity ignores override",
			exempt: true,
			params: func(id uuid.UUID) domain.CreateInvoiceParams {
				p := clubParams(id)
				p.TaxRate = &rate7
				return p
			},
			wantNet:   "50.00",
			wantRate:  "0.00",
			wantTax:   "0.00",
			wantGross: "50.00",
		},
		{
			name: "tax rounds half up",
			params: func(id uuid.UUID) domain.CreateInvoiceParams {
				return domain.CreateInvoiceParams{
					EntityType: domain.EntityClub,
					EntityID:   id,
					LineItems:  []domain.LineItemInput{{Description: "Ball machine", Quantity: 1, UnitPrice: dec("10.50")}},
				}
			},
			wantNet:   "10.50",
			wantRate:  "19.00",
			wantTax:   "2.00",
			wantGross: "12.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.exempt {
				h.updateClub(t, func(acc *repository.BillingAccount) { acc.TaxExempt = true })
			}

			inv, err := h.svc.Create(context.Background(), tt.params(h.clubID))
			require.NoError(t, err)

			assert.Equal(t, domain.StatusDraft, inv.Status)
			assert.Equal(t, tt.wantNet, inv.NetAmount.StringFixed(2))
			assert.Equal(t, tt.wantRate, inv.TaxRate.StringFixed(2))
			assert.Equal(t, tt.wantTax, inv.TaxAmount.StringFixed(2))
			assert.Equal(t, tt.wantGross, inv.GrossAmount.StringFixed(2))
			assert.True(t, inv.NetAmount.Add(inv.TaxAmount).Equal(inv.GrossAmount))
			assert.Equal(t, "CLB-2026-000001", inv.InvoiceNumber)
			assert.Equal(t, h.tenantID, inv.TenantID, "a club invoice belongs to the club's tenant")
			assert.Equal(t, "EUR", inv.Currency)
			assert.Equal(t, "Riverside TC", inv.Billing.Name)
			assert.Equal(t, "DE", inv.Billing.Address.Country)
		})
	}
}

func TestInvoiceService_Create_Dates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv, err := h.svc.Create(ctx, clubParams(h.clubID))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), inv.DueDate, "net 14 by default")

	p := clubParams(h.clubID)
	p.IssueDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p.DueDate = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	inv, err = h.svc.Create(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, p.DueDate, inv.DueDate)
}

func TestInvoiceService_Create_Validation(t *testing.T) {
	mismatch := dec("49")

	tests := []struct {
		name      string
		params    func(h *harness) domain.CreateInvoiceParams
		wantCode  string
		wantField string
	}{
		{
			name: "no amount",
			params: func(h *harness) domain.CreateInvoiceParams {
				return domain.CreateInvoiceParams{EntityType: domain.EntityClub, EntityID: h.clubID}
			},
			wantCode:  domain.EINVALID,
			wantField: "line_items",
		},
		{
			name: "net amount does not match items",
			params: func(h *harness) domain.CreateInvoiceParams {
				p := clubParams(h.clubID)
				p.NetAmount = &mismatch
				return p
			},
			wantCode:  domain.EINVALID,
			wantField: "net_amount",
		},
		{
			name: "negative unit price",
			params: func(h *harness) domain.CreateInvoiceParams {
				p := clubParams(h.clubID)
				p.LineItems[0].UnitPrice = dec("-1")
				return p
			},
			wantCode:  domain.EINVALID,
			wantField: "line_items[0].unit_price",
		},
		{
			name: "zero quantity",
			params: func(h *harness) domain.CreateInvoiceParams {
				p := clubParams(h.clubID)
				p.LineItems[0].Quantity = 0
				return p
			},
			wantCode:  domain.EINVALID,
			wantField: "line_items[0].quantity",
		},
		{
			name: "due before issue",
			params: func(h *harness) domain.CreateInvoiceParams {
				p := clubParams(h.clubID)
				p.IssueDate = testNow
				p.DueDate = testNow.AddDate(0, 0, -1)
				return p
			},
			wantCode:  domain.EINVALID,
			wantField: "due_date",
		},
		{
			name: "unknown entity type",
			params: func(h *harness) domain.CreateInvoiceParams {
				p := clubParams(h.clubID)
				p.EntityType = "league"
				return p
			},
			wantCode:  domain.EINVALID,
			wantField: "entity_type",
		},
		{
			name: "missing entity id",
			params: func(h *harness) domain.CreateInvoiceParams {
				return clubParams(uuid.Nil)
			},
			wantCode:  domain.EINVALID,
			wantField: "entity_id",
		},
		{
			name: "unknown entity",
			params: func(h *harness) domain.CreateInvoiceParams {
				return clubParams(uuid.New())
			},
			wantCode: domain.ENOTFOUND,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			inv, err := h.svc.Create(context.Background(), tt.params(h))
			require.Error(t, err)
			assert.Nil(t, inv)
			assert.Equal(t, tt.wantCode, domain.ErrorCode(err))
			if tt.wantField != "" {
				assert.Contains(t, domain.GetValidationFields(err), tt.wantField)
			}
			assert.Zero(t, h.store.InvoiceCount(), "nothing is persisted on failure")
		})
	}
}

func TestInvoiceService_Create_MissingJurisdiction(t *testing.T) {
	h := newHarness(t)
	h.updateClub(t, func(acc *repository.BillingAccount) { acc.Country = "" })

	_, err := h.svc.Create(context.Background(), clubParams(h.clubID))
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
	assert.Contains(t, domain.GetValidationFields(err), "country")
}

func TestInvoiceService_Create_NumberSequences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.draft(t)
	second := h.draft(t)
	tenantInv, err := h.svc.Create(ctx, domain.CreateInvoiceParams{
		EntityType: domain.EntityTenant,
		EntityID:   h.tenantID,
		LineItems:  []domain.LineItemInput{{Description: "Platform fee", Quantity: 1, UnitPrice: dec("100")}},
	})
	require.NoError(t, err)

	p := clubParams(h.clubID)
	p.IssueDate = time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)
	nextYear, err := h.svc.Create(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, "CLB-2026-000001", first.InvoiceNumber)
	assert.Equal(t, "CLB-2026-000002", second.InvoiceNumber)
	assert.Equal(t, "TNT-2026-000001", tenantInv.InvoiceNumber)
	assert.Equal(t, "CLB-2027-000001", nextYear.InvoiceNumber, "sequences restart each year")
}

func TestInvoiceService_Create_ConcurrentNumbersAreUnique(t *testing.T) {
	h := newHarness(t)
	const workers = 25

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool)
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := h.svc.Create(context.Background(), clubParams(h.clubID))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers[inv.InvoiceNumber] = true
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, numbers, workers)
	for i := 1; i <= workers; i++ {
		assert.True(t, numbers[FormatInvoiceNumber("CLB", 2026, int32(i))], "missing sequence %d", i)
	}
}

func TestInvoiceService_Create_NumberCollision(t *testing.T) {
	collision := &pgconn.PgError{Code: "23505", ConstraintName: repository.ConstraintInvoiceNumber}

	t.Run("lagging counter is resynced", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		for i := 0; i < 2; i++ {
			_, err := h.svc.Create(ctx, clubParams(h.clubID))
			require.NoError(t, err)
		}
		// CLB-2026-000002 is stored but the counter only knows about 000001.
		h.store.SetInvoiceSequence(h.tenantID, string(domain.EntityClub), 2026, 1)

		inv, err := h.svc.Create(ctx, clubParams(h.clubID))
		require.NoError(t, err)
		assert.Equal(t, "CLB-2026-000003", inv.InvoiceNumber)

		next, err := h.svc.Create(ctx, clubParams(h.clubID))
		require.NoError(t, err)
		assert.Equal(t, "CLB-2026-000004", next.InvoiceNumber)
		assert.Equal(t, 4, h.store.InvoiceCount())
	})

	t.Run("other years and variants do not move the counter", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		_, err := h.svc.Create(ctx, domain.CreateInvoiceParams{
			EntityType: domain.EntityTenant,
			EntityID:   h.tenantID,
			LineItems:  clubParams(h.clubID).LineItems,
		})
		require.NoError(t, err)
		_, err = h.svc.Create(ctx, clubParams(h.clubID))
		require.NoError(t, err)
		h.store.SetInvoiceSequence(h.tenantID, string(domain.EntityClub), 2026, 0)

		inv, err := h.svc.Create(ctx, clubParams(h.clubID))
		require.NoError(t, err)
		assert.Equal(t, "CLB-2026-000002", inv.InvoiceNumber)
	})

	t.Run("persistent collision surfaces as conflict", func(t *testing.T) {
		h := newHarness(t)
		calls := 0
		h.store.FailCreate = func(arg repository.CreateInvoiceParams) error {
			calls++
			return collision
		}

		_, err := h.svc.Create(context.Background(), clubParams(h.clubID))
		require.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.True(t, domain.IsCode(err, domain.ECONFLICT))
		assert.True(t, errors.Is(err, domain.ErrNumberingCollision))
		assert.Zero(t, h.store.InvoiceCount())
	})
}

func TestInvoiceService_Create_RendersDocument(t *testing.T) {
	h := newHarness(t)

	inv := h.draft(t)
	assert.Equal(t, document.Key(inv), inv.DocumentKey)
	assert.True(t, h.docs.Has(inv.DocumentKey))
}

func TestInvoiceService_Create_RenderFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.docs.Err = errors.New("disk full")

	inv := h.draft(t)
	assert.Empty(t, inv.DocumentKey)
	assert.Equal(t, 1, h.store.InvoiceCount())
}

func TestInvoiceService_CreateSubscriptionInvoice(t *testing.T) {
	tests := []struct {
		name      string
		interval  string
		wantNet   string
		wantEnd   time.Time
		wantGross string
	}{
		{
			name:      "monthly",
			interval:  "monthly",
			wantNet:   "50.00",
			wantGross: "59.50",
			wantEnd:   time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "yearly with discount",
			interval:  "yearly",
			wantNet:   "540.00",
			wantGross: "642.60",
			wantEnd:   time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.updateClub(t, func(acc *repository.BillingAccount) { acc.BillingInterval = tt.interval })
			start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

			inv, err := h.svc.CreateSubscriptionInvoice(context.Background(), domain.SubscriptionInvoiceParams{
				EntityType:  domain.EntityClub,
				EntityID:    h.clubID,
				PeriodStart: start,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantNet, inv.NetAmount.StringFixed(2))
			assert.Equal(t, tt.wantGross, inv.GrossAmount.StringFixed(2))
			require.NotNil(t, inv.BillingPeriod)
			assert.Equal(t, start, inv.BillingPeriod.Start)
			assert.Equal(t, tt.wantEnd, inv.BillingPeriod.End)
			require.NotNil(t, inv.Plan)
			assert.Equal(t, "club_plan", inv.Plan.Type)
			require.Len(t, inv.LineItems, 1)
		})
	}
}

func TestInvoiceService_CreateSubscriptionInvoice_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateSubscriptionInvoice(ctx, domain.SubscriptionInvoiceParams{EntityType: domain.EntityClub, EntityID: h.clubID})
	assert.Contains(t, domain.GetValidationFields(err), "period_start")

	_, err = h.svc.CreateSubscriptionInvoice(ctx, domain.SubscriptionInvoiceParams{EntityType: "league", EntityID: h.clubID, PeriodStart: testNow})
	assert.Contains(t, domain.GetValidationFields(err), "entity_type")
}

// =============================================================================
// Draft editing
// =============================================================================

func TestInvoiceService_Update(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.draft(t)

	items := []domain.LineItemInput{
		{Description: "Court hire", Quantity: 4, UnitPrice: dec("25")},
		{Description: "Coaching", Quantity: 1, UnitPrice: dec("40")},
	}
	due := inv.DueDate.AddDate(0, 0, 7)
	notes := "April bookings"

	updated, err := h.svc.Update(ctx, inv.ID, domain.UpdateInvoiceParams{LineItems: &items, DueDate: &due, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "140.00", updated.NetAmount.StringFixed(2))
	assert.Equal(t, "26.60", updated.TaxAmount.StringFixed(2))
	assert.Equal(t, "166.60", updated.GrossAmount.StringFixed(2))
	assert.Equal(t, due, updated.DueDate)
	assert.Equal(t, notes, updated.Notes)
	assert.Len(t, updated.LineItems, 2)
	assert.Equal(t, inv.InvoiceNumber, updated.InvoiceNumber)

	mismatch := dec("10")
	_, err = h.svc.Update(ctx, inv.ID, domain.UpdateInvoiceParams{LineItems: &items, NetAmount: &mismatch})
	assert.Contains(t, domain.GetValidationFields(err), "net_amount")

	early := inv.IssueDate.AddDate(0, 0, -1)
	_, err = h.svc.Update(ctx, inv.ID, domain.UpdateInvoiceParams{DueDate: &early})
	assert.Contains(t, domain.GetValidationFields(err), "due_date")
}

func TestInvoiceService_Update_RequiresDraft(t *testing.T) {
	h := newHarness(t)
	inv := h.sentInvoice(t)
	notes := "too late"

	_, err := h.svc.Update(context.Background(), inv.ID, domain.UpdateInvoiceParams{Notes: &notes})
	require.Error(t, err)
	assert.True(t, domain.IsInvalidStateTransition(err))
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestInvoiceService_Delete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv := h.draft(t)
	require.True(t, h.docs.Has(inv.DocumentKey))

	require.NoError(t, h.svc.Delete(ctx, inv.ID))
	assert.Zero(t, h.store.InvoiceCount())
	assert.False(t, h.docs.Has(inv.DocumentKey))

	_, err := h.svc.Get(ctx, inv.ID)
	assert.True(t, domain.IsCode(err, domain.ENOTFOUND))

	sent := h.sentInvoice(t)
	err = h.svc.Delete(ctx, sent.ID)
	assert.True(t, domain.IsInvalidStateTransition(err))
	assert.Equal(t, 1, h.store.InvoiceCount())
}

// =============================================================================
// Transitions
// =============================================================================

func TestInvoiceService_Send(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.draft(t)

	sent, err := h.svc.Send(ctx, inv.ID, domain.SendOptions{Notify: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.NotEmpty(t, sent.DocumentKey)
	assert.True(t, sent.Gateway.IsZero(), "bank transfer entities are not pushed")

	notes := h.sent.Sent()
	require.Len(t, notes, 1)
	assert.Equal(t, notification.KindInvoice, notes[0].Kind)
	assert.Equal(t, []string{"treasurer@riversidetc.example", "contact@riversidetc.example"}, notes[0].Recipients)

	_, err = h.svc.Send(ctx, inv.ID, domain.SendOptions{})
	require.Error(t, err)
	assert.True(t, domain.IsInvalidStateTransition(err), "sending twice is rejected")
}

func TestInvoiceService_Send_WithoutNotify(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Send(context.Background(), h.draft(t).ID, domain.SendOptions{})
	require.NoError(t, err)
	assert.Empty(t, h.sent.Sent())
}

func TestInvoiceService_Send_RendersMissingDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.docs.Err = errors.New("renderer down")
	inv := h.draft(t)
	require.Empty(t, inv.DocumentKey)

	_, err := h.svc.Send(ctx, inv.ID, domain.SendOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, h.docs.Err))
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))

	still, err := h.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, still.Status, "no document, no send")

	h.docs.Err = nil
	sent, err := h.svc.Send(ctx, inv.ID, domain.SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, document.Key(inv), sent.DocumentKey)
}

func TestInvoiceService_Send_Gateway(t *testing.T) {
	gatewayClub := func(acc *repository.BillingAccount) { acc.PreferredPaymentMethod = "gateway" }

	t.Run("pushes and links the gateway invoice", func(t *testing.T) {
		h := newHarness(t)
		h.updateClub(t, gatewayClub)

		sent, err := h.svc.Send(context.Background(), h.draft(t).ID, domain.SendOptions{})
		require.NoError(t, err)
		assert.Equal(t, "in_1", sent.Gateway.InvoiceID)
		assert.Equal(t, "https://pay.example/in_1", sent.Gateway.HostedURL)
		assert.Len(t, h.gateway.pushed, 1)
	})

	t.Run("gateway managed send is not pushed back", func(t *testing.T) {
		h := newHarness(t)
		h.updateClub(t, gatewayClub)

		sent, err := h.svc.Send(context.Background(), h.draft(t).ID, domain.SendOptions{GatewayManaged: true})
		require.NoError(t, err)
		assert.True(t, sent.Gateway.IsZero())
		assert.Empty(t, h.gateway.pushed)
	})

	t.Run("push failure keeps the draft", func(t *testing.T) {
		h := newHarness(t)
		h.updateClub(t, gatewayClub)
		h.gateway.pushErr = errors.New("gateway unavailable")
		inv := h.draft(t)

		_, err := h.svc.Send(context.Background(), inv.ID, domain.SendOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, h.gateway.pushErr))

		still, _ := h.svc.Get(context.Background(), inv.ID)
		assert.Equal(t, domain.StatusDraft, still.Status)
	})

	t.Run("render failure voids the pushed invoice", func(t *testing.T) {
		h := newHarness(t)
		h.updateClub(t, gatewayClub)
		h.docs.Err = errors.New("renderer down")
		inv := h.draft(t)

		_, err := h.svc.Send(context.Background(), inv.ID, domain.SendOptions{})
		require.Error(t, err)
		assert.Equal(t, []string{"in_1"}, h.gateway.voided)
	})

	t.Run("no gateway configured", func(t *testing.T) {
		h := newHarness(t, withoutGateway())
		h.updateClub(t, gatewayClub)

		_, err := h.svc.Send(context.Background(), h.draft(t).ID, domain.SendOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrGatewayRequired))
		assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	})
}

func TestInvoiceService_MarkPaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.sentInvoice(t)
	paidAt := testNow.Add(2 * time.Hour)

	paid, changed, err := h.svc.MarkPaid(ctx, inv.ID, domain.MarkPaidParams{Reference: "SEPA-123", PaidAt: &paidAt})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, paid.PaidAt.Equal(paidAt))
	assert.Equal(t, "SEPA-123", paid.PaymentReference)
	assert.Equal(t, 1, h.sent.Count(notification.KindPaymentConfirmation))

	again, changed, err := h.svc.MarkPaid(ctx, inv.ID, domain.MarkPaidParams{Reference: "SEPA-999"})
	require.NoError(t, err, "paying a paid invoice is a no-op")
	assert.False(t, changed)
	assert.Equal(t, "SEPA-123", again.PaymentReference)
	assert.Equal(t, 1, h.sent.Count(notification.KindPaymentConfirmation))

	_, _, err = h.svc.MarkPaid(ctx, h.draft(t).ID, domain.MarkPaidParams{})
	assert.True(t, domain.IsInvalidStateTransition(err), "drafts cannot be paid")
}

func TestInvoiceService_MarkPaid_ExtendsSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv, err := h.svc.CreateSubscriptionInvoice(ctx, domain.SubscriptionInvoiceParams{
		EntityType:  domain.EntityClub,
		EntityID:    h.clubID,
		PeriodStart: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = h.svc.Send(ctx, inv.ID, domain.SendOptions{})
	require.NoError(t, err)
	_, _, err = h.svc.MarkPaid(ctx, inv.ID, domain.MarkPaidParams{})
	require.NoError(t, err)

	club, _ := h.store.Club(h.clubID)
	require.True(t, club.SubscriptionEndsAt.Valid)
	assert.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), club.SubscriptionEndsAt.Time)
}

func TestInvoiceService_MarkOverdue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.MarkOverdue(ctx, h.draft(t).ID)
	assert.True(t, domain.IsInvalidStateTransition(err), "drafts cannot become overdue")

	inv := h.sentInvoice(t)
	overdue, changed, err := h.svc.MarkOverdue(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusOverdue, overdue.Status)

	club, _ := h.store.Club(h.clubID)
	assert.True(t, club.PaymentOverdueSince.Valid)

	again, changed, err := h.svc.MarkOverdue(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.StatusOverdue, again.Status)
}

func TestInvoiceService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("draft cancels silently", func(t *testing.T) {
		h := newHarness(t)
		cancelled, err := h.svc.Cancel(ctx, h.draft(t).ID, domain.CancelParams{Reason: "duplicate"})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, cancelled.Status)
		assert.Equal(t, "duplicate", cancelled.CancellationReason)
		assert.Zero(t, h.sent.Count(notification.KindCancellation))
	})

	t.Run("sent invoice notifies", func(t *testing.T) {
		h := newHarness(t)
		cancelled, err := h.svc.Cancel(ctx, h.sentInvoice(t).ID, domain.CancelParams{Reason: "billed in error"})
		require.NoError(t, err)
		require.NotNil(t, cancelled.CancelledAt)
		assert.Equal(t, 1, h.sent.Count(notification.KindCancellation))
	})

	t.Run("paid invoice cannot be cancelled", func(t *testing.T) {
		h := newHarness(t)
		inv := h.sentInvoice(t)
		_, _, err := h.svc.MarkPaid(ctx, inv.ID, domain.MarkPaidParams{})
		require.NoError(t, err)

		_, err = h.svc.Cancel(ctx, inv.ID, domain.CancelParams{})
		assert.True(t, domain.IsInvalidStateTransition(err))
	})

	t.Run("gateway invoice is voided first", func(t *testing.T) {
		h := newHarness(t)
		h.updateClub(t, func(acc *repository.BillingAccount) { acc.PreferredPaymentMethod = "gateway" })
		inv := h.sentInvoice(t)

		_, err := h.svc.Cancel(ctx, inv.ID, domain.CancelParams{})
		require.NoError(t, err)
		assert.Equal(t, []string{inv.Gateway.InvoiceID}, h.gateway.voided)
	})

	t.Run("gateway managed cancel is not voided again", func(t *testing.T) {
		h := newHarness(t)
		h.updateClub(t, func(acc *repository.BillingAccount) { acc.PreferredPaymentMethod = "gateway" })
		inv := h.sentInvoice(t)

		_, err := h.svc.Cancel(ctx, inv.ID, domain.CancelParams{GatewayManaged: true})
		require.NoError(t, err)
		assert.Empty(t, h.gateway.voided)
	})

	t.Run("void failure keeps the invoice open", func(t *testing.T) {
		h := newHarness(t)
		h.updateClub(t, func(acc *repository.BillingAccount) { acc.PreferredPaymentMethod = "gateway" })
		inv := h.sentInvoice(t)
		h.gateway.voidErr = errors.New("gateway unavailable")

		_, err := h.svc.Cancel(ctx, inv.ID, domain.CancelParams{})
		require.Error(t, err)
		still, _ := h.svc.Get(ctx, inv.ID)
		assert.Equal(t, domain.StatusSent, still.Status)
	})
}

func TestInvoiceService_SendReminder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.SendReminder(ctx, h.sentInvoice(t).ID)
	assert.True(t, domain.IsInvalidStateTransition(err), "only overdue invoices get reminders")

	inv := h.overdueInvoice(t)
	for level := 1; level <= 3; level++ {
		updated, err := h.svc.SendReminder(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, level, updated.ReminderCount)
		require.NotNil(t, updated.LastReminderSentAt)
	}

	_, err = h.svc.SendReminder(ctx, inv.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMaxRemindersReached))
	assert.True(t, domain.IsInvalidStateTransition(err))

	var levels []int
	for _, s := range h.sent.Sent() {
		if s.Kind == notification.KindReminder {
			levels = append(levels, s.Level)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, levels)
}

func TestInvoiceService_SendDueReminder(t *testing.T) {
	ctx := context.Background()

	t.Run("re-checks the policy on the locked row", func(t *testing.T) {
		h := newHarness(t)
		inv := h.overdueInvoice(t)
		asOf := inv.DueDate.AddDate(0, 0, 8)

		updated, sent, err := h.svc.SendDueReminder(ctx, inv.ID, asOf)
		require.NoError(t, err)
		assert.True(t, sent)
		assert.Equal(t, 1, updated.ReminderCount)

		// A second caller working from the same stale list.
		again, sent, err := h.svc.SendDueReminder(ctx, inv.ID, asOf)
		require.NoError(t, err)
		assert.False(t, sent, "the 14 day threshold is not reached yet")
		assert.Equal(t, 1, again.ReminderCount)
		assert.Equal(t, 1, h.sent.Count(notification.KindReminder))
	})

	t.Run("not overdue is skipped without error", func(t *testing.T) {
		h := newHarness(t)
		inv := h.sentInvoice(t)

		_, sent, err := h.svc.SendDueReminder(ctx, inv.ID, inv.DueDate.AddDate(0, 0, 30))
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Zero(t, h.sent.Count(notification.KindReminder))
	})

	t.Run("zero max disables reminders", func(t *testing.T) {
		h := newHarness(t, func(_ *InvoiceDeps, cfg *InvoiceConfig) { cfg.Reminders.MaxReminders = 0 })
		inv := h.overdueInvoice(t)

		_, sent, err := h.svc.SendDueReminder(ctx, inv.ID, inv.DueDate.AddDate(0, 0, 30))
		require.NoError(t, err)
		assert.False(t, sent)

		_, err = h.svc.SendReminder(ctx, inv.ID)
		assert.True(t, errors.Is(err, domain.ErrMaxRemindersReached))
	})
}

func TestInvoiceService_SendReminder_DeliveryFailureStillCounts(t *testing.T) {
	h := newHarness(t)
	inv := h.overdueInvoice(t)
	h.sent.Err = errors.New("smtp down")

	updated, err := h.svc.SendReminder(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ReminderCount)
}

func TestInvoiceService_SuspendForNonPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.SuspendForNonPayment(ctx, h.sentInvoice(t).ID)
	assert.True(t, domain.IsInvalidStateTransition(err))

	inv := h.overdueInvoice(t)
	suspended, err := h.svc.SuspendForNonPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, suspended)
	assert.Equal(t, 1, h.sent.Count(notification.KindSuspensionWarning))

	club, _ := h.store.Club(h.clubID)
	assert.True(t, club.SuspendedAt.Valid)

	suspended, err = h.svc.SuspendForNonPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, suspended, "already suspended")
	assert.Equal(t, 1, h.sent.Count(notification.KindSuspensionWarning))

	_, _, err = h.svc.MarkPaid(ctx, inv.ID, domain.MarkPaidParams{})
	require.NoError(t, err)
	club, _ = h.store.Club(h.clubID)
	assert.False(t, club.SuspendedAt.Valid, "paying the last overdue invoice reactivates")
	assert.False(t, club.PaymentOverdueSince.Valid)
}

func TestInvoiceService_AttachGatewayReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.sentInvoice(t)
	ref := domain.GatewayReference{InvoiceID: "in_abc", HostedURL: "https://pay.example/in_abc"}

	linked, err := h.svc.AttachGatewayReference(ctx, inv.ID, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, linked.Gateway)

	_, err = h.svc.AttachGatewayReference(ctx, inv.ID, ref)
	require.NoError(t, err, "same reference is a no-op")

	_, err = h.svc.AttachGatewayReference(ctx, inv.ID, domain.GatewayReference{InvoiceID: "in_other"})
	assert.True(t, domain.IsCode(err, domain.ECONFLICT))

	found, err := h.svc.GetByGatewayID(ctx, "in_abc")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, found.ID)

	_, err = h.svc.GetByGatewayID(ctx, "in_missing")
	assert.True(t, domain.IsCode(err, domain.ENOTFOUND))
}

func TestInvoiceService_RegenerateDocument(t *testing.T) {
	h := newHarness(t)
	inv := h.sentInvoice(t)
	before := h.docs.Renders

	regenerated, err := h.svc.RegenerateDocument(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, document.Key(inv), regenerated.DocumentKey)
	assert.Equal(t, before+1, h.docs.Renders)
}

func TestInvoiceService_PostCommitFailuresAreNotReturned(t *testing.T) {
	h := newHarness(t)
	h.sent.Err = errors.New("smtp down")

	inv, err := h.svc.Send(context.Background(), h.draft(t).ID, domain.SendOptions{Notify: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, inv.Status)
}

// =============================================================================
// Queries
// =============================================================================

func TestInvoiceService_ListAndStatistics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.draft(t)
	sent := h.sentInvoice(t)
	h.overdueInvoice(t)
	paid := h.sentInvoice(t)
	_, _, err := h.svc.MarkPaid(ctx, paid.ID, domain.MarkPaidParams{})
	require.NoError(t, err)

	page, err := h.svc.List(ctx, domain.InvoiceFilter{TenantID: h.tenantID})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	assert.Len(t, page.Invoices, 4)

	page, err = h.svc.List(ctx, domain.InvoiceFilter{TenantID: h.tenantID, Status: domain.StatusSent})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, sent.ID, page.Invoices[0].ID)

	page, err = h.svc.List(ctx, domain.InvoiceFilter{TenantID: h.tenantID, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	assert.Len(t, page.Invoices, 2)

	_, err = h.svc.List(ctx, domain.InvoiceFilter{Status: "lost"})
	assert.True(t, domain.IsValidationError(err))

	stats, err := h.svc.Statistics(ctx, h.tenantID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ByStatus[domain.StatusDraft].Count)
	assert.EqualValues(t, 1, stats.ByStatus[domain.StatusPaid].Count)
	assert.Equal(t, "119.00", stats.Outstanding.StringFixed(2), "sent plus overdue gross")
}

func TestInvoiceService_OverdueQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sent := h.sentInvoice(t)
	h.overdueInvoice(t)

	candidates, err := h.svc.ListOverdueCandidates(ctx, sent.DueDate)
	require.NoError(t, err)
	assert.Empty(t, candidates, "due today is not yet overdue")

	candidates, err = h.svc.ListOverdueCandidates(ctx, sent.DueDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, sent.ID, candidates[0].ID)

	overdue, err := h.svc.ListOverdue(ctx)
	require.NoError(t, err)
	assert.Len(t, overdue, 1)
}

func TestNewInvoiceService_RequiresDependencies(t *testing.T) {
	_, err := NewInvoiceService(InvoiceDeps{}, InvoiceConfig{})
	assert.Error(t, err)
}
