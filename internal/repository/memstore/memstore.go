// Package memstore is an in-memory repository.Store used by tests across
// packages. Transactions are serialized and rolled back by restoring a
// snapshot, which is enough to exercise row-lock semantics.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/courtbill/internal/repository"
)

type counterKey struct {
	tenant     [16]byte
	entityType string
	year       int32
}

type state struct {
	invoices map[[16]byte]repository.Invoice
	clubs    map[[16]byte]repository.BillingAccount
	tenants  map[[16]byte]repository.BillingAccount
	counters map[counterKey]int32
	events   map[string]repository.GatewayEvent
}

func (s *state) clone() *state {
	c := &state{
		invoices: make(map[[16]byte]repository.Invoice, len(s.invoices)),
		clubs:    make(map[[16]byte]repository.BillingAccount, len(s.clubs)),
		tenants:  make(map[[16]byte]repository.BillingAccount, len(s.tenants)),
		counters: make(map[counterKey]int32, len(s.counters)),
		events:   make(map[string]repository.GatewayEvent, len(s.events)),
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.clubs {
		c.clubs[k] = v
	}
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

// Store is an in-memory repository.Store.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state

	// Now stamps created_at/updated_at and suspension times.
	Now func() time.Time

	// FailCreate, when set, is consulted before each CreateInvoice and may
	// return an error to inject (e.g. a unique violation).
	FailCreate func(arg repository.CreateInvoiceParams) error

	// TxCount counts committed transactions.
	TxCount int
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		st: &state{
			invoices: map[[16]byte]repository.Invoice{},
			clubs:    map[[16]byte]repository.BillingAccount{},
			tenants:  map[[16]byte]repository.BillingAccount{},
			counters: map[counterKey]int32{},
			events:   map[string]repository.GatewayEvent{},
		},
		Now: time.Now,
	}
}

// ExecTx serializes fn against other transactions and restores the previous
// state when fn fails.
func (s *Store) ExecTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.TxCount++
	s.mu.Unlock()
	return nil
}

// =============================================================================
// Seeding and inspection helpers
// =============================================================================

// PutClub inserts or replaces a club account.
func (s *Store) PutClub(acc repository.BillingAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.clubs[acc.ID.Bytes] = acc
}

// PutTenant inserts or replaces a tenant account.
func (s *Store) PutTenant(acc repository.BillingAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.tenants[acc.ID.Bytes] = acc
}

// PutInvoice inserts or replaces an invoice row as is.
func (s *Store) PutInvoice(inv repository.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.invoices[inv.ID.Bytes] = inv
}

// Club returns a club account by id.
func (s *Store) Club(id uuid.UUID) (repository.BillingAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.st.clubs[id]
	return acc, ok
}

// Tenant returns a tenant account by id.
func (s *Store) Tenant(id uuid.UUID) (repository.BillingAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.st.tenants[id]
	return acc, ok
}

// InvoiceCount returns the number of stored invoices.
func (s *Store) InvoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.invoices)
}

func (s *Store) now() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: s.Now(), Valid: true}
}

// =============================================================================
// Invoices
// =============================================================================

func (s *Store) CreateInvoice(ctx context.Context, arg repository.CreateInvoiceParams) (repository.Invoice, error) {
	if s.FailCreate != nil {
		if err := s.FailCreate(arg); err != nil {
			return repository.Invoice{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.invoices {
		if existing.TenantID == arg.TenantID && existing.EntityType == arg.EntityType && existing.InvoiceNumber == arg.InvoiceNumber {
			return repository.Invoice{}, &pgconn.PgError{Code: "23505", ConstraintName: repository.ConstraintInvoiceNumber}
		}
		if arg.GatewayInvoiceID.Valid && existing.GatewayInvoiceID == arg.GatewayInvoiceID {
			return repository.Invoice{}, &pgconn.PgError{Code: "23505", ConstraintName: repository.ConstraintGatewayInvoiceID}
		}
	}

	inv := repository.Invoice{
		ID:                 pgtype.UUID{Bytes: uuid.New(), Valid: true},
		TenantID:           arg.TenantID,
		EntityType:         arg.EntityType,
		EntityID:           arg.EntityID,
		PlanType:           arg.PlanType,
		PlanID:             arg.PlanID,
		InvoiceNumber:      arg.InvoiceNumber,
		Status:             "draft",
		NetAmount:          arg.NetAmount,
		TaxRate:            arg.TaxRate,
		TaxAmount:          arg.TaxAmount,
		GrossAmount:        arg.GrossAmount,
		Currency:           arg.Currency,
		LineItems:          arg.LineItems,
		BillingName:        arg.BillingName,
		BillingEmail:       arg.BillingEmail,
		BillingAddress:     arg.BillingAddress,
		BillingVatNumber:   arg.BillingVatNumber,
		BillingPeriodStart: arg.BillingPeriodStart,
		BillingPeriodEnd:   arg.BillingPeriodEnd,
		IssueDate:          arg.IssueDate,
		DueDate:            arg.DueDate,
		GatewayInvoiceID:   arg.GatewayInvoiceID,
		GatewayHostedUrl:   arg.GatewayHostedUrl,
		GatewayPdfUrl:      arg.GatewayPdfUrl,
		Notes:              arg.Notes,
		CreatedBy:          arg.CreatedBy,
		UpdatedBy:          arg.CreatedBy,
		CreatedAt:          s.now(),
		UpdatedAt:          s.now(),
	}
	s.st.invoices[inv.ID.Bytes] = inv
	return inv, nil
}

func (s *Store) get(id pgtype.UUID) (repository.Invoice, error) {
	inv, ok := s.st.invoices[id.Bytes]
	if !ok || !id.Valid {
		return repository.Invoice{}, pgx.ErrNoRows
	}
	return inv, nil
}

func (s *Store) update(id pgtype.UUID, fn func(inv *repository.Invoice) bool) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, err := s.get(id)
	if err != nil {
		return repository.Invoice{}, err
	}
	if !fn(&inv) {
		return repository.Invoice{}, pgx.ErrNoRows
	}
	inv.UpdatedAt = s.now()
	s.st.invoices[id.Bytes] = inv
	return inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id pgtype.UUID) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *Store) GetInvoiceForUpdate(ctx context.Context, id pgtype.UUID) (repository.Invoice, error) {
	return s.GetInvoice(ctx, id)
}

func (s *Store) GetInvoiceByGatewayID(ctx context.Context, gatewayInvoiceID pgtype.Text) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.st.invoices {
		if gatewayInvoiceID.Valid && inv.GatewayInvoiceID == gatewayInvoiceID {
			return inv, nil
		}
	}
	return repository.Invoice{}, pgx.ErrNoRows
}

func (s *Store) UpdateDraftInvoice(ctx context.Context, arg repository.UpdateDraftInvoiceParams) (repository.Invoice, error) {
	return s.update(arg.ID, func(inv *repository.Invoice) bool {
		if inv.Status != "draft" {
			return false
		}
		inv.NetAmount = arg.NetAmount
		inv.TaxRate = arg.TaxRate
		inv.TaxAmount = arg.TaxAmount
		inv.GrossAmount = arg.GrossAmount
		inv.LineItems = arg.LineItems
		inv.DueDate = arg.DueDate
		inv.Notes = arg.Notes
		inv.UpdatedBy = arg.UpdatedBy
		return true
	})
}

func (s *Store) MarkInvoiceSent(ctx context.Context, arg repository.MarkInvoiceSentParams) (repository.Invoice, error) {
	return s.update(arg.ID, func(inv *repository.Invoice) bool {
		inv.Status = "sent"
		inv.SentAt = arg.SentAt
		inv.UpdatedBy = arg.UpdatedBy
		return true
	})
}

func (s *Store) MarkInvoicePaid(ctx context.Context, arg repository.MarkInvoicePaidParams) (repository.Invoice, error) {
	return s.update(arg.ID, func(inv *repository.Invoice) bool {
		inv.Status = "paid"
		inv.PaidAt = arg.PaidAt
		inv.PaymentReference = arg.PaymentReference
		inv.PaymentNotes = arg.PaymentNotes
		inv.UpdatedBy = arg.UpdatedBy
		return true
	})
}

func (s *Store) MarkInvoiceOverdue(ctx context.Context, arg repository.MarkInvoiceOverdueParams) (repository.Invoice, error) {
	return s.update(arg.ID, func(inv *repository.Invoice) bool {
		inv.Status = "overdue"
		inv.UpdatedBy = arg.UpdatedBy
		return true
	})
}

func (s *Store) CancelInvoice(ctx context.Context, arg repository.CancelInvoiceParams) (repository.Invoice, error) {
	return s.update(arg.ID, func(inv *repository.Invoice) bool {
		inv.Status = "cancelled"
		inv.CancelledAt = arg.CancelledAt
		inv.CancellationReason = arg.CancellationReason
		inv.UpdatedBy = arg.UpdatedBy
		return true
	})
}

func (s *Store) RecordInvoiceReminder(ctx context.Context, arg repository.RecordInvoiceReminderParams) (repository.Invoice, error) {
	return s.update(arg.ID, func(inv *repository.Invoice) bool {
		inv.ReminderCount++
		inv.LastReminderSentAt = arg.SentAt
		inv.UpdatedBy = arg.UpdatedBy
		return true
	})
}

func (s *Store) SetInvoiceDocument(ctx context.Context, arg repository.SetInvoiceDocumentParams) (repository.Invoice, error) {
	return s.update(arg.ID, func(inv *repository.Invoice) bool {
		inv.DocumentKey = arg.DocumentKey
		return true
	})
}

func (s *Store) SetInvoiceGatewayReference(ctx context.Context, arg repository.SetInvoiceGatewayReferenceParams) (repository.Invoice, error) {
	return s.update(arg.ID, func(inv *repository.Invoice) bool {
		inv.GatewayInvoiceID = arg.GatewayInvoiceID
		inv.GatewayHostedUrl = arg.GatewayHostedUrl
		inv.GatewayPdfUrl = arg.GatewayPdfUrl
		return true
	})
}

func (s *Store) DeleteDraftInvoice(ctx context.Context, id pgtype.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, err := s.get(id)
	if err != nil || inv.Status != "draft" {
		return 0, nil
	}
	delete(s.st.invoices, id.Bytes)
	return 1, nil
}

type filter struct {
	tenantID   pgtype.UUID
	status     string
	entityType string
	entityID   pgtype.UUID
	issuedFrom pgtype.Date
	issuedTo   pgtype.Date
	search     string
}

func (f filter) match(inv repository.Invoice) bool {
	if f.tenantID.Valid && inv.TenantID != f.tenantID {
		return false
	}
	if f.status != "" && inv.Status != f.status {
		return false
	}
	if f.entityType != "" && inv.EntityType != f.entityType {
		return false
	}
	if f.entityID.Valid && inv.EntityID != f.entityID {
		return false
	}
	if f.issuedFrom.Valid && inv.IssueDate.Time.Before(f.issuedFrom.Time) {
		return false
	}
	if f.issuedTo.Valid && inv.IssueDate.Time.After(f.issuedTo.Time) {
		return false
	}
	if f.search != "" {
		q := strings.ToLower(f.search)
		if !strings.Contains(strings.ToLower(inv.InvoiceNumber), q) && !strings.Contains(strings.ToLower(inv.BillingName), q) {
			return false
		}
	}
	return true
}

func (s *Store) filtered(f filter) []repository.Invoice {
	out := []repository.Invoice{}
	for _, inv := range s.st.invoices {
		if f.match(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssueDate.Time.Equal(out[j].IssueDate.Time) {
			return out[i].IssueDate.Time.After(out[j].IssueDate.Time)
		}
		return out[i].InvoiceNumber > out[j].InvoiceNumber
	})
	return out
}

func (s *Store) ListInvoices(ctx context.Context, arg repository.ListInvoicesParams) ([]repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.filtered(filter{
		tenantID: arg.TenantID, status: arg.Status, entityType: arg.EntityType, entityID: arg.EntityID,
		issuedFrom: arg.IssuedFrom, issuedTo: arg.IssuedTo, search: arg.Search,
	})
	start := int(arg.Offset)
	if start > len(all) {
		start = len(all)
	}
	end := start + int(arg.Limit)
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (s *Store) CountInvoices(ctx context.Context, arg repository.CountInvoicesParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.filtered(filter{
		tenantID: arg.TenantID, status: arg.Status, entityType: arg.EntityType, entityID: arg.EntityID,
		issuedFrom: arg.IssuedFrom, issuedTo: arg.IssuedTo, search: arg.Search,
	}))), nil
}

func (s *Store) GetInvoiceStatistics(ctx context.Context, tenantID pgtype.UUID) ([]repository.GetInvoiceStatisticsRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int64{}
	sums := map[string]decimal.Decimal{}
	for _, inv := range s.st.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		counts[inv.Status]++
		sums[inv.Status] = sums[inv.Status].Add(repository.Decimal(inv.GrossAmount))
	}

	rows := []repository.GetInvoiceStatisticsRow{}
	for status, count := range counts {
		rows = append(rows, repository.GetInvoiceStatisticsRow{
			Status:       status,
			InvoiceCount: count,
			GrossTotal:   repository.Numeric(sums[status]),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Status < rows[j].Status })
	return rows, nil
}

func (s *Store) byStatus(status string, keep func(repository.Invoice) bool) []repository.Invoice {
	out := []repository.Invoice{}
	for _, inv := range s.st.invoices {
		if inv.Status == status && (keep == nil || keep(inv)) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Time.Equal(out[j].DueDate.Time) {
			return out[i].DueDate.Time.Before(out[j].DueDate.Time)
		}
		return out[i].InvoiceNumber < out[j].InvoiceNumber
	})
	return out
}

func (s *Store) ListSentInvoicesDueBefore(ctx context.Context, dueBefore pgtype.Date) ([]repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byStatus("sent", func(inv repository.Invoice) bool {
		return inv.DueDate.Time.Before(dueBefore.Time)
	}), nil
}

func (s *Store) ListOverdueInvoices(ctx context.Context) ([]repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byStatus("overdue", nil), nil
}

func (s *Store) CountOverdueInvoicesForEntity(ctx context.Context, arg repository.CountOverdueInvoicesForEntityParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, inv := range s.st.invoices {
		if inv.Status == "overdue" && inv.EntityType == arg.EntityType && inv.EntityID == arg.EntityID {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Numbering
// =============================================================================

func (s *Store) NextInvoiceSequence(ctx context.Context, arg repository.NextInvoiceSequenceParams) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{tenant: arg.TenantID.Bytes, entityType: arg.EntityType, year: arg.Year}
	s.st.counters[key]++
	return s.st.counters[key], nil
}

func (s *Store) SyncInvoiceSequence(ctx context.Context, arg repository.SyncInvoiceSequenceParams) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{tenant: arg.TenantID.Bytes, entityType: arg.EntityType, year: arg.Year}
	prefix := strings.TrimSuffix(arg.NumberPattern, "%")
	highest := s.st.counters[key]
	for _, inv := range s.st.invoices {
		if inv.TenantID != arg.TenantID || inv.EntityType != arg.EntityType || !strings.HasPrefix(inv.InvoiceNumber, prefix) {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimPrefix(inv.InvoiceNumber, prefix))
		if err == nil && int32(seq) > highest {
			highest = int32(seq)
		}
	}
	s.st.counters[key] = highest
	return highest, nil
}

// SetInvoiceSequence overwrites a numbering counter, e.g. to simulate one
// that lags behind imported invoices.
func (s *Store) SetInvoiceSequence(tenantID uuid.UUID, entityType string, year int32, value int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.counters[counterKey{tenant: tenantID, entityType: entityType, year: year}] = value
}

// =============================================================================
// Billing accounts
// =============================================================================

func (s *Store) table(entityType string) map[[16]byte]repository.BillingAccount {
	if entityType == "tenant" {
		return s.st.tenants
	}
	return s.st.clubs
}

func (s *Store) getAccount(entityType string, id pgtype.UUID) (repository.BillingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.table(entityType)[id.Bytes]
	if !ok {
		return repository.BillingAccount{}, pgx.ErrNoRows
	}
	return acc, nil
}

func (s *Store) mutateAccount(entityType string, id pgtype.UUID, fn func(acc *repository.BillingAccount) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.table(entityType)
	acc, ok := tbl[id.Bytes]
	if !ok || !fn(&acc) {
		return 0
	}
	tbl[id.Bytes] = acc
	return 1
}

func (s *Store) suspend(entityType string, arg repository.SuspendAccountParams) int64 {
	return s.mutateAccount(entityType, arg.ID, func(acc *repository.BillingAccount) bool {
		if acc.SuspendedAt.Valid {
			return false
		}
		acc.SuspendedAt = s.now()
		acc.SuspensionReason = arg.Reason
		return true
	})
}

func (s *Store) reactivate(entityType string, id pgtype.UUID) int64 {
	return s.mutateAccount(entityType, id, func(acc *repository.BillingAccount) bool {
		if !acc.SuspendedAt.Valid {
			return false
		}
		acc.SuspendedAt = pgtype.Timestamptz{}
		acc.SuspensionReason = pgtype.Text{}
		return true
	})
}

func (s *Store) setOverdue(entityType string, arg repository.SetPaymentOverdueParams) {
	s.mutateAccount(entityType, arg.ID, func(acc *repository.BillingAccount) bool {
		if !acc.PaymentOverdueSince.Valid {
			acc.PaymentOverdueSince = arg.Since
		}
		return true
	})
}

func (s *Store) clearOverdue(entityType string, id pgtype.UUID) {
	s.mutateAccount(entityType, id, func(acc *repository.BillingAccount) bool {
		acc.PaymentOverdueSince = pgtype.Timestamptz{}
		return true
	})
}

func (s *Store) extend(entityType string, arg repository.ExtendSubscriptionParams) {
	s.mutateAccount(entityType, arg.ID, func(acc *repository.BillingAccount) bool {
		if !acc.SubscriptionEndsAt.Valid || acc.SubscriptionEndsAt.Time.Before(arg.EndsAt.Time) {
			acc.SubscriptionEndsAt = arg.EndsAt
		}
		return true
	})
}

func (s *Store) setCustomer(entityType string, arg repository.SetStripeCustomerParams) {
	s.mutateAccount(entityType, arg.ID, func(acc *repository.BillingAccount) bool {
		acc.StripeCustomerID = arg.StripeCustomerID
		return true
	})
}

func (s *Store) GetClubAccount(ctx context.Context, id pgtype.UUID) (repository.BillingAccount, error) {
	return s.getAccount("club", id)
}

func (s *Store) GetTenantAccount(ctx context.Context, id pgtype.UUID) (repository.BillingAccount, error) {
	return s.getAccount("tenant", id)
}

func (s *Store) SuspendClub(ctx context.Context, arg repository.SuspendAccountParams) (int64, error) {
	return s.suspend("club", arg), nil
}

func (s *Store) SuspendTenant(ctx context.Context, arg repository.SuspendAccountParams) (int64, error) {
	return s.suspend("tenant", arg), nil
}

func (s *Store) ReactivateClub(ctx context.Context, id pgtype.UUID) (int64, error) {
	return s.reactivate("club", id), nil
}

func (s *Store) ReactivateTenant(ctx context.Context, id pgtype.UUID) (int64, error) {
	return s.reactivate("tenant", id), nil
}

func (s *Store) SetClubPaymentOverdue(ctx context.Context, arg repository.SetPaymentOverdueParams) error {
	s.setOverdue("club", arg)
	return nil
}

func (s *Store) SetTenantPaymentOverdue(ctx context.Context, arg repository.SetPaymentOverdueParams) error {
	s.setOverdue("tenant", arg)
	return nil
}

func (s *Store) ClearClubPaymentOverdue(ctx context.Context, id pgtype.UUID) error {
	s.clearOverdue("club", id)
	return nil
}

func (s *Store) ClearTenantPaymentOverdue(ctx context.Context, id pgtype.UUID) error {
	s.clearOverdue("tenant", id)
	return nil
}

func (s *Store) ExtendClubSubscription(ctx context.Context, arg repository.ExtendSubscriptionParams) error {
	s.extend("club", arg)
	return nil
}

func (s *Store) ExtendTenantSubscription(ctx context.Context, arg repository.ExtendSubscriptionParams) error {
	s.extend("tenant", arg)
	return nil
}

func (s *Store) SetClubStripeCustomer(ctx context.Context, arg repository.SetStripeCustomerParams) error {
	s.setCustomer("club", arg)
	return nil
}

func (s *Store) SetTenantStripeCustomer(ctx context.Context, arg repository.SetStripeCustomerParams) error {
	s.setCustomer("tenant", arg)
	return nil
}

// =============================================================================
// Gateway events
// =============================================================================

func (s *Store) GetGatewayEvent(ctx context.Context, eventID string) (repository.GatewayEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.st.events[eventID]
	if !ok {
		return repository.GatewayEvent{}, pgx.ErrNoRows
	}
	return ev, nil
}

func (s *Store) RecordGatewayEvent(ctx context.Context, arg repository.RecordGatewayEventParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.events[arg.EventID]; ok {
		return 0, nil
	}
	s.st.events[arg.EventID] = repository.GatewayEvent{
		EventID:          arg.EventID,
		EventType:        arg.EventType,
		GatewayInvoiceID: arg.GatewayInvoiceID,
		ProcessedAt:      s.now(),
	}
	return 1, nil
}
