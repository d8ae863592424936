package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/tax"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/events"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort is the transactional store behind Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes of one posting.
type TxRepository interface {
	GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (Document, error)
	GetDocumentByNumberForUpdate(ctx context.Context, company, number string) (Document, error)
	UpdateDocument(ctx context.Context, doc Document, at time.Time) error
	GetPeriodForShare(ctx context.Context, company string, fp periods.FiscalPeriod) (periods.Period, error)
	Sequences() sequence.Store
	InsertLedgerEntries(ctx context.Context, entries []shared.LedgerEntry) error
	InsertBookRows(ctx context.Context, rows []shared.SubsidiaryBookRow) error
	ListEntriesByReference(ctx context.Context, company, reference string) ([]shared.LedgerEntry, error)
	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (Invoice, error)
	UpdateInvoiceBalance(ctx context.Context, inv Invoice) error
	InsertApplication(ctx context.Context, app AppliedInvoice) error
	ListOpenApplications(ctx context.Context, batchID uuid.UUID) ([]AppliedInvoice, error)
	MarkApplicationsReversed(ctx context.Context, batchID uuid.UUID, at time.Time) error
}

// CatalogSource yields a company's account catalog.
type CatalogSource interface {
	Catalog(ctx context.Context, company string) (*accounts.Catalog, error)
}

// AuditPort records postings after commit.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// PostingMetrics counts committed batches.
type PostingMetrics interface {
	ObservePosting(company, kind string)
}

// Service posts business documents into the general ledger.
type Service struct {
	repo      RepositoryPort
	catalogs  CatalogSource
	builder   *journals.Builder
	sequences *sequence.Generator
	audit     AuditPort
	publisher events.Publisher
	metrics   PostingMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the posting service.
func NewService(repo RepositoryPort, catalogs CatalogSource, builder *journals.Builder, audit AuditPort, publisher events.Publisher, logger *slog.Logger) *Service {
	if builder == nil {
		builder = journals.NewBuilder(nil)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		catalogs:  catalogs,
		builder:   builder,
		sequences: sequence.NewGenerator(nil),
		audit:     audit,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock of the service and its builder.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.builder.WithNow(now)
	}
}

// WithMetrics attaches a posting counter.
func (s *Service) WithMetrics(m PostingMetrics) {
	s.metrics = m
}

// Post books a pending document: numbers it if needed, writes its balanced
// batch and book rows, settles invoices and marks it POSTED, all in one
// transaction.
func (s *Service) Post(ctx context.Context, req PostingRequest) (PostingResult, error) {
	if req.DocumentID == uuid.Nil {
		return PostingResult{}, shared.InvalidArgument("document id required")
	}
	if len(req.Applications) > 0 && req.Event.Kind != journals.KindCollection {
		return PostingResult{}, shared.InvalidArgument("invoice applications require a collection event")
	}
	var result PostingResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if err := ValidateDocumentTransition(doc.Status, DocumentPosted); err != nil {
			return err
		}
		ev := req.Event
		ev.Company = doc.Company
		if ev.Date.IsZero() {
			ev.Date = ev.DefaultDate(doc.Date)
		}
		if ev.ActorID == 0 {
			ev.ActorID = req.ActorID
		}
		if !periods.Of(ev.Date).Contains(doc.Date) {
			return shared.InvalidArgument("event date %s outside document period %s", ev.Date.Format("2006-01-02"), periods.Of(doc.Date))
		}
		if err := s.ensurePeriodOpen(ctx, tx, doc.Company, ev.Date); err != nil {
			return err
		}
		if doc.Number == "" {
			number, err := s.sequences.Issue(ctx, tx.Sequences(), doc.Company, doc.Type, doc.Variant, doc.ID)
			if err != nil {
				return err
			}
			doc.Number = number
		}
		ev.Reference = doc.Number

		catalog, err := s.catalogs.Catalog(ctx, doc.Company)
		if err != nil {
			return err
		}
		entries, err := s.builder.Build(catalog, ev)
		if err != nil {
			return err
		}
		books := ProjectBooks(entries)
		if err := tx.InsertLedgerEntries(ctx, entries); err != nil {
			return err
		}
		if err := tx.InsertBookRows(ctx, books); err != nil {
			return err
		}
		if err := s.applyCollection(ctx, tx, doc, ev, entries, req.Applications); err != nil {
			return err
		}
		doc.Status = DocumentPosted
		if err := tx.UpdateDocument(ctx, doc, s.now()); err != nil {
			return err
		}
		result = PostingResult{Document: doc, BatchID: entries[0].BatchID, Entries: entries, Books: books}
		return nil
	})
	if err != nil {
		return PostingResult{}, err
	}

	debit, _ := shared.Totals(result.Entries)
	s.logger.Info("ledger batch posted",
		slog.String("company", result.Document.Company),
		slog.String("reference", result.Document.Number),
		slog.String("batch_id", result.BatchID.String()),
		slog.Int("lines", len(result.Entries)),
		slog.String("amount", debit.StringFixed(tax.Precision)),
	)
	if s.metrics != nil {
		s.metrics.ObservePosting(result.Document.Company, "posted")
	}
	s.recordAudit(ctx, req.ActorID, "ledger.post", result.Document, map[string]any{
		"batch_id": result.BatchID.String(),
		"kind":     string(req.Event.Kind),
		"amount":   debit.StringFixed(tax.Precision),
	})
	s.publish(ctx, events.TypeBatchPosted, result.Document, map[string]any{
		"batch_id":  result.BatchID,
		"reference": result.Document.Number,
		"doc_type":  result.Document.Type,
		"amount":    debit.StringFixed(tax.Precision),
	})
	return result, nil
}

// Reverse offsets every line posted under a reference with a new batch and
// voids the document. Originals are never touched.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (ReverseResult, error) {
	if strings.TrimSpace(in.Company) == "" || strings.TrimSpace(in.Reference) == "" {
		return ReverseResult{}, shared.InvalidArgument("company and reference required")
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	var result ReverseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentByNumberForUpdate(ctx, in.Company, in.Reference)
		if err != nil {
			return err
		}
		original, err := tx.ListEntriesByReference(ctx, in.Company, in.Reference)
		if err != nil {
			return err
		}
		for _, line := range original {
			if line.ReversalOf != nil {
				return fmt.Errorf("%w: %s", shared.ErrAlreadyReversed, in.Reference)
			}
		}
		if len(original) == 0 {
			return fmt.Errorf("%w: %s", shared.ErrEntriesNotFound, in.Reference)
		}
		if err := ValidateDocumentTransition(doc.Status, DocumentVoided); err != nil {
			return err
		}
		if err := s.ensurePeriodOpen(ctx, tx, in.Company, in.Date); err != nil {
			return err
		}
		reversal, err := s.builder.BuildReversal(original, journals.ReversalInput{Reason: in.Reason, Date: in.Date, ActorID: in.ActorID})
		if err != nil {
			return err
		}
		if err := tx.InsertLedgerEntries(ctx, reversal); err != nil {
			return err
		}
		if err := tx.InsertBookRows(ctx, ProjectBooks(reversal)); err != nil {
			return err
		}
		restored, err := s.restoreApplications(ctx, tx, original)
		if err != nil {
			return err
		}
		doc.Status = DocumentVoided
		if err := tx.UpdateDocument(ctx, doc, s.now()); err != nil {
			return err
		}
		result = ReverseResult{Document: doc, BatchID: reversal[0].BatchID, Entries: reversal, Restored: restored}
		return nil
	})
	if err != nil {
		return ReverseResult{}, err
	}

	s.logger.Info("ledger batch reversed",
		slog.String("company", in.Company),
		slog.String("reference", in.Reference),
		slog.String("batch_id", result.BatchID.String()),
		slog.String("reason", in.Reason),
	)
	if s.metrics != nil {
		s.metrics.ObservePosting(in.Company, "reversed")
	}
	s.recordAudit(ctx, in.ActorID, "ledger.reverse", result.Document, map[string]any{
		"batch_id": result.BatchID.String(),
		"reason":   in.Reason,
	})
	s.publish(ctx, events.TypeBatchReversed, result.Document, map[string]any{
		"batch_id":  result.BatchID,
		"reference": in.Reference,
		"reason":    in.Reason,
	})
	return result, nil
}

func (s *Service) ensurePeriodOpen(ctx context.Context, tx TxRepository, company string, date time.Time) error {
	p, err := tx.GetPeriodForShare(ctx, company, periods.Of(date))
	if err != nil {
		return err
	}
	if !p.AcceptsPostings() {
		return fmt.Errorf("%w: %s %s is %s", shared.ErrPeriodLocked, company, p.Fiscal, p.Status)
	}
	return nil
}

func (s *Service) applyCollection(ctx context.Context, tx TxRepository, doc Document, ev journals.Event, entries []shared.LedgerEntry, apps []Application) error {
	if len(apps) == 0 {
		return nil
	}
	if ev.Counterparty.IsZero() || ev.Counterparty.Type != shared.SubAccountCustomer {
		return shared.InvalidArgument("invoice applications require a customer counterparty")
	}
	applied := decimal.Zero
	for _, app := range apps {
		if !app.Amount.IsPositive() {
			return shared.InvalidArgument("application to invoice %s must be positive", app.InvoiceID)
		}
		applied = applied.Add(tax.Round(app.Amount))
	}
	credited := customerCredit(entries, ev.Counterparty)
	if applied.GreaterThan(credited) {
		return shared.InvalidArgument("applications of %s exceed %s credited to customer %s",
			applied.StringFixed(tax.Precision), credited.StringFixed(tax.Precision), ev.Counterparty.ID)
	}

	batchID := entries[0].BatchID
	for _, app := range apps {
		inv, err := tx.GetInvoiceForUpdate(ctx, app.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Company != doc.Company {
			return shared.InvalidArgument("invoice %s belongs to %s", inv.Number, inv.Company)
		}
		if inv.CustomerID != ev.Counterparty.ID {
			return shared.InvalidArgument("invoice %s belongs to customer %s, not %s", inv.Number, inv.CustomerID, ev.Counterparty.ID)
		}
		inv.Outstanding = tax.Round(inv.Outstanding.Sub(app.Amount))
		inv.Status = PaymentStatusFor(inv.Total, inv.Outstanding)
		if err := tx.UpdateInvoiceBalance(ctx, inv); err != nil {
			return err
		}
		if err := tx.InsertApplication(ctx, AppliedInvoice{
			BatchID:   batchID,
			InvoiceID: inv.ID,
			Reference: doc.Number,
			Amount:    tax.Round(app.Amount),
			AppliedAt: s.now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// customerCredit sums the receivable credits a batch booked against the
// customer's sub-ledger.
func customerCredit(entries []shared.LedgerEntry, customer *shared.SubAccount) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.SubAccount.IsZero() || e.SubAccount.Type != customer.Type || e.SubAccount.ID != customer.ID {
			continue
		}
		total = total.Add(e.Credit)
	}
	return total
}

func (s *Service) restoreApplications(ctx context.Context, tx TxRepository, original []shared.LedgerEntry) ([]AppliedInvoice, error) {
	seen := make(map[uuid.UUID]struct{})
	var restored []AppliedInvoice
	for _, line := range original {
		if _, ok := seen[line.BatchID]; ok {
			continue
		}
		seen[line.BatchID] = struct{}{}
		apps, err := tx.ListOpenApplications(ctx, line.BatchID)
		if err != nil {
			return nil, err
		}
		for _, app := range apps {
			inv, err := tx.GetInvoiceForUpdate(ctx, app.InvoiceID)
			if err != nil {
				return nil, err
			}
			inv.Outstanding = tax.Round(inv.Outstanding.Add(app.Amount))
			inv.Status = PaymentStatusFor(inv.Total, inv.Outstanding)
			if err := tx.UpdateInvoiceBalance(ctx, inv); err != nil {
				return nil, err
			}
			restored = append(restored, app)
		}
		if len(apps) > 0 {
			if err := tx.MarkApplicationsReversed(ctx, line.BatchID, s.now()); err != nil {
				return nil, err
			}
		}
	}
	return restored, nil
}

func (s *Service) recordAudit(ctx context.Context, actor int64, action string, doc Document, meta map[string]any) {
	if s.audit == nil {
		return
	}
	meta["company"] = doc.Company
	meta["reference"] = doc.Number
	err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "document",
		EntityID: doc.ID.String(),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, eventType string, doc Document, payload map[string]any) {
	evt, err := events.New(eventType, doc.Company, doc.Number, s.now(), payload)
	if err == nil {
		err = s.publisher.Publish(ctx, evt)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("ledger event not published", slog.String("type", eventType), slog.String("reference", doc.Number), slog.Any("error", err))
	}
}
