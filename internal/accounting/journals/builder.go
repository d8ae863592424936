// Package journals turns business events into balanced ledger batches.
//
// Each event kind maps to a line plan: an ordered list of account roles,
// sides and amount expressions. Builder interprets the plan against a
// company's account catalog and refuses to release an unbalanced batch.
package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/tax"
)

// Builder produces ledger lines from events.
type Builder struct {
	roles accounts.RoleMap
	now   func() time.Time
	newID func() uuid.UUID
}

// NewBuilder constructs a builder; nil roles selects the default role map.
func NewBuilder(roles accounts.RoleMap) *Builder {
	if roles == nil {
		roles = accounts.DefaultRoleMap()
	}
	return &Builder{roles: roles, now: time.Now, newID: uuid.New}
}

// WithNow overrides the clock used for created-at timestamps.
func (b *Builder) WithNow(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// Build interprets the plan of ev.Kind against catalog.
func (b *Builder) Build(catalog *accounts.Catalog, ev Event) ([]shared.LedgerEntry, error) {
	if ev.Date.IsZero() {
		ev.Date = ev.DefaultDate(time.Time{})
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.Kind == KindManual {
		return b.buildManual(catalog, ev)
	}
	plan, ok := plans[ev.Kind]
	if !ok {
		return nil, shared.InvalidArgument("unsupported event kind %q", ev.Kind)
	}
	figs, err := plan.prepare(ev)
	if err != nil {
		return nil, fmt.Errorf("journals: %s %s: %w", ev.Kind, ev.Reference, err)
	}

	batchID := b.newID()
	createdAt := b.now()
	module := plan.module
	if ev.Module != "" {
		module = ev.Module
	}
	description := ev.Description
	if description == "" {
		description = defaultDescription(ev)
	}

	entries := make([]shared.LedgerEntry, 0, len(plan.lines))
	for _, line := range plan.lines {
		if line.when != nil && !line.when(ev) {
			continue
		}
		amount := line.amount(figs)
		if !amount.IsPositive() {
			continue
		}
		acct, err := catalog.Resolve(b.roles, line.role)
		if err != nil {
			return nil, err
		}
		side := line.side
		if figs.flip {
			side = side.flip()
		}
		entry := newEntry(ev, batchID, createdAt, module, description, acct, side, amount)
		entry.SubAccount = pickSubAccount(ev, line.sub)
		entries = append(entries, entry)
	}
	return finish(ev.Reference, entries)
}

func (b *Builder) buildManual(catalog *accounts.Catalog, ev Event) ([]shared.LedgerEntry, error) {
	batchID := b.newID()
	createdAt := b.now()
	module := ev.Module
	if module == "" {
		module = shared.ModuleGeneral
	}
	entries := make([]shared.LedgerEntry, 0, len(ev.Lines))
	for _, l := range ev.Lines {
		acct, ok := catalog.ByNumber(l.AccountNumber)
		if !ok {
			return nil, &shared.AccountNotFoundError{Role: "manual", Number: l.AccountNumber}
		}
		description := l.Description
		if description == "" {
			description = ev.Description
		}
		side, amount := Debit, tax.Round(l.Debit)
		if !amount.IsPositive() {
			side, amount = Credit, tax.Round(l.Credit)
		}
		if !amount.IsPositive() {
			continue
		}
		entry := newEntry(ev, batchID, createdAt, module, description, acct, side, amount)
		if !l.SubAccount.IsZero() {
			sub := *l.SubAccount
			entry.SubAccount = &sub
		}
		entries = append(entries, entry)
	}
	return finish(ev.Reference, entries)
}

func finish(reference string, entries []shared.LedgerEntry) ([]shared.LedgerEntry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrNothingToPost, reference)
	}
	if err := shared.CheckBalanced(reference, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func newEntry(ev Event, batchID uuid.UUID, createdAt time.Time, module shared.Module, description string, acct accounts.AccountTitle, side Side, amount decimal.Decimal) shared.LedgerEntry {
	entry := shared.LedgerEntry{
		BatchID:       batchID,
		Date:          ev.Date,
		Reference:     ev.Reference,
		Description:   description,
		AccountID:     acct.ID,
		AccountNumber: acct.Number,
		AccountName:   acct.Name,
		Debit:         decimal.Zero,
		Credit:        decimal.Zero,
		CompanyCode:   ev.Company,
		CreatedBy:     ev.ActorID,
		CreatedAt:     createdAt,
		Module:        module,
		Posted:        true,
	}
	if side == Debit {
		entry.Debit = amount
	} else {
		entry.Credit = amount
	}
	return entry
}

func pickSubAccount(ev Event, src subSource) *shared.SubAccount {
	var sub *shared.SubAccount
	switch src {
	case subCounterparty:
		sub = ev.Counterparty
	case subBank:
		sub = ev.Bank
	}
	if sub.IsZero() {
		return nil
	}
	cp := *sub
	return &cp
}

func defaultDescription(ev Event) string {
	label := strings.ToLower(strings.ReplaceAll(string(ev.Kind), "_", " "))
	if ev.Counterparty != nil && ev.Counterparty.Name != "" {
		return fmt.Sprintf("%s %s - %s", label, ev.Reference, ev.Counterparty.Name)
	}
	return fmt.Sprintf("%s %s", label, ev.Reference)
}
