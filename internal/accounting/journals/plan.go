package journals

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/tax"
)

// Side is the column a plan line posts to.
type Side int

const (
	Debit Side = iota
	Credit
)

func (s Side) flip() Side {
	if s == Debit {
		return Credit
	}
	return Debit
}

// figures holds the amounts a plan line can reference.
type figures struct {
	gross      decimal.Decimal
	net        decimal.Decimal
	vat        decimal.Decimal
	ewt        decimal.Decimal
	wvat       decimal.Decimal
	receivable decimal.Decimal
	cash       decimal.Decimal
	cost       decimal.Decimal
	// flip swaps every line side; set for decreasing adjustments and reversals.
	flip bool
}

type subSource int

const (
	subNone subSource = iota
	subCounterparty
	subBank
)

type planLine struct {
	role   accounts.Role
	side   Side
	amount func(f figures) decimal.Decimal
	when   func(e Event) bool
	sub    subSource
}

type linePlan struct {
	module  shared.Module
	prepare func(e Event) (figures, error)
	lines   []planLine
}

func gross(f figures) decimal.Decimal      { return f.gross }
func net(f figures) decimal.Decimal        { return f.net }
func vat(f figures) decimal.Decimal        { return f.vat }
func ewt(f figures) decimal.Decimal        { return f.ewt }
func wvat(f figures) decimal.Decimal       { return f.wvat }
func receivable(f figures) decimal.Decimal { return f.receivable }
func cash(f figures) decimal.Decimal       { return f.cash }
func cost(f figures) decimal.Decimal       { return f.cost }

func cashPlusWithheld(f figures) decimal.Decimal {
	return f.cash.Add(f.ewt).Add(f.wvat)
}

func isCOD(e Event) bool              { return e.COD }
func onCredit(e Event) bool           { return !e.COD }
func withholdingBooked(e Event) bool  { return e.WithholdingBooked }
func withholdingPending(e Event) bool { return !e.WithholdingBooked }

func vatTypeOf(e Event) tax.VatType {
	if e.VatType == "" {
		return tax.Vatable
	}
	return e.VatType
}

func prepareSale(e Event) (figures, error) {
	b := tax.Split(e.Amount, vatTypeOf(e))
	ewtAmt, wvatAmt, err := tax.Withholding(b.Net, e.EwtRate, e.WvatRate)
	if err != nil {
		return figures{}, err
	}
	return figures{
		gross:      b.Gross,
		net:        b.Net,
		vat:        b.Vat,
		ewt:        ewtAmt,
		wvat:       wvatAmt,
		receivable: tax.NetOfEwt(b.Gross, ewtAmt.Add(wvatAmt)),
	}, nil
}

func prepareCollection(e Event) (figures, error) {
	base := tax.Round(e.Amount)
	if e.TaxBase != nil {
		base = tax.Round(*e.TaxBase)
	}
	ewtAmt, wvatAmt, err := tax.Withholding(base, e.EwtRate, e.WvatRate)
	if err != nil {
		return figures{}, err
	}
	return figures{cash: tax.Round(e.Amount), ewt: ewtAmt, wvat: wvatAmt}, nil
}

func preparePurchase(e Event) (figures, error) {
	b := tax.Split(e.Amount, vatTypeOf(e))
	return figures{gross: b.Gross, net: b.Net, vat: b.Vat}, nil
}

func prepareDelivery(e Event) (figures, error) {
	return figures{cost: tax.Round(e.Quantity.Mul(e.UnitCost))}, nil
}

func prepareAmount(e Event) (figures, error) {
	return figures{gross: tax.Round(e.Amount)}, nil
}

func prepareReversedAmount(e Event) (figures, error) {
	return figures{gross: tax.Round(e.Amount), flip: true}, nil
}

// delta runs inner on |new - old| and flips the sides when the amount decreased.
func delta(inner func(Event) (figures, error)) func(Event) (figures, error) {
	return func(e Event) (figures, error) {
		diff := tax.Round(e.NewAmount.Sub(e.OldAmount))
		if diff.IsZero() {
			return figures{}, shared.ErrNothingToPost
		}
		scaled := e
		scaled.Amount = diff.Abs()
		f, err := inner(scaled)
		if err != nil {
			return figures{}, err
		}
		f.flip = diff.IsNegative()
		return f, nil
	}
}

func salePlan(revenue accounts.Role, module shared.Module, prepare func(Event) (figures, error)) linePlan {
	return linePlan{
		module:  module,
		prepare: prepare,
		lines: []planLine{
			{role: accounts.RoleARTrade, side: Debit, amount: receivable, when: onCredit, sub: subCounterparty},
			{role: accounts.RoleCashInBank, side: Debit, amount: receivable, when: isCOD, sub: subBank},
			{role: accounts.RoleARTradeCWT, side: Debit, amount: ewt, sub: subCounterparty},
			{role: accounts.RoleARTradeCWV, side: Debit, amount: wvat, sub: subCounterparty},
			{role: revenue, side: Credit, amount: net},
			{role: accounts.RoleVatOutput, side: Credit, amount: vat},
		},
	}
}

func inTransitPlan(prepare func(Event) (figures, error)) linePlan {
	return linePlan{
		module:  shared.ModulePurchases,
		prepare: prepare,
		lines: []planLine{
			{role: accounts.RoleInventoryInTransit, side: Debit, amount: gross},
			{role: accounts.RoleAPTrade, side: Credit, amount: gross, sub: subCounterparty},
		},
	}
}

func accrualPlan(expense, payable accounts.Role) linePlan {
	return linePlan{
		module:  shared.ModuleAdjustment,
		prepare: delta(prepareAmount),
		lines: []planLine{
			{role: expense, side: Debit, amount: gross},
			{role: payable, side: Credit, amount: gross, sub: subCounterparty},
		},
	}
}

var plans = map[Kind]linePlan{
	KindDocumentedSale: salePlan(accounts.RoleSales, shared.ModuleSales, prepareSale),
	KindServiceSale:    salePlan(accounts.RoleServiceRevenue, shared.ModuleSales, prepareSale),
	KindCollection: {
		module:  shared.ModuleCollection,
		prepare: prepareCollection,
		lines: []planLine{
			{role: accounts.RoleCashInBank, side: Debit, amount: cash, sub: subBank},
			{role: accounts.RoleCWTAsset, side: Debit, amount: ewt},
			{role: accounts.RoleCWVAsset, side: Debit, amount: wvat},
			{role: accounts.RoleARTrade, side: Credit, amount: cashPlusWithheld, when: withholdingPending, sub: subCounterparty},
			{role: accounts.RoleARTrade, side: Credit, amount: cash, when: withholdingBooked, sub: subCounterparty},
			{role: accounts.RoleARTradeCWT, side: Credit, amount: ewt, when: withholdingBooked, sub: subCounterparty},
			{role: accounts.RoleARTradeCWV, side: Credit, amount: wvat, when: withholdingBooked, sub: subCounterparty},
		},
	},
	KindPurchaseReceipt: {
		module:  shared.ModulePurchases,
		prepare: preparePurchase,
		lines: []planLine{
			{role: accounts.RoleInventory, side: Debit, amount: net},
			{role: accounts.RoleVatInput, side: Debit, amount: vat},
			{role: accounts.RoleAPTrade, side: Credit, amount: gross, sub: subCounterparty},
		},
	},
	KindDelivery: {
		module:  shared.ModuleInventory,
		prepare: prepareDelivery,
		lines: []planLine{
			{role: accounts.RoleCOGS, side: Debit, amount: cost},
			{role: accounts.RoleInventory, side: Credit, amount: cost},
		},
	},
	KindInTransitAccrual:     inTransitPlan(prepareAmount),
	KindInTransitReversal:    inTransitPlan(prepareReversedAmount),
	KindPriceAdjustment:      salePlan(accounts.RoleSales, shared.ModuleAdjustment, delta(prepareSale)),
	KindCommissionAdjustment: accrualPlan(accounts.RoleCommissionExpense, accounts.RoleCommissionPayable),
	KindFreightAdjustment:    accrualPlan(accounts.RoleFreightExpense, accounts.RoleFreightPayable),
}
