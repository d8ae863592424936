package accounts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Role names the purpose an account serves in a journal line plan.
type Role string

const (
	RoleCashInBank         Role = "cash_in_bank"
	RoleARTrade            Role = "ar_trade"
	RoleARTradeCWT         Role = "ar_trade_cwt"
	RoleARTradeCWV         Role = "ar_trade_cwv"
	RoleInventory          Role = "inventory"
	RoleInventoryInTransit Role = "inventory_in_transit"
	RoleCWTAsset           Role = "cwt_asset"
	RoleCWVAsset           Role = "cwv_asset"
	RoleVatInput           Role = "vat_input"
	RoleAPTrade            Role = "ap_trade"
	RoleVatOutput          Role = "vat_output"
	RoleCommissionPayable  Role = "commission_payable"
	RoleFreightPayable     Role = "freight_payable"
	RoleSales              Role = "sales"
	RoleServiceRevenue     Role = "service_revenue"
	RoleCOGS               Role = "cogs"
	RoleCommissionExpense  Role = "commission_expense"
	RoleFreightExpense     Role = "freight_expense"
)

var defaultRoles = RoleMap{
	RoleCashInBank:         "1010",
	RoleARTrade:            "1100",
	RoleARTradeCWT:         "1101",
	RoleARTradeCWV:         "1102",
	RoleInventory:          "1200",
	RoleInventoryInTransit: "1210",
	RoleCWTAsset:           "1300",
	RoleCWVAsset:           "1301",
	RoleVatInput:           "1310",
	RoleAPTrade:            "2010",
	RoleVatOutput:          "2100",
	RoleCommissionPayable:  "2200",
	RoleFreightPayable:     "2210",
	RoleSales:              "4010",
	RoleServiceRevenue:     "4100",
	RoleCOGS:               "5010",
	RoleCommissionExpense:  "6100",
	RoleFreightExpense:     "6200",
}

// RoleMap maps roles to account numbers of the chart.
type RoleMap map[Role]string

// DefaultRoleMap returns a copy of the standard role assignment.
func DefaultRoleMap() RoleMap {
	out := make(RoleMap, len(defaultRoles))
	for k, v := range defaultRoles {
		out[k] = v
	}
	return out
}

// ParseRoleMap overlays overrides onto the default roles. Unknown roles are rejected.
func ParseRoleMap(overrides map[string]string) (RoleMap, error) {
	out := DefaultRoleMap()
	for k, v := range overrides {
		role := Role(strings.ToLower(strings.TrimSpace(k)))
		if _, known := defaultRoles[role]; !known {
			return nil, shared.InvalidArgument("unknown account role %q", k)
		}
		number := strings.TrimSpace(v)
		if number == "" {
			return nil, shared.InvalidArgument("account role %q mapped to empty number", k)
		}
		out[role] = number
	}
	return out, nil
}

// Validate checks that every mapped number exists in catalog.
func (m RoleMap) Validate(catalog *Catalog) error {
	var missing []string
	for role, number := range m {
		if _, ok := catalog.ByNumber(number); !ok {
			missing = append(missing, fmt.Sprintf("%s=%s", role, number))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &shared.PreconditionError{Err: shared.ErrAccountNotFound, Blocking: missing}
}
