package accounts

import (
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Catalog indexes a company's full chart of accounts.
type Catalog struct {
	titles   []AccountTitle
	byID     map[int64]AccountTitle
	byNumber map[string]AccountTitle
}

// NewCatalog indexes titles; duplicate ids or numbers are rejected.
func NewCatalog(titles []AccountTitle) (*Catalog, error) {
	c := &Catalog{
		titles:   make([]AccountTitle, 0, len(titles)),
		byID:     make(map[int64]AccountTitle, len(titles)),
		byNumber: make(map[string]AccountTitle, len(titles)),
	}
	for _, t := range titles {
		if _, dup := c.byID[t.ID]; dup {
			return nil, shared.InvalidArgument("duplicate account id %d", t.ID)
		}
		if _, dup := c.byNumber[t.Number]; dup {
			return nil, shared.InvalidArgument("duplicate account number %s", t.Number)
		}
		c.byID[t.ID] = t
		c.byNumber[t.Number] = t
		c.titles = append(c.titles, t)
	}
	sort.Slice(c.titles, func(i, j int) bool { return c.titles[i].Number < c.titles[j].Number })
	return c, nil
}

// All returns every account ordered by number.
func (c *Catalog) All() []AccountTitle {
	return append([]AccountTitle(nil), c.titles...)
}

// ByNumber finds an account by exact number.
func (c *Catalog) ByNumber(number string) (AccountTitle, bool) {
	t, ok := c.byNumber[number]
	return t, ok
}

// ByID finds an account by id.
func (c *Catalog) ByID(id int64) (AccountTitle, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Root walks the parent chain of id up to its top-level account.
func (c *Catalog) Root(id int64) (AccountTitle, error) {
	current, ok := c.byID[id]
	if !ok {
		return AccountTitle{}, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	seen := map[int64]struct{}{current.ID: {}}
	for current.ParentID != nil {
		parent, ok := c.byID[*current.ParentID]
		if !ok {
			return AccountTitle{}, fmt.Errorf("%w: parent %d of %s", shared.ErrAccountNotFound, *current.ParentID, current.Number)
		}
		if _, loop := seen[parent.ID]; loop {
			return AccountTitle{}, shared.InvalidArgument("account hierarchy cycle at %s", parent.Number)
		}
		seen[parent.ID] = struct{}{}
		current = parent
	}
	return current, nil
}

// Resolve maps a role to its account through roles.
func (c *Catalog) Resolve(roles RoleMap, role Role) (AccountTitle, error) {
	number, ok := roles[role]
	if !ok || number == "" {
		return AccountTitle{}, &shared.AccountNotFoundError{Role: string(role)}
	}
	t, ok := c.byNumber[number]
	if !ok {
		return AccountTitle{}, &shared.AccountNotFoundError{Role: string(role), Number: number}
	}
	return t, nil
}
