package accounts

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CachedLoader builds catalogs per company, sharing one in-flight load between callers.
type CachedLoader struct {
	repo  Repository
	group singleflight.Group

	mu       sync.RWMutex
	catalogs map[string]*Catalog
}

// NewCachedLoader wraps repo.
func NewCachedLoader(repo Repository) *CachedLoader {
	return &CachedLoader{repo: repo, catalogs: make(map[string]*Catalog)}
}

// Catalog returns the cached catalog of company, loading it on first use.
func (l *CachedLoader) Catalog(ctx context.Context, company string) (*Catalog, error) {
	l.mu.RLock()
	cat, ok := l.catalogs[company]
	l.mu.RUnlock()
	if ok {
		return cat, nil
	}

	v, err, _ := l.group.Do(company, func() (any, error) {
		titles, err := l.repo.GetAccountTitles(ctx, company)
		if err != nil {
			return nil, fmt.Errorf("accounts: load chart for %s: %w", company, err)
		}
		cat, err := NewCatalog(titles)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.catalogs[company] = cat
		l.mu.Unlock()
		return cat, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog), nil
}

// Invalidate drops the cached catalog of company.
func (l *CachedLoader) Invalidate(company string) {
	l.mu.Lock()
	delete(l.catalogs, company)
	l.mu.Unlock()
}
