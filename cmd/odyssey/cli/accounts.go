package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// ChartSeeder inserts missing chart rows.
type ChartSeeder interface {
	SeedChart(ctx context.Context, titles []accounts.AccountTitle) (int, error)
}

// CatalogBumper announces chart changes to running workers.
type CatalogBumper interface {
	Bump(ctx context.Context, company string) error
}

// SeedOptions defines flags for accounts seed.
type SeedOptions struct {
	Company string
	Stdout  io.Writer
	Stderr  io.Writer
}

// SeedCommand writes the standard chart for a company. Existing accounts are kept.
func SeedCommand(ctx context.Context, seeder ChartSeeder, bumper CatalogBumper, opts SeedOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	company := strings.TrimSpace(opts.Company)
	if company == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "accounts seed: --company is required")
		return exitUsage
	}
	titles := accounts.StandardChart(company)
	if _, err := accounts.NewCatalog(titles); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "accounts seed: %v\n", err)
		return exitError
	}
	inserted, err := seeder.SeedChart(ctx, titles)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "accounts seed: %v\n", err)
		return exitCode(err)
	}
	if inserted > 0 && bumper != nil {
		if err := bumper.Bump(ctx, company); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "accounts seed: notify workers: %v\n", err)
		}
	}
	printer().Fprintf(opts.Stdout, "%s: %d of %d accounts added\n", company, inserted, len(titles))
	return 0
}
