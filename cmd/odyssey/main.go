package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	ledgerclose "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

const usage = `usage: odyssey <command> [flags]

  migrate up|down|version [--steps N]
  period lock|unlock|close --company CO --period YYYY-MM [--actor ID] [--async] [--json]
  sequence next --company CO --type DocType [--variant Documented|Undocumented]
  ledger post --file request.json [--async]
  ledger reverse --company CO --reference NUMBER [--reason TEXT] [--date YYYY-MM-DD] [--actor ID]
  ledger trial-balance --company CO --period YYYY-MM [--json]
  accounts seed --company CO
  jobs trigger close|gl-integrity [--company CO] [--period YYYY-MM] [--actor ID]
  jobs stats [--json]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	rt := &runtime{cfg: cfg, logger: app.NewLogger(cfg)}
	defer rt.close()

	group, action, rest := args[0], args[1], args[2:]
	var target string
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		target, rest = rest[0], rest[1:]
	}
	fs := flag.NewFlagSet(group+" "+action, flag.ContinueOnError)
	fs.SetOutput(stderr)
	company := fs.String("company", "", "company code")
	period := fs.String("period", "", "fiscal period YYYY-MM")
	actor := fs.Int64("actor", 0, "acting user id")
	async := fs.Bool("async", false, "enqueue instead of running inline")
	jsonOut := fs.Bool("json", false, "print JSON")
	steps := fs.Int("steps", 0, "migrations to roll back")
	docType := fs.String("type", "", "document type")
	variant := fs.String("variant", string(sequence.Documented), "series variant")
	file := fs.String("file", "", "posting request JSON")
	reference := fs.String("reference", "", "document number")
	reason := fs.String("reason", "", "reversal reason")
	date := fs.String("date", "", "reversal date YYYY-MM-DD")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	switch group {
	case "migrate":
		return cli.MigrateCommand(db.Migrator{DSN: cfg.PGDSN}, cli.MigrateOptions{Action: action, Steps: *steps, Stdout: stdout, Stderr: stderr})

	case "period":
		pool, err := rt.pool(ctx)
		if err != nil {
			return rt.fail(stderr, err)
		}
		var queue cli.JobQueue
		if *async {
			queue = rt.queue()
		}
		engine := ledgerclose.NewEngine(ledgerclose.NewRepository(pool), rt.publisher(), nil, rt.logger)
		engine.WithNow(app.BusinessClock(cfg.Location()))
		admin := periods.NewService(periods.NewRepository(pool), shared.NewAuditLogger(pool), rt.logger)
		admin.WithNow(app.BusinessClock(cfg.Location()))
		c := cli.NewPeriodCLI(admin, engine, queue)
		opts := cli.PeriodOptions{Company: *company, Period: *period, ActorID: *actor, Async: *async, JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr}
		switch action {
		case "lock":
			return c.LockCommand(ctx, opts)
		case "unlock":
			return c.UnlockCommand(ctx, opts)
		case "close":
			return c.CloseCommand(ctx, opts)
		}

	case "sequence":
		if action != "next" {
			break
		}
		pool, err := rt.pool(ctx)
		if err != nil {
			return rt.fail(stderr, err)
		}
		gen := sequence.NewGenerator(nil)
		preview := cli.PreviewFunc(func(ctx context.Context, company string, docType sequence.DocumentType, variant sequence.Variant) (string, error) {
			return sequence.Preview(ctx, pool, gen, company, docType, variant)
		})
		return cli.SequenceNextCommand(ctx, preview, cli.SequenceOptions{Company: *company, DocType: *docType, Variant: *variant, Stdout: stdout, Stderr: stderr})

	case "ledger":
		pool, err := rt.pool(ctx)
		if err != nil {
			return rt.fail(stderr, err)
		}
		var queue cli.JobQueue
		if *async {
			queue = rt.queue()
		}
		service := accounting.NewService(accounting.NewRepository(pool), accounts.NewCachedLoader(accounts.NewRepository(pool)),
			journals.NewBuilder(cfg.Roles()), shared.NewAuditLogger(pool), rt.publisher(), rt.logger)
		service.WithNow(app.BusinessClock(cfg.Location()))
		c := cli.NewLedgerCLI(service, queue)
		switch action {
		case "post":
			opts := cli.PostOptions{Async: *async, Stdout: stdout, Stderr: stderr}
			if *file != "" {
				f, err := os.Open(*file)
				if err != nil {
					return rt.fail(stderr, err)
				}
				defer f.Close()
				opts.Input = f
			}
			return c.PostCommand(ctx, opts)
		case "trial-balance":
			return cli.TrialBalanceCommand(ctx, trialBalances{pool: pool}, cli.PeriodOptions{
				Company: *company, Period: *period, JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr,
			})
		case "reverse":
			return c.ReverseCommand(ctx, cli.ReverseOptions{
				Company: *company, Reference: *reference, Reason: *reason, Date: *date, ActorID: *actor,
				Stdout: stdout, Stderr: stderr,
			})
		}

	case "accounts":
		if action != "seed" {
			break
		}
		pool, err := rt.pool(ctx)
		if err != nil {
			return rt.fail(stderr, err)
		}
		var bumper cli.CatalogBumper
		if client, err := cache.New(ctx, cfg.Redis()); err != nil {
			rt.logger.Warn("redis unavailable, running workers keep their cached chart", slog.Any("error", err))
		} else {
			defer client.Close()
			bumper = cache.NewInvalidator(client, cache.CatalogChannel)
		}
		return cli.SeedCommand(ctx, chartWriter{pool: pool}, bumper, cli.SeedOptions{Company: *company, Stdout: stdout, Stderr: stderr})

	case "jobs":
		inspector := asynq.NewInspector(cfg.Queue())
		defer inspector.Close()
		c := cli.NewJobsCLI(rt.queue(), inspector)
		switch action {
		case "trigger":
			return c.TriggerCommand(ctx, cli.TriggerOptions{Job: target, Company: *company, Period: *period, ActorID: *actor, Stdout: stdout, Stderr: stderr})
		case "stats":
			return c.StatsCommand(ctx, cli.StatsOptions{JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr})
		}
	}
	_, _ = fmt.Fprint(stderr, usage)
	return 2
}

// runtime opens shared resources on first use.
type runtime struct {
	cfg    *app.Config
	logger *slog.Logger

	db     *pgxpool.Pool
	pub    events.Publisher
	client *jobs.Client
}

func (r *runtime) pool(ctx context.Context) (*pgxpool.Pool, error) {
	if r.db == nil {
		pool, err := db.New(ctx, r.cfg.PGDSN, r.cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		r.db = pool
	}
	return r.db, nil
}

func (r *runtime) publisher() events.Publisher {
	if r.pub == nil {
		r.pub = events.Nop{}
		if len(r.cfg.KafkaBrokers) > 0 {
			r.pub = events.NewKafkaPublisher(r.cfg.KafkaBrokers, r.cfg.LedgerEventsTopic)
		}
	}
	return r.pub
}

func (r *runtime) queue() *jobs.Client {
	if r.client == nil {
		r.client = jobs.NewClient(r.cfg.Queue())
	}
	return r.client
}

func (r *runtime) fail(stderr io.Writer, err error) int {
	_, _ = fmt.Fprintf(stderr, "odyssey: %v\n", err)
	return 1
}

func (r *runtime) close() {
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.Warn("jobs client close", slog.Any("error", err))
		}
	}
	if r.pub != nil {
		if err := r.pub.Close(); err != nil {
			r.logger.Warn("event publisher close", slog.Any("error", err))
		}
	}
	if r.db != nil {
		r.db.Close()
	}
}

type chartWriter struct {
	pool *pgxpool.Pool
}

func (w chartWriter) SeedChart(ctx context.Context, titles []accounts.AccountTitle) (int, error) {
	var inserted int
	err := db.WithTx(ctx, w.pool, "", func(tx pgx.Tx) error {
		n, err := accounts.SeedChart(ctx, tx, titles)
		inserted = n
		return err
	})
	return inserted, err
}

type trialBalances struct {
	pool *pgxpool.Pool
}

func (s trialBalances) TrialBalance(ctx context.Context, company string, fp periods.FiscalPeriod) (reports.TrialBalance, error) {
	titles, err := accounts.LoadAccountTitles(ctx, s.pool, company)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	catalog, err := accounts.NewCatalog(titles)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	balances, err := reports.LoadBalances(ctx, s.pool, company, fp)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	return reports.BuildTrialBalance(catalog, company, fp, balances)
}
