package cli

import (
	"fmt"
	"io"
)

// Migrator applies schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
}

// MigrateOptions defines flags for migrate.
type MigrateOptions struct {
	Action string
	Steps  int
	Stdout io.Writer
	Stderr io.Writer
}

// MigrateCommand runs migrate up, down or version.
func MigrateCommand(m Migrator, opts MigrateOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	var err error
	switch opts.Action {
	case "up":
		err = m.Up()
	case "down":
		if opts.Steps <= 0 {
			_, _ = fmt.Fprintln(opts.Stderr, "migrate down: --steps must be positive")
			return exitUsage
		}
		err = m.Down(opts.Steps)
	case "version":
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: unknown action %q (up, down, version)\n", opts.Action)
		return exitUsage
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate %s: %v\n", opts.Action, err)
		return exitError
	}
	version, dirty, err := m.Version()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate version: %v\n", err)
		return exitError
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	_, _ = fmt.Fprintf(opts.Stdout, "schema version %d (%s)\n", version, state)
	return 0
}
