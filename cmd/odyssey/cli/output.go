package cli

import (
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Exit codes shared by every command.
const (
	exitError        = 1
	exitUsage        = 2
	exitConflict     = 3
	exitPrecondition = 4
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrInvalidDocumentVariant):
		return exitUsage
	case shared.IsRetryable(err):
		return exitConflict
	case shared.IsPermanent(err):
		return exitPrecondition
	default:
		return exitError
	}
}

func printer() *message.Printer {
	return message.NewPrinter(language.English)
}
