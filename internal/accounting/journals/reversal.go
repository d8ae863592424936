package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ReversalInput describes the offsetting batch for a posted reference.
type ReversalInput struct {
	Reason  string
	Date    time.Time
	ActorID int64
}

// BuildReversal mirrors original line by line with debit and credit swapped.
// Each mirrored line points at the batch it offsets; the originals are not modified.
func (b *Builder) BuildReversal(original []shared.LedgerEntry, in ReversalInput) ([]shared.LedgerEntry, error) {
	if len(original) == 0 {
		return nil, shared.ErrEntriesNotFound
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, shared.InvalidArgument("reversal reason required")
	}
	createdAt := b.now()
	date := in.Date
	if date.IsZero() {
		date = createdAt
	}
	batchID := b.newID()
	description := fmt.Sprintf("reversal of entries due to %s", reason)

	out := make([]shared.LedgerEntry, 0, len(original))
	for _, line := range original {
		if line.ReversalOf != nil {
			return nil, fmt.Errorf("%w: %s", shared.ErrAlreadyReversed, line.Reference)
		}
		source := line.BatchID
		mirrored := line
		mirrored.ID = 0
		mirrored.BatchID = batchID
		mirrored.ReversalOf = &source
		mirrored.Date = date
		mirrored.Description = description
		mirrored.Debit, mirrored.Credit = line.Credit, line.Debit
		mirrored.CreatedBy = in.ActorID
		mirrored.CreatedAt = createdAt
		if line.SubAccount != nil {
			sub := *line.SubAccount
			mirrored.SubAccount = &sub
		}
		out = append(out, mirrored)
	}
	return finish(original[0].Reference, out)
}
