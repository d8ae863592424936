package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound indicates a role or account number missing from the chart.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrInvalidDocumentVariant indicates an unknown document type/variant pair.
	ErrInvalidDocumentVariant = errors.New("accounting: invalid document variant")

	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrMonthUnbalanced indicates the month's ledger does not net to zero.
	ErrMonthUnbalanced = errors.New("accounting: month ledger does not balance")

	// ErrPeriodNotLocked indicates the period must be locked before closing.
	ErrPeriodNotLocked = errors.New("accounting: period is not locked")
	// ErrUnliftedDeliveriesExist indicates open deliveries block the close.
	ErrUnliftedDeliveriesExist = errors.New("accounting: unlifted deliveries exist")
	// ErrPeriodLocked indicates postings into a locked or closed period.
	ErrPeriodLocked = errors.New("accounting: period locked")
	// ErrPeriodAlreadyClosed indicates a second close attempt.
	ErrPeriodAlreadyClosed = errors.New("accounting: period already closed")
	// ErrNibitChainGap indicates the prior month has not been closed.
	ErrNibitChainGap = errors.New("accounting: nibit chain has a gap")
	// ErrInvalidTransition indicates a document or period status change that is not allowed.
	ErrInvalidTransition = errors.New("accounting: invalid status transition")
	// ErrAlreadyReversed indicates the reference already carries a reversal batch.
	ErrAlreadyReversed = errors.New("accounting: entries already reversed")
	// ErrDocumentNotFound indicates a missing source document.
	ErrDocumentNotFound = errors.New("accounting: document not found")
	// ErrEntriesNotFound indicates no ledger lines exist for a reference.
	ErrEntriesNotFound = errors.New("accounting: ledger entries not found")
	// ErrNothingToPost indicates an event produced no lines.
	ErrNothingToPost = errors.New("accounting: nothing to post")

	// ErrConflict indicates a retryable concurrency conflict.
	ErrConflict = errors.New("accounting: concurrent update conflict")

	// ErrInvalidArgument indicates malformed input.
	ErrInvalidArgument = errors.New("accounting: invalid argument")
	// ErrSequenceExhausted indicates the zero-padded number body is used up.
	ErrSequenceExhausted = errors.New("accounting: document sequence exhausted")
)

// UnbalancedError carries the totals of a rejected batch.
type UnbalancedError struct {
	Reference string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("%s: reference %s debit %s credit %s", ErrUnbalanced, e.Reference, e.Debit.StringFixed(4), e.Credit.StringFixed(4))
}

func (e *UnbalancedError) Unwrap() error {
	return ErrUnbalanced
}

// AccountNotFoundError names the role and number that could not be resolved.
type AccountNotFoundError struct {
	Role   string
	Number string
}

func (e *AccountNotFoundError) Error() string {
	if e.Number == "" {
		return fmt.Sprintf("%s: role %q is not mapped", ErrAccountNotFound, e.Role)
	}
	return fmt.Sprintf("%s: role %q number %s", ErrAccountNotFound, e.Role, e.Number)
}

func (e *AccountNotFoundError) Unwrap() error {
	return ErrAccountNotFound
}

// PreconditionError names the records blocking an operation.
type PreconditionError struct {
	Err      error
	Blocking []string
}

func (e *PreconditionError) Error() string {
	if len(e.Blocking) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), strings.Join(e.Blocking, ", "))
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// InvalidArgument wraps ErrInvalidArgument with a detail message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err belongs to the concurrency class.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsPermanent reports whether retrying err without operator action is pointless.
func IsPermanent(err error) bool {
	if err == nil || IsRetryable(err) {
		return false
	}
	for _, target := range []error{
		ErrAccountNotFound, ErrInvalidDocumentVariant,
		ErrUnbalanced, ErrMonthUnbalanced,
		ErrPeriodNotLocked, ErrUnliftedDeliveriesExist, ErrPeriodLocked, ErrPeriodAlreadyClosed,
		ErrNibitChainGap, ErrInvalidTransition, ErrAlreadyReversed,
		ErrInvalidArgument, ErrSequenceExhausted, ErrNothingToPost,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
