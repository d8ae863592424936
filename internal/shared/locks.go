package shared

import "fmt"

// PeriodCloseLockKey builds the redis key guarding one company month close.
func PeriodCloseLockKey(company, period string) string {
	return fmt.Sprintf("ledger:close:%s:%s:lock", company, period)
}

// SequenceLockKey derives the advisory lock key of a document number series.
func SequenceLockKey(company, docType, variant string) string {
	return fmt.Sprintf("ledger:seq:%s:%s:%s", company, docType, variant)
}
