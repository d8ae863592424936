package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditLoggerRequiresFields(t *testing.T) {
	var nilLogger *AuditLogger
	assert.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))

	l := NewAuditLogger(nil)
	assert.Error(t, l.Record(context.Background(), AuditLog{Action: "ledger.post"}))
}

func TestLockKeys(t *testing.T) {
	assert.Equal(t, "ledger:close:ACME:2024-03:lock", PeriodCloseLockKey("ACME", "2024-03"))
	assert.Equal(t, "ledger:seq:ACME:SalesInvoice:Documented", SequenceLockKey("ACME", "SalesInvoice", "Documented"))
}
