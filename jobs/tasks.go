package jobs

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries month-end work ahead of routine checks.
	QueueCritical = "critical"

	// TaskPeriodClose closes one company month.
	TaskPeriodClose = "ledger:period_close"
	// TaskGLIntegrity verifies that every ledger month nets to zero.
	TaskGLIntegrity = "ledger:gl_integrity"
)

// PeriodClosePayload names the month to close.
type PeriodClosePayload struct {
	Company string `json:"company"`
	Period  string `json:"period"`
	ActorID int64  `json:"actor_id,omitempty"`
}

// NewPeriodCloseTask constructs an Asynq task; period uses the YYYY-MM form.
func NewPeriodCloseTask(payload PeriodClosePayload) (*asynq.Task, error) {
	payload.Company = strings.TrimSpace(payload.Company)
	if _, err := periods.ParseFiscalPeriod(payload.Period); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPeriodClose, data, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}

// GLIntegrityPayload scopes the integrity check; an empty company checks all.
type GLIntegrityPayload struct {
	Company string `json:"company,omitempty"`
}

// NewGLIntegrityTask constructs an Asynq task for the integrity check.
func NewGLIntegrityTask(company string) (*asynq.Task, error) {
	data, err := json.Marshal(GLIntegrityPayload{Company: strings.TrimSpace(company)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data, asynq.Queue(QueueDefault)), nil
}

// TaskPostDocument posts one pending business document into the ledger.
const TaskPostDocument = "ledger:post_document"

// PostDocumentPayload carries a posting request from an upstream module.
type PostDocumentPayload struct {
	DocumentID   uuid.UUID                `json:"document_id"`
	Event        journals.Event           `json:"event"`
	Applications []accounting.Application `json:"applications,omitempty"`
	ActorID      int64                    `json:"actor_id,omitempty"`
}

// NewPostDocumentTask constructs an Asynq task. The document id doubles as
// the task id so a document is queued at most once at a time.
func NewPostDocumentTask(payload PostDocumentPayload) (*asynq.Task, error) {
	if payload.DocumentID == uuid.Nil {
		return nil, shared.InvalidArgument("post document: document id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPostDocument, data, asynq.Queue(QueueDefault), asynq.TaskID("post:"+payload.DocumentID.String())), nil
}
