package store

import (
	"context"
	"errors"

	"crmsync/internal/model"
)

// Linkage persists external order id -> CRM order id.
type Linkage interface {
	// Get returns ErrNoLinkage when the order was never created in the CRM.
	Get(ctx context.Context, externalID string) (string, error)
	// Put creates or overwrites the mapping.
	Put(ctx context.Context, externalID, crmID string) error
}

// HistoryDetail is the optional context attached to a status change.
type HistoryDetail struct {
	CRMResponse any
	Error       string
	RetryCount  int
}

// History is the reporting read-model of processed orders.
type History interface {
	Record(ctx context.Context, order model.OrderEvent, status model.HistoryStatus, d HistoryDetail) error
	Get(ctx context.Context, id string) (model.OrderMapping, error)
	// List pages newest-first; page is 1-based.
	List(ctx context.Context, page, pageSize int) ([]model.OrderMapping, error)
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (model.HistoryStats, error)
	Clean(ctx context.Context) (CleanResult, error)
}

type CleanResult struct {
	ToDelete int      `json:"toDelete"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors"`
}

// History retention limits.
const (
	MaxStatusEntries = 50
	MaxIndexedOrders = 1000
)

var (
	ErrNoLinkage = errors.New("no crm linkage")
	ErrNotFound  = errors.New("not found")
)

// keepCRMResponse decides whether a status entry should carry the CRM response.
// Successful responses live on the mapping itself; history keeps the ones worth debugging.
func keepCRMResponse(status model.HistoryStatus, d HistoryDetail) bool {
	if status == model.HistoryFailed || status == model.HistoryProcessing || d.Error != "" {
		return true
	}
	if d.CRMResponse == nil { return false }
	return !hasID(d.CRMResponse)
}

func hasID(v any) bool {
	switch r := v.(type) {
	case interface{ CRMID() int64 }:
		return r.CRMID() != 0
	case map[string]any:
		id, ok := r["id"]
		return ok && id != nil && id != float64(0)
	}
	return true
}
