package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"crmsync/internal/model"
)

// MemoryLinkage is an in-process Linkage for dev and tests.
type MemoryLinkage struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryLinkage() *MemoryLinkage { return &MemoryLinkage{m: map[string]string{}} }

func (l *MemoryLinkage) Get(ctx context.Context, externalID string) (string, error) {
	l.mu.Lock(); defer l.mu.Unlock()
	v, ok := l.m[externalID]
	if !ok { return "", ErrNoLinkage }
	return v, nil
}

func (l *MemoryLinkage) Put(ctx context.Context, externalID, crmID string) error {
	l.mu.Lock(); defer l.mu.Unlock()
	l.m[externalID] = crmID
	return nil
}

// MemoryHistory keeps the history read-model in process.
type MemoryHistory struct {
	mu       sync.Mutex
	mappings map[string]*model.OrderMapping
	now      func() time.Time
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{mappings: map[string]*model.OrderMapping{}, now: time.Now}
}

func (h *MemoryHistory) Record(ctx context.Context, order model.OrderEvent, status model.HistoryStatus, d HistoryDetail) error {
	h.mu.Lock(); defer h.mu.Unlock()
	ts := h.now().UnixMilli()
	m := h.mappings[order.ExternalOrderID]
	if m == nil {
		m = &model.OrderMapping{RowID: order.ExternalOrderID, CreatedAt: ts}
		h.mappings[order.ExternalOrderID] = m
	}
	m.SiteOrder = order
	m.CurrentStatus = status
	m.UpdatedAt = ts
	if d.CRMResponse != nil { m.CRMOrder = d.CRMResponse }
	e := model.HistoryEntry{Status: status, Date: ts, ErrorMessage: d.Error, RetryCount: d.RetryCount}
	if keepCRMResponse(status, d) { e.CRMResponse = d.CRMResponse }
	m.StatusHistory = append(m.StatusHistory, e)
	if n := len(m.StatusHistory); n > MaxStatusEntries {
		m.StatusHistory = append([]model.HistoryEntry(nil), m.StatusHistory[n-MaxStatusEntries:]...)
	}
	h.trim()
	return nil
}

// trim drops the oldest mappings beyond MaxIndexedOrders. Caller holds mu.
func (h *MemoryHistory) trim() {
	if len(h.mappings) <= MaxIndexedOrders { return }
	all := h.sorted()
	for _, m := range all[MaxIndexedOrders:] { delete(h.mappings, m.RowID) }
}

// sorted returns mappings newest first. Caller holds mu.
func (h *MemoryHistory) sorted() []*model.OrderMapping {
	out := make([]*model.OrderMapping, 0, len(h.mappings))
	for _, m := range h.mappings { out = append(out, m) }
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt == out[j].UpdatedAt { return out[i].RowID > out[j].RowID }
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out
}

func (h *MemoryHistory) Get(ctx context.Context, id string) (model.OrderMapping, error) {
	h.mu.Lock(); defer h.mu.Unlock()
	m := h.mappings[id]
	if m == nil { return model.OrderMapping{}, ErrNotFound }
	return copyMapping(m), nil
}

func (h *MemoryHistory) List(ctx context.Context, page, pageSize int) ([]model.OrderMapping, error) {
	h.mu.Lock(); defer h.mu.Unlock()
	page, pageSize = normalisePage(page, pageSize)
	all := h.sorted()
	start := (page - 1) * pageSize
	out := []model.OrderMapping{}
	for i := start; i < len(all) && i < start+pageSize; i++ {
		out = append(out, copyMapping(all[i]))
	}
	return out, nil
}

func (h *MemoryHistory) Count(ctx context.Context) (int, error) {
	h.mu.Lock(); defer h.mu.Unlock()
	return len(h.mappings), nil
}

func (h *MemoryHistory) Stats(ctx context.Context) (model.HistoryStats, error) {
	h.mu.Lock(); defer h.mu.Unlock()
	st := model.HistoryStats{ByStatus: map[model.HistoryStatus]int{}}
	for _, m := range h.mappings {
		st.Total++
		st.ByStatus[m.CurrentStatus]++
		ts := m.UpdatedAt
		if st.OldestRecord == nil || ts < *st.OldestRecord { v := ts; st.OldestRecord = &v }
		if st.NewestRecord == nil || ts > *st.NewestRecord { v := ts; st.NewestRecord = &v }
	}
	return st, nil
}

func (h *MemoryHistory) Clean(ctx context.Context) (CleanResult, error) {
	h.mu.Lock(); defer h.mu.Unlock()
	n := len(h.mappings)
	h.mappings = map[string]*model.OrderMapping{}
	return CleanResult{ToDelete: n, Deleted: n, Errors: []string{}}, nil
}

func copyMapping(m *model.OrderMapping) model.OrderMapping {
	c := *m
	c.StatusHistory = append([]model.HistoryEntry(nil), m.StatusHistory...)
	return c
}

func normalisePage(page, pageSize int) (int, int) {
	if page < 1 { page = 1 }
	if pageSize <= 0 || pageSize > 500 { pageSize = 10 }
	return page, pageSize
}
