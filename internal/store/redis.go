package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"crmsync/internal/model"
)

// Redis key layout of the read-model.
const (
	historyIndexKey = "orders:history:index"
)

func linkageKey(id string) string       { return "orders:crm_id:" + id }
func mappingKey(id string) string       { return "orders:mapping:" + id }
func statusHistoryKey(id string) string { return "orders:history:" + id }

// RedisLinkage keeps CRM linkage next to the queue.
type RedisLinkage struct {
	rdb *redis.Client
}

func NewRedisLinkage(rdb *redis.Client) *RedisLinkage { return &RedisLinkage{rdb: rdb} }

// Get falls back to the bare external id, where earlier releases of the site
// integration stored the link, and copies a hit to the namespaced key.
func (l *RedisLinkage) Get(ctx context.Context, externalID string) (string, error) {
	v, err := l.rdb.Get(ctx, linkageKey(externalID)).Result()
	if err == nil { return v, nil }
	if !errors.Is(err, redis.Nil) { return "", err }
	if strings.Contains(externalID, ":") { return "", ErrNoLinkage }
	v, err = l.rdb.Get(ctx, externalID).Result()
	if errors.Is(err, redis.Nil) { return "", ErrNoLinkage }
	if err != nil { return "", fmt.Errorf("legacy linkage %s: %w", externalID, err) }
	_ = l.rdb.SetNX(ctx, linkageKey(externalID), v, 0).Err()
	return v, nil
}

func (l *RedisLinkage) Put(ctx context.Context, externalID, crmID string) error {
	return l.rdb.Set(ctx, linkageKey(externalID), crmID, 0).Err()
}

// RedisHistory stores one JSON mapping per order, a hash of status entries per
// order and a sorted index of orders by last update.
type RedisHistory struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisHistory(rdb *redis.Client) *RedisHistory {
	return &RedisHistory{rdb: rdb, now: time.Now}
}

func (h *RedisHistory) Record(ctx context.Context, order model.OrderEvent, status model.HistoryStatus, d HistoryDetail) error {
	id := order.ExternalOrderID
	ts := h.now().UnixMilli()

	m, err := h.loadMapping(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		m = model.OrderMapping{RowID: id, CreatedAt: ts}
	case err != nil:
		return err
	}
	m.SiteOrder = order
	m.CurrentStatus = status
	m.UpdatedAt = ts
	m.StatusHistory = nil
	if d.CRMResponse != nil { m.CRMOrder = d.CRMResponse }
	raw, err := json.Marshal(m)
	if err != nil { return err }
	if err := h.rdb.Set(ctx, mappingKey(id), raw, 0).Err(); err != nil { return err }

	if err := h.addStatus(ctx, id, ts, status, d); err != nil { return err }
	return h.index(ctx, id, ts)
}

func (h *RedisHistory) addStatus(ctx context.Context, id string, ts int64, status model.HistoryStatus, d HistoryDetail) error {
	e := model.HistoryEntry{Status: status, Date: ts, ErrorMessage: d.Error, RetryCount: d.RetryCount}
	if keepCRMResponse(status, d) { e.CRMResponse = d.CRMResponse }
	raw, err := json.Marshal(e)
	if err != nil { return err }
	// zero padded so field names sort chronologically
	field := fmt.Sprintf("%013d_%s_%s", ts, status, uuid.NewString()[:8])
	key := statusHistoryKey(id)
	if err := h.rdb.HSet(ctx, key, field, raw).Err(); err != nil { return err }
	fields, err := h.rdb.HKeys(ctx, key).Result()
	if err != nil { return err }
	if len(fields) <= MaxStatusEntries { return nil }
	sort.Strings(fields)
	return h.rdb.HDel(ctx, key, fields[:len(fields)-MaxStatusEntries]...).Err()
}

func (h *RedisHistory) index(ctx context.Context, id string, ts int64) error {
	if err := h.rdb.ZAdd(ctx, historyIndexKey, redis.Z{Score: float64(ts), Member: id}).Err(); err != nil { return err }
	evicted, err := h.rdb.ZRange(ctx, historyIndexKey, 0, -int64(MaxIndexedOrders)-1).Result()
	if err != nil || len(evicted) == 0 { return err }
	for _, old := range evicted {
		if err := h.remove(ctx, old); err != nil { return err }
	}
	return nil
}

func (h *RedisHistory) remove(ctx context.Context, id string) error {
	if err := h.rdb.ZRem(ctx, historyIndexKey, id).Err(); err != nil { return err }
	return h.rdb.Del(ctx, mappingKey(id), statusHistoryKey(id)).Err()
}

func (h *RedisHistory) loadMapping(ctx context.Context, id string) (model.OrderMapping, error) {
	var m model.OrderMapping
	raw, err := h.rdb.Get(ctx, mappingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) { return m, ErrNotFound }
	if err != nil { return m, err }
	if err := json.Unmarshal(raw, &m); err != nil { return m, fmt.Errorf("decode mapping %s: %w", id, err) }
	return m, nil
}

func (h *RedisHistory) loadStatuses(ctx context.Context, id string) ([]model.HistoryEntry, error) {
	vals, err := h.rdb.HGetAll(ctx, statusHistoryKey(id)).Result()
	if err != nil { return nil, err }
	out := make([]model.HistoryEntry, 0, len(vals))
	for _, v := range vals {
		var e model.HistoryEntry
		if json.Unmarshal([]byte(v), &e) == nil { out = append(out, e) }
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (h *RedisHistory) Get(ctx context.Context, id string) (model.OrderMapping, error) {
	m, err := h.loadMapping(ctx, id)
	if err != nil { return m, err }
	m.StatusHistory, err = h.loadStatuses(ctx, id)
	return m, err
}

func (h *RedisHistory) List(ctx context.Context, page, pageSize int) ([]model.OrderMapping, error) {
	page, pageSize = normalisePage(page, pageSize)
	start := int64((page - 1) * pageSize)
	ids, err := h.rdb.ZRevRange(ctx, historyIndexKey, start, start+int64(pageSize)-1).Result()
	if err != nil { return nil, err }
	out := make([]model.OrderMapping, 0, len(ids))
	for _, id := range ids {
		m, err := h.Get(ctx, id)
		if errors.Is(err, ErrNotFound) { continue }
		if err != nil { return nil, err }
		out = append(out, m)
	}
	return out, nil
}

func (h *RedisHistory) Count(ctx context.Context) (int, error) {
	n, err := h.rdb.ZCard(ctx, historyIndexKey).Result()
	return int(n), err
}

func (h *RedisHistory) Stats(ctx context.Context) (model.HistoryStats, error) {
	st := model.HistoryStats{ByStatus: map[model.HistoryStatus]int{}}
	zs, err := h.rdb.ZRangeWithScores(ctx, historyIndexKey, 0, -1).Result()
	if err != nil { return st, err }
	for _, z := range zs {
		id, _ := z.Member.(string)
		ts := int64(z.Score)
		if st.OldestRecord == nil || ts < *st.OldestRecord { v := ts; st.OldestRecord = &v }
		if st.NewestRecord == nil || ts > *st.NewestRecord { v := ts; st.NewestRecord = &v }
		m, err := h.loadMapping(ctx, id)
		if errors.Is(err, ErrNotFound) { continue }
		if err != nil { return st, err }
		st.ByStatus[m.CurrentStatus]++
		st.Total++
	}
	return st, nil
}

func (h *RedisHistory) Clean(ctx context.Context) (CleanResult, error) {
	ids, err := h.rdb.ZRange(ctx, historyIndexKey, 0, -1).Result()
	if err != nil { return CleanResult{Errors: []string{"cleanup failed: " + err.Error()}}, err }
	res := CleanResult{ToDelete: len(ids), Errors: []string{}}
	for _, id := range ids {
		if err := h.remove(ctx, id); err != nil {
			res.Errors = append(res.Errors, "delete "+id+": "+err.Error())
			continue
		}
		res.Deleted++
	}
	return res, nil
}
