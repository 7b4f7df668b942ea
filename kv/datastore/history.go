package datastore

import (
	"sort"
	"sync"

	"github.com/pingcap-incubator/tinyds/kv/cursor"
	"github.com/pingcap-incubator/tinyds/kv/model"
)

// QueryHistoryEntry is a distinct query and the number of times it ran.
type QueryHistoryEntry struct {
	// Query has its Limit and Offset cleared.
	Query *model.Query
	Count uint64
}

// queryHistory counts query runs per app, keyed by query fingerprint.
type queryHistory struct {
	mu   sync.Mutex
	apps map[string]map[string]*QueryHistoryEntry
}

func newQueryHistory() *queryHistory {
	return &queryHistory{apps: make(map[string]map[string]*QueryHistoryEntry)}
}

func (h *queryHistory) record(q *model.Query) {
	fingerprint := string(cursor.QueryFingerprint(q))
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, ok := h.apps[q.AppID]
	if !ok {
		entries = make(map[string]*QueryHistoryEntry)
		h.apps[q.AppID] = entries
	}
	entry, ok := entries[fingerprint]
	if !ok {
		clone := *q
		clone.Limit, clone.Offset = 0, 0
		entry = &QueryHistoryEntry{Query: &clone}
		entries[fingerprint] = entry
	}
	entry.Count++
}

// list returns copies of the entries of app, most run first.
func (h *queryHistory) list(app string) []QueryHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	type keyed struct {
		fingerprint string
		entry       QueryHistoryEntry
	}
	all := make([]keyed, 0, len(h.apps[app]))
	for fp, entry := range h.apps[app] {
		all = append(all, keyed{fingerprint: fp, entry: *entry})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].entry.Count != all[j].entry.Count {
			return all[i].entry.Count > all[j].entry.Count
		}
		return all[i].fingerprint < all[j].fingerprint
	})
	result := make([]QueryHistoryEntry, 0, len(all))
	for _, k := range all {
		result = append(result, k.entry)
	}
	return result
}

func (h *queryHistory) clear(app string) {
	h.mu.Lock()
	delete(h.apps, app)
	h.mu.Unlock()
}
