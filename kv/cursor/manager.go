package cursor

import (
	"sort"

	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap-incubator/tinyds/kv/query"
	"github.com/pingcap-incubator/tinyds/kv/util/cache"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// DefaultMaxLiveCursors bounds the cursor table when no size is given.
const DefaultMaxLiveCursors = 10000

// Manager owns the live cursors of a store. Cursor ids come from one
// counter shared by every app of the store. When the table is full the
// least recently used cursor is dropped and later lookups of it fail with
// model.ErrCursorNotFound.
type Manager struct {
	nextID  atomic.Uint64
	cursors cache.Cache
}

func NewManager(maxLive int) *Manager {
	if maxLive <= 0 {
		maxLive = DefaultMaxLiveCursors
	}
	return &Manager{
		cursors: cache.NewLRU(maxLive, func(id uint64, _ interface{}) {
			evictedCursorCounter.Inc()
			log.Debug("cursor evicted", zap.Uint64("cursor", id))
		}),
	}
}

// cursorOffset finds where the position e falls into results. An inclusive
// position starts at the first result not less than e, an exclusive one at
// the first result greater than e. e need not be in results any more.
func cursorOffset(results []*model.Entity, e *model.Entity, inclusive bool, compare query.Comparator) int {
	if inclusive {
		return sort.Search(len(results), func(i int) bool {
			return compare(results[i], e) >= 0
		})
	}
	return sort.Search(len(results), func(i int) bool {
		return compare(e, results[i]) < 0
	})
}

// Open registers a cursor over results, which must be sorted by orders, the
// normalized orders of q. The start and end compiled cursors of q narrow
// the results, then the limit, counted from the offset, clips them.
func (m *Manager) Open(q *model.Query, orders []model.Order, results []*model.Entity) (*Cursor, error) {
	compare := query.EntityComparator(orders)
	var last *model.Entity

	start, end := 0, len(results)
	if q.StartCursor != nil && len(q.StartCursor.Position) > 0 {
		e, inclusive, err := DecodeCompiledCursor(q, q.StartCursor)
		if err != nil {
			return nil, err
		}
		last = e
		start = cursorOffset(results, e, inclusive, compare)
	}
	if q.EndCursor != nil && len(q.EndCursor.Position) > 0 {
		e, inclusive, err := DecodeCompiledCursor(q, q.EndCursor)
		if err != nil {
			return nil, err
		}
		end = cursorOffset(results, e, inclusive, compare)
	}
	if end < start {
		end = start
	}
	results = results[start:end]

	if q.Limit > 0 {
		if limit := q.Limit + q.Offset; limit < len(results) {
			results = results[:limit]
		}
	}

	c := &Cursor{
		ID:       m.nextID.Inc(),
		AppID:    q.AppID,
		KeysOnly: q.KeysOnly,
		query:    q,
		results:  results,
		last:     last,
	}
	m.cursors.Put(c.ID, c)
	liveCursorGauge.Set(float64(m.cursors.Len()))
	return c, nil
}

// Get looks a cursor up. Unknown, evicted and foreign cursors are all
// reported as not found.
func (m *Manager) Get(app string, id uint64) (*Cursor, error) {
	v, ok := m.cursors.Get(id)
	if !ok {
		return nil, model.CursorNotFound(id)
	}
	c := v.(*Cursor)
	if c.AppID != app {
		return nil, model.CursorNotFound(id)
	}
	return c, nil
}

// Next returns the next page of a cursor.
func (m *Manager) Next(app string, id uint64, count, offset int, compile bool) (*model.QueryResult, error) {
	c, err := m.Get(app, id)
	if err != nil {
		return nil, err
	}
	return c.Populate(count, offset, compile), nil
}

// Delete drops a cursor, typically a one-shot one.
func (m *Manager) Delete(id uint64) {
	m.cursors.Remove(id)
	liveCursorGauge.Set(float64(m.cursors.Len()))
}

// Len is the number of live cursors.
func (m *Manager) Len() int {
	return m.cursors.Len()
}
