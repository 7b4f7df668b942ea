package cursor

import (
	"sync"

	"github.com/pingcap-incubator/tinyds/kv/model"
)

const (
	// MaxResults caps the entities of one page.
	MaxResults = 1000
	// MaxQueryOffset caps the entities one page may skip.
	MaxQueryOffset = 1000
	// DefaultBatchSize is the page size when the caller gives neither count
	// nor limit.
	DefaultBatchSize = 20
)

// Cursor is a materialized query result paged through by Populate.
type Cursor struct {
	ID       uint64
	AppID    string
	KeysOnly bool

	query   *model.Query
	results []*model.Entity

	mu     sync.Mutex
	offset int
	// last is the last entity handed out, or the start position of the
	// query before the first one.
	last *model.Entity
}

// Count is the number of results the cursor was opened with.
func (c *Cursor) Count() int {
	return len(c.results)
}

// Populate returns the next page. It skips min(offset, remaining) results,
// at most MaxQueryOffset of them, and then returns up to count results, at
// most MaxResults. When the skip had to be capped no results are returned,
// the caller is expected to continue skipping with the next call.
func (c *Cursor) Populate(count, offset int, compile bool) *model.QueryResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := &model.QueryResult{
		Cursor:   model.CursorHandle{AppID: c.AppID, ID: c.ID},
		KeysOnly: c.KeysOnly,
	}

	if remaining := len(c.results) - c.offset; offset > remaining {
		offset = remaining
	}
	limitedOffset := offset
	if limitedOffset > MaxQueryOffset {
		limitedOffset = MaxQueryOffset
	}
	if limitedOffset > 0 {
		c.offset += limitedOffset
		res.SkippedResults = limitedOffset
	}

	if offset == limitedOffset && count > 0 {
		if count > MaxResults {
			count = MaxResults
		}
		end := c.offset + count
		if end > len(c.results) {
			end = len(c.results)
		}
		for _, e := range c.results[c.offset:end] {
			if c.KeysOnly {
				res.Results = append(res.Results, e.KeyOnly())
			} else {
				res.Results = append(res.Results, e.Clone())
			}
		}
		c.offset = end
	}

	if c.offset > 0 {
		c.last = c.results[c.offset-1]
	}
	res.MoreResults = c.offset < len(c.results)
	if compile && c.last != nil {
		res.CompiledCursor = EncodeCompiledCursor(c.query, c.last)
	}
	return res
}
