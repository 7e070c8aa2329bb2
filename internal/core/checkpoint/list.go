package checkpoint

import (
	"context"
	"iter"
	"time"
)

// Cursor is a keyset position in (updated_at, id) descending order.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

// Includes reports whether a record at (updatedAt, id) sorts strictly after
// the cursor in descending order. A nil cursor includes everything.
func (c *Cursor) Includes(updatedAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	if !updatedAt.Equal(c.UpdatedAt) {
		return updatedAt.Before(c.UpdatedAt)
	}
	return id < c.ID
}

// PageFunc fetches at most n records matching f's routing attributes that
// sort after the cursor, newest first. Backends wrap I/O failures as
// PersistenceFailed store errors.
type PageFunc func(ctx context.Context, f Filter, after *Cursor, n int) ([]*Record, error)

// LatestFunc loads the current tuple of a thread.
type LatestFunc func(ctx context.Context, threadID string) (*Tuple, error)

// Lister implements Saver.List on top of two backend primitives.
type Lister struct {
	Latest LatestFunc
	Page   PageFunc
}

// List yields tuples for f. A thread-scoped filter yields what Latest returns.
// Otherwise records are enumerated page by page; a record that fails to decode
// yields a *CorruptRecordError and enumeration continues, while a fetch error
// ends the sequence.
func (l Lister) List(ctx context.Context, f Filter) iter.Seq2[*Tuple, error] {
	return func(yield func(*Tuple, error) bool) {
		if err := f.Validate(); err != nil {
			yield(nil, err)
			return
		}

		if f.ThreadID != "" {
			t, err := l.Latest(ctx, f.ThreadID)
			if err != nil {
				yield(nil, err)
				return
			}
			if t != nil && f.matchesTuple(t) {
				yield(t, nil)
			}
			return
		}

		var cursor *Cursor
		if f.Before != nil {
			// An empty ID sorts before every real id, so the bound is strict.
			cursor = &Cursor{UpdatedAt: *f.Before}
		}

		size := f.pageSize()
		remaining := f.Limit
		for {
			n := size
			if remaining > 0 && remaining < n {
				n = remaining
			}
			if err := ctx.Err(); err != nil {
				yield(nil, Persistence("", err))
				return
			}

			records, err := l.Page(ctx, f, cursor, n)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, r := range records {
				t, err := r.Decode()
				if !yield(t, err) {
					return
				}
				if remaining > 0 {
					remaining--
					if remaining == 0 {
						return
					}
				}
			}

			if len(records) < n {
				return
			}
			last := records[len(records)-1]
			cursor = &Cursor{UpdatedAt: last.UpdatedAt, ID: last.ID}
		}
	}
}

func (f *Filter) matchesTuple(t *Tuple) bool {
	if f.Before != nil && !t.UpdatedAt.Before(*f.Before) {
		return false
	}
	return f.Matches(&Record{
		ThreadID:  t.Config.ThreadID,
		Platform:  t.Config.Platform,
		UserID:    t.Config.UserID,
		ProjectID: t.Config.ProjectID,
	})
}
