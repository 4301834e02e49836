// Package announcement selects and orders announcements for display.
package announcement

import (
	"context"
	"sort"
	"time"

	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/pkg/log"
)

// Source lists every announcement. The gateway implements it.
type Source interface {
	Announcements(ctx context.Context) ([]model.Announcement, error)
}

// Query narrows a listing. The zero value shows every unexpired
// announcement to everyone.
type Query struct {
	// Role hides announcements targeted at other roles. Empty shows all.
	Role model.Role
	// IncludeExpired keeps announcements whose expiry has passed.
	IncludeExpired bool
	// MinPriority hides announcements ranked below it. Empty keeps all.
	MinPriority model.Priority
}

// Select filters all by q at now and orders the result: pinned first, then
// newest first. all is not modified.
func Select(all []model.Announcement, q Query, now time.Time) []model.Announcement {
	out := make([]model.Announcement, 0, len(all))
	for _, a := range all {
		if !q.IncludeExpired && a.Expired(now) {
			continue
		}
		if q.Role != "" && !a.VisibleTo(q.Role) {
			continue
		}
		if q.MinPriority != "" && a.EffectivePriority().Rank() < q.MinPriority.Rank() {
			continue
		}
		out = append(out, a)
	}
	Sort(out)
	return out
}

// Sort orders pinned announcements before unpinned ones, newest first
// within each group.
func Sort(list []model.Announcement) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].IsPinned != list[j].IsPinned {
			return list[i].IsPinned
		}
		return list[i].CreatedAt.After(list[j].CreatedAt.Time)
	})
}

// Board fetches announcements and applies a Query to them.
type Board struct {
	src Source
	now func() time.Time
	log log.Logger
}

type Option func(*Board)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

func NewBoard(src Source, opts ...Option) *Board {
	b := &Board{src: src, now: time.Now, log: log.WithName("announcement")}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// List returns the announcements matching q. Fetch errors are returned
// unchanged; nothing is substituted.
func (b *Board) List(ctx context.Context, q Query) ([]model.Announcement, error) {
	all, err := b.src.Announcements(ctx)
	if err != nil {
		return nil, err
	}
	out := Select(all, q, b.now())
	b.log.Debug("Listed announcements", "total", len(all), "shown", len(out), "role", q.Role)
	return out, nil
}
