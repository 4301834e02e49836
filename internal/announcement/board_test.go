package announcement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
)

var t0 = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

func at(d time.Duration) model.Timestamp { return model.At(t0.Add(d)) }

func ids(list []model.Announcement) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}

func TestSelectPinnedFirstThenNewest(t *testing.T) {
	all := []model.Announcement{
		{ID: "A", IsPinned: true, CreatedAt: at(time.Hour)},
		{ID: "B", IsPinned: false, CreatedAt: at(2 * time.Hour)},
		{ID: "C", IsPinned: true, CreatedAt: at(3 * time.Hour)},
	}

	got := Select(all, Query{}, t0.Add(4*time.Hour))
	assert.Equal(t, []string{"C", "A", "B"}, ids(got))
	// input untouched
	assert.Equal(t, []string{"A", "B", "C"}, ids(all))
}

func TestSelectExpiry(t *testing.T) {
	now := t0.Add(time.Hour)
	all := []model.Announcement{
		{ID: "past", CreatedAt: at(0), ExpiresAt: at(30 * time.Minute)},
		{ID: "future", CreatedAt: at(0), ExpiresAt: at(2 * time.Hour)},
		{ID: "never", CreatedAt: at(0)},
	}

	assert.ElementsMatch(t, []string{"future", "never"}, ids(Select(all, Query{}, now)))
	assert.ElementsMatch(t, []string{"past", "future", "never"}, ids(Select(all, Query{IncludeExpired: true}, now)))
}

func TestSelectRoleAndPriority(t *testing.T) {
	all := []model.Announcement{
		{ID: "everyone", CreatedAt: at(1)},
		{ID: "drivers", TargetRoles: []model.Role{model.RoleDriver}, Priority: model.PriorityUrgent, CreatedAt: at(2)},
		{ID: "students", TargetRoles: []model.Role{model.RoleStudent, model.RoleTeacher}, Priority: model.PriorityLow, CreatedAt: at(3)},
	}

	assert.Equal(t, []string{"students", "everyone"}, ids(Select(all, Query{Role: model.RoleStudent}, t0)))
	assert.Equal(t, []string{"drivers", "everyone"}, ids(Select(all, Query{Role: model.RoleDriver}, t0)))
	// empty priority counts as NORMAL
	assert.Equal(t, []string{"drivers", "everyone"}, ids(Select(all, Query{MinPriority: model.PriorityNormal}, t0)))
	assert.Equal(t, []string{"drivers"}, ids(Select(all, Query{MinPriority: model.PriorityHigh}, t0)))
}

type fakeSource struct {
	list []model.Announcement
	err  error
}

func (f fakeSource) Announcements(context.Context) ([]model.Announcement, error) {
	return f.list, f.err
}

func TestBoardList(t *testing.T) {
	src := fakeSource{list: []model.Announcement{
		{ID: "old", CreatedAt: at(0), ExpiresAt: at(time.Minute)},
		{ID: "new", CreatedAt: at(time.Hour)},
	}}
	b := NewBoard(src, WithClock(func() time.Time { return t0.Add(2 * time.Hour) }))

	got, err := b.List(context.Background(), Query{Role: model.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(got))
}

func TestBoardListPropagatesErrors(t *testing.T) {
	b := NewBoard(fakeSource{err: apperr.FromStatus("GET /announcements", 500, "")})

	got, err := b.List(context.Background(), Query{})
	assert.Nil(t, got)
	assert.True(t, apperr.IsServer(err))
}
