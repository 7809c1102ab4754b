package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/activitylog/internal/domain"
)

func TestUpsertIfAbsentKeepsFirst(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	first := newEvent("evt-1", "user-1", domain.ActivityUserLogin, time.Now())
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first.ProcessedAt = &stamp

	stored, err := repo.UpsertIfAbsent(ctx, first)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.RowID)

	second := first
	later := stamp.Add(time.Minute)
	second.ProcessedAt = &later
	second.UserID = "user-2"

	again, err := repo.UpsertIfAbsent(ctx, second)
	require.NoError(t, err)
	require.Equal(t, "user-1", again.UserID)
	require.True(t, stamp.Equal(*again.ProcessedAt))
	require.Equal(t, 1, repo.Len())

	// returned records must not alias stored state
	*again.ProcessedAt = later
	found, err := repo.FindByEventID(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, stamp.Equal(*found.ProcessedAt))

	missing, err := repo.FindByEventID(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestQueryOrdersAndPages(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := repo.UpsertIfAbsent(ctx, newEvent(id, "user-1", domain.ActivityUserLogin, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	// same timestamp as "e": later insert wins the tie
	_, err := repo.UpsertIfAbsent(ctx, newEvent("f", "user-1", domain.ActivityUserLogin, base.Add(4*time.Hour)))
	require.NoError(t, err)
	_, err = repo.UpsertIfAbsent(ctx, newEvent("g", "user-2", domain.ActivityUserLogout, base))
	require.NoError(t, err)

	page, err := repo.Query(ctx, domain.ActivityFilter{UserID: "user-1"}, 1, 4)
	require.NoError(t, err)
	require.Equal(t, []string{"f", "e", "d", "c"}, eventIDs(page.Items))
	require.Equal(t, int64(6), page.Pagination.Total)
	require.Equal(t, 2, page.Pagination.TotalPages)
	require.True(t, page.Pagination.HasNextPage)

	page, err = repo.Query(ctx, domain.ActivityFilter{UserID: "user-1"}, 2, 4)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, eventIDs(page.Items))
	require.False(t, page.Pagination.HasNextPage)
	require.True(t, page.Pagination.HasPrevPage)

	page, err = repo.Query(ctx, domain.ActivityFilter{}, 9, 4)
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Equal(t, int64(7), page.Pagination.Total)
}

func TestAggregate(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, e := range []domain.ActivityEvent{
		newEvent("a", "user-1", domain.ActivityUserLogin, base),
		newEvent("b", "user-1", domain.ActivityUserLogin, base.Add(time.Hour)),
		newEvent("c", "user-1", domain.ActivityUserLogout, base),
		newEvent("d", "user-2", domain.ActivityUserLogin, base.Add(2*time.Hour)),
	} {
		_, err := repo.UpsertIfAbsent(ctx, e)
		require.NoError(t, err, "event %d", i)
	}

	stats, err := repo.Aggregate(ctx, "user-1")
	require.NoError(t, err)
	byType := make(map[domain.ActivityType]domain.ActivityStat)
	for _, s := range stats {
		byType[s.ActivityType] = s
	}
	require.Len(t, byType, 2)
	require.Equal(t, int64(2), byType[domain.ActivityUserLogin].Count)
	require.True(t, base.Add(time.Hour).Equal(byType[domain.ActivityUserLogin].LastOccurred))

	all, err := repo.Aggregate(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func newEvent(id, user string, typ domain.ActivityType, at time.Time) domain.ActivityEvent {
	return domain.ActivityEvent{EventID: id, UserID: user, ActivityType: typ, OccurredAt: at}
}

func eventIDs(recs []domain.ActivityRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.EventID)
	}
	return out
}
