package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

func newListing(link string, price int64, video bool) crawler.NewListing {
	return crawler.NewListing{
		Item: crawler.Item{
			Link:    link,
			Title:   "Flat " + link,
			Price:   &price,
			IsVideo: video,
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestListingStoreInsertRejectsDuplicates(t *testing.T) {
	t.Parallel()

	store := NewListingStore()
	ctx := context.Background()

	stored, err := store.Insert(ctx, newListing("https://example.com/1", 100, false))
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.ID)
	require.Equal(t, crawler.StatusNew, stored.StatusID)

	exists, err := store.Exists(ctx, "https://example.com/1")
	require.NoError(t, err)
	require.True(t, exists)

	_, err = store.Insert(ctx, newListing("https://example.com/1", 200, false))
	require.ErrorIs(t, err, crawler.ErrDuplicate)
}

func TestListingStoreListFilters(t *testing.T) {
	t.Parallel()

	store := NewListingStore()
	ctx := context.Background()
	_, err := store.Insert(ctx, newListing("https://example.com/cheap", 10, false))
	require.NoError(t, err)
	_, err = store.Insert(ctx, newListing("https://example.com/video", 500, true))
	require.NoError(t, err)
	_, err = store.Insert(ctx, newListing("https://example.com/pricey", 5000, false))
	require.NoError(t, err)
	_, err = store.Insert(ctx, crawler.NewListing{Item: crawler.Item{Link: "https://example.com/unknown", Title: "?"}})
	require.NoError(t, err)

	all, err := store.List(ctx, crawler.ListingFilter{MinPrice: 1, MaxPrice: 100_000})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "https://example.com/pricey", all[0].Link)

	video := true
	onlyVideo, err := store.List(ctx, crawler.ListingFilter{IsVideo: &video, MinPrice: 1})
	require.NoError(t, err)
	require.Len(t, onlyVideo, 1)
	require.Equal(t, "https://example.com/video", onlyVideo[0].Link)

	banded, err := store.List(ctx, crawler.ListingFilter{MinPrice: 100, MaxPrice: 1000})
	require.NoError(t, err)
	require.Len(t, banded, 1)

	paged, err := store.List(ctx, crawler.ListingFilter{MinPrice: 1, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, "https://example.com/video", paged[0].Link)

	status := int16(2)
	none, err := store.List(ctx, crawler.ListingFilter{StatusID: &status})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestListingStoreUpdateAndDelete(t *testing.T) {
	t.Parallel()

	store := NewListingStore()
	ctx := context.Background()
	stored, err := store.Insert(ctx, newListing("https://example.com/1", 100, false))
	require.NoError(t, err)

	comment := "called the owner"
	updated, err := store.Update(ctx, stored.ID, crawler.ListingUpdate{StatusID: 3, Comment: &comment})
	require.NoError(t, err)
	require.Equal(t, int16(3), updated.StatusID)
	require.Equal(t, comment, *updated.Comment)

	got, err := store.Get(ctx, stored.ID)
	require.NoError(t, err)
	require.Equal(t, updated, got)

	require.NoError(t, store.Delete(ctx, stored.ID))
	require.ErrorIs(t, store.Delete(ctx, stored.ID), crawler.ErrNotFound)
	_, err = store.Get(ctx, stored.ID)
	require.ErrorIs(t, err, crawler.ErrNotFound)
	_, err = store.Update(ctx, stored.ID, crawler.ListingUpdate{})
	require.ErrorIs(t, err, crawler.ErrNotFound)

	exists, err := store.Exists(ctx, "https://example.com/1")
	require.NoError(t, err)
	require.False(t, exists)
}
