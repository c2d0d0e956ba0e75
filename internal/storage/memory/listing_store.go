package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// ListingStore provides an in-memory listing repository for development/testing.
type ListingStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]crawler.Listing
	byLink map[string]int64
}

// NewListingStore constructs a ListingStore.
func NewListingStore() *ListingStore {
	return &ListingStore{
		byID:   make(map[int64]crawler.Listing),
		byLink: make(map[string]int64),
	}
}

// Exists reports whether a listing with link is stored.
func (s *ListingStore) Exists(_ context.Context, link string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byLink[link]
	return ok, nil
}

// Insert stores a listing, rejecting duplicate links.
func (s *ListingStore) Insert(_ context.Context, in crawler.NewListing) (crawler.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byLink[in.Link]; ok {
		return crawler.Listing{}, crawler.ErrDuplicate
	}
	s.nextID++
	listing := crawler.Listing{
		ID:        s.nextID,
		Link:      in.Link,
		Price:     in.Price,
		Title:     in.Title,
		StatusID:  in.StatusID,
		IsVideo:   in.IsVideo,
		Comment:   in.Comment,
		ImageLink: in.ImageLink,
		CreatedAt: in.CreatedAt,
	}
	s.byID[listing.ID] = listing
	s.byLink[listing.Link] = listing.ID
	return listing, nil
}

// List returns listings matching filter, newest first.
func (s *ListingStore) List(_ context.Context, filter crawler.ListingFilter) ([]crawler.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]crawler.Listing, 0, len(s.byID))
	for _, listing := range s.byID {
		if matches(listing, filter) {
			matched = append(matched, listing)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []crawler.Listing{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Get fetches a listing by ID.
func (s *ListingStore) Get(_ context.Context, id int64) (crawler.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listing, ok := s.byID[id]
	if !ok {
		return crawler.Listing{}, crawler.ErrNotFound
	}
	return listing, nil
}

// Update sets the operator-editable fields of a listing.
func (s *ListingStore) Update(_ context.Context, id int64, update crawler.ListingUpdate) (crawler.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.byID[id]
	if !ok {
		return crawler.Listing{}, crawler.ErrNotFound
	}
	listing.StatusID = update.StatusID
	listing.Comment = update.Comment
	s.byID[id] = listing
	return listing, nil
}

// Delete removes a listing.
func (s *ListingStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.byID[id]
	if !ok {
		return crawler.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byLink, listing.Link)
	return nil
}

// matches mirrors the SQL filter: unknown prices never match a price range.
func matches(listing crawler.Listing, filter crawler.ListingFilter) bool {
	if filter.StatusID != nil && listing.StatusID != *filter.StatusID {
		return false
	}
	if filter.IsVideo != nil && listing.IsVideo != *filter.IsVideo {
		return false
	}
	if listing.Price == nil {
		return false
	}
	price := *listing.Price
	return price >= filter.MinPrice && (filter.MaxPrice == 0 || price <= filter.MaxPrice)
}
