package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const listingColumns = `id, link, price, title, status_id, is_video, comment, image_link, created_at`

// ListingStore persists listings with a unique link.
type ListingStore struct {
	db    querier
	table string
}

// NewListingStore wraps db. An empty table defaults to "listings".
func NewListingStore(db querier, table string) (*ListingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, "listings")
	if err != nil {
		return nil, err
	}
	return &ListingStore{db: db, table: name}, nil
}

// Exists reports whether link is already stored.
func (s *ListingStore) Exists(ctx context.Context, link string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE link = $1)`, s.table)
	if err := s.db.QueryRow(ctx, query, link).Scan(&exists); err != nil {
		return false, fmt.Errorf("check listing exists: %w", err)
	}
	return exists, nil
}

// Insert stores a listing. A unique violation on link maps to crawler.ErrDuplicate.
func (s *ListingStore) Insert(ctx context.Context, in crawler.NewListing) (crawler.Listing, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (link, price, title, status_id, is_video, comment, image_link, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING %s`, s.table, listingColumns)
	listing, err := scanListing(s.db.QueryRow(ctx, query,
		in.Link,
		in.Price,
		in.Title,
		in.StatusID,
		in.IsVideo,
		in.Comment,
		in.ImageLink,
		in.CreatedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return crawler.Listing{}, fmt.Errorf("insert listing %s: %w", in.Link, crawler.ErrDuplicate)
		}
		return crawler.Listing{}, fmt.Errorf("insert listing: %w", err)
	}
	return listing, nil
}

// List returns listings matching filter, newest first.
func (s *ListingStore) List(ctx context.Context, filter crawler.ListingFilter) ([]crawler.Listing, error) {
	conds := []string{"price >= $1"}
	args := []any{filter.MinPrice}
	if filter.MaxPrice > 0 {
		args = append(args, filter.MaxPrice)
		conds = append(conds, fmt.Sprintf("price <= $%d", len(args)))
	}
	if filter.StatusID != nil {
		args = append(args, *filter.StatusID)
		conds = append(conds, fmt.Sprintf("status_id = $%d", len(args)))
	}
	if filter.IsVideo != nil {
		args = append(args, *filter.IsVideo)
		conds = append(conds, fmt.Sprintf("is_video = $%d", len(args)))
	}
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit, max(filter.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		listingColumns, s.table, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	defer rows.Close()

	out := make([]crawler.Listing, 0)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return out, nil
}

// Get fetches a listing by id.
func (s *ListingStore) Get(ctx context.Context, id int64) (crawler.Listing, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, listingColumns, s.table)
	listing, err := scanListing(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Listing{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("select listing: %w", err)
	}
	return listing, nil
}

// Update sets status and comment on a listing.
func (s *ListingStore) Update(ctx context.Context, id int64, update crawler.ListingUpdate) (crawler.Listing, error) {
	query := fmt.Sprintf(`UPDATE %s SET status_id = $2, comment = $3 WHERE id = $1 RETURNING %s`,
		s.table, listingColumns)
	listing, err := scanListing(s.db.QueryRow(ctx, query, id, update.StatusID, update.Comment))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Listing{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("update listing: %w", err)
	}
	return listing, nil
}

// Delete removes a listing by id.
func (s *ListingStore) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

func scanListing(row pgx.Row) (crawler.Listing, error) {
	var l crawler.Listing
	err := row.Scan(
		&l.ID,
		&l.Link,
		&l.Price,
		&l.Title,
		&l.StatusID,
		&l.IsVideo,
		&l.Comment,
		&l.ImageLink,
		&l.CreatedAt,
	)
	return l, err
}
