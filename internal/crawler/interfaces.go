package crawler

import (
	"context"
	"io"
	"time"
)

// PageSource fetches one results page of a search URL. Implementations bound
// the call with their own timeout and report every failure as a *FetchError.
type PageSource interface {
	FetchPage(ctx context.Context, url string, page int) (Page, error)
}

// Renderer loads a URL and returns the resulting document.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// CheckpointStore is the append-only progress log.
type CheckpointStore interface {
	// Last returns the checkpoint with the greatest ID or ErrNotFound.
	Last(ctx context.Context) (Checkpoint, error)
	// Append stores a new checkpoint; ID and Error are assigned by the store.
	Append(ctx context.Context, cp Checkpoint) (Checkpoint, error)
	// History lists checkpoints newest first.
	History(ctx context.Context, limit, offset int) ([]Checkpoint, error)
}

// ItemStore is what the ingest loop needs from listing storage.
type ItemStore interface {
	Exists(ctx context.Context, link string) (bool, error)
	// Insert returns ErrDuplicate when the link is already stored.
	Insert(ctx context.Context, listing NewListing) (Listing, error)
}

// ListingRepository is the operator-facing listing surface.
type ListingRepository interface {
	ItemStore
	List(ctx context.Context, filter ListingFilter) ([]Listing, error)
	Get(ctx context.Context, id int64) (Listing, error)
	Update(ctx context.Context, id int64, update ListingUpdate) (Listing, error)
	Delete(ctx context.Context, id int64) error
}

// RunLock guarantees at most one active run. TryAcquire returns ErrLockHeld
// when another holder owns the lock.
type RunLock interface {
	TryAcquire(ctx context.Context) (release func(), err error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
