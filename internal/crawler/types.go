package crawler

import (
	"time"
)

// Outcome records how a crawl run ended for the position it attempted.
type Outcome string

// Checkpoint outcomes.
const (
	// OutcomeProgressed means the page was fetched and ingested.
	OutcomeProgressed Outcome = "progressed"
	// OutcomeExhausted means the URL ran out of pages and the position wrapped.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeFailed means the page must be retried on the next run.
	OutcomeFailed Outcome = "failed"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeProgressed, OutcomeExhausted, OutcomeFailed:
		return true
	default:
		return false
	}
}

// ErrorFlag is the persisted boolean view of the outcome. A set flag makes the
// next run retry the recorded page instead of advancing past it.
func (o Outcome) ErrorFlag() bool {
	return o != OutcomeProgressed
}

// OutcomeFromFlag maps a bare error flag, as written by older deployments,
// onto an outcome.
func OutcomeFromFlag(errorFlag bool) Outcome {
	if errorFlag {
		return OutcomeFailed
	}
	return OutcomeProgressed
}

// Position addresses one page of one search URL.
type Position struct {
	SequenceIndex int `json:"sequence_index"`
	Page          int `json:"page"`
}

// Checkpoint is one append-only progress record. The record with the greatest
// ID is the current position.
type Checkpoint struct {
	ID            int64     `json:"id"`
	SequenceIndex int       `json:"sequence_index"`
	Page          int       `json:"page"`
	Outcome       Outcome   `json:"outcome"`
	Error         bool      `json:"error"`
	Reason        string    `json:"reason,omitempty"`
	RunID         string    `json:"run_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Position returns the page address recorded by the checkpoint.
func (c Checkpoint) Position() Position {
	return Position{SequenceIndex: c.SequenceIndex, Page: c.Page}
}

// Item is a listing as extracted from a results page.
type Item struct {
	Link      string  `json:"link"`
	Price     *int64  `json:"price"`
	Title     string  `json:"title"`
	IsVideo   bool    `json:"is_video"`
	ImageLink *string `json:"image_link"`
}

// Listing statuses are operator-assigned labels in the range 0..4.
const (
	StatusNew      int16 = 0
	StatusMaxValue int16 = 4
)

// ValidStatus reports whether s is an accepted listing status.
func ValidStatus(s int16) bool {
	return s >= StatusNew && s <= StatusMaxValue
}

// Listing is a stored item.
type Listing struct {
	ID        int64     `json:"id"`
	Link      string    `json:"link"`
	Price     *int64    `json:"price"`
	Title     string    `json:"title"`
	StatusID  int16     `json:"status_id"`
	IsVideo   bool      `json:"is_video"`
	Comment   *string   `json:"comment"`
	ImageLink *string   `json:"image_link"`
	CreatedAt time.Time `json:"created_at"`
}

// NewListing is the insert form of a listing.
type NewListing struct {
	Item
	StatusID  int16
	Comment   *string
	CreatedAt time.Time
}

// ListingFilter narrows a listing query. Nil pointers mean "any".
type ListingFilter struct {
	StatusID *int16
	IsVideo  *bool
	MinPrice int64
	MaxPrice int64
	Limit    int
	Offset   int
}

// Default price bounds for listing queries.
const (
	DefaultMinPrice int64 = 1
	DefaultMaxPrice int64 = 100_000_000
)

// ListingUpdate carries the operator-editable listing fields.
type ListingUpdate struct {
	StatusID int16
	Comment  *string
}

// Page is one fetched results page.
type Page struct {
	Items      []Item
	TotalPages int
}

// RunStatus is the terminal state of one orchestrator run.
type RunStatus string

// Run statuses.
const (
	RunSucceeded  RunStatus = "succeeded"
	RunWraparound RunStatus = "succeeded_with_wraparound"
	RunFailed     RunStatus = "failed"
	RunSkipped    RunStatus = "skipped"
)

// RunResult summarizes one orchestrator run.
type RunResult struct {
	RunID         string        `json:"run_id"`
	Status        RunStatus     `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	SequenceIndex int           `json:"sequence_index"`
	Page          int           `json:"page"`
	Inserted      int           `json:"inserted"`
	Skipped       int           `json:"skipped"`
	Duration      time.Duration `json:"duration"`
}

// NewListingEvent is published for every listing a run inserts.
type NewListingEvent struct {
	RunID        string    `json:"run_id"`
	ListingID    int64     `json:"listing_id"`
	Link         string    `json:"link"`
	Title        string    `json:"title"`
	Price        *int64    `json:"price,omitempty"`
	IsVideo      bool      `json:"is_video"`
	DiscoveredAt time.Time `json:"discovered_at"`
}
