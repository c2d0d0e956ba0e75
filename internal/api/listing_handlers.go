package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const (
	defaultListingLimit = 50
	maxListingLimit     = 500
)

type listingHandler struct {
	repo   crawler.ListingRepository
	clock  crawler.Clock
	logger *zap.Logger
}

// list handles GET /v1/listings?status_id=&is_video=&min_price=&max_price=&limit=&offset=.
func (h *listingHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "listing repository unavailable")
		return
	}
	filter, err := parseListingFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listings, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list listings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	if listings == nil {
		listings = []crawler.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

func (h *listingHandler) get(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "listing repository unavailable")
		return
	}
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listing, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, "get listing", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": listing})
}

type createListingRequest struct {
	Link      string  `json:"link"`
	Title     string  `json:"title"`
	Price     *int64  `json:"price"`
	IsVideo   bool    `json:"is_video"`
	ImageLink *string `json:"image_link"`
	StatusID  int16   `json:"status_id"`
	Comment   *string `json:"comment"`
}

// create handles POST /v1/listings. A link that is already stored yields 409.
func (h *listingHandler) create(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "listing repository unavailable")
		return
	}
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Link = strings.TrimSpace(req.Link)
	if req.Link == "" {
		writeError(w, http.StatusBadRequest, "link is required")
		return
	}
	if u, err := url.Parse(req.Link); err != nil || !u.IsAbs() {
		writeError(w, http.StatusBadRequest, "link must be an absolute URL")
		return
	}
	if !crawler.ValidStatus(req.StatusID) {
		writeError(w, http.StatusBadRequest, "status_id must be between 0 and 4")
		return
	}
	now := time.Now().UTC()
	if h.clock != nil {
		now = h.clock.Now()
	}
	listing, err := h.repo.Insert(r.Context(), crawler.NewListing{
		Item: crawler.Item{
			Link:      req.Link,
			Title:     req.Title,
			Price:     req.Price,
			IsVideo:   req.IsVideo,
			ImageLink: req.ImageLink,
		},
		StatusID:  req.StatusID,
		Comment:   req.Comment,
		CreatedAt: now,
	})
	if errors.Is(err, crawler.ErrDuplicate) {
		writeError(w, http.StatusConflict, "listing already exists")
		return
	}
	if err != nil {
		h.logger.Error("create listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create listing")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"listing": listing})
}

type updateListingRequest struct {
	StatusID *int16  `json:"status_id"`
	Comment  *string `json:"comment"`
}

// update handles PATCH /v1/listings/{listing_id}. Omitted fields keep their
// stored values.
func (h *listingHandler) update(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "listing repository unavailable")
		return
	}
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.StatusID == nil && req.Comment == nil {
		writeError(w, http.StatusBadRequest, "status_id or comment is required")
		return
	}
	if req.StatusID != nil && !crawler.ValidStatus(*req.StatusID) {
		writeError(w, http.StatusBadRequest, "status_id must be between 0 and 4")
		return
	}

	current, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, "get listing", err)
		return
	}
	update := crawler.ListingUpdate{StatusID: current.StatusID, Comment: current.Comment}
	if req.StatusID != nil {
		update.StatusID = *req.StatusID
	}
	if req.Comment != nil {
		update.Comment = req.Comment
	}
	listing, err := h.repo.Update(r.Context(), id, update)
	if err != nil {
		h.writeRepoError(w, "update listing", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": listing})
}

func (h *listingHandler) delete(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "listing repository unavailable")
		return
	}
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.writeRepoError(w, "delete listing", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *listingHandler) writeRepoError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	h.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

func parseListingID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "listing_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid listing_id")
	}
	return id, nil
}

func parseListingFilter(r *http.Request) (crawler.ListingFilter, error) {
	limit, offset, err := parseLimitOffset(r, defaultListingLimit, maxListingLimit)
	if err != nil {
		return crawler.ListingFilter{}, err
	}
	filter := crawler.ListingFilter{
		MinPrice: crawler.DefaultMinPrice,
		MaxPrice: crawler.DefaultMaxPrice,
		Limit:    limit,
		Offset:   offset,
	}
	q := r.URL.Query()
	if raw := q.Get("status_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 16)
		if err != nil || !crawler.ValidStatus(int16(v)) {
			return crawler.ListingFilter{}, errors.New("invalid status_id")
		}
		status := int16(v)
		filter.StatusID = &status
	}
	if raw := q.Get("is_video"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return crawler.ListingFilter{}, errors.New("invalid is_video")
		}
		filter.IsVideo = &v
	}
	if raw := q.Get("min_price"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return crawler.ListingFilter{}, errors.New("invalid min_price")
		}
		filter.MinPrice = v
	}
	if raw := q.Get("max_price"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			return crawler.ListingFilter{}, errors.New("invalid max_price")
		}
		filter.MaxPrice = v
	}
	if filter.MaxPrice < filter.MinPrice {
		return crawler.ListingFilter{}, errors.New("max_price must be >= min_price")
	}
	return filter, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
