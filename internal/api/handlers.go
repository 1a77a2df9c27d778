package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"listing-radar/internal/ingest"
	"listing-radar/internal/listing"
	"listing-radar/internal/metrics"
	"listing-radar/internal/scoring"
	"listing-radar/internal/storage"
)

const maxLimit = 500

// Submitter accepts observations without blocking the request.
type Submitter interface {
	TryEnqueue(obs listing.Observation) error
}

// Handlers serve the dashboard and ingest endpoints.
type Handlers struct {
	listings     storage.ListingStore
	alerts       storage.AlertStore
	submitter    Submitter
	metrics      *metrics.Metrics
	defaultLimit int
}

// NewHandlers wires the read side of the store and the ingest queue.
// alerts, submitter and m may be nil.
func NewHandlers(listings storage.ListingStore, alerts storage.AlertStore, submitter Submitter, m *metrics.Metrics, defaultLimit int) *Handlers {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &Handlers{
		listings:     listings,
		alerts:       alerts,
		submitter:    submitter,
		metrics:      m,
		defaultLimit: defaultLimit,
	}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListListings returns tracked listings ordered by score.
func (h *Handlers) ListListings(c *gin.Context) {
	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLimit)
	}

	filter := storage.ListFilter{
		Category:   c.Query("category"),
		Brand:      c.Query("brand"),
		Label:      c.Query("label"),
		ActiveOnly: c.DefaultQuery("include_inactive", "false") != "true",
		Limit:      limit,
	}
	if c.Query("actionable") == "true" {
		filter.Labels = actionableLabels()
	}

	listings, err := h.listings.ListListings(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list listings: " + err.Error()})
		return
	}
	if listings == nil {
		listings = []storage.Listing{}
	}
	c.JSON(http.StatusOK, gin.H{"data": listings, "count": len(listings)})
}

// GetListing returns one listing with its latest evaluation.
func (h *Handlers) GetListing(c *gin.Context) {
	l, err := h.listings.GetListing(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get listing: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": l})
}

// DeactivateListing retires a listing that disappeared from the source.
func (h *Handlers) DeactivateListing(c *gin.Context) {
	err := h.listings.Deactivate(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivate listing: " + err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Pulse summarises the active market.
func (h *Handlers) Pulse(c *gin.Context) {
	listings, err := h.listings.ListListings(c.Request.Context(), storage.ListFilter{ActiveOnly: true})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list listings: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": BuildPulse(listings)})
}

// RecentAlerts returns the latest delivered notifications.
func (h *Handlers) RecentAlerts(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusOK, gin.H{"data": []storage.AlertRecord{}})
		return
	}
	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}
	alerts, err := h.alerts.ListRecentAlerts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list alerts: " + err.Error()})
		return
	}
	if alerts == nil {
		alerts = []storage.AlertRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

// SubmitObservation queues a scraped observation for evaluation.
func (h *Handlers) SubmitObservation(c *gin.Context) {
	if h.submitter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingest disabled"})
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	obs, err := ingest.Decode(body)
	if err == nil {
		err = obs.Validate()
	}
	if err != nil {
		h.reject()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.submitter.TryEnqueue(obs); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "id": obs.ID})
}

func (h *Handlers) reject() {
	if h.metrics != nil {
		h.metrics.ObservationsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
	}
}

func actionableLabels() []string {
	return lo.FilterMap(scoring.Labels, func(l scoring.Label, _ int) (string, bool) {
		return string(l), l.Actionable()
	})
}
