package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shift-tracker-backend/internal/tracking"
)

type livePointRequest struct {
	Principal int64    `json:"principal" binding:"required"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Accuracy  *float64 `json:"accuracy"`
	Source    string   `json:"source"`
}

// PostLivePoint handles the POST /api/live/points request: a background
// geolocation ping. The response is always 202; pings outside an active
// shift (or from an unknown principal) are dropped without an error so the
// mobile client never retries them.
func (h *Handler) PostLivePoint(c *gin.Context) {
	var req livePointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	employee, ok := h.dir.NameForPrincipal(req.Principal)
	if !ok {
		c.JSON(http.StatusAccepted, gin.H{"stored": false})
		return
	}

	source := req.Source
	if source == "" {
		source = "ping"
	}
	stored, err := h.store.InsertPoint(c.Request.Context(), tracking.PointInput{
		Employee:    employee,
		PrincipalID: req.Principal,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Accuracy:    req.Accuracy,
		Source:      source,
	}, h.now())
	if err != nil {
		log.Printf("insert point for %s: %v", employee, err)
		c.JSON(http.StatusAccepted, gin.H{"stored": false})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"stored": stored})
}

// GetLiveEmployees handles the GET /api/live/employees request: the
// freshness snapshot behind the live map.
func (h *Handler) GetLiveEmployees(c *gin.Context) {
	snapshots, err := h.store.LastPositions(c.Request.Context(), h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load positions"})
		return
	}
	c.JSON(http.StatusOK, snapshots)
}

// GetLiveTrack handles the GET /api/live/track request: one employee's
// valid points for a day, for redrawing the day's path.
func (h *Handler) GetLiveTrack(c *gin.Context) {
	employee := c.Query("employee")
	if employee == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "employee is required"})
		return
	}
	day, err := time.ParseInLocation("2006-01-02", c.Query("date"), h.now().Location())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	points, err := h.store.Track(c.Request.Context(), employee, day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load track"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"employee": employee, "date": c.Query("date"), "points": points})
}
