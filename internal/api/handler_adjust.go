package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shift-tracker-backend/internal/engine"
)

// PostAdjustTime handles the POST /api/adjust/time request: a supervisor's
// direct edit of a day's start/end times.
func (h *Handler) PostAdjustTime(c *gin.Context) {
	_, editor, ok := h.resolvePrincipal(c, c.PostForm("principal"))
	if !ok {
		return
	}

	req := engine.AdjustTimeRequest{
		Editor:    editor,
		Person:    c.PostForm("person"),
		Date:      c.PostForm("date"),
		StartTime: c.PostForm("start_time"),
		EndTime:   c.PostForm("end_time"),
	}
	if req.Person == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "person is required"})
		return
	}

	out, err := h.engine.AdjustTime(c.Request.Context(), req, h.now())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// PostAdjustStatus handles the POST /api/adjust/status request: a
// supervisor's retroactive sick/left override with optional return and
// next-departure dates.
func (h *Handler) PostAdjustStatus(c *gin.Context) {
	_, editor, ok := h.resolvePrincipal(c, c.PostForm("principal"))
	if !ok {
		return
	}

	req := engine.AdjustStatusRequest{
		Editor:        editor,
		Person:        c.PostForm("person"),
		Date:          c.PostForm("date"),
		Status:        c.PostForm("status"),
		ReturnDate:    c.PostForm("return_date"),
		NextDeparture: c.PostForm("next_departure"),
	}
	if req.Person == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "person is required"})
		return
	}

	out, err := h.engine.AdjustStatus(c.Request.Context(), req, h.now())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
