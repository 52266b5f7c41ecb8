package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shift-tracker-backend/internal/engine"
)

// PostBrigadeCheck handles the POST /api/brigade/check request: one
// supervisor applies start or end to a set of employees with a shared photo
// and geolocation. The response lists a per-employee outcome; partial
// success is still a 200.
func (h *Handler) PostBrigadeCheck(c *gin.Context) {
	if _, _, ok := h.resolvePrincipal(c, c.PostForm("principal")); !ok {
		return
	}

	employees := c.PostFormArray("employees")
	if len(employees) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no employees selected"})
		return
	}

	geo, err := formGeolocation(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid coordinates"})
		return
	}
	photo, err := formPhoto(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable photo"})
		return
	}

	batch, err := h.engine.BrigadeCheck(c.Request.Context(), engine.BrigadeRequest{
		Action:    c.PostForm("action"),
		Employees: employees,
		Photo:     photo,
		Geo:       geo,
	}, h.now())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// GetBrigadeMembers handles the GET /api/brigade/members request: the
// teammates a supervisor can bulk-check, excluding the caller.
func (h *Handler) GetBrigadeMembers(c *gin.Context) {
	_, name, ok := h.resolvePrincipal(c, c.Query("principal"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": h.dir.Teammates(name)})
}
