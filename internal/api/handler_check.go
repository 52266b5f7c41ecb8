package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"shift-tracker-backend/internal/engine"
)

// parseCoord converts a form coordinate to a float, tolerating the comma
// decimal separator that localized mobile keyboards produce. An empty value
// is absent, not zero.
func parseCoord(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formGeolocation(c *gin.Context) (*engine.Geolocation, error) {
	lat, err := parseCoord(c.PostForm("lat"))
	if err != nil {
		return nil, err
	}
	lon, err := parseCoord(c.PostForm("lon"))
	if err != nil {
		return nil, err
	}
	if lat == nil || lon == nil {
		return nil, nil
	}
	acc, err := parseCoord(c.PostForm("acc"))
	if err != nil {
		return nil, err
	}
	return &engine.Geolocation{Lat: *lat, Lon: *lon, Accuracy: acc}, nil
}

func formPhoto(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("photo")
	if err != nil {
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// resolvePrincipal maps the authenticated principal id from the request to
// an employee name, writing the error response itself on failure.
func (h *Handler) resolvePrincipal(c *gin.Context, raw string) (int64, string, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "principal is required"})
		return 0, "", false
	}
	name, ok := h.dir.NameForPrincipal(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown principal"})
		return 0, "", false
	}
	return id, name, true
}

// PostCheck handles the POST /api/check request: a single worker attestation
// with photo and geolocation.
func (h *Handler) PostCheck(c *gin.Context) {
	id, employee, ok := h.resolvePrincipal(c, c.PostForm("principal"))
	if !ok {
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

	req := engine.CheckRequest{
		Employee:      employee,
		PrincipalID:   id,
		Action:        c.PostForm("action"),
		Photo:         photo,
		Geo:           geo,
		ReturnDate:    c.PostForm("ret_date"),
		DepartureDate: c.PostForm("dep_date"),
		NotReturning:  c.PostForm("not_return") == "1",
	}

	out, err := h.engine.Check(c.Request.Context(), req, h.now())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
