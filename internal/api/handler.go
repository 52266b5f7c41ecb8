package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"shift-tracker-backend/internal/engine"
	"shift-tracker-backend/internal/ledger"
	"shift-tracker-backend/internal/org"
	"shift-tracker-backend/internal/tracking"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *engine.Engine
	store   tracking.Store
	dir     org.Directory
	db      *gorm.DB
	webpush *webpush.Options
	now     func() time.Time
}

// NewHandler creates a new API handler. now supplies the service-local
// current time so tests can pin the clock.
func NewHandler(eng *engine.Engine, store tracking.Store, dir org.Directory, db *gorm.DB, webpushOptions *webpush.Options, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		engine:  eng,
		store:   store,
		dir:     dir,
		db:      db,
		webpush: webpushOptions,
		now:     now,
	}
}

// renderError maps an engine or locator error to an HTTP response. Business
// rule violations stay in the 4xx range; a failed workbook round trip is a
// bad gateway, since the ledger is effectively a remote dependency.
func renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrRemoteWrite):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrMissingGeolocation), errors.Is(err, engine.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
