package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"shift-tracker-backend/config"
	"shift-tracker-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	snapshotTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// The live-map snapshot is polled by every open dashboard; cache it
	// briefly instead of hitting the store per viewer.
	cacheStore := cache.New(snapshotTTL, 2*snapshotTTL)
	caching := mw.Cache(cacheStore, snapshotTTL, "/api/live/employees")

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// worker attestation
		api.POST("/check", handler.PostCheck)

		// brigade (bulk) attestation
		api.POST("/brigade/check", handler.PostBrigadeCheck)
		api.GET("/brigade/members", handler.GetBrigadeMembers)

		// supervisor edits
		api.POST("/adjust/time", handler.PostAdjustTime)
		api.POST("/adjust/status", handler.PostAdjustStatus)

		// geotracking
		api.POST("/live/points", handler.PostLivePoint)
		api.GET("/live/employees", caching, handler.GetLiveEmployees)
		api.GET("/live/track", handler.GetLiveTrack)

		// supervisor push subscriptions
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
